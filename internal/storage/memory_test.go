package storage

import (
	"context"
	"math"
	"reflect"
	"testing"

	"github.com/SteffenPL/EHT-sub000/internal/model"
)

func testRun(id, createdAt string) model.RunRecord {
	return model.RunRecord{
		VersionedRecord: Stamp(),
		RunID:           id,
		Model:           "eht",
		Seed:            42,
		CreatedAtUTC:    createdAt,
		TimeH:           24,
		Steps:           240,
		CellCount:       27,
	}
}

func testSnapshot(runID string, step int) model.Snapshot {
	return model.Snapshot{
		VersionedRecord: Stamp(),
		RunID:           runID,
		Step:            step,
		TimeH:           float64(step) * 0.1,
		Rows: []model.CellRow{
			{
				CellID: 0, Type: "hemogenic", TimeH: float64(step) * 0.1,
				PosX: 1.5, PosY: -2.25, HasA: true, HasB: true, Phase: "G1",
				TimeA: model.JSONFloat(math.Inf(1)),
				TimeB: model.JSONFloat(9.5),
			},
		},
	}
}

func TestMemoryStoreRequiresInit(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if err := store.SaveRun(ctx, testRun("run-1", "2026-08-24T00:00:00Z")); err == nil {
		t.Fatalf("SaveRun before Init should fail")
	}
	if _, _, err := store.GetRun(ctx, "run-1"); err == nil {
		t.Fatalf("GetRun before Init should fail")
	}
	if err := store.SaveSnapshot(ctx, testSnapshot("run-1", 0)); err == nil {
		t.Fatalf("SaveSnapshot before Init should fail")
	}
	if err := store.SaveMetrics(ctx, "run-1", nil); err == nil {
		t.Fatalf("SaveMetrics before Init should fail")
	}
}

func TestMemoryStoreRunLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}

	if _, ok, err := store.GetRun(ctx, "missing"); err != nil || ok {
		t.Fatalf("GetRun(missing) = ok=%v err=%v, want absent", ok, err)
	}

	run := testRun("run-1", "2026-08-24T10:00:00Z")
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	got, ok, err := store.GetRun(ctx, "run-1")
	if err != nil || !ok {
		t.Fatalf("GetRun = ok=%v err=%v", ok, err)
	}
	if !reflect.DeepEqual(got, run) {
		t.Fatalf("GetRun = %+v, want %+v", got, run)
	}
}

func TestMemoryStoreListRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	for _, run := range []model.RunRecord{
		testRun("run-a", "2026-08-22T10:00:00Z"),
		testRun("run-b", "2026-08-24T10:00:00Z"),
		testRun("run-c", "2026-08-23T10:00:00Z"),
	} {
		if err := store.SaveRun(ctx, run); err != nil {
			t.Fatalf("SaveRun %s: %v", run.RunID, err)
		}
	}
	runs, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	var order []string
	for _, run := range runs {
		order = append(order, run.RunID)
	}
	want := []string{"run-b", "run-c", "run-a"}
	if !reflect.DeepEqual(order, want) {
		t.Fatalf("ListRuns order = %v, want %v", order, want)
	}
}

func TestMemoryStoreSnapshots(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}

	if _, ok, err := store.GetSnapshots(ctx, "run-1"); err != nil || ok {
		t.Fatalf("GetSnapshots on empty store = ok=%v err=%v", ok, err)
	}

	// Insert out of order; retrieval is sorted by step.
	for _, step := range []int{20, 0, 10} {
		if err := store.SaveSnapshot(ctx, testSnapshot("run-1", step)); err != nil {
			t.Fatalf("SaveSnapshot step %d: %v", step, err)
		}
	}
	snapshots, ok, err := store.GetSnapshots(ctx, "run-1")
	if err != nil || !ok {
		t.Fatalf("GetSnapshots = ok=%v err=%v", ok, err)
	}
	var steps []int
	for _, snapshot := range snapshots {
		steps = append(steps, snapshot.Step)
	}
	if want := []int{0, 10, 20}; !reflect.DeepEqual(steps, want) {
		t.Fatalf("steps = %v, want %v", steps, want)
	}

	// Same step upserts instead of duplicating.
	replacement := testSnapshot("run-1", 10)
	replacement.Rows[0].PosX = 99
	if err := store.SaveSnapshot(ctx, replacement); err != nil {
		t.Fatalf("SaveSnapshot upsert: %v", err)
	}
	snapshots, _, _ = store.GetSnapshots(ctx, "run-1")
	if len(snapshots) != 3 {
		t.Fatalf("snapshot count after upsert = %d, want 3", len(snapshots))
	}
	if snapshots[1].Rows[0].PosX != 99 {
		t.Fatalf("upsert did not replace step 10")
	}
}

func TestMemoryStoreMetricsIsolation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}

	series := []model.MetricsPoint{
		{TimeH: 0, Values: map[string]model.JSONFloat{"all.count": 27}},
		{TimeH: 0.1, Values: map[string]model.JSONFloat{"all.count": 27}},
	}
	if err := store.SaveMetrics(ctx, "run-1", series); err != nil {
		t.Fatalf("SaveMetrics: %v", err)
	}
	series[0].TimeH = 123 // caller mutation must not leak into the store

	got, ok, err := store.GetMetrics(ctx, "run-1")
	if err != nil || !ok {
		t.Fatalf("GetMetrics = ok=%v err=%v", ok, err)
	}
	if got[0].TimeH != 0 {
		t.Fatalf("stored series aliased the caller slice")
	}
}

func TestMemoryStoreSweeps(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	sweep := model.SweepRecord{
		VersionedRecord: Stamp(),
		SweepID:         "sweep-1",
		Model:           "eht",
		CreatedAtUTC:    "2026-08-24T10:00:00Z",
		Overrides:       []string{"general.aspect_ratio"},
		Runs: []model.SweepRunSummary{
			{RunIndex: 0, RunID: "run-1", Seed: 1, Overrides: map[string]float64{"general.aspect_ratio": 1}},
		},
	}
	if err := store.SaveSweep(ctx, sweep); err != nil {
		t.Fatalf("SaveSweep: %v", err)
	}
	got, ok, err := store.GetSweep(ctx, "sweep-1")
	if err != nil || !ok {
		t.Fatalf("GetSweep = ok=%v err=%v", ok, err)
	}
	if !reflect.DeepEqual(got, sweep) {
		t.Fatalf("GetSweep = %+v, want %+v", got, sweep)
	}
}
