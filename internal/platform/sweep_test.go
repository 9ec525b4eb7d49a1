package platform

import (
	"context"
	"strings"
	"testing"
)

func TestExpandSweepCartesian(t *testing.T) {
	base := quickParams()
	tasks, keys, err := expandSweep("sweep-1", SweepConfig{
		Model: "eht",
		Base:  base,
		Overrides: map[string][]float64{
			"general.n_init":       {5, 6},
			"general.aspect_ratio": {0, 1},
		},
		Seeds: []int64{1, 2},
	})
	if err != nil {
		t.Fatalf("expandSweep: %v", err)
	}
	if len(tasks) != 8 {
		t.Fatalf("task count = %d, want 2*2*2", len(tasks))
	}
	if len(keys) != 2 || keys[0] != "general.aspect_ratio" || keys[1] != "general.n_init" {
		t.Fatalf("keys = %v, want sorted override paths", keys)
	}
	for i, task := range tasks {
		if task.runIndex != i {
			t.Errorf("task %d has run index %d", i, task.runIndex)
		}
		if !strings.HasPrefix(task.runID, "sweep-1-") {
			t.Errorf("run id %q missing sweep prefix", task.runID)
		}
	}
	// The base parameter set must stay untouched.
	if base.Types[0].NInit != 6 {
		t.Fatalf("base params mutated by expansion")
	}
}

func TestExpandSweepRejectsBadOverrides(t *testing.T) {
	base := quickParams()
	if _, _, err := expandSweep("s", SweepConfig{
		Base:      base,
		Overrides: map[string][]float64{"general.bogus": {1}},
		Seeds:     []int64{1},
	}); err == nil {
		t.Fatalf("unknown override field should fail")
	}
	if _, _, err := expandSweep("s", SweepConfig{
		Base:      base,
		Overrides: map[string][]float64{"cell_types.nonexistent.n_init": {1}},
		Seeds:     []int64{1},
	}); err == nil {
		t.Fatalf("unknown cell type should fail")
	}
	if _, _, err := expandSweep("s", SweepConfig{
		Base:      base,
		Overrides: map[string][]float64{"general.dt": {}},
		Seeds:     []int64{1},
	}); err == nil {
		t.Fatalf("empty override values should fail")
	}
	// Overrides that make the parameters invalid fail before any run starts.
	if _, _, err := expandSweep("s", SweepConfig{
		Base:      base,
		Overrides: map[string][]float64{"general.mu": {-1}},
		Seeds:     []int64{1},
	}); err == nil {
		t.Fatalf("invalid override value should fail validation")
	}
}

func TestApplyTypeOverride(t *testing.T) {
	p := quickParams()
	if err := applyOverride(&p, "cell_types.progenitor.max_basal_distance", 4); err != nil {
		t.Fatalf("applyOverride: %v", err)
	}
	if p.Types[0].MaxBasalDistance != 4 {
		t.Fatalf("override not applied: %+v", p.Types[0])
	}
}

func TestRunSweepTwoSizes(t *testing.T) {
	ctx := context.Background()
	l := startedLab(t)

	base := quickParams()
	base.General.TEnd = 0.01
	base.General.Dt = 0.01

	record, err := l.RunSweep(ctx, SweepConfig{
		SweepID: "sweep-1",
		Model:   "eht",
		Base:    base,
		Overrides: map[string][]float64{
			"general.n_init": {5, 6},
		},
		Seeds:   []int64{1},
		Workers: 2,
	})
	if err != nil {
		t.Fatalf("RunSweep: %v", err)
	}
	if len(record.Runs) != 2 {
		t.Fatalf("run count = %d, want 2", len(record.Runs))
	}
	for i, run := range record.Runs {
		if run.RunIndex != i {
			t.Errorf("run %d has run_index %d", i, run.RunIndex)
		}
		want := int(run.Overrides["general.n_init"])
		if run.CellCount != want {
			t.Errorf("run %d cell count = %d, want %d", i, run.CellCount, want)
		}
		snapshots, ok, err := l.store.GetSnapshots(ctx, run.RunID)
		if err != nil || !ok {
			t.Fatalf("GetSnapshots %s = ok=%v err=%v", run.RunID, ok, err)
		}
		if len(snapshots[0].Rows) != want {
			t.Errorf("run %d initial snapshot has %d rows, want %d", i, len(snapshots[0].Rows), want)
		}
	}

	stored, ok, err := l.store.GetSweep(ctx, "sweep-1")
	if err != nil || !ok {
		t.Fatalf("GetSweep = ok=%v err=%v", ok, err)
	}
	if len(stored.Runs) != 2 {
		t.Errorf("persisted sweep has %d runs", len(stored.Runs))
	}
}

func TestRunSweepGeneratesID(t *testing.T) {
	l := startedLab(t)
	base := quickParams()
	base.General.TEnd = 0.01
	base.General.Dt = 0.01

	record, err := l.RunSweep(context.Background(), SweepConfig{
		Model: "eht",
		Base:  base,
		Seeds: []int64{3},
	})
	if err != nil {
		t.Fatalf("RunSweep: %v", err)
	}
	if !strings.HasPrefix(record.SweepID, "sweep-") {
		t.Errorf("sweep id = %q", record.SweepID)
	}
	if len(record.Runs) != 1 {
		t.Errorf("run count = %d, want 1", len(record.Runs))
	}
}
