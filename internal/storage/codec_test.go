package storage

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/SteffenPL/EHT-sub000/internal/model"
)

func TestRunCodecRoundTrip(t *testing.T) {
	run := testRun("run-1", "2026-08-24T10:00:00Z")
	data, err := EncodeRun(run)
	if err != nil {
		t.Fatalf("EncodeRun: %v", err)
	}
	decoded, err := DecodeRun(data)
	if err != nil {
		t.Fatalf("DecodeRun: %v", err)
	}
	if !reflect.DeepEqual(decoded, run) {
		t.Fatalf("round trip = %+v, want %+v", decoded, run)
	}
}

func TestSnapshotCodecPreservesNonFiniteTimes(t *testing.T) {
	snapshot := testSnapshot("run-1", 5)
	data, err := EncodeSnapshot(snapshot)
	if err != nil {
		t.Fatalf("EncodeSnapshot: %v", err)
	}
	decoded, err := DecodeSnapshot(data)
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}
	if !math.IsInf(float64(decoded.Rows[0].TimeA), 1) {
		t.Fatalf("TimeA = %v, want +Inf", decoded.Rows[0].TimeA)
	}
	if got := float64(decoded.Rows[0].TimeB); got != 9.5 {
		t.Fatalf("TimeB = %g, want 9.5", got)
	}
}

func TestDecodeRejectsVersionMismatch(t *testing.T) {
	run := testRun("run-1", "2026-08-24T10:00:00Z")
	run.SchemaVersion = CurrentSchemaVersion + 1
	data, err := EncodeRun(run)
	if err != nil {
		t.Fatalf("EncodeRun: %v", err)
	}
	if _, err := DecodeRun(data); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("DecodeRun error = %v, want ErrVersionMismatch", err)
	}

	sweep := model.SweepRecord{SweepID: "s"}
	sweepData, err := EncodeSweep(sweep)
	if err != nil {
		t.Fatalf("EncodeSweep: %v", err)
	}
	if _, err := DecodeSweep(sweepData); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("DecodeSweep error = %v, want ErrVersionMismatch", err)
	}
}

func TestMetricsCodecKeepsNaN(t *testing.T) {
	series := []model.MetricsPoint{
		{TimeH: 0, Values: map[string]model.JSONFloat{
			"hemogenic.mean_depth": model.JSONFloat(math.NaN()),
			"all.count":            27,
		}},
	}
	data, err := EncodeMetrics(series)
	if err != nil {
		t.Fatalf("EncodeMetrics: %v", err)
	}
	decoded, err := DecodeMetrics(data)
	if err != nil {
		t.Fatalf("DecodeMetrics: %v", err)
	}
	if !math.IsNaN(float64(decoded[0].Values["hemogenic.mean_depth"])) {
		t.Fatalf("NaN stat did not survive the round trip")
	}
	if got := float64(decoded[0].Values["all.count"]); got != 27 {
		t.Fatalf("all.count = %g, want 27", got)
	}
}
