package storage

import (
	"context"

	"github.com/SteffenPL/EHT-sub000/internal/model"
)

// Store defines the persistence operations for simulation records. Getters
// report absence through the bool, never through an error.
type Store interface {
	Init(ctx context.Context) error

	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, runID string) (model.RunRecord, bool, error)
	ListRuns(ctx context.Context) ([]model.RunRecord, error)

	SaveSnapshot(ctx context.Context, snapshot model.Snapshot) error
	GetSnapshots(ctx context.Context, runID string) ([]model.Snapshot, bool, error)

	SaveMetrics(ctx context.Context, runID string, series []model.MetricsPoint) error
	GetMetrics(ctx context.Context, runID string) ([]model.MetricsPoint, bool, error)

	SaveSweep(ctx context.Context, sweep model.SweepRecord) error
	GetSweep(ctx context.Context, sweepID string) (model.SweepRecord, bool, error)
}
