package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/SteffenPL/EHT-sub000/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string]model.RunRecord
	snapshots   map[string][]model.Snapshot
	metrics     map[string][]model.MetricsPoint
	sweeps      map[string]model.SweepRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.runs = make(map[string]model.RunRecord)
	s.snapshots = make(map[string][]model.Snapshot)
	s.metrics = make(map[string][]model.MetricsPoint)
	s.sweeps = make(map[string]model.SweepRecord)
	return nil
}

// ready must be called with the lock held.
func (s *MemoryStore) ready() error {
	if !s.initialized {
		return errors.New("store is not initialized")
	}
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return err
	}
	s.runs[run.RunID] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, runID string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ready(); err != nil {
		return model.RunRecord{}, false, err
	}
	run, ok := s.runs[runID]
	return run, ok, nil
}

// ListRuns returns all run records, newest first.
func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ready(); err != nil {
		return nil, err
	}
	runs := make([]model.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAtUTC != runs[j].CreatedAtUTC {
			return runs[i].CreatedAtUTC > runs[j].CreatedAtUTC
		}
		return runs[i].RunID < runs[j].RunID
	})
	return runs, nil
}

// SaveSnapshot upserts by (run_id, step).
func (s *MemoryStore) SaveSnapshot(_ context.Context, snapshot model.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return err
	}
	existing := s.snapshots[snapshot.RunID]
	for i := range existing {
		if existing[i].Step == snapshot.Step {
			existing[i] = snapshot
			return nil
		}
	}
	s.snapshots[snapshot.RunID] = append(existing, snapshot)
	return nil
}

func (s *MemoryStore) GetSnapshots(_ context.Context, runID string) ([]model.Snapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ready(); err != nil {
		return nil, false, err
	}
	snapshots, ok := s.snapshots[runID]
	if !ok {
		return nil, false, nil
	}
	copied := make([]model.Snapshot, len(snapshots))
	copy(copied, snapshots)
	sort.Slice(copied, func(i, j int) bool { return copied[i].Step < copied[j].Step })
	return copied, true, nil
}

func (s *MemoryStore) SaveMetrics(_ context.Context, runID string, series []model.MetricsPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return err
	}
	copied := make([]model.MetricsPoint, len(series))
	copy(copied, series)
	s.metrics[runID] = copied
	return nil
}

func (s *MemoryStore) GetMetrics(_ context.Context, runID string) ([]model.MetricsPoint, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ready(); err != nil {
		return nil, false, err
	}
	series, ok := s.metrics[runID]
	if !ok {
		return nil, false, nil
	}
	copied := make([]model.MetricsPoint, len(series))
	copy(copied, series)
	return copied, true, nil
}

func (s *MemoryStore) SaveSweep(_ context.Context, sweep model.SweepRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return err
	}
	s.sweeps[sweep.SweepID] = sweep
	return nil
}

func (s *MemoryStore) GetSweep(_ context.Context, sweepID string) (model.SweepRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ready(); err != nil {
		return model.SweepRecord{}, false, err
	}
	sweep, ok := s.sweeps[sweepID]
	return sweep, ok, nil
}
