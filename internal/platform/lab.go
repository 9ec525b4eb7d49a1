// Package platform runs simulations end to end: model lookup, the step loop
// with run control, persistence through the store, and sweep dispatch.
package platform

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/SteffenPL/EHT-sub000/internal/engine"
	"github.com/SteffenPL/EHT-sub000/internal/model"
	"github.com/SteffenPL/EHT-sub000/internal/params"
	"github.com/SteffenPL/EHT-sub000/internal/storage"
	"github.com/SteffenPL/EHT-sub000/internal/tissue"
)

// Command controls a running simulation between output steps.
type Command int

const (
	CommandPause Command = iota
	CommandContinue
	CommandStop
)

type StopReason string

const (
	StopReasonNormal   StopReason = "normal"
	StopReasonShutdown StopReason = "shutdown"
)

type Config struct {
	Store storage.Store
}

// Lab owns the model registry, the store, and the set of active runs. All
// methods are safe for concurrent use.
type Lab struct {
	store storage.Store

	mu             sync.RWMutex
	models         map[string]engine.Model
	runs           map[string]chan Command
	started        bool
	lastStopReason StopReason
}

var (
	defaultLabMu sync.Mutex
	defaultLab   *Lab
)

func NewLab(cfg Config) *Lab {
	return &Lab{
		store:          cfg.Store,
		models:         make(map[string]engine.Model),
		runs:           make(map[string]chan Command),
		lastStopReason: StopReasonNormal,
	}
}

// StartDefault initializes the process-wide lab, reusing it if already
// started.
func StartDefault(ctx context.Context, cfg Config) (*Lab, error) {
	defaultLabMu.Lock()
	defer defaultLabMu.Unlock()

	if defaultLab != nil && defaultLab.Started() {
		return defaultLab, nil
	}

	l := NewLab(cfg)
	if err := l.Init(ctx); err != nil {
		return nil, err
	}
	defaultLab = l
	return defaultLab, nil
}

func Default() (*Lab, bool) {
	defaultLabMu.Lock()
	l := defaultLab
	defaultLabMu.Unlock()

	if l == nil || !l.Started() {
		return nil, false
	}
	return l, true
}

func StopDefault(reason StopReason) error {
	defaultLabMu.Lock()
	l := defaultLab
	defaultLabMu.Unlock()
	if l == nil {
		return nil
	}
	if err := l.StopWithReason(reason); err != nil {
		return err
	}
	defaultLabMu.Lock()
	if defaultLab == l {
		defaultLab = nil
	}
	defaultLabMu.Unlock()
	return nil
}

func (l *Lab) Init(ctx context.Context) error {
	if l.store == nil {
		return fmt.Errorf("store is required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return nil
	}
	if err := l.store.Init(ctx); err != nil {
		return err
	}
	for name, m := range engine.Models() {
		l.models[name] = m
	}
	l.started = true
	return nil
}

// RegisterModel adds or replaces a model in the registry.
func (l *Lab) RegisterModel(m engine.Model) error {
	if m.Name == "" {
		return fmt.Errorf("model name is required")
	}
	if m.Init == nil || m.Step == nil || m.Snapshot == nil || m.Stats == nil {
		return fmt.Errorf("model %s has nil operations", m.Name)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.started {
		return fmt.Errorf("lab is not initialized")
	}
	if _, exists := l.models[m.Name]; exists {
		return fmt.Errorf("model %s is already registered", m.Name)
	}
	l.models[m.Name] = m
	return nil
}

func (l *Lab) GetModel(name string) (engine.Model, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	m, ok := l.models[name]
	return m, ok
}

func (l *Lab) RegisteredModels() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	names := make([]string, 0, len(l.models))
	for name := range l.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (l *Lab) Stop() {
	_ = l.StopWithReason(StopReasonNormal)
}

func (l *Lab) Shutdown() {
	_ = l.StopWithReason(StopReasonShutdown)
}

func (l *Lab) StopWithReason(reason StopReason) error {
	if reason == "" {
		reason = StopReasonNormal
	}
	switch reason {
	case StopReasonNormal, StopReasonShutdown:
	default:
		return fmt.Errorf("unsupported stop reason: %s", reason)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, control := range l.runs {
		select {
		case control <- CommandStop:
		default:
		}
	}
	l.started = false
	l.lastStopReason = reason
	l.runs = make(map[string]chan Command)
	return nil
}

func (l *Lab) Started() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.started
}

func (l *Lab) LastStopReason() StopReason {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastStopReason
}

// SimulationConfig describes one run.
type SimulationConfig struct {
	RunID  string
	Model  string
	Seed   int64
	Params params.Params

	// SnapshotEvery is the snapshot cadence in output steps. Zero keeps only
	// the initial and final snapshots.
	SnapshotEvery int

	// Control receives pause/continue/stop commands; commands apply between
	// output steps. Nil allocates an internal channel.
	Control chan Command
}

// SimulationResult is the in-memory outcome of one run; everything in it is
// also persisted in the store under the run id.
type SimulationResult struct {
	Run       model.RunRecord
	Snapshots []model.Snapshot
	Metrics   []model.MetricsPoint
	Stopped   bool
}

// RunSimulation initializes a state and steps it to t_end, collecting metrics
// every output step and snapshots at the configured cadence. Stop commands
// take effect between steps; a stopped run still persists what it produced.
func (l *Lab) RunSimulation(ctx context.Context, cfg SimulationConfig) (SimulationResult, error) {
	l.mu.RLock()
	m, ok := l.models[cfg.Model]
	started := l.started
	l.mu.RUnlock()

	if !started {
		return SimulationResult{}, fmt.Errorf("lab is not initialized")
	}
	if !ok {
		return SimulationResult{}, fmt.Errorf("model not registered: %s", cfg.Model)
	}
	if err := cfg.Params.Validate(); err != nil {
		return SimulationResult{}, err
	}

	runID := cfg.RunID
	if runID == "" {
		runID = fmt.Sprintf("%s-%d", cfg.Model, cfg.Seed)
	}
	control := cfg.Control
	if control == nil {
		control = make(chan Command, 16)
	}
	if err := l.registerRunControl(runID, control); err != nil {
		return SimulationResult{}, err
	}
	defer l.unregisterRunControl(runID)

	st, err := m.Init(&cfg.Params, cfg.Seed)
	if err != nil {
		return SimulationResult{}, err
	}

	g := cfg.Params.General
	totalSteps := int(math.Ceil(g.TEnd/g.Dt - 1e-9))

	result := SimulationResult{
		Snapshots: []model.Snapshot{l.takeSnapshot(m, st, &cfg.Params, runID, 0)},
		Metrics:   []model.MetricsPoint{m.Stats(st, &cfg.Params)},
	}

	stopped := false
steps:
	for step := 1; step <= totalSteps; step++ {
		if err := ctx.Err(); err != nil {
			return SimulationResult{}, err
		}
		if drainControl(control) {
			stopped = true
			break steps
		}

		if err := m.Step(st, g.Dt, &cfg.Params); err != nil {
			return SimulationResult{}, fmt.Errorf("step %d: %w", step, err)
		}
		result.Metrics = append(result.Metrics, m.Stats(st, &cfg.Params))
		if cfg.SnapshotEvery > 0 && step%cfg.SnapshotEvery == 0 && step != totalSteps {
			result.Snapshots = append(result.Snapshots, l.takeSnapshot(m, st, &cfg.Params, runID, step))
		}
	}
	if st.StepCount > 0 {
		result.Snapshots = append(result.Snapshots, l.takeSnapshot(m, st, &cfg.Params, runID, st.StepCount))
	}
	result.Stopped = stopped

	result.Run = model.RunRecord{
		VersionedRecord: model.VersionedRecord{
			SchemaVersion: storage.CurrentSchemaVersion,
			CodecVersion:  storage.CurrentCodecVersion,
		},
		RunID:        runID,
		Model:        cfg.Model,
		Seed:         cfg.Seed,
		CreatedAtUTC: time.Now().UTC().Format(time.RFC3339),
		TimeH:        st.T,
		Steps:        st.StepCount,
		CellCount:    len(st.Cells),
		Degeneracies: st.Degeneracies,
	}

	if err := l.store.SaveRun(ctx, result.Run); err != nil {
		return SimulationResult{}, err
	}
	for _, snapshot := range result.Snapshots {
		if err := l.store.SaveSnapshot(ctx, snapshot); err != nil {
			return SimulationResult{}, err
		}
	}
	if err := l.store.SaveMetrics(ctx, runID, result.Metrics); err != nil {
		return SimulationResult{}, err
	}
	return result, nil
}

func (l *Lab) takeSnapshot(m engine.Model, st *tissue.State, p *params.Params, runID string, step int) model.Snapshot {
	return model.Snapshot{
		VersionedRecord: model.VersionedRecord{
			SchemaVersion: storage.CurrentSchemaVersion,
			CodecVersion:  storage.CurrentCodecVersion,
		},
		RunID: runID,
		Step:  step,
		TimeH: st.T,
		Rows:  m.Snapshot(st, p),
	}
}

// drainControl applies pending commands. It returns true when the run must
// stop; a pause blocks until a continue or stop arrives.
func drainControl(control chan Command) bool {
	for {
		select {
		case cmd := <-control:
			switch cmd {
			case CommandStop:
				return true
			case CommandPause:
				for paused := range control {
					if paused == CommandStop {
						return true
					}
					if paused == CommandContinue {
						break
					}
				}
			}
		default:
			return false
		}
	}
}

func (l *Lab) PauseRun(runID string) error {
	return l.sendRunCommand(runID, CommandPause)
}

func (l *Lab) ContinueRun(runID string) error {
	return l.sendRunCommand(runID, CommandContinue)
}

func (l *Lab) StopRun(runID string) error {
	return l.sendRunCommand(runID, CommandStop)
}

func (l *Lab) registerRunControl(runID string, control chan Command) error {
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.started {
		return fmt.Errorf("lab is not initialized")
	}
	if _, exists := l.runs[runID]; exists {
		return fmt.Errorf("run already active: %s", runID)
	}
	l.runs[runID] = control
	return nil
}

func (l *Lab) unregisterRunControl(runID string) {
	if runID == "" {
		return
	}
	l.mu.Lock()
	delete(l.runs, runID)
	l.mu.Unlock()
}

func (l *Lab) sendRunCommand(runID string, cmd Command) error {
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	l.mu.RLock()
	control, ok := l.runs[runID]
	l.mu.RUnlock()
	if !ok {
		return fmt.Errorf("run not active: %s", runID)
	}
	select {
	case control <- cmd:
		return nil
	default:
		return fmt.Errorf("run control channel is full: %s", runID)
	}
}
