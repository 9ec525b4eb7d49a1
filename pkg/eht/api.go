// Package eht is the public facade of the tissue simulator: a Client wrapping
// the store, the lab, and the artifact writers behind request/summary types
// with defaulting in the request path.
package eht

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/SteffenPL/EHT-sub000/internal/model"
	"github.com/SteffenPL/EHT-sub000/internal/params"
	"github.com/SteffenPL/EHT-sub000/internal/platform"
	"github.com/SteffenPL/EHT-sub000/internal/report"
	"github.com/SteffenPL/EHT-sub000/internal/storage"
)

const (
	defaultResultsDir = "results"
	defaultExportsDir = "exports"
	defaultDBPath     = "eht.db"
	defaultModel      = "eht"
)

type Options struct {
	StoreKind  string
	DBPath     string
	ResultsDir string
	ExportsDir string
}

type Client struct {
	store storage.Store
	lab   *platform.Lab

	resultsDir string
	exportsDir string
}

type RunRequest struct {
	Model         string
	RunID         string
	Seed          int64
	Params        *params.Params
	SnapshotEvery int
}

type RunSummary struct {
	RunID        string
	ArtifactsDir string
	TimeH        float64
	Steps        int
	CellCount    int
	Degeneracies int
	Stopped      bool
}

type SweepRequest struct {
	Model         string
	SweepID       string
	Params        *params.Params
	Overrides     map[string][]float64
	Seeds         []int64
	Workers       int
	SnapshotEvery int
}

type SweepSummary struct {
	SweepID string
	Runs    []model.SweepRunSummary
	CSVPath string
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID        string
	Model        string
	Seed         int64
	CreatedAtUTC string
	TimeH        float64
	Steps        int
	CellCount    int
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	resultsDir := opts.ResultsDir
	if resultsDir == "" {
		resultsDir = defaultResultsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:      store,
		resultsDir: resultsDir,
		exportsDir: exportsDir,
	}, nil
}

func (c *Client) Close() error {
	if c.lab != nil {
		c.lab.Shutdown()
	}
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	_, err := c.ensureLab(ctx)
	return err
}

func (c *Client) ensureLab(ctx context.Context) (*platform.Lab, error) {
	if c.lab != nil && c.lab.Started() {
		return c.lab, nil
	}
	l := platform.NewLab(platform.Config{Store: c.store})
	if err := l.Init(ctx); err != nil {
		return nil, err
	}
	c.lab = l
	return l, nil
}

// Run executes one simulation, persists it, and writes the run artifact
// directory under the results dir.
func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	if req.Model == "" {
		req.Model = defaultModel
	}
	p := params.Default()
	if req.Params != nil {
		p = *req.Params
	}
	if err := p.Validate(); err != nil {
		return RunSummary{}, err
	}
	runID := req.RunID
	if runID == "" {
		runID = fmt.Sprintf("%s-%d-%d", req.Model, req.Seed, time.Now().UTC().Unix())
	}

	l, err := c.ensureLab(ctx)
	if err != nil {
		return RunSummary{}, err
	}

	result, err := l.RunSimulation(ctx, platform.SimulationConfig{
		RunID:         runID,
		Model:         req.Model,
		Seed:          req.Seed,
		Params:        p,
		SnapshotEvery: req.SnapshotEvery,
	})
	if err != nil {
		return RunSummary{}, err
	}

	artifactsDir, err := report.WriteRunArtifacts(c.resultsDir, report.RunArtifacts{
		Config: report.RunConfig{
			RunID:        runID,
			Model:        req.Model,
			Seed:         req.Seed,
			CreatedAtUTC: result.Run.CreatedAtUTC,
			Params:       p,
		},
		Summary:   result.Run,
		Metrics:   result.Metrics,
		Snapshots: result.Snapshots,
	})
	if err != nil {
		return RunSummary{}, err
	}
	if err := report.AppendRunIndex(c.resultsDir, report.RunIndexEntry{
		RunID:        runID,
		Model:        req.Model,
		Seed:         req.Seed,
		TimeH:        result.Run.TimeH,
		Steps:        result.Run.Steps,
		CellCount:    result.Run.CellCount,
		CreatedAtUTC: result.Run.CreatedAtUTC,
	}); err != nil {
		return RunSummary{}, err
	}

	return RunSummary{
		RunID:        runID,
		ArtifactsDir: artifactsDir,
		TimeH:        result.Run.TimeH,
		Steps:        result.Run.Steps,
		CellCount:    result.Run.CellCount,
		Degeneracies: result.Run.Degeneracies,
		Stopped:      result.Stopped,
	}, nil
}

// Sweep runs a parameter sweep and writes the combined snapshot CSV under the
// results dir.
func (c *Client) Sweep(ctx context.Context, req SweepRequest) (SweepSummary, error) {
	if req.Model == "" {
		req.Model = defaultModel
	}
	p := params.Default()
	if req.Params != nil {
		p = *req.Params
	}

	l, err := c.ensureLab(ctx)
	if err != nil {
		return SweepSummary{}, err
	}

	record, err := l.RunSweep(ctx, platform.SweepConfig{
		SweepID:       req.SweepID,
		Model:         req.Model,
		Base:          p,
		Overrides:     req.Overrides,
		Seeds:         req.Seeds,
		Workers:       req.Workers,
		SnapshotEvery: req.SnapshotEvery,
	})
	if err != nil {
		return SweepSummary{}, err
	}

	snapshotsByRun := make(map[string][]model.Snapshot, len(record.Runs))
	for _, run := range record.Runs {
		snapshots, ok, err := c.store.GetSnapshots(ctx, run.RunID)
		if err != nil {
			return SweepSummary{}, err
		}
		if ok {
			snapshotsByRun[run.RunID] = snapshots
		}
	}
	csvPath := filepath.Join(c.resultsDir, record.SweepID, "sweep.csv")
	if err := report.WriteSweepCSV(csvPath, record, snapshotsByRun); err != nil {
		return SweepSummary{}, err
	}

	return SweepSummary{
		SweepID: record.SweepID,
		Runs:    record.Runs,
		CSVPath: csvPath,
	}, nil
}

// Runs lists persisted runs, newest first.
func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]RunItem, error) {
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	runs, err := c.store.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	if req.Limit > 0 && len(runs) > req.Limit {
		runs = runs[:req.Limit]
	}
	items := make([]RunItem, 0, len(runs))
	for _, run := range runs {
		items = append(items, RunItem{
			RunID:        run.RunID,
			Model:        run.Model,
			Seed:         run.Seed,
			CreatedAtUTC: run.CreatedAtUTC,
			TimeH:        run.TimeH,
			Steps:        run.Steps,
			CellCount:    run.CellCount,
		})
	}
	return items, nil
}

// Metrics returns the metric series of a run. An empty run id with latest set
// resolves to the newest run.
func (c *Client) Metrics(ctx context.Context, runID string, latest bool) ([]model.MetricsPoint, error) {
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	runID, err := c.resolveRunID(ctx, runID, latest)
	if err != nil {
		return nil, err
	}
	series, ok, err := c.store.GetMetrics(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("no metrics for run %s", runID)
	}
	return series, nil
}

// Snapshots returns the persisted snapshots of a run, ordered by step.
func (c *Client) Snapshots(ctx context.Context, runID string, latest bool) ([]model.Snapshot, error) {
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	runID, err := c.resolveRunID(ctx, runID, latest)
	if err != nil {
		return nil, err
	}
	snapshots, ok, err := c.store.GetSnapshots(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("no snapshots for run %s", runID)
	}
	return snapshots, nil
}

// Stats returns the final metrics point of a run.
func (c *Client) Stats(ctx context.Context, runID string, latest bool) (model.MetricsPoint, error) {
	series, err := c.Metrics(ctx, runID, latest)
	if err != nil {
		return model.MetricsPoint{}, err
	}
	if len(series) == 0 {
		return model.MetricsPoint{}, fmt.Errorf("empty metric series for run %s", runID)
	}
	return series[len(series)-1], nil
}

// Export copies a run's artifact directory into the exports dir.
func (c *Client) Export(ctx context.Context, req ExportRequest) (ExportSummary, error) {
	if err := c.Init(ctx); err != nil {
		return ExportSummary{}, err
	}
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return ExportSummary{}, err
	}
	outDir := req.OutDir
	if outDir == "" {
		outDir = c.exportsDir
	}
	dst, err := report.ExportRunArtifacts(c.resultsDir, runID, outDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: dst}, nil
}

func (c *Client) resolveRunID(ctx context.Context, runID string, latest bool) (string, error) {
	if runID != "" {
		return runID, nil
	}
	if !latest {
		return "", errors.New("run id is required (or pass latest)")
	}
	runs, err := c.store.ListRuns(ctx)
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "", errors.New("no runs recorded")
	}
	return runs[0].RunID, nil
}
