package platform

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/SteffenPL/EHT-sub000/internal/model"
	"github.com/SteffenPL/EHT-sub000/internal/params"
	"github.com/SteffenPL/EHT-sub000/internal/storage"
)

// SweepConfig describes a parameter sweep: the cartesian product of the
// override values, crossed with the seed list, each combination one run.
type SweepConfig struct {
	SweepID string
	Model   string
	Base    params.Params

	// Overrides maps dotted parameter paths to the values to sweep.
	Overrides map[string][]float64
	Seeds     []int64

	Workers       int
	SnapshotEvery int
}

type sweepTask struct {
	runIndex  int
	runID     string
	seed      int64
	overrides map[string]float64
	params    params.Params
}

type sweepOutcome struct {
	task   sweepTask
	result SimulationResult
	err    error
}

// RunSweep expands the sweep into tasks and executes them on a worker pool.
// Each task owns a private parameter copy; nothing is shared between workers
// except the store. The sweep manifest is persisted and returned.
func (l *Lab) RunSweep(ctx context.Context, cfg SweepConfig) (model.SweepRecord, error) {
	if !l.Started() {
		return model.SweepRecord{}, fmt.Errorf("lab is not initialized")
	}
	if cfg.Model == "" {
		return model.SweepRecord{}, fmt.Errorf("model is required")
	}
	if len(cfg.Seeds) == 0 {
		cfg.Seeds = []int64{0}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	sweepID := cfg.SweepID
	if sweepID == "" {
		sweepID = "sweep-" + uuid.NewString()
	}

	tasks, keys, err := expandSweep(sweepID, cfg)
	if err != nil {
		return model.SweepRecord{}, err
	}

	jobs := make(chan sweepTask)
	results := make(chan sweepOutcome, len(tasks))
	var wg sync.WaitGroup
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range jobs {
				result, err := l.RunSimulation(ctx, SimulationConfig{
					RunID:         task.runID,
					Model:         cfg.Model,
					Seed:          task.seed,
					Params:        task.params,
					SnapshotEvery: cfg.SnapshotEvery,
				})
				results <- sweepOutcome{task: task, result: result, err: err}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, task := range tasks {
			select {
			case jobs <- task:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	outcomes := make([]sweepOutcome, 0, len(tasks))
	for outcome := range results {
		if outcome.err != nil {
			return model.SweepRecord{}, fmt.Errorf("sweep run %s: %w", outcome.task.runID, outcome.err)
		}
		outcomes = append(outcomes, outcome)
	}
	if err := ctx.Err(); err != nil {
		return model.SweepRecord{}, err
	}
	sort.Slice(outcomes, func(i, j int) bool {
		return outcomes[i].task.runIndex < outcomes[j].task.runIndex
	})

	record := model.SweepRecord{
		VersionedRecord: model.VersionedRecord{
			SchemaVersion: storage.CurrentSchemaVersion,
			CodecVersion:  storage.CurrentCodecVersion,
		},
		SweepID:      sweepID,
		Model:        cfg.Model,
		CreatedAtUTC: time.Now().UTC().Format(time.RFC3339),
		Overrides:    keys,
	}
	for _, outcome := range outcomes {
		record.Runs = append(record.Runs, model.SweepRunSummary{
			RunIndex:  outcome.task.runIndex,
			RunID:     outcome.task.runID,
			Seed:      outcome.task.seed,
			Overrides: outcome.task.overrides,
			CellCount: outcome.result.Run.CellCount,
		})
	}
	if err := l.store.SaveSweep(ctx, record); err != nil {
		return model.SweepRecord{}, err
	}
	return record, nil
}

// expandSweep builds the task list: the cartesian product of override values
// in sorted key order, crossed with seeds, run_index assigned sequentially.
func expandSweep(sweepID string, cfg SweepConfig) ([]sweepTask, []string, error) {
	keys := make([]string, 0, len(cfg.Overrides))
	for key := range cfg.Overrides {
		if len(cfg.Overrides[key]) == 0 {
			return nil, nil, fmt.Errorf("override %s has no values", key)
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	combos := []map[string]float64{{}}
	for _, key := range keys {
		next := make([]map[string]float64, 0, len(combos)*len(cfg.Overrides[key]))
		for _, combo := range combos {
			for _, value := range cfg.Overrides[key] {
				extended := make(map[string]float64, len(combo)+1)
				for k, v := range combo {
					extended[k] = v
				}
				extended[key] = value
				next = append(next, extended)
			}
		}
		combos = next
	}

	tasks := make([]sweepTask, 0, len(combos)*len(cfg.Seeds))
	for _, combo := range combos {
		for _, seed := range cfg.Seeds {
			p := clone(cfg.Base)
			for key, value := range combo {
				if err := applyOverride(&p, key, value); err != nil {
					return nil, nil, err
				}
			}
			if err := p.Validate(); err != nil {
				return nil, nil, fmt.Errorf("overrides %v: %w", combo, err)
			}
			idx := len(tasks)
			tasks = append(tasks, sweepTask{
				runIndex:  idx,
				runID:     fmt.Sprintf("%s-%03d", sweepID, idx),
				seed:      seed,
				overrides: combo,
				params:    p,
			})
		}
	}
	return tasks, keys, nil
}

// clone deep-copies a parameter set so sweep tasks never alias the base.
func clone(p params.Params) params.Params {
	out := p
	out.Types = make([]params.CellType, len(p.Types))
	copy(out.Types, p.Types)
	for i := range out.Types {
		ct := &out.Types[i]
		ct.LoseApical.Time = cloneRange(ct.LoseApical.Time)
		ct.LoseBasal.Time = cloneRange(ct.LoseBasal.Time)
		ct.LoseStraightness.Time = cloneRange(ct.LoseStraightness.Time)
		ct.StartRunning.Time = cloneRange(ct.StartRunning.Time)
	}
	return out
}

func cloneRange(r *params.Range) *params.Range {
	if r == nil {
		return nil
	}
	copied := *r
	return &copied
}

// applyOverride sets one numeric parameter by dotted path. Supported forms
// are "general.<field>" and "cell_types.<name>.<field>"; "general.n_init"
// resizes the first declared type.
func applyOverride(p *params.Params, key string, value float64) error {
	parts := strings.Split(key, ".")
	switch {
	case len(parts) == 2 && parts[0] == "general":
		return applyGeneralOverride(p, parts[1], value)
	case len(parts) == 3 && parts[0] == "cell_types":
		for i := range p.Types {
			if p.Types[i].Name == parts[1] {
				return applyTypeOverride(&p.Types[i], parts[2], value)
			}
		}
		return fmt.Errorf("override %s: unknown cell type %q", key, parts[1])
	default:
		return fmt.Errorf("unsupported override path: %s", key)
	}
}

func applyGeneralOverride(p *params.Params, field string, value float64) error {
	switch field {
	case "t_end":
		p.General.TEnd = value
	case "dt":
		p.General.Dt = value
	case "n_substeps":
		p.General.NSubsteps = int(math.Round(value))
	case "mu":
		p.General.Mu = value
	case "perimeter":
		p.General.Perimeter = value
	case "aspect_ratio":
		p.General.AspectRatio = value
	case "height":
		p.General.Height = value
	case "constraint_iterations":
		p.General.ConstraintIterations = int(math.Round(value))
	case "n_init":
		if len(p.Types) == 0 {
			return fmt.Errorf("general.n_init requires at least one cell type")
		}
		p.Types[0].NInit = int(math.Round(value))
	default:
		return fmt.Errorf("unsupported general override field: %s", field)
	}
	return nil
}

func applyTypeOverride(ct *params.CellType, field string, value float64) error {
	switch field {
	case "n_init":
		ct.NInit = int(math.Round(value))
	case "r_soft":
		ct.RSoft = value
	case "r_hard":
		ct.RHard = value
	case "repulsion":
		ct.Repulsion = value
	case "stiffness_nuclei_apical":
		ct.StiffnessNucleiApical = value
	case "stiffness_nuclei_basal":
		ct.StiffnessNucleiBasal = value
	case "stiffness_straightness":
		ct.StiffnessStraightness = value
	case "stiffness_apical_apical":
		ct.StiffnessApicalApical = value
	case "max_basal_distance":
		ct.MaxBasalDistance = value
	case "running_floor":
		ct.RunningFloor = value
	case "running_mode":
		ct.RunningMode = int(math.Round(value))
	default:
		return fmt.Errorf("unsupported cell type override field: %s", field)
	}
	return nil
}
