// Command ehtctl drives the tissue simulator: single runs, parameter sweeps,
// and inspection of persisted runs.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/SteffenPL/EHT-sub000/internal/platform"
	"github.com/SteffenPL/EHT-sub000/internal/storage"
	"github.com/SteffenPL/EHT-sub000/pkg/eht"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "run":
		return runRun(ctx, args[1:])
	case "sweep":
		return runSweep(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "metrics":
		return runMetrics(ctx, args[1:])
	case "snapshot":
		return runSnapshot(ctx, args[1:])
	case "stats":
		return runStats(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: ehtctl <init|run|sweep|runs|metrics|snapshot|stats|export> [flags]", msg)
}

// storeFlags are the persistence flags shared by every subcommand.
type storeFlags struct {
	storeKind  *string
	dbPath     *string
	resultsDir *string
	exportsDir *string
}

func addStoreFlags(fs *flag.FlagSet) storeFlags {
	return storeFlags{
		storeKind:  fs.String("store", storage.DefaultStoreKind, "store backend: memory|sqlite"),
		dbPath:     fs.String("db-path", "eht.db", "sqlite database path"),
		resultsDir: fs.String("results-dir", "results", "run artifact directory"),
		exportsDir: fs.String("exports-dir", "exports", "export output directory"),
	}
}

func (f storeFlags) client() (*eht.Client, error) {
	return eht.New(eht.Options{
		StoreKind:  *f.storeKind,
		DBPath:     *f.dbPath,
		ResultsDir: *f.resultsDir,
		ExportsDir: *f.exportsDir,
	})
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	sf := addStoreFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := storage.NewStore(*sf.storeKind, *sf.dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = storage.CloseIfSupported(store)
	}()

	lab := platform.NewLab(platform.Config{Store: store})
	if err := lab.Init(ctx); err != nil {
		return err
	}

	fmt.Printf("initialized store=%s models=%v\n", *sf.storeKind, lab.RegisteredModels())
	return nil
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	sf := addStoreFlags(fs)
	paramsPath := fs.String("params", "", "parameter file (JSON or YAML); defaults when empty")
	modelName := fs.String("model", "eht", "registered model name")
	runID := fs.String("run-id", "", "explicit run id (optional)")
	seed := fs.Int64("seed", 1, "rng seed")
	snapshotEvery := fs.Int("snapshot-every", 0, "snapshot cadence in steps (0 keeps initial and final only)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	p, err := loadParams(*paramsPath)
	if err != nil {
		return err
	}

	client, err := sf.client()
	if err != nil {
		return err
	}
	defer client.Close()

	if isatty.IsTerminal(os.Stderr.Fd()) {
		fmt.Fprintf(os.Stderr, "running model=%s seed=%d t_end=%gh dt=%gh cells=%d...\n",
			*modelName, *seed, p.General.TEnd, p.General.Dt, p.TotalInit())
	}

	summary, err := client.Run(ctx, eht.RunRequest{
		Model:         *modelName,
		RunID:         *runID,
		Seed:          *seed,
		Params:        &p,
		SnapshotEvery: *snapshotEvery,
	})
	if err != nil {
		return err
	}

	fmt.Printf("run=%s t=%gh steps=%d cells=%d degeneracies=%d artifacts=%s\n",
		summary.RunID, summary.TimeH, summary.Steps, summary.CellCount,
		summary.Degeneracies, summary.ArtifactsDir)
	if summary.Stopped {
		fmt.Println("run stopped before t_end")
	}
	return nil
}

func runSweep(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sweep", flag.ContinueOnError)
	sf := addStoreFlags(fs)
	paramsPath := fs.String("params", "", "parameter file (JSON or YAML); defaults when empty")
	modelName := fs.String("model", "eht", "registered model name")
	sweepID := fs.String("sweep-id", "", "explicit sweep id (optional)")
	workers := fs.Int("workers", 4, "worker count")
	snapshotEvery := fs.Int("snapshot-every", 0, "snapshot cadence in steps")
	var overrides overrideFlag
	fs.Var(&overrides, "override", "swept parameter, e.g. general.aspect_ratio=0,1,2 (repeatable)")
	var seeds seedsFlag
	fs.Var(&seeds, "seeds", "comma-separated seed list")
	if err := fs.Parse(args); err != nil {
		return err
	}

	p, err := loadParams(*paramsPath)
	if err != nil {
		return err
	}

	client, err := sf.client()
	if err != nil {
		return err
	}
	defer client.Close()

	summary, err := client.Sweep(ctx, eht.SweepRequest{
		Model:         *modelName,
		SweepID:       *sweepID,
		Params:        &p,
		Overrides:     overrides.values,
		Seeds:         seeds.values,
		Workers:       *workers,
		SnapshotEvery: *snapshotEvery,
	})
	if err != nil {
		return err
	}

	fmt.Printf("sweep=%s runs=%d csv=%s\n", summary.SweepID, len(summary.Runs), summary.CSVPath)
	for _, run := range summary.Runs {
		fmt.Printf("  run_index=%d run=%s seed=%d cells=%d overrides=%v\n",
			run.RunIndex, run.RunID, run.Seed, run.CellCount, run.Overrides)
	}
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	sf := addStoreFlags(fs)
	limit := fs.Int("limit", 20, "maximum entries to list")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := sf.client()
	if err != nil {
		return err
	}
	defer client.Close()

	items, err := client.Runs(ctx, eht.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Println("no runs recorded")
		return nil
	}
	for _, item := range items {
		age := item.CreatedAtUTC
		if created, err := time.Parse(time.RFC3339, item.CreatedAtUTC); err == nil {
			age = humanize.Time(created)
		}
		fmt.Printf("run=%s model=%s seed=%d t=%gh steps=%d cells=%s created=%s\n",
			item.RunID, item.Model, item.Seed, item.TimeH, item.Steps,
			humanize.Comma(int64(item.CellCount)), age)
	}
	return nil
}

func runMetrics(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("metrics", flag.ContinueOnError)
	sf := addStoreFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "use the newest run")
	asJSON := fs.Bool("json", false, "emit the full series as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := sf.client()
	if err != nil {
		return err
	}
	defer client.Close()

	series, err := client.Metrics(ctx, *runID, *latest)
	if err != nil {
		return err
	}
	if *asJSON {
		return json.NewEncoder(os.Stdout).Encode(series)
	}
	for _, point := range series {
		fmt.Printf("t=%gh all.count=%v all.mean_ab_distance=%v\n",
			point.TimeH, point.Values["all.count"], point.Values["all.mean_ab_distance"])
	}
	return nil
}

func runSnapshot(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("snapshot", flag.ContinueOnError)
	sf := addStoreFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "use the newest run")
	step := fs.Int("step", -1, "snapshot step (-1 selects the last snapshot)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := sf.client()
	if err != nil {
		return err
	}
	defer client.Close()

	snapshots, err := client.Snapshots(ctx, *runID, *latest)
	if err != nil {
		return err
	}
	selected := snapshots[len(snapshots)-1]
	if *step >= 0 {
		found := false
		for _, snapshot := range snapshots {
			if snapshot.Step == *step {
				selected = snapshot
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("no snapshot at step %d", *step)
		}
	}
	return json.NewEncoder(os.Stdout).Encode(selected)
}

func runStats(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	sf := addStoreFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "use the newest run")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := sf.client()
	if err != nil {
		return err
	}
	defer client.Close()

	point, err := client.Stats(ctx, *runID, *latest)
	if err != nil {
		return err
	}
	fmt.Printf("t=%gh\n", point.TimeH)
	for _, key := range sortedKeys(point.Values) {
		fmt.Printf("  %s=%v\n", key, point.Values[key])
	}
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	sf := addStoreFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "use the newest run")
	outDir := fs.String("out", "", "output directory (defaults to the exports dir)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := sf.client()
	if err != nil {
		return err
	}
	defer client.Close()

	summary, err := client.Export(ctx, eht.ExportRequest{
		RunID:  *runID,
		Latest: *latest,
		OutDir: *outDir,
	})
	if err != nil {
		return err
	}
	fmt.Printf("exported run=%s dir=%s\n", summary.RunID, summary.Directory)
	return nil
}
