// Package report writes run artifacts to disk: per-run directories with the
// configuration, metric series, summary and snapshot tables, a run index for
// listings, and the combined sweep CSV.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/SteffenPL/EHT-sub000/internal/model"
	"github.com/SteffenPL/EHT-sub000/internal/params"
)

const runIndexFile = "run_index.json"

// RunConfig is the persisted configuration of one run: the full parameter set
// plus the identifiers needed to reproduce it.
type RunConfig struct {
	RunID        string        `json:"run_id"`
	Model        string        `json:"model"`
	Seed         int64         `json:"seed"`
	CreatedAtUTC string        `json:"created_at_utc"`
	Params       params.Params `json:"params"`
}

// RunArtifacts bundles everything written into a run directory.
type RunArtifacts struct {
	Config    RunConfig            `json:"config"`
	Summary   model.RunRecord      `json:"summary"`
	Metrics   []model.MetricsPoint `json:"metrics"`
	Snapshots []model.Snapshot     `json:"snapshots"`
}

// RunIndexEntry is one line of the run index, enough for listings without
// opening the run directory.
type RunIndexEntry struct {
	RunID        string  `json:"run_id"`
	Model        string  `json:"model"`
	Seed         int64   `json:"seed"`
	TimeH        float64 `json:"time_h"`
	Steps        int     `json:"steps"`
	CellCount    int     `json:"cell_count"`
	CreatedAtUTC string  `json:"created_at_utc"`
}

// WriteRunArtifacts writes the run directory under baseDir and returns its
// path. Snapshots go into one CSV table, one row per (step, cell).
func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Config.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Config.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, "config.json"), artifacts.Config); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "summary.json"), artifacts.Summary); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "metrics.json"), artifacts.Metrics); err != nil {
		return "", err
	}
	if err := writeSnapshotCSV(filepath.Join(runDir, "snapshots.csv"), artifacts.Snapshots); err != nil {
		return "", err
	}

	return runDir, nil
}

// ReadRunConfig loads the configuration persisted with a run.
func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	path := filepath.Join(baseDir, runID, "config.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return RunConfig{}, false, nil
		}
		return RunConfig{}, false, err
	}

	var cfg RunConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return RunConfig{}, false, err
	}
	return cfg, true, nil
}

// AppendRunIndex upserts one entry in the run index at baseDir.
func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns the run index entries, newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	path := filepath.Join(baseDir, runIndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

// ExportRunArtifacts copies a run directory into outDir and returns the
// destination path.
func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	for _, file := range []string{"config.json", "summary.json", "metrics.json", "snapshots.csv"} {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	return dst, nil
}

// cellFieldHeader is the fixed per-cell column set shared by the snapshot and
// sweep tables.
var cellFieldHeader = []string{
	"cell_id", "type",
	"pos_x", "pos_y", "apical_x", "apical_y", "basal_x", "basal_y",
	"eta_a", "eta_b",
	"has_apical", "has_basal", "phase",
	"birth_time", "division_time",
	"running_mode", "is_running", "has_inm",
	"time_a", "time_b", "time_s", "time_p",
	"apical_neighbors", "basal_neighbors",
	"curvature_1", "curvature_2",
}

func cellFields(row model.CellRow) []string {
	return []string{
		strconv.Itoa(row.CellID), row.Type,
		formatFloat(row.PosX), formatFloat(row.PosY),
		formatFloat(row.AX), formatFloat(row.AY),
		formatFloat(row.BX), formatFloat(row.BY),
		formatFloat(row.EtaA), formatFloat(row.EtaB),
		strconv.FormatBool(row.HasA), strconv.FormatBool(row.HasB), row.Phase,
		formatFloat(row.BirthTime), formatFloat(row.DivisionTime),
		strconv.Itoa(row.RunningMode),
		strconv.FormatBool(row.IsRunning), strconv.FormatBool(row.HasINM),
		formatFloat(float64(row.TimeA)), formatFloat(float64(row.TimeB)),
		formatFloat(float64(row.TimeS)), formatFloat(float64(row.TimeP)),
		row.ApicalNeighbors, row.BasalNeighbors,
		formatFloat(row.Curvature1), formatFloat(row.Curvature2),
	}
}

func writeSnapshotCSV(path string, snapshots []model.Snapshot) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	header := append([]string{"step", "time_h"}, cellFieldHeader...)
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, snapshot := range snapshots {
		for _, row := range snapshot.Rows {
			record := append([]string{
				strconv.Itoa(snapshot.Step),
				formatFloat(snapshot.TimeH),
			}, cellFields(row)...)
			if err := writer.Write(record); err != nil {
				return err
			}
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteSweepCSV writes the combined sweep table: one row per (run, snapshot,
// cell), prefixed by the sampled override columns, the run index, the seed,
// and the snapshot time.
func WriteSweepCSV(path string, sweep model.SweepRecord, snapshotsByRun map[string][]model.Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	overrides := append([]string(nil), sweep.Overrides...)
	sort.Strings(overrides)

	writer := csv.NewWriter(file)
	header := append(append([]string{}, overrides...), "run_index", "seed", "time_h")
	header = append(header, cellFieldHeader...)
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, run := range sweep.Runs {
		prefix := make([]string, 0, len(overrides)+3)
		for _, key := range overrides {
			prefix = append(prefix, formatFloat(run.Overrides[key]))
		}
		prefix = append(prefix,
			strconv.Itoa(run.RunIndex),
			strconv.FormatInt(run.Seed, 10),
		)
		for _, snapshot := range snapshotsByRun[run.RunID] {
			for _, row := range snapshot.Rows {
				record := append(append([]string{}, prefix...), formatFloat(snapshot.TimeH))
				record = append(record, cellFields(row)...)
				if err := writer.Write(record); err != nil {
					return err
				}
			}
		}
	}
	writer.Flush()
	return writer.Error()
}

// formatFloat mirrors the JSON encoding of non-finite values so the CSV and
// JSON artifacts agree.
func formatFloat(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	case math.IsNaN(v):
		return "nan"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
