// Package model defines the versioned record shapes persisted by the stores
// and written into run artifacts.
package model

import (
	"fmt"
	"math"
	"strconv"
)

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// JSONFloat is a float64 that survives JSON round trips for the non-finite
// values simulations legitimately produce: infinite event times ("never") and
// NaN statistics.
type JSONFloat float64

func (f JSONFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	switch {
	case math.IsInf(v, 1):
		return []byte(`"inf"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-inf"`), nil
	case math.IsNaN(v):
		return []byte(`"nan"`), nil
	}
	return []byte(strconv.FormatFloat(v, 'g', -1, 64)), nil
}

func (f *JSONFloat) UnmarshalJSON(data []byte) error {
	s := string(data)
	switch s {
	case `"inf"`:
		*f = JSONFloat(math.Inf(1))
		return nil
	case `"-inf"`:
		*f = JSONFloat(math.Inf(-1))
		return nil
	case `"nan"`:
		*f = JSONFloat(math.NaN())
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parse float %s: %w", s, err)
	}
	*f = JSONFloat(v)
	return nil
}

// CellRow is the flattened per-cell snapshot record. Rows carry everything a
// load needs to rebuild a state: geometry curvatures, the RNG cursor, stable
// ids, and delimited neighbor-id lists (links are re-resolved id to index on
// load).
type CellRow struct {
	CellID int     `json:"cell_id"`
	Type   string  `json:"type"`
	TimeH  float64 `json:"time_h"`

	PosX float64 `json:"pos_x"`
	PosY float64 `json:"pos_y"`
	AX   float64 `json:"apical_x"`
	AY   float64 `json:"apical_y"`
	BX   float64 `json:"basal_x"`
	BY   float64 `json:"basal_y"`

	EtaA float64 `json:"eta_a"`
	EtaB float64 `json:"eta_b"`

	HasA  bool   `json:"has_apical"`
	HasB  bool   `json:"has_basal"`
	Phase string `json:"phase"`

	BirthTime    float64 `json:"birth_time"`
	DivisionTime float64 `json:"division_time"`

	RunningMode int  `json:"running_mode"`
	IsRunning   bool `json:"is_running"`
	HasINM      bool `json:"has_inm"`

	TimeA JSONFloat `json:"time_a"`
	TimeB JSONFloat `json:"time_b"`
	TimeS JSONFloat `json:"time_s"`
	TimeP JSONFloat `json:"time_p"`

	ApicalNeighbors string `json:"apical_neighbors"`
	BasalNeighbors  string `json:"basal_neighbors"`

	Curvature1 float64 `json:"curvature_1"`
	Curvature2 float64 `json:"curvature_2"`
	RNGState   string  `json:"rng_state"`
}

// Snapshot is a persisted per-timepoint table of cell rows.
type Snapshot struct {
	VersionedRecord
	RunID string    `json:"run_id"`
	Step  int       `json:"step"`
	TimeH float64   `json:"time_h"`
	Rows  []CellRow `json:"rows"`
}

// RunRecord summarizes one completed simulation run.
type RunRecord struct {
	VersionedRecord
	RunID        string `json:"run_id"`
	Model        string `json:"model"`
	Seed         int64  `json:"seed"`
	CreatedAtUTC string `json:"created_at_utc"`

	TimeH        float64 `json:"time_h"`
	Steps        int     `json:"steps"`
	CellCount    int     `json:"cell_count"`
	Degeneracies int     `json:"degeneracies"`
}

// MetricsPoint is one timepoint of the per-run statistics series.
type MetricsPoint struct {
	TimeH  float64              `json:"time_h"`
	Values map[string]JSONFloat `json:"values"`
}

// SweepRecord is the manifest of a parameter sweep batch.
type SweepRecord struct {
	VersionedRecord
	SweepID      string            `json:"sweep_id"`
	Model        string            `json:"model"`
	CreatedAtUTC string            `json:"created_at_utc"`
	Overrides    []string          `json:"overrides"`
	Runs         []SweepRunSummary `json:"runs"`
}

// SweepRunSummary identifies one run inside a sweep batch.
type SweepRunSummary struct {
	RunIndex  int                `json:"run_index"`
	RunID     string             `json:"run_id"`
	Seed      int64              `json:"seed"`
	Overrides map[string]float64 `json:"overrides"`
	CellCount int                `json:"cell_count"`
}
