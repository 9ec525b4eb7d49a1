// Package params holds the immutable per-run parameter tables for the tissue
// simulator. Parameters are loaded and validated before any simulation step
// runs; the engine only ever reads them.
package params

import (
	"fmt"
	"strconv"
)

// Range is a closed-open sampling interval.
type Range struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// Event configures one stochastic per-cell transition. A nil Time means the
// event never fires; Hetero is the probability that an individual cell is
// exempt from the event entirely.
type Event struct {
	Time   *Range  `json:"time,omitempty" yaml:"time,omitempty"`
	Hetero float64 `json:"hetero" yaml:"hetero"`
}

// General carries the run-level simulation parameters.
type General struct {
	TEnd                 float64 `json:"t_end" yaml:"t_end"`
	Dt                   float64 `json:"dt" yaml:"dt"`
	NSubsteps            int     `json:"n_substeps" yaml:"n_substeps"`
	Mu                   float64 `json:"mu" yaml:"mu"`
	Perimeter            float64 `json:"perimeter" yaml:"perimeter"`
	AspectRatio          float64 `json:"aspect_ratio" yaml:"aspect_ratio"`
	FullCircle           bool    `json:"full_circle" yaml:"full_circle"`
	Height               float64 `json:"height" yaml:"height"`
	ConstraintIterations int     `json:"constraint_iterations" yaml:"constraint_iterations"`
}

// AlgDt is the physics substep size.
func (g General) AlgDt() float64 {
	if g.NSubsteps <= 0 {
		return g.Dt
	}
	return g.Dt / float64(g.NSubsteps)
}

// CellType is the parameter table for one cell population.
type CellType struct {
	Name  string `json:"name" yaml:"name"`
	NInit int    `json:"n_init" yaml:"n_init"`

	RSoft float64 `json:"r_soft" yaml:"r_soft"`
	RHard float64 `json:"r_hard" yaml:"r_hard"`

	Lifespan   Range   `json:"lifespan" yaml:"lifespan"`
	DurG2      float64 `json:"dur_g2" yaml:"dur_g2"`
	DurMitosis float64 `json:"dur_mitosis" yaml:"dur_mitosis"`

	EtaA Range `json:"eta_a" yaml:"eta_a"`
	EtaB Range `json:"eta_b" yaml:"eta_b"`
	// RestUseHardRadius selects which radius extends the cytoskeletal rest
	// length on top of eta.
	RestUseHardRadius bool `json:"rest_use_hard_radius" yaml:"rest_use_hard_radius"`

	Repulsion             float64 `json:"repulsion" yaml:"repulsion"`
	StiffnessNucleiApical float64 `json:"stiffness_nuclei_apical" yaml:"stiffness_nuclei_apical"`
	StiffnessNucleiBasal  float64 `json:"stiffness_nuclei_basal" yaml:"stiffness_nuclei_basal"`
	StiffnessStraightness float64 `json:"stiffness_straightness" yaml:"stiffness_straightness"`
	StiffnessApicalApical float64 `json:"stiffness_apical_apical" yaml:"stiffness_apical_apical"`
	MaxBasalDistance      float64 `json:"max_basal_distance" yaml:"max_basal_distance"`

	RunningFloor float64 `json:"running_floor" yaml:"running_floor"`
	RunningMode  int     `json:"running_mode" yaml:"running_mode"`
	HasINM       bool    `json:"has_inm" yaml:"has_inm"`

	LoseApical       Event `json:"lose_apical" yaml:"lose_apical"`
	LoseBasal        Event `json:"lose_basal" yaml:"lose_basal"`
	LoseStraightness Event `json:"lose_straightness" yaml:"lose_straightness"`
	StartRunning     Event `json:"start_running" yaml:"start_running"`

	// Location constrains initial placement: "", "top", "bottom", or a
	// numeric normalized position in [-1, 1].
	Location string `json:"location,omitempty" yaml:"location,omitempty"`
}

// LocationTarget resolves the placement constraint into a normalized position.
// The second return is false for unconstrained types.
func (ct CellType) LocationTarget() (float64, bool, error) {
	switch ct.Location {
	case "":
		return 0, false, nil
	case "top":
		return 0, true, nil
	case "bottom":
		return 1, true, nil
	}
	v, err := strconv.ParseFloat(ct.Location, 64)
	if err != nil {
		return 0, false, fmt.Errorf("location %q is not top, bottom, or numeric", ct.Location)
	}
	if v < -1 || v > 1 {
		return 0, false, fmt.Errorf("location %g outside [-1, 1]", v)
	}
	return v, true, nil
}

// Params is the full immutable parameter set of one run.
type Params struct {
	General General    `json:"general" yaml:"general"`
	Types   []CellType `json:"cell_types" yaml:"cell_types"`
}

// TypeIndex resolves a type name to its table index. Unknown names fall back
// to the first declared type rather than failing the run.
func (p *Params) TypeIndex(name string) int {
	for i := range p.Types {
		if p.Types[i].Name == name {
			return i
		}
	}
	return 0
}

// Type returns the table entry at index i, falling back to the first declared
// type for out-of-range indices.
func (p *Params) Type(i int) *CellType {
	if i < 0 || i >= len(p.Types) {
		return &p.Types[0]
	}
	return &p.Types[i]
}

// TotalInit is the initial cell count summed over all types.
func (p *Params) TotalInit() int {
	total := 0
	for i := range p.Types {
		total += p.Types[i].NInit
	}
	return total
}

// Validate checks the parameter set and reports the first offending field.
// It must pass before a simulation is constructed.
func (p *Params) Validate() error {
	g := p.General
	if g.TEnd <= 0 {
		return fmt.Errorf("general.t_end must be > 0, got %g", g.TEnd)
	}
	if g.Dt <= 0 {
		return fmt.Errorf("general.dt must be > 0, got %g", g.Dt)
	}
	if g.NSubsteps <= 0 {
		return fmt.Errorf("general.n_substeps must be > 0, got %d", g.NSubsteps)
	}
	if g.Mu <= 0 {
		return fmt.Errorf("general.mu must be > 0, got %g", g.Mu)
	}
	if g.AspectRatio != 0 && g.Perimeter <= 0 {
		return fmt.Errorf("general.perimeter must be > 0 for curved geometry, got %g", g.Perimeter)
	}
	if g.AspectRatio == 0 && g.Perimeter <= 0 {
		return fmt.Errorf("general.perimeter sets the strip length and must be > 0, got %g", g.Perimeter)
	}
	if g.Height <= 0 {
		return fmt.Errorf("general.height must be > 0, got %g", g.Height)
	}
	if g.ConstraintIterations <= 0 {
		return fmt.Errorf("general.constraint_iterations must be > 0, got %d", g.ConstraintIterations)
	}
	if len(p.Types) == 0 {
		return fmt.Errorf("at least one cell type is required")
	}
	seen := make(map[string]struct{}, len(p.Types))
	for i := range p.Types {
		ct := &p.Types[i]
		path := fmt.Sprintf("cell_types[%d]", i)
		if ct.Name == "" {
			return fmt.Errorf("%s.name is required", path)
		}
		if _, dup := seen[ct.Name]; dup {
			return fmt.Errorf("%s.name duplicates %q", path, ct.Name)
		}
		seen[ct.Name] = struct{}{}
		if ct.NInit < 0 {
			return fmt.Errorf("%s.n_init must be >= 0, got %d", path, ct.NInit)
		}
		if ct.RSoft <= 0 || ct.RHard <= 0 {
			return fmt.Errorf("%s radii must be > 0, got r_soft=%g r_hard=%g", path, ct.RSoft, ct.RHard)
		}
		if ct.RHard > ct.RSoft {
			return fmt.Errorf("%s.r_hard must not exceed r_soft", path)
		}
		if err := validateRange(path+".lifespan", ct.Lifespan); err != nil {
			return err
		}
		if ct.Lifespan.Min <= ct.DurG2+ct.DurMitosis {
			return fmt.Errorf("%s.lifespan.min must exceed dur_g2 + dur_mitosis", path)
		}
		if ct.DurG2 < 0 || ct.DurMitosis < 0 {
			return fmt.Errorf("%s phase durations must be >= 0", path)
		}
		if err := validateRange(path+".eta_a", ct.EtaA); err != nil {
			return err
		}
		if err := validateRange(path+".eta_b", ct.EtaB); err != nil {
			return err
		}
		if ct.MaxBasalDistance <= 0 {
			return fmt.Errorf("%s.max_basal_distance must be > 0, got %g", path, ct.MaxBasalDistance)
		}
		if ct.RunningMode < 0 || ct.RunningMode > 3 {
			return fmt.Errorf("%s.running_mode must be in [0, 3], got %d", path, ct.RunningMode)
		}
		for _, ev := range []struct {
			name  string
			event Event
		}{
			{"lose_apical", ct.LoseApical},
			{"lose_basal", ct.LoseBasal},
			{"lose_straightness", ct.LoseStraightness},
			{"start_running", ct.StartRunning},
		} {
			if ev.event.Hetero < 0 || ev.event.Hetero > 1 {
				return fmt.Errorf("%s.%s.hetero must be in [0, 1], got %g", path, ev.name, ev.event.Hetero)
			}
			if ev.event.Time != nil {
				if err := validateRange(path+"."+ev.name+".time", *ev.event.Time); err != nil {
					return err
				}
			}
		}
		if _, _, err := ct.LocationTarget(); err != nil {
			return fmt.Errorf("%s.location: %w", path, err)
		}
	}
	if p.TotalInit() <= 0 {
		return fmt.Errorf("total n_init over all cell types must be > 0")
	}
	return nil
}

func validateRange(path string, r Range) error {
	if r.Max < r.Min {
		return fmt.Errorf("%s: max %g below min %g", path, r.Max, r.Min)
	}
	return nil
}

// Default returns the baseline two-population parameter set used when no
// configuration file is given.
func Default() Params {
	return Params{
		General: General{
			TEnd:                 24,
			Dt:                   0.1,
			NSubsteps:            10,
			Mu:                   1,
			Perimeter:            50,
			AspectRatio:          2,
			FullCircle:           true,
			Height:               3,
			ConstraintIterations: 4,
		},
		Types: []CellType{
			{
				Name:                  "progenitor",
				NInit:                 20,
				RSoft:                 1.2,
				RHard:                 0.6,
				Lifespan:              Range{Min: 10, Max: 16},
				DurG2:                 1,
				DurMitosis:            0.5,
				EtaA:                  Range{Min: 0.2, Max: 0.4},
				EtaB:                  Range{Min: 0.2, Max: 0.4},
				Repulsion:             2,
				StiffnessNucleiApical: 5,
				StiffnessNucleiBasal:  5,
				StiffnessStraightness: 20,
				StiffnessApicalApical: 3,
				MaxBasalDistance:      2.5,
				RunningFloor:          0.1,
				HasINM:                true,
			},
			{
				Name:                  "hemogenic",
				NInit:                 5,
				RSoft:                 1.2,
				RHard:                 0.6,
				Lifespan:              Range{Min: 12, Max: 20},
				DurG2:                 1,
				DurMitosis:            0.5,
				EtaA:                  Range{Min: 0.2, Max: 0.4},
				EtaB:                  Range{Min: 0.2, Max: 0.4},
				Repulsion:             2,
				StiffnessNucleiApical: 5,
				StiffnessNucleiBasal:  5,
				StiffnessStraightness: 20,
				StiffnessApicalApical: 3,
				MaxBasalDistance:      2.5,
				RunningFloor:          0.1,
				Location:              "bottom",
				LoseApical:            Event{Time: &Range{Min: 4, Max: 12}, Hetero: 0.2},
				LoseBasal:             Event{Time: &Range{Min: 8, Max: 18}, Hetero: 0.2},
				LoseStraightness:      Event{Time: &Range{Min: 4, Max: 12}, Hetero: 0.2},
				StartRunning:          Event{Time: &Range{Min: 10, Max: 20}, Hetero: 0.3},
			},
		},
	}
}
