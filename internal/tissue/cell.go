// Package tissue holds the mutable simulation data model: cells, adjacency
// links, and the per-run state capsule the engine mutates in place.
package tissue

import (
	"github.com/SteffenPL/EHT-sub000/internal/geom"
	"github.com/SteffenPL/EHT-sub000/internal/params"
	"github.com/SteffenPL/EHT-sub000/internal/rng"
)

// Phase is the cell-cycle phase, ordered by progression.
type Phase int

const (
	PhaseG1 Phase = iota
	PhaseG2
	PhaseMitosis
	PhaseDivision
)

func (p Phase) String() string {
	switch p {
	case PhaseG1:
		return "G1"
	case PhaseG2:
		return "G2"
	case PhaseMitosis:
		return "M"
	case PhaseDivision:
		return "D"
	}
	return "?"
}

// ParsePhase maps a snapshot label back to a phase. Unknown labels resolve to
// G1.
func ParsePhase(s string) Phase {
	switch s {
	case "G2":
		return PhaseG2
	case "M":
		return PhaseMitosis
	case "D":
		return PhaseDivision
	}
	return PhaseG1
}

// PhaseAt is a pure function of the clock and the cell's scheduled division.
func PhaseAt(t, divisionTime, durG2, durMitosis float64) Phase {
	switch {
	case t >= divisionTime:
		return PhaseDivision
	case t >= divisionTime-durMitosis:
		return PhaseMitosis
	case t >= divisionTime-durMitosis-durG2:
		return PhaseG2
	default:
		return PhaseG1
	}
}

// Cell is one point agent: a nucleus with apical and basal attachment points
// connected by elastic cytoskeletal constraints.
type Cell struct {
	ID   int
	Type int

	Pos geom.Vec
	A   geom.Vec
	B   geom.Vec

	RSoft float64
	RHard float64
	EtaA  float64
	EtaB  float64

	HasA bool
	HasB bool

	BirthTime    float64
	DivisionTime float64

	IsRunning   bool
	RunningMode int
	HasINM      bool

	// Scheduled event times; +Inf means the event never fires.
	TimeA float64
	TimeB float64
	TimeS float64
	TimeP float64

	// Stiffness coefficients change discretely at event times.
	StiffApical   float64
	StiffBasal    float64
	StiffStraight float64
}

// Phase returns the cell-cycle phase at time t.
func (c *Cell) Phase(t float64, ct *params.CellType) Phase {
	return PhaseAt(t, c.DivisionTime, ct.DurG2, ct.DurMitosis)
}

// RestA is the apical cytoskeletal rest length.
func (c *Cell) RestA(ct *params.CellType) float64 {
	if ct.RestUseHardRadius {
		return c.EtaA + c.RHard
	}
	return c.EtaA + c.RSoft
}

// RestB is the basal cytoskeletal rest length.
func (c *Cell) RestB(ct *params.CellType) float64 {
	if ct.RestUseHardRadius {
		return c.EtaB + c.RHard
	}
	return c.EtaB + c.RSoft
}

// NewCell builds a fresh cell of the given type at time t. Positions are left
// zero; the caller places the cell. Event times are sampled once, here.
func NewCell(id, typeIndex int, ct *params.CellType, t float64, r *rng.Stream) Cell {
	c := Cell{
		ID:            id,
		Type:          typeIndex,
		RSoft:         ct.RSoft,
		RHard:         ct.RHard,
		EtaA:          r.Range(ct.EtaA.Min, ct.EtaA.Max),
		EtaB:          r.Range(ct.EtaB.Min, ct.EtaB.Max),
		HasA:          true,
		HasB:          true,
		BirthTime:     t,
		DivisionTime:  t + r.Range(ct.Lifespan.Min, ct.Lifespan.Max),
		RunningMode:   ct.RunningMode,
		HasINM:        ct.HasINM,
		StiffApical:   ct.StiffnessNucleiApical,
		StiffBasal:    ct.StiffnessNucleiBasal,
		StiffStraight: ct.StiffnessStraightness,
	}
	c.TimeA = sampleEvent(ct.LoseApical, t, r)
	c.TimeB = sampleEvent(ct.LoseBasal, t, r)
	c.TimeS = sampleEvent(ct.LoseStraightness, t, r)
	c.TimeP = sampleEvent(ct.StartRunning, t, r)
	return c
}

// Divide builds a daughter cell from parent at time t. The daughter inherits
// the parent's dynamic state (adhesion, running, event times, cytoskeleton
// offsets, stiffness) and restarts the cell cycle with a fresh lifespan.
func Divide(parent *Cell, id int, ct *params.CellType, t float64, r *rng.Stream) Cell {
	c := *parent
	c.ID = id
	c.BirthTime = t
	c.DivisionTime = t + r.Range(ct.Lifespan.Min, ct.Lifespan.Max)
	return c
}

func sampleEvent(ev params.Event, t float64, r *rng.Stream) float64 {
	if ev.Time == nil {
		return never
	}
	v := r.RangeOrNever(ev.Time.Min, ev.Time.Max, ev.Hetero)
	if v == never {
		return never
	}
	return t + v
}
