package tissue

import (
	"math"

	"github.com/SteffenPL/EHT-sub000/internal/geom"
	"github.com/SteffenPL/EHT-sub000/internal/rng"
)

// never marks an event that does not fire for this cell.
var never = math.Inf(1)

// Never is the scheduled time of an event that does not fire.
func Never() float64 { return never }

// ApicalLink is an undirected apical adjacency edge with a spring rest length.
// Endpoints are array indices into State.Cells, valid only within one state.
type ApicalLink struct {
	L    int
	R    int
	Rest float64
}

// BasalLink is an undirected basal adjacency edge. Basal springs are
// rest-length free; the link only carries ordering and distance constraints.
type BasalLink struct {
	L int
	R int
}

// State owns the whole mutable simulation: the cell array, link chains, clock,
// geometry description, and the RNG cursor. The engine mutates it in place;
// readers must copy before holding it across a step.
type State struct {
	Cells  []Cell
	Apical []ApicalLink
	Basal  []BasalLink

	T         float64
	StepCount int
	NextID    int

	Geometry geom.Curvatures
	RNG      *rng.Stream

	// Degeneracies counts epsilon-guarded numerical skips (zero-length
	// vectors, coincident points). They are reported, never raised.
	Degeneracies int

	curve *geom.Curve
}

// Curve rehydrates geometry behavior from the raw curvatures. The service is
// cached but never serialized; a state restored from a snapshot rebuilds it on
// first use.
func (s *State) Curve() *geom.Curve {
	if s.curve == nil || s.curve.Curvatures() != s.Geometry {
		s.curve = geom.NewCurve(s.Geometry)
	}
	return s.curve
}

// AllocateID returns a fresh unique cell id.
func (s *State) AllocateID() int {
	id := s.NextID
	s.NextID++
	return id
}

// IndexByID maps stable cell ids to current array indices.
func (s *State) IndexByID() map[int]int {
	m := make(map[int]int, len(s.Cells))
	for i := range s.Cells {
		m[s.Cells[i].ID] = i
	}
	return m
}

// ApicalNeighbors returns the indices apically linked to cell i.
func (s *State) ApicalNeighbors(i int) []int {
	var out []int
	for _, l := range s.Apical {
		if l.L == i {
			out = append(out, l.R)
		} else if l.R == i {
			out = append(out, l.L)
		}
	}
	return out
}

// BasalNeighbors returns the indices basally linked to cell i.
func (s *State) BasalNeighbors(i int) []int {
	var out []int
	for _, l := range s.Basal {
		if l.L == i {
			out = append(out, l.R)
		} else if l.R == i {
			out = append(out, l.L)
		}
	}
	return out
}

// SpliceApical removes cell i from the apical chain. With one incident link
// the link is dropped; with two, both are replaced by a direct link between
// the former neighbors whose rest length is their current apical distance.
func (s *State) SpliceApical(i int) {
	neighbors := make([]int, 0, 2)
	kept := s.Apical[:0]
	for _, l := range s.Apical {
		if l.L == i {
			neighbors = append(neighbors, l.R)
			continue
		}
		if l.R == i {
			neighbors = append(neighbors, l.L)
			continue
		}
		kept = append(kept, l)
	}
	s.Apical = kept
	if len(neighbors) == 2 {
		rest := s.Cells[neighbors[0]].A.Dist(s.Cells[neighbors[1]].A)
		s.Apical = append(s.Apical, ApicalLink{L: neighbors[0], R: neighbors[1], Rest: rest})
	}
}

// SpliceBasal removes cell i from the basal chain, reconnecting its former
// neighbors directly when it had two links.
func (s *State) SpliceBasal(i int) {
	neighbors := make([]int, 0, 2)
	kept := s.Basal[:0]
	for _, l := range s.Basal {
		if l.L == i {
			neighbors = append(neighbors, l.R)
			continue
		}
		if l.R == i {
			neighbors = append(neighbors, l.L)
			continue
		}
		kept = append(kept, l)
	}
	s.Basal = kept
	if len(neighbors) == 2 {
		s.Basal = append(s.Basal, BasalLink{L: neighbors[0], R: neighbors[1]})
	}
}

// Clone returns a deep copy sharing nothing mutable with s. The RNG cursor is
// copied, so the clone continues the same stochastic stream.
func (s *State) Clone() *State {
	out := &State{
		Cells:        append([]Cell(nil), s.Cells...),
		Apical:       append([]ApicalLink(nil), s.Apical...),
		Basal:        append([]BasalLink(nil), s.Basal...),
		T:            s.T,
		StepCount:    s.StepCount,
		NextID:       s.NextID,
		Geometry:     s.Geometry,
		Degeneracies: s.Degeneracies,
	}
	if s.RNG != nil {
		out.RNG = rng.Restore(s.RNG.State())
	}
	return out
}
