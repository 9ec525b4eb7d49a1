package engine

import (
	"fmt"
	"math"

	"github.com/SteffenPL/EHT-sub000/internal/geom"
	"github.com/SteffenPL/EHT-sub000/internal/params"
	"github.com/SteffenPL/EHT-sub000/internal/rng"
	"github.com/SteffenPL/EHT-sub000/internal/tissue"
)

// Init builds the initial tissue: curve geometry from perimeter and aspect
// ratio, cells distributed over normalized slots on [-1, 1] honoring per-type
// placement constraints, and chain links between spatial neighbors.
// Deterministic for a given (params, seed).
func Init(p *params.Params, seed int64) (*tissue.State, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	curv, err := geom.SolveCurvatures(p.General.Perimeter, p.General.AspectRatio)
	if err != nil {
		return nil, err
	}

	st := &tissue.State{
		Geometry: curv,
		RNG:      rng.New(seed),
	}
	curve := st.Curve()

	total := p.TotalInit()
	slots := make([]float64, total)
	for i := range slots {
		slots[i] = -1 + 2*float64(i)/float64(total)
	}
	typeBySlot, err := assignSlots(p, slots, curve.Closed())
	if err != nil {
		return nil, err
	}

	h := p.General.Height
	for i, u := range slots {
		typeIdx := typeBySlot[i]
		ct := p.Type(typeIdx)
		c := tissue.NewCell(st.AllocateID(), typeIdx, ct, 0, st.RNG)

		s := normalizedToArc(u, p, curve)
		height := st.RNG.Range(h/3, 2*h/3)
		c.B = curve.CurvedToCartesian(s, 0)
		c.Pos = curve.CurvedToCartesian(s, height)
		c.A = curve.CurvedToCartesian(s, h)
		st.Cells = append(st.Cells, c)
	}

	for i := 0; i+1 < total; i++ {
		st.Apical = append(st.Apical, tissue.ApicalLink{
			L: i, R: i + 1, Rest: st.Cells[i].A.Dist(st.Cells[i+1].A),
		})
		st.Basal = append(st.Basal, tissue.BasalLink{L: i, R: i + 1})
	}
	if p.General.FullCircle && curve.Closed() && total > 2 {
		st.Apical = append(st.Apical, tissue.ApicalLink{
			L: total - 1, R: 0, Rest: st.Cells[total-1].A.Dist(st.Cells[0].A),
		})
		st.Basal = append(st.Basal, tissue.BasalLink{L: total - 1, R: 0})
	}

	UpdateRunning(st, p)
	return st, nil
}

// assignSlots distributes cell types over the normalized slots: constrained
// types greedily claim the closest free slots (wraparound aware on closed
// curves), the rest are filled round-robin by unconstrained types in
// declaration order.
func assignSlots(p *params.Params, slots []float64, closed bool) ([]int, error) {
	assigned := make([]int, len(slots))
	for i := range assigned {
		assigned[i] = -1
	}

	dist := func(a, b float64) float64 {
		d := math.Abs(a - b)
		if closed && 2-d < d {
			d = 2 - d
		}
		return d
	}

	for typeIdx := range p.Types {
		ct := &p.Types[typeIdx]
		target, constrained, err := ct.LocationTarget()
		if err != nil {
			return nil, err
		}
		if !constrained {
			continue
		}
		for placed := 0; placed < ct.NInit; placed++ {
			best := -1
			bestD := math.Inf(1)
			for i := range slots {
				if assigned[i] >= 0 {
					continue
				}
				if d := dist(slots[i], target); d < bestD {
					bestD = d
					best = i
				}
			}
			if best < 0 {
				return nil, fmt.Errorf("no free slot for constrained type %s", ct.Name)
			}
			assigned[best] = typeIdx
		}
	}

	remaining := make([]int, 0, len(p.Types))
	counts := make([]int, len(p.Types))
	for typeIdx := range p.Types {
		if _, constrained, _ := p.Types[typeIdx].LocationTarget(); constrained {
			continue
		}
		remaining = append(remaining, typeIdx)
		counts[typeIdx] = p.Types[typeIdx].NInit
	}

	next := 0
	for i := range slots {
		if assigned[i] >= 0 {
			continue
		}
		placed := false
		for tries := 0; tries < len(remaining); tries++ {
			typeIdx := remaining[next%len(remaining)]
			next++
			if counts[typeIdx] > 0 {
				counts[typeIdx]--
				assigned[i] = typeIdx
				placed = true
				break
			}
		}
		if !placed {
			return nil, fmt.Errorf("slot %d has no remaining unconstrained cells", i)
		}
	}
	return assigned, nil
}

// normalizedToArc maps a normalized position in [-1, 1] to an arc-length
// position: the fraction of the perimeter on closed curves, a centered strip
// coordinate on straight lines.
func normalizedToArc(u float64, p *params.Params, curve *geom.Curve) float64 {
	if curve.Closed() {
		return (u + 1) / 2 * curve.Perimeter()
	}
	return u * p.General.Perimeter / 2
}
