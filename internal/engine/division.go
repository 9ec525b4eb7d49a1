package engine

import (
	"github.com/SteffenPL/EHT-sub000/internal/params"
	"github.com/SteffenPL/EHT-sub000/internal/tissue"
)

// ProcessDivisions spawns a daughter for every cell that reached the Division
// phase. The daughter inherits the parent's dynamic state, is placed one hard
// radius along the local tangent, and is spliced into the apical and basal
// chains next to the parent. Both daughters restart the cell cycle.
func ProcessDivisions(st *tissue.State, p *params.Params) {
	curve := st.Curve()
	n := len(st.Cells)
	for i := 0; i < n; i++ {
		parent := &st.Cells[i]
		ct := p.Type(parent.Type)
		if parent.Phase(st.T, ct) != tissue.PhaseDivision {
			continue
		}

		child := tissue.Divide(parent, st.AllocateID(), ct, st.T, st.RNG)
		offset := curve.Normal(parent.B).RotCW().Scale(parent.RHard)
		child.Pos = parent.Pos.Add(offset)
		child.A = parent.A.Add(offset)
		child.B = parent.B.Add(offset)

		parent.BirthTime = st.T
		parent.DivisionTime = st.T + st.RNG.Range(ct.Lifespan.Min, ct.Lifespan.Max)

		childIdx := len(st.Cells)
		st.Cells = append(st.Cells, child)
		parent = &st.Cells[i] // append may have moved the backing array

		if parent.HasA && child.HasA {
			st.Apical = spliceChildApical(st, i, childIdx)
		}
		if parent.HasB && child.HasB {
			st.Basal = spliceChildBasal(st, i, childIdx)
		}
	}
}

// spliceChildApical inserts the child between the parent and one apical
// neighbor, or links the pair directly when the parent has no apical links.
// New rest lengths are the measured apical distances.
func spliceChildApical(st *tissue.State, parentIdx, childIdx int) []tissue.ApicalLink {
	links := st.Apical
	for k := range links {
		l := links[k]
		if l.L != parentIdx && l.R != parentIdx {
			continue
		}
		neighbor := l.L
		if l.L == parentIdx {
			neighbor = l.R
		}
		links[k] = tissue.ApicalLink{
			L:    parentIdx,
			R:    childIdx,
			Rest: st.Cells[parentIdx].A.Dist(st.Cells[childIdx].A),
		}
		return append(links, tissue.ApicalLink{
			L:    childIdx,
			R:    neighbor,
			Rest: st.Cells[childIdx].A.Dist(st.Cells[neighbor].A),
		})
	}
	return append(links, tissue.ApicalLink{
		L:    parentIdx,
		R:    childIdx,
		Rest: st.Cells[parentIdx].A.Dist(st.Cells[childIdx].A),
	})
}

// spliceChildBasal mirrors spliceChildApical on the rest-length-free basal
// chain.
func spliceChildBasal(st *tissue.State, parentIdx, childIdx int) []tissue.BasalLink {
	links := st.Basal
	for k := range links {
		l := links[k]
		if l.L != parentIdx && l.R != parentIdx {
			continue
		}
		neighbor := l.L
		if l.L == parentIdx {
			neighbor = l.R
		}
		links[k] = tissue.BasalLink{L: parentIdx, R: childIdx}
		return append(links, tissue.BasalLink{L: childIdx, R: neighbor})
	}
	return append(links, tissue.BasalLink{L: parentIdx, R: childIdx})
}
