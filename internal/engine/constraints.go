package engine

import (
	"github.com/SteffenPL/EHT-sub000/internal/params"
	"github.com/SteffenPL/EHT-sub000/internal/tissue"
)

// epsOrder is the strictness margin restored between reordered basal points.
const epsOrder = 1e-6

// ApplyConstraints runs the position-based corrections in their fixed order,
// iterated, with curve re-projection last in every pass so earlier
// corrections are re-conformed to the manifold.
func ApplyConstraints(st *tissue.State, p *params.Params) {
	iters := p.General.ConstraintIterations
	if iters <= 0 {
		iters = 1
	}
	for it := 0; it < iters; it++ {
		hardSphere(st)
		basalOrdering(st)
		maxBasalJunction(st, p)
		reprojectBasal(st)
	}
}

// hardSphere resolves nucleus overlaps below the combined hard radius by
// moving each cell half the overlap along the connecting line.
func hardSphere(st *tissue.State) {
	for i := 0; i < len(st.Cells); i++ {
		ci := &st.Cells[i]
		for j := i + 1; j < len(st.Cells); j++ {
			cj := &st.Cells[j]
			minDist := ci.RHard + cj.RHard
			d := cj.Pos.Sub(ci.Pos)
			r := d.Norm()
			if r >= minDist {
				continue
			}
			u, ok := d.Unit(epsDist)
			if !ok {
				// Exactly coincident nuclei have no correction direction.
				st.Degeneracies++
				continue
			}
			shift := (minDist - r) / 2
			ci.Pos = ci.Pos.Sub(u.Scale(shift))
			cj.Pos = cj.Pos.Add(u.Scale(shift))
		}
	}
}

// basalOrdering keeps each basal link's endpoints in left-right order along
// the local tangent (the outward normal rotated 90 degrees clockwise) at the
// link midpoint. Violations are corrected symmetrically with a strictness
// margin. Links whose endpoints lost basal adhesion are skipped.
func basalOrdering(st *tissue.State) {
	curve := st.Curve()
	for _, l := range st.Basal {
		cl := &st.Cells[l.L]
		cr := &st.Cells[l.R]
		if !cl.HasB || !cr.HasB {
			continue
		}
		mid := cl.B.Add(cr.B).Scale(0.5)
		tangent := curve.Normal(mid).RotCW()
		sl := cl.B.Sub(mid).Dot(tangent)
		sr := cr.B.Sub(mid).Dot(tangent)
		violation := sl - sr
		if violation < 0 {
			continue
		}
		corr := violation/2 + epsOrder
		cl.B = cl.B.Sub(tangent.Scale(corr))
		cr.B = cr.B.Add(tangent.Scale(corr))
	}
}

// maxBasalJunction clamps basal link lengths to the type-averaged maximum by
// pulling both endpoints toward each other.
func maxBasalJunction(st *tissue.State, p *params.Params) {
	for _, l := range st.Basal {
		cl := &st.Cells[l.L]
		cr := &st.Cells[l.R]
		maxDist := 0.5 * (p.Type(cl.Type).MaxBasalDistance + p.Type(cr.Type).MaxBasalDistance)
		d := cr.B.Sub(cl.B)
		r := d.Norm()
		if r <= maxDist {
			continue
		}
		u, ok := d.Unit(epsDist)
		if !ok {
			st.Degeneracies++
			continue
		}
		pull := (r - maxDist) / 2
		cl.B = cl.B.Add(u.Scale(pull))
		cr.B = cr.B.Sub(u.Scale(pull))
	}
}

// reprojectBasal snaps basal points of adherent cells back onto the curve.
// It must run last so all earlier corrections end on the manifold.
func reprojectBasal(st *tissue.State) {
	curve := st.Curve()
	for i := range st.Cells {
		c := &st.Cells[i]
		if !c.HasB {
			continue
		}
		c.B = curve.Project(c.B)
	}
}
