// Package engine implements the tissue simulation: per-substep force
// computation, position-based constraint projection, stochastic event
// processing, division, initialization, snapshots, and per-type statistics.
// Models are exposed through an explicit registry; nothing registers itself on
// import.
package engine

import (
	"github.com/SteffenPL/EHT-sub000/internal/geom"
	"github.com/SteffenPL/EHT-sub000/internal/params"
	"github.com/SteffenPL/EHT-sub000/internal/tissue"
)

// epsDist guards every division by an inter-point distance. Pairs closer than
// this are treated as degenerate: the term is skipped and counted, never
// raised (transient overlaps must not crash a run).
const epsDist = 1e-9

// Force is the accumulated force triple acting on one cell.
type Force struct {
	Nucleus geom.Vec
	Apical  geom.Vec
	Basal   geom.Vec
}

// ComputeForces evaluates all force contributions into out, which is resized
// as needed and returned. The state is read, never written, except for the
// degeneracy counter.
func ComputeForces(st *tissue.State, p *params.Params, out []Force) []Force {
	n := len(st.Cells)
	if cap(out) < n {
		out = make([]Force, n)
	}
	out = out[:n]
	for i := range out {
		out[i] = Force{}
	}

	repulsionForces(st, p, out)
	cytoskeletonForces(st, p, out)
	straightnessForces(st, out)
	junctionForces(st, p, out)
	return out
}

// repulsionForces pushes overlapping soft spheres apart. The magnitude decays
// with distance and vanishes at the combined soft radius.
func repulsionForces(st *tissue.State, p *params.Params, out []Force) {
	for i := 0; i < len(st.Cells); i++ {
		ci := &st.Cells[i]
		for j := i + 1; j < len(st.Cells); j++ {
			cj := &st.Cells[j]
			reach := ci.RSoft + cj.RSoft
			d := cj.Pos.Sub(ci.Pos)
			r := d.Norm()
			if r >= reach {
				continue
			}
			u, ok := d.Unit(epsDist)
			if !ok {
				st.Degeneracies++
				continue
			}
			k := p.Type(ci.Type).Repulsion + p.Type(cj.Type).Repulsion
			mag := k * (reach/r - 1)
			out[i].Nucleus = out[i].Nucleus.Sub(u.Scale(mag))
			out[j].Nucleus = out[j].Nucleus.Add(u.Scale(mag))
		}
	}
}

// cytoskeletonForces applies the linear nucleus-apical and nucleus-basal
// springs with per-cell rest lengths.
func cytoskeletonForces(st *tissue.State, p *params.Params, out []Force) {
	for i := range st.Cells {
		c := &st.Cells[i]
		ct := p.Type(c.Type)

		if f, ok := springForce(st, c.A.Sub(c.Pos), c.StiffApical, c.RestA(ct)); ok {
			out[i].Nucleus = out[i].Nucleus.Add(f)
			out[i].Apical = out[i].Apical.Sub(f)
		}
		if f, ok := springForce(st, c.B.Sub(c.Pos), c.StiffBasal, c.RestB(ct)); ok {
			out[i].Nucleus = out[i].Nucleus.Add(f)
			out[i].Basal = out[i].Basal.Sub(f)
		}
	}
}

func springForce(st *tissue.State, d geom.Vec, stiffness, rest float64) (geom.Vec, bool) {
	r := d.Norm()
	u, ok := d.Unit(epsDist)
	if !ok {
		st.Degeneracies++
		return geom.Vec{}, false
	}
	return u.Scale(stiffness * (r - rest)), true
}

// straightnessForces penalizes the nucleus leaving the apical-basal chord.
// The residual is the sum of the unit arm vectors, whose magnitude is tied to
// their dot product (|u+v|^2 = 2+2*u.v); it vanishes when the arms are
// antiparallel.
func straightnessForces(st *tissue.State, out []Force) {
	for i := range st.Cells {
		c := &st.Cells[i]
		u, okU := c.A.Sub(c.Pos).Unit(epsDist)
		v, okV := c.B.Sub(c.Pos).Unit(epsDist)
		if !okU || !okV {
			st.Degeneracies++
			continue
		}
		f := u.Add(v).Scale(c.StiffStraight)
		out[i].Nucleus = out[i].Nucleus.Add(f)
		out[i].Apical = out[i].Apical.Sub(f.Scale(0.5))
		out[i].Basal = out[i].Basal.Sub(f.Scale(0.5))
	}
}

// junctionForces applies the apical-junction springs along apical links with
// the stored rest length and type-averaged stiffness.
func junctionForces(st *tissue.State, p *params.Params, out []Force) {
	for _, l := range st.Apical {
		cl := &st.Cells[l.L]
		cr := &st.Cells[l.R]
		d := cr.A.Sub(cl.A)
		r := d.Norm()
		u, ok := d.Unit(epsDist)
		if !ok {
			st.Degeneracies++
			continue
		}
		k := 0.5 * (p.Type(cl.Type).StiffnessApicalApical + p.Type(cr.Type).StiffnessApicalApical)
		f := u.Scale(k * (r - l.Rest))
		out[l.L].Apical = out[l.L].Apical.Add(f)
		out[l.R].Apical = out[l.R].Apical.Sub(f)
	}
}

// Integrate advances all cell points by one overdamped Euler substep,
// dx = F*dt/mu.
func Integrate(st *tissue.State, forces []Force, dt, mu float64) {
	scale := dt / mu
	for i := range st.Cells {
		c := &st.Cells[i]
		c.Pos = c.Pos.Add(forces[i].Nucleus.Scale(scale))
		c.A = c.A.Add(forces[i].Apical.Scale(scale))
		c.B = c.B.Add(forces[i].Basal.Scale(scale))
	}
}
