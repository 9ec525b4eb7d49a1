package engine

import (
	"math"

	"github.com/SteffenPL/EHT-sub000/internal/params"
	"github.com/SteffenPL/EHT-sub000/internal/tissue"
)

// The toy model reuses the full tissue initialization but replaces the physics
// with a diffusive walk along the basal curve. It exists to exercise the
// storage, reporting and sweep plumbing with cheap, link-free dynamics.

// ToyInit builds the same initial placement as the full model but drops the
// chain links, so every cell walks independently.
func ToyInit(p *params.Params, seed int64) (*tissue.State, error) {
	st, err := Init(p, seed)
	if err != nil {
		return nil, err
	}
	st.Apical = nil
	st.Basal = nil
	return st, nil
}

// ToyStep displaces every cell column by a random arc-length increment and
// rebuilds the three points at their stored heights. Step size scales with
// sqrt(dt) so the walk diffuses consistently across substep counts.
func ToyStep(st *tissue.State, dt float64, p *params.Params) error {
	curve := st.Curve()
	scale := math.Sqrt(dt)
	for i := range st.Cells {
		c := &st.Cells[i]
		s := curve.ArcLength(c.B)
		s += st.RNG.Range(-1, 1) * scale
		if curve.Closed() {
			s = curve.WrapArc(s)
		}

		height := curve.Height(c.Pos)
		apicalHeight := curve.Height(c.A)
		c.B = curve.CurvedToCartesian(s, 0)
		c.Pos = curve.CurvedToCartesian(s, height)
		c.A = curve.CurvedToCartesian(s, apicalHeight)
	}
	st.T += dt
	st.StepCount++
	return nil
}
