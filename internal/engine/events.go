package engine

import (
	"math"

	"github.com/SteffenPL/EHT-sub000/internal/params"
	"github.com/SteffenPL/EHT-sub000/internal/tissue"
)

// apicalStiffnessDrop is the factor by which the nucleus-apical spring
// weakens when apical adhesion is lost.
const apicalStiffnessDrop = 10.0

// relaxedStraightness is the residual straightness stiffness after the
// straightness-loss event.
const relaxedStraightness = 1.0

// ProcessEvents fires every scheduled per-cell transition whose time falls in
// [t, t+dt), then re-derives the running flag for all cells. Adhesion loss is
// irreversible: flags are only ever cleared here.
func ProcessEvents(st *tissue.State, p *params.Params, t, dt float64) {
	crossed := func(te float64) bool {
		return !math.IsInf(te, 1) && te >= t && te < t+dt
	}

	for i := range st.Cells {
		c := &st.Cells[i]

		if c.HasA && crossed(c.TimeA) {
			c.HasA = false
			c.StiffApical /= apicalStiffnessDrop
			st.SpliceApical(i)
		}
		if c.HasB && crossed(c.TimeB) {
			c.HasB = false
			st.SpliceBasal(i)
			// Basal loss starts running for cells whose own onset would
			// come later (or never); an earlier onset fires on its own.
			if c.TimeP > c.TimeB {
				c.RunningMode = 3
			}
		}
		if crossed(c.TimeS) {
			c.StiffStraight = relaxedStraightness
		}
		if crossed(c.TimeP) && c.RunningMode < 3 {
			c.RunningMode = 3
		}
	}

	UpdateRunning(st, p)
}

// UpdateRunning recomputes the derived running state for every cell. A cell
// runs iff it lost basal adhesion, its basal point sits above the type's
// floor threshold, and its running mode permits it: mode 3 always, modes
// 1-2 only while the basal point is below the axis.
func UpdateRunning(st *tissue.State, p *params.Params) {
	curve := st.Curve()
	for i := range st.Cells {
		c := &st.Cells[i]
		if c.HasB {
			c.IsRunning = false
			continue
		}
		h := curve.Height(c.B)
		ct := p.Type(c.Type)
		c.IsRunning = h > ct.RunningFloor && (c.RunningMode >= 3 || (c.B.Y < 0 && c.RunningMode >= 1))
	}
}
