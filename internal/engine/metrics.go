package engine

import (
	"math"

	"github.com/SteffenPL/EHT-sub000/internal/model"
	"github.com/SteffenPL/EHT-sub000/internal/params"
	"github.com/SteffenPL/EHT-sub000/internal/tissue"
)

// ComputeStats summarizes the current state per cell type plus an "all"
// aggregate. Stats over empty or degenerate selections come back NaN rather
// than aborting the run; JSON encoding of NaN is handled downstream.
func ComputeStats(st *tissue.State, p *params.Params) model.MetricsPoint {
	point := model.MetricsPoint{
		TimeH:  st.T,
		Values: make(map[string]model.JSONFloat),
	}

	groups := make(map[string][]int, len(p.Types)+1)
	for _, ct := range p.Types {
		groups[ct.Name] = nil
	}
	all := make([]int, 0, len(st.Cells))
	for i := range st.Cells {
		name := p.Type(st.Cells[i].Type).Name
		groups[name] = append(groups[name], i)
		all = append(all, i)
	}
	groups["all"] = all

	for name, indices := range groups {
		statsForGroup(st, name, indices, point.Values)
	}
	return point
}

// statsForGroup fills the values map with "<group>.<stat>" entries. Depth is
// the nucleus position projected onto the basal-to-apical axis, normalized so
// 0 is the basal point and 1 the apical point.
func statsForGroup(st *tissue.State, name string, indices []int, out map[string]model.JSONFloat) {
	out[name+".count"] = model.JSONFloat(float64(len(indices)))

	var (
		sumAB    float64
		nAB      int
		sumDepth float64
		nDepth   int
		below    int
		above    int
		hasA     int
		hasB     int
	)
	for _, i := range indices {
		c := &st.Cells[i]
		if c.HasA {
			hasA++
		}
		if c.HasB {
			hasB++
		}
		sumAB += c.A.Dist(c.B)
		nAB++

		axis := c.A.Sub(c.B)
		lenSq := axis.NormSq()
		if lenSq <= 0 {
			continue
		}
		x := c.Pos.Sub(c.B).Dot(axis) / lenSq
		sumDepth += x
		nDepth++
		if x < 0 {
			below++
		}
		if x > 1 {
			above++
		}
	}

	out[name+".mean_ab_distance"] = meanOrNaN(sumAB, nAB)
	out[name+".mean_depth"] = meanOrNaN(sumDepth, nDepth)
	out[name+".frac_below_basal"] = fracOrNaN(below, nDepth)
	out[name+".frac_above_apical"] = fracOrNaN(above, nDepth)
	out[name+".frac_has_apical"] = fracOrNaN(hasA, len(indices))
	out[name+".frac_has_basal"] = fracOrNaN(hasB, len(indices))
}

func meanOrNaN(sum float64, n int) model.JSONFloat {
	if n == 0 {
		return model.JSONFloat(math.NaN())
	}
	return model.JSONFloat(sum / float64(n))
}

func fracOrNaN(k, n int) model.JSONFloat {
	if n == 0 {
		return model.JSONFloat(math.NaN())
	}
	return model.JSONFloat(float64(k) / float64(n))
}
