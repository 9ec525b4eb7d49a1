package engine

import (
	"fmt"

	"github.com/SteffenPL/EHT-sub000/internal/params"
	"github.com/SteffenPL/EHT-sub000/internal/tissue"
)

// Step advances the state by one output timestep, internally subdividing into
// n_substeps physics substeps. Each substep computes forces, integrates the
// overdamped update, projects constraints, fires events in the substep's time
// window, and processes divisions. The state is mutated in place.
func Step(st *tissue.State, dt float64, p *params.Params) error {
	if dt <= 0 {
		return fmt.Errorf("step dt must be > 0, got %g", dt)
	}
	n := p.General.NSubsteps
	if n <= 0 {
		n = 1
	}
	sub := dt / float64(n)

	var forces []Force
	for k := 0; k < n; k++ {
		forces = ComputeForces(st, p, forces)
		Integrate(st, forces, sub, p.General.Mu)
		ApplyConstraints(st, p)
		ProcessEvents(st, p, st.T, sub)
		ProcessDivisions(st, p)
		st.T += sub
	}
	st.StepCount++
	return nil
}
