package engine

import (
	"math"
	"reflect"
	"testing"

	"github.com/SteffenPL/EHT-sub000/internal/geom"
	"github.com/SteffenPL/EHT-sub000/internal/params"
	"github.com/SteffenPL/EHT-sub000/internal/rng"
	"github.com/SteffenPL/EHT-sub000/internal/tissue"
)

func stripParams() params.Params {
	p := params.Default()
	p.General.AspectRatio = 0
	p.General.Perimeter = 30
	p.General.FullCircle = false
	p.Types = p.Types[:1]
	p.Types[0].NInit = 10
	return p
}

func TestInitPlacement(t *testing.T) {
	p := params.Default()
	st, err := Init(&p, 42)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if got, want := len(st.Cells), p.TotalInit(); got != want {
		t.Fatalf("cell count = %d, want %d", got, want)
	}

	curve := st.Curve()
	if !curve.Closed() {
		t.Fatalf("default geometry should be a closed curve")
	}
	h := p.General.Height
	for i := range st.Cells {
		c := &st.Cells[i]
		if bh := curve.Height(c.B); math.Abs(bh) > 1e-6 {
			t.Errorf("cell %d basal height = %g, want 0", i, bh)
		}
		if ph := curve.Height(c.Pos); ph < h/3-0.1 || ph > 2*h/3+0.1 {
			t.Errorf("cell %d nucleus height = %g outside [h/3, 2h/3]", i, ph)
		}
		if ah := curve.Height(c.A); math.Abs(ah-h) > 0.1 {
			t.Errorf("cell %d apical height = %g, want %g", i, ah, h)
		}
	}

	// Closed full circle: one apical and one basal link per adjacent pair,
	// including the wraparound pair.
	if got, want := len(st.Apical), p.TotalInit(); got != want {
		t.Errorf("apical links = %d, want %d", got, want)
	}
	if got, want := len(st.Basal), p.TotalInit(); got != want {
		t.Errorf("basal links = %d, want %d", got, want)
	}

	// The hemogenic population is constrained to the bottom of the curve,
	// normalized position +-1, which maps near arc 0 or the full perimeter.
	hemo := p.TypeIndex("hemogenic")
	per := curve.Perimeter()
	for i := range st.Cells {
		c := &st.Cells[i]
		if c.Type != hemo {
			continue
		}
		s := curve.ArcLength(c.B)
		d := math.Min(s, per-s)
		if d > per/4 {
			t.Errorf("hemogenic cell %d at arc %g, not near the bottom seam", i, s)
		}
	}
}

func TestInitStraightStrip(t *testing.T) {
	p := stripParams()
	st, err := Init(&p, 7)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if st.Curve().Closed() {
		t.Fatalf("aspect ratio 0 should build a straight membrane")
	}
	// Open chain: one fewer link than cells, no wrap.
	if got, want := len(st.Apical), p.TotalInit()-1; got != want {
		t.Errorf("apical links = %d, want %d", got, want)
	}
	for i := range st.Cells {
		x := st.Cells[i].B.X
		if x < -p.General.Perimeter/2-1e-9 || x > p.General.Perimeter/2+1e-9 {
			t.Errorf("cell %d basal x = %g outside the strip", i, x)
		}
	}
}

func TestStepDeterminism(t *testing.T) {
	p := params.Default()
	run := func() *tissue.State {
		st, err := Init(&p, 1234)
		if err != nil {
			t.Fatalf("Init: %v", err)
		}
		for k := 0; k < 5; k++ {
			if err := Step(st, p.General.Dt, &p); err != nil {
				t.Fatalf("Step %d: %v", k, err)
			}
		}
		return st
	}
	a, b := run(), run()
	if !reflect.DeepEqual(Snapshot(a, &p), Snapshot(b, &p)) {
		t.Fatalf("identical seeds diverged")
	}
	if a.RNG.State() != b.RNG.State() {
		t.Fatalf("rng cursors diverged")
	}
}

func TestStepAdvancesClock(t *testing.T) {
	p := stripParams()
	st, err := Init(&p, 3)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := Step(st, p.General.Dt, &p); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if math.Abs(st.T-p.General.Dt) > 1e-12 {
		t.Errorf("T = %g, want %g", st.T, p.General.Dt)
	}
	if st.StepCount != 1 {
		t.Errorf("StepCount = %d, want 1", st.StepCount)
	}
	if err := Step(st, 0, &p); err == nil {
		t.Errorf("Step with dt=0 should fail")
	}
}

func TestEndToEndStraightStrip(t *testing.T) {
	p := stripParams()
	p.General.TEnd = 0.01
	p.General.Dt = 0.005
	st, err := Init(&p, 99)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	for st.T < p.General.TEnd {
		if err := Step(st, p.General.Dt, &p); err != nil {
			t.Fatalf("Step at t=%g: %v", st.T, err)
		}
	}
	minDist := 2 * p.Types[0].RHard
	for i := range st.Cells {
		c := &st.Cells[i]
		for _, v := range []geom.Vec{c.Pos, c.A, c.B} {
			if math.IsNaN(v.X) || math.IsNaN(v.Y) || math.IsInf(v.X, 0) || math.IsInf(v.Y, 0) {
				t.Fatalf("cell %d has non-finite coordinates %+v", i, c)
			}
		}
		if c.HasB {
			if bh := st.Curve().Height(c.B); math.Abs(bh) > 1e-6 {
				t.Errorf("cell %d basal point left the membrane, height %g", i, bh)
			}
		}
		for j := i + 1; j < len(st.Cells); j++ {
			if d := c.Pos.Dist(st.Cells[j].Pos); d < minDist-0.2 {
				t.Errorf("cells %d,%d overlap hard cores: dist %g", i, j, d)
			}
		}
	}
}

func TestHardSphereSeparation(t *testing.T) {
	p := stripParams()
	st := &tissue.State{RNG: rng.New(1)}
	ct := &p.Types[0]
	for _, pos := range []geom.Vec{{X: 0, Y: 0}, {X: 0.5, Y: 0}} {
		c := tissue.NewCell(st.AllocateID(), 0, ct, 0, st.RNG)
		c.Pos = pos
		c.A = pos.Add(geom.Vec{Y: 2})
		c.B = pos
		c.HasB = false
		st.Cells = append(st.Cells, c)
	}
	ApplyConstraints(st, &p)
	want := 2 * ct.RHard
	if d := st.Cells[0].Pos.Dist(st.Cells[1].Pos); d < want-1e-9 {
		t.Fatalf("post-projection distance %g, want >= %g", d, want)
	}
}

func TestEventWindows(t *testing.T) {
	p := stripParams()
	st := &tissue.State{RNG: rng.New(1)}
	c := tissue.NewCell(st.AllocateID(), 0, &p.Types[0], 0, st.RNG)
	c.Pos = geom.Vec{Y: 1.5}
	c.A = geom.Vec{Y: 3}
	c.TimeA = 0.05
	c.TimeS = 0.05
	c.TimeP = 0.15
	st.Cells = append(st.Cells, c)

	baseApical := st.Cells[0].StiffApical

	// Event strictly after the window must not fire.
	ProcessEvents(st, &p, -0.1, 0.1)
	if !st.Cells[0].HasA {
		t.Fatalf("apical loss fired before its window")
	}

	ProcessEvents(st, &p, 0, 0.1)
	got := &st.Cells[0]
	if got.HasA {
		t.Errorf("apical loss did not fire in [0, 0.1)")
	}
	if want := baseApical / 10; math.Abs(got.StiffApical-want) > 1e-12 {
		t.Errorf("apical stiffness = %g, want %g", got.StiffApical, want)
	}
	if got.StiffStraight != 1.0 {
		t.Errorf("straightness stiffness = %g, want 1.0", got.StiffStraight)
	}
	if got.RunningMode == 3 {
		t.Errorf("running mode switched before t_p")
	}

	// Re-running the same window must not fire twice.
	ProcessEvents(st, &p, 0, 0.1)
	if math.Abs(st.Cells[0].StiffApical-baseApical/10) > 1e-12 {
		t.Errorf("apical stiffness dropped twice")
	}

	ProcessEvents(st, &p, 0.1, 0.1)
	if st.Cells[0].RunningMode != 3 {
		t.Errorf("running mode = %d after t_p, want 3", st.Cells[0].RunningMode)
	}
}

func TestBasalLossStartsRunningForLateOnset(t *testing.T) {
	p := stripParams()
	p.Types[0].RunningFloor = 0.1
	st := &tissue.State{RNG: rng.New(1)}
	for _, tp := range []float64{10, math.Inf(1)} {
		c := tissue.NewCell(st.AllocateID(), 0, &p.Types[0], 0, st.RNG)
		c.Pos = geom.Vec{Y: 1.5}
		c.A = geom.Vec{Y: 3}
		c.B = geom.Vec{Y: 0.5}
		c.TimeB = 0.05
		c.TimeP = tp // onset after basal loss (or never)
		st.Cells = append(st.Cells, c)
	}

	ProcessEvents(st, &p, 0, 0.1)
	for i := range st.Cells {
		got := &st.Cells[i]
		if got.HasB {
			t.Fatalf("cell %d basal loss did not fire", i)
		}
		if got.RunningMode != 3 {
			t.Errorf("cell %d running mode = %d, want 3 from basal loss", i, got.RunningMode)
		}
		if !got.IsRunning {
			t.Errorf("cell %d above the floor with mode 3 should be running", i)
		}
	}
}

func TestBasalLossLeavesEarlyOnsetToItsOwnCrossing(t *testing.T) {
	p := stripParams()
	st := &tissue.State{RNG: rng.New(1)}
	c := tissue.NewCell(st.AllocateID(), 0, &p.Types[0], 0, st.RNG)
	c.Pos = geom.Vec{Y: 1.5}
	c.A = geom.Vec{Y: 3}
	c.B = geom.Vec{Y: 0.5}
	c.TimeB = 0.05
	c.TimeP = 0.02 // onset before basal loss
	st.Cells = append(st.Cells, c)

	// A window that covers the basal loss but not the earlier onset: the loss
	// itself must not switch the mode.
	ProcessEvents(st, &p, 0.04, 0.06)
	got := &st.Cells[0]
	if got.HasB {
		t.Fatalf("basal loss did not fire")
	}
	if got.RunningMode != 0 {
		t.Errorf("running mode = %d, want 0 until t_p crosses", got.RunningMode)
	}
}

func TestRunningModesBelowAxis(t *testing.T) {
	p := stripParams()
	p.Types[0].RunningFloor = 0.1
	geo, err := geom.SolveCurvatures(2*math.Pi*5, 1)
	if err != nil {
		t.Fatalf("SolveCurvatures: %v", err)
	}
	st := &tissue.State{RNG: rng.New(1), Geometry: geo}
	// Detached mode-1 cells inside the circle, half a unit above the membrane:
	// one below the axis, one above.
	for _, b := range []geom.Vec{{X: 0, Y: -4.5}, {X: 0, Y: 4.5}} {
		c := tissue.NewCell(st.AllocateID(), 0, &p.Types[0], 0, st.RNG)
		c.B = b
		c.Pos = b
		c.A = b
		c.HasB = false
		c.RunningMode = 1
		st.Cells = append(st.Cells, c)
	}

	UpdateRunning(st, &p)
	if !st.Cells[0].IsRunning {
		t.Errorf("mode-1 cell below the axis and above the floor should run")
	}
	if st.Cells[1].IsRunning {
		t.Errorf("mode-1 cell above the axis should not run")
	}
}

func TestDivisionSplicing(t *testing.T) {
	p := stripParams()
	st := &tissue.State{RNG: rng.New(1)}
	for i := 0; i < 3; i++ {
		c := tissue.NewCell(st.AllocateID(), 0, &p.Types[0], 0, st.RNG)
		x := float64(i) * 2
		c.B = geom.Vec{X: x}
		c.Pos = geom.Vec{X: x, Y: 1.5}
		c.A = geom.Vec{X: x, Y: 3}
		st.Cells = append(st.Cells, c)
	}
	for i := 0; i < 2; i++ {
		st.Apical = append(st.Apical, tissue.ApicalLink{
			L: i, R: i + 1, Rest: st.Cells[i].A.Dist(st.Cells[i+1].A),
		})
		st.Basal = append(st.Basal, tissue.BasalLink{L: i, R: i + 1})
	}
	st.T = 5
	st.Cells[1].DivisionTime = 5 // middle cell is due

	ProcessDivisions(st, &p)
	if got := len(st.Cells); got != 4 {
		t.Fatalf("cell count = %d, want 4", got)
	}
	parent := &st.Cells[1]
	child := &st.Cells[3]
	if parent.DivisionTime <= st.T {
		t.Errorf("parent cycle not restarted")
	}
	if child.BirthTime != st.T {
		t.Errorf("child birth time = %g, want %g", child.BirthTime, st.T)
	}
	if d := parent.Pos.Dist(child.Pos); math.Abs(d-parent.RHard) > 1e-9 {
		t.Errorf("child offset = %g, want one hard radius %g", d, parent.RHard)
	}
	if got, want := len(st.Apical), 3; got != want {
		t.Errorf("apical links = %d, want %d", got, want)
	}
	if got, want := len(st.Basal), 3; got != want {
		t.Errorf("basal links = %d, want %d", got, want)
	}
	// Child sits between the parent and one former neighbor.
	deg := func(idx int) int {
		n := 0
		for _, l := range st.Apical {
			if l.L == idx || l.R == idx {
				n++
			}
		}
		return n
	}
	if deg(3) != 2 {
		t.Errorf("child apical degree = %d, want 2", deg(3))
	}
	if deg(1) != 2 {
		t.Errorf("parent apical degree = %d, want 2", deg(1))
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	p := params.Default()
	st, err := Init(&p, 2024)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	for k := 0; k < 3; k++ {
		if err := Step(st, p.General.Dt, &p); err != nil {
			t.Fatalf("Step: %v", err)
		}
	}

	rows := Snapshot(st, &p)
	if len(rows) != len(st.Cells) {
		t.Fatalf("snapshot rows = %d, want %d", len(rows), len(st.Cells))
	}
	loaded, err := LoadSnapshot(rows, &p)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}

	if loaded.T != st.T {
		t.Errorf("T = %g, want %g", loaded.T, st.T)
	}
	if loaded.NextID != st.NextID {
		t.Errorf("NextID = %d, want %d", loaded.NextID, st.NextID)
	}
	if loaded.RNG.State() != st.RNG.State() {
		t.Errorf("rng state not restored")
	}
	if loaded.Geometry != st.Geometry {
		t.Errorf("geometry = %+v, want %+v", loaded.Geometry, st.Geometry)
	}
	if len(loaded.Cells) != len(st.Cells) {
		t.Fatalf("cell count = %d, want %d", len(loaded.Cells), len(st.Cells))
	}
	for i := range st.Cells {
		want, got := &st.Cells[i], &loaded.Cells[i]
		if got.ID != want.ID || got.Type != want.Type {
			t.Fatalf("cell %d identity mismatch", i)
		}
		if got.Pos != want.Pos || got.A != want.A || got.B != want.B {
			t.Errorf("cell %d positions differ", i)
		}
		if got.HasA != want.HasA || got.HasB != want.HasB {
			t.Errorf("cell %d adhesion flags differ", i)
		}
		if got.TimeA != want.TimeA && !(math.IsInf(got.TimeA, 1) && math.IsInf(want.TimeA, 1)) {
			t.Errorf("cell %d TimeA = %g, want %g", i, got.TimeA, want.TimeA)
		}
	}
	if len(loaded.Apical) != len(st.Apical) {
		t.Errorf("apical links = %d, want %d", len(loaded.Apical), len(st.Apical))
	}
	if len(loaded.Basal) != len(st.Basal) {
		t.Errorf("basal links = %d, want %d", len(loaded.Basal), len(st.Basal))
	}

	// A loaded state must step without error.
	if err := Step(loaded, p.General.Dt, &p); err != nil {
		t.Fatalf("Step after load: %v", err)
	}
}

func TestLoadSnapshotRejectsBadRows(t *testing.T) {
	p := params.Default()
	st, err := Init(&p, 5)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	rows := Snapshot(st, &p)

	if _, err := LoadSnapshot(nil, &p); err == nil {
		t.Errorf("empty snapshot should fail")
	}

	dup := append(rows[:0:0], rows...)
	dup[1].CellID = dup[0].CellID
	if _, err := LoadSnapshot(dup, &p); err == nil {
		t.Errorf("duplicate cell id should fail")
	}

	orphan := append(rows[:0:0], rows...)
	orphan[0].ApicalNeighbors = "9999"
	if _, err := LoadSnapshot(orphan, &p); err == nil {
		t.Errorf("unknown neighbor id should fail")
	}
}

func TestComputeStats(t *testing.T) {
	p := params.Default()
	p.Types[1].NInit = 0 // empty hemogenic population
	st, err := Init(&p, 11)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	point := ComputeStats(st, &p)
	if point.TimeH != st.T {
		t.Errorf("TimeH = %g, want %g", point.TimeH, st.T)
	}
	if got := float64(point.Values["all.count"]); got != float64(len(st.Cells)) {
		t.Errorf("all.count = %g, want %d", got, len(st.Cells))
	}
	if got := float64(point.Values["all.frac_has_apical"]); got != 1 {
		t.Errorf("all.frac_has_apical = %g, want 1", got)
	}
	if got := float64(point.Values["progenitor.mean_depth"]); got <= 0 || got >= 1 {
		t.Errorf("progenitor.mean_depth = %g, want inside (0, 1)", got)
	}
	if got := float64(point.Values["hemogenic.count"]); got != 0 {
		t.Errorf("hemogenic.count = %g, want 0", got)
	}
	if got := float64(point.Values["hemogenic.mean_ab_distance"]); !math.IsNaN(got) {
		t.Errorf("hemogenic.mean_ab_distance = %g, want NaN", got)
	}
}

func TestModelsRegistry(t *testing.T) {
	models := Models()
	for _, name := range []string{"eht", "toy"} {
		m, ok := models[name]
		if !ok {
			t.Fatalf("model %q not registered", name)
		}
		if m.Init == nil || m.Step == nil || m.Snapshot == nil || m.Load == nil || m.Stats == nil {
			t.Fatalf("model %q has nil operations", name)
		}
	}
}

func TestToyModelStaysOnCurve(t *testing.T) {
	p := params.Default()
	st, err := ToyInit(&p, 8)
	if err != nil {
		t.Fatalf("ToyInit: %v", err)
	}
	if len(st.Apical) != 0 || len(st.Basal) != 0 {
		t.Fatalf("toy model should carry no links")
	}
	n := len(st.Cells)
	for k := 0; k < 10; k++ {
		if err := ToyStep(st, p.General.Dt, &p); err != nil {
			t.Fatalf("ToyStep: %v", err)
		}
	}
	if len(st.Cells) != n {
		t.Errorf("toy model changed cell count")
	}
	curve := st.Curve()
	for i := range st.Cells {
		if bh := curve.Height(st.Cells[i].B); math.Abs(bh) > 1e-6 {
			t.Errorf("cell %d basal height = %g after walk, want 0", i, bh)
		}
	}
}
