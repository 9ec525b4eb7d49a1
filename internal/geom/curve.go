package geom

import (
	"fmt"
	"math"
)

// Curvatures is the raw, serializable description of a basal curve. Behavior is
// always rehydrated from these two numbers; nothing else about a curve is
// persisted or shared.
type Curvatures struct {
	Curvature1 float64 `json:"curvature_1"`
	Curvature2 float64 `json:"curvature_2"`
}

// Straight reports whether the curvatures describe an infinite straight line.
func (c Curvatures) Straight() bool {
	return c.Curvature1 == 0 && c.Curvature2 == 0
}

// EllipsePerimeter evaluates the Ramanujan approximation of the perimeter of an
// ellipse with semi-axes a and b.
func EllipsePerimeter(a, b float64) float64 {
	if a == 0 && b == 0 {
		return 0
	}
	h := (a - b) / (a + b)
	h *= h
	return math.Pi * (a + b) * (1 + 3*h/(10+math.Sqrt(4-3*h)))
}

// SolveCurvatures computes ellipse curvatures such that the Ramanujan perimeter
// matches the requested perimeter with b/a = |aspectRatio|. The sign of
// aspectRatio selects the curvature orientation. A zero aspect ratio yields a
// straight line (both curvatures zero).
func SolveCurvatures(perimeter, aspectRatio float64) (Curvatures, error) {
	if aspectRatio == 0 {
		return Curvatures{}, nil
	}
	if perimeter <= 0 {
		return Curvatures{}, fmt.Errorf("perimeter must be > 0, got %g", perimeter)
	}
	ratio := math.Abs(aspectRatio)
	sign := 1.0
	if aspectRatio < 0 {
		sign = -1.0
	}
	// Ramanujan's formula is homogeneous of degree one in (a, b), so the
	// semi-major axis follows from the unit-shape perimeter directly.
	a := perimeter / EllipsePerimeter(1, ratio)
	b := a * ratio
	return Curvatures{Curvature1: sign / a, Curvature2: sign / b}, nil
}

// curveSamples is the density of the arc-length table and of the coarse scan
// that seeds projection refinement.
const curveSamples = 4096

// Curve is the stateless geometry service for a basal curve. It is built from
// Curvatures on demand and owns a precomputed arc-length table for closed
// curves.
type Curve struct {
	curv     Curvatures
	straight bool
	sign     float64
	a, b     float64

	points    []Vec
	arc       []float64
	perimeter float64
}

// NewCurve rehydrates curve behavior from raw curvatures.
func NewCurve(c Curvatures) *Curve {
	if c.Straight() {
		return &Curve{curv: c, straight: true, sign: 1, a: math.Inf(1), b: math.Inf(1)}
	}
	sign := 1.0
	if c.Curvature1 < 0 || c.Curvature2 < 0 {
		sign = -1.0
	}
	a := math.Inf(1)
	if c.Curvature1 != 0 {
		a = 1 / math.Abs(c.Curvature1)
	}
	b := math.Inf(1)
	if c.Curvature2 != 0 {
		b = 1 / math.Abs(c.Curvature2)
	}

	cv := &Curve{curv: c, sign: sign, a: a, b: b}
	cv.points = make([]Vec, curveSamples+1)
	cv.arc = make([]float64, curveSamples+1)
	for i := 0; i <= curveSamples; i++ {
		theta := 2 * math.Pi * float64(i) / curveSamples
		cv.points[i] = Vec{a * math.Cos(theta), b * math.Sin(theta)}
		if i > 0 {
			cv.arc[i] = cv.arc[i-1] + cv.points[i].Dist(cv.points[i-1])
		}
	}
	cv.perimeter = cv.arc[curveSamples]
	return cv
}

// Curvatures returns the raw description this curve was built from.
func (c *Curve) Curvatures() Curvatures { return c.curv }

// Straight reports whether the curve is an infinite straight line.
func (c *Curve) Straight() bool { return c.straight }

// Closed reports whether arc-length arithmetic wraps around.
func (c *Curve) Closed() bool { return !c.straight }

// Perimeter returns the discretized perimeter, or 0 for a straight line.
func (c *Curve) Perimeter() float64 {
	if c.straight {
		return 0
	}
	return c.perimeter
}

// Project returns the closest point on the curve to p.
func (c *Curve) Project(p Vec) Vec {
	if c.straight {
		return Vec{p.X, 0}
	}
	pt, _ := c.nearest(p)
	return pt
}

// Normal returns the unit outward normal of the curve at the projection of p.
// Outward means away from the basal membrane toward the tissue, flipped by the
// curvature sign.
func (c *Curve) Normal(p Vec) Vec {
	if c.straight {
		return Vec{0, 1}
	}
	q := c.Project(p)
	// Gradient of (x/a)^2 + (y/b)^2 at q, orientation by curvature sign.
	g := Vec{q.X / (c.a * c.a), q.Y / (c.b * c.b)}
	u, ok := g.Unit(1e-12)
	if !ok {
		return Vec{0, c.sign}
	}
	return u.Scale(-c.sign)
}

// Height returns the signed offset of p from the curve along the outward
// normal. Points on the apical side of the membrane have positive height.
func (c *Curve) Height(p Vec) float64 {
	if c.straight {
		return p.Y
	}
	return p.Sub(c.Project(p)).Dot(c.Normal(p))
}

// ArcLength returns the position of the projection of p along the curve,
// measured from the reference point (a, 0). For a straight line this is the x
// coordinate.
func (c *Curve) ArcLength(p Vec) float64 {
	if c.straight {
		return p.X
	}
	_, s := c.nearest(p)
	return s
}

// WrapArc normalizes an arc-length position into [0, perimeter) on closed
// curves. Straight lines pass through unchanged.
func (c *Curve) WrapArc(s float64) float64 {
	if c.straight {
		return s
	}
	s = math.Mod(s, c.perimeter)
	if s < 0 {
		s += c.perimeter
	}
	return s
}

// ArcDelta returns the shortest signed arc distance from s1 to s2, wraparound
// aware on closed curves.
func (c *Curve) ArcDelta(s1, s2 float64) float64 {
	d := s2 - s1
	if c.straight {
		return d
	}
	d = math.Mod(d, c.perimeter)
	if d > c.perimeter/2 {
		d -= c.perimeter
	}
	if d < -c.perimeter/2 {
		d += c.perimeter
	}
	return d
}

// CurvedToCartesian maps a curve position (arc length) and a height offset
// along the outward normal to Cartesian coordinates.
func (c *Curve) CurvedToCartesian(s, height float64) Vec {
	if c.straight {
		return Vec{s, height}
	}
	s = c.WrapArc(s)
	i := c.segmentAt(s)
	seg := c.arc[i+1] - c.arc[i]
	t := 0.0
	if seg > 0 {
		t = (s - c.arc[i]) / seg
	}
	theta := 2 * math.Pi * (float64(i) + t) / curveSamples
	q := Vec{c.a * math.Cos(theta), c.b * math.Sin(theta)}
	g := Vec{q.X / (c.a * c.a), q.Y / (c.b * c.b)}
	n, ok := g.Unit(1e-12)
	if !ok {
		n = Vec{0, 1}
	}
	return q.Add(n.Scale(-c.sign * height))
}

// nearest returns the closest point on the ellipse to p and its arc-length
// position. A coarse scan over the samples seeds a Newton refinement against
// the analytic ellipse, so the result is not limited to chord accuracy.
func (c *Curve) nearest(p Vec) (Vec, float64) {
	best := 0
	bestD := math.Inf(1)
	for i := 0; i < curveSamples; i++ {
		d := p.Sub(c.points[i]).NormSq()
		if d < bestD {
			bestD = d
			best = i
		}
	}
	theta := c.refineTheta(p, 2*math.Pi*float64(best)/curveSamples)
	sin, cos := math.Sincos(theta)
	q := Vec{c.a * cos, c.b * sin}
	if p.Sub(q).NormSq() > bestD {
		// Refinement left the local minimum; keep the sample.
		return c.points[best], c.arc[best]
	}
	return q, c.arcAt(theta)
}

// refineTheta runs Newton iterations on the stationarity condition
// (p - E(theta)) . E'(theta) = 0 of the squared distance to the ellipse
// E(theta) = (a cos theta, b sin theta).
func (c *Curve) refineTheta(p Vec, theta float64) float64 {
	for iter := 0; iter < 8; iter++ {
		sin, cos := math.Sincos(theta)
		e := Vec{c.a * cos, c.b * sin}
		d1 := Vec{-c.a * sin, c.b * cos}
		d2 := Vec{-c.a * cos, -c.b * sin}
		r := p.Sub(e)
		df := r.Dot(d2) - d1.NormSq()
		if df == 0 {
			break
		}
		step := r.Dot(d1) / df
		theta -= step
		if math.Abs(step) < 1e-14 {
			break
		}
	}
	return theta
}

// arcAt converts an ellipse parameter to an arc-length position via the
// precomputed table.
func (c *Curve) arcAt(theta float64) float64 {
	u := math.Mod(theta/(2*math.Pi)*curveSamples, curveSamples)
	if u < 0 {
		u += curveSamples
	}
	i := int(u)
	if i >= curveSamples {
		i = curveSamples - 1
	}
	t := u - float64(i)
	return c.arc[i] + t*(c.arc[i+1]-c.arc[i])
}

// segmentAt locates the sample segment containing arc position s by binary
// search.
func (c *Curve) segmentAt(s float64) int {
	lo, hi := 0, curveSamples-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if c.arc[mid] <= s {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}
