package geom

import "math"

// Vec is a 2D Cartesian vector.
type Vec struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (v Vec) Add(w Vec) Vec { return Vec{v.X + w.X, v.Y + w.Y} }

func (v Vec) Sub(w Vec) Vec { return Vec{v.X - w.X, v.Y - w.Y} }

func (v Vec) Scale(s float64) Vec { return Vec{v.X * s, v.Y * s} }

func (v Vec) Dot(w Vec) float64 { return v.X*w.X + v.Y*w.Y }

func (v Vec) Norm() float64 { return math.Hypot(v.X, v.Y) }

func (v Vec) NormSq() float64 { return v.X*v.X + v.Y*v.Y }

func (v Vec) Dist(w Vec) float64 { return v.Sub(w).Norm() }

// Unit returns the direction of v, or the zero vector when |v| is below eps.
func (v Vec) Unit(eps float64) (Vec, bool) {
	n := v.Norm()
	if n < eps {
		return Vec{}, false
	}
	return Vec{v.X / n, v.Y / n}, true
}

// RotCW rotates v by 90 degrees clockwise.
func (v Vec) RotCW() Vec { return Vec{v.Y, -v.X} }
