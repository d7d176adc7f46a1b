package components

import "math"

// Vector2D is a point or displacement in arena space.
type Vector2D struct {
	X, Y float64
}

// Vec returns a Vector2D.
func Vec(x, y float64) Vector2D {
	return Vector2D{X: x, Y: y}
}

// Add returns v + o.
func (v Vector2D) Add(o Vector2D) Vector2D {
	return Vector2D{X: v.X + o.X, Y: v.Y + o.Y}
}

// Sub returns v - o.
func (v Vector2D) Sub(o Vector2D) Vector2D {
	return Vector2D{X: v.X - o.X, Y: v.Y - o.Y}
}

// Scale returns v * s.
func (v Vector2D) Scale(s float64) Vector2D {
	return Vector2D{X: v.X * s, Y: v.Y * s}
}

// Length returns the Euclidean length of v.
func (v Vector2D) Length() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y)
}

// Dist returns the Euclidean distance between v and o.
func (v Vector2D) Dist(o Vector2D) float64 {
	return v.Sub(o).Length()
}

// LookAt returns the unit heading vector for a rotation in screen space (Y down).
func LookAt(rotation float64) Vector2D {
	return Vector2D{X: math.Cos(rotation), Y: -math.Sin(rotation)}
}
