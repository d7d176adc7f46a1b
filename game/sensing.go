package game

import (
	"math"

	"github.com/pthm-cable/sweepers/components"
)

// ClosestMine returns the displacement from the nearest mine to (x, y), i.e.
// query minus mine. Ties go to the lowest mine index. With no mines it
// returns the zero vector.
func (gs *Gamestate) ClosestMine(x, y float64) components.Vector2D {
	pos := components.Vec(x, y)
	closest := math.Inf(1)
	var v components.Vector2D

	for i := range gs.Mines {
		d := gs.Mines[i].Position.Dist(pos)
		if d < closest {
			closest = d
			v = pos.Sub(gs.Mines[i].Position)
		}
	}
	return v
}

// sensorInputs builds the brain input vector for a sweeper:
// [dx, dy, cos(rotation), -sin(rotation)].
func (gs *Gamestate) sensorInputs(s *components.Sweeper, buf []float64) []float64 {
	mine := gs.ClosestMine(s.Position.X, s.Position.Y)
	look := components.LookAt(s.Rotation)

	buf = buf[:0]
	return append(buf, mine.X, mine.Y, look.X, look.Y)
}
