package game

import (
	"fmt"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/sweepers/components"
)

// DoTurn advances the arena one tick: sweepers, then bullets, then mine pickups.
// An error means the tick was abandoned part way and the arena should not be stepped again.
func (gs *Gamestate) DoTurn() error {
	if len(gs.Population) != len(gs.Sweepers) {
		return fmt.Errorf("%w: %d genomes, %d sweepers", ErrPopulationMismatch, len(gs.Population), len(gs.Sweepers))
	}
	if err := gs.moveSweepers(); err != nil {
		return err
	}
	gs.moveBullets()
	gs.checkHitsAndUpdateMines()
	gs.ticks++
	return nil
}

// moveSweepers runs sensing, the brain and kinematics for every live sweeper.
func (gs *Gamestate) moveSweepers() error {
	inputs := make([]float64, 0, 4)
	for i := range gs.Sweepers {
		if gs.Sweepers[i].Dead {
			continue
		}
		if err := gs.moveSweeper(i, inputs); err != nil {
			return err
		}
	}
	return nil
}

func (gs *Gamestate) moveSweeper(idx int, inputs []float64) error {
	s := &gs.Sweepers[idx]

	output := s.Brain.Update(gs.sensorInputs(s, inputs))
	if len(output) < 3 {
		return fmt.Errorf("%w: sweeper %d gave %d", ErrBrainOutput, idx, len(output))
	}
	lTrack, rTrack := output[0], output[1]
	shoot := output[2] > gs.physics.ShootThreshold

	rotForce := clamp(lTrack-rTrack, -gs.physics.MaxTurnRate, gs.physics.MaxTurnRate)
	s.Rotation += rotForce

	speed := lTrack + rTrack
	s.Position = s.Position.Add(components.LookAt(s.Rotation).Scale(speed))
	s.Position.X = wrap(s.Position.X, float64(gs.Width))
	s.Position.Y = wrap(s.Position.Y, float64(gs.Height))

	if shoot && s.CanFire() {
		gs.spawnBullet(idx)
		s.Cooldown = gs.physics.ReloadTicks
	}

	// Unconditional, so the counter keeps falling below zero while idle
	s.Cooldown--
	return nil
}

// moveBullets advances every bullet, resolves hits and drops bullets that
// hit something or left the arena. Bullets do not wrap.
func (gs *Gamestate) moveBullets() {
	var spent []ecs.Entity
	w, h := float64(gs.Width), float64(gs.Height)

	query := gs.bulletFilter.Query()
	for query.Next() {
		pos, heading, shooter := query.Get()

		step := components.LookAt(heading.Rotation).Scale(gs.physics.BulletSpeed)
		pos.X += step.X
		pos.Y += step.Y

		if victim, ok := gs.hitSweeper(shooter.Index, components.Vec(pos.X, pos.Y)); ok {
			if !gs.Sweepers[victim].Dead {
				gs.counters.Kills++
			}
			gs.Sweepers[victim].Dead = true
			spent = append(spent, query.Entity())
			continue
		}

		if pos.X > w || pos.X < 0 || pos.Y > h || pos.Y < 0 {
			spent = append(spent, query.Entity())
		}
	}

	// The world is locked while the query runs
	for _, e := range spent {
		gs.world.RemoveEntity(e)
	}
}

// hitSweeper returns the first sweeper other than exclude within the hit radius of pos.
// Dead sweepers still stop bullets.
func (gs *Gamestate) hitSweeper(exclude int, pos components.Vector2D) (int, bool) {
	for i := range gs.Sweepers {
		if i == exclude {
			continue
		}
		if gs.Sweepers[i].Position.Dist(pos) < gs.physics.HitRadius {
			return i, true
		}
	}
	return 0, false
}

// checkHitsAndUpdateMines credits each sweeper, dead or alive, with at most
// one mine per tick and moves collected mines to a random position.
func (gs *Gamestate) checkHitsAndUpdateMines() {
	for i := range gs.Sweepers {
		s := &gs.Sweepers[i]
		for j := range gs.Mines {
			if s.Position.Dist(gs.Mines[j].Position) >= gs.physics.HitRadius {
				continue
			}
			s.MinesSwept++
			gs.Mines[j].Position = gs.randomMinePosition()
			gs.Population[i].Fitness = float64(s.MinesSwept)
			gs.counters.MinesSwept++
			break
		}
	}
}

// wrap folds v back into [0, bound) with a single step. Per-tick movement is
// small relative to the arena, so one step is enough.
func wrap(v, bound float64) float64 {
	if v >= bound {
		v -= bound
	}
	if v < 0 {
		v += bound
		// A tiny negative can round up to bound itself
		if v >= bound {
			v = 0
		}
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
