// Package components defines the shared data types of the arena:
// sweepers, mines, bullets and the genomes exchanged with the optimizer.
package components

// Brain maps a sensor vector to an action vector.
// Outputs are [leftTrack, rightTrack, shoot, ...].
type Brain interface {
	// NumWeights returns the number of weights PutWeights expects.
	NumWeights() int
	// PutWeights replaces all weights in bulk.
	PutWeights(weights []float64) error
	// Update evaluates the network. It returns nil if inputs has the wrong length.
	Update(inputs []float64) []float64
}

// Sweeper is one agent. Sweepers are never removed during a run; death is a flag.
type Sweeper struct {
	Position   Vector2D
	Rotation   float64 // radians
	MinesSwept int     // fitness counter for the current generation
	Cooldown   int     // ticks until the next shot is available; may go negative
	Dead       bool
	Brain      Brain
}

// Reset clears per-generation state. Position and rotation are left as they are.
func (s *Sweeper) Reset() {
	s.MinesSwept = 0
	s.Dead = false
	s.Cooldown = 0
}

// CanFire reports whether the reload cooldown has expired.
func (s *Sweeper) CanFire() bool {
	return s.Cooldown < 1
}

// Mine is a collectable target. Mines are relocated on pickup, never removed.
type Mine struct {
	Position Vector2D
}

// Genome is the unit exchanged with the optimizer: a weight vector plus fitness.
// Population index i belongs to sweeper i.
type Genome struct {
	Weights []float64 `json:"weights"`
	Fitness float64   `json:"fitness"`
}

// Clone returns a deep copy of the genome.
func (g Genome) Clone() Genome {
	return Genome{Weights: append([]float64(nil), g.Weights...), Fitness: g.Fitness}
}

// Bullet is a read-only snapshot of a projectile in flight.
type Bullet struct {
	Position Vector2D
	Rotation float64
	Shooter  int
}
