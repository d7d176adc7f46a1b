package game

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/sweepers/components"
	"github.com/pthm-cable/sweepers/config"
)

var (
	// ErrBadDimensions is returned for an arena without positive width and height.
	ErrBadDimensions = errors.New("game: arena dimensions must be positive")
	// ErrPopulationMismatch is returned when the genome population and the
	// sweepers are not index aligned.
	ErrPopulationMismatch = errors.New("game: population size does not match sweeper count")
	// ErrNoOptimizer is returned by BrainTransplant before AttachOptimizer.
	ErrNoOptimizer = errors.New("game: no optimizer attached")
	// ErrGenomeLength is returned when a genome does not fit its sweeper's brain.
	ErrGenomeLength = errors.New("game: genome length does not match brain")
	// ErrBrainOutput is returned when a brain yields fewer than three outputs.
	ErrBrainOutput = errors.New("game: brain returned too few outputs")
)

// Physics holds the per-tick movement and combat constants.
type Physics struct {
	MaxTurnRate    float64
	HitRadius      float64
	BulletSpeed    float64
	ReloadTicks    int
	ShootThreshold float64
}

// DefaultPhysics returns the reference constants.
func DefaultPhysics() Physics {
	return Physics{
		MaxTurnRate:    0.3,
		HitRadius:      10,
		BulletSpeed:    4,
		ReloadTicks:    120,
		ShootThreshold: 0.5,
	}
}

// PhysicsFromConfig builds Physics from config.
func PhysicsFromConfig(cfg config.PhysicsConfig) Physics {
	return Physics{
		MaxTurnRate:    cfg.MaxTurnRate,
		HitRadius:      cfg.HitRadius,
		BulletSpeed:    cfg.BulletSpeed,
		ReloadTicks:    cfg.ReloadTicks,
		ShootThreshold: cfg.ShootThreshold,
	}
}

// Counters tallies events since the last generational transition.
type Counters struct {
	ShotsFired int
	Kills      int
	MinesSwept int
}

// Gamestate is the arena: dimensions, sweepers, mines, bullets in flight and
// the genome population. Population[i] belongs to Sweepers[i].
type Gamestate struct {
	Width, Height int

	Sweepers   []components.Sweeper
	Mines      []components.Mine
	Population []components.Genome

	// ResetPlacement re-randomizes position and heading at each transition.
	ResetPlacement bool

	physics   Physics
	rng       *rand.Rand
	optimizer Optimizer

	// Bullets live in an ECS world; Shooter indexes into Sweepers.
	world        *ecs.World
	bulletMapper *ecs.Map3[components.Position, components.Heading, components.Shooter]
	bulletFilter *ecs.Filter3[components.Position, components.Heading, components.Shooter]

	counters   Counters
	generation int
	ticks      int
}

// NewGamestate creates an empty arena.
func NewGamestate(width, height int, physics Physics, rng *rand.Rand) (*Gamestate, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: got %dx%d", ErrBadDimensions, width, height)
	}

	world := ecs.NewWorld()
	return &Gamestate{
		Width:        width,
		Height:       height,
		physics:      physics,
		rng:          rng,
		world:        world,
		bulletMapper: ecs.NewMap3[components.Position, components.Heading, components.Shooter](world),
		bulletFilter: ecs.NewFilter3[components.Position, components.Heading, components.Shooter](world),
	}, nil
}

// AddSweeper appends a sweeper at the given placement together with an empty
// genome slot so the population stays index aligned. Returns its index.
func (gs *Gamestate) AddSweeper(brain components.Brain, pos components.Vector2D, rotation float64) (int, error) {
	if brain == nil {
		return 0, errors.New("game: sweeper needs a brain")
	}
	gs.Sweepers = append(gs.Sweepers, components.Sweeper{
		Position: pos,
		Rotation: rotation,
		Brain:    brain,
	})
	gs.Population = append(gs.Population, components.Genome{})
	return len(gs.Sweepers) - 1, nil
}

// AddMine places a mine.
func (gs *Gamestate) AddMine(pos components.Vector2D) {
	gs.Mines = append(gs.Mines, components.Mine{Position: pos})
}

// Populate adds sweepers at random placements and mines at random integer
// positions. newBrain is called once per sweeper.
func (gs *Gamestate) Populate(sweepers, mines int, newBrain func() components.Brain) error {
	for i := 0; i < sweepers; i++ {
		pos, rot := gs.randomPlacement()
		if _, err := gs.AddSweeper(newBrain(), pos, rot); err != nil {
			return fmt.Errorf("adding sweeper %d: %w", i, err)
		}
	}
	for i := 0; i < mines; i++ {
		gs.AddMine(gs.randomMinePosition())
	}
	return nil
}

// Physics returns the arena constants.
func (gs *Gamestate) Physics() Physics {
	return gs.physics
}

// Counters returns event tallies since the last transition.
func (gs *Gamestate) Counters() Counters {
	return gs.counters
}

// Generation returns the number of completed transitions.
func (gs *Gamestate) Generation() int {
	return gs.generation
}

// SetGeneration sets the transition counter, used when resuming a stored run.
func (gs *Gamestate) SetGeneration(n int) {
	gs.generation = n
}

// Ticks returns the number of turns since the last transition.
func (gs *Gamestate) Ticks() int {
	return gs.ticks
}

// AliveCount returns the number of sweepers not marked dead.
func (gs *Gamestate) AliveCount() int {
	n := 0
	for i := range gs.Sweepers {
		if !gs.Sweepers[i].Dead {
			n++
		}
	}
	return n
}

// Bullets returns a snapshot of every bullet in flight.
func (gs *Gamestate) Bullets() []components.Bullet {
	var out []components.Bullet
	query := gs.bulletFilter.Query()
	for query.Next() {
		pos, heading, shooter := query.Get()
		out = append(out, components.Bullet{
			Position: components.Vec(pos.X, pos.Y),
			Rotation: heading.Rotation,
			Shooter:  shooter.Index,
		})
	}
	return out
}

// spawnBullet fires a bullet from sweeper idx's current placement.
func (gs *Gamestate) spawnBullet(idx int) {
	s := &gs.Sweepers[idx]
	gs.bulletMapper.NewEntity(
		&components.Position{X: s.Position.X, Y: s.Position.Y},
		&components.Heading{Rotation: s.Rotation},
		&components.Shooter{Index: idx},
	)
	gs.counters.ShotsFired++
}

// clearBullets removes every bullet in flight.
func (gs *Gamestate) clearBullets() {
	var all []ecs.Entity
	query := gs.bulletFilter.Query()
	for query.Next() {
		all = append(all, query.Entity())
	}
	for _, e := range all {
		gs.world.RemoveEntity(e)
	}
}

func (gs *Gamestate) randomPlacement() (components.Vector2D, float64) {
	pos := components.Vec(gs.rng.Float64()*float64(gs.Width), gs.rng.Float64()*float64(gs.Height))
	return pos, gs.rng.Float64() * 2 * math.Pi
}

// randomMinePosition returns a uniformly random integer position in [0,W)×[0,H).
func (gs *Gamestate) randomMinePosition() components.Vector2D {
	return components.Vec(float64(gs.rng.Intn(gs.Width)), float64(gs.rng.Intn(gs.Height)))
}
