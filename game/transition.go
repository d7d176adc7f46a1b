package game

import (
	"fmt"

	"github.com/pthm-cable/sweepers/components"
)

// Optimizer is the evolutionary side of the simulation. Population index i
// always belongs to sweeper i.
type Optimizer interface {
	// Population returns the optimizer's current genomes.
	Population() []components.Genome
	// Epoch consumes a scored population and returns a new one of the same
	// size and genome length.
	Epoch(pop []components.Genome) ([]components.Genome, error)
	// AverageFitness and BestFitness describe the most recent Epoch call.
	AverageFitness() float64
	BestFitness() float64
}

// GenerationReport summarises one transition.
type GenerationReport struct {
	Generation     int
	AverageFitness float64
	BestFitness    float64
}

// String renders the human-readable transition line. Best is truncated to an integer.
func (r GenerationReport) String() string {
	return fmt.Sprintf("Transplanting brains. Gen %d: Avg fitness %.2f, best %d",
		r.Generation, r.AverageFitness, int(r.BestFitness))
}

// AttachOptimizer adopts opt's population and loads each genome into the
// matching sweeper's brain.
func (gs *Gamestate) AttachOptimizer(opt Optimizer) error {
	pop := opt.Population()
	if err := gs.loadPopulation(pop); err != nil {
		return err
	}
	gs.optimizer = opt
	return nil
}

// LoadPopulation replaces the population, for example from a stored run,
// and loads every genome into its sweeper's brain.
func (gs *Gamestate) LoadPopulation(pop []components.Genome) error {
	return gs.loadPopulation(pop)
}

func (gs *Gamestate) loadPopulation(pop []components.Genome) error {
	if len(pop) != len(gs.Sweepers) {
		return fmt.Errorf("%w: %d genomes, %d sweepers", ErrPopulationMismatch, len(pop), len(gs.Sweepers))
	}
	// Check every genome before touching any brain so a bad population
	// leaves the arena as it was.
	for i := range gs.Sweepers {
		if want := gs.Sweepers[i].Brain.NumWeights(); len(pop[i].Weights) != want {
			return fmt.Errorf("loading genome %d: %w: %d weights, brain takes %d", i, ErrGenomeLength, len(pop[i].Weights), want)
		}
	}
	for i := range gs.Sweepers {
		if err := gs.Sweepers[i].Brain.PutWeights(pop[i].Weights); err != nil {
			return fmt.Errorf("loading genome %d: %w", i, err)
		}
	}
	gs.Population = pop
	return nil
}

// BrainTransplant runs one generational transition: report the optimizer's
// statistics, breed a new population, load it into the brains and reset
// per-generation sweeper state.
func (gs *Gamestate) BrainTransplant() (GenerationReport, error) {
	if gs.optimizer == nil {
		return GenerationReport{}, ErrNoOptimizer
	}
	if len(gs.Population) != len(gs.Sweepers) {
		return GenerationReport{}, fmt.Errorf("%w: %d genomes, %d sweepers", ErrPopulationMismatch, len(gs.Population), len(gs.Sweepers))
	}

	report := GenerationReport{
		Generation:     gs.generation + 1,
		AverageFitness: gs.optimizer.AverageFitness(),
		BestFitness:    gs.optimizer.BestFitness(),
	}

	next, err := gs.optimizer.Epoch(gs.Population)
	if err != nil {
		return report, fmt.Errorf("epoch %d: %w", report.Generation, err)
	}
	if err := gs.loadPopulation(next); err != nil {
		return report, fmt.Errorf("epoch %d: %w", report.Generation, err)
	}
	gs.generation = report.Generation

	for i := range gs.Sweepers {
		gs.Sweepers[i].Reset()
		if gs.ResetPlacement {
			gs.Sweepers[i].Position, gs.Sweepers[i].Rotation = gs.randomPlacement()
		}
	}
	if gs.ResetPlacement {
		gs.clearBullets()
	}

	gs.counters = Counters{}
	gs.ticks = 0
	return report, nil
}
