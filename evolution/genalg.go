// Package evolution provides the genetic algorithm that breeds sweeper brains.
package evolution

import (
	"errors"
	"fmt"
	"math/rand"
	"slices"

	"gonum.org/v1/gonum/floats"

	"github.com/pthm-cable/sweepers/components"
	"github.com/pthm-cable/sweepers/config"
)

// ErrPopulationShape is returned when Epoch receives a population of the wrong
// size or with genomes of the wrong length.
var ErrPopulationShape = errors.New("evolution: population shape mismatch")

// Params configures a GenAlg.
type Params struct {
	PopSize         int
	ChromoLength    int // weights per genome
	MutationRate    float64
	CrossoverRate   float64
	MaxPerturbation float64
	NumElite        int
	NumCopiesElite  int
}

// ParamsFromConfig builds GA parameters from config. Population size and
// genome length come from the arena, not the config file.
func ParamsFromConfig(cfg config.GeneticConfig, popSize, chromoLength int) Params {
	return Params{
		PopSize:         popSize,
		ChromoLength:    chromoLength,
		MutationRate:    cfg.MutationRate,
		CrossoverRate:   cfg.CrossoverRate,
		MaxPerturbation: cfg.MaxPerturbation,
		NumElite:        cfg.NumElite,
		NumCopiesElite:  cfg.NumCopiesElite,
	}
}

// GenAlg is a fixed-size generational GA with elitism, roulette-wheel
// selection, single-point crossover and perturbation mutation.
type GenAlg struct {
	params Params
	rng    *rand.Rand

	population []components.Genome

	// Statistics of the most recent Epoch call
	totalFitness   float64
	bestFitness    float64
	averageFitness float64
	worstFitness   float64

	generation int
}

// NewGenAlg creates a GA with a random initial population, weights uniform in [-1, 1].
func NewGenAlg(p Params, rng *rand.Rand) (*GenAlg, error) {
	if p.PopSize <= 0 {
		return nil, fmt.Errorf("evolution: population size must be positive, got %d", p.PopSize)
	}
	if p.ChromoLength <= 0 {
		return nil, fmt.Errorf("evolution: chromosome length must be positive, got %d", p.ChromoLength)
	}

	ga := &GenAlg{
		params:     p,
		rng:        rng,
		population: make([]components.Genome, p.PopSize),
	}
	for i := range ga.population {
		w := make([]float64, p.ChromoLength)
		for j := range w {
			w[j] = rng.Float64()*2 - 1
		}
		ga.population[i] = components.Genome{Weights: w}
	}
	return ga, nil
}

// Population returns a copy of the current population.
func (ga *GenAlg) Population() []components.Genome {
	out := make([]components.Genome, len(ga.population))
	for i, g := range ga.population {
		out[i] = g.Clone()
	}
	return out
}

// Epoch scores old and breeds a new population of the same size and genome
// length. Every returned genome has fitness 0.
func (ga *GenAlg) Epoch(old []components.Genome) ([]components.Genome, error) {
	if len(old) != ga.params.PopSize {
		return nil, fmt.Errorf("%w: got %d genomes, want %d", ErrPopulationShape, len(old), ga.params.PopSize)
	}
	for i, g := range old {
		if len(g.Weights) != ga.params.ChromoLength {
			return nil, fmt.Errorf("%w: genome %d has %d weights, want %d", ErrPopulationShape, i, len(g.Weights), ga.params.ChromoLength)
		}
	}

	pop := make([]components.Genome, len(old))
	for i, g := range old {
		pop[i] = g.Clone()
	}
	slices.SortStableFunc(pop, func(a, b components.Genome) int {
		switch {
		case a.Fitness < b.Fitness:
			return -1
		case a.Fitness > b.Fitness:
			return 1
		}
		return 0
	})

	ga.calculateStats(pop)

	next := make([]components.Genome, 0, ga.params.PopSize)
	next = ga.grabNBest(pop, next)

	for len(next) < ga.params.PopSize {
		mum := ga.rouletteSelect(pop)
		dad := ga.rouletteSelect(pop)

		baby1, baby2 := ga.crossover(mum.Weights, dad.Weights)
		ga.mutate(baby1)
		ga.mutate(baby2)

		next = append(next, components.Genome{Weights: baby1})
		if len(next) < ga.params.PopSize {
			next = append(next, components.Genome{Weights: baby2})
		}
	}

	for i := range next {
		next[i].Fitness = 0
	}

	ga.population = next
	ga.generation++
	return ga.Population(), nil
}

// AverageFitness returns the mean fitness seen by the most recent Epoch.
func (ga *GenAlg) AverageFitness() float64 { return ga.averageFitness }

// BestFitness returns the highest fitness seen by the most recent Epoch.
func (ga *GenAlg) BestFitness() float64 { return ga.bestFitness }

// WorstFitness returns the lowest fitness seen by the most recent Epoch.
func (ga *GenAlg) WorstFitness() float64 { return ga.worstFitness }

// Generation returns the number of completed epochs.
func (ga *GenAlg) Generation() int { return ga.generation }

// calculateStats expects pop sorted ascending by fitness.
func (ga *GenAlg) calculateStats(pop []components.Genome) {
	fitness := make([]float64, len(pop))
	for i, g := range pop {
		fitness[i] = g.Fitness
	}

	ga.totalFitness = floats.Sum(fitness)
	ga.bestFitness = floats.Max(fitness)
	ga.worstFitness = floats.Min(fitness)
	ga.averageFitness = ga.totalFitness / float64(len(fitness))
}

// grabNBest copies the NumElite fittest genomes NumCopiesElite times each.
// pop must be sorted ascending.
func (ga *GenAlg) grabNBest(pop, next []components.Genome) []components.Genome {
	n := min(ga.params.NumElite, len(pop))
	for i := 0; i < n; i++ {
		best := pop[len(pop)-1-i]
		for c := 0; c < ga.params.NumCopiesElite; c++ {
			if len(next) >= ga.params.PopSize {
				return next
			}
			next = append(next, best.Clone())
		}
	}
	return next
}

// rouletteSelect picks a genome with probability proportional to fitness.
// With no fitness to go on every genome is equally likely.
func (ga *GenAlg) rouletteSelect(pop []components.Genome) components.Genome {
	if ga.totalFitness <= 0 {
		return pop[ga.rng.Intn(len(pop))]
	}

	slice := ga.rng.Float64() * ga.totalFitness
	var soFar float64
	for _, g := range pop {
		soFar += g.Fitness
		if soFar >= slice {
			return g
		}
	}
	return pop[len(pop)-1]
}

// crossover swaps the tails of two parents after a random point. Identical
// parents or a failed crossover roll produce plain copies.
func (ga *GenAlg) crossover(mum, dad []float64) ([]float64, []float64) {
	baby1 := append([]float64(nil), mum...)
	baby2 := append([]float64(nil), dad...)

	if ga.rng.Float64() > ga.params.CrossoverRate || slices.Equal(mum, dad) {
		return baby1, baby2
	}

	cp := ga.rng.Intn(len(mum))
	copy(baby1[cp:], dad[cp:])
	copy(baby2[cp:], mum[cp:])
	return baby1, baby2
}

// mutate perturbs each weight with probability MutationRate by up to ±MaxPerturbation.
func (ga *GenAlg) mutate(weights []float64) {
	for i := range weights {
		if ga.rng.Float64() < ga.params.MutationRate {
			weights[i] += (ga.rng.Float64()*2 - 1) * ga.params.MaxPerturbation
		}
	}
}
