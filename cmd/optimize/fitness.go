package main

import (
	"context"
	"math"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/sweepers/config"
	"github.com/pthm-cable/sweepers/game"
	"github.com/pthm-cable/sweepers/telemetry"
)

// FitnessEvaluator runs headless simulations and scores parameter vectors.
type FitnessEvaluator struct {
	params      *ParamVector
	generations int
	tailWindow  int // trailing generations averaged into the score
	seeds       []int64
	baseConfig  *config.Config

	// Best run tracking
	mu             sync.Mutex
	bestFitness    float64
	bestHallOfFame *telemetry.HallOfFame
	lastKills      float64 // mean kills per generation from the most recent Evaluate call
}

// NewFitnessEvaluator creates a new evaluator.
func NewFitnessEvaluator(params *ParamVector, generations int, seeds []int64, baseCfg *config.Config) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:      params,
		generations: generations,
		tailWindow:  max(1, generations/5),
		seeds:       seeds,
		baseConfig:  baseCfg,
		bestFitness: math.Inf(1),
	}
}

// BestHallOfFame returns the hall of fame from the best evaluation.
func (fe *FitnessEvaluator) BestHallOfFame() *telemetry.HallOfFame {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.bestHallOfFame
}

// LastKills returns the mean kills per generation from the most recent evaluation.
func (fe *FitnessEvaluator) LastKills() float64 {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastKills
}

// runResult holds the results from a single simulation run.
type runResult struct {
	stats      []telemetry.GenerationStats // collected via GenerationCallback
	hallOfFame *telemetry.HallOfFame
	err        error
}

// Evaluate computes fitness for a raw parameter vector (lower = better).
// Fitness is the negated mean population fitness over the trailing generations,
// averaged across seeds.
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	results := make([]*runResult, len(fe.seeds))
	var wg sync.WaitGroup

	// Each seed is an independent single-threaded simulation
	for i, seed := range fe.seeds {
		wg.Add(1)
		go func(idx int, s int64) {
			defer wg.Done()
			results[idx] = fe.runSimulation(x, s)
		}(i, seed)
	}
	wg.Wait()

	scores := make([]float64, 0, len(results))
	kills := make([]float64, 0, len(results))
	bestSeedFitness := math.Inf(1)
	var bestSeedHallOfFame *telemetry.HallOfFame

	for _, r := range results {
		f := fe.computeFitness(r)
		scores = append(scores, f)
		kills = append(kills, meanKills(r.stats))
		if f < bestSeedFitness {
			bestSeedFitness = f
			bestSeedHallOfFame = r.hallOfFame
		}
	}

	avgFitness := stat.Mean(scores, nil)

	fe.mu.Lock()
	if avgFitness < fe.bestFitness {
		fe.bestFitness = avgFitness
		fe.bestHallOfFame = bestSeedHallOfFame
	}
	fe.lastKills = stat.Mean(kills, nil)
	fe.mu.Unlock()

	return avgFitness
}

// runSimulation executes a single headless run for the configured number of generations.
func (fe *FitnessEvaluator) runSimulation(x []float64, seed int64) *runResult {
	cfg := fe.baseConfig.Clone()
	fe.params.ApplyToConfig(cfg, x)

	result := &runResult{}
	g, err := game.NewGame(context.Background(), game.Options{
		Seed:   seed,
		Config: cfg,
		GenerationCallback: func(stats telemetry.GenerationStats) {
			result.stats = append(result.stats, stats)
		},
	})
	if err != nil {
		result.err = err
		return result
	}
	defer g.Close()

	result.err = g.Run(context.Background(), fe.generations)
	result.hallOfFame = g.HallOfFame()
	return result
}

// failedFitness scores a run that could not be built or stepped.
const failedFitness = 1e9

// computeFitness scores one run.
func (fe *FitnessEvaluator) computeFitness(r *runResult) float64 {
	if r.err != nil || len(r.stats) == 0 {
		return failedFitness
	}
	tail := r.stats[max(0, len(r.stats)-fe.tailWindow):]
	means := make([]float64, len(tail))
	for i, s := range tail {
		means[i] = s.FitnessMean
	}
	return -stat.Mean(means, nil)
}

func meanKills(stats []telemetry.GenerationStats) float64 {
	if len(stats) == 0 {
		return 0
	}
	kills := make([]float64, len(stats))
	for i, s := range stats {
		kills[i] = float64(s.Kills)
	}
	return stat.Mean(kills, nil)
}
