// Package telemetry collects per-generation statistics and writes them out.
package telemetry

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// GenerationStats holds aggregated statistics for one generation, sampled
// just before the transition.
type GenerationStats struct {
	Generation int `csv:"generation"`
	Ticks      int `csv:"ticks"`

	// Fitness distribution (mines swept per sweeper)
	FitnessMean float64 `csv:"fitness_mean"`
	FitnessStd  float64 `csv:"fitness_std"`
	FitnessMin  float64 `csv:"fitness_min"`
	FitnessP50  float64 `csv:"fitness_p50"`
	FitnessMax  float64 `csv:"fitness_max"`

	// Events during the generation
	Survivors  int `csv:"survivors"`
	ShotsFired int `csv:"shots_fired"`
	Kills      int `csv:"kills"`
	MinesSwept int `csv:"mines_swept"`

	// Optimizer statistics as reported at the transition
	OptimizerAvg  float64 `csv:"optimizer_avg"`
	OptimizerBest float64 `csv:"optimizer_best"`
}

// ComputeFitnessStats calculates mean, standard deviation, min, median and max.
// Returns zeros for an empty slice.
func ComputeFitnessStats(values []float64) (mean, std, lo, p50, hi float64) {
	n := len(values)
	if n == 0 {
		return 0, 0, 0, 0, 0
	}

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	mean = stat.Mean(sorted, nil)
	if n > 1 {
		std = stat.StdDev(sorted, nil)
	}
	p50 = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	lo = floats.Min(sorted)
	hi = floats.Max(sorted)
	return mean, std, lo, p50, hi
}

// LogValue implements slog.LogValuer for structured logging.
func (s GenerationStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("generation", s.Generation),
		slog.Int("ticks", s.Ticks),
		slog.Float64("fitness_mean", s.FitnessMean),
		slog.Float64("fitness_std", s.FitnessStd),
		slog.Float64("fitness_min", s.FitnessMin),
		slog.Float64("fitness_p50", s.FitnessP50),
		slog.Float64("fitness_max", s.FitnessMax),
		slog.Int("survivors", s.Survivors),
		slog.Int("shots_fired", s.ShotsFired),
		slog.Int("kills", s.Kills),
		slog.Int("mines_swept", s.MinesSwept),
		slog.Float64("optimizer_avg", s.OptimizerAvg),
		slog.Float64("optimizer_best", s.OptimizerBest),
	)
}
