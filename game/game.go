// Package game runs the mine-sweeper arena: the Gamestate core (sensing,
// turn step, generational transition) and the Game driver that steps it
// through generations with telemetry and persistence.
package game

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math/rand"
	"path/filepath"
	"time"

	"github.com/pthm-cable/sweepers/components"
	"github.com/pthm-cable/sweepers/config"
	"github.com/pthm-cable/sweepers/evolution"
	"github.com/pthm-cable/sweepers/neural"
	"github.com/pthm-cable/sweepers/storage"
	"github.com/pthm-cable/sweepers/telemetry"
)

// Options configures a Game.
type Options struct {
	Seed int64
	// Config defaults to config.Cfg().
	Config *config.Config
	// OutputDir enables CSV, config and hall of fame output when set.
	OutputDir string
	// Store persists each new population. It must already be initialized.
	Store storage.Store
	// RunID identifies the run in Store. A fresh one is generated when empty.
	RunID string
	// Resume loads the latest population of RunID from Store.
	Resume bool
	// LogPerf logs perf stats every telemetry.perf_log_interval generations.
	LogPerf bool
	// GenerationCallback is called after every transition.
	GenerationCallback func(telemetry.GenerationStats)
}

// Game drives a Gamestate through ticks and generations.
type Game struct {
	cfg   *config.Config
	rng   *rand.Rand
	state *Gamestate
	ga    *evolution.GenAlg

	store storage.Store
	runID string

	outputManager *telemetry.OutputManager
	perfCollector *telemetry.PerfCollector
	hallOfFame    *telemetry.HallOfFame

	logPerf            bool
	generationCallback func(telemetry.GenerationStats)
	lastStats          telemetry.GenerationStats
}

// NewGame builds the arena, brains and optimizer described by the config.
func NewGame(ctx context.Context, opts Options) (*Game, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Cfg()
	}
	rng := rand.New(rand.NewSource(opts.Seed))

	state, err := NewGamestate(cfg.Arena.Width, cfg.Arena.Height, PhysicsFromConfig(cfg.Physics), rng)
	if err != nil {
		return nil, err
	}
	state.ResetPlacement = cfg.Generation.ResetPlacement

	topo := neural.TopologyFromConfig(cfg.Neural)
	newBrain := func() components.Brain {
		return neural.NewFFNN(rng, topo)
	}
	if err := state.Populate(cfg.Population.Sweepers, cfg.Population.Mines, newBrain); err != nil {
		return nil, err
	}

	ga, err := evolution.NewGenAlg(evolution.ParamsFromConfig(cfg.Genetic, cfg.Population.Sweepers, topo.NumWeights()), rng)
	if err != nil {
		return nil, err
	}
	if err := state.AttachOptimizer(ga); err != nil {
		return nil, fmt.Errorf("attaching optimizer: %w", err)
	}

	g := &Game{
		cfg:                cfg,
		rng:                rng,
		state:              state,
		ga:                 ga,
		store:              opts.Store,
		runID:              opts.RunID,
		perfCollector:      telemetry.NewPerfCollector(cfg.Telemetry.PerfCollectorWindow),
		hallOfFame:         telemetry.NewHallOfFame(cfg.Telemetry.HallOfFameSize),
		logPerf:            opts.LogPerf,
		generationCallback: opts.GenerationCallback,
	}

	if opts.Resume {
		if g.store == nil || g.runID == "" {
			return nil, errors.New("resume needs a store and a run id")
		}
		if err := g.resume(ctx, opts.OutputDir); err != nil {
			return nil, err
		}
	}
	if g.runID == "" {
		g.runID = storage.NewRunID()
	}

	om, err := telemetry.NewOutputManager(opts.OutputDir)
	if err != nil {
		return nil, err
	}
	g.outputManager = om
	if err := om.WriteConfig(cfg); err != nil {
		slog.Error("failed to write config", "error", err)
	}

	return g, nil
}

// resume loads the latest stored population for the run and, when outputDir
// holds one, the hall of fame written before the restart.
func (g *Game) resume(ctx context.Context, outputDir string) error {
	rec, ok, err := g.store.LatestPopulation(ctx, g.runID)
	if err != nil {
		return fmt.Errorf("loading run %s: %w", g.runID, err)
	}
	if !ok {
		return fmt.Errorf("run %s has no stored population", g.runID)
	}
	if err := g.state.LoadPopulation(rec.Genomes); err != nil {
		return fmt.Errorf("restoring run %s: %w", g.runID, err)
	}
	g.state.SetGeneration(rec.Generation)

	if outputDir != "" {
		hof, err := telemetry.LoadHallOfFameFromFile(filepath.Join(outputDir, telemetry.HallOfFameFile), g.cfg.Telemetry.HallOfFameSize)
		switch {
		case err == nil:
			g.hallOfFame = hof
		case errors.Is(err, fs.ErrNotExist):
		default:
			return fmt.Errorf("restoring hall of fame: %w", err)
		}
	}

	slog.Info("resumed run",
		"run_id", g.runID,
		"generation", rec.Generation,
		"saved_at", rec.SavedAt,
		"hall_of_fame", g.hallOfFame.Size(),
	)
	return nil
}

// Step advances one tick, ending the generation when its tick budget is spent.
func (g *Game) Step(ctx context.Context) error {
	g.perfCollector.StartTick()
	defer g.perfCollector.EndTick()

	g.perfCollector.StartPhase(telemetry.PhaseTurn)
	if err := g.state.DoTurn(); err != nil {
		return fmt.Errorf("tick %d: %w", g.state.Ticks(), err)
	}

	if g.state.Ticks() >= g.cfg.Generation.Ticks {
		return g.endGeneration(ctx)
	}
	return nil
}

// EndGeneration forces a transition regardless of the tick count.
func (g *Game) EndGeneration(ctx context.Context) error {
	g.perfCollector.StartTick()
	defer g.perfCollector.EndTick()
	return g.endGeneration(ctx)
}

func (g *Game) endGeneration(ctx context.Context) error {
	// Sample the finished generation before the transition resets it
	fitness := make([]float64, len(g.state.Population))
	for i, genome := range g.state.Population {
		fitness[i] = genome.Fitness
	}
	mean, std, lo, p50, hi := telemetry.ComputeFitnessStats(fitness)
	counters := g.state.Counters()
	stats := telemetry.GenerationStats{
		Ticks:       g.state.Ticks(),
		FitnessMean: mean,
		FitnessStd:  std,
		FitnessMin:  lo,
		FitnessP50:  p50,
		FitnessMax:  hi,
		Survivors:   g.state.AliveCount(),
		ShotsFired:  counters.ShotsFired,
		Kills:       counters.Kills,
		MinesSwept:  counters.MinesSwept,
	}
	g.hallOfFame.ConsiderAll(g.state.Population, g.state.Generation()+1)

	g.perfCollector.StartPhase(telemetry.PhaseTransition)
	report, err := g.state.BrainTransplant()
	if err != nil {
		return fmt.Errorf("transition: %w", err)
	}
	stats.Generation = report.Generation
	stats.OptimizerAvg = report.AverageFitness
	stats.OptimizerBest = report.BestFitness
	g.lastStats = stats

	g.perfCollector.StartPhase(telemetry.PhaseTelemetry)
	slog.Info(report.String(), "stats", stats)
	g.writeTelemetry(stats)

	g.perfCollector.StartPhase(telemetry.PhaseStorage)
	if err := g.persist(ctx, report.Generation); err != nil {
		return err
	}

	if g.generationCallback != nil {
		g.generationCallback(stats)
	}
	return nil
}

func (g *Game) writeTelemetry(stats telemetry.GenerationStats) {
	perfStats := g.perfCollector.Stats()

	interval := max(g.cfg.Telemetry.PerfLogInterval, 1)
	if g.logPerf && stats.Generation%interval == 0 {
		perfStats.LogStats()
	}

	if g.outputManager == nil {
		return
	}
	if err := g.outputManager.WriteGeneration(stats); err != nil {
		slog.Error("failed to write generation", "error", err)
	}
	if err := g.outputManager.WritePerf(perfStats, stats.Generation); err != nil {
		slog.Error("failed to write perf", "error", err)
	}
	if err := g.outputManager.WriteHallOfFame(g.hallOfFame); err != nil {
		slog.Error("failed to write hall of fame", "error", err)
	}
}

// persist saves the freshly bred population.
func (g *Game) persist(ctx context.Context, generation int) error {
	if g.store == nil {
		return nil
	}
	rec := storage.PopulationRecord{
		RunID:      g.runID,
		Generation: generation,
		Genomes:    g.state.Population,
		SavedAt:    time.Now().UTC(),
	}
	if err := g.store.SavePopulation(ctx, rec); err != nil {
		return fmt.Errorf("saving generation %d: %w", generation, err)
	}
	return nil
}

// Run steps until maxGenerations transitions have completed (0 = unlimited)
// or ctx is cancelled. Cancellation is checked between ticks.
func (g *Game) Run(ctx context.Context, maxGenerations int) error {
	target := g.state.Generation() + maxGenerations
	for maxGenerations <= 0 || g.state.Generation() < target {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := g.Step(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes output files. The store is owned by the caller.
func (g *Game) Close() error {
	return g.outputManager.Close()
}

// State returns the arena.
func (g *Game) State() *Gamestate { return g.state }

// RunID returns the identifier used for stored populations.
func (g *Game) RunID() string { return g.runID }

// Generation returns the number of completed transitions.
func (g *Game) Generation() int { return g.state.Generation() }

// HallOfFame returns the best genomes seen so far.
func (g *Game) HallOfFame() *telemetry.HallOfFame { return g.hallOfFame }

// LastStats returns the statistics of the most recent transition.
func (g *Game) LastStats() telemetry.GenerationStats { return g.lastStats }
