package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pthm-cable/sweepers/config"
	"github.com/pthm-cable/sweepers/game"
	"github.com/pthm-cable/sweepers/storage"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	seed := flag.Int64("seed", 0, "RNG seed (0 = time-based)")
	maxGenerations := flag.Int("max-generations", 0, "Stop after N generations (0 = unlimited)")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs, config snapshot and hall of fame")
	storeKind := flag.String("store", "", "Population store: memory or sqlite (empty = use config)")
	sqlitePath := flag.String("sqlite-path", "", "SQLite database file (empty = use config)")
	runID := flag.String("run-id", "", "Run identifier in the store (empty = generate)")
	resume := flag.Bool("resume", false, "Resume the latest stored population of -run-id")
	logPerf := flag.Bool("log-perf", false, "Log tick timing breakdown")

	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	// CLI overrides config
	if *storeKind != "" {
		cfg.Storage.Backend = *storeKind
	}
	if *sqlitePath != "" {
		cfg.Storage.SQLitePath = *sqlitePath
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid options", "error", err)
		os.Exit(1)
	}

	rngSeed := *seed
	if rngSeed == 0 {
		rngSeed = time.Now().UnixNano()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, game.Options{
		Seed:      rngSeed,
		Config:    cfg,
		OutputDir: *outputDir,
		RunID:     *runID,
		Resume:    *resume,
		LogPerf:   *logPerf,
	}, *maxGenerations); err != nil {
		slog.Error("simulation failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, opts game.Options, maxGenerations int) error {
	store, err := storage.NewStore(cfg.Storage.Backend, cfg.Storage.SQLitePath)
	if err != nil {
		return err
	}
	if err := store.Init(ctx); err != nil {
		return err
	}
	defer store.Close()
	opts.Store = store

	g, err := game.NewGame(ctx, opts)
	if err != nil {
		return err
	}
	defer g.Close()

	slog.Info("starting simulation",
		"seed", opts.Seed,
		"run_id", g.RunID(),
		"store", cfg.Storage.Backend,
		"sweepers", cfg.Population.Sweepers,
		"mines", cfg.Population.Mines,
		"ticks_per_generation", cfg.Generation.Ticks,
		"max_generations", maxGenerations,
	)

	err = g.Run(ctx, maxGenerations)
	if ctx.Err() != nil {
		slog.Info("interrupted", "generation", g.Generation())
		return nil
	}
	if err != nil {
		return err
	}
	slog.Info("max generations reached", "generation", g.Generation())
	return nil
}
