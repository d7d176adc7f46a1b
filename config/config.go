// Package config provides configuration loading and access for the simulation.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// SensorInputs is the fixed length of the sweeper sensor vector:
// closest mine dx, dy and the heading look-at cos, -sin.
const SensorInputs = 4

// MinOutputs is the minimum number of brain outputs: left track, right track, shoot.
const MinOutputs = 3

// Config holds all simulation configuration parameters.
type Config struct {
	Arena      ArenaConfig      `yaml:"arena"`
	Population PopulationConfig `yaml:"population"`
	Generation GenerationConfig `yaml:"generation"`
	Physics    PhysicsConfig    `yaml:"physics"`
	Neural     NeuralConfig     `yaml:"neural"`
	Genetic    GeneticConfig    `yaml:"genetic"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Storage    StorageConfig    `yaml:"storage"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// ArenaConfig holds the toroidal arena dimensions.
type ArenaConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// PopulationConfig holds entity counts. The sweeper count is also the GA population size.
type PopulationConfig struct {
	Sweepers int `yaml:"sweepers"`
	Mines    int `yaml:"mines"`
}

// GenerationConfig controls when the generational transition runs.
type GenerationConfig struct {
	Ticks          int  `yaml:"ticks"`           // Ticks per generation
	ResetPlacement bool `yaml:"reset_placement"` // Re-randomize position and heading at each transition
}

// PhysicsConfig holds per-tick movement and combat parameters.
type PhysicsConfig struct {
	MaxTurnRate    float64 `yaml:"max_turn_rate"`   // Radians per tick
	HitRadius      float64 `yaml:"hit_radius"`      // Bullet/sweeper and sweeper/mine contact distance
	BulletSpeed    float64 `yaml:"bullet_speed"`    // Units per tick
	ReloadTicks    int     `yaml:"reload_ticks"`    // Cooldown after firing
	ShootThreshold float64 `yaml:"shoot_threshold"` // Shoot output above this fires
}

// NeuralConfig holds decision network topology.
type NeuralConfig struct {
	Inputs             int     `yaml:"inputs"`
	HiddenLayers       []int   `yaml:"hidden_layers"` // Sizes of hidden layers, e.g. [6]
	Outputs            int     `yaml:"outputs"`
	Bias               float64 `yaml:"bias"`
	ActivationResponse float64 `yaml:"activation_response"`
}

// GeneticConfig holds evolutionary optimizer parameters.
type GeneticConfig struct {
	MutationRate    float64 `yaml:"mutation_rate"`
	CrossoverRate   float64 `yaml:"crossover_rate"`
	MaxPerturbation float64 `yaml:"max_perturbation"`
	NumElite        int     `yaml:"num_elite"`
	NumCopiesElite  int     `yaml:"num_copies_elite"`
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	PerfCollectorWindow int `yaml:"perf_collector_window"`
	HallOfFameSize      int `yaml:"hall_of_fame_size"`
	PerfLogInterval     int `yaml:"perf_log_interval"` // generations between perf log lines
}

// StorageConfig selects the genome population store.
type StorageConfig struct {
	Backend    string `yaml:"backend"` // "memory" or "sqlite"
	SQLitePath string `yaml:"sqlite_path"`
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	ArenaW     float64 // Arena.Width as float64
	ArenaH     float64 // Arena.Height as float64
	NumWeights int     // Total brain weights including biases
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Default returns a fresh copy of the embedded defaults.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults invalid: %v", err))
	}
	return cfg
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.computeDerived()

	return cfg, nil
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Neural.HiddenLayers = append([]int(nil), c.Neural.HiddenLayers...)
	return &clone
}

// Validate checks the configuration for values the simulation cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Arena.Width <= 0 || c.Arena.Height <= 0 {
		errs = append(errs, fmt.Errorf("arena must have positive dimensions, got %dx%d", c.Arena.Width, c.Arena.Height))
	}
	if c.Population.Sweepers <= 0 {
		errs = append(errs, fmt.Errorf("population.sweepers must be positive, got %d", c.Population.Sweepers))
	}
	if c.Population.Mines < 0 {
		errs = append(errs, fmt.Errorf("population.mines must not be negative, got %d", c.Population.Mines))
	}
	if c.Generation.Ticks <= 0 {
		errs = append(errs, fmt.Errorf("generation.ticks must be positive, got %d", c.Generation.Ticks))
	}
	if c.Neural.Inputs != SensorInputs {
		errs = append(errs, fmt.Errorf("neural.inputs must be %d, got %d", SensorInputs, c.Neural.Inputs))
	}
	if c.Neural.Outputs < MinOutputs {
		errs = append(errs, fmt.Errorf("neural.outputs must be at least %d, got %d", MinOutputs, c.Neural.Outputs))
	}
	for i, n := range c.Neural.HiddenLayers {
		if n <= 0 {
			errs = append(errs, fmt.Errorf("neural.hidden_layers[%d] must be positive, got %d", i, n))
		}
	}
	if c.Neural.ActivationResponse == 0 {
		errs = append(errs, errors.New("neural.activation_response must not be zero"))
	}
	if c.Genetic.MutationRate < 0 || c.Genetic.MutationRate > 1 {
		errs = append(errs, fmt.Errorf("genetic.mutation_rate must be in [0,1], got %v", c.Genetic.MutationRate))
	}
	if c.Genetic.CrossoverRate < 0 || c.Genetic.CrossoverRate > 1 {
		errs = append(errs, fmt.Errorf("genetic.crossover_rate must be in [0,1], got %v", c.Genetic.CrossoverRate))
	}
	if c.Physics.ReloadTicks < 0 {
		errs = append(errs, fmt.Errorf("physics.reload_ticks must not be negative, got %d", c.Physics.ReloadTicks))
	}
	if c.Telemetry.HallOfFameSize < 0 {
		errs = append(errs, fmt.Errorf("telemetry.hall_of_fame_size must not be negative, got %d", c.Telemetry.HallOfFameSize))
	}
	switch c.Storage.Backend {
	case "", "memory":
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			errs = append(errs, errors.New("storage.sqlite_path is required for the sqlite backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend must be memory or sqlite, got %q", c.Storage.Backend))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.ArenaW = float64(c.Arena.Width)
	c.Derived.ArenaH = float64(c.Arena.Height)

	// Each neuron carries one weight per input plus a bias weight
	weights := 0
	in := c.Neural.Inputs
	for _, n := range c.Neural.HiddenLayers {
		weights += n * (in + 1)
		in = n
	}
	weights += c.Neural.Outputs * (in + 1)
	c.Derived.NumWeights = weights
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
