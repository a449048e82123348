// Package config builds the single settings struct a run is driven by.
//
// Precedence, lowest first: Default, YAML file, environment toggles, CLI
// flags. The environment is read once, through an injected lookup, when the
// config is loaded; nothing downstream consults it again.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cwbudde/scenariosearch/internal/scenario"
	"github.com/cwbudde/scenariosearch/internal/store"
)

// Search strategies.
const (
	StrategyRandom     = "random"
	StrategyGenetic    = "genetic"
	StrategyScalarized = "scalarized"
)

// Run modes.
const (
	ModeSearch = "search"
	ModeSweep  = "sweep"
)

// Surrogate model kinds.
const (
	ModelKriging    = "kriging"
	ModelPolynomial = "polynomial"
)

// Environment toggles.
const (
	EnvGA          = "GA"
	EnvLog         = "LOG"
	EnvSurrogate   = "SURROGATE"
	EnvRegion      = "REGION"
	EnvFitnessPath = "FITNESS_PATH"
)

// Config holds every setting of a run.
type Config struct {
	DataDir     string `yaml:"data_dir"`
	RoutesPath  string `yaml:"routes"`
	Repetitions int    `yaml:"repetitions"`

	// FitnessPath is the directory the criteria, fitness, scenario and
	// prediction logs are appended to. Empty means <run dir>/logs.
	FitnessPath string `yaml:"fitness_path"`

	Strategy  string `yaml:"strategy"`
	Log       bool   `yaml:"log"`
	Surrogate bool   `yaml:"surrogate"`

	// Region is the radius in metres around the ego route within which
	// auxiliary vehicles are placed.
	Region float64 `yaml:"region"`

	OffsetRange float64 `yaml:"offset_range"`
	Seed        int64   `yaml:"seed"`

	// ArchivePath enables the SQLite evaluation archive.
	ArchivePath string `yaml:"archive_path"`

	Random     RandomConfig     `yaml:"random"`
	Genetic    GeneticConfig    `yaml:"genetic"`
	Scalarized ScalarizedConfig `yaml:"scalarized"`
	Simulator  SimulatorConfig  `yaml:"simulator"`
	Models     ModelConfig      `yaml:"surrogate_models"`
}

// RandomConfig configures random search.
type RandomConfig struct {
	CaseNumber int `yaml:"case_number"`

	// VectorsPath points at a CSV of literal vectors. When set it replaces
	// uniform sampling.
	VectorsPath string `yaml:"vectors"`
}

// GeneticConfig configures NSGA-II.
type GeneticConfig struct {
	PopSize       int     `yaml:"pop_size"`
	Offspring     int     `yaml:"offspring"`
	Generations   int     `yaml:"generations"`
	CrossoverProb float64 `yaml:"crossover_prob"`
	CrossoverEta  float64 `yaml:"crossover_eta"`
	MutationEta   float64 `yaml:"mutation_eta"`
	// MutationProb is the per-variable mutation probability; 0 means 1/n.
	MutationProb float64 `yaml:"mutation_prob"`
}

// ScalarizedConfig configures the weighted-sum search.
type ScalarizedConfig struct {
	Iterations int        `yaml:"iterations"`
	PopSize    int        `yaml:"pop_size"`
	Weights    [3]float64 `yaml:"weights"`
}

// SimulatorConfig configures the external simulator bridge.
type SimulatorConfig struct {
	// Command is the simulator bridge executable and its arguments.
	Command               []string      `yaml:"command"`
	Timeout               time.Duration `yaml:"timeout"`
	MaxConsecutiveCrashes int           `yaml:"max_consecutive_crashes"`
}

// ModelConfig locates the surrogate regressors.
type ModelConfig struct {
	Dir       string `yaml:"dir"`
	Kind      string `yaml:"kind"`
	CacheSize int    `yaml:"cache_size"`
}

// Default returns the reference configuration.
func Default() *Config {
	return &Config{
		DataDir:     "./data",
		RoutesPath:  "routes.yaml",
		Repetitions: 1,
		Strategy:    StrategyRandom,
		Region:      50,
		OffsetRange: scenario.DefaultOffsetRange,
		Seed:        1,
		Random: RandomConfig{
			CaseNumber: 3000,
		},
		Genetic: GeneticConfig{
			PopSize:       50,
			Offspring:     10,
			Generations:   76,
			CrossoverProb: 0.9,
			CrossoverEta:  15,
			MutationEta:   20,
		},
		Scalarized: ScalarizedConfig{
			Iterations: 20,
			PopSize:    20,
			Weights:    [3]float64{1, 1, 1},
		},
		Simulator: SimulatorConfig{
			Timeout:               10 * time.Minute,
			MaxConsecutiveCrashes: 5,
		},
		Models: ModelConfig{
			Dir:       "./models",
			Kind:      ModelKriging,
			CacheSize: 4096,
		},
	}
}

// Parse overlays YAML onto the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config yaml: %w", err)
	}
	return cfg, nil
}

// Load builds a config from an optional file and the environment. An empty
// path skips the file layer. lookup is typically os.LookupEnv.
func Load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		cfg, err = Parse(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	if lookup != nil {
		if err := cfg.ApplyEnv(lookup); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// ApplyEnv applies the GA, LOG, SURROGATE, REGION and FITNESS_PATH toggles.
// Boolean toggles accept the strconv.ParseBool spellings.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvGA); ok {
		ga, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s=%q: %w", EnvGA, v, err)
		}
		if ga {
			c.Strategy = StrategyGenetic
		} else {
			c.Strategy = StrategyRandom
		}
	}
	if v, ok := lookup(EnvLog); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s=%q: %w", EnvLog, v, err)
		}
		c.Log = b
	}
	if v, ok := lookup(EnvSurrogate); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s=%q: %w", EnvSurrogate, v, err)
		}
		c.Surrogate = b
	}
	if v, ok := lookup(EnvRegion); ok {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %s=%q: %w", EnvRegion, v, err)
		}
		c.Region = r
	}
	if v, ok := lookup(EnvFitnessPath); ok && v != "" {
		c.FitnessPath = v
	}
	return nil
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	switch c.Strategy {
	case StrategyRandom, StrategyGenetic, StrategyScalarized:
	default:
		return fmt.Errorf("invalid strategy: %s (must be random, genetic, or scalarized)", c.Strategy)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir cannot be empty")
	}
	if c.RoutesPath == "" {
		return fmt.Errorf("routes cannot be empty")
	}
	if c.Repetitions < 1 {
		return fmt.Errorf("repetitions must be at least 1")
	}
	if c.Region < 0 {
		return fmt.Errorf("region cannot be negative")
	}
	if c.OffsetRange < 0 {
		return fmt.Errorf("offset_range cannot be negative")
	}

	if c.Random.VectorsPath == "" && c.Random.CaseNumber <= 0 {
		return fmt.Errorf("random.case_number must be positive")
	}

	g := c.Genetic
	if g.PopSize < 2 {
		return fmt.Errorf("genetic.pop_size must be at least 2")
	}
	if g.Offspring < 1 {
		return fmt.Errorf("genetic.offspring must be positive")
	}
	if g.Generations < 1 {
		return fmt.Errorf("genetic.generations must be positive")
	}
	if g.CrossoverProb < 0 || g.CrossoverProb > 1 {
		return fmt.Errorf("genetic.crossover_prob must be within [0,1]")
	}
	if g.MutationProb < 0 || g.MutationProb > 1 {
		return fmt.Errorf("genetic.mutation_prob must be within [0,1]")
	}
	if g.CrossoverEta <= 0 || g.MutationEta <= 0 {
		return fmt.Errorf("genetic distribution indices must be positive")
	}

	if c.Strategy == StrategyScalarized {
		if c.Scalarized.Iterations < 1 {
			return fmt.Errorf("scalarized.iterations must be positive")
		}
		if c.Scalarized.PopSize < 20 {
			return fmt.Errorf("scalarized.pop_size must be at least 20")
		}
		sum := 0.0
		for _, w := range c.Scalarized.Weights {
			if w < 0 {
				return fmt.Errorf("scalarized.weights cannot be negative")
			}
			sum += w
		}
		if sum == 0 {
			return fmt.Errorf("scalarized.weights cannot all be zero")
		}
	}

	if c.Surrogate {
		if c.Models.Dir == "" {
			return fmt.Errorf("surrogate_models.dir is required with surrogate enabled")
		}
		if c.Models.Kind != ModelKriging && c.Models.Kind != ModelPolynomial {
			return fmt.Errorf("invalid surrogate_models.kind: %s (must be kriging or polynomial)", c.Models.Kind)
		}
	} else {
		if len(c.Simulator.Command) == 0 {
			return fmt.Errorf("simulator.command is required without surrogate")
		}
		if c.Simulator.Timeout < 0 {
			return fmt.Errorf("simulator.timeout cannot be negative")
		}
		if c.Simulator.MaxConsecutiveCrashes < 1 {
			return fmt.Errorf("simulator.max_consecutive_crashes must be at least 1")
		}
	}
	return nil
}

// LogDir resolves the log directory for a run.
func (c *Config) LogDir(runID string) string {
	if c.FitnessPath != "" {
		return c.FitnessPath
	}
	return filepath.Join(store.RunDir(c.DataDir, runID), "logs")
}

// Snapshot captures the settings a checkpoint is checked against on resume.
func (c *Config) Snapshot(mode string) store.RunConfig {
	return store.RunConfig{
		RoutesPath:  c.RoutesPath,
		Mode:        mode,
		Strategy:    c.Strategy,
		Surrogate:   c.Surrogate,
		Region:      c.Region,
		Repetitions: c.Repetitions,
		CaseNumber:  c.Random.CaseNumber,
		Seed:        c.Seed,
		VectorsPath: c.Random.VectorsPath,
		PopSize:     c.Genetic.PopSize,
		Offspring:   c.Genetic.Offspring,
		Generations: c.Genetic.Generations,
	}
}
