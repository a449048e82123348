package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func validConfig() *Config {
	cfg := Default()
	cfg.Simulator.Command = []string{"./bridge"}
	return cfg
}

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Genetic.PopSize != 50 || cfg.Genetic.Offspring != 10 || cfg.Genetic.Generations != 76 {
		t.Errorf("Unexpected GA defaults: %+v", cfg.Genetic)
	}
	if cfg.Genetic.CrossoverProb != 0.9 || cfg.Genetic.CrossoverEta != 15 || cfg.Genetic.MutationEta != 20 {
		t.Errorf("Unexpected operator defaults: %+v", cfg.Genetic)
	}
	if cfg.Seed != 1 {
		t.Errorf("Expected seed 1, got %d", cfg.Seed)
	}
	if cfg.OffsetRange != 50 {
		t.Errorf("Expected offset range 50, got %f", cfg.OffsetRange)
	}
	if err := validConfig().Validate(); err != nil {
		t.Errorf("Defaults with a simulator command should validate: %v", err)
	}
}

func TestParseOverlaysDefaults(t *testing.T) {
	yamlText := `
routes: routes/town05.yaml
strategy: genetic
genetic:
  generations: 5
simulator:
  command: ["python", "bridge.py"]
  timeout: 90s
`
	cfg, err := Parse([]byte(yamlText))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.Strategy != StrategyGenetic || cfg.Genetic.Generations != 5 {
		t.Errorf("YAML values not applied: %+v", cfg)
	}
	if cfg.Genetic.PopSize != 50 {
		t.Errorf("Unset fields should keep defaults, got pop size %d", cfg.Genetic.PopSize)
	}
	if cfg.Simulator.Timeout != 90*time.Second {
		t.Errorf("Expected 90s timeout, got %v", cfg.Simulator.Timeout)
	}
	if len(cfg.Simulator.Command) != 2 {
		t.Errorf("Expected 2-element command, got %v", cfg.Simulator.Command)
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		EnvGA:          "1",
		EnvLog:         "true",
		EnvSurrogate:   "True",
		EnvRegion:      "75.5",
		EnvFitnessPath: "/tmp/logs",
	}))
	if err != nil {
		t.Fatalf("ApplyEnv failed: %v", err)
	}
	if cfg.Strategy != StrategyGenetic || !cfg.Log || !cfg.Surrogate {
		t.Errorf("Toggles not applied: %+v", cfg)
	}
	if cfg.Region != 75.5 || cfg.FitnessPath != "/tmp/logs" {
		t.Errorf("Region/fitness path not applied: %f %s", cfg.Region, cfg.FitnessPath)
	}

	cfg.ApplyEnv(envMap(map[string]string{EnvGA: "false"}))
	if cfg.Strategy != StrategyRandom {
		t.Errorf("GA=false should select random search, got %s", cfg.Strategy)
	}
}

func TestApplyEnvUnsetLeavesValues(t *testing.T) {
	cfg := Default()
	cfg.Strategy = StrategyScalarized
	if err := cfg.ApplyEnv(envMap(nil)); err != nil {
		t.Fatal(err)
	}
	if cfg.Strategy != StrategyScalarized {
		t.Errorf("Unset GA must not change strategy, got %s", cfg.Strategy)
	}
}

func TestApplyEnvInvalid(t *testing.T) {
	for _, key := range []string{EnvGA, EnvLog, EnvSurrogate, EnvRegion} {
		cfg := Default()
		err := cfg.ApplyEnv(envMap(map[string]string{key: "maybe"}))
		if err == nil || !strings.Contains(err.Error(), key) {
			t.Errorf("Expected error naming %s, got %v", key, err)
		}
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte("strategy: random\nrandom:\n  case_number: 3\n"), 0644)

	cfg, err := Load(path, envMap(map[string]string{EnvGA: "yes"}))
	if err == nil {
		t.Fatalf("Expected error for unparsable GA value, got %+v", cfg)
	}

	cfg, err = Load(path, envMap(map[string]string{EnvGA: "1"}))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Strategy != StrategyGenetic {
		t.Errorf("Environment should override file, got %s", cfg.Strategy)
	}
	if cfg.Random.CaseNumber != 3 {
		t.Errorf("Expected case number 3, got %d", cfg.Random.CaseNumber)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"bad strategy", func(c *Config) { c.Strategy = "annealing" }, "strategy"},
		{"no routes", func(c *Config) { c.RoutesPath = "" }, "routes"},
		{"zero repetitions", func(c *Config) { c.Repetitions = 0 }, "repetitions"},
		{"zero cases", func(c *Config) { c.Random.CaseNumber = 0 }, "case_number"},
		{"tiny population", func(c *Config) { c.Genetic.PopSize = 1 }, "pop_size"},
		{"crossover prob", func(c *Config) { c.Genetic.CrossoverProb = 1.5 }, "crossover_prob"},
		{"no command", func(c *Config) { c.Simulator.Command = nil }, "simulator.command"},
		{"surrogate kind", func(c *Config) { c.Surrogate = true; c.Models.Kind = "forest" }, "kind"},
		{"zero weights", func(c *Config) {
			c.Strategy = StrategyScalarized
			c.Scalarized.Weights = [3]float64{}
		}, "weights"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}

	// Literal vectors replace the case number
	cfg := validConfig()
	cfg.Random.CaseNumber = 0
	cfg.Random.VectorsPath = "vectors.csv"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Literal batch should validate without case number: %v", err)
	}

	// Surrogate runs need no simulator
	cfg = Default()
	cfg.Surrogate = true
	if err := cfg.Validate(); err != nil {
		t.Errorf("Surrogate config should validate without simulator: %v", err)
	}
}

func TestLogDir(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "/data"
	if got := cfg.LogDir("abc"); got != filepath.Join("/data", "runs", "abc", "logs") {
		t.Errorf("Unexpected default log dir %s", got)
	}
	cfg.FitnessPath = "/elsewhere"
	if got := cfg.LogDir("abc"); got != "/elsewhere" {
		t.Errorf("Expected fitness path override, got %s", got)
	}
}

func TestSnapshot(t *testing.T) {
	cfg := Default()
	snap := cfg.Snapshot(ModeSweep)
	if snap.Mode != ModeSweep || snap.Strategy != cfg.Strategy || snap.RoutesPath != cfg.RoutesPath {
		t.Errorf("Unexpected snapshot: %+v", snap)
	}
	if snap.PopSize != cfg.Genetic.PopSize || snap.Offspring != cfg.Genetic.Offspring ||
		snap.Generations != cfg.Genetic.Generations || snap.VectorsPath != cfg.Random.VectorsPath {
		t.Errorf("Search sizing missing from snapshot: %+v", snap)
	}
}
