package store

import (
	"errors"
	"testing"
	"time"
)

func TestCheckpointRecordAdvancesCursor(t *testing.T) {
	cp := NewCheckpoint("run", 3, RunConfig{RoutesPath: "r.yaml", Mode: "sweep"})
	if cp.Cursor != 0 || cp.Done() {
		t.Fatalf("Fresh checkpoint should start at cursor 0, got %d", cp.Cursor)
	}

	for i := 0; i < 3; i++ {
		cp.Record(RouteRecord{Index: i, Status: RouteCompleted})
		if cp.Cursor != i+1 {
			t.Errorf("After route %d expected cursor %d, got %d", i, i+1, cp.Cursor)
		}
	}
	if !cp.Done() {
		t.Error("Checkpoint should be done after all routes")
	}
}

func TestCheckpointValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Checkpoint)
		wantErr string
	}{
		{"valid", func(c *Checkpoint) {}, ""},
		{"empty run id", func(c *Checkpoint) { c.RunID = "" }, "RunID"},
		{"zero total", func(c *Checkpoint) { c.Total = 0 }, "Total"},
		{"cursor past total", func(c *Checkpoint) { c.Cursor = 4 }, "Cursor"},
		{"negative cursor", func(c *Checkpoint) { c.Cursor = -1 }, "Cursor"},
		{"zero timestamp", func(c *Checkpoint) { c.Timestamp = time.Time{} }, "Timestamp"},
		{"no routes path", func(c *Checkpoint) { c.Config.RoutesPath = "" }, "Config.RoutesPath"},
		{"no mode", func(c *Checkpoint) { c.Config.Mode = "" }, "Config.Mode"},
		{"route index out of range", func(c *Checkpoint) { c.Routes[0].Index = 9 }, "Routes[0].Index"},
		{"unknown status", func(c *Checkpoint) { c.Routes[0].Status = "Skipped" }, "Routes[0].Status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cp := createTestCheckpoint("run")
			tt.modify(cp)

			err := cp.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Expected valid checkpoint, got %v", err)
				}
				return
			}

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Expected ValidationError, got %v", err)
			}
			if verr.Field != tt.wantErr {
				t.Errorf("Expected field %s, got %s", tt.wantErr, verr.Field)
			}
		})
	}
}

func TestCheckpointIsCompatible(t *testing.T) {
	cp := createTestCheckpoint("run")

	if err := cp.IsCompatible(cp.Config); err != nil {
		t.Fatalf("Same config should be compatible: %v", err)
	}

	// Seed and case number may change across a resume
	relaxed := cp.Config
	relaxed.Seed = 99
	relaxed.CaseNumber = 7
	if err := cp.IsCompatible(relaxed); err != nil {
		t.Errorf("Seed change should be compatible: %v", err)
	}

	tests := []struct {
		field  string
		modify func(*RunConfig)
	}{
		{"RoutesPath", func(c *RunConfig) { c.RoutesPath = "other.yaml" }},
		{"Mode", func(c *RunConfig) { c.Mode = "search" }},
		{"Strategy", func(c *RunConfig) { c.Strategy = "genetic" }},
		{"Repetitions", func(c *RunConfig) { c.Repetitions = 5 }},
		{"VectorsPath", func(c *RunConfig) { c.VectorsPath = "vectors.csv" }},
	}
	for _, tt := range tests {
		cfg := cp.Config
		tt.modify(&cfg)

		var cerr *CompatibilityError
		if err := cp.IsCompatible(cfg); !errors.As(err, &cerr) || cerr.Field != tt.field {
			t.Errorf("Expected CompatibilityError on %s, got %v", tt.field, err)
		}
	}
}

func TestCheckpointIsCompatible_GeneticSizing(t *testing.T) {
	base := RunConfig{
		RoutesPath:  "routes.yaml",
		Mode:        "search",
		Strategy:    "genetic",
		Repetitions: 1,
		PopSize:     50,
		Offspring:   10,
		Generations: 76,
	}
	cp := NewCheckpoint("ga", 1, base)

	tests := []struct {
		field  string
		modify func(*RunConfig)
	}{
		{"PopSize", func(c *RunConfig) { c.PopSize = 60 }},
		{"Offspring", func(c *RunConfig) { c.Offspring = 20 }},
		{"Generations", func(c *RunConfig) { c.Generations = 10 }},
	}
	for _, tt := range tests {
		cfg := base
		tt.modify(&cfg)

		var cerr *CompatibilityError
		if err := cp.IsCompatible(cfg); !errors.As(err, &cerr) || cerr.Field != tt.field {
			t.Errorf("Expected CompatibilityError on %s, got %v", tt.field, err)
		}
	}

	// Sweeps never run the genetic population
	sweep := base
	sweep.Mode = "sweep"
	changed := sweep
	changed.PopSize = 60
	if err := NewCheckpoint("ga-sweep", 1, sweep).IsCompatible(changed); err != nil {
		t.Errorf("Population change should not affect a sweep: %v", err)
	}
}

func TestCheckpointToInfo(t *testing.T) {
	cp := createTestCheckpoint("run-info")
	cp.Record(RouteRecord{Index: 1, Status: RouteCrashed})
	cp.Record(RouteRecord{Index: 2, Status: RouteRejected})

	info := cp.ToInfo()
	if info.RunID != "run-info" || info.Cursor != 3 || info.Total != 3 {
		t.Errorf("Unexpected info: %+v", info)
	}
	if info.Failures != 2 {
		t.Errorf("Expected 2 failed routes, got %d", info.Failures)
	}
	if info.Routes != "routes/town05.yaml" || info.Strategy != "random" {
		t.Errorf("Config fields not carried: %+v", info)
	}
}
