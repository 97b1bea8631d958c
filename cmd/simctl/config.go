package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// simConfig shapes one simulated vote: how many controllers, how hostile the
// link is, and the round parameters.
type simConfig struct {
	Controllers   int
	Choices       int
	DropRate      float64
	DuplicateRate float64
	Seed          int64
	MTU           int
	Ballot        string
	Deadline      time.Duration
}

type fileConfig struct {
	Controllers     int     `toml:"controllers"`
	Choices         int     `toml:"choices"`
	DropRate        float64 `toml:"drop_rate"`
	DuplicateRate   float64 `toml:"duplicate_rate"`
	Seed            int64   `toml:"seed"`
	MTU             int     `toml:"mtu"`
	Ballot          string  `toml:"ballot"`
	DeadlineSeconds int     `toml:"deadline_seconds"`
}

func defaultSimConfig() simConfig {
	return simConfig{
		Controllers:   3,
		Choices:       2,
		DropRate:      0.2,
		DuplicateRate: 0.1,
		Seed:          1,
		MTU:           64,
		Ballot:        "extend the break?",
		Deadline:      10 * time.Second,
	}
}

func loadSimConfig(path string) (simConfig, error) {
	cfg := defaultSimConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return simConfig{}, fmt.Errorf("load sim config: %w", err)
	}

	if meta.IsDefined("controllers") {
		cfg.Controllers = raw.Controllers
	}
	if meta.IsDefined("choices") {
		cfg.Choices = raw.Choices
	}
	if meta.IsDefined("drop_rate") {
		cfg.DropRate = raw.DropRate
	}
	if meta.IsDefined("duplicate_rate") {
		cfg.DuplicateRate = raw.DuplicateRate
	}
	if meta.IsDefined("seed") {
		cfg.Seed = raw.Seed
	}
	if meta.IsDefined("mtu") {
		cfg.MTU = raw.MTU
	}
	if meta.IsDefined("ballot") {
		cfg.Ballot = strings.TrimSpace(raw.Ballot)
	}
	if meta.IsDefined("deadline_seconds") {
		cfg.Deadline = time.Duration(raw.DeadlineSeconds) * time.Second
	}

	if err := validateSimConfig(cfg); err != nil {
		return simConfig{}, err
	}
	return cfg, nil
}

func validateSimConfig(cfg simConfig) error {
	if cfg.Controllers < 1 {
		return fmt.Errorf("controllers must be positive")
	}
	if cfg.Choices < 2 {
		return fmt.Errorf("choices must be at least 2")
	}
	if cfg.DropRate < 0 || cfg.DropRate >= 1 {
		return fmt.Errorf("drop_rate must be in [0,1)")
	}
	if cfg.DuplicateRate < 0 || cfg.DuplicateRate >= 1 {
		return fmt.Errorf("duplicate_rate must be in [0,1)")
	}
	if cfg.Ballot == "" {
		return fmt.Errorf("ballot is required")
	}
	return nil
}
