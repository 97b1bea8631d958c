package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/openballot/votectl/internal/protocol"
	"github.com/openballot/votectl/internal/session"
)

// Config is the coordinator daemon configuration.
type Config struct {
	Name           string             `toml:"name"`
	ControlAddr    string             `toml:"control_addr"`
	CorsOrigins    []string           `toml:"cors_origins"`
	ListenUDP      string             `toml:"listen_udp"`
	MTU            int                `toml:"mtu"`
	MaxControllers int                `toml:"max_controllers"`
	Controllers    []ControllerConfig `toml:"controllers"`
	Session        SessionConfig      `toml:"session"`
}

// ControllerConfig maps one controller identity to its datagram address.
type ControllerConfig struct {
	ID   string `toml:"id"`
	Addr string `toml:"addr"`
}

// SessionConfig is the round-lifecycle policy block.
type SessionConfig struct {
	TickIntervalMS   int     `toml:"tick_interval_ms"`
	RetryInitialMS   int     `toml:"retry_initial_ms"`
	RetryMultiplier  float64 `toml:"retry_multiplier"`
	RetryMaxMS       int     `toml:"retry_max_ms"`
	RetryMaxAttempts int     `toml:"retry_max_attempts"`
	RetryJitter      bool    `toml:"retry_jitter"`
}

func Load(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	ApplyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func ApplyDefaults(cfg *Config) {
	if cfg.Name == "" {
		cfg.Name = "votectl"
	}
	if cfg.ControlAddr == "" {
		cfg.ControlAddr = ":9300"
	}
	if cfg.ListenUDP == "" {
		cfg.ListenUDP = ":9301"
	}
	if cfg.MTU == 0 {
		cfg.MTU = 128
	}
	if cfg.MaxControllers == 0 {
		cfg.MaxControllers = 5
	}
	def := session.DefaultConfig()
	if cfg.Session.TickIntervalMS == 0 {
		cfg.Session.TickIntervalMS = int(def.TickInterval / time.Millisecond)
	}
	if cfg.Session.RetryInitialMS == 0 {
		cfg.Session.RetryInitialMS = int(def.Retry.InitialDelay / time.Millisecond)
	}
	if cfg.Session.RetryMultiplier == 0 {
		cfg.Session.RetryMultiplier = def.Retry.Multiplier
	}
	if cfg.Session.RetryMaxMS == 0 {
		cfg.Session.RetryMaxMS = int(def.Retry.MaxDelay / time.Millisecond)
	}
	if cfg.Session.RetryMaxAttempts == 0 {
		cfg.Session.RetryMaxAttempts = def.Retry.MaxAttempts
	}
}

func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("config missing name")
	}
	if strings.TrimSpace(cfg.ControlAddr) == "" {
		return fmt.Errorf("config missing control_addr")
	}
	if cfg.MTU < protocol.HeaderLen+2 {
		return fmt.Errorf("mtu %d too small for protocol frames", cfg.MTU)
	}
	if cfg.MaxControllers < 1 {
		return fmt.Errorf("max_controllers must be positive")
	}
	if len(cfg.Controllers) > cfg.MaxControllers {
		return fmt.Errorf("%d controllers configured, max_controllers is %d",
			len(cfg.Controllers), cfg.MaxControllers)
	}
	seen := make(map[string]bool, len(cfg.Controllers))
	for i, ctl := range cfg.Controllers {
		if err := ValidateControllerEntry(ctl); err != nil {
			return fmt.Errorf("controller[%d] invalid: %w", i, err)
		}
		if seen[ctl.ID] {
			return fmt.Errorf("controller[%d] duplicate id %q", i, ctl.ID)
		}
		seen[ctl.ID] = true
	}
	if cfg.Session.RetryMaxAttempts < 1 {
		return fmt.Errorf("retry_max_attempts must be positive")
	}
	if cfg.Session.RetryMultiplier < 1 {
		return fmt.Errorf("retry_multiplier must be at least 1")
	}
	return nil
}

func ValidateControllerEntry(ctl ControllerConfig) error {
	if strings.TrimSpace(ctl.ID) == "" {
		return fmt.Errorf("id is required")
	}
	if strings.TrimSpace(ctl.Addr) == "" {
		return fmt.Errorf("addr is required")
	}
	return nil
}

// SessionPolicy converts the policy block into the session package's form.
func (c Config) SessionPolicy() session.Config {
	return session.Config{
		TickInterval: time.Duration(c.Session.TickIntervalMS) * time.Millisecond,
		Retry: session.RetryConfig{
			InitialDelay: time.Duration(c.Session.RetryInitialMS) * time.Millisecond,
			Multiplier:   c.Session.RetryMultiplier,
			MaxDelay:     time.Duration(c.Session.RetryMaxMS) * time.Millisecond,
			MaxAttempts:  c.Session.RetryMaxAttempts,
			Jitter:       c.Session.RetryJitter,
		},
	}
}
