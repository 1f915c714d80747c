// Package config provides configuration loading for swarmd.
//
// All tunables (retry limits, the confidence floor, the quality
// threshold, iteration budgets) live here and are loaded once at
// startup, then passed into each component explicitly. Nothing reads
// ambient global state at decision time.
package config

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/swarmd/internal/logging"
	"github.com/fyrsmithlabs/swarmd/internal/quality"
	"github.com/fyrsmithlabs/swarmd/internal/retry"
)

// Config is the full swarmd configuration.
type Config struct {
	Logging    logging.Config   `koanf:"logging"`
	Retry      retry.Policy     `koanf:"retry"`
	Supervisor SupervisorConfig `koanf:"supervisor"`
	Quality    quality.Config   `koanf:"quality"`
	Agents     AgentsConfig     `koanf:"agents"`
	Events     EventsConfig     `koanf:"events"`
	HTTP       HTTPConfig       `koanf:"http"`
}

// SupervisorConfig configures the routing engine.
type SupervisorConfig struct {
	// Strategy is "rules" or "capability". Default: rules.
	Strategy string `koanf:"strategy"`

	// MinConfidence is the capability strategy's escalation floor.
	// Default: 0.4.
	MinConfidence float64 `koanf:"min_confidence"`

	// MaxStepAttempts bounds fresh steps for a repeatedly failing
	// agent. Default: 3.
	MaxStepAttempts int `koanf:"max_step_attempts"`

	// MaxRoutingIterations bounds supervisor invocations per session.
	// Default: 50.
	MaxRoutingIterations int `koanf:"max_routing_iterations"`
}

// AgentsConfig configures worker invocation.
type AgentsConfig struct {
	// Model names the language model backing the workers.
	// Default: gpt-4o-mini.
	Model string `koanf:"model"`

	// Timeout is the per-call ceiling for worker invocations.
	// Default: 2m.
	Timeout time.Duration `koanf:"timeout"`
}

// EventsConfig configures the progress stream.
type EventsConfig struct {
	// BufferSize is the in-process event buffer. Default: 256.
	BufferSize int `koanf:"buffer_size"`

	// NATSURL enables NATS event publishing when non-empty.
	NATSURL string `koanf:"nats_url"`
}

// HTTPConfig configures the inspection/approval API.
type HTTPConfig struct {
	Enabled bool   `koanf:"enabled"`
	Host    string `koanf:"host"`
	Port    int    `koanf:"port"`
}

// ApplyDefaults sets default values for missing fields.
func (c *Config) ApplyDefaults() {
	c.Logging.ApplyDefaults()
	c.Retry.ApplyDefaults()
	c.Quality.ApplyDefaults()

	if c.Supervisor.Strategy == "" {
		c.Supervisor.Strategy = "rules"
	}
	if c.Supervisor.MinConfidence == 0 {
		c.Supervisor.MinConfidence = 0.4
	}
	if c.Supervisor.MaxStepAttempts == 0 {
		c.Supervisor.MaxStepAttempts = 3
	}
	if c.Supervisor.MaxRoutingIterations == 0 {
		c.Supervisor.MaxRoutingIterations = 50
	}

	if c.Agents.Model == "" {
		c.Agents.Model = "gpt-4o-mini"
	}
	if c.Agents.Timeout == 0 {
		c.Agents.Timeout = 2 * time.Minute
	}

	if c.Events.BufferSize == 0 {
		c.Events.BufferSize = 256
	}

	if c.HTTP.Host == "" {
		c.HTTP.Host = "localhost"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 9190
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	if err := c.Quality.Validate(); err != nil {
		return err
	}
	switch c.Supervisor.Strategy {
	case "rules", "capability":
	default:
		return fmt.Errorf("invalid supervisor strategy %q (expected rules or capability)", c.Supervisor.Strategy)
	}
	if c.Supervisor.MinConfidence < 0 || c.Supervisor.MinConfidence > 1 {
		return fmt.Errorf("supervisor min confidence %v outside [0,1]", c.Supervisor.MinConfidence)
	}
	if c.Supervisor.MaxStepAttempts < 1 {
		return fmt.Errorf("supervisor max step attempts must be at least 1, got %d", c.Supervisor.MaxStepAttempts)
	}
	if c.Supervisor.MaxRoutingIterations < 1 {
		return fmt.Errorf("supervisor max routing iterations must be at least 1, got %d", c.Supervisor.MaxRoutingIterations)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry max attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.Multiplier < 1 {
		return fmt.Errorf("retry multiplier must be at least 1, got %v", c.Retry.Multiplier)
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid http port %d", c.HTTP.Port)
	}
	return nil
}
