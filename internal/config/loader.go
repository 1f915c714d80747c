package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// Load reads configuration from the optional YAML file at configPath,
// then overrides with SWARMD_ environment variables, then applies
// defaults and validates.
//
// Precedence (highest to lowest):
//  1. Environment variables (SWARMD_SUPERVISOR_STRATEGY, SWARMD_HTTP_PORT, ...)
//  2. YAML config file
//  3. Defaults
//
// Environment variables map to config keys by stripping the SWARMD_
// prefix, lowercasing, and splitting on the first underscore:
//
//	SWARMD_SUPERVISOR_MIN_CONFIDENCE -> supervisor.min_confidence
//	SWARMD_QUALITY_THRESHOLD         -> quality.threshold
//	SWARMD_HTTP_PORT                 -> http.port
//
// An empty configPath skips file loading entirely.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		content, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("SWARMD_", ".", func(s string) string {
		// SECTION_FIELD_NAME -> section.field_name. The section never
		// contains an underscore, so split on the first one only.
		lower := strings.ToLower(strings.TrimPrefix(s, "SWARMD_"))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}
