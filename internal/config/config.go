package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"friendmap/internal/mutate"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config holds the simulation settings.
type Config struct {
	// Actors is the number of replicas.
	Actors int `yaml:"actors" env:"FRIENDMAP_ACTORS"`

	// NamesPath is the newline-delimited names file.
	NamesPath string `yaml:"names_path" env:"FRIENDMAP_NAMES_PATH"`

	// MinSize and MaxSize bound the number of keys each replica keeps.
	MinSize int `yaml:"min_size" env:"FRIENDMAP_MIN_SIZE"`
	MaxSize int `yaml:"max_size" env:"FRIENDMAP_MAX_SIZE"`

	// TickMax bounds the random delay between a replica's mutations.
	TickMax time.Duration `yaml:"tick_max" env:"FRIENDMAP_TICK_MAX"`

	// Backlog is the per-replica gossip buffer; 0 means one slot per actor.
	Backlog int `yaml:"backlog" env:"FRIENDMAP_BACKLOG"`

	LogLevel string `yaml:"log_level" env:"FRIENDMAP_LOG_LEVEL"`

	// Actions is an action=percent list, e.g. "add_key=30,add_value=70".
	// Empty means mutate.DefaultWeights.
	Actions string `yaml:"actions" env:"FRIENDMAP_ACTIONS"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Actors:    2,
		NamesPath: "data/names.txt",
		MinSize:   mutate.DefaultMinSize,
		MaxSize:   mutate.DefaultMaxSize,
		TickMax:   20 * time.Millisecond,
		LogLevel:  "info",
	}
}

// Load returns the defaults overlaid with the YAML file at path (skipped when
// path is empty) and then the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		fileCfg, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// LoadFromFile reads a YAML file over the defaults. Fields missing from the
// file keep their default values.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings for consistency.
func (c *Config) Validate() error {
	if c.Actors < 1 {
		return fmt.Errorf("%w: actors must be at least 1, got %d", ErrInvalid, c.Actors)
	}
	if c.NamesPath == "" {
		return fmt.Errorf("%w: names_path is required", ErrInvalid)
	}
	if c.MinSize < 0 {
		return fmt.Errorf("%w: min_size must be non-negative, got %d", ErrInvalid, c.MinSize)
	}
	if c.MaxSize < c.MinSize {
		return fmt.Errorf("%w: max_size %d is below min_size %d", ErrInvalid, c.MaxSize, c.MinSize)
	}
	if c.TickMax < 0 {
		return fmt.Errorf("%w: tick_max must be non-negative, got %v", ErrInvalid, c.TickMax)
	}
	if c.Backlog < 0 {
		return fmt.Errorf("%w: backlog must be non-negative, got %d", ErrInvalid, c.Backlog)
	}

	validLevels := map[string]bool{"": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("%w: log level %q (valid: debug, info, warn, error)", ErrInvalid, c.LogLevel)
	}

	if _, err := c.Generator(); err != nil {
		return fmt.Errorf("%w: actions: %w", ErrInvalid, err)
	}
	return nil
}

// Weights returns the parsed action list, or the defaults when none is set.
func (c *Config) Weights() ([]mutate.Weight, error) {
	weights, err := ParseActions(c.Actions)
	if err != nil {
		return nil, err
	}
	if len(weights) == 0 {
		return mutate.DefaultWeights, nil
	}
	return weights, nil
}

// Generator builds the action generator for the configured weights.
func (c *Config) Generator() (*mutate.ActionGenerator, error) {
	weights, err := c.Weights()
	if err != nil {
		return nil, err
	}
	return mutate.NewActionGenerator(weights)
}

// BusCapacity returns the per-subscriber gossip backlog.
func (c *Config) BusCapacity() int {
	if c.Backlog > 0 {
		return c.Backlog
	}
	return c.Actors
}

// ParseActions parses a comma-separated list of action weights in the format:
// "add_key=25,add_value=40,remove_key=10,remove_value=25"
func ParseActions(s string) ([]mutate.Weight, error) {
	if strings.TrimSpace(s) == "" {
		return []mutate.Weight{}, nil
	}

	parts := strings.Split(s, ",")
	weights := make([]mutate.Weight, 0, len(parts))
	seen := make(map[mutate.Action]bool, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid action format: %s (expected action=percent)", part)
		}

		action, err := mutate.ParseAction(strings.TrimSpace(kv[0]))
		if err != nil {
			return nil, err
		}
		percent, err := strconv.Atoi(strings.TrimSpace(kv[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid percent for %s: %w", action, err)
		}
		if percent < 0 {
			return nil, fmt.Errorf("percent for %s cannot be negative: %d", action, percent)
		}
		if seen[action] {
			return nil, fmt.Errorf("duplicate action: %s", action)
		}
		seen[action] = true

		weights = append(weights, mutate.Weight{
			Action:  action,
			Percent: percent,
		})
	}

	return weights, nil
}
