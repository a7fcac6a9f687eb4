// Package config handles the protocol parameters file.
//
// The file holds the shared hash space, the Decred ticket-pool statistics,
// race settings and logging defaults. Adversary hashpower and stake always
// come from the command line.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shreekarashastry/invalidationgame/simulation"
	"gopkg.in/yaml.v3"
)

// DefaultFile is the config file read when none is given.
const DefaultFile = "invalidationgame.yaml"

// Config is the content of the parameters file.
type Config struct {
	HashSpace  int              `yaml:"hash_space"`
	TicketPool TicketPoolConfig `yaml:"ticket_pool"`
	Race       RaceConfig       `yaml:"race"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// TicketPoolConfig describes the PoS ticket pool.
type TicketPoolConfig struct {
	// AverageSize is the live ticket pool size tickets are drawn from.
	AverageSize int `yaml:"average_size"`

	// Votes maps a number of votes per block to how many blocks were
	// observed with it.
	Votes []VoteConfig `yaml:"votes"`
}

// VoteConfig is one observed bucket of the online-ticket distribution.
type VoteConfig struct {
	Votes  int `yaml:"votes"`
	Blocks int `yaml:"blocks"`
}

// RaceConfig tunes the mining race itself.
type RaceConfig struct {
	NearDepth    int    `yaml:"near_depth"`
	ConfirmDepth int    `yaml:"confirm_depth"`
	PoolMode     string `yaml:"pool_mode"` // partition or sampled
	Quorum       string `yaml:"quorum"`    // majority or plurality
	TieBreak     string `yaml:"tie_break"` // invalidate or earliest
	MaxCycles    int    `yaml:"max_cycles"`
}

// LoggingConfig configures the default log destination.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
	Mode  string `yaml:"mode"`
}

// Default returns the reference network parameters.
func Default() *Config {
	p := simulation.DefaultParams()
	votes := make([]VoteConfig, len(p.VoteDistribution))
	for i, v := range p.VoteDistribution {
		votes[i] = VoteConfig{Votes: v.Votes, Blocks: v.Blocks}
	}
	return &Config{
		HashSpace: p.HashSpace,
		TicketPool: TicketPoolConfig{
			AverageSize: p.TicketPoolSize,
			Votes:       votes,
		},
		Race: RaceConfig{
			NearDepth:    p.NearDepth,
			ConfirmDepth: p.ConfirmDepth,
			PoolMode:     p.PoolMode.String(),
			Quorum:       p.Quorum.String(),
			TieBreak:     p.TieBreak.String(),
		},
		Logging: LoggingConfig{
			Level: "error",
			File:  "invalidationgame.log",
			Mode:  "w",
		},
	}
}

// LoadFromFile loads configuration from a YAML file. Keys missing from the
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
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

// Load reads path, falling back to defaults when it does not exist. With
// create set, a missing file is written from the defaults.
func Load(path string, create bool) (*Config, error) {
	cfg, err := LoadFromFile(path)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	cfg = Default()
	if create {
		if err := cfg.Write(path); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Write saves cfg as YAML, creating parent directories as needed.
func (c *Config) Write(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	header := []byte("# invalidationgame protocol parameters\n# Ticket statistics: Decred mainnet, 2016-02-08 to 2020-02-08\n")
	if err := os.WriteFile(path, append(header, data...), 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate checks the file for values the simulation cannot use.
func (c *Config) Validate() error {
	if _, err := c.Params(); err != nil {
		return err
	}
	switch c.Logging.Mode {
	case "", "w", "a":
	default:
		return fmt.Errorf("logging.mode must be 'w' or 'a', got %q", c.Logging.Mode)
	}
	return nil
}

// Params converts the file into simulation parameters.
func (c *Config) Params() (simulation.Params, error) {
	var p simulation.Params
	if c.HashSpace < 100 {
		return p, fmt.Errorf("hash_space must be at least 100, got %d", c.HashSpace)
	}
	if c.TicketPool.AverageSize < 1 {
		return p, fmt.Errorf("ticket_pool.average_size must be positive, got %d", c.TicketPool.AverageSize)
	}
	if len(c.TicketPool.Votes) == 0 {
		return p, fmt.Errorf("ticket_pool.votes must not be empty")
	}
	for i, v := range c.TicketPool.Votes {
		if v.Votes < 1 {
			return p, fmt.Errorf("ticket_pool.votes[%d].votes must be positive, got %d", i, v.Votes)
		}
		if v.Blocks < 1 {
			return p, fmt.Errorf("ticket_pool.votes[%d].blocks must be positive, got %d", i, v.Blocks)
		}
	}

	mode, err := simulation.ParsePoolMode(c.Race.PoolMode)
	if err != nil {
		return p, err
	}
	quorum, err := simulation.ParseQuorumRule(c.Race.Quorum)
	if err != nil {
		return p, err
	}
	tie, err := simulation.ParseTieBreak(c.Race.TieBreak)
	if err != nil {
		return p, err
	}
	if c.Race.NearDepth < 1 || c.Race.ConfirmDepth < c.Race.NearDepth {
		return p, fmt.Errorf("race depths must satisfy 1 <= near_depth (%d) <= confirm_depth (%d)",
			c.Race.NearDepth, c.Race.ConfirmDepth)
	}
	if c.Race.MaxCycles < 0 {
		return p, fmt.Errorf("race.max_cycles must not be negative, got %d", c.Race.MaxCycles)
	}

	p = simulation.Params{
		HashSpace:      c.HashSpace,
		TicketPoolSize: c.TicketPool.AverageSize,
		NearDepth:      c.Race.NearDepth,
		ConfirmDepth:   c.Race.ConfirmDepth,
		PoolMode:       mode,
		Quorum:         quorum,
		TieBreak:       tie,
		MaxCycles:      c.Race.MaxCycles,
	}
	for _, v := range c.TicketPool.Votes {
		p.VoteDistribution = append(p.VoteDistribution, simulation.VoteWeight{Votes: v.Votes, Blocks: v.Blocks})
	}
	return p, nil
}
