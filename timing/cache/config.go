package cache

import (
	"encoding/json"
	"fmt"
	"math/bits"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds cache configuration parameters. A Config is immutable for
// the lifetime of a simulation session.
type Config struct {
	// BlockSize in bytes (cache line size).
	BlockSize int `json:"block_size"`

	// Associativity is the number of lines per set.
	Associativity int `json:"associativity"`

	// Size is the total capacity in bytes.
	Size int `json:"size"`

	// MissPenalty is the number of cycles charged for every miss.
	MissPenalty uint64 `json:"miss_penalty"`

	// DirtyWritebackPenalty is the number of cycles charged for evicting a
	// dirty line.
	DirtyWritebackPenalty uint64 `json:"dirty_writeback_penalty"`
}

// DefaultConfig returns the reference configuration: a 16KB direct-mapped
// cache with 16B lines, a 30-cycle miss penalty and a 2-cycle dirty
// write-back penalty.
func DefaultConfig() Config {
	return Config{
		BlockSize:             1 << 4,
		Associativity:         1 << 0,
		Size:                  1 << 14,
		MissPenalty:           30,
		DirtyWritebackPenalty: 2,
	}
}

// ConfigurationError reports an invalid cache geometry.
type ConfigurationError struct {
	Field  string
	Value  int
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid cache configuration: %s = %d: %s",
		e.Field, e.Value, e.Reason)
}

func isPowerOfTwo(v int) bool {
	return v > 0 && bits.OnesCount(uint(v)) == 1
}

// Validate checks the geometry. Block size, associativity and the derived
// set count must all be powers of two that evenly divide the capacity.
func (c Config) Validate() error {
	if c.BlockSize <= 0 {
		return &ConfigurationError{"block_size", c.BlockSize, "must be > 0"}
	}
	if !isPowerOfTwo(c.BlockSize) {
		return &ConfigurationError{"block_size", c.BlockSize,
			"must be a power of two"}
	}
	if !isPowerOfTwo(c.Associativity) {
		return &ConfigurationError{"associativity", c.Associativity,
			"must be a power of two"}
	}
	if c.Size <= 0 {
		return &ConfigurationError{"size", c.Size, "must be > 0"}
	}

	if c.Size%c.BlockSize != 0 {
		return &ConfigurationError{"size", c.Size,
			"must be a multiple of block_size"}
	}

	// block_size * associativity may overflow int, so divide instead.
	numBlocks := c.Size / c.BlockSize
	if numBlocks%c.Associativity != 0 {
		return &ConfigurationError{"size", c.Size,
			"must be a multiple of block_size * associativity"}
	}

	numSets := numBlocks / c.Associativity
	if !isPowerOfTwo(numSets) {
		return &ConfigurationError{"sets", numSets, "must be a power of two"}
	}

	return nil
}

// NumBlocks returns the total number of lines in the cache.
func (c Config) NumBlocks() int {
	return c.Size / c.BlockSize
}

// NumSets returns the number of sets in the cache.
func (c Config) NumSets() int {
	return c.NumBlocks() / c.Associativity
}

// Clone returns a copy of the Config.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// LoadConfig loads a Config from a JSON file. Fields missing from the file
// keep their default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache config file: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse cache config: %w", err)
	}

	return &config, nil
}

// SaveConfig writes a Config to a JSON file.
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize cache config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write cache config file: %w", err)
	}

	return nil
}

// Environment keys understood by LoadEnvConfig.
const (
	EnvBlockSize             = "CACHESIM_BLOCK_SIZE"
	EnvAssociativity         = "CACHESIM_ASSOCIATIVITY"
	EnvSize                  = "CACHESIM_SIZE"
	EnvMissPenalty           = "CACHESIM_MISS_PENALTY"
	EnvDirtyWritebackPenalty = "CACHESIM_DIRTY_WRITEBACK_PENALTY"
)

// LoadEnvConfig loads a Config from a dotenv style file of KEY=VALUE lines.
// Keys that are absent keep their default values.
func LoadEnvConfig(path string) (*Config, error) {
	env, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache env file: %w", err)
	}

	config := DefaultConfig()
	if err := config.applyEnv(env); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) applyEnv(env map[string]string) error {
	ints := []struct {
		key string
		dst *int
	}{
		{EnvBlockSize, &c.BlockSize},
		{EnvAssociativity, &c.Associativity},
		{EnvSize, &c.Size},
	}
	for _, f := range ints {
		raw, ok := env[f.key]
		if !ok {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", f.key, err)
		}
		*f.dst = v
	}

	uints := []struct {
		key string
		dst *uint64
	}{
		{EnvMissPenalty, &c.MissPenalty},
		{EnvDirtyWritebackPenalty, &c.DirtyWritebackPenalty},
	}
	for _, f := range uints {
		raw, ok := env[f.key]
		if !ok {
			continue
		}
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", f.key, err)
		}
		*f.dst = v
	}

	return nil
}
