package pool

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Config is the on-disk shape consumed by cmd/rrdpoolctl (and any other
// process that wants to construct a Pool from a file instead of code). Only
// LoadConfig reads a file; New never does and always takes Options.
type Config struct {
	Pool PoolConfig `toml:"pool"`
}

// PoolConfig mirrors the Pool construction defaults, in the same
// TOML-struct-tag shape used for other daemon config sections.
type PoolConfig struct {
	Capacity        int    `toml:"capacity"`
	LimitedCapacity bool   `toml:"limited_capacity"`
	LogLevel        string `toml:"log_level"`
}

// DefaultConfig returns the library's out-of-the-box defaults.
func DefaultConfig() Config {
	return Config{
		Pool: PoolConfig{
			Capacity:        DefaultCapacity,
			LimitedCapacity: DefaultLimitedCapacity,
			LogLevel:        "info",
		},
	}
}

// LoadConfig reads a TOML file at path into a Config seeded with
// DefaultConfig, so unset fields keep their defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// Options converts the config into the Option slice New expects.
func (c Config) Options() []Option {
	return []Option{
		WithCapacity(c.Pool.Capacity),
		WithLimitedCapacity(c.Pool.LimitedCapacity),
	}
}
