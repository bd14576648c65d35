// Package bdeconfig sources the library's small set of tunables
// (replica-pick policy, default sector size override, read scratch
// buffer count) from a config file, environment, or defaults, using
// viper the same way a device-layer config loader would source its
// own defaults.
package bdeconfig

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/jbmetz/go-bde/internal/protector"
)

// Config holds the tunables that affect how a volume is opened and
// read, as opposed to the on-disk format constants (sector size,
// stretch rounds) that are normative and never configurable.
type Config struct {
	// ReplicaPolicy selects "strict" (every present replica must agree)
	// or "first-valid" (the first replica that parses wins) -- spec
	// §9's open question on cross-replica consistency policy.
	ReplicaPolicy string `mapstructure:"replica_policy"`
	// SectorSizeOverride forces a sector size instead of trusting the
	// value discovery.Probe returns; 0 means "trust discovery".
	SectorSizeOverride int `mapstructure:"sector_size_override"`
	// ReadScratchBuffers is loaded with the other tunables, but nothing
	// in this module reads it: Volume.Read decrypts one sector at a time
	// whatever its value.
	ReadScratchBuffers int `mapstructure:"read_scratch_buffers"`
}

// Load reads configuration from (in order of increasing precedence) the
// compiled-in defaults, a config file named bde-config.yaml on the
// search path, and BDE_-prefixed environment variables.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("bde-config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("$HOME/.bde")
	v.AddConfigPath("/etc/bde")

	v.SetDefault("replica_policy", "first-valid")
	v.SetDefault("sector_size_override", 0)
	v.SetDefault("read_scratch_buffers", 0)

	v.SetEnvPrefix("BDE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("bdeconfig: read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("bdeconfig: unmarshal: %w", err)
	}
	return &cfg, nil
}

// Policy translates the configured replica policy string into the
// protector.ReplicaPolicy enum, defaulting to first-valid on an unknown
// or empty value.
func (c *Config) Policy() protector.ReplicaPolicy {
	if c != nil && c.ReplicaPolicy == "strict" {
		return protector.PolicyStrict
	}
	return protector.PolicyFirstValid
}
