package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Database DatabaseConfig
	Import   ImportConfig
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path       string
	Migrations string
}

// ImportConfig holds reconciliation defaults; every field maps to a flag on
// the import command and the flag wins.
type ImportConfig struct {
	ChunkSize       int     `mapstructure:"chunk_size"`
	UpdateThreshold float64 `mapstructure:"update_threshold"`
	ReviewThreshold float64 `mapstructure:"review_threshold"`

	UnratedWhenZero         bool `mapstructure:"unrated_when_zero"`
	UnratedWhenMissingRegNo bool `mapstructure:"unrated_when_missing_regno"`

	TieBreak       string `mapstructure:"tie_break"`
	ParseTimeoutMS int    `mapstructure:"parse_timeout_ms"`
}

// Load reads configuration from file and env. Env var overrides use prefix ROSTERFLOW_.
func Load() (Config, error) {
	v := viper.New()

	v.SetDefault("database.path", filepath.Join(os.Getenv("HOME"), ".local", "share", "rosterflow", "rosterflow.db"))
	v.SetDefault("database.migrations", "")
	v.SetDefault("import.chunk_size", 50)
	v.SetDefault("import.update_threshold", 0.9)
	v.SetDefault("import.review_threshold", 0.6)
	v.SetDefault("import.unrated_when_zero", true)
	v.SetDefault("import.unrated_when_missing_regno", false)
	v.SetDefault("import.tie_break", "first")
	v.SetDefault("import.parse_timeout_ms", 0)

	v.SetConfigType("toml")

	cfgPath := os.Getenv("ROSTERFLOW_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "rosterflow"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("ROSTERFLOW")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// read config file if present
	_ = v.ReadInConfig()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}
