// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Race RaceFileConfig `toml:"race"`
}

// RaceFileConfig maps race-related settings. Pointer fields distinguish
// "unset" from zero values so flags can override only what the user set.
type RaceFileConfig struct {
	Lang        *string  `toml:"lang"`
	Words       *int     `toml:"words"`
	CapsPct     *float64 `toml:"caps"`
	PunctPct    *float64 `toml:"punct"`
	PunctSet    *string  `toml:"punct-set"`
	BotLevel    *int     `toml:"bot-level"`
	DurationSec *int     `toml:"duration"`
	FocusWeak   *bool    `toml:"focus-weak"`
	WeakTop     *int     `toml:"weak-top"`
	WeakFactor  *float64 `toml:"weak-factor"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}
