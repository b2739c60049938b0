package main

import (
	"fmt"

	"github.com/gwillem/urteleop/pkg/robot"
)

// configPath returns the file a command reads and writes; empty means the
// default config file in the working directory.
func configPath(path string) string {
	if path == "" {
		return robot.DefaultConfigFile
	}
	return path
}

// readConfig loads path, or the defaults when the file does not exist.
func readConfig(path string) (cfg *robot.Config, loaded bool, err error) {
	switch {
	case path == "" && robot.ConfigExists():
		cfg, err = robot.LoadConfig()
	case path != "" && robot.FileExists(path):
		cfg, err = robot.LoadConfigFrom(path)
	default:
		return robot.DefaultConfig(), false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return cfg, true, nil
}

// saveConfig writes cfg to path, or to the default config file.
func saveConfig(cfg *robot.Config, path string) error {
	if path == "" {
		return cfg.Save()
	}
	return cfg.SaveTo(path)
}

// loadSessionConfig reads the configuration for a session. A non-empty host
// overrides the configured one.
func loadSessionConfig(path, host string) (cfg *robot.Config, loaded bool, err error) {
	cfg, loaded, err = readConfig(path)
	if err != nil {
		return nil, false, err
	}
	if host != "" {
		cfg.Host = host
	}
	if err := cfg.Validate(); err != nil {
		return nil, loaded, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, loaded, nil
}
