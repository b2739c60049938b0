package robot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultConfigFile = "urteleop.json"

// Default session values.
const (
	DefaultHost                = "192.168.230.128"
	DefaultRecordingOutput     = "test_results/test_motion1.csv"
	DefaultRecordingConfigFile = "resources/record_configuration.xml"
	DefaultFrequency           = 50
	DefaultSettleMs            = 1000
	DefaultVelocity            = 1.0
	DefaultAcceleration        = 0.5
	DefaultProgram             = "/program1.urp"
)

// MaxFrequency is the highest RTDE output rate of e-Series controllers.
const MaxFrequency = 500

// Config holds the session configuration
type Config struct {
	Host      string          `json:"host" yaml:"host"`
	Recording RecordingConfig `json:"recording" yaml:"recording"`
	Motion    MotionConfig    `json:"motion" yaml:"motion"`
	Program   string          `json:"program" yaml:"program"`
}

// RecordingConfig describes an RTDE recording session.
type RecordingConfig struct {
	Output     string   `json:"output" yaml:"output"`
	ConfigFile string   `json:"config_file" yaml:"config_file"`
	Frequency  float64  `json:"frequency" yaml:"frequency"`
	Overwrite  bool     `json:"overwrite" yaml:"overwrite"`
	Publish    []string `json:"publish,omitempty" yaml:"publish,omitempty"`
	SettleMs   int      `json:"settle_ms" yaml:"settle_ms"`
}

// Settle returns how long to wait after recording starts.
func (r RecordingConfig) Settle() time.Duration {
	return time.Duration(r.SettleMs) * time.Millisecond
}

// MotionConfig holds the parameters of the home move.
type MotionConfig struct {
	Home         Joints  `json:"home" yaml:"home,flow"`
	Velocity     float64 `json:"velocity" yaml:"velocity"`
	Acceleration float64 `json:"acceleration" yaml:"acceleration"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Host: DefaultHost,
		Recording: RecordingConfig{
			Output:     DefaultRecordingOutput,
			ConfigFile: DefaultRecordingConfigFile,
			Frequency:  DefaultFrequency,
			Overwrite:  true,
			Publish:    []string{"actual_q"},
			SettleMs:   DefaultSettleMs,
		},
		Motion: MotionConfig{
			Home:         Home,
			Velocity:     DefaultVelocity,
			Acceleration: DefaultAcceleration,
		},
		Program: DefaultProgram,
	}
}

// Validate checks the configuration for values the controller would reject.
func (c *Config) Validate() error {
	var errs []error
	if c.Host == "" {
		errs = append(errs, errors.New("host is empty"))
	}
	if c.Recording.Output == "" {
		errs = append(errs, errors.New("recording output is empty"))
	}
	if c.Recording.Frequency <= 0 || c.Recording.Frequency > MaxFrequency {
		errs = append(errs, fmt.Errorf("recording frequency %g out of range (0, %d]", c.Recording.Frequency, MaxFrequency))
	}
	if c.Recording.SettleMs < 0 {
		errs = append(errs, fmt.Errorf("negative settle time %d ms", c.Recording.SettleMs))
	}
	if c.Motion.Velocity <= 0 {
		errs = append(errs, fmt.Errorf("velocity must be positive, got %g", c.Motion.Velocity))
	}
	if c.Motion.Acceleration <= 0 {
		errs = append(errs, fmt.Errorf("acceleration must be positive, got %g", c.Motion.Acceleration))
	}
	if name, ok := DefaultLimits().Check(c.Motion.Home); !ok {
		errs = append(errs, fmt.Errorf("home position out of range for joint %s", name))
	}
	if c.Program == "" {
		errs = append(errs, errors.New("program path is empty"))
	}
	for _, f := range []struct{ name, value string }{
		{"host", c.Host},
		{"program", c.Program},
		{"recording output", c.Recording.Output},
		{"recording config file", c.Recording.ConfigFile},
	} {
		if strings.TrimSpace(f.value) != f.value {
			errs = append(errs, fmt.Errorf("%s %q has surrounding whitespace", f.name, f.value))
		}
	}
	return errors.Join(errs...)
}

// LoadConfig loads configuration from the default config file
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(DefaultConfigFile)
}

// LoadConfigFrom loads configuration from a specific file. Fields missing
// from the file keep their default values. Files ending in .yaml or .yml are
// parsed as YAML, everything else as JSON.
func LoadConfigFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save saves configuration to the default config file
func (c *Config) Save() error {
	return c.SaveTo(DefaultConfigFile)
}

// SaveTo saves configuration to a specific file
func (c *Config) SaveTo(path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// TrimSpace removes surrounding whitespace from the host and paths.
func (c *Config) TrimSpace() {
	c.Host = strings.TrimSpace(c.Host)
	c.Program = strings.TrimSpace(c.Program)
	c.Recording.Output = strings.TrimSpace(c.Recording.Output)
	c.Recording.ConfigFile = strings.TrimSpace(c.Recording.ConfigFile)
}

// ConfigExists returns true if the default config file exists
func ConfigExists() bool {
	return FileExists(DefaultConfigFile)
}

// FileExists returns true if path exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
