// Package config holds run configuration and process settings for
// twinkit.
//
// A [Config] describes one evaluation run and round-trips through YAML.
// [Settings] replaces ambient global state (working directory, logging)
// with an explicitly passed object: components that need it take it as
// an argument.
package config

import (
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/twinkit/internal/twin"
)

const (
	DefaultStepSize = 0.01
	DefaultEndTime  = 10.0
	DefaultWorkDir  = ".twinkit"
)

// Config describes one evaluation run: solver overrides plus the input
// and parameter values applied at initialization.
type Config struct {
	StepSize   float64     `yaml:"step_size"`
	EndTime    float64     `yaml:"end_time"`
	Inputs     twin.Values `yaml:"inputs,omitempty"`
	Parameters twin.Values `yaml:"parameters,omitempty"`
}

// Settings is the process context: where state registries live and how
// verbose logging is. There is no package-global equivalent.
type Settings struct {
	WorkDir  string
	LogLevel slog.Level
	LogOut   io.Writer
}

func DefaultConfig() *Config {
	return &Config{
		StepSize: DefaultStepSize,
		EndTime:  DefaultEndTime,
	}
}

func DefaultSettings() Settings {
	return Settings{
		WorkDir:  DefaultWorkDir,
		LogLevel: slog.LevelWarn,
		LogOut:   os.Stderr,
	}
}

// Logger builds the logger described by the settings.
func (s Settings) Logger() *slog.Logger {
	if s.LogOut == nil {
		return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))
	}
	return slog.New(slog.NewTextHandler(s.LogOut, &slog.HandlerOptions{Level: s.LogLevel}))
}

// EnsureWorkDir creates the working directory if needed and returns its
// absolute path.
func (s Settings) EnsureWorkDir() (string, error) {
	dir := s.WorkDir
	if dir == "" {
		dir = DefaultWorkDir
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", err
	}
	return abs, nil
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
