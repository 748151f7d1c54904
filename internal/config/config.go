// Package config loads the settings of a reactive core.
//
// Sources are applied in order, later ones winning: built-in defaults, an
// optional YAML file, then REWIND_* environment variables. An optional .env
// file is read into the environment first.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const DefaultEnvPrefix = "REWIND_"

type Config struct {
	History     HistoryConfig     `koanf:"history"`
	Propagation PropagationConfig `koanf:"propagation"`
	Ownership   OwnershipConfig   `koanf:"ownership"`
	Log         LogConfig         `koanf:"log"`
	Archive     ArchiveConfig     `koanf:"archive"`
}

type HistoryConfig struct {
	Enabled bool `koanf:"enabled"`
	// MaxVersions bounds the unnamed versions kept in memory.
	MaxVersions int `koanf:"max_versions"`
	// AutoSnapshotEvery takes a snapshot every N statements, 0 disables it.
	AutoSnapshotEvery int `koanf:"auto_snapshot_every"`
}

type PropagationConfig struct {
	MaxFlushIterations int `koanf:"max_flush_iterations"`
}

type OwnershipConfig struct {
	// Strict rejects writes from goroutines other than the creating one.
	Strict bool `koanf:"strict"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type ArchiveConfig struct {
	// Path of the badger directory. Empty disables the archive unless
	// InMemory is set.
	Path     string `koanf:"path"`
	InMemory bool   `koanf:"in_memory"`
}

func (a ArchiveConfig) Enabled() bool {
	return a.Path != "" || a.InMemory
}

func Default() Config {
	return Config{
		History: HistoryConfig{
			Enabled:     true,
			MaxVersions: 1000,
		},
		Propagation: PropagationConfig{
			MaxFlushIterations: 100,
		},
		Ownership: OwnershipConfig{
			Strict: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func defaults() map[string]any {
	d := Default()
	return map[string]any{
		"history": map[string]any{
			"enabled":             d.History.Enabled,
			"max_versions":        d.History.MaxVersions,
			"auto_snapshot_every": d.History.AutoSnapshotEvery,
		},
		"propagation": map[string]any{
			"max_flush_iterations": d.Propagation.MaxFlushIterations,
		},
		"ownership": map[string]any{
			"strict": d.Ownership.Strict,
		},
		"log": map[string]any{
			"level":  d.Log.Level,
			"format": d.Log.Format,
		},
		"archive": map[string]any{
			"path":      d.Archive.Path,
			"in_memory": d.Archive.InMemory,
		},
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.History.MaxVersions <= 0 {
		errs = append(errs, fmt.Errorf("history.max_versions must be positive, got %d", c.History.MaxVersions))
	}
	if c.History.AutoSnapshotEvery < 0 {
		errs = append(errs, fmt.Errorf("history.auto_snapshot_every must not be negative, got %d", c.History.AutoSnapshotEvery))
	}
	if c.Propagation.MaxFlushIterations <= 0 {
		errs = append(errs, fmt.Errorf("propagation.max_flush_iterations must be positive, got %d", c.Propagation.MaxFlushIterations))
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or text, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

type Loader struct {
	k         *koanf.Koanf
	envPrefix string
	filePath  string
	dotEnv    string
}

type Option func(*Loader)

func WithFile(path string) Option {
	return func(l *Loader) {
		l.filePath = path
	}
}

func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) {
		l.envPrefix = prefix
	}
}

// WithDotEnv reads path into the environment before loading. A missing
// file is not an error.
func WithDotEnv(path string) Option {
	return func(l *Loader) {
		l.dotEnv = path
	}
}

func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		k:         koanf.New("."),
		envPrefix: DefaultEnvPrefix,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Loader) Load() (Config, error) {
	var cfg Config

	if l.dotEnv != "" {
		if err := godotenv.Load(l.dotEnv); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("load dotenv %s: %w", l.dotEnv, err)
		}
	}

	if err := l.k.Load(mapProvider(defaults()), nil); err != nil {
		return cfg, fmt.Errorf("load defaults: %w", err)
	}

	if l.filePath != "" {
		if err := l.k.Load(file.Provider(l.filePath), yaml.Parser()); err != nil {
			return cfg, fmt.Errorf("load file %s: %w", l.filePath, err)
		}
	}

	// REWIND_HISTORY_MAX_VERSIONS -> history.max_versions
	transform := func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, l.envPrefix))
		section, key, ok := strings.Cut(s, "_")
		if !ok {
			return s
		}
		return section + "." + key
	}
	if err := l.k.Load(env.Provider(l.envPrefix, ".", transform), nil); err != nil {
		return cfg, fmt.Errorf("load env: %w", err)
	}

	if err := l.k.Unmarshal("", &cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Load is NewLoader(opts...).Load().
func Load(opts ...Option) (Config, error) {
	return NewLoader(opts...).Load()
}

var errReadBytes = errors.New("config: map provider only supports Read")

type mapProvider map[string]any

func (m mapProvider) ReadBytes() ([]byte, error) {
	return nil, errReadBytes
}

func (m mapProvider) Read() (map[string]any, error) {
	return m, nil
}
