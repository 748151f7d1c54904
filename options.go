package rewind

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/AnatoleLucet/rewind/internal/config"
)

type Config = config.Config

// DefaultConfig returns the configuration New uses when none is given.
func DefaultConfig() Config {
	return config.Default()
}

// LoadConfig reads a YAML file (optional, may be empty), a .env file in the
// working directory if there is one, and REWIND_ environment variables.
func LoadConfig(path string) (Config, error) {
	opts := []config.Option{config.WithDotEnv(".env")}
	if path != "" {
		opts = append(opts, config.WithFile(path))
	}
	return config.Load(opts...)
}

// Applier is the evaluator side of a rewind. ApplyVersion is called once the
// reactive state was replaced by v, before effects run again, so the
// evaluator can restore whatever environment it keeps next to the core.
type Applier interface {
	ApplyVersion(v *Version) error
}

// ApplierFunc adapts a plain function to Applier.
type ApplierFunc func(v *Version) error

func (f ApplierFunc) ApplyVersion(v *Version) error { return f(v) }

type options struct {
	cfg      Config
	logger   *slog.Logger
	applier  Applier
	registry prometheus.Registerer
	tracer   trace.TracerProvider
	ctx      context.Context
	now      func() time.Time
}

type Option func(*options)

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithLogger sets the logger. Without it a logger is built from the log
// section of the configuration.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithApplier registers the evaluator hook called on every rewind.
func WithApplier(a Applier) Option {
	return func(o *options) { o.applier = a }
}

// WithRegisterer registers the core metrics on reg instead of a private
// registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registry = reg }
}

// WithTracerProvider sets where spans go. Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracer = tp }
}

// WithContext sets the parent context of every span the core starts.
func WithContext(ctx context.Context) Option {
	return func(o *options) { o.ctx = ctx }
}

// WithNow replaces the clock used to stamp versions.
func WithNow(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}
