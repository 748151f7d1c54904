// Package rewind is the execution-state core of a scripting language:
// reactive cells, computeds and effects kept consistent by a propagator,
// plus a history of immutable versions the program can rewind to.
package rewind

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/AnatoleLucet/rewind/internal"
	"github.com/AnatoleLucet/rewind/internal/archive"
	"github.com/AnatoleLucet/rewind/internal/history"
	"github.com/AnatoleLucet/rewind/internal/telemetry"
	"github.com/AnatoleLucet/rewind/value"
)

type (
	ID      = internal.ID
	Version = history.Version
	Diff    = history.Diff
	Change  = history.Change

	ReactiveStats = internal.Stats
	HistoryStats  = history.Stats
)

type Stats struct {
	Reactive ReactiveStats
	History  HistoryStats
}

// Core is one interpreter's reactive state and history. Every method is safe
// to call from any goroutine, but with strict ownership only the goroutine
// that called New may write, declare or move through history.
type Core struct {
	id string

	mu    internal.Lock
	owner internal.Owner

	rt      *internal.Runtime
	history *history.Store
	archive *archive.Archive

	applier Applier
	cfg     Config

	// set while a rewind swaps the state, so writes made by effects re-run
	// on the restored state do not truncate the history being walked
	restoring  bool
	statements int

	ctx     context.Context
	logger  *slog.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer
}

// New creates an independent core.
func New(opts ...Option) (*Core, error) {
	o := options{
		cfg: DefaultConfig(),
		ctx: context.Background(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if err := o.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("rewind: %w", err)
	}
	if o.logger == nil {
		o.logger, _ = telemetry.NewLogger(telemetry.LogConfig{
			Level:  o.cfg.Log.Level,
			Format: o.cfg.Log.Format,
		})
	}

	c := &Core{
		id:      ulid.Make().String(),
		owner:   internal.NewOwner(o.cfg.Ownership.Strict),
		applier: o.applier,
		cfg:     o.cfg,
		ctx:     o.ctx,
		tracer:  telemetry.NewTracer(o.tracer),
	}
	c.logger = o.logger.With("core", c.id)
	c.metrics = telemetry.NewMetrics(o.registry, c.id)

	c.rt = internal.NewRuntime(internal.Options{
		MaxFlushIterations: o.cfg.Propagation.MaxFlushIterations,
		Observer:           &observer{c: c},
	})
	c.history = history.New(history.Options{
		Enabled:     o.cfg.History.Enabled,
		MaxVersions: o.cfg.History.MaxVersions,
		Now:         o.now,
	})

	if o.cfg.Archive.Enabled() {
		a, err := archive.Open(archive.Options{
			Path:     o.cfg.Archive.Path,
			InMemory: o.cfg.Archive.InMemory,
			Logger:   c.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("rewind: %w", err)
		}
		c.archive = a
	}

	c.logger.Debug("core created",
		"history", o.cfg.History.Enabled,
		"max_versions", o.cfg.History.MaxVersions,
		"archive", o.cfg.Archive.Enabled(),
	)
	return c, nil
}

// ID is the unique id of this core, used as the "core" metrics label.
func (c *Core) ID() string {
	return c.id
}

// Close releases the checkpoint archive, if any.
func (c *Core) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.archive == nil {
		return nil
	}
	err := c.archive.Close()
	c.archive = nil
	return err
}

func (c *Core) mutate() error {
	return c.owner.Check()
}

// DeclareReactive declares a cell holding initial.
func (c *Core) DeclareReactive(name string, initial value.Value) (ID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.mutate(); err != nil {
		return 0, err
	}
	return c.rt.NewCell(name, initial)
}

// DeclareComputed declares a value derived from the cells and computeds fn
// reads. fn runs once right away; if it fails the node is still declared,
// in the error state, and the error is returned with its id.
func (c *Core) DeclareComputed(name string, fn func() (value.Value, error)) (ID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.mutate(); err != nil {
		return 0, err
	}
	return c.rt.NewComputed(name, fn)
}

// DeclareEffect declares a side effect that runs now and then once per batch
// in which something it read changed.
func (c *Core) DeclareEffect(name string, fn func() error) (ID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.mutate(); err != nil {
		return 0, err
	}
	return c.rt.NewEffect(name, fn)
}

// Read returns the value of a cell or computed, recording a dependency when
// called from a computed or effect body.
func (c *Core) Read(id ID) (value.Value, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.rt.Read(id)
}

// ReadName is Read by name. Inside a body, reading a name that is not
// declared yet subscribes to it for when it is.
func (c *Core) ReadName(name string) (value.Value, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.rt.ReadName(name)
}

// Peek reads a node without recording a dependency.
func (c *Core) Peek(id ID) (value.Value, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.rt.Peek(id)
}

// Write sets a cell. Dependents are brought up to date before Write
// returns, or when the current batch ends.
func (c *Core) Write(id ID, v value.Value) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.mutate(); err != nil {
		return err
	}
	return c.rt.Write(id, v)
}

// WriteName is Write by name.
func (c *Core) WriteName(name string, v value.Value) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.mutate(); err != nil {
		return err
	}
	return c.rt.WriteName(name, v)
}

// Lookup returns the id of the node declared under name.
func (c *Core) Lookup(name string) (ID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.rt.Lookup(name)
}

// Batch runs fn and propagates its writes once, when the outermost batch ends.
func (c *Core) Batch(fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.mutate(); err != nil {
		return err
	}
	return c.rt.Batch(fn)
}

// BeginBatch opens a batch that EndBatch closes. Batches nest.
func (c *Core) BeginBatch() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.mutate(); err != nil {
		return err
	}
	c.rt.BeginBatch()
	return nil
}

// EndBatch closes a batch, propagating when it was the outermost one.
func (c *Core) EndBatch() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.mutate(); err != nil {
		return err
	}
	return c.rt.EndBatch()
}

// Track runs fn and returns the nodes it read, without subscribing anything
// to them.
func (c *Core) Track(fn func() (value.Value, error)) (value.Value, []ID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.rt.Track(fn)
}

// Untrack runs fn without recording the reads it makes.
func (c *Core) Untrack(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rt.Untrack(fn)
}

// OnCleanup registers fn to run before the current effect runs again, or
// when it goes away.
func (c *Core) OnCleanup(fn func()) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.rt.OnCleanup(fn)
}

// Dispose removes a node that nothing depends on.
func (c *Core) Dispose(id ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.mutate(); err != nil {
		return err
	}
	if err := c.rt.Dispose(id); err != nil {
		return err
	}
	c.metrics.ObserveNodes(c.rt.Stats())
	return nil
}

// SetEffectEnabled pauses or resumes an effect. A resumed effect runs once.
func (c *Core) SetEffectEnabled(id ID, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.mutate(); err != nil {
		return err
	}
	return c.rt.SetEffectEnabled(id, enabled)
}

// Statement runs fn as one statement of the program. Every
// history.auto_snapshot_every statements a snapshot is taken afterwards.
func (c *Core) Statement(fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := fn()

	every := c.cfg.History.AutoSnapshotEvery
	if every <= 0 || c.rt.InBody() {
		return err
	}
	c.statements++
	if c.statements%every != 0 || !c.history.Enabled() {
		return err
	}

	_, snapErr := c.capture("", false, "auto")
	return errors.Join(err, snapErr)
}

func (c *Core) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Reactive: c.rt.Stats(),
		History:  c.history.Stats(),
	}
}

// ToDOT renders the live dependency graph in Graphviz format.
func (c *Core) ToDOT() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.rt.DOT()
}
