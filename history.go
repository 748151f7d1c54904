package rewind

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"go.opentelemetry.io/otel/attribute"

	"github.com/AnatoleLucet/rewind/internal/history"
	"github.com/AnatoleLucet/rewind/internal/telemetry"
)

// Target is where Rewind goes: a number of versions back, or a name.
type Target struct {
	steps int
	name  string
}

// ByCount targets the version n steps before the current position.
func ByCount(n int) Target {
	return Target{steps: n}
}

// ByName targets the version registered under a checkpoint name or a
// snapshot label.
func ByName(name string) Target {
	return Target{name: name}
}

func (t Target) kind() string {
	if t.name != "" {
		return "name"
	}
	return "count"
}

func (t Target) String() string {
	if t.name != "" {
		return strconv.Quote(t.name)
	}
	return strconv.Itoa(t.steps)
}

// Snapshot captures the current state. A non-empty label makes the version
// a rewind target, like a checkpoint name. Pending writes of an open batch
// are propagated first.
func (c *Core) Snapshot(label string) (*Version, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.capture(label, false, "snapshot")
}

// Checkpoint captures the current state under name.
func (c *Core) Checkpoint(name string) (*Version, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.capture(name, true, "checkpoint")
}

// capture records a version even when propagating pending writes failed;
// the propagation error is returned with it.
func (c *Core) capture(name string, checkpoint bool, kind string) (*Version, error) {
	if err := c.mutate(); err != nil {
		return nil, err
	}
	if c.rt.InBody() {
		return nil, ErrBusy
	}

	_, span := c.tracer.Start(c.ctx, "rewind."+kind, attribute.String("name", name))

	flushErr := c.rt.Flush()

	truncated := c.history.Stats().Truncated
	v, err := c.history.Capture(c.rt.State(), c.rt.Clock(), name, checkpoint)
	if err != nil {
		telemetry.End(span, err)
		return nil, err
	}
	c.countTruncated(truncated)

	c.metrics.Captures.WithLabelValues(kind).Inc()
	c.metrics.Versions.Set(float64(c.history.Len()))

	span.SetAttributes(attribute.Int64("seq", int64(v.Seq())))
	telemetry.End(span, flushErr)

	level := c.logger.Info
	if kind == "auto" {
		level = c.logger.Debug
	}
	level("version captured", "kind", kind, "seq", v.Seq(), "name", name, "clock", v.Clock())

	return v, flushErr
}

func (c *Core) countTruncated(before int) {
	if n := c.history.Stats().Truncated - before; n > 0 {
		c.metrics.Truncated.Add(float64(n))
		c.logger.Debug("future versions dropped", "count", n)
	}
}

// Rewind restores the state of an earlier version. Every enabled effect of
// the restored graph runs once afterwards. The versions after the target
// stay reachable with Forward until the next write or declaration.
func (c *Core) Rewind(target Target) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.move(target, func() (int, error) {
		if target.name != "" {
			return c.history.Named(target.name)
		}
		return c.history.Back(target.steps)
	})
}

// Forward moves n versions ahead again after a rewind.
func (c *Core) Forward(n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.move(Target{steps: n}, func() (int, error) {
		return c.history.Ahead(n)
	})
}

func (c *Core) move(target Target, resolve func() (int, error)) error {
	if err := c.mutate(); err != nil {
		return err
	}
	if c.rt.InBody() || c.rt.IsBatching() {
		return ErrBusy
	}

	_, span := c.tracer.Start(c.ctx, "rewind.move",
		attribute.String("target", target.String()),
		attribute.String("target_kind", target.kind()),
	)

	i, err := resolve()
	if err == nil {
		err = c.restore(i)
	}

	outcome := "ok"
	if err != nil {
		outcome = "error"
		if kind, ok := KindOf(err); ok {
			outcome = string(kind)
		}
	}
	c.metrics.Rewinds.WithLabelValues(target.kind(), outcome).Inc()
	telemetry.End(span, err)

	return err
}

// restore swaps the live state for version i. A version that fails
// validation leaves both the state and the cursor untouched.
func (c *Core) restore(i int) error {
	v := c.history.At(i)

	c.restoring = true
	err := c.rt.Restore(v.State(), func() error {
		if c.applier == nil {
			return nil
		}
		return c.applier.ApplyVersion(v)
	})
	c.restoring = false

	var corrupt *CorruptVersionError
	if errors.As(err, &corrupt) {
		c.logger.Error("version rejected", "seq", v.Seq(), "error", err)
		return err
	}

	c.history.MoveTo(i)
	c.metrics.ObserveNodes(c.rt.Stats())
	c.logger.Info("rewound", "seq", v.Seq(), "name", v.Name(), "position", i)

	return err
}

// Diff compares the named values of two versions.
func (c *Core) Diff(fromSeq, toSeq uint64) (Diff, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	from, ok := c.history.BySeq(fromSeq)
	if !ok {
		return Diff{}, fmt.Errorf("%w: %d", ErrUnknownVersion, fromSeq)
	}
	to, ok := c.history.BySeq(toSeq)
	if !ok {
		return Diff{}, fmt.Errorf("%w: %d", ErrUnknownVersion, toSeq)
	}
	return history.DiffVersions(from, to), nil
}

// Versions returns the retained versions, oldest first.
func (c *Core) Versions() []*Version {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.history.Versions()
}

// Current returns the version the core was last rewound to, or the newest
// one when it was not rewound since the last capture.
func (c *Core) Current() (*Version, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.history.Current(); ok {
		return v, true
	}
	return c.history.Latest()
}

// ClearHistory forgets every version. The live state is kept.
func (c *Core) ClearHistory() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.mutate(); err != nil {
		return err
	}
	c.history.Clear()
	c.metrics.Versions.Set(0)
	return nil
}

// SetHistoryEnabled turns capturing and rewinding on or off. Versions
// already captured are kept.
func (c *Core) SetHistoryEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.history.SetEnabled(enabled)
}

// ExportHistory writes the retained versions as a JSON document.
func (c *Core) ExportHistory(w io.Writer) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.history.Export(w)
}
