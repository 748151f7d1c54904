package rewind

import (
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/AnatoleLucet/rewind/internal"
)

// observer connects the runtime to the history and telemetry of its core.
// It runs with the core lock held.
type observer struct {
	c *Core
}

// Mutating drops the versions after the current one, the first time the
// live state diverges from a version it was rewound to.
func (o *observer) Mutating() {
	c := o.c
	if c.restoring || !c.history.Detached() {
		return
	}
	before := c.history.Stats().Truncated
	c.history.Truncate()
	c.countTruncated(before)
}

func (o *observer) Declared(def *internal.Def) {
	c := o.c
	c.metrics.Nodes.WithLabelValues(def.Kind.String()).Inc()
	c.logger.Debug("node declared", "id", def.ID, "kind", def.Kind.String(), "name", def.Name)
}

func (o *observer) ThunkFailed(def *internal.Def, err error) {
	c := o.c
	c.metrics.ThunkErrors.WithLabelValues(def.Kind.String()).Inc()
	c.logger.Warn("reactive body failed", "id", def.ID, "kind", def.Kind.String(), "name", def.Label(), "error", err)
}

func (o *observer) Flushed(stats internal.FlushStats) {
	c := o.c
	c.metrics.ObserveFlush(stats)
	c.tracer.Record(c.ctx, "rewind.propagate", time.Now().Add(-stats.Duration),
		attribute.Int("sources", stats.Sources),
		attribute.Int("affected", stats.Affected),
		attribute.Int("recomputed", stats.Recomputed),
		attribute.Int("effects_run", stats.EffectsRun),
		attribute.Int("failed", stats.Failed),
	)
}
