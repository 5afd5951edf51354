package logging

import (
	"context"
	"log/slog"
)

// ComponentKey is the attribute the engine packages scope their loggers
// with, as in logger.With(ComponentKey, "tbt").
const ComponentKey = "component"

// componentFilter passes a record when it reaches the level of the
// component the logger was scoped to. The level is resolved once, when the
// component attribute is added.
type componentFilter struct {
	next  slog.Handler
	spec  Spec
	level slog.Level
}

// NewHandler wraps next so that records are filtered by spec.
func NewHandler(next slog.Handler, spec Spec) slog.Handler {
	return &componentFilter{next: next, spec: spec, level: spec.Default.ToSlog()}
}

func (h *componentFilter) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *componentFilter) Handle(ctx context.Context, r slog.Record) error {
	if r.Level < h.level {
		return nil
	}
	return h.next.Handle(ctx, r)
}

func (h *componentFilter) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.next = h.next.WithAttrs(attrs)
	for _, a := range attrs {
		if a.Key == ComponentKey {
			c.level = h.spec.Level(a.Value.String()).ToSlog()
		}
	}
	return &c
}

func (h *componentFilter) WithGroup(name string) slog.Handler {
	c := *h
	c.next = h.next.WithGroup(name)
	return &c
}
