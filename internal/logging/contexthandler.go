package logging

import (
	"context"
	"log/slog"
)

// BridgeContext is the bridge state stamped on every record.
type BridgeContext struct {
	Vehicle   string
	Mode      string
	Autopilot string // autopilot link status
}

func (c BridgeContext) attrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, 3)
	if c.Vehicle != "" {
		attrs = append(attrs, slog.String("vehicle", c.Vehicle))
	}
	if c.Mode != "" {
		attrs = append(attrs, slog.String("mode", c.Mode))
	}
	if c.Autopilot != "" {
		attrs = append(attrs, slog.String("autopilot", c.Autopilot))
	}
	return attrs
}

// ContextSource reports the current bridge state. It is called for every
// record, so it must be cheap and must not log.
type ContextSource interface {
	LogContext() BridgeContext
}

// ContextFunc adapts a function to ContextSource.
type ContextFunc func() BridgeContext

func (f ContextFunc) LogContext() BridgeContext { return f() }

// ContextHandler stamps each record with the bridge context.
type ContextHandler struct {
	inner  slog.Handler
	source ContextSource
}

// NewContextHandler wraps inner. A nil source adds nothing.
func NewContextHandler(inner slog.Handler, source ContextSource) *ContextHandler {
	return &ContextHandler{inner: inner, source: source}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.source != nil {
		r.AddAttrs(h.source.LogContext().attrs()...)
	}
	return h.inner.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{inner: h.inner.WithAttrs(attrs), source: h.source}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &ContextHandler{inner: h.inner.WithGroup(name), source: h.source}
}
