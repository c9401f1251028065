package logger

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel/trace"
)

// New creates a slog.Logger for the given environment.
// Kubernetes, prod and dev get JSON output; everything else gets a text
// handler that paints ERROR lines red. Both are wrapped so that records
// logged with a span in the context carry trace_id/span_id.
func New(env string) *slog.Logger {
	return newWithWriter(os.Stdout, env)
}

func NewWithServiceContext(serviceName, version, env string) *slog.Logger {
	return New(env).With(
		slog.String("service", serviceName),
		slog.String("version", version),
		slog.String("environment", env),
	)
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newWithWriter(w io.Writer, env string) *slog.Logger {
	_, inK8s := os.LookupEnv("KUBERNETES_SERVICE_HOST")
	useJSON := inK8s || env == "prod" || env == "production" || env == "dev"

	var handler slog.Handler
	if useJSON {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:     slog.LevelInfo,
			AddSource: true,
		})
	} else {
		handler = newColorTextHandler(w, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}
	return slog.New(newTraceContextHandler(handler))
}

const (
	ansiRed   = "\x1b[31m"
	ansiReset = "\x1b[0m"
)

// colorTextHandler renders ERROR records through a second TextHandler whose
// writer paints the whole line red. The escape codes wrap the formatted
// line, so TextHandler never sees (and never quotes) them.
type colorTextHandler struct {
	plain slog.Handler
	red   slog.Handler
}

func newColorTextHandler(w io.Writer, opts *slog.HandlerOptions) *colorTextHandler {
	return &colorTextHandler{
		plain: slog.NewTextHandler(w, opts),
		red:   slog.NewTextHandler(redWriter{w: w}, opts),
	}
}

func (h *colorTextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.plain.Enabled(ctx, level)
}

func (h *colorTextHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelError {
		return h.red.Handle(ctx, r)
	}
	return h.plain.Handle(ctx, r)
}

func (h *colorTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &colorTextHandler{plain: h.plain.WithAttrs(attrs), red: h.red.WithAttrs(attrs)}
}

func (h *colorTextHandler) WithGroup(name string) slog.Handler {
	return &colorTextHandler{plain: h.plain.WithGroup(name), red: h.red.WithGroup(name)}
}

// redWriter wraps each line it receives in red. TextHandler emits one
// complete line per Write.
type redWriter struct {
	w io.Writer
}

func (rw redWriter) Write(p []byte) (int, error) {
	line := bytes.TrimSuffix(p, []byte("\n"))
	buf := make([]byte, 0, len(line)+len(ansiRed)+len(ansiReset)+1)
	buf = append(buf, ansiRed...)
	buf = append(buf, line...)
	buf = append(buf, ansiReset...)
	buf = append(buf, '\n')

	if _, err := rw.w.Write(buf); err != nil {
		return 0, err
	}
	return len(p), nil
}

// traceContextHandler adds trace_id and span_id from the OTel span in ctx
type traceContextHandler struct {
	handler slog.Handler
}

func newTraceContextHandler(h slog.Handler) *traceContextHandler {
	return &traceContextHandler{handler: h}
}

func (h *traceContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *traceContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", spanCtx.TraceID().String()),
			slog.String("span_id", spanCtx.SpanID().String()),
		)
	}
	return h.handler.Handle(ctx, r)
}

func (h *traceContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &traceContextHandler{handler: h.handler.WithAttrs(attrs)}
}

func (h *traceContextHandler) WithGroup(name string) slog.Handler {
	return &traceContextHandler{handler: h.handler.WithGroup(name)}
}
