package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// Options describes a service logger. Zero values give JSON at info level on
// stdout.
type Options struct {
	Service string
	Level   string
	// Format is "json" or "text".
	Format string
	Output io.Writer
}

// Build returns a logger tagged with the service name. Debug level adds
// source locations.
func (o Options) Build() *slog.Logger {
	out := o.Output
	if out == nil {
		out = os.Stdout
	}
	lvl := ParseLevel(o.Level)
	opts := &slog.HandlerOptions{Level: lvl, AddSource: lvl <= slog.LevelDebug}

	var h slog.Handler
	if strings.EqualFold(o.Format, "text") {
		h = slog.NewTextHandler(out, opts)
	} else {
		h = slog.NewJSONHandler(out, opts)
	}
	return slog.New(h).With(slog.String("service", o.Service))
}

// New returns a JSON logger on stdout.
func New(service, level string) *slog.Logger {
	return Options{Service: service, Level: level}.Build()
}

// NewWithWriter returns a JSON logger writing to w.
func NewWithWriter(service, level string, w io.Writer) *slog.Logger {
	return Options{Service: service, Level: level, Output: w}.Build()
}

// ParseLevel maps a level name to a slog.Level. Unknown names yield Info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type ctxKey int

const (
	correlationKey ctxKey = iota
	sessionKey
	userKey
	loggerKey
)

// requestFields lists the string values WithContext copies onto a logger, in
// output order.
var requestFields = []struct {
	key  ctxKey
	attr string
}{
	{correlationKey, "correlation_id"},
	{sessionKey, "session_id"},
	{userKey, "user_id"},
}

func stringValue(ctx context.Context, key ctxKey) string {
	s, _ := ctx.Value(key).(string)
	return s
}

// WithCorrelationID stores the request correlation id.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey, id)
}

// CorrelationIDFromContext returns the correlation id, or "".
func CorrelationIDFromContext(ctx context.Context) string {
	return stringValue(ctx, correlationKey)
}

// WithSessionID stores the storefront session id.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey, id)
}

// SessionIDFromContext returns the storefront session id, or "".
func SessionIDFromContext(ctx context.Context) string {
	return stringValue(ctx, sessionKey)
}

// WithUserID stores the authenticated user id for log enrichment.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userKey, id)
}

// UserIDFromContext returns the user id stored by WithUserID, or "".
func UserIDFromContext(ctx context.Context) string {
	return stringValue(ctx, userKey)
}

// NewContext stores a request-scoped logger.
func NewContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext returns the logger stored by NewContext, or slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// WithContext returns l enriched with the request ids and the active span.
func WithContext(ctx context.Context, l *slog.Logger) *slog.Logger {
	attrs := make([]any, 0, len(requestFields)+2)
	for _, f := range requestFields {
		if v := stringValue(ctx, f.key); v != "" {
			attrs = append(attrs, slog.String(f.attr, v))
		}
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		attrs = append(attrs,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if len(attrs) == 0 {
		return l
	}
	return l.With(attrs...)
}
