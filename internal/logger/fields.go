package logger

import "log/slog"

// Standard field keys for structured logging across the dispatcher and its
// ambient components. Use these consistently so log aggregation can query
// across packages.
const (
	KeyTraceID  = "trace_id"
	KeySpanID   = "span_id"
	KeyEndpoint = "endpoint"
	KeyRemote   = "remote_endpoint"
	KeyTag      = "tag"
	KeyGroup    = "group"
	KeyID       = "id"
	KeyHandler  = "handler"
	KeyDuration = "duration_ms"
	KeyError    = "error"
	KeyKind     = "kind"
)

// TraceID returns a slog.Attr for the OpenTelemetry trace ID.
func TraceID(id string) slog.Attr { return slog.String(KeyTraceID, id) }

// SpanID returns a slog.Attr for the OpenTelemetry span ID.
func SpanID(id string) slog.Attr { return slog.String(KeySpanID, id) }

// Endpoint returns a slog.Attr for a local endpoint index.
func Endpoint(idx int) slog.Attr { return slog.Int(KeyEndpoint, idx) }

// Remote returns a slog.Attr for a remote endpoint address.
func Remote(addr byte) slog.Attr { return slog.Int(KeyRemote, int(addr)) }

// Tag returns a slog.Attr for a wire packet tag.
func Tag(tag string) slog.Attr { return slog.String(KeyTag, tag) }

// Group returns a slog.Attr for a registered group number.
func Group(g uint16) slog.Attr { return slog.Any(KeyGroup, g) }

// ID returns a slog.Attr for a registered command/event id.
func ID(id uint16) slog.Attr { return slog.Any(KeyID, id) }

// Handler returns a slog.Attr for a handler name.
func Handler(name string) slog.Attr { return slog.String(KeyHandler, name) }

// DurationMs returns a slog.Attr for an operation duration in milliseconds.
func DurationMs(ms float64) slog.Attr { return slog.Float64(KeyDuration, ms) }

// Err returns a slog.Attr for an error, or a zero Attr for a nil error.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Kind returns a slog.Attr for a wire.Kind's string form.
func Kind(kind string) slog.Attr { return slog.String(KeyKind, kind) }
