package logger

import (
	"context"
	"time"
)

type contextKey struct{}

var logContextKey = contextKey{}

// LogContext holds call-scoped logging context: which endpoint issued or is
// handling a call, its correlation IDs, and when it started.
type LogContext struct {
	TraceID   string
	SpanID    string
	Endpoint  int
	Group     uint16
	ID        uint16
	StartTime time.Time
}

// WithContext attaches lc to ctx.
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext attached to ctx, or nil.
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a LogContext for an endpoint starting a new call.
func NewLogContext(endpoint int) *LogContext {
	return &LogContext{Endpoint: endpoint, StartTime: time.Now()}
}

// Clone returns a copy of lc.
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	c := *lc
	return &c
}

// WithTrace returns a copy of lc with trace/span IDs set.
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	c := lc.Clone()
	if c != nil {
		c.TraceID = traceID
		c.SpanID = spanID
	}
	return c
}

// WithOperation returns a copy of lc with the (group, id) pair set.
func (lc *LogContext) WithOperation(group, id uint16) *LogContext {
	c := lc.Clone()
	if c != nil {
		c.Group = group
		c.ID = id
	}
	return c
}

// DurationMs returns the elapsed time since lc.StartTime in milliseconds.
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
