package ports

import (
	"context"

	"github.com/google/uuid"
)

// Logger defines the wheel's structured logging contract. All log calls are
// key/value pairs, must be safe for concurrent use, and should automatically
// enrich entries with a cycle ID when present in context. Common fields:
//   - cycle_id (session id + cycle number, set once per wheel-loop iteration)
//   - layer (domain|application|infrastructure)
//   - component (scheduler, planner, critic, store, ...)
//   - step_id / trajectory / category for narrower context
//   - duration_ms for timed operations
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...interface{})
	Info(ctx context.Context, msg string, fields ...interface{})
	Warn(ctx context.Context, msg string, fields ...interface{})
	Error(ctx context.Context, msg string, fields ...interface{})
	With(fields ...interface{}) Logger
}

type cycleIDKey struct{}

// WithCycleID attaches the provided cycle identifier to the context so
// downstream layers can emit correlated logs across a single pass of the
// wheel loop.
func WithCycleID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, cycleIDKey{}, id)
}

// GetCycleID extracts a cycle identifier from context. It returns an empty
// string when none has been set -- callers should treat that as "uncorrelated".
func GetCycleID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(cycleIDKey{}).(string); ok {
		return id
	}
	return ""
}

// GenerateCycleID produces an identifier suitable for cycle correlation,
// combining a session identifier with the current cycle count.
func GenerateCycleID(sessionID string, cycleCount int) string {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	return sessionID + "/" + itoa(cycleCount)
}

// NewSessionID produces a fresh UUIDv4 session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
