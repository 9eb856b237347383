package logging

import (
	"context"

	"github.com/codewheel-dev/promptwheel/internal/ports"
)

// WithCycleID stores the provided cycle identifier inside the context.
func WithCycleID(ctx context.Context, id string) context.Context {
	return ports.WithCycleID(ctx, id)
}

// GetCycleID retrieves the cycle identifier from the context, returning an
// empty string when none is present.
func GetCycleID(ctx context.Context) string {
	return ports.GetCycleID(ctx)
}

// GenerateCycleID creates a new cycle identifier from a session id and cycle count.
func GenerateCycleID(sessionID string, cycleCount int) string {
	return ports.GenerateCycleID(sessionID, cycleCount)
}

// NewSessionID creates a fresh session identifier.
func NewSessionID() string {
	return ports.NewSessionID()
}
