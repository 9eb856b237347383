// Package clock implements ports.Clock using the actual system clock.
package clock

import (
	"context"
	"time"

	"github.com/codewheel-dev/promptwheel/internal/ports"
)

// System implements ports.Clock using real wall-clock time.
type System struct{}

var _ ports.Clock = System{}

// Now returns the current time from the system clock.
func (System) Now() time.Time {
	return time.Now()
}

// Sleep blocks for d or until ctx is done, whichever comes first.
func (System) Sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
