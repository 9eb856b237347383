package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSystemNow(t *testing.T) {
	c := System{}

	before := time.Now()
	got := c.Now()
	after := time.Now()

	assert.False(t, got.Before(before), "Now() should not return a time before actual time.Now()")
	assert.False(t, got.After(after), "Now() should not return a time after actual time.Now()")
}

func TestSystemSleepReturnsAfterDuration(t *testing.T) {
	c := System{}
	start := time.Now()
	c.Sleep(context.Background(), 20*time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestSystemSleepReturnsEarlyOnCancel(t *testing.T) {
	c := System{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	c.Sleep(ctx, time.Second)
	assert.Less(t, time.Since(start), time.Second)
}
