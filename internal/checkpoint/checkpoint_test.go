package checkpoint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codewheel-dev/promptwheel/internal/session"
)

func TestLoadMissingFileReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	f := Load(dir)
	assert.Empty(t, f.RecentCycles)
	assert.NotNil(t, f.FormulaStats)
	assert.NotNil(t, f.SessionCheckpoint.TicketOutcomeDigest)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	f := Empty()
	f.PushCycle(session.CycleOutcome{CycleNumber: 1, Completed: 2, Timestamp: time.Now()})
	f.SessionCheckpoint.CycleCount = 1
	f.SessionCheckpoint.ExternalReviewURLs = []string{"https://example.com/pr/1"}

	require.NoError(t, Save(dir, f))

	loaded := Load(dir)
	require.Len(t, loaded.RecentCycles, 1)
	assert.Equal(t, 1, loaded.TotalCycles)
	assert.Equal(t, 1, loaded.SessionCheckpoint.CycleCount)
	assert.Equal(t, []string{"https://example.com/pr/1"}, loaded.SessionCheckpoint.ExternalReviewURLs)
}

func TestPushCycleDropsOldestBeyondCap(t *testing.T) {
	f := Empty()
	for i := 0; i < maxRecentCycles+5; i++ {
		f.PushCycle(session.CycleOutcome{CycleNumber: i})
	}
	assert.Len(t, f.RecentCycles, maxRecentCycles)
	assert.Equal(t, maxRecentCycles+4, f.RecentCycles[len(f.RecentCycles)-1].CycleNumber)
	assert.Equal(t, maxRecentCycles+5, f.TotalCycles)
}

func TestPushDiffDropsOldestBeyondCap(t *testing.T) {
	f := Empty()
	for i := 0; i < maxRecentDiffs+3; i++ {
		f.PushDiff("diff")
	}
	assert.Len(t, f.RecentDiffs, maxRecentDiffs)
}

func TestRecordAndHasTriedLens(t *testing.T) {
	f := Empty()
	assert.False(t, f.HasTriedLens("security", "internal/auth"))

	f.RecordZeroYield("security", "internal/auth")
	assert.True(t, f.HasTriedLens("security", "internal/auth"))
	assert.False(t, f.HasTriedLens("perf", "internal/auth"))

	f.RecordZeroYield("security", "internal/auth")
	assert.Len(t, f.LensZeroYieldPairs, 1, "duplicate record should not grow the list")
}

func TestRecentCompletionRate(t *testing.T) {
	f := Empty()
	assert.Equal(t, 0.5, f.RecentCompletionRate(), "no history defaults to neutral 0.5")

	f.PushCycle(session.CycleOutcome{Completed: 3, Failed: 1})
	f.PushCycle(session.CycleOutcome{Completed: 1, Failed: 3})
	assert.InDelta(t, 0.5, f.RecentCompletionRate(), 0.001)
}
