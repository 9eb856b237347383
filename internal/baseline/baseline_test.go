package baseline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	f := Load(dir)
	assert.Empty(t, f.Failures)
	assert.NotNil(t, f.Details)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	f := Empty()
	f.Failures = append(f.Failures, "go test ./...")
	f.Details["go test ./..."] = Detail{Cmd: "go test ./...", Output: "FAIL internal/foo"}

	require.NoError(t, Save(dir, f, time.Now()))

	loaded := Load(dir)
	require.Len(t, loaded.Failures, 1)
	assert.Equal(t, "go test ./...", loaded.Failures[0])
	assert.Equal(t, "FAIL internal/foo", loaded.Details["go test ./..."].Output)
	assert.False(t, loaded.Timestamp.IsZero())
}

func TestEligibleForHealing(t *testing.T) {
	f := Empty()
	assert.False(t, f.EligibleForHealing(), "no failures, nothing to heal")

	for i := 0; i < 5; i++ {
		f.Failures = append(f.Failures, "cmd")
	}
	assert.True(t, f.EligibleForHealing())

	f.Failures = append(f.Failures, "one more")
	assert.False(t, f.EligibleForHealing(), "above the healing cap")
}

func TestHealRemovesNamedCommand(t *testing.T) {
	f := Empty()
	f.Failures = []string{"lint", "test"}
	f.Details["lint"] = Detail{Cmd: "lint", Output: "bad"}
	f.Details["test"] = Detail{Cmd: "test", Output: "bad"}

	healed := f.Heal("lint")
	assert.Equal(t, []string{"test"}, healed.Failures)
	_, ok := healed.Details["lint"]
	assert.False(t, ok)
	_, ok = healed.Details["test"]
	assert.True(t, ok)
}
