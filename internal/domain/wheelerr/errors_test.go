package wheelerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWheelErrorIsMatchesByCode(t *testing.T) {
	a := New(CodeStuckStep, "step stuck")
	b := New(CodeStuckStep, "different message, same code")
	c := New(CodeTransient, "unrelated")

	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, c))
}

func TestWheelErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(CodeAgentFailure, "agent invocation failed", cause)
	require.ErrorIs(t, err, cause)
}

func TestWithContextMerges(t *testing.T) {
	err := New(CodeValidation, "bad step").WithContext(map[string]interface{}{"step_id": "a"})
	err2 := err.WithContext(map[string]interface{}{"trajectory": "t1"})

	assert.Equal(t, "a", err2.Context["step_id"])
	assert.Equal(t, "t1", err2.Context["trajectory"])
	// original not mutated
	assert.NotContains(t, err.Context, "trajectory")
}

func TestRecoverable(t *testing.T) {
	assert.False(t, New(CodeFatalConfig, "x").Recoverable())
	assert.False(t, New(CodeBranchDiverged, "x").Recoverable())
	assert.True(t, New(CodeTransient, "x").Recoverable())
	assert.True(t, New(CodeStuckStep, "x").Recoverable())
}
