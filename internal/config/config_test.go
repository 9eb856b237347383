package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	require.NoError(t, Validate(Default()))
}

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverlaysOntoDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wheel.yaml")
	require.NoError(t, os.WriteFile(path, []byte("maxIdleCycles: 30\nminConfidence: 60\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.MaxIdleCycles)
	assert.Equal(t, 60, cfg.MinConfidence)
	assert.Equal(t, Default().Drill.MaxProposals, cfg.Drill.MaxProposals)
}

func TestValidateRejectsMaxProposalsBelowMin(t *testing.T) {
	cfg := Default()
	cfg.Drill.MinProposals = 10
	cfg.Drill.MaxProposals = 5
	assert.Error(t, Validate(cfg))
}

func TestValidateRejectsOutOfRangeConfidence(t *testing.T) {
	cfg := Default()
	cfg.MinConfidence = 150
	assert.Error(t, Validate(cfg))
}

func TestValidateRejectsUnknownPullPolicy(t *testing.T) {
	cfg := Default()
	cfg.PullPolicy = "maybe"
	assert.Error(t, Validate(cfg))
}
