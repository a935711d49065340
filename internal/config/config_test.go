package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFileEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadFileOverridesAndNormalizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "diag.yaml")
	body := []byte(`
tank_capacity_l: 48
imbalance_threshold_pct: 15
winsor_limit: 0.9
lambda_range: [0.97]
log:
  level: DEBUG
  json: true
`)
	require.NoError(t, os.WriteFile(path, body, 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 48.0, cfg.TankCapacityL)
	assert.Equal(t, 15.0, cfg.ImbalanceThresholdPct)
	assert.Equal(t, 0.05, cfg.WinsorLimit, "out of range winsor limit falls back")
	assert.Equal(t, []float64{0.95, 1.05}, cfg.LambdaRange)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.JSON)
	assert.Equal(t, 70.0, cfg.ClosedLoopMinPct)
}

func TestLoadFileRejectsInvertedLambda(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("lambda_range: [1.1, 0.9]\n"), 0o644))

	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestNormalizeZeroValue(t *testing.T) {
	var cfg Config
	cfg.Normalize()
	assert.Equal(t, DefaultConfig(), cfg)
	require.NoError(t, cfg.Validate())
}
