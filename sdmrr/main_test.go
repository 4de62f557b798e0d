package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/sdmrr/pkg/calib"
	"github.com/itohio/sdmrr/pkg/config"
)

func writeTestConfig(t *testing.T) (string, *config.Config) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Calibration.File = filepath.Join(dir, "cal.json")
	cfg.Pump.Pause = time.Millisecond
	cfg.Mock.Settle = 5 * time.Millisecond
	path := filepath.Join(dir, "sdmrr.yaml")
	require.NoError(t, cfg.Save(path))
	return path, cfg
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(context.Background())
}

func TestCal_SetsRecord(t *testing.T) {
	path, cfg := writeTestConfig(t)

	err := execute(t, "cal", "--config", path, "--mock", "--f0", "22050000", "--t90", "6e-05")
	require.NoError(t, err)

	rec, found, err := calib.NewStore(cfg.Calibration.File).Load()
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 22050000.0, rec.F0)
	assert.Equal(t, 60e-6, rec.T90)
}

func TestPump_Commands(t *testing.T) {
	path, _ := writeTestConfig(t)

	require.NoError(t, execute(t, "pump", "speed", "1", "40", "--config", path, "--mock"))
	require.NoError(t, execute(t, "pump", "dir", "2", "ccw", "--config", path, "--mock"))
	require.NoError(t, execute(t, "pump", "getalarm", "1", "--config", path, "--mock"))

	assert.Error(t, execute(t, "pump", "dir", "2", "sideways", "--config", path, "--mock"))
	assert.Error(t, execute(t, "pump", "start", "one", "--config", path, "--mock"))
}

func TestTrace_OnePulse(t *testing.T) {
	path, _ := writeTestConfig(t)
	out := filepath.Join(t.TempDir(), "fid.png")

	err := execute(t, "trace", "onepulse", "--config", path, "--mock", "--f0", "22050900", "--t90", "6e-05", "-o", out)
	require.NoError(t, err)
	assert.FileExists(t, out)
}
