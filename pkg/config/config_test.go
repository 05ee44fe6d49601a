package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PROXYD_DATA_DIR", "")
	t.Setenv("PROXYD_REST_PORT", "")
	t.Setenv("PROXYD_RPC_PORT", "")
	t.Setenv("PROXYD_SYNC_HOUR_UTC", "")
	t.Setenv("PROXYD_CSV_URL", "")

	cfg := Load()
	assert.Equal(t, DefaultDataDir, cfg.DataDir)
	assert.Equal(t, DefaultRESTPort, cfg.RESTPort)
	assert.Equal(t, DefaultRPCPort, cfg.RPCPort)
	assert.Equal(t, DefaultSyncHourUTC, cfg.SyncHourUTC)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PROXYD_DATA_DIR", "/tmp/proxyd")
	t.Setenv("PROXYD_REST_PORT", "9000")
	t.Setenv("PROXYD_SYNC_HOUR_UTC", "14")

	cfg := Load()
	assert.Equal(t, "/tmp/proxyd", cfg.DataDir)
	assert.Equal(t, 9000, cfg.RESTPort)
	assert.Equal(t, 14, cfg.SyncHourUTC)
}

func TestLoadInvalidPortFallsBackToDefault(t *testing.T) {
	t.Setenv("PROXYD_REST_PORT", "not-a-number")
	cfg := Load()
	assert.Equal(t, DefaultRESTPort, cfg.RESTPort)
}

func TestLoadInvalidSyncHourFallsBackToDefault(t *testing.T) {
	t.Setenv("PROXYD_SYNC_HOUR_UTC", "99")
	cfg := Load()
	assert.Equal(t, DefaultSyncHourUTC, cfg.SyncHourUTC)
}

func TestDerivedPaths(t *testing.T) {
	cfg := Config{DataDir: "/data"}
	assert.Equal(t, "/data/bbolt", cfg.DBPath())
	assert.Equal(t, "/data/proxy_blocks.csv", cfg.CSVPath())
	assert.Equal(t, "/data/proxy_blocks.csv.sha256", cfg.CSVHashPath())
}
