// Package config loads ProxyD's runtime configuration from environment
// variables, falling back to documented defaults and warning (never
// failing) on an invalid override.
package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog/log"
)

// Defaults mirror the original system's compiled-in constants.
const (
	DefaultRESTPort    = 7891
	DefaultRPCPort     = 7892
	DefaultSyncHourUTC = 2
	DefaultCSVURL      = "https://github.com/NetworkCats/OpenProxyDB/releases/latest/download/proxy_blocks.csv"
	DefaultDataDir     = "/data"
)

// Config holds every environment-tunable setting ProxyD reads at startup.
type Config struct {
	DataDir     string
	RESTPort    int
	RPCPort     int
	SyncHourUTC int
	CSVURL      string
}

// Load builds a Config from the process environment, falling back to
// defaults (and logging a warning) for any variable that is unset or holds
// an invalid value.
func Load() Config {
	return Config{
		DataDir:     envOr("PROXYD_DATA_DIR", DefaultDataDir),
		RESTPort:    parsePort("PROXYD_REST_PORT", DefaultRESTPort),
		RPCPort:     parsePort("PROXYD_RPC_PORT", DefaultRPCPort),
		SyncHourUTC: parseSyncHour("PROXYD_SYNC_HOUR_UTC", DefaultSyncHourUTC),
		CSVURL:      envOr("PROXYD_CSV_URL", DefaultCSVURL),
	}
}

func envOr(name, def string) string {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		return v
	}
	return def
}

func parsePort(name string, def int) int {
	v, ok := os.LookupEnv(name)
	if !ok {
		return def
	}
	port, err := strconv.Atoi(v)
	if err != nil || port <= 0 || port > 65535 {
		log.Warn().Str("var", name).Str("value", v).Int("default", def).Msg("invalid port, using default")
		return def
	}
	return port
}

func parseSyncHour(name string, def int) int {
	v, ok := os.LookupEnv(name)
	if !ok {
		return def
	}
	hour, err := strconv.Atoi(v)
	if err != nil || hour < 0 || hour > 23 {
		log.Warn().Str("var", name).Str("value", v).Int("default", def).Msg("sync hour must be 0-23, using default")
		return def
	}
	return hour
}

// DBPath is the bbolt database file path under DataDir.
func (c Config) DBPath() string {
	return filepath.Join(c.DataDir, "bbolt")
}

// CSVPath is the persisted feed snapshot path under DataDir.
func (c Config) CSVPath() string {
	return filepath.Join(c.DataDir, "proxy_blocks.csv")
}

// CSVHashPath is the persisted feed hash sidecar path under DataDir.
func (c Config) CSVHashPath() string {
	return filepath.Join(c.DataDir, "proxy_blocks.csv.sha256")
}
