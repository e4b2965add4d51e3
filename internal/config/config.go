package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration values.
type Config struct {
	// Backend endpoints
	APIURL      string
	WSURL       string
	HTTPTimeout time.Duration

	// Logging
	LogFile  string
	LogLevel slog.Level

	// Local state
	PrefsFile string

	// Liveness
	WatchdogTimeout     time.Duration
	ReconnectMaxRetries int

	// Prometheus exposition, empty disables it
	MetricsAddr string
}

// Load reads configuration from environment variables.
// Endpoint defaults match a backend running on localhost:7700.
func Load() Config {
	return Config{
		APIURL:      strings.TrimRight(getEnv("MNEMO_API_URL", "http://localhost:7700"), "/"),
		WSURL:       strings.TrimRight(getEnv("MNEMO_WS_URL", "ws://localhost:7700"), "/"),
		HTTPTimeout: parseDuration(getEnv("MNEMO_HTTP_TIMEOUT", ""), 10*time.Second),

		LogFile:  getEnv("MNEMO_LOG_FILE", "/tmp/mnemo.log"),
		LogLevel: ParseLogLevel(getEnv("MNEMO_LOG_LEVEL", "INFO")),

		PrefsFile: getEnv("MNEMO_PREFS_FILE", defaultPrefsFile()),

		WatchdogTimeout:     parseDuration(getEnv("MNEMO_WATCHDOG_TIMEOUT", ""), 10*time.Second),
		ReconnectMaxRetries: parseInt(getEnv("MNEMO_RECONNECT_MAX_RETRIES", ""), 10),

		MetricsAddr: getEnv("MNEMO_METRICS_ADDR", ""),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func defaultPrefsFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "mnemo", "prefs.yaml")
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	slog.Warn("invalid duration, using default", "value", s, "default", def)
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return n
	}
	slog.Warn("invalid integer, using default", "value", s, "default", def)
	return def
}

// ParseLogLevel maps a level name to slog.Level. Unknown names mean INFO.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
