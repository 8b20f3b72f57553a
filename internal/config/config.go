// Package config captures all runtime tunables for the bridge.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultAddr is the loopback address overlay clients connect to.
	DefaultAddr = "127.0.0.1:24050"
	// DefaultInterval is the cadence of the memory reading loop.
	DefaultInterval = 300 * time.Millisecond
	// DefaultErrorInterval is the back-off before reattaching after a fatal error.
	DefaultErrorInterval = 3 * time.Second
	// DefaultProcessName is the substring used to locate the game process.
	DefaultProcessName = "osu!.exe"
	// DefaultExcludedWords filters launcher wrappers that re-exec the real binary.
	DefaultExcludedWords = "umu-run,waitforexitandrun"
	// DefaultRecordKeep bounds how many session recordings survive in the
	// record directory. Zero disables pruning.
	DefaultRecordKeep = 10

	// DefaultLogLevel controls verbosity for bridge logs.
	DefaultLogLevel = "info"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 50
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 5
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true
)

// Config holds every runtime tunable of the bridge process.
type Config struct {
	Addr          string
	OsuPath       string
	Interval      time.Duration
	ErrorInterval time.Duration
	ProcessName   string
	ExcludedWords []string
	RecordDir     string
	RecordKeep    int
	Logging       LoggingConfig
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	Compress   bool
}

// Load reads the bridge configuration from environment variables, applying
// defaults and returning descriptive errors for invalid overrides. CLI flags
// are applied by the caller on top of the loaded value.
func Load() (*Config, error) {
	cfg := &Config{
		Addr:          getString("BRIDGE_ADDR", DefaultAddr),
		OsuPath:       strings.TrimSpace(os.Getenv("BRIDGE_OSU_PATH")),
		Interval:      DefaultInterval,
		ErrorInterval: DefaultErrorInterval,
		ProcessName:   getString("BRIDGE_PROCESS_NAME", DefaultProcessName),
		ExcludedWords: parseList(getString("BRIDGE_EXCLUDED_WORDS", DefaultExcludedWords)),
		RecordDir:     strings.TrimSpace(os.Getenv("BRIDGE_RECORD_DIR")),
		RecordKeep:    DefaultRecordKeep,
		Logging: LoggingConfig{
			Level:      strings.TrimSpace(getString("BRIDGE_LOG_LEVEL", DefaultLogLevel)),
			Path:       strings.TrimSpace(os.Getenv("BRIDGE_LOG_PATH")),
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			Compress:   DefaultLogCompress,
		},
	}

	var problems []string

	if raw := strings.TrimSpace(os.Getenv("BRIDGE_INTERVAL")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("BRIDGE_INTERVAL must be a positive duration, got %q", raw))
		} else {
			cfg.Interval = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("BRIDGE_ERROR_INTERVAL")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("BRIDGE_ERROR_INTERVAL must be a positive duration, got %q", raw))
		} else {
			cfg.ErrorInterval = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("BRIDGE_RECORD_KEEP")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("BRIDGE_RECORD_KEEP must be a non-negative integer, got %q", raw))
		} else {
			cfg.RecordKeep = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("BRIDGE_LOG_MAX_SIZE_MB")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("BRIDGE_LOG_MAX_SIZE_MB must be a positive integer, got %q", raw))
		} else {
			cfg.Logging.MaxSizeMB = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("BRIDGE_LOG_MAX_BACKUPS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("BRIDGE_LOG_MAX_BACKUPS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxBackups = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("BRIDGE_LOG_COMPRESS")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("BRIDGE_LOG_COMPRESS must be a boolean value, got %q", raw))
		} else {
			cfg.Logging.Compress = value
		}
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("%s", strings.Join(problems, "; "))
	}

	return cfg, nil
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if item := strings.TrimSpace(part); item != "" {
			values = append(values, item)
		}
	}
	return values
}
