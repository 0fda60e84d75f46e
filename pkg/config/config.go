// Package config resolves midi2wav settings from defaults, an optional .env
// file and the process environment
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment variable names
const (
	EnvServer        = "MIDI2WAV_SERVER"
	EnvTimeout       = "MIDI2WAV_TIMEOUT"
	EnvOutputField   = "MIDI2WAV_OUTPUT_FIELD"
	EnvWaveformField = "MIDI2WAV_WAVEFORM_FIELD"
	EnvDownloadDir   = "MIDI2WAV_DOWNLOAD_DIR"
	EnvLogLevel      = "MIDI2WAV_LOG_LEVEL"
	EnvLogFile       = "MIDI2WAV_LOG_FILE"
	EnvUploadDir     = "MIDI2WAV_UPLOAD_DIR"
	EnvTTL           = "MIDI2WAV_TTL"
	EnvPort          = "MIDI2WAV_PORT"
)

// Config holds client and development server settings
type Config struct {
	// Client
	Server        string        // base URL of the conversion service
	Timeout       time.Duration // applies to a single upload or download
	OutputField   string        // multipart field carrying the output name
	WaveformField string        // multipart field carrying the waveform
	DownloadDir   string

	// Logging
	LogLevel string
	LogFile  string // TUI only; empty discards

	// Development server
	Port      int
	UploadDir string
	TTL       time.Duration
}

// DefaultConfig returns the settings used when nothing is configured
func DefaultConfig() *Config {
	return &Config{
		Server:        "http://localhost:8080",
		Timeout:       30 * time.Second,
		OutputField:   "wavFileName",
		WaveformField: "myWaveForm",
		DownloadDir:   ".",
		LogLevel:      "info",
		Port:          8080,
		UploadDir:     filepath.Join(os.TempDir(), "midi2wav"),
		TTL:           time.Minute,
	}
}

// Load reads the given .env files (missing files are ignored) and applies
// the environment on top of the defaults. With no files, ".env" in the
// working directory is tried.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		// godotenv never overrides variables already set in the environment
		if err := godotenv.Load(f); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	cfg := DefaultConfig()
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s value %q: %w", key, v, err)
		}
		if d <= 0 {
			return fmt.Errorf("invalid %s value %q: must be positive", key, v)
		}
		*dst = d
		return nil
	}

	str(EnvServer, &c.Server)
	str(EnvOutputField, &c.OutputField)
	str(EnvWaveformField, &c.WaveformField)
	str(EnvDownloadDir, &c.DownloadDir)
	str(EnvLogLevel, &c.LogLevel)
	str(EnvLogFile, &c.LogFile)
	str(EnvUploadDir, &c.UploadDir)

	if err := dur(EnvTimeout, &c.Timeout); err != nil {
		return err
	}
	if err := dur(EnvTTL, &c.TTL); err != nil {
		return err
	}

	if v, ok := lookup(EnvPort); ok && strings.TrimSpace(v) != "" {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("invalid %s value %q", EnvPort, v)
		}
		c.Port = port
	}

	c.Server = strings.TrimRight(c.Server, "/")
	return nil
}
