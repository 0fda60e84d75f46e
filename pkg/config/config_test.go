package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server != "http://localhost:8080" {
		t.Errorf("Server = %q, want http://localhost:8080", cfg.Server)
	}
	if cfg.OutputField != "wavFileName" {
		t.Errorf("OutputField = %q, want wavFileName", cfg.OutputField)
	}
	if cfg.WaveformField != "myWaveForm" {
		t.Errorf("WaveformField = %q, want myWaveForm", cfg.WaveformField)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Timeout)
	}
	if cfg.TTL != time.Minute {
		t.Errorf("TTL = %v, want 1m", cfg.TTL)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvServer:        "https://convert.example.com/",
		EnvTimeout:       "5s",
		EnvOutputField:   "outName",
		EnvWaveformField: "shape",
		EnvLogLevel:      "debug",
		EnvTTL:           "10m",
		EnvPort:          "9090",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := DefaultConfig()
	if err := cfg.applyEnv(lookup); err != nil {
		t.Fatalf("applyEnv() error = %v", err)
	}

	if cfg.Server != "https://convert.example.com" {
		t.Errorf("Server = %q, want trailing slash trimmed", cfg.Server)
	}
	if cfg.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", cfg.Timeout)
	}
	if cfg.OutputField != "outName" || cfg.WaveformField != "shape" {
		t.Errorf("fields = %q/%q, want outName/shape", cfg.OutputField, cfg.WaveformField)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.TTL != 10*time.Minute {
		t.Errorf("TTL = %v, want 10m", cfg.TTL)
	}
	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
}

func TestApplyEnvErrors(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"bad timeout", EnvTimeout, "soon"},
		{"negative timeout", EnvTimeout, "-1s"},
		{"bad ttl", EnvTTL, "1 minute"},
		{"bad port", EnvPort, "http"},
		{"port out of range", EnvPort, "70000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lookup := func(k string) (string, bool) {
				if k == tt.key {
					return tt.val, true
				}
				return "", false
			}
			if err := DefaultConfig().applyEnv(lookup); err == nil {
				t.Errorf("applyEnv(%s=%q) should fail", tt.key, tt.val)
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte(EnvWaveformField+"=fromDotEnv\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvWaveformField, "")
	os.Unsetenv(EnvWaveformField)
	t.Setenv(EnvOutputField, "fromEnv")

	cfg, err := Load(path, filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WaveformField != "fromDotEnv" {
		t.Errorf("WaveformField = %q, want fromDotEnv", cfg.WaveformField)
	}
	if cfg.OutputField != "fromEnv" {
		t.Errorf("OutputField = %q, want fromEnv", cfg.OutputField)
	}
}
