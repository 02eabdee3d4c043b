package config

import (
	"strings"
	"testing"
	"time"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SESSION_HASH_KEY", testKey)
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backend.URL != "http://localhost:8000" || cfg.Backend.Timeout != 0 {
		t.Fatalf("unexpected backend %+v", cfg.Backend)
	}
	if cfg.Server.HTTPPort != "8080" || cfg.Upload.MaxBytes != 10*1024*1024 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if got := cfg.SessionMaxAge(); got != 7*24*60*60 {
		t.Fatalf("expected 7 days, got %d", got)
	}
}

func TestLoadEnvAndFlags(t *testing.T) {
	t.Setenv("SESSION_HASH_KEY", testKey)
	t.Setenv("BACKEND_TIMEOUT", "30s")
	t.Setenv("BACKEND_URL", "http://env:9000")
	cfg, err := Load([]string{"--backend.url", "http://flag:7000/", "--logs.level", "debug"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backend.URL != "http://flag:7000" {
		t.Fatalf("flag must win and trailing slash be trimmed, got %q", cfg.Backend.URL)
	}
	if cfg.Backend.Timeout != 30*time.Second {
		t.Fatalf("unexpected timeout %v", cfg.Backend.Timeout)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected level %q", cfg.Logging.Level)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"placeholder key", map[string]string{}, "session.hash_key must be set"},
		{"short key", map[string]string{"SESSION_HASH_KEY": "short"}, "at least 32 bytes"},
		{"bad block key", map[string]string{"SESSION_HASH_KEY": testKey, "SESSION_BLOCK_KEY": "abc"}, "block_key"},
		{"relative backend", map[string]string{"SESSION_HASH_KEY": testKey, "BACKEND_URL": "localhost"}, "absolute URL"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load(nil)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}
