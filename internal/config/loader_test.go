package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestLoadWritesDefaultWhenMissing(t *testing.T) {
	logger := zerolog.Nop()
	path := filepath.Join(t.TempDir(), "nested", "chatsync.yaml")

	cfg, resolved, err := Load(&logger, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if resolved != path {
		t.Fatalf("resolved path = %q, want %q", resolved, path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if cfg.TypingTTL != 3*time.Second {
		t.Fatalf("typing ttl = %v, want 3s", cfg.TypingTTL)
	}
	if cfg.HistoryPageSize != 30 {
		t.Fatalf("history page size = %d, want 30", cfg.HistoryPageSize)
	}
}

func TestLoadFileAndEnvPrecedence(t *testing.T) {
	logger := zerolog.Nop()
	path := filepath.Join(t.TempDir(), "chatsync.yaml")
	body := "server_url: ws://file.example/ws\nping_interval: 7s\nmax_reconnect_attempts: 3\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CHATSYNC_SERVER_URL", "ws://env.example/ws")

	cfg, _, err := Load(&logger, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServerURL != "ws://env.example/ws" {
		t.Fatalf("env should win over file, got %q", cfg.ServerURL)
	}
	if cfg.PingInterval != 7*time.Second {
		t.Fatalf("ping interval = %v, want 7s", cfg.PingInterval)
	}
	if cfg.MaxReconnectAttempts != 3 {
		t.Fatalf("max attempts = %d, want 3", cfg.MaxReconnectAttempts)
	}
}

func TestUpdateFromKeepsZeroFields(t *testing.T) {
	cfg := Default()
	cfg.UpdateFrom(Config{Token: "abc", TypingTTL: time.Second})

	if cfg.Token != "abc" || cfg.TypingTTL != time.Second {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.ServerURL != Default().ServerURL {
		t.Fatalf("zero override should keep default server url, got %q", cfg.ServerURL)
	}
}
