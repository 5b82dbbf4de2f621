package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseEnvClientDefaults(t *testing.T) {
	var cfg Client
	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.TurnDuration != 30*time.Second {
		t.Fatalf("expected 30s turn, got %s", cfg.TurnDuration)
	}
	if cfg.ServiceURL != "http://localhost:8080" {
		t.Fatalf("unexpected service url %q", cfg.ServiceURL)
	}
}

func TestParseEnvError(t *testing.T) {
	var cfg Client
	t.Setenv("DUEL_TURN_DURATION", "soon")

	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestLoadServerRequiresSecret(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("DUEL_JWT_SECRET", "")
	os.Unsetenv("DUEL_JWT_SECRET")

	if _, err := LoadServer(); err == nil {
		t.Fatal("expected missing secret to fail")
	}
}

func TestLoadDotEnvDoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("DUEL_PLAYER=fromfile\nDUEL_TOKEN=filetoken\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DUEL_PLAYER", "fromenv")
	t.Setenv("DUEL_TOKEN", "")
	os.Unsetenv("DUEL_TOKEN")

	if err := LoadDotEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("load: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("DUEL_TOKEN") })

	var cfg Client
	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Self != "fromenv" {
		t.Fatalf("env must win over file, got %q", cfg.Self)
	}
	if cfg.Token != "filetoken" {
		t.Fatalf("expected token from file, got %q", cfg.Token)
	}
}
