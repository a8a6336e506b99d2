package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadConfig_LogLevelOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dslwatch.yaml")
	if err := os.WriteFile(path, []byte("log_level: warn\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	env := filepath.Join(dir, "missing.env")

	cfg, err := loadConfig(path, env, "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("file level: got %q, want warn", cfg.LogLevel)
	}

	cfg, err = loadConfig(path, env, "debug")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("flag level: got %q, want debug", cfg.LogLevel)
	}

	_, err = loadConfig(path, env, "bogus")
	if err == nil || !strings.Contains(err.Error(), "bogus") {
		t.Errorf("unknown flag level: got %v, want an error naming it", err)
	}
}
