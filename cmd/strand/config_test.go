package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()

	cfg, err := loadConfigFile(filepath.Join(dir, "absent.yaml"))
	if err != nil {
		t.Fatalf("missing config should not be an error: %v", err)
	}
	if cfg.Vocab != "" || cfg.Temperature != nil {
		t.Fatalf("expected zero config, got %+v", cfg)
	}

	path := filepath.Join(dir, "config.yaml")
	data := []byte("vocab: /models/world_vocab.txt\ntemperature: 0\ntop_p: 0.9\nmax_tokens: 64\ncompression: lz4\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = loadConfigFile(path)
	if err != nil {
		t.Fatalf("loadConfigFile returned error: %v", err)
	}
	if cfg.Vocab != "/models/world_vocab.txt" || cfg.Compression != "lz4" {
		t.Fatalf("unexpected strings: %+v", cfg)
	}
	if cfg.Temperature == nil || *cfg.Temperature != 0 {
		t.Fatalf("explicit zero temperature must be kept, got %v", cfg.Temperature)
	}
	if cfg.TopP == nil || *cfg.TopP != 0.9 {
		t.Fatalf("unexpected top_p: %v", cfg.TopP)
	}
	if cfg.MaxTokens == nil || *cfg.MaxTokens != 64 {
		t.Fatalf("unexpected max_tokens: %v", cfg.MaxTokens)
	}
	if cfg.Seed != nil {
		t.Fatalf("unset seed must stay nil")
	}

	if err := os.WriteFile(path, []byte("temperature: [hot\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadConfigFile(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestConfigPathOverride(t *testing.T) {
	prev := configFile
	defer func() { configFile = prev }()

	configFile = "/tmp/strand.yaml"
	if got := configPath(); got != "/tmp/strand.yaml" {
		t.Fatalf("configPath() = %q", got)
	}
}
