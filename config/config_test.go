package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing file must not error: %v", err)
	}
	if cfg.ActionEngine.TargetOEEPercentage != 85 {
		t.Errorf("default target OEE = %v, want 85", cfg.ActionEngine.TargetOEEPercentage)
	}
	if cfg.ActionEngine.FinancialLossThreshold != 1000 {
		t.Errorf("default loss threshold = %v, want 1000", cfg.ActionEngine.FinancialLossThreshold)
	}
	if !cfg.Cache.CacheEnabled() {
		t.Error("cache defaults to enabled")
	}
	if cfg.Orchestrator.TotalTimeout() != 30*time.Second {
		t.Errorf("default total timeout = %v, want 30s", cfg.Orchestrator.TotalTimeout())
	}
	if cfg.Grounding.ThresholdMin != 0.6 {
		t.Errorf("default grounding min = %v, want 0.6", cfg.Grounding.ThresholdMin)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opsbrief.yaml")
	raw := `
action_engine:
  target_oee_percentage: 90
cache:
  enabled: false
  max_size: 50
orchestrator:
  total_timeout_seconds: 12.5
mongo_uri: mongodb://store:27017
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ActionEngine.TargetOEEPercentage != 90 {
		t.Errorf("target OEE override lost: %v", cfg.ActionEngine.TargetOEEPercentage)
	}
	// Untouched knobs keep their defaults.
	if cfg.ActionEngine.FinancialHighThreshold != 5000 {
		t.Errorf("unset knob lost its default: %v", cfg.ActionEngine.FinancialHighThreshold)
	}
	if cfg.Cache.CacheEnabled() {
		t.Error("cache enabled:false must stick")
	}
	if cfg.Cache.MaxSize != 50 {
		t.Errorf("max_size = %d, want 50", cfg.Cache.MaxSize)
	}
	if cfg.Orchestrator.TotalTimeout() != 12500*time.Millisecond {
		t.Errorf("total timeout = %v, want 12.5s", cfg.Orchestrator.TotalTimeout())
	}
	if cfg.MongoURI != "mongodb://store:27017" {
		t.Errorf("mongo_uri = %q", cfg.MongoURI)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("action_engine: ["), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("malformed YAML must error")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("OPSBRIEF_REDIS_ADDR", "redis:6379")
	t.Setenv("OPSBRIEF_CACHE_ENABLED", "false")
	t.Setenv("OPSBRIEF_TARGET_OEE", "92.5")

	cfg := LoadFromEnv(Default())
	if cfg.RedisAddr != "redis:6379" {
		t.Errorf("redis addr override lost: %q", cfg.RedisAddr)
	}
	if cfg.Cache.CacheEnabled() {
		t.Error("env cache disable must stick")
	}
	if cfg.ActionEngine.TargetOEEPercentage != 92.5 {
		t.Errorf("target OEE env override lost: %v", cfg.ActionEngine.TargetOEEPercentage)
	}
}
