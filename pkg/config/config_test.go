package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pario-ai/ccmeter/pkg/models"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Blocks.InactivityThreshold != 5*time.Hour {
		t.Errorf("expected 5h threshold, got %v", cfg.Blocks.InactivityThreshold)
	}
	if cfg.Timezone != "UTC" {
		t.Errorf("expected UTC, got %s", cfg.Timezone)
	}
	if cfg.CostMode != "auto" {
		t.Errorf("expected auto cost mode, got %s", cfg.CostMode)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_DATA_DIR", "/data/claude")

	content := `
data_dirs:
  - ${TEST_DATA_DIR}/projects
db_path: "test.db"
timezone: UTC
cost_mode: calculate
on_error: abort
week_start: sun
blocks:
  inactivity_threshold: 4h
  token_limit: 500000
pricing:
  offline: true
  cache_ttl: 30m
  overrides:
    - model: custom-model
      input_cost_per_token: 0.000001
      output_cost_per_token: 0.000002
      cache_read_cost_per_token: 0.0000001
budget:
  enabled: true
  policies:
    - period: daily
      max_cost: 25
      warn_percent: 80
`
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.DataDirs[0] != "/data/claude/projects" {
		t.Errorf("env var not expanded: got %s", cfg.DataDirs[0])
	}
	if cfg.Blocks.InactivityThreshold != 4*time.Hour {
		t.Errorf("expected 4h threshold, got %v", cfg.Blocks.InactivityThreshold)
	}
	if cfg.Pricing.CacheTTL != 30*time.Minute {
		t.Errorf("expected 30m TTL, got %v", cfg.Pricing.CacheTTL)
	}
	if cfg.Pricing.Timeout != 10*time.Second {
		t.Errorf("default timeout lost, got %v", cfg.Pricing.Timeout)
	}
	if len(cfg.Pricing.Overrides) != 1 || cfg.Pricing.Overrides[0].CacheReadCostPerToken == nil {
		t.Fatalf("override not parsed: %+v", cfg.Pricing.Overrides)
	}
	if cfg.Pricing.Overrides[0].CacheCreationCostPerToken != nil {
		t.Error("absent cache creation price should stay nil")
	}
	if !cfg.Budget.Enabled || len(cfg.Budget.Policies) != 1 {
		t.Fatalf("expected 1 enabled policy, got %+v", cfg.Budget)
	}
	if cfg.Budget.Policies[0].Period != models.BudgetDaily || cfg.Budget.Policies[0].MaxCost != 25 {
		t.Errorf("unexpected policy %+v", cfg.Budget.Policies[0])
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	mode, _ := cfg.Mode()
	if mode != models.CostModeCalculate {
		t.Errorf("expected calculate, got %s", mode)
	}
	wd, _ := cfg.FirstWeekday()
	if wd != time.Sunday {
		t.Errorf("expected sunday, got %s", wd)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("expected error for missing file")
	}
}

func TestResolveExplicitMissing(t *testing.T) {
	if _, err := Resolve("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for explicit missing file")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvConfigDir, "/a, /b/projects")
	t.Setenv(EnvTimezone, "Asia/Tokyo")

	cfg := Default()
	cfg.ApplyEnv()
	if len(cfg.DataDirs) != 2 || cfg.DataDirs[0] != "/a/projects" || cfg.DataDirs[1] != "/b/projects" {
		t.Errorf("unexpected data dirs %v", cfg.DataDirs)
	}
	if cfg.Timezone != "Asia/Tokyo" {
		t.Errorf("expected Asia/Tokyo, got %s", cfg.Timezone)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad mode", func(c *Config) { c.CostMode = "guess" }},
		{"bad policy", func(c *Config) { c.OnError = "retry" }},
		{"bad timezone", func(c *Config) { c.Timezone = "Nowhere/Special" }},
		{"bad weekday", func(c *Config) { c.WeekStart = "someday" }},
		{"zero threshold", func(c *Config) { c.Blocks.InactivityThreshold = 0 }},
		{"negative limit", func(c *Config) { c.Blocks.TokenLimit = -1 }},
		{"bad period", func(c *Config) {
			c.Budget.Policies = []models.BudgetPolicy{{Period: "hourly", MaxCost: 1}}
		}},
		{"zero budget", func(c *Config) {
			c.Budget.Policies = []models.BudgetPolicy{{Period: models.BudgetDaily}}
		}},
		{"unnamed override", func(c *Config) {
			c.Pricing.Overrides = []models.ModelPricing{{InputCostPerToken: 1}}
		}},
		{"negative retention", func(c *Config) { c.Archive.RetentionDays = -3 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestExpandedDataDirs(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	cfg := &Config{DataDirs: []string{"~/.claude/projects", "/abs"}}
	got := cfg.ExpandedDataDirs()
	if got[0] != filepath.Join(home, ".claude/projects") {
		t.Errorf("unexpected %s", got[0])
	}
	if got[1] != "/abs" {
		t.Errorf("unexpected %s", got[1])
	}
}
