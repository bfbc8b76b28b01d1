package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pario-ai/ccmeter/pkg/cost"
	"github.com/pario-ai/ccmeter/pkg/models"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file settings.
const (
	EnvConfigDir       = "CCMETER_CONFIG_DIR"
	EnvClaudeConfigDir = "CLAUDE_CONFIG_DIR"
	EnvTimezone        = "CCMETER_TZ"
)

// Config holds all ccmeter configuration.
type Config struct {
	DataDirs  []string      `yaml:"data_dirs"`
	DBPath    string        `yaml:"db_path"`
	Timezone  string        `yaml:"timezone"`
	CostMode  string        `yaml:"cost_mode"`
	OnError   string        `yaml:"on_error"`
	WeekStart string        `yaml:"week_start"`
	Blocks    BlocksConfig  `yaml:"blocks"`
	Pricing   PricingConfig `yaml:"pricing"`
	Budget    BudgetConfig  `yaml:"budget"`
	Archive   ArchiveConfig `yaml:"archive"`
	Log       LogConfig     `yaml:"log"`
}

// BlocksConfig controls billing block segmentation.
type BlocksConfig struct {
	InactivityThreshold time.Duration `yaml:"inactivity_threshold"`
	TokenLimit          int64         `yaml:"token_limit"`
}

// PricingConfig controls where model prices come from.
type PricingConfig struct {
	URL       string                `yaml:"url"`
	Offline   bool                  `yaml:"offline"`
	CacheTTL  time.Duration         `yaml:"cache_ttl"`
	Timeout   time.Duration         `yaml:"timeout"`
	Overrides []models.ModelPricing `yaml:"overrides"`
}

// BudgetConfig controls budget evaluation.
type BudgetConfig struct {
	Enabled  bool                  `yaml:"enabled"`
	Policies []models.BudgetPolicy `yaml:"policies"`
}

// ArchiveConfig controls the event archive.
type ArchiveConfig struct {
	RetentionDays int `yaml:"retention_days"`
}

// LogConfig controls diagnostic logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		DataDirs:  []string{"~/.claude/projects", "~/.config/claude/projects"},
		DBPath:    "ccmeter.db",
		Timezone:  "UTC",
		CostMode:  string(models.CostModeAuto),
		OnError:   string(cost.PolicySkip),
		WeekStart: "monday",
		Blocks: BlocksConfig{
			InactivityThreshold: 5 * time.Hour,
		},
		Pricing: PricingConfig{
			CacheTTL: 24 * time.Hour,
			Timeout:  10 * time.Second,
		},
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
		},
	}
}

// DefaultPath returns the per-user config file location.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "ccmeter.yaml"
	}
	return filepath.Join(dir, "ccmeter", "config.yaml")
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}

// Resolve loads path, or the default path when empty, tolerating a missing
// default file. Environment overrides are applied and the result validated.
func Resolve(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	cfg, err := Load(path)
	if err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		cfg = Default()
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides data directories and time zone from the environment.
func (c *Config) ApplyEnv() {
	for _, name := range []string{EnvConfigDir, EnvClaudeConfigDir} {
		v := strings.TrimSpace(os.Getenv(name))
		if v == "" {
			continue
		}
		var dirs []string
		for _, d := range strings.Split(v, ",") {
			if d = strings.TrimSpace(d); d != "" {
				if filepath.Base(d) != "projects" {
					d = filepath.Join(d, "projects")
				}
				dirs = append(dirs, d)
			}
		}
		if len(dirs) > 0 {
			c.DataDirs = dirs
			break
		}
	}
	if tz := strings.TrimSpace(os.Getenv(EnvTimezone)); tz != "" {
		c.Timezone = tz
	}
}

// Validate checks field values that cannot be expressed in YAML types.
func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.Mode(); err != nil {
		return err
	}
	if _, err := c.ErrorPolicy(); err != nil {
		return err
	}
	if _, err := c.FirstWeekday(); err != nil {
		return err
	}
	if c.Blocks.InactivityThreshold <= 0 {
		return fmt.Errorf("validate config: blocks.inactivity_threshold must be positive")
	}
	if c.Blocks.TokenLimit < 0 {
		return fmt.Errorf("validate config: blocks.token_limit must not be negative")
	}
	for i, p := range c.Budget.Policies {
		if p.Period != models.BudgetDaily && p.Period != models.BudgetMonthly {
			return fmt.Errorf("validate config: budget policy %d: unknown period %q", i, p.Period)
		}
		if p.MaxCost <= 0 {
			return fmt.Errorf("validate config: budget policy %d: max_cost must be positive", i)
		}
		if p.WarnPercent < 0 || p.WarnPercent > 100 {
			return fmt.Errorf("validate config: budget policy %d: warn_percent out of range", i)
		}
	}
	for i, o := range c.Pricing.Overrides {
		if o.Model == "" {
			return fmt.Errorf("validate config: pricing override %d: model is required", i)
		}
	}
	if c.Archive.RetentionDays < 0 {
		return fmt.Errorf("validate config: archive.retention_days must not be negative")
	}
	return nil
}

// Location returns the reporting time zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "UTC") {
		return time.UTC, nil
	}
	if strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("validate config: timezone: %w", err)
	}
	return loc, nil
}

// Mode returns the configured cost mode.
func (c *Config) Mode() (models.CostMode, error) {
	return models.ParseCostMode(c.CostMode)
}

// ErrorPolicy returns the configured per-event error policy.
func (c *Config) ErrorPolicy() (cost.Policy, error) {
	return cost.ParsePolicy(c.OnError)
}

// FirstWeekday returns the day weekly buckets start on.
func (c *Config) FirstWeekday() (time.Weekday, error) {
	return ParseWeekday(c.WeekStart)
}

// ParseWeekday accepts full or three-letter English day names.
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return time.Monday, nil
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}

// ExpandedDataDirs returns DataDirs with a leading ~ replaced by the home
// directory.
func (c *Config) ExpandedDataDirs() []string {
	home, _ := os.UserHomeDir()
	out := make([]string, 0, len(c.DataDirs))
	for _, d := range c.DataDirs {
		if home != "" && (d == "~" || strings.HasPrefix(d, "~/")) {
			d = filepath.Join(home, strings.TrimPrefix(d, "~"))
		}
		out = append(out, d)
	}
	return out
}
