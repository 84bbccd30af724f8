// Package config loads and saves the persistent newsmap configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v2"

	"github.com/infblueocean/newsmap/internal/analysis"
	"github.com/infblueocean/newsmap/internal/feed"
	"github.com/infblueocean/newsmap/internal/fetch"
)

// DefaultListenAddr is where nm serve listens by default.
const DefaultListenAddr = "127.0.0.1:8080"

// Config is the persistent application configuration. It is read from
// JSON or, when the file ends in .yaml or .yml, YAML.
type Config struct {
	Sources []feed.Source `json:"sources" yaml:"sources"`

	// ProxyURL prefixes every feed request; "" fetches directly.
	ProxyURL    string   `json:"proxy_url" yaml:"proxy_url"`
	FeedTimeout Duration `json:"feed_timeout" yaml:"feed_timeout"`

	// Scraping
	ScrapeArticles    bool     `json:"scrape_articles" yaml:"scrape_articles"`
	ScrapeTimeout     Duration `json:"scrape_timeout" yaml:"scrape_timeout"`
	ScrapeWorkers     int      `json:"scrape_workers" yaml:"scrape_workers"`
	ScrapeRatePerHost float64  `json:"scrape_rate_per_host" yaml:"scrape_rate_per_host"` // requests/sec, 0 = unlimited

	Concurrency     int      `json:"concurrency" yaml:"concurrency"`
	RefreshInterval Duration `json:"refresh_interval" yaml:"refresh_interval"`

	// RefreshSchedule is a standard 5-field cron expression. When set it
	// replaces RefreshInterval.
	RefreshSchedule string `json:"refresh_schedule,omitempty" yaml:"refresh_schedule,omitempty"`

	// PlaceholderImageURL is a fmt template with one %s; "" disables placeholders.
	PlaceholderImageURL string `json:"placeholder_image_url" yaml:"placeholder_image_url"`

	Analysis AnalysisConfig `json:"analysis" yaml:"analysis"`

	DBPath     string `json:"db_path" yaml:"db_path"`
	EventLog   string `json:"event_log" yaml:"event_log"`     // JSONL event file; "" disables
	ListenAddr string `json:"listen_addr" yaml:"listen_addr"` // nm serve
}

// AnalysisConfig holds classifier settings
type AnalysisConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	// BaseURL of an OpenAI-compatible API; "" uses api.openai.com.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Model   string `json:"model,omitempty" yaml:"model,omitempty"`
	APIKey  string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Limit   int    `json:"limit" yaml:"limit"` // articles per refresh
}

// Duration is a time.Duration stored as a string such as "30s". Bare
// numbers are read as seconds.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var secs float64
		if err2 := json.Unmarshal(b, &secs); err2 != nil {
			return fmt.Errorf("duration: %w", err)
		}
		*d = Duration(secs * float64(time.Second))
		return nil
	}
	return d.parse(s)
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var secs float64
	if err := unmarshal(&secs); err == nil {
		*d = Duration(secs * float64(time.Second))
		return nil
	}
	var s string
	if err := unmarshal(&s); err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	return d.parse(s)
}

func (d *Duration) parse(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Sources:             fetch.DefaultSources(),
		ProxyURL:            fetch.DefaultProxyURL,
		FeedTimeout:         Duration(30 * time.Second),
		ScrapeArticles:      true,
		ScrapeTimeout:       Duration(10 * time.Second),
		ScrapeWorkers:       1,
		ScrapeRatePerHost:   0,
		Concurrency:         1,
		RefreshInterval:     Duration(15 * time.Minute),
		PlaceholderImageURL: feed.DefaultPlaceholder,
		Analysis: AnalysisConfig{
			Enabled: false,
			Model:   analysis.DefaultModel,
			Limit:   analysis.DefaultLimit,
		},
		DBPath:     filepath.Join(Dir(), "newsmap.db"),
		EventLog:   filepath.Join(Dir(), "events.jsonl"),
		ListenAddr: DefaultListenAddr,
	}
}

// Dir returns the configuration directory.
func Dir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".newsmap")
}

// ConfigPath returns the path to the config file: config.yaml when it
// exists, otherwise config.json.
func ConfigPath() string {
	yml := filepath.Join(Dir(), "config.yaml")
	if _, err := os.Stat(yml); err == nil {
		return yml
	}
	return filepath.Join(Dir(), "config.json")
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Load reads config from the default path, or returns defaults
func Load() (*Config, error) {
	return LoadFrom(ConfigPath())
}

// LoadFrom reads config from path. A missing file yields defaults. Keys
// absent from the file keep their default values. Environment variables
// are applied last.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if isYAML(path) {
			err = yaml.Unmarshal(data, cfg)
		} else {
			err = json.Unmarshal(data, cfg)
		}
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	cfg.AutoPopulateFromEnv()
	cfg.normalize()
	if cfg.RefreshSchedule != "" {
		if _, err := cron.ParseStandard(cfg.RefreshSchedule); err != nil {
			return nil, fmt.Errorf("refresh_schedule %q: %w", cfg.RefreshSchedule, err)
		}
	}
	return cfg, nil
}

// Save writes config to the default path
func (c *Config) Save() error {
	return c.SaveTo(ConfigPath())
}

// SaveTo writes config to path, creating its directory.
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	var data []byte
	var err error
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600) // Restrictive permissions for API keys
}

// AutoPopulateFromEnv overrides settings from environment variables
func (c *Config) AutoPopulateFromEnv() {
	if v, ok := os.LookupEnv("NEWSMAP_PROXY_URL"); ok {
		c.ProxyURL = v
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.Analysis.APIKey = key
		c.Analysis.Enabled = true
	}
	if model := os.Getenv("OPENAI_MODEL"); model != "" {
		c.Analysis.Model = model
	}
	if base := os.Getenv("OPENAI_BASE_URL"); base != "" {
		c.Analysis.BaseURL = base
	}
	if db := os.Getenv("NEWSMAP_DB"); db != "" {
		c.DBPath = db
	}
}

// normalize replaces unusable values with defaults.
func (c *Config) normalize() {
	d := DefaultConfig()
	if len(c.Sources) == 0 {
		c.Sources = d.Sources
	}
	if c.FeedTimeout <= 0 {
		c.FeedTimeout = d.FeedTimeout
	}
	if c.ScrapeTimeout <= 0 {
		c.ScrapeTimeout = d.ScrapeTimeout
	}
	if c.ScrapeWorkers < 1 {
		c.ScrapeWorkers = 1
	}
	if c.ScrapeRatePerHost < 0 {
		c.ScrapeRatePerHost = 0
	}
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = d.RefreshInterval
	}
	c.RefreshSchedule = strings.TrimSpace(c.RefreshSchedule)
	if c.ListenAddr == "" {
		c.ListenAddr = d.ListenAddr
	}
	if c.Analysis.Limit <= 0 {
		c.Analysis.Limit = analysis.DefaultLimit
	}
}

// AnalysisReady reports whether a classifier can be built.
func (c *Config) AnalysisReady() bool {
	return c.Analysis.Enabled && c.Analysis.APIKey != ""
}
