// Package config loads the nichicrawl configuration from defaults, YAML
// files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ProjectConfigNames are the per-directory config file names, in lookup order.
var ProjectConfigNames = []string{".nichicrawl.yaml", ".nichicrawl.yml"}

// Config represents the complete nichicrawl configuration.
type Config struct {
	Version  int            `yaml:"version" json:"version"`
	Remote   RemoteConfig   `yaml:"remote" json:"remote"`
	Discover DiscoverConfig `yaml:"discover" json:"discover"`
	Harvest  HarvestConfig  `yaml:"harvest" json:"harvest"`
	Catalog  CatalogConfig  `yaml:"catalog" json:"catalog"`
	Search   SearchConfig   `yaml:"search" json:"search"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
}

// RemoteConfig configures access to the archive.
type RemoteConfig struct {
	CardURL      string        `yaml:"card_url" json:"card_url"`
	ImageBaseURL string        `yaml:"image_base_url" json:"image_base_url"`
	UserAgent    string        `yaml:"user_agent" json:"user_agent"`
	Timeout      time.Duration `yaml:"timeout" json:"timeout"`
	// Retries is the number of extra attempts for timeouts and connection
	// failures. Zero keeps single-attempt requests.
	Retries    int           `yaml:"retries" json:"retries"`
	RetryDelay time.Duration `yaml:"retry_delay" json:"retry_delay"`
}

// DiscoverConfig configures brute-force discovery.
type DiscoverConfig struct {
	Collections []int `yaml:"collections" json:"collections"`
	// SubRange and SeqRange are inclusive [start, end] pairs.
	SubRange  []int `yaml:"sub_range" json:"sub_range"`
	SeqRange  []int `yaml:"seq_range" json:"seq_range"`
	SubMargin int   `yaml:"sub_margin" json:"sub_margin"`
	SeqMargin int   `yaml:"seq_margin" json:"seq_margin"`
	// MaxMissStreak of zero or less disables pruning. Use -1 in YAML, since
	// a zero value does not override the default.
	MaxMissStreak int           `yaml:"max_miss_streak" json:"max_miss_streak"`
	MaxFound      int           `yaml:"max_found" json:"max_found"`
	MaxCandidates int           `yaml:"max_candidates" json:"max_candidates"`
	Delay         time.Duration `yaml:"delay" json:"delay"`
	Out           string        `yaml:"out" json:"out"`
	RangeLog      string        `yaml:"range_log" json:"range_log"`
	SkipCSV       []string      `yaml:"skip_csv" json:"skip_csv"`
	// SaveEvery checkpoints the range memory every N hits; zero saves only at the end.
	SaveEvery int `yaml:"save_every" json:"save_every"`
}

// HarvestConfig configures the concurrent harvester.
type HarvestConfig struct {
	Workers     int           `yaml:"workers" json:"workers"`
	Delay       time.Duration `yaml:"delay" json:"delay"`
	Out         string        `yaml:"out" json:"out"`
	DownloadDir string        `yaml:"download_dir" json:"download_dir"`
	CacheSize   int           `yaml:"cache_size" json:"cache_size"`
}

// CatalogConfig configures the SQLite mirror. An empty path disables it.
type CatalogConfig struct {
	Path string `yaml:"path" json:"path"`
}

// SearchConfig configures local full-text search.
type SearchConfig struct {
	IndexPath string `yaml:"index_path" json:"index_path"`
	Limit     int    `yaml:"limit" json:"limit"`
}

// LoggingConfig configures file logging.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	Dir       string `yaml:"dir" json:"dir"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Remote: RemoteConfig{
			CardURL:      "https://www.nichibun.ac.jp/cgi-bin/YoukaiGazou/card.cgi",
			ImageBaseURL: "https://www.nichibun.ac.jp/YoukaiGazou/image/",
			UserAgent:    "Mozilla/5.0 (compatible; nichicrawl/1.0)",
			Timeout:      15 * time.Second,
			Retries:      0,
			RetryDelay:   time.Second,
		},
		Discover: DiscoverConfig{
			Collections:   []int{426},
			SubRange:      []int{1, 40},
			SeqRange:      []int{0, 20},
			SubMargin:     2,
			SeqMargin:     1,
			MaxMissStreak: 1,
			Delay:         300 * time.Millisecond,
			Out:           filepath.Join("data", "outputs", "nichibun_cards.csv"),
			RangeLog:      filepath.Join("data", "derived", "discovered_ranges.json"),
		},
		Harvest: HarvestConfig{
			Workers:   2,
			Delay:     300 * time.Millisecond,
			Out:       filepath.Join("data", "nichibun_card_details.csv"),
			CacheSize: 4096,
		},
		Search: SearchConfig{
			IndexPath: filepath.Join("data", "derived", "fulltext.bleve"),
			Limit:     10,
		},
		Logging: LoggingConfig{
			Level:     "warn",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/nichicrawl/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/nichicrawl/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "nichicrawl", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "nichicrawl", "config.yaml")
	}
	return filepath.Join(home, ".config", "nichicrawl", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// loadUserConfig loads the user/global configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist.
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}

	var parsed Config
	if err := parseYAMLFile(configPath, &parsed); err != nil {
		return nil, err
	}
	return &parsed, nil
}

// Load loads configuration for the working directory dir.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/nichicrawl/config.yaml)
//  3. Project config (explicitPath, or .nichicrawl.yaml in dir)
//  4. Environment variables (NICHICRAWL_*)
//
// Command flags are applied by the caller afterwards.
func Load(dir, explicitPath string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if explicitPath != "" {
		if err := cfg.loadYAML(explicitPath); err != nil {
			return nil, err
		}
	} else if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadFromFile attempts to load configuration from .nichicrawl.yaml or .nichicrawl.yml.
func (c *Config) loadFromFile(dir string) error {
	for _, name := range ProjectConfigNames {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			return c.loadYAML(path)
		}
	}
	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	var parsed Config
	if err := parseYAMLFile(path, &parsed); err != nil {
		return err
	}
	c.mergeWith(&parsed)
	return nil
}

func parseYAMLFile(path string, out *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	// Remote
	mergeString(&c.Remote.CardURL, other.Remote.CardURL)
	mergeString(&c.Remote.ImageBaseURL, other.Remote.ImageBaseURL)
	mergeString(&c.Remote.UserAgent, other.Remote.UserAgent)
	mergeDuration(&c.Remote.Timeout, other.Remote.Timeout)
	mergeInt(&c.Remote.Retries, other.Remote.Retries)
	mergeDuration(&c.Remote.RetryDelay, other.Remote.RetryDelay)

	// Discover
	if len(other.Discover.Collections) > 0 {
		c.Discover.Collections = other.Discover.Collections
	}
	if len(other.Discover.SubRange) > 0 {
		c.Discover.SubRange = other.Discover.SubRange
	}
	if len(other.Discover.SeqRange) > 0 {
		c.Discover.SeqRange = other.Discover.SeqRange
	}
	mergeInt(&c.Discover.SubMargin, other.Discover.SubMargin)
	mergeInt(&c.Discover.SeqMargin, other.Discover.SeqMargin)
	mergeInt(&c.Discover.MaxMissStreak, other.Discover.MaxMissStreak)
	mergeInt(&c.Discover.MaxFound, other.Discover.MaxFound)
	mergeInt(&c.Discover.MaxCandidates, other.Discover.MaxCandidates)
	mergeDuration(&c.Discover.Delay, other.Discover.Delay)
	mergeString(&c.Discover.Out, other.Discover.Out)
	mergeString(&c.Discover.RangeLog, other.Discover.RangeLog)
	if len(other.Discover.SkipCSV) > 0 {
		c.Discover.SkipCSV = append(c.Discover.SkipCSV, other.Discover.SkipCSV...)
	}
	mergeInt(&c.Discover.SaveEvery, other.Discover.SaveEvery)

	// Harvest
	mergeInt(&c.Harvest.Workers, other.Harvest.Workers)
	mergeDuration(&c.Harvest.Delay, other.Harvest.Delay)
	mergeString(&c.Harvest.Out, other.Harvest.Out)
	mergeString(&c.Harvest.DownloadDir, other.Harvest.DownloadDir)
	mergeInt(&c.Harvest.CacheSize, other.Harvest.CacheSize)

	// Catalog and search
	mergeString(&c.Catalog.Path, other.Catalog.Path)
	mergeString(&c.Search.IndexPath, other.Search.IndexPath)
	mergeInt(&c.Search.Limit, other.Search.Limit)

	// Logging
	mergeString(&c.Logging.Level, other.Logging.Level)
	mergeString(&c.Logging.Dir, other.Logging.Dir)
	mergeInt(&c.Logging.MaxSizeMB, other.Logging.MaxSizeMB)
	mergeInt(&c.Logging.MaxFiles, other.Logging.MaxFiles)
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func mergeInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func mergeDuration(dst *time.Duration, v time.Duration) {
	if v != 0 {
		*dst = v
	}
}

// applyEnvOverrides applies NICHICRAWL_* environment variable overrides.
// Malformed numeric values are rejected rather than silently ignored.
func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("NICHICRAWL_CARD_URL"); v != "" {
		c.Remote.CardURL = v
	}
	if v := os.Getenv("NICHICRAWL_IMAGE_BASE_URL"); v != "" {
		c.Remote.ImageBaseURL = v
	}
	if v := os.Getenv("NICHICRAWL_USER_AGENT"); v != "" {
		c.Remote.UserAgent = v
	}
	if v := os.Getenv("NICHICRAWL_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("NICHICRAWL_TIMEOUT: %w", err)
		}
		c.Remote.Timeout = d
	}
	if v := os.Getenv("NICHICRAWL_RETRIES"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("NICHICRAWL_RETRIES: %w", err)
		}
		c.Remote.Retries = n
	}
	if v := os.Getenv("NICHICRAWL_WORKERS"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("NICHICRAWL_WORKERS: %w", err)
		}
		c.Harvest.Workers = n
	}
	if v := os.Getenv("NICHICRAWL_CATALOG"); v != "" {
		c.Catalog.Path = v
	}
	if v := os.Getenv("NICHICRAWL_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	return nil
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Remote.Timeout <= 0 {
		return fmt.Errorf("remote.timeout must be positive, got %s", c.Remote.Timeout)
	}
	if c.Remote.Retries < 0 {
		return fmt.Errorf("remote.retries must be non-negative, got %d", c.Remote.Retries)
	}

	for _, col := range c.Discover.Collections {
		if col < 0 || col > 999 {
			return fmt.Errorf("discover.collections entries must be 0-999, got %d", col)
		}
	}
	if err := validatePair("discover.sub_range", c.Discover.SubRange); err != nil {
		return err
	}
	if err := validatePair("discover.seq_range", c.Discover.SeqRange); err != nil {
		return err
	}
	if c.Discover.SubMargin < 0 || c.Discover.SeqMargin < 0 {
		return fmt.Errorf("discover margins must be non-negative")
	}
	if c.Discover.MaxFound < 0 {
		return fmt.Errorf("discover.max_found must be non-negative, got %d", c.Discover.MaxFound)
	}
	if c.Discover.MaxCandidates < 0 {
		return fmt.Errorf("discover.max_candidates must be non-negative, got %d", c.Discover.MaxCandidates)
	}
	if c.Discover.Delay < 0 || c.Harvest.Delay < 0 {
		return fmt.Errorf("delays must be non-negative")
	}
	if c.Discover.SaveEvery < 0 {
		return fmt.Errorf("discover.save_every must be non-negative, got %d", c.Discover.SaveEvery)
	}

	if c.Harvest.Workers < 1 {
		return fmt.Errorf("harvest.workers must be at least 1, got %d", c.Harvest.Workers)
	}
	if c.Search.Limit < 0 {
		return fmt.Errorf("search.limit must be non-negative, got %d", c.Search.Limit)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}
	return nil
}

func validatePair(name string, pair []int) error {
	if len(pair) != 2 {
		return fmt.Errorf("%s must have exactly two values, got %d", name, len(pair))
	}
	for _, v := range pair {
		if v < 0 || v > 9999 {
			return fmt.Errorf("%s values must be 0-9999, got %d", name, v)
		}
	}
	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// LoadUserConfig loads the user configuration file.
// Returns nil config and nil error if the file doesn't exist.
func LoadUserConfig() (*Config, error) {
	return loadUserConfig()
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
