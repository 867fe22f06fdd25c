package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	differrors "github.com/hpungsan/browsediary/internal/errors"
)

// EnvPrefix is prepended to every environment variable the config reads.
const EnvPrefix = "BROWSEDIARY_"

// Config holds application configuration.
// It is built once at startup and treated as read-only afterwards.
type Config struct {
	// SourcePath is the Safari History.db to read visits from.
	SourcePath string `json:"source_path,omitempty" yaml:"source_path,omitempty"`

	// DiaryPath is the base directory of the notes vault.
	// Diary files live at {DiaryPath}/{YYYY}/{MM}/{YYYY-MM-DD}.md. Must be absolute.
	DiaryPath string `json:"diary_path,omitempty" yaml:"diary_path,omitempty"`

	// Timezone is an IANA zone name used to decide which visits belong to a day.
	// "Local" uses the system zone.
	Timezone string `json:"timezone,omitempty" yaml:"timezone,omitempty"`

	// ExcludePatterns drops visits whose URL contains any of these substrings (case-sensitive).
	ExcludePatterns []string `json:"exclude_patterns,omitempty" yaml:"exclude_patterns,omitempty"`

	// MinVisitCount drops (title, url) groups visited fewer times than this.
	MinVisitCount int `json:"min_visit_count,omitempty" yaml:"min_visit_count,omitempty"`

	// Header is the markdown heading written above each block.
	Header string `json:"header,omitempty" yaml:"header,omitempty"`

	// LineTemplate formats one record. Placeholders: {timestamp} {title} {url} {visit_count}.
	LineTemplate string `json:"line_template,omitempty" yaml:"line_template,omitempty"`

	// SourceTag identifies the collector in emitted records.
	SourceTag string `json:"source_tag,omitempty" yaml:"source_tag,omitempty"`

	LogLevel  string `json:"log_level,omitempty" yaml:"log_level,omitempty"`
	LogFormat string `json:"log_format,omitempty" yaml:"log_format,omitempty"` // text|json
	LogFile   string `json:"log_file,omitempty" yaml:"log_file,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		SourcePath:      "~/Library/Safari/History.db",
		Timezone:        "Local",
		ExcludePatterns: []string{"localhost", "127.0.0.1"},
		MinVisitCount:   1,
		Header:          "### Browsing history",
		LineTemplate:    "({timestamp}){title}, {visit_count} visits",
		SourceTag:       "safari_history",
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

// DefaultBaseDir returns $BROWSEDIARY_HOME, or ~/.browsediary when unset.
func DefaultBaseDir() (string, error) {
	if dir := os.Getenv(EnvPrefix + "HOME"); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".browsediary"), nil
}

// Load builds the configuration from defaults, the config file in baseDir
// (config.json, config.yaml or config.yml), baseDir/.env and the process
// environment, in increasing order of precedence.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.browsediary.
func Load(baseDir string) (*Config, error) {
	fileCfg, err := loadConfigFile(baseDir)
	if err != nil {
		return nil, err
	}

	dotenv, err := loadDotEnv(filepath.Join(baseDir, ".env"), os.LookupEnv)
	if err != nil {
		return nil, err
	}

	// A variable set in the real environment wins over .env, even when empty.
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}

	envCfg, err := fromEnv(lookup)
	if err != nil {
		return nil, err
	}

	cfg := Merge(Merge(DefaultConfig(), fileCfg), envCfg)
	cfg.SourcePath = expandHome(cfg.SourcePath)
	cfg.DiaryPath = expandHome(cfg.DiaryPath)
	cfg.LogFile = expandHome(cfg.LogFile)
	return cfg, nil
}

// loadConfigFile loads the first config file found in baseDir.
// Returns zero-valued config if none exists (not defaults).
func loadConfigFile(baseDir string) (*Config, error) {
	candidates := []struct {
		name      string
		unmarshal func([]byte, any) error
	}{
		{"config.json", json.Unmarshal},
		{"config.yaml", yaml.Unmarshal},
		{"config.yml", yaml.Unmarshal},
	}

	for _, c := range candidates {
		path := filepath.Join(baseDir, c.name)
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, err
		}

		cfg := &Config{}
		if err := c.unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}

		// MinVisitCount 0 means unset after unmarshal, so look for an explicit value.
		var explicit struct {
			MinVisitCount *int `json:"min_visit_count" yaml:"min_visit_count"`
		}
		if err := c.unmarshal(data, &explicit); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if explicit.MinVisitCount != nil && *explicit.MinVisitCount < 1 {
			return nil, differrors.NewInvalidRequest(fmt.Sprintf("%s: min_visit_count must be >= 1, got %d", path, *explicit.MinVisitCount))
		}
		return cfg, nil
	}

	return &Config{}, nil
}

// fromEnv reads BROWSEDIARY_* variables into a sparse config.
func fromEnv(lookup func(string) (string, bool)) (*Config, error) {
	cfg := &Config{}
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	str("SOURCE_PATH", &cfg.SourcePath)
	str("DIARY_PATH", &cfg.DiaryPath)
	str("TIMEZONE", &cfg.Timezone)
	str("HEADER", &cfg.Header)
	str("LINE_TEMPLATE", &cfg.LineTemplate)
	str("SOURCE_TAG", &cfg.SourceTag)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_FORMAT", &cfg.LogFormat)
	str("LOG_FILE", &cfg.LogFile)

	// Present but empty clears the list.
	if v, ok := lookup(EnvPrefix + "EXCLUDE_PATTERNS"); ok {
		cfg.ExcludePatterns = []string{}
		if patterns := mergeStringSlice(strings.Split(v, ","), nil); patterns != nil {
			cfg.ExcludePatterns = patterns
		}
	}
	if v, ok := lookup(EnvPrefix + "MIN_VISIT_COUNT"); ok && strings.TrimSpace(v) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil, differrors.NewInvalidRequest(fmt.Sprintf("%sMIN_VISIT_COUNT must be an integer, got %q", EnvPrefix, v))
		}
		if n < 1 {
			return nil, differrors.NewInvalidRequest(fmt.Sprintf("%sMIN_VISIT_COUNT must be >= 1, got %d", EnvPrefix, n))
		}
		cfg.MinVisitCount = n
	}

	return cfg, nil
}

// Merge combines base and overlay configs.
// Non-empty overlay scalars take precedence. A non-nil overlay ExcludePatterns
// replaces the base list; an empty one clears it.
func Merge(base, overlay *Config) *Config {
	pick := func(o, b string) string {
		if o != "" {
			return o
		}
		return b
	}

	result := &Config{
		SourcePath:   pick(overlay.SourcePath, base.SourcePath),
		DiaryPath:    pick(overlay.DiaryPath, base.DiaryPath),
		Timezone:     pick(overlay.Timezone, base.Timezone),
		Header:       pick(overlay.Header, base.Header),
		LineTemplate: pick(overlay.LineTemplate, base.LineTemplate),
		SourceTag:    pick(overlay.SourceTag, base.SourceTag),
		LogLevel:     pick(overlay.LogLevel, base.LogLevel),
		LogFormat:    pick(overlay.LogFormat, base.LogFormat),
		LogFile:      pick(overlay.LogFile, base.LogFile),
	}

	result.MinVisitCount = overlay.MinVisitCount
	if result.MinVisitCount == 0 {
		result.MinVisitCount = base.MinVisitCount
	}

	result.ExcludePatterns = mergeStringSlice(base.ExcludePatterns, nil)
	if overlay.ExcludePatterns != nil {
		result.ExcludePatterns = mergeStringSlice(overlay.ExcludePatterns, nil)
	}

	return result
}

// Validate checks that the configuration can drive a pipeline run.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DiaryPath) == "" {
		return differrors.NewInvalidRequest("diary_path is required (set " + EnvPrefix + "DIARY_PATH or diary_path in config)")
	}
	if !filepath.IsAbs(c.DiaryPath) {
		return differrors.NewInvalidRequest(fmt.Sprintf("diary_path must be absolute, got %q", c.DiaryPath))
	}
	return c.ValidateSource()
}

// ValidateSource checks everything collection needs. Unlike Validate it
// does not require a diary path.
func (c *Config) ValidateSource() error {
	if strings.TrimSpace(c.SourcePath) == "" {
		return differrors.NewInvalidRequest("source_path is required")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.MinVisitCount < 1 {
		return differrors.NewInvalidRequest(fmt.Sprintf("min_visit_count must be >= 1, got %d", c.MinVisitCount))
	}
	if strings.TrimSpace(c.SourceTag) == "" {
		return differrors.NewInvalidRequest("source_tag must not be empty")
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return differrors.NewInvalidRequest(fmt.Sprintf("log_format must be text or json, got %q", c.LogFormat))
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, differrors.NewInvalidRequest(fmt.Sprintf("unknown timezone %q", c.Timezone))
	}
	return loc, nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, differrors.NewInvalidRequest(fmt.Sprintf("unknown log_level %q", c.LogLevel))
	}
	return level, nil
}

// Patterns returns ExcludePatterns without blank entries.
func (c *Config) Patterns() []string {
	return mergeStringSlice(c.ExcludePatterns, nil)
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(homeDir, strings.TrimPrefix(path, "~"))
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, list := range [][]string{a, b} {
		for _, s := range list {
			s = strings.TrimSpace(s)
			if s != "" && !seen[s] {
				seen[s] = true
				result = append(result, s)
			}
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
