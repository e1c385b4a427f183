// Package config handles configuration loading and validation for
// trianglescan. The rule tables that drive the category scanners live here
// as plain data, so new indicators are a configuration change rather than a
// code change.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config holds the complete scanner configuration.
type Config struct {
	// Correlation controls the clustering of evidence into suspicion events.
	Correlation CorrelationConfig `toml:"correlation" json:"correlation" yaml:"correlation"`

	// Rules are the per-category rule tables.
	Rules RuleSet `toml:"rules" json:"rules" yaml:"rules"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`
}

// CorrelationConfig holds the windowing policy of the correlation engine.
type CorrelationConfig struct {
	// WindowSec is the maximum gap, in seconds, for chaining two evidence
	// items into the same cluster. Chaining is transitive: a cluster's total
	// span may exceed the window when intermediate evidence bridges it.
	WindowSec int `toml:"window_sec" json:"window_sec" yaml:"window_sec"`

	// MinCategories is the number of distinct categories a cluster must
	// contain before it becomes reportable.
	MinCategories int `toml:"min_categories" json:"min_categories" yaml:"min_categories"`
}

// RuleSet groups the four category rule tables.
type RuleSet struct {
	SMS         SMSRule        `toml:"sms" json:"sms" yaml:"sms"`
	Preferences PreferenceRule `toml:"preferences" json:"preferences" yaml:"preferences"`
	Network     NetworkRule    `toml:"network" json:"network" yaml:"network"`
	Location    LocationRule   `toml:"location" json:"location" yaml:"location"`
}

// SMSRule drives the SMS attachment directory scanner.
type SMSRule struct {
	// AttachmentsRoot is the messaging attachment root, relative to the
	// snapshot root. Leaf directories live two levels below it.
	AttachmentsRoot string `toml:"attachments_root" json:"attachments_root" yaml:"attachments_root"`

	// Baseline is the directory tree creation baseline. An empty leaf
	// directory is suspicious only when both of its change times are after
	// the baseline. A zero baseline treats every empty leaf as touched.
	Baseline time.Time `toml:"baseline,omitempty" json:"baseline,omitempty" yaml:"baseline,omitempty"`
}

// PreferenceRule drives the preference file scanner.
type PreferenceRule struct {
	// Files are the preference files to check, relative to the snapshot root.
	Files []string `toml:"files" json:"files" yaml:"files"`

	// Baseline is the expected-unmodified baseline for the listed files.
	// A zero baseline reports every observed change time.
	Baseline time.Time `toml:"baseline,omitempty" json:"baseline,omitempty" yaml:"baseline,omitempty"`
}

// NetworkRule drives the process data-usage scanner.
type NetworkRule struct {
	// UsageDatabase is the data-usage accounting database, relative to the
	// snapshot root.
	UsageDatabase string `toml:"usage_database" json:"usage_database" yaml:"usage_database"`

	// AnalyticsPlist is the OS analytics property list carrying the
	// netUsageBaseline dictionary, relative to the snapshot root.
	AnalyticsPlist string `toml:"analytics_plist" json:"analytics_plist" yaml:"analytics_plist"`

	// ExactProcesses match as standalone detections.
	ExactProcesses []string `toml:"exact_processes" json:"exact_processes" yaml:"exact_processes"`

	// ImplicitProcesses only contribute heuristic evidence for correlation.
	ImplicitProcesses []string `toml:"implicit_processes" json:"implicit_processes" yaml:"implicit_processes"`

	// MinBytes is the cumulative data volume an implicit process must
	// exceed before its records count as evidence. Zero counts any usage.
	MinBytes int64 `toml:"min_bytes" json:"min_bytes" yaml:"min_bytes"`
}

// LocationRule drives the location service activity scanner.
type LocationRule struct {
	// ClientsPlist is the location service client registry, relative to the
	// snapshot root.
	ClientsPlist string `toml:"clients_plist" json:"clients_plist" yaml:"clients_plist"`

	// BundleIDs are the location client identifiers considered suspicious.
	BundleIDs []string `toml:"bundle_ids" json:"bundle_ids" yaml:"bundle_ids"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is the log destination: "stdout" or "stderr".
	Output string `toml:"output" json:"output" yaml:"output"`
}

// DefaultConfig returns the built-in configuration carrying the published
// Operation Triangulation indicators.
func DefaultConfig() *Config {
	return &Config{
		Correlation: CorrelationConfig{
			WindowSec:     300, // 5 minutes
			MinCategories: 2,
		},
		Rules: RuleSet{
			SMS: SMSRule{
				AttachmentsRoot: "private/var/mobile/Library/SMS/Attachments",
			},
			Preferences: PreferenceRule{
				Files: []string{
					"private/var/mobile/Library/Preferences/com.apple.locationd.StatusBarIconManager.plist",
					"private/var/mobile/Library/Preferences/com.apple.imservice.ids.FaceTime.plist",
					"private/var/mobile/Library/Preferences/com.apple.ImageIO.plist",
				},
			},
			Network: NetworkRule{
				UsageDatabase:  "private/var/mobile/Library/Databases/DataUsage.sqlite",
				AnalyticsPlist: "private/var/mobile/Library/Preferences/com.apple.osanalytics.addaily.plist",
				ExactProcesses: []string{"BackupAgent"},
				ImplicitProcesses: []string{
					"nehelper",
					"com.apple.WebKit.WebContent",
					"powerd/com.apple.datausage.diagnostics",
					"lockdownd/com.apple.datausage.security",
				},
				MinBytes: 0,
			},
			Location: LocationRule{
				ClientsPlist: "private/var/mobile/Library/Caches/locationd/clients.plist",
				BundleIDs: []string{
					"com.apple.locationd.bundle-/System/Library/LocationBundles/IonosphereHarvest.bundle",
					"com.apple.locationd.bundle-/System/Library/LocationBundles/WRMLinkSelection.bundle",
				},
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Window returns the correlation window as a duration.
func (c *CorrelationConfig) Window() time.Duration {
	return time.Duration(c.WindowSec) * time.Second
}

// Load reads configuration from the given path, layered over the defaults.
// An empty path returns the defaults unchanged. The format is chosen by
// file extension: TOML (default), YAML, or JSON. JSON documents are
// additionally checked against the embedded configuration schema.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		cfg.ApplyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	switch filepath.Ext(path) {
	case ".json":
		if err := ValidateJSON(data); err != nil {
			return nil, fmt.Errorf("validate config: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode YAML: %w", err)
		}
	default:
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("decode TOML: %w", err)
		}
	}

	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// ApplyEnvOverrides applies TRIANGLESCAN_* environment overrides.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("TRIANGLESCAN_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("TRIANGLESCAN_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
}
