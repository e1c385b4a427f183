package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks the configuration for errors. All problems are collected
// and reported together.
func (c *Config) Validate() error {
	var problems []string

	if c.Correlation.WindowSec <= 0 {
		problems = append(problems, "correlation.window_sec must be positive")
	}
	if c.Correlation.MinCategories < 2 {
		// Below two categories the engine would report single-category
		// noise, defeating the whole point of correlation.
		problems = append(problems, "correlation.min_categories must be at least 2")
	}
	if c.Rules.SMS.AttachmentsRoot == "" {
		problems = append(problems, "rules.sms.attachments_root must be set")
	}
	if len(c.Rules.Preferences.Files) == 0 {
		problems = append(problems, "rules.preferences.files must not be empty")
	}
	if c.Rules.Network.UsageDatabase == "" && c.Rules.Network.AnalyticsPlist == "" {
		problems = append(problems, "rules.network needs usage_database or analytics_plist")
	}
	if c.Rules.Network.MinBytes < 0 {
		problems = append(problems, "rules.network.min_bytes must not be negative")
	}
	if c.Rules.Location.ClientsPlist == "" {
		problems = append(problems, "rules.location.clients_plist must be set")
	}
	for _, p := range absolutePaths(c) {
		problems = append(problems, fmt.Sprintf("rule path %q must be relative to the snapshot root", p))
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("logging.level %q is not a known level", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q is not a known format", c.Logging.Format))
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.New("invalid configuration: " + strings.Join(problems, "; "))
}

// absolutePaths returns every rule path that is not snapshot-relative.
func absolutePaths(c *Config) []string {
	var bad []string
	check := func(p string) {
		if strings.HasPrefix(p, "/") {
			bad = append(bad, p)
		}
	}
	check(c.Rules.SMS.AttachmentsRoot)
	for _, f := range c.Rules.Preferences.Files {
		check(f)
	}
	check(c.Rules.Network.UsageDatabase)
	check(c.Rules.Network.AnalyticsPlist)
	check(c.Rules.Location.ClientsPlist)
	return bad
}
