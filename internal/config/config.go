// Copyright 2026 The Nyx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config provides configuration management for the Nyx router.
// It loads a YAML file, applies environment overrides and fills defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPort           = 3000
	DefaultTier1Threshold = 0.8
	DefaultTimeout        = 30 * time.Second
	DefaultBudgetLimit    = 5.00
	DefaultBudgetFile     = "budget.json"
	DefaultReasoningModel = "gemini-1.5-pro"
	DefaultSearchBaseURL  = "https://api.perplexity.ai"
	DefaultSearchModel    = "llama-3-sonar-small-32k-online"
	DefaultRatePer1K      = 0.002
	DefaultRateLimit      = 100
	DefaultRateWindow     = 15 * time.Minute
	DefaultMaxBodyBytes   = 1 << 20
)

// Config represents the application's configuration, loaded from a YAML file.
type Config struct {
	// Host is the network host/interface on which the API server will bind.
	// Default is empty ("") to bind all interfaces.
	Host string `yaml:"host" json:"host"`
	// Port is the network port on which the API server will listen.
	Port int `yaml:"port" json:"port"`

	// Debug enables or disables debug-level logging.
	Debug bool `yaml:"debug" json:"debug"`
	// LoggingToFile writes logs to rotating files under LogDir instead of stdout.
	LoggingToFile bool   `yaml:"logging-to-file" json:"logging-to-file"`
	LogDir        string `yaml:"log-dir" json:"log-dir"`

	// StateDir holds the budget counter; defaults to ~/.nyx.
	StateDir string `yaml:"state-dir" json:"state-dir"`
	// ReadOnly disables every write to the state directory.
	ReadOnly bool `yaml:"read-only" json:"read-only"`

	Router    RouterConfig    `yaml:"router" json:"router"`
	Budget    BudgetConfig    `yaml:"budget" json:"budget"`
	Reasoning ReasoningConfig `yaml:"reasoning" json:"reasoning"`
	Search    SearchConfig    `yaml:"search" json:"search"`
	Skills    SkillsConfig    `yaml:"skills" json:"skills"`
	Hooks     HooksConfig     `yaml:"hooks" json:"hooks"`
	API       APIConfig       `yaml:"api" json:"api"`
}

// RouterConfig tunes tier selection.
type RouterConfig struct {
	Tier1Threshold float64       `yaml:"tier1-threshold" json:"tier1-threshold"`
	Timeout        time.Duration `yaml:"timeout" json:"timeout"`
	// WebSearchTriggers are added to the built-in trigger phrases.
	WebSearchTriggers []string `yaml:"web-search-triggers" json:"web-search-triggers"`
	// IntentSkills overrides the intent to skill table; an empty value unmaps an intent.
	IntentSkills map[string]string `yaml:"intent-skills" json:"intent-skills"`
	// IntentPatterns adds classifier patterns per intent.
	IntentPatterns map[string][]string `yaml:"intent-patterns" json:"intent-patterns"`
}

// BudgetConfig controls the search spend cap.
type BudgetConfig struct {
	Limit           float64 `yaml:"limit" json:"limit"`
	SafetyMargin    float64 `yaml:"safety-margin" json:"safety-margin"`
	DefaultEstimate float64 `yaml:"default-estimate" json:"default-estimate"`
	// File is resolved against StateDir when relative.
	File string `yaml:"file" json:"file"`
}

// ReasoningConfig configures the Gemini client.
type ReasoningConfig struct {
	APIKey  string `yaml:"api-key" json:"-"`
	Model   string `yaml:"model" json:"model"`
	BaseURL string `yaml:"base-url" json:"base-url"`
}

// SearchConfig configures the Perplexity client.
type SearchConfig struct {
	APIKey          string  `yaml:"api-key" json:"-"`
	Model           string  `yaml:"model" json:"model"`
	BaseURL         string  `yaml:"base-url" json:"base-url"`
	InputRatePer1K  float64 `yaml:"input-rate-per-1k" json:"input-rate-per-1k"`
	OutputRatePer1K float64 `yaml:"output-rate-per-1k" json:"output-rate-per-1k"`
}

// SkillsConfig locates SKILL.md manifests.
type SkillsConfig struct {
	Dir   string `yaml:"dir" json:"dir"`
	Watch bool   `yaml:"watch" json:"watch"`
}

// HooksConfig locates hook definitions.
type HooksConfig struct {
	Dir   string `yaml:"dir" json:"dir"`
	Watch bool   `yaml:"watch" json:"watch"`
}

// APIConfig tunes the HTTP front end.
type APIConfig struct {
	RateLimit    int           `yaml:"rate-limit" json:"rate-limit"`
	RateWindow   time.Duration `yaml:"rate-window" json:"rate-window"`
	MaxBodyBytes int64         `yaml:"max-body-bytes" json:"max-body-bytes"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.Sanitize()
	return cfg
}

// LoadConfig reads a YAML configuration file from the given path,
// applies environment overrides and returns the resulting Config.
func LoadConfig(configFile string) (*Config, error) {
	return LoadConfigOptional(configFile, false)
}

// LoadConfigOptional reads YAML from configFile.
// If optional is true and the file is missing or empty, defaults plus
// environment overrides are returned instead of an error.
func LoadConfigOptional(configFile string, optional bool) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(configFile)
	switch {
	case err == nil:
	case optional && (os.IsNotExist(err) || errors.Is(err, syscall.EISDIR)):
		log.Debugf("config file %s not found, using defaults", configFile)
		data = nil
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if len(strings.TrimSpace(string(data))) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.Sanitize()
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables. lookup is usually
// os.LookupEnv.
func (cfg *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("GEMINI_API_KEY"); ok && v != "" {
		cfg.Reasoning.APIKey = v
	}
	if v, ok := lookup("PERPLEXITY_API_KEY"); ok && v != "" {
		cfg.Search.APIKey = v
	}
	if v, ok := lookup("PERPLEXITY_BUDGET_LIMIT"); ok && v != "" {
		limit, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("invalid PERPLEXITY_BUDGET_LIMIT %q: %w", v, err)
		}
		cfg.Budget.Limit = limit
	}
	if v, ok := lookup("NYX_STATE_DIR"); ok && v != "" {
		cfg.StateDir = v
	}
	if v, ok := lookup("NYX_READONLY"); ok && v == "1" {
		cfg.ReadOnly = true
	}
	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Port = port
	}
	if v, ok := lookup("HOST"); ok && v != "" {
		cfg.Host = v
	}
	return nil
}

// Sanitize fills defaults for unset or out-of-range values.
func (cfg *Config) Sanitize() {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		cfg.Port = DefaultPort
	}
	if cfg.StateDir == "" {
		cfg.StateDir = "~/.nyx"
	}

	if cfg.Router.Tier1Threshold <= 0 || cfg.Router.Tier1Threshold > 1 {
		cfg.Router.Tier1Threshold = DefaultTier1Threshold
	}
	if cfg.Router.Timeout <= 0 {
		cfg.Router.Timeout = DefaultTimeout
	}
	cfg.Router.WebSearchTriggers = normalizePhrases(cfg.Router.WebSearchTriggers)

	if cfg.Budget.Limit <= 0 {
		cfg.Budget.Limit = DefaultBudgetLimit
	}
	if cfg.Budget.File == "" {
		cfg.Budget.File = DefaultBudgetFile
	}

	if cfg.Reasoning.Model == "" {
		cfg.Reasoning.Model = DefaultReasoningModel
	}

	if cfg.Search.Model == "" {
		cfg.Search.Model = DefaultSearchModel
	}
	if cfg.Search.BaseURL == "" {
		cfg.Search.BaseURL = DefaultSearchBaseURL
	}
	cfg.Search.BaseURL = strings.TrimRight(cfg.Search.BaseURL, "/")
	if cfg.Search.InputRatePer1K <= 0 {
		cfg.Search.InputRatePer1K = DefaultRatePer1K
	}
	if cfg.Search.OutputRatePer1K <= 0 {
		cfg.Search.OutputRatePer1K = DefaultRatePer1K
	}

	if cfg.API.RateLimit <= 0 {
		cfg.API.RateLimit = DefaultRateLimit
	}
	if cfg.API.RateWindow <= 0 {
		cfg.API.RateWindow = DefaultRateWindow
	}
	if cfg.API.MaxBodyBytes <= 0 {
		cfg.API.MaxBodyBytes = DefaultMaxBodyBytes
	}
}

// normalizePhrases lowercases, trims and de-duplicates phrases, dropping empties.
func normalizePhrases(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, p := range in {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
