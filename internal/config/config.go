// Package config holds all cancelbot configuration. Operator-facing triage
// rules live in a YAML file; credentials come from the environment. Both are
// resolved once at startup and passed by reference into each component, so
// nothing else reads ambient process state.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all cancelbot configuration.
type Config struct {
	// Safety gate: when true the fulfillment API is never called.
	DryRun bool `yaml:"dry_run"`

	// Staff member every triaged ticket is assigned to. Empty disables
	// assignment.
	Assignee string `yaml:"assignee"`

	// Tag sets applied per terminal state.
	Tags TagsConfig `yaml:"tags"`

	// Credentials and endpoints, environment-sourced.
	Classifier  ClassifierConfig  `yaml:"classifier"`
	Reamaze     ReamazeConfig     `yaml:"reamaze"`
	Fulfillment FulfillmentConfig `yaml:"fulfillment"`

	// Audit database path.
	DatabasePath string `yaml:"database_path"`

	// Debug logging (internal/logging categories).
	Debug   bool   `yaml:"debug"`
	LogsDir string `yaml:"logs_dir"`
}

// TagsConfig maps terminal-state categories to ticket tag sets.
type TagsConfig struct {
	Success         []string `yaml:"success"`
	Failure         []string `yaml:"failure"`
	NotCancellation []string `yaml:"not_cancellation"`
}

// ClassifierConfig configures the LLM classifier.
type ClassifierConfig struct {
	Provider string `yaml:"provider"` // anthropic, gemini
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"` // optional override, tried first
	Timeout  string `yaml:"timeout"`
}

// ReamazeConfig configures the ticketing collaborator.
type ReamazeConfig struct {
	Brand    string `yaml:"brand"`
	Email    string `yaml:"email"`
	APIToken string `yaml:"api_token"`
	// Pins the run to a single conversation slug instead of fetching the
	// next unresolved one.
	LimitToConvo string `yaml:"limit_to_convo"`
	Timeout      string `yaml:"timeout"`
}

// FulfillmentConfig configures the SP-API fulfillment client.
type FulfillmentConfig struct {
	RefreshToken    string `yaml:"refresh_token"`
	LWAAppID        string `yaml:"lwa_app_id"`
	LWAClientSecret string `yaml:"lwa_client_secret"`
	AWSAccessKey    string `yaml:"aws_access_key"`
	AWSSecretKey    string `yaml:"aws_secret_key"`
	RoleARN         string `yaml:"role_arn"` // optional; must be a role ARN, not a user ARN
	Sandbox         bool   `yaml:"sandbox"`
	Timeout         string `yaml:"timeout"`
}

// DefaultConfig returns the fail-safe defaults: dry-run on, empty tag sets,
// no assignee.
func DefaultConfig() *Config {
	return &Config{
		DryRun:   true,
		Assignee: "",
		Tags: TagsConfig{
			Success:         []string{},
			Failure:         []string{},
			NotCancellation: []string{},
		},
		Classifier: ClassifierConfig{
			Provider: "anthropic",
			Timeout:  "30s",
		},
		Reamaze: ReamazeConfig{
			Timeout: "20s",
		},
		Fulfillment: FulfillmentConfig{
			Sandbox: true,
			Timeout: "30s",
		},
		DatabasePath: "cancelbot.db",
		LogsDir:      "logs",
	}
}

// Load loads configuration from a YAML rules file. A missing file is not an
// error: the fail-safe defaults apply. Environment variables override the
// file in either case.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// Classifier credentials (first match selects the provider).
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c.Classifier.APIKey = key
		c.Classifier.Provider = "anthropic"
	} else if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Classifier.APIKey = key
		c.Classifier.Provider = "gemini"
	}
	if model := strings.TrimSpace(os.Getenv("ANTHROPIC_MODEL")); model != "" {
		c.Classifier.Model = model
	}

	// Ticketing credentials.
	if v := os.Getenv("REAMAZE_BRAND"); v != "" {
		c.Reamaze.Brand = v
	}
	if v := os.Getenv("REAMAZE_EMAIL"); v != "" {
		c.Reamaze.Email = v
	}
	if v := os.Getenv("REAMAZE_API_TOKEN"); v != "" {
		c.Reamaze.APIToken = v
	}
	if v := strings.TrimSpace(os.Getenv("LIMIT_TO_CONVO")); v != "" {
		c.Reamaze.LimitToConvo = v
	}

	// Fulfillment credential bundle.
	if v := os.Getenv("REFRESH_TOKEN"); v != "" {
		c.Fulfillment.RefreshToken = v
	}
	if v := os.Getenv("LWA_CLIENT_ID"); v != "" {
		c.Fulfillment.LWAAppID = v
	} else if v := os.Getenv("LWA_APP_ID"); v != "" {
		c.Fulfillment.LWAAppID = v
	}
	if v := os.Getenv("LWA_CLIENT_SECRET"); v != "" {
		c.Fulfillment.LWAClientSecret = v
	}
	if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
		c.Fulfillment.AWSAccessKey = v
	}
	if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
		c.Fulfillment.AWSSecretKey = v
	}
	if v := strings.TrimSpace(os.Getenv("AWS_SELLER_PARTNER_ROLE_ARN")); v != "" {
		c.Fulfillment.RoleARN = v
	}
	if v := os.Getenv("SPAPI_SANDBOX"); v != "" {
		c.Fulfillment.Sandbox = v == "1"
	}

	// Audit database path.
	if v := os.Getenv("CANCELBOT_DB"); v != "" {
		c.DatabasePath = v
	}
}

// GetClassifierTimeout returns the classifier timeout as a duration.
func (c *Config) GetClassifierTimeout() time.Duration {
	d, err := time.ParseDuration(c.Classifier.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetReamazeTimeout returns the ticketing timeout as a duration.
func (c *Config) GetReamazeTimeout() time.Duration {
	d, err := time.ParseDuration(c.Reamaze.Timeout)
	if err != nil {
		return 20 * time.Second
	}
	return d
}

// GetFulfillmentTimeout returns the fulfillment timeout as a duration.
func (c *Config) GetFulfillmentTimeout() time.Duration {
	d, err := time.ParseDuration(c.Fulfillment.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// TagsFor returns the tag set for a terminal-state category key
// (success, failure, not_cancellation). Unknown keys return nil.
func (c *Config) TagsFor(category string) []string {
	switch category {
	case "success":
		return c.Tags.Success
	case "failure":
		return c.Tags.Failure
	case "not_cancellation":
		return c.Tags.NotCancellation
	default:
		return nil
	}
}
