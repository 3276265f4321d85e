package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoadMissingFileUsesFailSafeDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.DryRun {
		t.Error("missing rules file must default to dry_run=true")
	}
	if cfg.Assignee != "" {
		t.Errorf("Assignee = %q, want empty", cfg.Assignee)
	}
	if len(cfg.Tags.Success) != 0 || len(cfg.Tags.Failure) != 0 || len(cfg.Tags.NotCancellation) != 0 {
		t.Errorf("tag sets should default empty, got %+v", cfg.Tags)
	}
	if cfg.Classifier.Provider != "anthropic" {
		t.Errorf("Provider = %q", cfg.Classifier.Provider)
	}
	if !cfg.Fulfillment.Sandbox {
		t.Error("fulfillment must default to sandbox")
	}
}

func TestLoadRulesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	rules := `
dry_run: false
assignee: "Sam"
tags:
  success: ["auto-cancelled", "bot"]
  failure: ["needs-human"]
  not_cancellation: ["not-cancel"]
database_path: "custom.db"
`
	if err := os.WriteFile(path, []byte(rules), 0644); err != nil {
		t.Fatalf("write rules: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DryRun {
		t.Error("dry_run should be false")
	}
	if cfg.Assignee != "Sam" {
		t.Errorf("Assignee = %q", cfg.Assignee)
	}
	if diff := cmp.Diff([]string{"auto-cancelled", "bot"}, cfg.Tags.Success); diff != "" {
		t.Errorf("Tags.Success mismatch (-want +got):\n%s", diff)
	}
	if cfg.DatabasePath != "custom.db" {
		t.Errorf("DatabasePath = %q", cfg.DatabasePath)
	}
	// Unset keys keep their defaults.
	if cfg.Classifier.Timeout != "30s" {
		t.Errorf("Classifier.Timeout = %q", cfg.Classifier.Timeout)
	}
}

func TestLoadMalformedRulesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte("dry_run: [not a bool"), 0644); err != nil {
		t.Fatalf("write rules: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("malformed YAML should be an error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")
	t.Setenv("ANTHROPIC_MODEL", "claude-sonnet-4-20250514")
	t.Setenv("REAMAZE_BRAND", "acme")
	t.Setenv("REAMAZE_EMAIL", "ops@example.com")
	t.Setenv("REAMAZE_API_TOKEN", "tok")
	t.Setenv("REFRESH_TOKEN", "rt")
	t.Setenv("LWA_CLIENT_ID", "app")
	t.Setenv("SPAPI_SANDBOX", "0")
	t.Setenv("CANCELBOT_DB", "/tmp/override.db")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Classifier.Provider != "anthropic" || cfg.Classifier.APIKey != "sk-ant" {
		t.Errorf("classifier = %+v", cfg.Classifier)
	}
	if cfg.Classifier.Model != "claude-sonnet-4-20250514" {
		t.Errorf("Model = %q", cfg.Classifier.Model)
	}
	if cfg.Reamaze.Brand != "acme" || cfg.Reamaze.Email != "ops@example.com" {
		t.Errorf("reamaze = %+v", cfg.Reamaze)
	}
	if cfg.Fulfillment.RefreshToken != "rt" || cfg.Fulfillment.LWAAppID != "app" {
		t.Errorf("fulfillment = %+v", cfg.Fulfillment)
	}
	if cfg.Fulfillment.Sandbox {
		t.Error("SPAPI_SANDBOX=0 should disable sandbox")
	}
	if cfg.DatabasePath != "/tmp/override.db" {
		t.Errorf("DatabasePath = %q", cfg.DatabasePath)
	}
}

func TestGeminiKeySelectsProvider(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "g-key")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Classifier.Provider != "gemini" || cfg.Classifier.APIKey != "g-key" {
		t.Errorf("classifier = %+v", cfg.Classifier)
	}
}

func TestTimeoutAccessors(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.GetClassifierTimeout(); got != 30*time.Second {
		t.Errorf("classifier timeout = %v", got)
	}
	if got := cfg.GetReamazeTimeout(); got != 20*time.Second {
		t.Errorf("reamaze timeout = %v", got)
	}

	cfg.Fulfillment.Timeout = "garbage"
	if got := cfg.GetFulfillmentTimeout(); got != 30*time.Second {
		t.Errorf("invalid timeout should fall back to default, got %v", got)
	}
}

func TestTagsFor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tags = TagsConfig{
		Success:         []string{"s"},
		Failure:         []string{"f"},
		NotCancellation: []string{"n"},
	}

	tests := []struct {
		category string
		want     []string
	}{
		{"success", []string{"s"}},
		{"failure", []string{"f"}},
		{"not_cancellation", []string{"n"}},
		{"unknown", nil},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, cfg.TagsFor(tt.category)); diff != "" {
			t.Errorf("TagsFor(%q) mismatch (-want +got):\n%s", tt.category, diff)
		}
	}
}
