package config

import (
	"errors"
	"testing"
)

func TestGetAPIKey(t *testing.T) {
	t.Run("from environment", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "sk-ant-REDACTED")

		key, err := GetAPIKey(nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if key != "sk-ant-REDACTED" {
			t.Errorf("expected env key, got %s", key)
		}
	})

	t.Run("from config", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "")

		cfg := Default()
		cfg.Anthropic.APIKey = "sk-ant-REDACTED"
		key, err := GetAPIKey(cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if key != "sk-ant-REDACTED" {
			t.Errorf("expected config key, got %s", key)
		}
	})

	t.Run("unexpanded reference", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "")

		cfg := Default()
		cfg.Anthropic.APIKey = "${FORGE_TEST_UNSET_KEY}"
		if _, err := GetAPIKey(cfg); !errors.Is(err, ErrNoAPIKey) {
			t.Errorf("expected ErrNoAPIKey, got %v", err)
		}
	})

	t.Run("no key", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "")

		if _, err := GetAPIKey(Default()); !errors.Is(err, ErrNoAPIKey) {
			t.Errorf("expected ErrNoAPIKey, got %v", err)
		}
	})
}

func TestValidateAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid key", "sk-ant-REDACTED", false},
		{"empty key", "", true},
		{"wrong prefix", "sk-openai-key-here", true},
		{"too short", "sk-ant-short", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAPIKey(tt.key)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAPIKey(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
		})
	}
}

func TestMaskAPIKey(t *testing.T) {
	tests := []struct {
		key      string
		expected string
	}{
		{"", "(not set)"},
		{"short", "***"},
		{"sk-ant-REDACTED", "sk-ant-...mnop"},
	}

	for _, tt := range tests {
		if got := MaskAPIKey(tt.key); got != tt.expected {
			t.Errorf("MaskAPIKey(%q) = %q, want %q", tt.key, got, tt.expected)
		}
	}
}

func TestGetAPIKeySource(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	cfg := Default()
	if got := GetAPIKeySource(cfg); got != KeySourceNone {
		t.Errorf("expected none, got %s", got)
	}

	cfg.Anthropic.APIKey = "sk-ant-REDACTED"
	if got := GetAPIKeySource(cfg); got != KeySourceConfig {
		t.Errorf("expected config_file, got %s", got)
	}

	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-env-key-1234567890")
	if got := GetAPIKeySource(cfg); got != KeySourceEnv {
		t.Errorf("expected environment, got %s", got)
	}

	cfg.Anthropic.UseBedrock = true
	if got := GetAPIKeySource(cfg); got != KeySourceBedrock {
		t.Errorf("expected aws_bedrock, got %s", got)
	}
	if NeedsAPIKey(cfg) {
		t.Error("bedrock should not need an API key")
	}
}
