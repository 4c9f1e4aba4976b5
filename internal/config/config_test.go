package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.Port != "3002" {
		t.Errorf("Expected default port 3002, got %s", cfg.Port)
	}
	if cfg.ServerAddress() != "0.0.0.0:3002" {
		t.Errorf("Unexpected server address: %s", cfg.ServerAddress())
	}
	if cfg.Upload.Dir != "uploads" {
		t.Errorf("Expected upload dir 'uploads', got %s", cfg.Upload.Dir)
	}
	if cfg.Upload.TTL != 60*time.Second {
		t.Errorf("Expected 60s upload TTL, got %s", cfg.Upload.TTL)
	}
	if cfg.Extraction.MaxTokens != 500 {
		t.Errorf("Expected 500 max tokens, got %d", cfg.Extraction.MaxTokens)
	}
	if cfg.Extraction.BaseURL != "https://api.openai.com/v1" {
		t.Errorf("Unexpected base URL: %s", cfg.Extraction.BaseURL)
	}
	if cfg.Image.DefaultMIME != "image/jpeg" || !cfg.Image.DetectType {
		t.Errorf("Unexpected image defaults: %+v", cfg.Image)
	}
	if len(cfg.HTTP.AllowedOrigins) != 1 || cfg.HTTP.AllowedOrigins[0] != "*" {
		t.Errorf("Expected wildcard CORS origin, got %v", cfg.HTTP.AllowedOrigins)
	}
	if !cfg.HTTP.ErrorDetails {
		t.Error("Expected error details enabled by default")
	}
	if cfg.Azure.Enabled() || cfg.S3.Enabled() {
		t.Error("Expected blob sources disabled by default")
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("PORT", "8081")
	t.Setenv("UPLOAD_TTL", "5s")
	t.Setenv("OPENAI_MODEL", "gpt-4-vision-preview")
	t.Setenv("OPENAI_BASE_URL", "http://localhost:9999/v1/")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("IMAGE_ALLOWED_HOSTS", "cdn.example.com")
	t.Setenv("ERROR_DETAILS", "false")
	t.Setenv("DETECT_IMAGE_TYPE", "false")
	t.Setenv("AZURE_STORAGE_ACCOUNT", "acct")
	t.Setenv("AZURE_STORAGE_KEY", "key")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.Port != "8081" {
		t.Errorf("Expected port 8081, got %s", cfg.Port)
	}
	if cfg.Upload.TTL != 5*time.Second {
		t.Errorf("Expected 5s TTL, got %s", cfg.Upload.TTL)
	}
	if cfg.Extraction.Model != "gpt-4-vision-preview" {
		t.Errorf("Unexpected model: %s", cfg.Extraction.Model)
	}
	if cfg.Extraction.BaseURL != "http://localhost:9999/v1" {
		t.Errorf("Expected trailing slash trimmed, got %s", cfg.Extraction.BaseURL)
	}
	if len(cfg.HTTP.AllowedOrigins) != 2 || cfg.HTTP.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("Unexpected origins: %v", cfg.HTTP.AllowedOrigins)
	}
	if len(cfg.Image.AllowedHosts) != 1 {
		t.Errorf("Unexpected allowed hosts: %v", cfg.Image.AllowedHosts)
	}
	if cfg.HTTP.ErrorDetails || cfg.Image.DetectType {
		t.Error("Expected boolean overrides to apply")
	}
	if !cfg.Azure.Enabled() {
		t.Error("Expected Azure source enabled")
	}
}

func TestLoadFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"missing api key", map[string]string{}, "OPENAI_API_KEY"},
		{"bad port", map[string]string{"OPENAI_API_KEY": "k", "PORT": "abc"}, "invalid PORT"},
		{"port out of range", map[string]string{"OPENAI_API_KEY": "k", "PORT": "70000"}, "invalid PORT"},
		{"zero ttl", map[string]string{"OPENAI_API_KEY": "k", "UPLOAD_TTL": "0s"}, "UPLOAD_TTL"},
		{"zero max tokens", map[string]string{"OPENAI_API_KEY": "k", "OPENAI_MAX_TOKENS": "0"}, "OPENAI_MAX_TOKENS"},
		{"non image mime", map[string]string{"OPENAI_API_KEY": "k", "DEFAULT_IMAGE_MIME": "text/plain"}, "DEFAULT_IMAGE_MIME"},
		{"zero timeout", map[string]string{"OPENAI_API_KEY": "k", "EXTRACTION_TIMEOUT": "0s"}, "timeouts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("OPENAI_API_KEY", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := LoadFromEnv()
			if err == nil {
				t.Fatal("Expected error, got none")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
