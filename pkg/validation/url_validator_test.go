package validation

import (
	"errors"
	"testing"

	apperrors "github.com/anime-shed/order-image-relay/internal/errors"
)

func TestNewURLValidator(t *testing.T) {
	validator := NewURLValidator()
	if validator == nil {
		t.Fatal("Expected non-nil URL validator")
	}

	expectedSchemes := []string{"http", "https"}
	if len(validator.allowedSchemes) != len(expectedSchemes) {
		t.Errorf("Expected %d schemes, got %d", len(expectedSchemes), len(validator.allowedSchemes))
	}
	if len(validator.allowedHosts) != 0 {
		t.Errorf("Expected no host restrictions, got %v", validator.allowedHosts)
	}
}

func TestNewURLValidatorWithHosts_Normalizes(t *testing.T) {
	validator := NewURLValidatorWithHosts([]string{" CDN.Example.com ", "", "*.images.test"})

	if len(validator.allowedHosts) != 2 {
		t.Fatalf("Expected 2 hosts, got %v", validator.allowedHosts)
	}
	if validator.allowedHosts[0] != "cdn.example.com" {
		t.Errorf("Expected lower-cased trimmed host, got %q", validator.allowedHosts[0])
	}
}

func TestValidateImageURL_ValidURLs(t *testing.T) {
	validator := NewURLValidator()

	validURLs := []string{
		"http://example.com/image.jpg",
		"https://example.com/image.png",
		"HTTPS://example.com/upper-scheme.png",
		"https://subdomain.example.com/path/to/image.gif",
		"http://192.168.1.1:8080/image.jpg",
	}

	for _, u := range validURLs {
		parsed, err := validator.ValidateImageURL(u)
		if err != nil {
			t.Errorf("Expected valid URL %s to pass validation, got error: %v", u, err)
			continue
		}
		if parsed == nil || parsed.Host == "" {
			t.Errorf("Expected parsed URL with host for %s", u)
		}
	}
}

func TestValidateImageURL_Rejected(t *testing.T) {
	validator := NewURLValidator()

	tests := []struct {
		url         string
		wantMessage string
	}{
		{"", "URL cannot be empty"},
		{"   ", "URL cannot be empty"},
		{"ftp://example.com/a.jpg", "URL scheme not allowed"},
		{"file:///etc/passwd", "URL scheme not allowed"},
		{"http://", "URL must have a valid host"},
		{"https:///path", "URL must have a valid host"},
		{"://missing-scheme", "Invalid URL format"},
	}

	for _, tt := range tests {
		_, err := validator.ValidateImageURL(tt.url)
		if err == nil {
			t.Errorf("Expected %q to fail validation", tt.url)
			continue
		}

		var appErr *apperrors.AppError
		if !errors.As(err, &appErr) {
			t.Errorf("Expected AppError for %q, got %T", tt.url, err)
			continue
		}
		if appErr.Type != apperrors.ErrorTypeValidation {
			t.Errorf("Expected validation type for %q, got %s", tt.url, appErr.Type)
		}
		if appErr.Message != tt.wantMessage {
			t.Errorf("URL %q: expected message %q, got %q", tt.url, tt.wantMessage, appErr.Message)
		}
	}
}

func TestIsHostAllowed(t *testing.T) {
	validator := NewURLValidator()
	if !validator.isHostAllowed("example.com") {
		t.Error("Expected any host to be allowed when no restrictions")
	}

	restricted := NewURLValidatorWithHosts([]string{"example.com", "*.trusted.com"})

	tests := []struct {
		host string
		want bool
	}{
		{"example.com", true},
		{"sub.example.com", false},
		{"cdn.trusted.com", true},
		{"a.b.trusted.com", true},
		{"trusted.com", false},
		{"eviltrusted.com", false},
		{"malicious.com", false},
	}
	for _, tt := range tests {
		if got := restricted.isHostAllowed(tt.host); got != tt.want {
			t.Errorf("isHostAllowed(%q) = %v, want %v", tt.host, got, tt.want)
		}
	}

	if _, err := restricted.ValidateImageURL("https://example.com:8443/a.png"); err != nil {
		t.Errorf("Expected port to be ignored for host matching, got %v", err)
	}
	if _, err := restricted.ValidateImageURL("https://malicious.com/a.png"); err == nil {
		t.Error("Expected disallowed host to fail")
	}
}
