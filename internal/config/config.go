package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Host               string
	Port               string
	LogLevel           string
	LogFormat          string
	RequestTimeout     time.Duration
	MaxRequestBodySize int64

	Upload     UploadConfig
	Image      ImageConfig
	Extraction ExtractionConfig
	HTTP       HTTPConfig
	Azure      AzureConfig
	S3         S3Config
}

// UploadConfig controls the ephemeral file store.
type UploadConfig struct {
	Dir string
	TTL time.Duration
}

type ImageConfig struct {
	FetchTimeout time.Duration
	MaxSize      int64
	DetectType   bool
	DefaultMIME  string
	AllowedHosts []string
}

// ExtractionConfig describes the chat-completions endpoint used to read orders.
type ExtractionConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

type HTTPConfig struct {
	AllowedOrigins []string
	ErrorDetails   bool
}

type AzureConfig struct {
	AccountName string
	AccountKey  string
}

// Enabled reports whether az:// references can be served.
func (c AzureConfig) Enabled() bool {
	return c.AccountName != "" && c.AccountKey != ""
}

type S3Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// Enabled reports whether s3:// references can be served.
func (c S3Config) Enabled() bool {
	return c.AccessKeyID != "" && c.SecretAccessKey != ""
}

func (c *Config) ServerAddress() string {
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("PORT", "3002")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("REQUEST_TIMEOUT", 60*time.Second)
	v.SetDefault("MAX_REQUEST_BODY_SIZE", 10*1024*1024) // 10MB

	v.SetDefault("UPLOAD_DIR", "uploads")
	v.SetDefault("UPLOAD_TTL", 60*time.Second)

	v.SetDefault("IMAGE_FETCH_TIMEOUT", 15*time.Second)
	v.SetDefault("MAX_IMAGE_SIZE", 20*1024*1024) // 20MB
	v.SetDefault("DETECT_IMAGE_TYPE", true)
	v.SetDefault("DEFAULT_IMAGE_MIME", "image/jpeg")
	v.SetDefault("IMAGE_ALLOWED_HOSTS", "")

	v.SetDefault("OPENAI_API_KEY", "")
	v.SetDefault("OPENAI_BASE_URL", "https://api.openai.com/v1")
	v.SetDefault("OPENAI_MODEL", "gpt-4o")
	v.SetDefault("OPENAI_MAX_TOKENS", 500)
	v.SetDefault("EXTRACTION_TIMEOUT", 45*time.Second)

	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("ERROR_DETAILS", true)

	v.SetDefault("AZURE_STORAGE_ACCOUNT", "")
	v.SetDefault("AZURE_STORAGE_KEY", "")

	v.SetDefault("S3_ENDPOINT", "")
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("S3_ACCESS_KEY_ID", "")
	v.SetDefault("S3_SECRET_ACCESS_KEY", "")
}

// LoadFromEnv builds the configuration from environment variables and
// validates it. OPENAI_API_KEY is the only required variable.
func LoadFromEnv() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{
		Host:               strings.TrimSpace(v.GetString("HOST")),
		Port:               strings.TrimSpace(v.GetString("PORT")),
		LogLevel:           v.GetString("LOG_LEVEL"),
		LogFormat:          v.GetString("LOG_FORMAT"),
		RequestTimeout:     v.GetDuration("REQUEST_TIMEOUT"),
		MaxRequestBodySize: v.GetInt64("MAX_REQUEST_BODY_SIZE"),
		Upload: UploadConfig{
			Dir: strings.TrimSpace(v.GetString("UPLOAD_DIR")),
			TTL: v.GetDuration("UPLOAD_TTL"),
		},
		Image: ImageConfig{
			FetchTimeout: v.GetDuration("IMAGE_FETCH_TIMEOUT"),
			MaxSize:      v.GetInt64("MAX_IMAGE_SIZE"),
			DetectType:   v.GetBool("DETECT_IMAGE_TYPE"),
			DefaultMIME:  strings.TrimSpace(v.GetString("DEFAULT_IMAGE_MIME")),
			AllowedHosts: splitList(v.GetString("IMAGE_ALLOWED_HOSTS")),
		},
		Extraction: ExtractionConfig{
			APIKey:    strings.TrimSpace(v.GetString("OPENAI_API_KEY")),
			BaseURL:   strings.TrimRight(strings.TrimSpace(v.GetString("OPENAI_BASE_URL")), "/"),
			Model:     strings.TrimSpace(v.GetString("OPENAI_MODEL")),
			MaxTokens: v.GetInt("OPENAI_MAX_TOKENS"),
			Timeout:   v.GetDuration("EXTRACTION_TIMEOUT"),
		},
		HTTP: HTTPConfig{
			AllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
			ErrorDetails:   v.GetBool("ERROR_DETAILS"),
		},
		Azure: AzureConfig{
			AccountName: strings.TrimSpace(v.GetString("AZURE_STORAGE_ACCOUNT")),
			AccountKey:  strings.TrimSpace(v.GetString("AZURE_STORAGE_KEY")),
		},
		S3: S3Config{
			Endpoint:        strings.TrimSpace(v.GetString("S3_ENDPOINT")),
			Region:          strings.TrimSpace(v.GetString("S3_REGION")),
			AccessKeyID:     strings.TrimSpace(v.GetString("S3_ACCESS_KEY_ID")),
			SecretAccessKey: strings.TrimSpace(v.GetString("S3_SECRET_ACCESS_KEY")),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and required values.
func (c *Config) Validate() error {
	p, err := strconv.Atoi(c.Port)
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid PORT: %q", c.Port)
	}
	if c.Extraction.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	if c.Extraction.Model == "" {
		return fmt.Errorf("OPENAI_MODEL must not be empty")
	}
	if c.Extraction.MaxTokens <= 0 {
		return fmt.Errorf("OPENAI_MAX_TOKENS must be > 0 (got %d)", c.Extraction.MaxTokens)
	}
	if c.Upload.Dir == "" {
		return fmt.Errorf("UPLOAD_DIR must not be empty")
	}
	if c.Upload.TTL <= 0 {
		return fmt.Errorf("UPLOAD_TTL must be > 0 (got %s)", c.Upload.TTL)
	}
	if c.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0 (got %d)", c.MaxRequestBodySize)
	}
	if c.Image.MaxSize <= 0 {
		return fmt.Errorf("MAX_IMAGE_SIZE must be > 0 (got %d)", c.Image.MaxSize)
	}
	if !strings.HasPrefix(c.Image.DefaultMIME, "image/") {
		return fmt.Errorf("DEFAULT_IMAGE_MIME must be an image type (got %q)", c.Image.DefaultMIME)
	}
	if c.RequestTimeout <= 0 || c.Image.FetchTimeout <= 0 || c.Extraction.Timeout <= 0 {
		return fmt.Errorf("timeouts must be > 0 (got request=%s, fetch=%s, extraction=%s)",
			c.RequestTimeout, c.Image.FetchTimeout, c.Extraction.Timeout)
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}
