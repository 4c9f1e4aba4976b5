package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/anime-shed/order-image-relay/internal/loader"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testImage() *loader.Image {
	return &loader.Image{Data: []byte("abc"), MIMEType: "image/png"}
}

func replyJSON(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}, "finish_reason": "stop"},
		},
	})
	return string(b)
}

func TestExtract_RequestShape(t *testing.T) {
	var (
		gotPath string
		gotAuth string
		gotBody chatRequest
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, replyJSON("```json\n{\"orderId\":\"A1\"}\n```"))
	}))
	defer server.Close()

	client := NewClient(Config{
		APIKey:    "sk-test",
		BaseURL:   server.URL + "/v1/",
		Model:     "gpt-4o",
		MaxTokens: 500,
	}, quietLogger())

	reply, err := client.Extract(context.Background(), testImage())
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !strings.Contains(reply, `"orderId":"A1"`) {
		t.Errorf("Unexpected reply %q", reply)
	}

	if gotPath != "/v1/chat/completions" {
		t.Errorf("Expected /v1/chat/completions, got %s", gotPath)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Unexpected Authorization header %q", gotAuth)
	}
	if gotBody.Model != "gpt-4o" || gotBody.MaxTokens != 500 {
		t.Errorf("Unexpected model/max_tokens: %s/%d", gotBody.Model, gotBody.MaxTokens)
	}
	if len(gotBody.Messages) != 1 || gotBody.Messages[0].Role != "user" {
		t.Fatalf("Expected a single user message, got %+v", gotBody.Messages)
	}
	parts := gotBody.Messages[0].Content
	if len(parts) != 2 {
		t.Fatalf("Expected 2 content parts, got %d", len(parts))
	}
	if parts[0].Type != "text" || parts[0].Text != Instruction {
		t.Errorf("Unexpected text part %+v", parts[0])
	}
	if parts[1].Type != "image_url" || parts[1].ImageURL == nil {
		t.Fatalf("Unexpected image part %+v", parts[1])
	}
	if parts[1].ImageURL.URL != "data:image/png;base64,YWJj" {
		t.Errorf("Unexpected data URI %s", parts[1].ImageURL.URL)
	}
}

func TestExtract_FailuresCollapse(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"bad key"}}`},
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`},
		{"server error", http.StatusInternalServerError, `oops`},
		{"not json", http.StatusOK, `<html>`},
		{"no choices", http.StatusOK, `{"choices":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requests := 0
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				requests++
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer server.Close()

			client := NewClient(Config{APIKey: "k", BaseURL: server.URL}, quietLogger())
			_, err := client.Extract(context.Background(), testImage())
			if !errors.Is(err, ErrExtractionFailed) {
				t.Errorf("Expected ErrExtractionFailed, got %v", err)
			}
			if requests != 1 {
				t.Errorf("Expected exactly one request (no retries), got %d", requests)
			}
		})
	}
}

func TestExtract_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewClient(Config{APIKey: "k", BaseURL: url}, quietLogger())
	if _, err := client.Extract(context.Background(), testImage()); !errors.Is(err, ErrExtractionFailed) {
		t.Errorf("Expected ErrExtractionFailed, got %v", err)
	}
}

func TestExtract_ContextDeadline(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client := NewClient(Config{APIKey: "k", BaseURL: server.URL}, quietLogger())
	_, err := client.Extract(ctx, testImage())
	if !errors.Is(err, ErrExtractionFailed) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected extraction failure caused by deadline, got %v", err)
	}
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(Config{APIKey: "k"}, nil)
	if c.cfg.BaseURL != "https://api.openai.com/v1" {
		t.Errorf("Unexpected default base URL %s", c.cfg.BaseURL)
	}
	if c.cfg.MaxTokens != 500 {
		t.Errorf("Expected default 500 max tokens, got %d", c.cfg.MaxTokens)
	}
	if c.cfg.Model == "" {
		t.Error("Expected default model")
	}
}
