package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/anime-shed/order-image-relay/internal/loader"
)

// ErrExtractionFailed wraps every failure of the extraction call. Transport,
// auth, quota and decode problems are not distinguished.
var ErrExtractionFailed = errors.New("extraction request failed")

// Instruction is the fixed prompt sent with every image.
const Instruction = "order ID, order date (Using ISO 8601 format) , customer name, customer Phone Number, " +
	"order item list with item name, quantity and price, subtotal amount, delivery fees, discount, total, " +
	"i need these value in json format"

// Extractor turns an image into the model's free-text reply.
type Extractor interface {
	Extract(ctx context.Context, img *loader.Image) (string, error)
}

type Config struct {
	APIKey    string
	BaseURL   string // default https://api.openai.com/v1
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// Client calls an OpenAI-compatible chat/completions endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *logrus.Logger
}

func NewClient(cfg Config, log *logrus.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 500
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log,
	}
}

type imageURL struct {
	URL string `json:"url"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type message struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type chatRequest struct {
	Model     string    `json:"model"`
	Messages  []message `json:"messages"`
	MaxTokens int       `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Extract sends one completion request carrying the instruction and the
// image as a data URI, and returns the reply text.
func (c *Client) Extract(ctx context.Context, img *loader.Image) (string, error) {
	rid := uuid.New().String()
	start := time.Now()
	log := c.log.WithFields(logrus.Fields{"req_id": rid, "model": c.cfg.Model})

	log.WithFields(logrus.Fields{
		"mime":        img.MIMEType,
		"image_bytes": len(img.Data),
		"max_tokens":  c.cfg.MaxTokens,
	}).Info("Sending extraction request")

	body := chatRequest{
		Model:     c.cfg.Model,
		MaxTokens: c.cfg.MaxTokens,
		Messages: []message{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: Instruction},
				{Type: "image_url", ImageURL: &imageURL{URL: img.DataURI()}},
			},
		}},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, err := c.post(ctx, endpoint, body)
	if err != nil {
		log.WithError(err).WithField("elapsed_ms", time.Since(start).Milliseconds()).Error("Extraction request failed")
		return "", fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}

	var cc chatResponse
	if err := json.Unmarshal(raw, &cc); err != nil {
		log.WithError(err).WithField("raw_bytes", len(raw)).Error("Extraction response decode failed")
		return "", fmt.Errorf("%w: decode response: %w", ErrExtractionFailed, err)
	}
	if len(cc.Choices) == 0 {
		return "", fmt.Errorf("%w: response has no choices", ErrExtractionFailed)
	}

	content := cc.Choices[0].Message.Content
	log.WithFields(logrus.Fields{
		"finish_reason": cc.Choices[0].FinishReason,
		"reply_chars":   len(content),
		"elapsed_ms":    time.Since(start).Milliseconds(),
	}).Info("Received extraction response")
	log.WithField("content", content).Debug("Extraction reply")

	return content, nil
}

func (c *Client) post(ctx context.Context, url string, body any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http error: %w", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			c.log.WithError(err).Warn("Extraction response body close error")
		}
	}(resp.Body)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(raw), 512))
	}
	return raw, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
