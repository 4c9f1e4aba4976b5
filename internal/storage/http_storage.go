package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ErrTooLarge is returned when an image exceeds the configured size limit.
var ErrTooLarge = errors.New("image exceeds size limit")

// ImageFetcher downloads image bytes from http(s) URLs.
type ImageFetcher interface {
	FetchImage(ctx context.Context, imageURL *url.URL) ([]byte, error)
}

// HTTPImageFetcher implements ImageFetcher with a tuned transport. It makes a
// single attempt per call.
type HTTPImageFetcher struct {
	client  *http.Client
	maxSize int64
}

// NewHTTPImageFetcher creates a fetcher whose calls are bounded by timeout
// and whose responses are capped at maxSize bytes.
func NewHTTPImageFetcher(timeout time.Duration, maxSize int64) *HTTPImageFetcher {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,

		// Connection pooling sized for single image downloads
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		MaxResponseHeaderBytes: 4096,
	}

	return &HTTPImageFetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("too many redirects (limit: 3)")
				}
				return nil
			},
		},
		maxSize: maxSize,
	}
}

func (h *HTTPImageFetcher) FetchImage(ctx context.Context, imageURL *url.URL) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	req.Header.Set("Accept", "image/jpeg, image/png, image/webp, image/gif, */*")
	req.Header.Set("User-Agent", "Order-Image-Relay/1.0")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("fetch image: status code %d", resp.StatusCode)
	}
	if resp.ContentLength > h.maxSize {
		return nil, fmt.Errorf("%w: content length %d > %d", ErrTooLarge, resp.ContentLength, h.maxSize)
	}

	return readLimited(resp.Body, h.maxSize)
}

// readLimited buffers r fully, failing with ErrTooLarge past max bytes.
func readLimited(r io.Reader, max int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, fmt.Errorf("read image body: %w", err)
	}
	if int64(len(data)) > max {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, max)
	}
	return data, nil
}
