package storage

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
)

func newS3Server(t *testing.T, body []byte, gotPath *string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*gotPath = r.URL.Path
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.Write(body)
	}))
}

func TestS3Storage_GetObjectPathStyle(t *testing.T) {
	var path string
	server := newS3Server(t, pngData, &path)
	defer server.Close()

	store, err := NewS3Storage(context.Background(), S3Options{
		Endpoint:        server.URL,
		Region:          "us-east-1",
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		MaxSize:         1 << 20,
	})
	if err != nil {
		t.Fatalf("NewS3Storage: %v", err)
	}

	data, err := store.GetObject(context.Background(), "orders", "2024/a.png")
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	if !bytes.Equal(data, pngData) {
		t.Error("Expected object bytes to match")
	}
	if path != "/orders/2024/a.png" {
		t.Errorf("Expected path-style request, got %s", path)
	}
}

func TestS3Storage_SizeLimit(t *testing.T) {
	var path string
	server := newS3Server(t, bytes.Repeat([]byte{1}, 4096), &path)
	defer server.Close()

	store, err := NewS3Storage(context.Background(), S3Options{
		Endpoint:        server.URL,
		Region:          "us-east-1",
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		MaxSize:         1024,
	})
	if err != nil {
		t.Fatalf("NewS3Storage: %v", err)
	}

	if _, err := store.GetObject(context.Background(), "orders", "big.png"); !errors.Is(err, ErrTooLarge) {
		t.Errorf("Expected ErrTooLarge, got %v", err)
	}
}
