// Package filestore keeps uploaded images on local disk for a fixed time.
// Entries live in an expirable LRU; when an entry expires (or is purged)
// its file is removed from disk.
package filestore

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNotFound is returned for names that were never stored, have expired
	// or are not valid store names.
	ErrNotFound = errors.New("stored image not found")
)

var (
	uploadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_uploads_total",
		Help: "Total number of images written to the upload store.",
	})
	uploadsExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_uploads_expired_total",
		Help: "Total number of stored images removed from disk.",
	})
	uploadsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_uploads_active",
		Help: "Number of stored images currently readable.",
	})
)

// StoredImage is the record of an uploaded file and its lifetime.
type StoredImage struct {
	ID        string
	Ext       string
	Name      string
	Path      string
	Size      int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Store is an on-disk image store with per-entry expiry.
type Store struct {
	dir     string
	ttl     time.Duration
	log     *logrus.Logger
	entries *expirable.LRU[string, *StoredImage]
}

// NewStore creates dir if needed and returns a store whose entries expire
// ttl after they are saved.
func NewStore(dir string, ttl time.Duration, log *logrus.Logger) (*Store, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("ttl must be > 0 (got %s)", ttl)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir %s: %w", dir, err)
	}

	s := &Store{dir: dir, ttl: ttl, log: log}
	// size 0: no capacity bound, entries leave only by expiry or removal
	s.entries = expirable.NewLRU[string, *StoredImage](0, s.onEvict, ttl)
	return s, nil
}

// Dir returns the directory files are written to.
func (s *Store) Dir() string {
	return s.dir
}

// TTL returns the lifetime of a stored entry.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Save writes r under a fresh UUID name that keeps the extension of
// originalName.
func (s *Store) Save(r io.Reader, originalName string) (*StoredImage, error) {
	id := uuid.New().String()
	ext := strings.ToLower(filepath.Ext(filepath.Base(originalName)))
	name := id + ext
	path := filepath.Join(s.dir, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	n, copyErr := io.Copy(f, r)
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("write %s: %w", path, errors.Join(copyErr, closeErr))
	}

	now := time.Now()
	img := &StoredImage{
		ID:        id,
		Ext:       ext,
		Name:      name,
		Path:      path,
		Size:      n,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	s.entries.Add(name, img)
	uploadsTotal.Inc()
	uploadsActive.Inc()

	s.log.WithFields(logrus.Fields{
		"file":       path,
		"size":       n,
		"expires_at": img.ExpiresAt.Format(time.RFC3339),
	}).Info("Stored uploaded image")

	return img, nil
}

// Stat returns the record for name without opening the file.
func (s *Store) Stat(name string) (*StoredImage, error) {
	if !validName(name) {
		return nil, ErrNotFound
	}
	img, ok := s.entries.Get(name)
	if !ok {
		return nil, ErrNotFound
	}
	return img, nil
}

// Open returns a reader for a live entry. A handle obtained before expiry
// stays readable after the file is unlinked.
func (s *Store) Open(name string) (io.ReadCloser, *StoredImage, error) {
	img, err := s.Stat(name)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(img.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("open %s: %w", img.Path, err)
	}
	return f, img, nil
}

// Read returns the full contents of a live entry.
func (s *Store) Read(name string) ([]byte, error) {
	rc, img, err := s.Open(name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var buf bytes.Buffer
	buf.Grow(int(img.Size))
	if _, err := io.Copy(&buf, rc); err != nil {
		return nil, fmt.Errorf("read %s: %w", img.Path, err)
	}
	return buf.Bytes(), nil
}

// Remove drops name and deletes its file. It reports whether name was present.
func (s *Store) Remove(name string) bool {
	if !validName(name) {
		return false
	}
	return s.entries.Remove(name)
}

// Len returns the number of tracked entries, expired ones included until
// the sweeper runs.
func (s *Store) Len() int {
	return s.entries.Len()
}

// Close deletes every stored file.
func (s *Store) Close() error {
	s.entries.Purge()
	return nil
}

// onEvict runs under the LRU lock and must not call back into entries.
func (s *Store) onEvict(name string, img *StoredImage) {
	uploadsActive.Dec()
	if err := os.Remove(img.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.log.WithError(err).WithField("file", img.Path).Error("Error deleting file")
		return
	}
	uploadsExpiredTotal.Inc()
	s.log.WithField("file", img.Path).Info("Deleted file")
}

func validName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && filepath.Base(name) == name
}
