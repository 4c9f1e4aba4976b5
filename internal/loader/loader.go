package loader

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/anime-shed/order-image-relay/internal/imageref"
	"github.com/anime-shed/order-image-relay/internal/storage"
)

// ErrSourceNotConfigured is returned for blob references whose backing
// service has no credentials configured.
var ErrSourceNotConfigured = errors.New("image source not configured")

// LocalStore is the part of the upload store the loader reads from.
type LocalStore interface {
	Read(name string) ([]byte, error)
}

// Image holds loaded image bytes and the MIME type sent to the model.
type Image struct {
	Data     []byte
	MIMEType string
	Source   imageref.Kind
}

// Base64 returns the standard base64 encoding of the image bytes.
func (i *Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

// DataURI returns the image inlined as a data: URI.
func (i *Image) DataURI() string {
	return "data:" + i.MIMEType + ";base64," + i.Base64()
}

type Options struct {
	// DetectType sniffs the MIME type from content. When false, or when the
	// content is not recognised as an image, DefaultMIME is used.
	DetectType   bool
	DefaultMIME  string
	FetchTimeout time.Duration
}

// Loader resolves references to image bytes. Azure and S3 may be nil.
type Loader struct {
	local   LocalStore
	fetcher storage.ImageFetcher
	azure   storage.BlobStore
	s3      storage.BlobStore
	opts    Options
}

func New(local LocalStore, fetcher storage.ImageFetcher, azure, s3 storage.BlobStore, opts Options) *Loader {
	if opts.DefaultMIME == "" {
		opts.DefaultMIME = "image/jpeg"
	}
	return &Loader{
		local:   local,
		fetcher: fetcher,
		azure:   azure,
		s3:      s3,
		opts:    opts,
	}
}

// Load reads the bytes ref points to.
func (l *Loader) Load(ctx context.Context, ref imageref.Reference) (*Image, error) {
	if l.opts.FetchTimeout > 0 && ref.Kind != imageref.KindLocal {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.opts.FetchTimeout)
		defer cancel()
	}

	var (
		data []byte
		err  error
	)
	switch ref.Kind {
	case imageref.KindLocal:
		data, err = l.local.Read(ref.Name)
	case imageref.KindRemote:
		data, err = l.fetcher.FetchImage(ctx, ref.URL)
	case imageref.KindAzureBlob:
		data, err = l.fromBlob(ctx, l.azure, ref)
	case imageref.KindS3:
		data, err = l.fromBlob(ctx, l.s3, ref)
	default:
		return nil, fmt.Errorf("unknown reference kind %d", ref.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", ref, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("load %s: empty image", ref)
	}

	return &Image{
		Data:     data,
		MIMEType: l.mimeType(data),
		Source:   ref.Kind,
	}, nil
}

// ToBase64 loads ref and returns its base64 encoding.
func (l *Loader) ToBase64(ctx context.Context, ref imageref.Reference) (string, error) {
	img, err := l.Load(ctx, ref)
	if err != nil {
		return "", err
	}
	return img.Base64(), nil
}

func (l *Loader) fromBlob(ctx context.Context, store storage.BlobStore, ref imageref.Reference) ([]byte, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotConfigured, ref.Kind)
	}
	return store.GetObject(ctx, ref.Container, ref.Object)
}

func (l *Loader) mimeType(data []byte) string {
	if !l.opts.DetectType {
		return l.opts.DefaultMIME
	}
	mt := mimetype.Detect(data).String()
	// drop parameters such as "; charset=utf-8"
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	if !strings.HasPrefix(mt, "image/") {
		return l.opts.DefaultMIME
	}
	return mt
}
