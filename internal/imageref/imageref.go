// Package imageref classifies the image_url supplied by clients. The kind is
// decided once, here, and never re-sniffed downstream.
package imageref

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/anime-shed/order-image-relay/pkg/validation"
)

// Kind is the source an image reference points to.
type Kind int

const (
	KindLocal Kind = iota + 1
	KindRemote
	KindAzureBlob
	KindS3
)

func (k Kind) String() string {
	switch k {
	case KindLocal:
		return "local"
	case KindRemote:
		return "remote"
	case KindAzureBlob:
		return "azure_blob"
	case KindS3:
		return "s3"
	default:
		return "unknown"
	}
}

var (
	ErrEmpty             = errors.New("image reference is empty")
	ErrUnsupportedScheme = errors.New("unsupported image reference scheme")
	ErrOutsideUploadDir  = errors.New("local path is outside the upload directory")
	ErrMissingObject     = errors.New("blob reference needs a container and an object name")
)

// Reference is a parsed image reference. Exactly the fields for its Kind are set:
// Name for KindLocal, URL for KindRemote, Container and Object for blob kinds.
type Reference struct {
	Kind      Kind
	Raw       string
	Name      string
	URL       *url.URL
	Container string
	Object    string
}

func (r Reference) String() string {
	return r.Kind.String() + ":" + r.Raw
}

// Parser turns raw references into Reference values.
type Parser struct {
	uploadDir string
	urls      *validation.URLValidator
}

func NewParser(uploadDir string, urls *validation.URLValidator) *Parser {
	if urls == nil {
		urls = validation.NewURLValidator()
	}
	return &Parser{
		uploadDir: path.Clean(filepath.ToSlash(uploadDir)),
		urls:      urls,
	}
}

// Parse classifies raw. References with a scheme are remote or blob
// references; anything else must name a file in the upload directory, either
// bare ("<id>.jpg"), as returned by the upload endpoint ("uploads/<id>.jpg")
// or as served ("/uploads/<id>.jpg").
func (p *Parser) Parse(raw string) (Reference, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Reference{}, ErrEmpty
	}

	if scheme, _, ok := strings.Cut(raw, "://"); ok {
		switch strings.ToLower(scheme) {
		case "http", "https":
			u, err := p.urls.ValidateImageURL(raw)
			if err != nil {
				return Reference{}, err
			}
			return Reference{Kind: KindRemote, Raw: raw, URL: u}, nil
		case "az":
			return parseBlob(KindAzureBlob, raw)
		case "s3":
			return parseBlob(KindS3, raw)
		default:
			return Reference{}, fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
		}
	}

	name, err := p.localName(raw)
	if err != nil {
		return Reference{}, err
	}
	return Reference{Kind: KindLocal, Raw: raw, Name: name}, nil
}

func (p *Parser) localName(raw string) (string, error) {
	slashed := filepath.ToSlash(raw)
	if strings.HasSuffix(slashed, "/") {
		return "", fmt.Errorf("%w: %q", ErrOutsideUploadDir, raw)
	}
	clean := path.Clean(slashed)
	dir, name := path.Split(clean)
	if name == "" || name == "." || name == ".." {
		return "", ErrOutsideUploadDir
	}

	dir = strings.TrimSuffix(dir, "/")
	switch dir {
	case "", p.uploadDir, "/" + strings.TrimPrefix(p.uploadDir, "/"):
		return name, nil
	}
	return "", fmt.Errorf("%w: %q", ErrOutsideUploadDir, raw)
}

func parseBlob(kind Kind, raw string) (Reference, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Reference{}, fmt.Errorf("parse %s reference: %w", kind, err)
	}
	object := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || object == "" {
		return Reference{}, ErrMissingObject
	}
	return Reference{Kind: kind, Raw: raw, Container: u.Host, Object: object}, nil
}
