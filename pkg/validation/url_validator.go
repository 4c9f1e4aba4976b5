package validation

import (
	"net/url"
	"strings"

	apperrors "github.com/anime-shed/order-image-relay/internal/errors"
)

// URLValidator decides whether a remote image URL may be fetched.
type URLValidator struct {
	allowedSchemes []string
	allowedHosts   []string
}

// NewURLValidator accepts http and https URLs on any host.
func NewURLValidator() *URLValidator {
	return &URLValidator{
		allowedSchemes: []string{"http", "https"},
		allowedHosts:   []string{}, // empty means all hosts allowed
	}
}

// NewURLValidatorWithHosts restricts http(s) URLs to the given hosts. A host
// entry of the form "*.example.com" matches any subdomain of example.com.
func NewURLValidatorWithHosts(hosts []string) *URLValidator {
	v := NewURLValidator()
	for _, h := range hosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			v.allowedHosts = append(v.allowedHosts, h)
		}
	}
	return v
}

// ValidateImageURL parses imageURL and validates it.
func (v *URLValidator) ValidateImageURL(imageURL string) (*url.URL, error) {
	if strings.TrimSpace(imageURL) == "" {
		return nil, apperrors.NewValidationError("URL cannot be empty", nil)
	}

	parsedURL, err := url.Parse(strings.TrimSpace(imageURL))
	if err != nil {
		return nil, apperrors.NewValidationError("Invalid URL format", err)
	}
	if err := v.Validate(parsedURL); err != nil {
		return nil, err
	}
	return parsedURL, nil
}

// Validate checks scheme, host presence and the host allow-list.
func (v *URLValidator) Validate(u *url.URL) error {
	if !v.isSchemeAllowed(strings.ToLower(u.Scheme)) {
		return apperrors.NewValidationError("URL scheme not allowed", nil)
	}

	if u.Hostname() == "" {
		return apperrors.NewValidationError("URL must have a valid host", nil)
	}

	if !v.isHostAllowed(strings.ToLower(u.Hostname())) {
		return apperrors.NewValidationError("URL host not allowed", nil)
	}

	return nil
}

func (v *URLValidator) isSchemeAllowed(scheme string) bool {
	for _, allowed := range v.allowedSchemes {
		if scheme == allowed {
			return true
		}
	}
	return false
}

// isHostAllowed returns true if no host restrictions are set
func (v *URLValidator) isHostAllowed(host string) bool {
	if len(v.allowedHosts) == 0 {
		return true
	}
	for _, allowed := range v.allowedHosts {
		if suffix, ok := strings.CutPrefix(allowed, "*."); ok {
			if strings.HasSuffix(host, "."+suffix) {
				return true
			}
			continue
		}
		if host == allowed {
			return true
		}
	}
	return false
}
