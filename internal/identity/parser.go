package identity

import (
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"
)

// Proof is a parsed proof locator
type Proof struct {
	Handle    string
	Locator   string
	PostID    string
	Signature string
}

// ProofLocatorParser extracts the claimed handle from a locator
type ProofLocatorParser interface {
	Parse(locator string) (Proof, error)
}

var (
	socialHosts = []string{"x.com", "www.x.com", "mobile.x.com", "twitter.com", "www.twitter.com", "mobile.twitter.com"}
	socialPath  = regexp.MustCompile(`^/([A-Za-z0-9_]{1,15})/status(?:es)?/(\d+)/?$`)
)

// SocialPostParser parses x.com and twitter.com status URLs
type SocialPostParser struct{}

func (SocialPostParser) Parse(locator string) (Proof, error) {
	u, err := url.Parse(strings.TrimSpace(locator))
	if err != nil {
		return Proof{}, fmt.Errorf("%w: %v", ErrInvalidLocator, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return Proof{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidLocator, u.Scheme)
	}
	if !slices.Contains(socialHosts, strings.ToLower(u.Host)) {
		return Proof{}, fmt.Errorf("%w: %s is not an x.com post", ErrInvalidLocator, u.Host)
	}

	m := socialPath.FindStringSubmatch(u.Path)
	if m == nil {
		return Proof{}, fmt.Errorf("%w: %s is not a status URL", ErrInvalidLocator, u.Path)
	}

	canonical := fmt.Sprintf("https://x.com/%s/status/%s", m[1], m[2])
	return Proof{Handle: m[1], Locator: canonical, PostID: m[2]}, nil
}

// WalletLocatorParser parses "<address>:<signature>" locators
type WalletLocatorParser struct{}

func (WalletLocatorParser) Parse(locator string) (Proof, error) {
	address, signature, ok := strings.Cut(strings.TrimSpace(locator), ":")
	if !ok || address == "" || signature == "" {
		return Proof{}, fmt.Errorf("%w: expected <address>:<signature>", ErrInvalidLocator)
	}
	return Proof{Handle: address, Locator: locator, Signature: signature}, nil
}

// NormalizeHandle strips a leading @ and surrounding whitespace
func NormalizeHandle(handle string) string {
	return strings.TrimPrefix(strings.TrimSpace(handle), "@")
}

// SameHandle compares handles case-insensitively
func SameHandle(a, b string) bool {
	return strings.EqualFold(NormalizeHandle(a), NormalizeHandle(b))
}
