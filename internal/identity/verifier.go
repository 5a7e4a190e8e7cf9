package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"capital-creator/marketplace-backend/pkg/security"
)

// DefaultOEmbedEndpoint is the public embed endpoint for x.com posts
const DefaultOEmbedEndpoint = "https://publish.twitter.com/oembed"

// Post is the fetched content of a social post
type Post struct {
	AuthorHandle string
	Text         string
}

// PostFetcher loads a published post
type PostFetcher interface {
	FetchPost(ctx context.Context, locator string) (*Post, error)
}

// OEmbedFetcher fetches posts through the oEmbed API, which needs no credentials
type OEmbedFetcher struct {
	client   *http.Client
	endpoint string
}

// NewOEmbedFetcher creates a fetcher; an empty endpoint uses DefaultOEmbedEndpoint
func NewOEmbedFetcher(client *http.Client, endpoint string) *OEmbedFetcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if endpoint == "" {
		endpoint = DefaultOEmbedEndpoint
	}
	return &OEmbedFetcher{client: client, endpoint: endpoint}
}

type oembedResponse struct {
	AuthorName string `json:"author_name"`
	AuthorURL  string `json:"author_url"`
	HTML       string `json:"html"`
}

// FetchPost implements PostFetcher
func (f *OEmbedFetcher) FetchPost(ctx context.Context, locator string) (*Post, error) {
	q := url.Values{}
	q.Set("url", locator)
	q.Set("omit_script", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build oembed request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: post not found or not public", ErrInvalidLocator)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oembed returned status %d", resp.StatusCode)
	}

	var body oembedResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode oembed response: %w", err)
	}

	post := &Post{Text: html.UnescapeString(body.HTML)}
	if author, err := url.Parse(body.AuthorURL); err == nil {
		post.AuthorHandle = path.Base(strings.TrimSuffix(author.Path, "/"))
	}
	return post, nil
}

// SocialPostVerifier verifies a challenge code published in an x.com post
type SocialPostVerifier struct {
	parser  ProofLocatorParser
	fetcher PostFetcher
	logger  *zap.Logger
}

// NewSocialPostVerifier creates a verifier for x.com posts
func NewSocialPostVerifier(parser ProofLocatorParser, fetcher PostFetcher, logger *zap.Logger) *SocialPostVerifier {
	return &SocialPostVerifier{parser: parser, fetcher: fetcher, logger: logger}
}

// VerifyProof implements ProofVerifier. The handle in the URL and the post's
// author must both match expectedHandle; the post text must contain the code.
func (v *SocialPostVerifier) VerifyProof(ctx context.Context, locator, expectedHandle, expectedCode string) (VerifyResult, error) {
	proof, err := v.parser.Parse(locator)
	if err != nil {
		return VerifyResult{Reason: err.Error()}, nil
	}
	if !SameHandle(proof.Handle, expectedHandle) {
		return VerifyResult{Reason: fmt.Sprintf("post belongs to @%s, expected @%s", proof.Handle, NormalizeHandle(expectedHandle))}, nil
	}

	post, err := v.fetcher.FetchPost(ctx, proof.Locator)
	if err != nil {
		if errors.Is(err, ErrInvalidLocator) {
			return VerifyResult{Reason: err.Error()}, nil
		}
		return VerifyResult{}, err
	}

	if post.AuthorHandle != "" && !SameHandle(post.AuthorHandle, expectedHandle) {
		return VerifyResult{Reason: fmt.Sprintf("post was authored by @%s, expected @%s", post.AuthorHandle, NormalizeHandle(expectedHandle))}, nil
	}
	if !strings.Contains(post.Text, expectedCode) {
		return VerifyResult{Reason: "post does not contain the challenge code"}, nil
	}

	v.logger.Debug("Social proof matched", zap.String("handle", proof.Handle), zap.String("post_id", proof.PostID))
	return VerifyResult{Matched: true}, nil
}

// WalletProofMessage is the text a wallet signs to answer a challenge
func WalletProofMessage(address, code string) string {
	return fmt.Sprintf("Capital Creator identity challenge\n\nWallet: %s\nCode: %s", address, code)
}

// WalletSignatureVerifier verifies a challenge answered by a wallet signature
type WalletSignatureVerifier struct {
	parser    ProofLocatorParser
	validator security.Validator
}

// NewWalletSignatureVerifier creates a verifier for wallet proofs
func NewWalletSignatureVerifier(validator security.Validator) *WalletSignatureVerifier {
	return &WalletSignatureVerifier{parser: WalletLocatorParser{}, validator: validator}
}

// VerifyProof implements ProofVerifier
func (v *WalletSignatureVerifier) VerifyProof(ctx context.Context, locator, expectedHandle, expectedCode string) (VerifyResult, error) {
	proof, err := v.parser.Parse(locator)
	if err != nil {
		return VerifyResult{Reason: err.Error()}, nil
	}
	if !SameHandle(proof.Handle, expectedHandle) {
		return VerifyResult{Reason: fmt.Sprintf("signature is for wallet %s, expected %s", proof.Handle, expectedHandle)}, nil
	}

	message := WalletProofMessage(proof.Handle, expectedCode)
	if _, err := v.validator.VerifyMessage(proof.Handle, []byte(message), proof.Signature); err != nil {
		return VerifyResult{Reason: err.Error()}, nil
	}
	return VerifyResult{Matched: true}, nil
}
