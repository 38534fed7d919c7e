package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/storyforge/shield/internal/logging"
	"github.com/storyforge/shield/internal/retry"
)

// jwk is one published signing key. Only RSA keys are usable here; the
// verifier rejects everything else.
type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use,omitempty"`
	Alg string `json:"alg,omitempty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwksDocument struct {
	Keys []jwk `json:"keys"`
}

// JWKSClient fetches the identity provider's published key set.
type JWKSClient struct {
	url        string
	httpClient *http.Client
	logger     *logging.Logger
	retry      retry.Policy
}

// JWKSOption configures the JWKS client.
type JWKSOption func(*JWKSClient)

// WithHTTPClient sets a custom HTTP client (for testing).
func WithHTTPClient(client *http.Client) JWKSOption {
	return func(c *JWKSClient) {
		c.httpClient = client
	}
}

// NewJWKSClient creates a client for the given published-keys endpoint.
func NewJWKSClient(url string, logger *logging.Logger, opts ...JWKSOption) *JWKSClient {
	c := &JWKSClient{
		url:        url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		retry:      retry.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchKeys retrieves and parses the full key set. Non-RSA keys are
// skipped.
func (c *JWKSClient) FetchKeys(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	var body []byte
	err := retry.Do(ctx, c.retry, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
		if err != nil {
			return err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("jwks fetch: temporary failure: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("jwks fetch: unexpected status %d: service unavailable", resp.StatusCode)
		}
		body, err = io.ReadAll(resp.Body)
		return err
	})
	if err != nil {
		return nil, err
	}

	var doc jwksDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("jwks parse: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, key := range doc.Keys {
		if key.Kty != "RSA" || key.Kid == "" {
			continue
		}
		pub, err := key.toRSA()
		if err != nil {
			c.logger.Warn("skipping unparsable JWK %s: %v", key.Kid, err)
			continue
		}
		keys[key.Kid] = pub
	}
	return keys, nil
}

func (k jwk) toRSA() (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("invalid modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("invalid exponent: %w", err)
	}

	e := new(big.Int).SetBytes(eBytes)
	if !e.IsInt64() || e.Int64() <= 0 {
		return nil, fmt.Errorf("exponent out of range")
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(e.Int64()),
	}, nil
}
