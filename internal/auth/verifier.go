package auth

import (
	"context"
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	shielderrors "github.com/storyforge/shield/internal/errors"
	"github.com/storyforge/shield/internal/logging"
)

// asymmetricAlgs are the only accepted signing algorithms. Symmetric
// and "none" algorithms are rejected outright regardless of what the
// token header claims.
var asymmetricAlgs = []string{"RS256", "RS384", "RS512"}

// TokenClaims are the verified claims of a token. Immutable once built;
// never cached.
type TokenClaims struct {
	Subject  string
	Issuer   string
	Audience string
	Expiry   time.Time
	Custom   map[string]interface{}
}

// VerificationResult is the outcome of a token verification. The
// internal reason is diagnostic only: it must never be echoed across a
// trust boundary.
type VerificationResult struct {
	Valid  bool
	Claims *TokenClaims
	reason string
}

// InternalReason returns the diagnostic failure reason for logging.
func (r VerificationResult) InternalReason() string {
	return r.reason
}

// Err returns the failure as a TokenInvalidError, or nil when valid.
func (r VerificationResult) Err() error {
	if r.Valid {
		return nil
	}
	return shielderrors.TokenInvalidError{Reason: r.reason}
}

// Verifier validates signed tokens against the identity provider.
type Verifier struct {
	issuer   string
	audience string
	jwks     *JWKSClient
	cache    *KeyCache
	parser   *jwt.Parser
	logger   *logging.Logger
}

// NewVerifier creates a verifier for the expected issuer and audience.
func NewVerifier(issuer, audience string, jwks *JWKSClient, cache *KeyCache, logger *logging.Logger) *Verifier {
	return &Verifier{
		issuer:   issuer,
		audience: audience,
		jwks:     jwks,
		cache:    cache,
		parser: jwt.NewParser(
			jwt.WithValidMethods(asymmetricAlgs),
			jwt.WithIssuer(issuer),
			jwt.WithAudience(audience),
			jwt.WithExpirationRequired(),
		),
		logger: logger,
	}
}

// ValidateToken verifies the token signature and standard claims. Every
// failure path returns Valid=false with an internal diagnostic; callers
// across the trust boundary receive only a generic unauthorized signal.
func (v *Verifier) ValidateToken(ctx context.Context, tokenString string) VerificationResult {
	kid, err := v.extractKeyID(tokenString)
	if err != nil {
		return v.fail("malformed token header: %v", err)
	}

	key, err := v.resolveKey(ctx, kid)
	if err != nil {
		return v.fail("unable to resolve signing key %s: %v", kid, err)
	}

	claims := jwt.MapClaims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		headerKid, _ := t.Header["kid"].(string)
		if headerKid != kid {
			return nil, fmt.Errorf("key id mismatch")
		}
		return key, nil
	})
	if err != nil {
		return v.fail("token verification failed: %v", err)
	}
	if !token.Valid {
		return v.fail("token claims invalid")
	}

	verified, err := buildClaims(claims)
	if err != nil {
		return v.fail("token claims malformed: %v", err)
	}
	return VerificationResult{Valid: true, Claims: verified}
}

// extractKeyID reads the key identifier from the unverified header.
func (v *Verifier) extractKeyID(tokenString string) (string, error) {
	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return "", err
	}
	kid, ok := token.Header["kid"].(string)
	if !ok || kid == "" {
		return "", fmt.Errorf("missing kid")
	}
	return kid, nil
}

// resolveKey consults the bounded key cache, refreshing from the
// provider's published key set on a miss.
func (v *Verifier) resolveKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if key, ok := v.cache.Get(kid); ok {
		return key, nil
	}

	keys, err := v.jwks.FetchKeys(ctx)
	if err != nil {
		return nil, err
	}
	for id, key := range keys {
		v.cache.Put(id, key)
	}

	key, ok := v.cache.Get(kid)
	if !ok {
		return nil, fmt.Errorf("unknown key id")
	}
	return key, nil
}

func (v *Verifier) fail(format string, args ...interface{}) VerificationResult {
	reason := fmt.Sprintf(format, args...)
	v.logger.Debug("token rejected: %s", reason)
	return VerificationResult{Valid: false, reason: reason}
}

func buildClaims(claims jwt.MapClaims) (*TokenClaims, error) {
	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return nil, fmt.Errorf("missing subject")
	}
	issuer, err := claims.GetIssuer()
	if err != nil {
		return nil, err
	}
	audiences, err := claims.GetAudience()
	if err != nil {
		return nil, err
	}
	audience := ""
	if len(audiences) > 0 {
		audience = audiences[0]
	}
	expiry, err := claims.GetExpirationTime()
	if err != nil || expiry == nil {
		return nil, fmt.Errorf("missing expiry")
	}

	custom := make(map[string]interface{})
	for name, value := range claims {
		switch name {
		case "sub", "iss", "aud", "exp", "iat", "nbf", "jti":
		default:
			custom[name] = value
		}
	}

	return &TokenClaims{
		Subject:  subject,
		Issuer:   issuer,
		Audience: audience,
		Expiry:   expiry.Time,
		Custom:   custom,
	}, nil
}
