// internal/pkg/jwt/generator.go
package jwt

import (
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
)

type Generator struct {
	priv       *rsa.PrivateKey
	issuer     string
	audience   string
	kid        string // key id for rotation
	Ttl        time.Duration
	RefreshTtl time.Duration
	now        func() time.Time
}

func NewGenerator(priv *rsa.PrivateKey, issuer, audience, kid string, ttl time.Duration) *Generator {
	return &Generator{
		priv:       priv,
		issuer:     issuer,
		audience:   audience,
		kid:        kid,
		Ttl:        ttl,
		RefreshTtl: 30 * 24 * time.Hour,
		now:        time.Now,
	}
}

// WithClock overrides the time source, used to mint already-expired tokens in tests
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate creates a signed token for the given subject and purpose
func (g *Generator) Generate(subject, username, email, use string, ttl time.Duration, attrs map[string]string) (string, string, error) {
	if g.priv == nil {
		return "", "", fmt.Errorf("jwt generator has nil private key")
	}

	now := g.now()
	jti := ulid.Make().String()

	claims := &Claims{
		Username:   username,
		Email:      email,
		TokenUse:   use,
		Attributes: attrs,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    g.issuer,
			Subject:   subject,
			Audience:  []string{g.audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        jti,
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if g.kid != "" {
		tok.Header["kid"] = g.kid
	}

	signed, err := tok.SignedString(g.priv)
	return signed, jti, err
}

// GenerateAccessToken generates a standard access token
func (g *Generator) GenerateAccessToken(subject, username string) (string, error) {
	tok, _, err := g.Generate(subject, username, "", UseAccess, g.Ttl, nil)
	return tok, err
}

// GenerateIDToken generates an ID token carrying the user's attributes
func (g *Generator) GenerateIDToken(subject, email string, attrs map[string]string) (string, error) {
	tok, _, err := g.Generate(subject, "", email, UseID, g.Ttl, attrs)
	return tok, err
}

// GenerateRefreshToken generates a refresh token (longer TTL)
func (g *Generator) GenerateRefreshToken(subject string) (string, string, error) {
	// Refresh tokens carry no profile data, they're only for getting new access tokens
	return g.Generate(subject, "", "", UseRefresh, g.RefreshTtl, nil)
}
