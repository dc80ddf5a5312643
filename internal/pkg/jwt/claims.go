// internal/pkg/jwt/claims.go
package jwt

import (
	"github.com/golang-jwt/jwt/v5"
)

// Token uses, mirroring the token_use claim of hosted identity providers
const (
	UseAccess  = "access"
	UseID      = "id"
	UseRefresh = "refresh"
)

// Claims represents the claims carried by provider-issued tokens
type Claims struct {
	Username   string            `json:"username,omitempty"`
	Email      string            `json:"email,omitempty"`
	TokenUse   string            `json:"token_use"`
	Attributes map[string]string `json:"attributes,omitempty"`
	jwt.RegisteredClaims
}

// VerifyAudience checks if the expected audience is listed in the claims.
func (c *Claims) VerifyAudience(audience string, required bool) bool {
	if len(c.Audience) == 0 {
		// If audience is required but missing
		return !required
	}

	for _, aud := range c.Audience {
		if aud == audience {
			return true
		}
	}

	return false
}
