package jwt

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ExpiryFromToken reads the exp claim of a token without verifying its
// signature. The coordinator only needs to know when the provider considers
// the token stale; verification is the provider's job.
func ExpiryFromToken(tokenString string) (int64, error) {
	if tokenString == "" {
		return 0, fmt.Errorf("empty token")
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return 0, fmt.Errorf("failed to parse token: %w", err)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return 0, fmt.Errorf("invalid exp claim: %w", err)
	}
	if exp == nil {
		return 0, fmt.Errorf("token has no exp claim")
	}

	return exp.Unix(), nil
}
