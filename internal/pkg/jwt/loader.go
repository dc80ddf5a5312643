// internal/pkg/jwt/loader.go
package jwt

import (
	"crypto/rsa"
	"fmt"
	"time"
)

type Config struct {
	PrivPath string
	PubPath  string
	Issuer   string
	Audience string
	TTL      time.Duration
	KID      string
}

type Manager struct {
	Generator *Generator
	Verifier  *Verifier
}

// LoadAndBuild loads the key pair from PEM files. When no private key path is
// configured an ephemeral key is generated, which is only suitable for the
// in-process provider used in development.
func LoadAndBuild(cfg Config) (*Manager, error) {
	var (
		priv *rsa.PrivateKey
		pub  *rsa.PublicKey
		err  error
	)

	if cfg.PrivPath == "" {
		priv, err = GenerateRSAKey()
		if err != nil {
			return nil, err
		}
		pub = &priv.PublicKey
	} else {
		priv, err = LoadRSAPrivateKeyFromPEM(cfg.PrivPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load private key from %s: %w", cfg.PrivPath, err)
		}

		pub = &priv.PublicKey
		if cfg.PubPath != "" {
			pub, err = LoadRSAPublicKeyFromPEM(cfg.PubPath)
			if err != nil {
				return nil, fmt.Errorf("failed to load public key from %s: %w", cfg.PubPath, err)
			}
		}
	}

	return NewManager(priv, pub, cfg), nil
}

// NewManager builds a generator/verifier pair around an existing key pair
func NewManager(priv *rsa.PrivateKey, pub *rsa.PublicKey, cfg Config) *Manager {
	return &Manager{
		Generator: NewGenerator(priv, cfg.Issuer, cfg.Audience, cfg.KID, cfg.TTL),
		Verifier:  NewVerifier(pub, cfg.Issuer, cfg.Audience),
	}
}

// WithClock makes the generator and verifier share one time source
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.Generator.WithClock(now)
	m.Verifier.WithClock(now)
	return m
}
