package local

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"strings"
	"time"
	"unicode"

	"kalpla-auth/internal/domain/auth"
	xerrors "kalpla-auth/internal/pkg/errors"

	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/bcrypt"
)

type user struct {
	id        string
	username  string
	email     string
	phone     string
	name      string
	picture   string
	hash      []byte
	provider  auth.SignInProvider
	confirmed bool

	mfaEnabled          bool
	mustResetPassword   bool
	newPasswordRequired bool
}

func (u *user) attributes() map[string]string {
	attrs := map[string]string{}
	if u.email != "" {
		attrs[auth.AttrEmail] = u.email
		// social accounts arrive verified
		attrs[auth.AttrEmailVerified] = fmt.Sprint(u.confirmed || u.provider.IsSocial())
	}
	if u.phone != "" {
		attrs[auth.AttrPhoneNumber] = u.phone
	}
	if u.name != "" {
		attrs[auth.AttrName] = u.name
	}
	if u.picture != "" {
		attrs[auth.AttrPicture] = u.picture
	}
	return attrs
}

func (u *user) principal() *auth.Principal {
	return &auth.Principal{
		UserID:     u.id,
		Username:   u.username,
		Provider:   u.provider,
		MFAEnabled: u.mfaEnabled,
		Attributes: u.attributes(),
	}
}

func newUser(username string, provider auth.SignInProvider) *user {
	u := &user{
		id:       ulid.Make().String(),
		username: username,
		provider: provider,
	}
	if isPhone(username) {
		u.phone = username
	} else {
		u.email = username
	}
	return u
}

// normalizeUsername lower-cases emails; phone numbers are kept as given
func normalizeUsername(username string) string {
	username = strings.TrimSpace(username)
	if isPhone(username) {
		return username
	}
	return strings.ToLower(username)
}

func isPhone(username string) bool {
	return strings.HasPrefix(username, "+")
}

// lookupLocked finds a user by username
func (p *Provider) lookupLocked(username string) (*user, error) {
	id, ok := p.usernames[normalizeUsername(username)]
	if !ok {
		return nil, xerrors.NewProviderError(xerrors.CodeUserNotFound, "User does not exist.")
	}
	return p.users[id], nil
}

func (p *Provider) addLocked(u *user) {
	p.users[u.id] = u
	p.usernames[u.username] = u.id
}

// ========== Passwords ==========

const minPasswordLength = 8

// checkPasswordPolicy mirrors the default hosted pool policy: length,
// upper, lower, digit and symbol
func checkPasswordPolicy(password string) error {
	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}

	if len(password) < minPasswordLength || !upper || !lower || !digit || !symbol {
		return xerrors.NewProviderError(xerrors.CodeInvalidPassword, "Password did not conform with policy.")
	}
	return nil
}

func hashPassword(password string) ([]byte, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, xerrors.NewProviderError(xerrors.CodeInternalError, "Failed to store password.")
	}
	return hash, nil
}

func (u *user) passwordMatches(password string) bool {
	if len(u.hash) == 0 {
		return false
	}
	return bcrypt.CompareHashAndPassword(u.hash, []byte(password)) == nil
}

// ========== Verification codes ==========

type verificationCode struct {
	value     string
	expiresAt time.Time
}

func (p *Provider) newCode() (verificationCode, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return verificationCode{}, xerrors.NewProviderError(xerrors.CodeInternalError, "Failed to generate a verification code.")
	}
	return verificationCode{
		value:     fmt.Sprintf("%06d", n.Int64()),
		expiresAt: p.now().Add(p.codeTTL),
	}, nil
}

// check compares the submitted code; an expired code is reported even when
// it matches
func (c verificationCode) check(submitted string, now time.Time) error {
	if c.value == "" {
		return xerrors.NewProviderError(xerrors.CodeExpiredCode, "Invalid code provided, please request a code again.")
	}
	if subtle.ConstantTimeCompare([]byte(c.value), []byte(strings.TrimSpace(submitted))) != 1 {
		return xerrors.NewProviderError(xerrors.CodeCodeMismatch, "Invalid verification code provided, please try again.")
	}
	if !now.Before(c.expiresAt) {
		return xerrors.NewProviderError(xerrors.CodeExpiredCode, "Invalid code provided, please request a code again.")
	}
	return nil
}

func (p *Provider) deliver(purpose CodePurpose, destination string, code verificationCode) {
	if p.sink == nil {
		return
	}
	p.sink(purpose, destination, code.value)
}

// ========== Pool administration ==========

// RequirePasswordReset makes the next sign-in of username stop at the
// reset-password step
func (p *Provider) RequirePasswordReset(username string) error {
	return p.updateUser(username, func(u *user) { u.mustResetPassword = true })
}

// RequireNewPassword makes the next sign-in ask for a new password
func (p *Provider) RequireNewPassword(username string) error {
	return p.updateUser(username, func(u *user) { u.newPasswordRequired = true })
}

// EnableMFA turns on the authenticator challenge for username. Codes are
// delivered through the CodeSink.
func (p *Provider) EnableMFA(username string) error {
	return p.updateUser(username, func(u *user) { u.mfaEnabled = true })
}

func (p *Provider) updateUser(username string, fn func(u *user)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	u, err := p.lookupLocked(username)
	if err != nil {
		return err
	}
	fn(u)
	return nil
}
