package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"

	"kalpla-auth/internal/domain/auth"
	xerrors "kalpla-auth/internal/pkg/errors"
)

// SignInWithPhone starts a passwordless phone sign-in. The provider normally
// answers with an SMS challenge, surfaced as IncompleteFlow/SMSCodeRequired;
// ConfirmSignIn finishes it.
func (c *Coordinator) SignInWithPhone(ctx context.Context, phone string) (*auth.UserSnapshot, error) {
	if err := c.validatePhone(phone); err != nil {
		return nil, err
	}

	res, err := c.provider.SignIn(ctx, phone, "", auth.SignInOptions{})
	if err != nil {
		return nil, c.fail("phone sign in", err)
	}

	return c.completeSignIn(ctx, res)
}

// SignUpWithPhone registers a phone-only account.
//
// The provider still requires a password on sign-up, so a random one that is
// never shown or stored is sent along. It is a compatibility shim for the
// provider API and protects nothing: the account is only ever reached
// through SMS codes.
func (c *Coordinator) SignUpWithPhone(ctx context.Context, phone, name string) error {
	if err := c.validatePhone(phone); err != nil {
		return err
	}

	password, err := throwawayPassword()
	if err != nil {
		return c.fail("phone sign up", err)
	}

	attrs := map[string]string{auth.AttrPhoneNumber: phone}
	if name != "" {
		attrs[auth.AttrName] = name
	}

	return c.signUp(ctx, phone, password, attrs)
}

// ConfirmPhoneSignUp submits the SMS code that confirms a phone account
func (c *Coordinator) ConfirmPhoneSignUp(ctx context.Context, phone, code string) error {
	if err := c.validatePhone(phone); err != nil {
		return err
	}
	if err := c.validateCode(code); err != nil {
		return err
	}

	if err := c.provider.ConfirmSignUp(ctx, phone, code); err != nil {
		return c.fail("confirm phone sign up", err)
	}
	return nil
}

func (c *Coordinator) ResendPhoneConfirmationCode(ctx context.Context, phone string) error {
	if err := c.validatePhone(phone); err != nil {
		return err
	}

	if err := c.provider.ResendSignUpCode(ctx, phone); err != nil {
		return c.fail("resend phone confirmation code", err)
	}
	return nil
}

// throwawayPassword satisfies the usual upper/lower/digit/symbol policy
func throwawayPassword() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", xerrors.Wrap(err, "generate sign-up password")
	}
	return base64.RawURLEncoding.EncodeToString(b) + "Aa1!", nil
}
