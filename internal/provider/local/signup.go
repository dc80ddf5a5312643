package local

import (
	"context"

	"kalpla-auth/internal/domain/auth"
	xerrors "kalpla-auth/internal/pkg/errors"
	"kalpla-auth/internal/pkg/ratelimit"

	"go.uber.org/zap"
)

// SignUp registers an unconfirmed account and sends a confirmation code to
// the username (email or phone).
func (p *Provider) SignUp(ctx context.Context, username, password string, attrs map[string]string) (*auth.SignUpResult, error) {
	username = normalizeUsername(username)
	if username == "" {
		return nil, xerrors.NewProviderError(xerrors.CodeInvalidParameter, "Username cannot be empty.")
	}
	if err := checkPasswordPolicy(password); err != nil {
		return nil, err
	}

	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}
	code, err := p.newCode()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	if _, err := p.lookupLocked(username); err == nil {
		p.mu.Unlock()
		return nil, xerrors.NewProviderError(xerrors.CodeUsernameExists, "An account with the given username already exists.")
	}

	u := newUser(username, auth.ProviderEmail)
	u.hash = hash
	u.name = attrs[auth.AttrName]
	if phone := attrs[auth.AttrPhoneNumber]; phone != "" {
		u.phone = phone
	}
	p.addLocked(u)
	p.signUp[u.id] = code
	p.mu.Unlock()

	p.logger.Info("user signed up", zap.String("user_id", u.id))
	p.deliver(CodeSignUp, username, code)

	return &auth.SignUpResult{NextStep: auth.StepConfirmSignUp, UserID: u.id}, nil
}

// ConfirmSignUp confirms an account with the code sent by SignUp
func (p *Provider) ConfirmSignUp(ctx context.Context, username, code string) error {
	username = normalizeUsername(username)
	if err := p.allow(ctx, "confirm_sign_up", username, ratelimit.CodeRule); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	u, err := p.lookupLocked(username)
	if err != nil {
		return err
	}
	if u.confirmed {
		return xerrors.NewProviderError(xerrors.CodeNotAuthorized, "User cannot be confirmed. Current status is CONFIRMED.")
	}
	if err := p.signUp[u.id].check(code, p.now()); err != nil {
		return err
	}

	u.confirmed = true
	delete(p.signUp, u.id)
	return nil
}

// ResendSignUpCode issues a new confirmation code, invalidating the old one
func (p *Provider) ResendSignUpCode(ctx context.Context, username string) error {
	username = normalizeUsername(username)
	code, err := p.newCode()
	if err != nil {
		return err
	}

	p.mu.Lock()
	u, err := p.lookupLocked(username)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	if u.confirmed {
		p.mu.Unlock()
		return xerrors.NewProviderError(xerrors.CodeInvalidParameter, "User is already confirmed.")
	}
	p.signUp[u.id] = code
	p.mu.Unlock()

	p.deliver(CodeSignUp, username, code)
	return nil
}

// ========== Password reset ==========

// ResetPassword sends a reset code to the account
func (p *Provider) ResetPassword(ctx context.Context, username string) error {
	username = normalizeUsername(username)
	if err := p.allow(ctx, "password_reset", username, ratelimit.PasswordResetRule); err != nil {
		return err
	}
	code, err := p.newCode()
	if err != nil {
		return err
	}

	p.mu.Lock()
	u, err := p.lookupLocked(username)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	p.reset[u.id] = code
	p.mu.Unlock()

	p.deliver(CodePasswordReset, username, code)
	return nil
}

// ConfirmResetPassword sets a new password using the reset code
func (p *Provider) ConfirmResetPassword(ctx context.Context, username, code, newPassword string) error {
	username = normalizeUsername(username)
	if err := p.allow(ctx, "confirm_reset", username, ratelimit.CodeRule); err != nil {
		return err
	}
	if err := checkPasswordPolicy(newPassword); err != nil {
		return err
	}

	p.mu.Lock()
	u, err := p.lookupLocked(username)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	if err := p.reset[u.id].check(code, p.now()); err != nil {
		p.mu.Unlock()
		return err
	}
	p.mu.Unlock()

	hash, err := hashPassword(newPassword)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	u.hash = hash
	u.mustResetPassword = false
	// a reset proves control of the username
	u.confirmed = true
	delete(p.reset, u.id)
	return nil
}
