package local

import (
	"context"

	"kalpla-auth/internal/domain/auth"
	evtypes "kalpla-auth/internal/domain/events"
	xerrors "kalpla-auth/internal/pkg/errors"
	"kalpla-auth/internal/pkg/ratelimit"

	"go.uber.org/zap"
)

// SignIn authenticates username. Phone accounts sign in without a password
// and always receive an SMS challenge. Email accounts may stop at a reset,
// new-password or authenticator step; the session starts only when no step
// is left.
func (p *Provider) SignIn(ctx context.Context, username, password string, opts auth.SignInOptions) (*auth.SignInResult, error) {
	username = normalizeUsername(username)
	if err := p.allow(ctx, "sign_in", username, ratelimit.SignInRule); err != nil {
		return nil, err
	}

	p.mu.Lock()
	u, err := p.lookupLocked(username)
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}

	if !u.confirmed {
		p.mu.Unlock()
		return &auth.SignInResult{NextStep: auth.StepConfirmSignUp}, nil
	}

	passwordless := password == "" && isPhone(u.username)
	if !passwordless && !u.passwordMatches(password) {
		p.mu.Unlock()
		return nil, xerrors.NewProviderError(xerrors.CodeNotAuthorized, "Incorrect username or password.")
	}

	var step auth.NextStep
	switch {
	case passwordless:
		step = auth.StepConfirmWithSMSCode
	case u.mustResetPassword:
		p.mu.Unlock()
		return &auth.SignInResult{NextStep: auth.StepResetPassword}, nil
	case u.newPasswordRequired:
		step = auth.StepNewPasswordRequired
	case u.mfaEnabled:
		step = auth.StepConfirmWithTOTPCode
	}

	if step != "" {
		res, code, err := p.challengeLocked(u, step, opts.RememberDevice)
		p.mu.Unlock()
		if err != nil {
			return nil, err
		}
		if code.value != "" {
			p.deliver(CodeSignIn, u.username, code)
		}
		return res, nil
	}

	err = p.startSessionLocked(u, opts.RememberDevice)
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}

	p.signedIn(ctx, u.id, auth.ProviderEmail)
	p.resetAttempts(ctx, "sign_in", username)
	return &auth.SignInResult{Complete: true, NextStep: auth.StepDone}, nil
}

func (p *Provider) challengeLocked(u *user, step auth.NextStep, remember bool) (*auth.SignInResult, verificationCode, error) {
	c := &challenge{userID: u.id, step: step, remember: remember}

	if step != auth.StepNewPasswordRequired {
		code, err := p.newCode()
		if err != nil {
			return nil, verificationCode{}, err
		}
		c.code = code
	}

	p.pending = c
	return &auth.SignInResult{NextStep: step}, c.code, nil
}

// ConfirmSignIn answers the pending challenge: the code for SMS and
// authenticator steps, the new password for the new-password step
func (p *Provider) ConfirmSignIn(ctx context.Context, challengeResponse string) (*auth.SignInResult, error) {
	p.mu.Lock()
	c := p.pending
	p.mu.Unlock()

	if c == nil {
		return nil, xerrors.NewProviderError(xerrors.CodeNotAuthorized, "There is no sign-in in progress.")
	}
	if err := p.allow(ctx, "confirm_sign_in", c.userID, ratelimit.CodeRule); err != nil {
		return nil, err
	}

	var hash []byte
	if c.step == auth.StepNewPasswordRequired {
		if err := checkPasswordPolicy(challengeResponse); err != nil {
			return nil, err
		}
		var err error
		if hash, err = hashPassword(challengeResponse); err != nil {
			return nil, err
		}
	}

	p.mu.Lock()
	if p.pending != c {
		p.mu.Unlock()
		return nil, xerrors.NewProviderError(xerrors.CodeNotAuthorized, "The sign-in session has expired.")
	}
	u, ok := p.users[c.userID]
	if !ok {
		p.pending = nil
		p.mu.Unlock()
		return nil, xerrors.NewProviderError(xerrors.CodeUserNotFound, "User does not exist.")
	}

	if hash != nil {
		u.hash = hash
		u.newPasswordRequired = false
	} else if err := c.code.check(challengeResponse, p.now()); err != nil {
		p.mu.Unlock()
		return nil, err
	}

	// a new password may still be followed by the authenticator step
	if c.step == auth.StepNewPasswordRequired && u.mfaEnabled {
		res, code, err := p.challengeLocked(u, auth.StepConfirmWithTOTPCode, c.remember)
		p.mu.Unlock()
		if err != nil {
			return nil, err
		}
		p.deliver(CodeSignIn, u.username, code)
		return res, nil
	}

	err := p.startSessionLocked(u, c.remember)
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}

	p.signedIn(ctx, u.id, u.provider)
	p.resetAttempts(ctx, "confirm_sign_in", u.id)
	return &auth.SignInResult{Complete: true, NextStep: auth.StepDone}, nil
}

// ========== Social sign-in ==========

// SignInWithRedirect records the pending social provider. The hosted page
// is simulated by CompleteRedirect.
func (p *Provider) SignInWithRedirect(ctx context.Context, provider auth.SignInProvider) error {
	if !provider.IsSocial() {
		return xerrors.NewProviderError(xerrors.CodeInvalidParameter, "Unsupported identity provider.")
	}

	p.mu.Lock()
	p.redirectTo = provider
	p.mu.Unlock()

	p.logger.Info("redirecting to identity provider", zap.String("provider", string(provider)))
	return nil
}

// CompleteRedirect finishes a social sign-in started by SignInWithRedirect,
// creating the federated account on first use, and emits signedIn.
func (p *Provider) CompleteRedirect(ctx context.Context, email, name, picture string) error {
	email = normalizeUsername(email)
	if email == "" {
		return xerrors.NewProviderError(xerrors.CodeInvalidParameter, "The identity provider returned no email.")
	}

	p.mu.Lock()
	provider := p.redirectTo
	if provider == "" {
		p.mu.Unlock()
		return xerrors.NewProviderError(xerrors.CodeNotAuthorized, "No social sign-in is in progress.")
	}
	p.redirectTo = ""

	u, err := p.lookupLocked(email)
	if err != nil {
		u = newUser(email, provider)
		u.confirmed = true
		p.addLocked(u)
	}
	if name != "" {
		u.name = name
	}
	if picture != "" {
		u.picture = picture
	}

	err = p.startSessionLocked(u, true)
	p.mu.Unlock()
	if err != nil {
		return err
	}

	p.signedIn(ctx, u.id, provider)
	return nil
}

func (p *Provider) signedIn(ctx context.Context, userID string, provider auth.SignInProvider) {
	p.logger.Info("user signed in", zap.String("user_id", userID), zap.String("provider", string(provider)))
	p.publish(ctx, evtypes.EventSignedIn, map[string]interface{}{
		"userId":   userID,
		"provider": string(provider),
	})
}
