package auth

import (
	"context"

	"kalpla-auth/internal/domain/auth"
	xerrors "kalpla-auth/internal/pkg/errors"

	"go.uber.org/zap"
)

// ========== Sign in ==========

// SignInWithEmail signs in with a password. Any step short of completion
// fails with an IncompleteFlow error naming the next action; the cache is
// only populated once the provider reports the sign-in as done.
func (c *Coordinator) SignInWithEmail(ctx context.Context, email, password string, rememberMe bool) (*auth.UserSnapshot, error) {
	if err := c.validateEmail(email); err != nil {
		return nil, err
	}
	if err := c.validateRequired(password, "Password is required."); err != nil {
		return nil, err
	}

	res, err := c.provider.SignIn(ctx, email, password, auth.SignInOptions{RememberDevice: rememberMe})
	if err != nil {
		return nil, c.fail("sign in", err)
	}

	return c.completeSignIn(ctx, res)
}

// ConfirmSignIn answers the challenge of an incomplete sign-in: a TOTP or
// SMS code, or the new password when one is required.
func (c *Coordinator) ConfirmSignIn(ctx context.Context, challengeResponse string) (*auth.UserSnapshot, error) {
	if err := c.validateRequired(challengeResponse, "A verification code or new password is required."); err != nil {
		return nil, err
	}

	res, err := c.provider.ConfirmSignIn(ctx, challengeResponse)
	if err != nil {
		return nil, c.fail("confirm sign in", err)
	}

	return c.completeSignIn(ctx, res)
}

// SignInWithSocial starts the provider-hosted redirect flow. Nothing changes
// locally here; the signed-in lifecycle event completes the sign-in later.
func (c *Coordinator) SignInWithSocial(ctx context.Context, provider auth.SignInProvider) error {
	if !provider.IsSocial() {
		return xerrors.InvalidInput("Unsupported sign-in provider.")
	}

	if err := c.provider.SignInWithRedirect(ctx, provider); err != nil {
		return c.fail("social sign in", err)
	}

	c.logger.Info("social sign-in redirect started", zap.String("provider", string(provider)))
	return nil
}

func (c *Coordinator) completeSignIn(ctx context.Context, res *auth.SignInResult) (*auth.UserSnapshot, error) {
	if res == nil {
		return nil, xerrors.Incomplete(xerrors.ReasonUnknownStep)
	}

	if res.Complete || res.NextStep == auth.StepDone {
		user, err := c.GetCurrentUser(ctx)
		if err != nil {
			return nil, err
		}
		if user == nil {
			return nil, c.fail("sign in", xerrors.NoUserAfterSignIn())
		}
		return user, nil
	}

	return nil, c.fail("sign in", xerrors.Incomplete(signInStepReason(res.NextStep)))
}

func signInStepReason(step auth.NextStep) xerrors.Reason {
	switch step {
	case auth.StepConfirmSignUp:
		return xerrors.ReasonUnconfirmedAccount
	case auth.StepResetPassword:
		return xerrors.ReasonPasswordResetRequired
	case auth.StepNewPasswordRequired:
		return xerrors.ReasonNewPasswordRequired
	case auth.StepConfirmWithTOTPCode:
		return xerrors.ReasonTOTPRequired
	case auth.StepConfirmWithSMSCode:
		return xerrors.ReasonSMSCodeRequired
	default:
		return xerrors.ReasonUnknownStep
	}
}

// ========== Sign up ==========

// SignUpWithEmail registers a new account. A pending confirmation fails
// with IncompleteFlow/ConfirmationRequired so the UI asks for the code next.
func (c *Coordinator) SignUpWithEmail(ctx context.Context, email, password, name string) error {
	if err := c.validateEmail(email); err != nil {
		return err
	}
	if err := c.validateRequired(password, "Password is required."); err != nil {
		return err
	}

	attrs := map[string]string{auth.AttrEmail: email}
	if name != "" {
		attrs[auth.AttrName] = name
	}

	return c.signUp(ctx, email, password, attrs)
}

func (c *Coordinator) signUp(ctx context.Context, username, password string, attrs map[string]string) error {
	res, err := c.provider.SignUp(ctx, username, password, attrs)
	if err != nil {
		return c.fail("sign up", err)
	}
	if res == nil {
		return c.fail("sign up", xerrors.Incomplete(xerrors.ReasonUnknownStep))
	}

	switch {
	case res.Complete, res.NextStep == auth.StepDone, res.NextStep == auth.StepCompleteAutoSignIn:
		c.logger.Info("sign up complete", zap.String("identity_id", res.UserID))
		return nil
	case res.NextStep == auth.StepConfirmSignUp:
		return xerrors.Incomplete(xerrors.ReasonConfirmationRequired)
	default:
		return c.fail("sign up", xerrors.Incomplete(xerrors.ReasonUnknownStep))
	}
}

// ConfirmSignUp submits the code that confirms a new account
func (c *Coordinator) ConfirmSignUp(ctx context.Context, email, code string) error {
	if err := c.validateEmail(email); err != nil {
		return err
	}
	if err := c.validateCode(code); err != nil {
		return err
	}

	if err := c.provider.ConfirmSignUp(ctx, email, code); err != nil {
		return c.fail("confirm sign up", err)
	}
	return nil
}

// ResendConfirmationCode asks the provider to send a fresh sign-up code
func (c *Coordinator) ResendConfirmationCode(ctx context.Context, email string) error {
	if err := c.validateEmail(email); err != nil {
		return err
	}

	if err := c.provider.ResendSignUpCode(ctx, email); err != nil {
		return c.fail("resend confirmation code", err)
	}
	return nil
}

// ========== Password reset ==========

// ForgotPassword starts a password reset; the provider sends a code
func (c *Coordinator) ForgotPassword(ctx context.Context, email string) error {
	if err := c.validateEmail(email); err != nil {
		return err
	}

	if err := c.provider.ResetPassword(ctx, email); err != nil {
		return c.fail("forgot password", err)
	}
	return nil
}

// ResetPassword completes a reset with the emailed code
func (c *Coordinator) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if err := c.validateEmail(email); err != nil {
		return err
	}
	if err := c.validateCode(code); err != nil {
		return err
	}
	if err := c.validateRequired(newPassword, "New password is required."); err != nil {
		return err
	}

	if err := c.provider.ConfirmResetPassword(ctx, email, code, newPassword); err != nil {
		return c.fail("reset password", err)
	}
	return nil
}

// ========== Sign out ==========

// SignOut always clears the local snapshot and tokens, even when the
// provider fails to revoke remotely. The provider error is still returned.
func (c *Coordinator) SignOut(ctx context.Context) error {
	remoteErr := c.provider.SignOut(ctx)

	if c.clearLocal() {
		c.notify(nil)
	}

	if remoteErr != nil {
		return c.fail("sign out", remoteErr)
	}
	return nil
}
