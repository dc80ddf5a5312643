package xerrors

import (
	"errors"
	"fmt"
)

// Kind classifies an authentication failure for the UI
type Kind string

const (
	KindNotAuthorized        Kind = "NotAuthorized"
	KindUnconfirmedAccount   Kind = "UnconfirmedAccount"
	KindAccountNotFound      Kind = "AccountNotFound"
	KindAccountAlreadyExists Kind = "AccountAlreadyExists"
	KindWeakCredential       Kind = "WeakCredential"
	KindInvalidInput         Kind = "InvalidInput"
	KindRateLimited          Kind = "RateLimited"
	KindInvalidOrExpiredCode Kind = "InvalidOrExpiredCode"
	KindServiceUnavailable   Kind = "ServiceUnavailable"
	KindIncompleteFlow       Kind = "IncompleteFlow"
	KindUnknown              Kind = "Unknown"
)

// Reason narrows an IncompleteFlow (or an invariant failure) to the next action
type Reason string

const (
	ReasonNone                  Reason = ""
	ReasonConfirmationRequired  Reason = "ConfirmationRequired"
	ReasonUnconfirmedAccount    Reason = "UnconfirmedAccount"
	ReasonPasswordResetRequired Reason = "PasswordResetRequired"
	ReasonNewPasswordRequired   Reason = "NewPasswordRequired"
	ReasonTOTPRequired          Reason = "TOTPRequired"
	ReasonSMSCodeRequired       Reason = "SMSCodeRequired"
	ReasonUnknownStep           Reason = "UnknownStep"
	ReasonNoUserAfterSignIn     Reason = "NoUserAfterSignIn"
)

// AuthError is the normalized {kind, message} pair surfaced to callers.
// Cause keeps the provider error for logs; Message is safe to display.
type AuthError struct {
	Kind    Kind
	Reason  Reason
	Message string
	Cause   error
}

func (e *AuthError) Error() string {
	if e.Reason != ReasonNone {
		return fmt.Sprintf("%s(%s): %s", e.Kind, e.Reason, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AuthError) Unwrap() error {
	return e.Cause
}

// Is matches another AuthError by kind, and by reason when the target has one
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Reason == ReasonNone || t.Reason == e.Reason
}

// Kind sentinels for errors.Is
var (
	ErrNotAuthorized        = &AuthError{Kind: KindNotAuthorized}
	ErrUnconfirmedAccount   = &AuthError{Kind: KindUnconfirmedAccount}
	ErrAccountNotFound      = &AuthError{Kind: KindAccountNotFound}
	ErrAccountAlreadyExists = &AuthError{Kind: KindAccountAlreadyExists}
	ErrWeakCredential       = &AuthError{Kind: KindWeakCredential}
	ErrInvalidAuthInput     = &AuthError{Kind: KindInvalidInput}
	ErrAuthRateLimited      = &AuthError{Kind: KindRateLimited}
	ErrInvalidOrExpiredCode = &AuthError{Kind: KindInvalidOrExpiredCode}
	ErrServiceUnavailable   = &AuthError{Kind: KindServiceUnavailable}
	ErrIncompleteFlow       = &AuthError{Kind: KindIncompleteFlow}
	ErrUnknown              = &AuthError{Kind: KindUnknown}
)

func NewAuthError(kind Kind, message string) *AuthError {
	return &AuthError{Kind: kind, Message: message}
}

// Incomplete builds the distinguishable failure for a sign-in/sign-up that
// stopped at a step the caller has to resolve explicitly.
func Incomplete(reason Reason) *AuthError {
	return &AuthError{
		Kind:    KindIncompleteFlow,
		Reason:  reason,
		Message: incompleteMessages[reason],
	}
}

var incompleteMessages = map[Reason]string{
	ReasonConfirmationRequired:  "Enter the confirmation code we sent you to finish signing up.",
	ReasonUnconfirmedAccount:    "Your account is not confirmed yet. Please enter the confirmation code we sent you.",
	ReasonPasswordResetRequired: "You need to reset your password before signing in.",
	ReasonNewPasswordRequired:   "You need to set a new password to continue.",
	ReasonTOTPRequired:          "Enter the code from your authenticator app to continue.",
	ReasonSMSCodeRequired:       "Enter the code we sent to your phone to continue.",
	ReasonUnknownStep:           "Sign in requires an additional step that is not supported yet.",
}

// NoUserAfterSignIn reports a provider that completed sign-in but has no principal
func NoUserAfterSignIn() *AuthError {
	return &AuthError{
		Kind:    KindUnknown,
		Reason:  ReasonNoUserAfterSignIn,
		Message: "Sign in completed but no user session was found. Please try again.",
	}
}

// InvalidInput reports a malformed parameter caught before the provider is called
func InvalidInput(message string) *AuthError {
	return &AuthError{Kind: KindInvalidInput, Message: message, Cause: ErrInvalidInput}
}

// KindOf returns the kind of err, KindUnknown if it is not an AuthError
func KindOf(err error) Kind {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Kind
	}
	return KindUnknown
}

// ReasonOf returns the reason of err, ReasonNone if it has none
func ReasonOf(err error) Reason {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Reason
	}
	return ReasonNone
}
