package xerrors

import (
	"context"
	"errors"
	"fmt"
)

// Identity provider error identifiers this package knows how to map
const (
	CodeNotAuthorized         = "NotAuthorizedException"
	CodeUserNotConfirmed      = "UserNotConfirmedException"
	CodeUserNotFound          = "UserNotFoundException"
	CodeUsernameExists        = "UsernameExistsException"
	CodeAliasExists           = "AliasExistsException"
	CodeInvalidPassword       = "InvalidPasswordException"
	CodeInvalidParameter      = "InvalidParameterException"
	CodeTooManyRequests       = "TooManyRequestsException"
	CodeLimitExceeded         = "LimitExceededException"
	CodeTooManyFailedAttempts = "TooManyFailedAttemptsException"
	CodeCodeMismatch          = "CodeMismatchException"
	CodeExpiredCode           = "ExpiredCodeException"
	CodeUserPoolConfig        = "UserPoolConfigException"
	CodeResourceNotFound      = "ResourceNotFoundException"
	CodeInternalError         = "InternalErrorException"
	CodeNetworkError          = "NetworkError"
)

// ProviderError is an error as reported by the identity provider client
type ProviderError struct {
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewProviderError(code, message string) *ProviderError {
	return &ProviderError{Code: code, Message: message}
}

type mapping struct {
	kind    Kind
	message string
}

var providerCodes = map[string]mapping{
	CodeNotAuthorized:         {KindNotAuthorized, "Incorrect email or password."},
	CodeUserNotConfirmed:      {KindUnconfirmedAccount, "Please confirm your account before signing in."},
	CodeUserNotFound:          {KindAccountNotFound, "No account found with this email address."},
	CodeUsernameExists:        {KindAccountAlreadyExists, "An account with this email already exists."},
	CodeAliasExists:           {KindAccountAlreadyExists, "An account with this email or phone number already exists."},
	CodeInvalidPassword:       {KindWeakCredential, "Password does not meet the requirements. It must be at least 8 characters and include uppercase, lowercase, numbers and symbols."},
	CodeInvalidParameter:      {KindInvalidInput, "Invalid input. Please check your details and try again."},
	CodeTooManyRequests:       {KindRateLimited, "Too many requests. Please wait a moment and try again."},
	CodeLimitExceeded:         {KindRateLimited, "Attempt limit exceeded. Please try again later."},
	CodeTooManyFailedAttempts: {KindRateLimited, "Too many failed attempts. Please try again later."},
	CodeCodeMismatch:          {KindInvalidOrExpiredCode, "Invalid verification code. Please try again."},
	CodeExpiredCode:           {KindInvalidOrExpiredCode, "Verification code has expired. Please request a new one."},
	CodeUserPoolConfig:        {KindServiceUnavailable, "Authentication is not configured correctly. Please contact support."},
	CodeResourceNotFound:      {KindServiceUnavailable, "Authentication service is not available. Please contact support."},
	CodeInternalError:         {KindServiceUnavailable, "Authentication service is temporarily unavailable. Please try again later."},
	CodeNetworkError:          {KindServiceUnavailable, "Unable to reach the authentication service. Check your connection and try again."},
}

// GenericMessage is shown for failures that carry no displayable message
const GenericMessage = "Something went wrong. Please try again."

// Normalize converts any error coming out of the identity provider into an
// AuthError. Errors that are already normalized pass through unchanged;
// unmapped provider codes become KindUnknown with the provider message verbatim.
// Anything else gets GenericMessage and keeps the original only as Cause.
func Normalize(err error) *AuthError {
	if err == nil {
		return nil
	}

	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &AuthError{
			Kind:    KindServiceUnavailable,
			Message: "The request was cancelled before the authentication service responded.",
			Cause:   err,
		}
	}

	var provErr *ProviderError
	if errors.As(err, &provErr) {
		if m, ok := providerCodes[provErr.Code]; ok {
			return &AuthError{Kind: m.kind, Message: m.message, Cause: err}
		}
		return &AuthError{Kind: KindUnknown, Message: provErr.Message, Cause: err}
	}

	return &AuthError{Kind: KindUnknown, Message: GenericMessage, Cause: err}
}
