package xerrors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_KnownCodes(t *testing.T) {
	tests := []struct {
		code string
		kind Kind
	}{
		{CodeNotAuthorized, KindNotAuthorized},
		{CodeUserNotConfirmed, KindUnconfirmedAccount},
		{CodeUserNotFound, KindAccountNotFound},
		{CodeUsernameExists, KindAccountAlreadyExists},
		{CodeInvalidPassword, KindWeakCredential},
		{CodeInvalidParameter, KindInvalidInput},
		{CodeTooManyRequests, KindRateLimited},
		{CodeLimitExceeded, KindRateLimited},
		{CodeCodeMismatch, KindInvalidOrExpiredCode},
		{CodeExpiredCode, KindInvalidOrExpiredCode},
		{CodeUserPoolConfig, KindServiceUnavailable},
		{CodeInternalError, KindServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			raw := NewProviderError(tt.code, "raw provider text")
			got := Normalize(fmt.Errorf("sign in: %w", raw))

			require.NotNil(t, got)
			assert.Equal(t, tt.kind, got.Kind)
			assert.NotEmpty(t, got.Message)
			assert.NotContains(t, got.Message, tt.code)
			assert.True(t, errors.Is(got, raw))
		})
	}
}

func TestNormalize_UnknownCodePassesMessageThrough(t *testing.T) {
	got := Normalize(NewProviderError("SomethingNewException", "exactly this"))
	assert.Equal(t, KindUnknown, got.Kind)
	assert.Equal(t, "exactly this", got.Message)
}

func TestNormalize_InternalErrorsAreNotDisplayed(t *testing.T) {
	raw := fmt.Errorf("failed to query roles: %w", errors.New("dial tcp 10.0.0.5:6379: connect: connection refused"))

	got := Normalize(raw)
	assert.Equal(t, KindUnknown, got.Kind)
	assert.Equal(t, GenericMessage, got.Message)
	assert.NotContains(t, got.Message, "10.0.0.5")
	assert.ErrorIs(t, got, raw)
	assert.Same(t, raw, errors.Unwrap(got))
}

func TestNormalize_PassThroughAndNil(t *testing.T) {
	assert.Nil(t, Normalize(nil))

	in := Incomplete(ReasonTOTPRequired)
	assert.Same(t, in, Normalize(in))

	plain := Normalize(errors.New("boom"))
	assert.Equal(t, KindUnknown, plain.Kind)
	assert.Equal(t, GenericMessage, plain.Message)

	cancelled := Normalize(context.Canceled)
	assert.Equal(t, KindServiceUnavailable, cancelled.Kind)
}

func TestAuthError_Is(t *testing.T) {
	err := error(Incomplete(ReasonNewPasswordRequired))

	assert.True(t, errors.Is(err, ErrIncompleteFlow))
	assert.True(t, errors.Is(err, Incomplete(ReasonNewPasswordRequired)))
	assert.False(t, errors.Is(err, Incomplete(ReasonTOTPRequired)))
	assert.False(t, errors.Is(err, ErrNotAuthorized))

	assert.Equal(t, KindIncompleteFlow, KindOf(err))
	assert.Equal(t, ReasonNewPasswordRequired, ReasonOf(err))
	assert.Equal(t, KindUnknown, KindOf(errors.New("x")))
}

func TestMessageOrDefault(t *testing.T) {
	assert.Equal(t, "fallback", MessageOrDefault(nil, "fallback"))
	assert.Equal(t, "Incorrect email or password.",
		MessageOrDefault(Normalize(NewProviderError(CodeNotAuthorized, "")), "fallback"))
	assert.Equal(t, "plain", MessageOrDefault(errors.New("plain"), "fallback"))
}
