package auth

import (
	"context"
	"testing"
	"time"

	"kalpla-auth/internal/domain/auth"
	"kalpla-auth/internal/events"
	xerrors "kalpla-auth/internal/pkg/errors"
	"kalpla-auth/internal/pkg/jwt"
	"kalpla-auth/internal/provider/local"
	"kalpla-auth/internal/repository/memory"
	"kalpla-auth/internal/service/role"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type localFlow struct {
	c     *Coordinator
	p     *local.Provider
	codes map[string]string
	now   time.Time
}

func newLocalFlow(t *testing.T) *localFlow {
	t.Helper()

	tokens, err := jwt.LoadAndBuild(jwt.Config{Issuer: "kalpla-test", Audience: "kalpla-web", TTL: time.Hour})
	require.NoError(t, err)

	f := &localFlow{codes: map[string]string{}, now: time.Now()}
	clock := func() time.Time { return f.now }

	hub := events.NewHub(nil)
	f.p = local.New(tokens, hub, nil,
		local.WithClock(clock),
		local.WithCodeSink(func(purpose local.CodePurpose, destination, code string) {
			f.codes[destination] = code
		}),
	)
	f.c = NewCoordinator(f.p, hub, role.NewResolver(memory.NewRoleCache(), "", nil), nil, WithClock(clock))
	t.Cleanup(f.c.Close)

	return f
}

func TestLocalFlow_AdminSignUpAndSignIn(t *testing.T) {
	ctx := context.Background()
	f := newLocalFlow(t)

	var got []*auth.UserSnapshot
	f.c.AddAuthListener(func(u *auth.UserSnapshot) { got = append(got, u) })

	err := f.c.SignUpWithEmail(ctx, "admin@kalpla.com", "Adm1n!Pass", "")
	require.Equal(t, xerrors.ReasonConfirmationRequired, xerrors.ReasonOf(err))

	_, err = f.c.SignInWithEmail(ctx, "admin@kalpla.com", "Adm1n!Pass", false)
	assert.Equal(t, xerrors.ReasonUnconfirmedAccount, xerrors.ReasonOf(err))

	err = f.c.ConfirmSignUp(ctx, "admin@kalpla.com", "000000x")
	assert.ErrorIs(t, err, xerrors.ErrInvalidOrExpiredCode)
	require.NoError(t, f.c.ConfirmSignUp(ctx, "admin@kalpla.com", f.codes["admin@kalpla.com"]))

	user, err := f.c.SignInWithEmail(ctx, "admin@kalpla.com", "Adm1n!Pass", false)
	require.NoError(t, err)

	assert.Equal(t, "admin@kalpla.com", user.Email)
	assert.Equal(t, "admin", user.Name)
	assert.Equal(t, auth.RoleAdmin, user.Role)
	assert.Equal(t, auth.MembershipAdmin, user.MembershipType)
	assert.Equal(t, auth.SubscriptionActive, user.SubscriptionStatus)
	assert.True(t, user.IsEmailVerified)
	assert.True(t, f.c.IsSessionValid())

	// The signedIn event from the provider is the only notification.
	require.Len(t, got, 1)
	assert.Equal(t, user.ID, got[0].ID)

	require.NoError(t, f.c.SignOut(ctx))
	assert.Nil(t, f.c.GetCurrentUserSync())
	assert.False(t, f.c.IsSessionValid())
	require.Len(t, got, 2)
	assert.Nil(t, got[1])
}

func TestLocalFlow_WrongPassword(t *testing.T) {
	ctx := context.Background()
	f := newLocalFlow(t)

	_, err := f.c.SignInWithEmail(ctx, "ghost@kalpla.com", "Adm1n!Pass", false)
	assert.ErrorIs(t, err, xerrors.ErrAccountNotFound)

	_ = f.c.SignUpWithEmail(ctx, "student@kalpla.com", "Stud3nt!Pass", "Student")
	require.NoError(t, f.c.ConfirmSignUp(ctx, "student@kalpla.com", f.codes["student@kalpla.com"]))

	_, err = f.c.SignInWithEmail(ctx, "student@kalpla.com", "nope", false)
	assert.ErrorIs(t, err, xerrors.ErrNotAuthorized)
	assert.Nil(t, f.c.GetCurrentUserSync())

	err = f.c.SignUpWithEmail(ctx, "student@kalpla.com", "Stud3nt!Pass", "")
	assert.ErrorIs(t, err, xerrors.ErrAccountAlreadyExists)

	err = f.c.SignUpWithEmail(ctx, "weak@kalpla.com", "weak", "")
	assert.ErrorIs(t, err, xerrors.ErrWeakCredential)
}

func TestLocalFlow_PhoneSignUpAndSMSSignIn(t *testing.T) {
	ctx := context.Background()
	f := newLocalFlow(t)
	phone := "+15555550123"

	err := f.c.SignUpWithPhone(ctx, phone, "Phone Student")
	require.Equal(t, xerrors.ReasonConfirmationRequired, xerrors.ReasonOf(err))
	require.NoError(t, f.c.ResendPhoneConfirmationCode(ctx, phone))
	require.NoError(t, f.c.ConfirmPhoneSignUp(ctx, phone, f.codes[phone]))

	_, err = f.c.SignInWithPhone(ctx, phone)
	require.Equal(t, xerrors.ReasonSMSCodeRequired, xerrors.ReasonOf(err))

	user, err := f.c.ConfirmSignIn(ctx, f.codes[phone])
	require.NoError(t, err)
	assert.Equal(t, phone, user.PhoneNumber)
	assert.Equal(t, "Phone Student", user.Name)
	assert.Equal(t, auth.RoleStudent, user.Role)
}

func TestLocalFlow_ForgotAndResetPassword(t *testing.T) {
	ctx := context.Background()
	f := newLocalFlow(t)
	email := "premium@kalpla.com"

	_ = f.c.SignUpWithEmail(ctx, email, "Prem1um!Pass", "")
	require.NoError(t, f.c.ConfirmSignUp(ctx, email, f.codes[email]))
	require.NoError(t, f.p.RequirePasswordReset(email))

	_, err := f.c.SignInWithEmail(ctx, email, "Prem1um!Pass", false)
	require.Equal(t, xerrors.ReasonPasswordResetRequired, xerrors.ReasonOf(err))

	require.NoError(t, f.c.ForgotPassword(ctx, email))
	require.NoError(t, f.c.ResetPassword(ctx, email, f.codes[email], "N3w!Premium"))

	user, err := f.c.SignInWithEmail(ctx, email, "N3w!Premium", true)
	require.NoError(t, err)
	assert.Equal(t, auth.MembershipPremium, user.MembershipType)
}

func TestLocalFlow_SocialRedirect(t *testing.T) {
	ctx := context.Background()
	f := newLocalFlow(t)

	var got []*auth.UserSnapshot
	f.c.AddAuthListener(func(u *auth.UserSnapshot) { got = append(got, u) })

	require.NoError(t, f.c.SignInWithSocial(ctx, auth.ProviderLinkedIn))
	assert.Nil(t, f.c.GetCurrentUserSync())

	require.NoError(t, f.p.CompleteRedirect(ctx, "instructor@kalpla.com", "Ada Instructor", ""))

	require.Len(t, got, 1)
	assert.Equal(t, auth.ProviderLinkedIn, got[0].Provider)
	assert.Equal(t, auth.RoleMentor, got[0].Role)
	assert.Equal(t, "Ada Instructor", f.c.GetCurrentUserSync().Name)
}

func TestLocalFlow_RefreshFailureSignsOut(t *testing.T) {
	ctx := context.Background()
	f := newLocalFlow(t)
	email := "short@kalpla.com"

	_ = f.c.SignUpWithEmail(ctx, email, "Sh0rt!Pass", "")
	require.NoError(t, f.c.ConfirmSignUp(ctx, email, f.codes[email]))
	_, err := f.c.SignInWithEmail(ctx, email, "Sh0rt!Pass", false)
	require.NoError(t, err)

	var got []*auth.UserSnapshot
	f.c.AddAuthListener(func(u *auth.UserSnapshot) { got = append(got, u) })

	f.now = f.now.Add(2 * time.Hour)
	assert.False(t, f.c.IsSessionValid())

	tokens, err := f.c.GetSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, tokens)
	assert.True(t, f.c.IsSessionValid())
	require.Len(t, got, 1)
	assert.NotNil(t, got[0])

	f.now = f.now.Add(48 * time.Hour)
	tokens, err = f.c.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, tokens)
	assert.Nil(t, f.c.GetCurrentUserSync())
	assert.False(t, f.c.IsSessionValid())
	require.Len(t, got, 2)
	assert.Nil(t, got[1])
}
