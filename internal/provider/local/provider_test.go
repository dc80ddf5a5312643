package local

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"kalpla-auth/internal/domain/auth"
	evtypes "kalpla-auth/internal/domain/events"
	xerrors "kalpla-auth/internal/pkg/errors"
	"kalpla-auth/internal/pkg/jwt"
	"kalpla-auth/internal/pkg/ratelimit"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const strongPassword = "Str0ng!Pass"

type recorder struct {
	mu     sync.Mutex
	events []evtypes.EventType
}

func (r *recorder) Publish(ctx context.Context, ev evtypes.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev.Type)
}

func (r *recorder) types() []evtypes.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]evtypes.EventType(nil), r.events...)
}

type fixture struct {
	p      *Provider
	events *recorder
	codes  map[string]string
	now    time.Time
}

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func (f *fixture) code(purpose CodePurpose, destination string) string {
	return f.codes[string(purpose)+":"+destination]
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	tokens, err := jwt.LoadAndBuild(jwt.Config{
		Issuer:   "kalpla-test",
		Audience: "kalpla-web",
		TTL:      time.Hour,
	})
	require.NoError(t, err)

	f := &fixture{
		events: &recorder{},
		codes:  map[string]string{},
		now:    time.Now(),
	}
	opts = append([]Option{
		WithClock(func() time.Time { return f.now }),
		WithCodeSink(func(purpose CodePurpose, destination, code string) {
			f.codes[string(purpose)+":"+destination] = code
		}),
	}, opts...)

	f.p = New(tokens, f.events, nil, opts...)
	return f
}

// signUpConfirmed registers and confirms username with strongPassword
func (f *fixture) signUpConfirmed(t *testing.T, username string) {
	t.Helper()
	ctx := context.Background()

	_, err := f.p.SignUp(ctx, username, strongPassword, map[string]string{auth.AttrName: "Test"})
	require.NoError(t, err)
	require.NoError(t, f.p.ConfirmSignUp(ctx, username, f.code(CodeSignUp, username)))
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()

	var pe *xerrors.ProviderError
	require.True(t, errors.As(err, &pe), "expected provider error, got %v", err)
	assert.Equal(t, code, pe.Code)
}

func TestSignUp_ConfirmAndSignIn(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.p.SignUp(ctx, "Student@Kalpla.com", strongPassword, nil)
	require.NoError(t, err)
	assert.Equal(t, auth.StepConfirmSignUp, res.NextStep)
	assert.NotEmpty(t, res.UserID)

	signIn, err := f.p.SignIn(ctx, "student@kalpla.com", strongPassword, auth.SignInOptions{})
	require.NoError(t, err)
	assert.Equal(t, auth.StepConfirmSignUp, signIn.NextStep)

	requireCode(t, f.p.ConfirmSignUp(ctx, "student@kalpla.com", "000000x"), xerrors.CodeCodeMismatch)
	require.NoError(t, f.p.ConfirmSignUp(ctx, "student@kalpla.com", f.code(CodeSignUp, "student@kalpla.com")))

	_, err = f.p.SignIn(ctx, "student@kalpla.com", "wrong", auth.SignInOptions{})
	requireCode(t, err, xerrors.CodeNotAuthorized)

	signIn, err = f.p.SignIn(ctx, "student@kalpla.com", strongPassword, auth.SignInOptions{})
	require.NoError(t, err)
	assert.True(t, signIn.Complete)
	assert.Equal(t, []evtypes.EventType{evtypes.EventSignedIn}, f.events.types())

	principal, err := f.p.GetCurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, res.UserID, principal.UserID)
	assert.Equal(t, "student@kalpla.com", principal.Attr(auth.AttrEmail))
	assert.Equal(t, "true", principal.Attr(auth.AttrEmailVerified))

	tokens, err := f.p.FetchSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, tokens)
	exp, err := jwt.ExpiryFromToken(tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, f.now.Add(time.Hour).Unix(), exp)

	require.NoError(t, f.p.SignOut(ctx))
	_, err = f.p.GetCurrentUser(ctx)
	assert.ErrorIs(t, err, xerrors.ErrNoPrincipal)

	tokens, err = f.p.FetchSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, tokens)
	assert.Equal(t, []evtypes.EventType{evtypes.EventSignedIn, evtypes.EventSignedOut}, f.events.types())
}

func TestSignUp_Rejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.p.SignUp(ctx, "a@kalpla.com", "short", nil)
	requireCode(t, err, xerrors.CodeInvalidPassword)

	_, err = f.p.SignUp(ctx, "a@kalpla.com", "alllowercase1!", nil)
	requireCode(t, err, xerrors.CodeInvalidPassword)

	_, err = f.p.SignUp(ctx, "a@kalpla.com", strongPassword, nil)
	require.NoError(t, err)

	_, err = f.p.SignUp(ctx, "A@kalpla.com", strongPassword, nil)
	requireCode(t, err, xerrors.CodeUsernameExists)

	_, err = f.p.SignIn(ctx, "nobody@kalpla.com", strongPassword, auth.SignInOptions{})
	requireCode(t, err, xerrors.CodeUserNotFound)
}

func TestConfirmSignUp_ExpiredAndResent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithCodeTTL(time.Minute))

	_, err := f.p.SignUp(ctx, "late@kalpla.com", strongPassword, nil)
	require.NoError(t, err)
	first := f.code(CodeSignUp, "late@kalpla.com")

	f.advance(2 * time.Minute)
	requireCode(t, f.p.ConfirmSignUp(ctx, "late@kalpla.com", first), xerrors.CodeExpiredCode)

	require.NoError(t, f.p.ResendSignUpCode(ctx, "late@kalpla.com"))
	require.NoError(t, f.p.ConfirmSignUp(ctx, "late@kalpla.com", f.code(CodeSignUp, "late@kalpla.com")))

	requireCode(t, f.p.ResendSignUpCode(ctx, "late@kalpla.com"), xerrors.CodeInvalidParameter)
}

func TestPhone_PasswordlessSignIn(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	phone := "+15555550123"

	f.signUpConfirmed(t, phone)

	res, err := f.p.SignIn(ctx, phone, "", auth.SignInOptions{})
	require.NoError(t, err)
	assert.Equal(t, auth.StepConfirmWithSMSCode, res.NextStep)
	assert.Empty(t, f.events.types())

	requireCode(t, func() error { _, err := f.p.ConfirmSignIn(ctx, "bad"); return err }(), xerrors.CodeCodeMismatch)

	res, err = f.p.ConfirmSignIn(ctx, f.code(CodeSignIn, phone))
	require.NoError(t, err)
	assert.True(t, res.Complete)

	principal, err := f.p.GetCurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, phone, principal.Attr(auth.AttrPhoneNumber))
	assert.Empty(t, principal.Attr(auth.AttrEmail))
}

func TestSignIn_NewPasswordThenMFA(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	email := "mentor@kalpla.com"

	f.signUpConfirmed(t, email)
	require.NoError(t, f.p.RequireNewPassword(email))
	require.NoError(t, f.p.EnableMFA(email))

	res, err := f.p.SignIn(ctx, email, strongPassword, auth.SignInOptions{})
	require.NoError(t, err)
	assert.Equal(t, auth.StepNewPasswordRequired, res.NextStep)

	_, err = f.p.ConfirmSignIn(ctx, "weak")
	requireCode(t, err, xerrors.CodeInvalidPassword)

	res, err = f.p.ConfirmSignIn(ctx, "N3w!Password")
	require.NoError(t, err)
	assert.Equal(t, auth.StepConfirmWithTOTPCode, res.NextStep)

	res, err = f.p.ConfirmSignIn(ctx, f.code(CodeSignIn, email))
	require.NoError(t, err)
	assert.True(t, res.Complete)

	principal, err := f.p.GetCurrentUser(ctx)
	require.NoError(t, err)
	assert.True(t, principal.MFAEnabled)

	require.NoError(t, f.p.SignOut(ctx))
	_, err = f.p.SignIn(ctx, email, strongPassword, auth.SignInOptions{})
	requireCode(t, err, xerrors.CodeNotAuthorized)
}

func TestConfirmSignIn_WithoutChallenge(t *testing.T) {
	f := newFixture(t)

	_, err := f.p.ConfirmSignIn(context.Background(), "123456")
	requireCode(t, err, xerrors.CodeNotAuthorized)
}

func TestPasswordReset(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	email := "reset@kalpla.com"

	f.signUpConfirmed(t, email)
	require.NoError(t, f.p.RequirePasswordReset(email))

	res, err := f.p.SignIn(ctx, email, strongPassword, auth.SignInOptions{})
	require.NoError(t, err)
	assert.Equal(t, auth.StepResetPassword, res.NextStep)

	require.NoError(t, f.p.ResetPassword(ctx, email))
	code := f.code(CodePasswordReset, email)

	requireCode(t, f.p.ConfirmResetPassword(ctx, email, code, "weak"), xerrors.CodeInvalidPassword)
	requireCode(t, f.p.ConfirmResetPassword(ctx, email, "999999x", "N3w!Password"), xerrors.CodeCodeMismatch)
	require.NoError(t, f.p.ConfirmResetPassword(ctx, email, code, "N3w!Password"))

	res, err = f.p.SignIn(ctx, email, "N3w!Password", auth.SignInOptions{})
	require.NoError(t, err)
	assert.True(t, res.Complete)

	requireCode(t, f.p.ResetPassword(ctx, "ghost@kalpla.com"), xerrors.CodeUserNotFound)
}

func TestFetchSession_RefreshesExpiredAccessToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	email := "refresh@kalpla.com"

	f.signUpConfirmed(t, email)
	_, err := f.p.SignIn(ctx, email, strongPassword, auth.SignInOptions{})
	require.NoError(t, err)

	before, err := f.p.FetchSession(ctx)
	require.NoError(t, err)

	f.advance(2 * time.Hour)
	after, err := f.p.FetchSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, after)
	assert.NotEqual(t, before.AccessToken, after.AccessToken)
	assert.Equal(t, before.RefreshToken, after.RefreshToken)

	exp, err := jwt.ExpiryFromToken(after.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, f.now.Add(time.Hour).Unix(), exp)

	assert.Equal(t, []evtypes.EventType{evtypes.EventSignedIn, evtypes.EventTokenRefresh}, f.events.types())
}

func TestFetchSession_RefreshFailureEndsSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	email := "short@kalpla.com"

	f.signUpConfirmed(t, email)
	_, err := f.p.SignIn(ctx, email, strongPassword, auth.SignInOptions{})
	require.NoError(t, err)

	f.advance(shortRefreshTTL + time.Hour)
	tokens, err := f.p.FetchSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, tokens)

	_, err = f.p.GetCurrentUser(ctx)
	assert.ErrorIs(t, err, xerrors.ErrNoPrincipal)
	assert.Equal(t, []evtypes.EventType{evtypes.EventSignedIn, evtypes.EventTokenRefreshFailure}, f.events.types())
}

func TestFetchSession_RememberDeviceOutlivesShortRefresh(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	email := "remember@kalpla.com"

	f.signUpConfirmed(t, email)
	_, err := f.p.SignIn(ctx, email, strongPassword, auth.SignInOptions{RememberDevice: true})
	require.NoError(t, err)

	f.advance(shortRefreshTTL + time.Hour)
	tokens, err := f.p.FetchSession(ctx)
	require.NoError(t, err)
	assert.NotNil(t, tokens)
}

func TestSocialRedirect(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	requireCode(t, f.p.SignInWithRedirect(ctx, auth.ProviderEmail), xerrors.CodeInvalidParameter)
	requireCode(t, f.p.CompleteRedirect(ctx, "social@kalpla.com", "", ""), xerrors.CodeNotAuthorized)

	require.NoError(t, f.p.SignInWithRedirect(ctx, auth.ProviderGoogle))
	require.NoError(t, f.p.CompleteRedirect(ctx, "Social@Kalpla.com", "Social User", "https://img.example/a.png"))

	principal, err := f.p.GetCurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, auth.ProviderGoogle, principal.Provider)
	assert.Equal(t, "social@kalpla.com", principal.Attr(auth.AttrEmail))
	assert.Equal(t, "true", principal.Attr(auth.AttrEmailVerified))
	assert.Equal(t, "Social User", principal.Attr(auth.AttrName))
	assert.Equal(t, []evtypes.EventType{evtypes.EventSignedIn}, f.events.types())
}

func TestSignIn_AttemptLimit(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	f := newFixture(t, WithLimiter(ratelimit.NewLimiter(client, "test")))
	email := "limited@kalpla.com"
	f.signUpConfirmed(t, email)

	for i := int64(0); i < ratelimit.SignInRule.Max; i++ {
		_, err := f.p.SignIn(ctx, email, "Wr0ng!Pass", auth.SignInOptions{})
		requireCode(t, err, xerrors.CodeNotAuthorized)
	}

	_, err := f.p.SignIn(ctx, email, strongPassword, auth.SignInOptions{})
	requireCode(t, err, xerrors.CodeLimitExceeded)
	assert.Equal(t, xerrors.KindRateLimited, xerrors.Normalize(err).Kind)
}

func TestSignIn_LimiterOutageFailsOpen(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	f := newFixture(t, WithLimiter(ratelimit.NewLimiter(client, "test")))
	f.signUpConfirmed(t, "open@kalpla.com")
	mr.Close()

	res, err := f.p.SignIn(ctx, "open@kalpla.com", strongPassword, auth.SignInOptions{})
	require.NoError(t, err)
	assert.True(t, res.Complete)
}
