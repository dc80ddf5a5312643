package auth

// Well-known attribute names reported by the identity provider
const (
	AttrEmail         = "email"
	AttrName          = "name"
	AttrEmailVerified = "email_verified"
	AttrPicture       = "picture"
	AttrPhoneNumber   = "phone_number"
)

// Principal is the active user as reported by the identity provider
type Principal struct {
	UserID     string
	Username   string
	Provider   SignInProvider
	MFAEnabled bool
	Attributes map[string]string
}

// Attr returns the named attribute or ""
func (p *Principal) Attr(name string) string {
	if p.Attributes == nil {
		return ""
	}
	return p.Attributes[name]
}

// ProviderTokens are the raw tokens the identity provider hands back.
// Expiry is not included; it is always read from the access token itself.
type ProviderTokens struct {
	AccessToken  string
	RefreshToken string
	IDToken      string
}

// NextStep is the provider's instruction after an incomplete sign-in or sign-up
type NextStep string

const (
	StepDone                NextStep = "DONE"
	StepConfirmSignUp       NextStep = "CONFIRM_SIGN_UP"
	StepResetPassword       NextStep = "RESET_PASSWORD"
	StepNewPasswordRequired NextStep = "CONFIRM_SIGN_IN_WITH_NEW_PASSWORD_REQUIRED"
	StepConfirmWithTOTPCode NextStep = "CONFIRM_SIGN_IN_WITH_TOTP_CODE"
	StepConfirmWithSMSCode  NextStep = "CONFIRM_SIGN_IN_WITH_SMS_CODE"
	StepCompleteAutoSignIn  NextStep = "COMPLETE_AUTO_SIGN_IN"
)

// SignInOptions are hints passed through to the provider with a sign-in
type SignInOptions struct {
	// RememberDevice asks the provider for a long-lived refresh token
	RememberDevice bool
}

type SignInResult struct {
	Complete bool
	NextStep NextStep
}

type SignUpResult struct {
	Complete bool
	NextStep NextStep
	UserID   string
}
