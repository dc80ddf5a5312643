package cli

import (
	"errors"
	"fmt"

	"kalpla-auth/internal/domain/auth"
	xerrors "kalpla-auth/internal/pkg/errors"
	"kalpla-auth/internal/provider/local"

	"github.com/spf13/cobra"
)

type walkthroughOptions struct {
	email    string
	password string
	name     string
	remember bool
}

func newWalkthroughCmd() *cobra.Command {
	opts := &walkthroughOptions{}

	cmd := &cobra.Command{
		Use:   "walkthrough",
		Short: "Sign up, confirm, sign in and sign out against the local provider",
		Long: `Runs a complete email flow through the session coordinator and prints
every auth state change a UI listener would see.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWalkthrough(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.email, "email", "admin@kalpla.com", "account email")
	cmd.Flags().StringVar(&opts.password, "password", "Kalpla!2026", "account password")
	cmd.Flags().StringVar(&opts.name, "name", "", "display name")
	cmd.Flags().BoolVar(&opts.remember, "remember", false, "ask for a long-lived refresh token")
	return cmd
}

func runWalkthrough(cmd *cobra.Command, opts *walkthroughOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	codes := map[string]string{}
	a, err := setup(cmd, func(purpose local.CodePurpose, destination, code string) {
		fmt.Fprintf(out, "code %s for %s: %s\n", purpose, destination, code)
		codes[destination] = code
	})
	if err != nil {
		return err
	}
	defer teardown(a)

	c := a.Coordinator
	remove := c.AddAuthListener(func(u *auth.UserSnapshot) {
		if u == nil {
			fmt.Fprintln(out, "listener: signed out")
			return
		}
		fmt.Fprintf(out, "listener: %s signed in as %s (%s)\n", u.Email, u.Role, u.MembershipType)
	})
	defer remove()

	err = c.SignUpWithEmail(ctx, opts.email, opts.password, opts.name)
	if err != nil && !errors.Is(err, &xerrors.AuthError{Kind: xerrors.KindIncompleteFlow, Reason: xerrors.ReasonConfirmationRequired}) {
		return fmt.Errorf("sign up: %w", err)
	}

	if err := c.ConfirmSignUp(ctx, opts.email, codes[opts.email]); err != nil {
		return fmt.Errorf("confirm sign up: %w", err)
	}

	user, err := c.SignInWithEmail(ctx, opts.email, opts.password, opts.remember)
	if err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	if err := printJSON(cmd, user); err != nil {
		return err
	}
	fmt.Fprintf(out, "session valid: %t\n", c.IsSessionValid())

	if err := c.SignOut(ctx); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	fmt.Fprintf(out, "session valid: %t\n", c.IsSessionValid())
	return nil
}
