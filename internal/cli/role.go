package cli

import (
	"encoding/json"
	"fmt"

	"kalpla-auth/internal/config"
	"kalpla-auth/internal/repository/memory"
	"kalpla-auth/internal/service/role"

	"github.com/spf13/cobra"
)

func newDeriveRoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "derive-role <email>",
		Short: "Show the role the email rules assign, ignoring any cached value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolver := role.NewResolver(memory.NewRoleCache(), config.Load().SuperAdminEmail, nil)
			return printJSON(cmd, resolver.DeriveFromEmail(args[0]))
		},
	}
}

func newResolveRoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve-role <identity-id> <email>",
		Short: "Resolve a role through the configured role cache",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd, nil)
			if err != nil {
				return err
			}
			defer teardown(a)

			return printJSON(cmd, a.Roles.Resolve(cmd.Context(), args[1], args[0]))
		},
	}
}

func newSetRoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-role <identity-id> <role> <membership>",
		Short: "Override the cached role of an identity",
		Example: `  authctl set-role 01J9Z3 Mentor instructor
  authctl set-role 01J9Z3 student premium`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := role.ParseRole(args[1])
			if err != nil {
				return err
			}
			m, err := role.ParseMembershipType(args[2])
			if err != nil {
				return err
			}

			a, err := setup(cmd, nil)
			if err != nil {
				return err
			}
			defer teardown(a)

			if err := a.Roles.UpdateRole(cmd.Context(), args[0], r, m); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s (%s)\n", args[0], r, m)
			return nil
		},
	}
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
