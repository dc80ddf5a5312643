// internal/cli/root.go
package cli

import (
	"kalpla-auth/internal/app"
	"kalpla-auth/internal/config"
	"kalpla-auth/internal/provider/local"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewRootCmd builds the authctl command tree
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "authctl",
		Short: "Inspect and exercise the Kalpla session coordinator",
		Long: `authctl drives the session coordinator and role resolver against the
in-process identity provider and the role cache selected by ROLE_CACHE_BACKEND.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newDeriveRoleCmd(),
		newResolveRoleCmd(),
		newSetRoleCmd(),
		newWalkthroughCmd(),
		newWatchCmd(),
	)
	return root
}

// setup loads the environment config and wires the app
func setup(cmd *cobra.Command, sink local.CodeSink) (*app.App, error) {
	cfg := config.Load()

	logger, err := app.NewLogger(cfg)
	if err != nil {
		return nil, err
	}

	a, err := app.New(cmd.Context(), cfg, logger, sink)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return a, nil
}

func teardown(a *app.App) {
	a.Close()
	_ = a.Logger.Sync()
}

func newLogger() *zap.Logger {
	logger, err := app.NewLogger(config.Load())
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
