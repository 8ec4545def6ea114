package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/truecredit/authserver/internal/auth/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the authorization server",
	Long: `Validates configuration, loads the signing key, reconciles the bootstrap
clients and scopes, then serves until SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, app.LoadConfig())
	if err != nil {
		return err
	}
	return application.Run(ctx)
}

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Ensure the bootstrap clients and scopes exist, then exit",
	Long: `Creates any missing well-known clients and scopes. Existing records are
left untouched. Uses AUTH_BOOTSTRAP_FILE when set.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return app.Bootstrap(cmd.Context(), app.LoadConfig())
	},
}
