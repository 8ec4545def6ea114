package main

import (
	"github.com/spf13/cobra"
)

// rootCmd runs the server when no subcommand is given.
var rootCmd = &cobra.Command{
	Use:   "auth",
	Short: "TrueCredit OpenID Connect and OAuth2 authorization server",
	Long: `auth issues signed access and identity tokens, rotating refresh tokens and
answers introspection for resource servers.

Configuration is read from the environment (AUTH_*, REDIS_*, RATELIMIT_*).
Running without a subcommand is the same as 'auth serve'.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.SetVersionTemplate(`{{printf "auth version %s\n" .Version}}`)
	rootCmd.AddCommand(serveCmd, bootstrapCmd, keysCmd, usersCmd)
}
