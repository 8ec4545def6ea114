package main

import (
	"os"

	"github.com/truecredit/authserver/internal/auth/app"
)

// version can be set during build with -ldflags
var version = "dev"

func main() {
	if version != "dev" {
		app.BuildVersion = version
	}
	rootCmd.Version = app.BuildVersion

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
