package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/truecredit/authserver/internal/auth/app"
	"github.com/truecredit/authserver/internal/auth/domain"
	"github.com/truecredit/authserver/internal/auth/service"
)

var (
	userID       string
	userName     string
	userEmail    string
	userRoles    []string
	userTOTP     bool
	userPassword string
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage local user accounts",
}

var usersAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Create a local user",
	Long: `Creates a user that can sign in at /connect/authorize and through the
password grant. The password is read from --password or AUTH_USER_PASSWORD.
With --totp the otpauth:// URI for an authenticator app is printed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password := userPassword
		if password == "" {
			password = os.Getenv("AUTH_USER_PASSWORD")
		}
		if password == "" {
			return errors.New("a password is required (--password or AUTH_USER_PASSWORD)")
		}

		u, otpURL, err := app.AddUser(cmd.Context(), app.LoadConfig(), service.NewUser{
			ID:          userID,
			Username:    args[0],
			Password:    password,
			DisplayName: userName,
			Email:       userEmail,
			Roles:       userRoles,
			EnrollTOTP:  userTOTP,
		})
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "created user %s (subject %s)\n", u.Username, u.ID)
		if otpURL != "" {
			fmt.Fprintf(w, "totp: %s\n", otpURL)
		}
		return nil
	},
}

func init() {
	f := usersAddCmd.Flags()
	f.StringVar(&userID, "id", "", "Subject identifier (default: generated ULID)")
	f.StringVar(&userName, "name", "", "Display name")
	f.StringVar(&userEmail, "email", "", "Email address")
	f.StringSliceVar(&userRoles, "role", []string{domain.RoleUser}, "Role to grant (repeatable)")
	f.BoolVar(&userTOTP, "totp", false, "Enroll a TOTP second factor")
	f.StringVar(&userPassword, "password", "", "Initial password")
	usersCmd.AddCommand(usersAddCmd)
}
