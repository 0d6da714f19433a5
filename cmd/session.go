package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rryowa/listarr/internal/client"
	"github.com/rryowa/listarr/internal/util"
)

const passwordEnv = "LISTARR_PASSWORD"

type sessionFlags struct {
	server      string
	credentials string
}

func defaultCredentialsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "listarr-credentials.json"
	}
	return filepath.Join(dir, "listarr", "credentials.json")
}

func sessionCmd() *cobra.Command {
	flags := &sessionFlags{}
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Log in to a listarr server and manage the stored session",
	}
	cmd.PersistentFlags().StringVar(&flags.server, "server", "http://localhost:8080", "Server base URL")
	cmd.PersistentFlags().StringVar(&flags.credentials, "credentials", defaultCredentialsPath(), "Credentials file")

	newClient := func() *client.Client {
		return client.New(flags.server, client.NewFileStore(flags.credentials), nil, util.NewZapLogger(),
			client.WithOnSessionExpired(func(err error) {
				fmt.Fprintf(os.Stderr, "Session expired (%v), run 'listarr session login' again\n", err)
			}))
	}

	var email string
	login := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the token pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			password := os.Getenv(passwordEnv)
			if password == "" {
				return fmt.Errorf("%s is not set", passwordEnv)
			}
			resp, err := newClient().Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			fmt.Printf("Logged in as %s (%s)\n", resp.User.Email, resp.User.Role)
			return nil
		},
	}
	login.Flags().StringVar(&email, "email", "", "Account email")
	_ = login.MarkFlagRequired("email")

	whoami := &cobra.Command{
		Use:   "whoami",
		Short: "Show the account behind the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			who, err := newClient().Verify(cmd.Context())
			var statusErr *client.StatusError
			if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusUnauthorized {
				return errors.New("not logged in")
			}
			if err != nil {
				return err
			}
			fmt.Printf("%s %s role=%s session=%s\n", who.UserID, who.Email, who.Role, who.SessionID)
			return nil
		},
	}

	logout := &cobra.Command{
		Use:   "logout",
		Short: "End the session and remove stored credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			return newClient().Logout(cmd.Context())
		},
	}

	cmd.AddCommand(login, whoami, logout)
	return cmd
}
