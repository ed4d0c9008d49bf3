package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/animestream/authcore/internal/auth"
	"github.com/animestream/authcore/internal/authclient"
	"github.com/spf13/cobra"
)

var errNotLoggedIn = errors.New("not logged in: run animectl login")

func newLoginCmd(a *app) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			var err error
			if email, err = a.prompt(out, "Email", email); err != nil {
				return err
			}
			if password, err = a.prompt(out, "Password", password); err != nil {
				return err
			}

			result, err := a.svc.GetController().Login(cmd.Context(), authclient.Credentials{Email: email, Password: password})
			if err != nil {
				return fmt.Errorf("login: %w", err)
			}
			fmt.Fprintf(out, "Logged in as %s\n", result.User.DisplayName())
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Account email (prompted if omitted)")
	cmd.Flags().StringVar(&password, "password", "", "Account password (prompted if omitted)")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	var local bool

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Revoke the refresh token and clear the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if local {
				a.svc.GetController().SilentLogout()
			} else {
				a.svc.GetController().Logout(cmd.Context())
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}

	cmd.Flags().BoolVar(&local, "local", false, "Only clear the local session, do not notify the server")
	return cmd
}

func newRegisterCmd(a *app) *cobra.Command {
	var payload authclient.RegisterPayload

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			var err error
			if payload.Name, err = a.prompt(out, "Name", payload.Name); err != nil {
				return err
			}
			if payload.Email, err = a.prompt(out, "Email", payload.Email); err != nil {
				return err
			}
			if payload.Password, err = a.prompt(out, "Password", payload.Password); err != nil {
				return err
			}
			if payload.PasswordConfirmation == "" {
				payload.PasswordConfirmation = payload.Password
			}

			resp, err := a.svc.GetController().Register(cmd.Context(), payload)
			if err != nil {
				return fmt.Errorf("register: %w", err)
			}
			fmt.Fprintln(out, messageOr(resp, "Registered"))
			return nil
		},
	}

	cmd.Flags().StringVar(&payload.Name, "name", "", "Display name")
	cmd.Flags().StringVar(&payload.Email, "email", "", "Account email")
	cmd.Flags().StringVar(&payload.Password, "password", "", "Account password")
	cmd.Flags().StringVar(&payload.PasswordConfirmation, "password-confirmation", "", "Defaults to --password")
	return cmd
}

func newRefreshCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Exchange the refresh token for a new access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl := a.svc.GetController()
			if !ctrl.HasRefreshToken() {
				return errNotLoggedIn
			}
			if _, err := ctrl.RefreshToken(cmd.Context()); err != nil {
				return fmt.Errorf("refresh: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Access token valid until %s\n", expiryString(ctrl))
			return nil
		},
	}
}

func newTokenCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Print a valid access token, refreshing if needed",
		RunE: func(cmd *cobra.Command, args []string) error {
			tok, err := a.svc.GetController().TokenSource(cmd.Context()).Token()
			if err != nil {
				return fmt.Errorf("token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok.AccessToken)
			return nil
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored session state",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := json.MarshalIndent(a.svc.GetController().AuthState(), "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

func expiryString(ctrl *auth.Controller) string {
	ms, ok := ctrl.TokenExpiresAt()
	if !ok {
		return "unknown"
	}
	return time.UnixMilli(ms).Local().Format(time.RFC3339)
}

func messageOr(resp map[string]any, fallback string) string {
	if msg, ok := resp["message"].(string); ok && msg != "" {
		return msg
	}
	return fallback
}
