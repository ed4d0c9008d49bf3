package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/animestream/authcore/internal/authclient"
	"github.com/animestream/authcore/internal/pipeline"
	"github.com/animestream/authcore/internal/resetlink"
	"github.com/spf13/cobra"
)

// authed turns a 401 that survived the refresh flow into a login hint.
func authed(op string, err error) error {
	if errors.Is(err, pipeline.ErrUnauthorized) {
		return errNotLoggedIn
	}
	return fmt.Errorf("%s: %w", op, err)
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Load the profile of the logged in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := a.svc.GetController().LoadProfile(cmd.Context())
			if err != nil {
				return authed("whoami", err)
			}
			if user == nil {
				return errNotLoggedIn
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s <%s>\n", user.DisplayName(), user.Email())
			return nil
		},
	}
}

func newForgotPasswordCmd(a *app) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "forgot-password",
		Short: "Request a password reset link",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			var err error
			if email, err = a.prompt(out, "Email", email); err != nil {
				return err
			}
			resp, err := a.svc.GetController().ForgotPassword(cmd.Context(), authclient.ForgotPasswordPayload{Email: email})
			if err != nil {
				return fmt.Errorf("forgot-password: %w", err)
			}
			fmt.Fprintln(out, messageOr(resp, "Reset link requested"))
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Account email")
	return cmd
}

func newResetPasswordCmd(a *app) *cobra.Command {
	var link, password string
	var payload authclient.ResetPasswordPayload

	cmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Set a new password from a reset link",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if link != "" {
				token, email, ok := resetlink.FromLink(link)
				if !ok {
					return fmt.Errorf("reset-password: link is not a reset link")
				}
				payload.Token, payload.Email = token, email
			}

			var err error
			if payload.Password, err = a.prompt(out, "New password", password); err != nil {
				return err
			}
			payload.PasswordConfirmation = payload.Password

			resp, err := a.svc.GetController().ResetPassword(cmd.Context(), payload)
			if err != nil {
				return fmt.Errorf("reset-password: %w", err)
			}
			fmt.Fprintln(out, messageOr(resp, "Password reset"))
			return nil
		},
	}

	cmd.Flags().StringVar(&link, "link", "", "Reset link from the email")
	cmd.Flags().StringVar(&payload.Token, "token", "", "Reset token when no link is given")
	cmd.Flags().StringVar(&payload.Email, "email", "", "Account email when no link is given")
	cmd.Flags().StringVar(&password, "password", "", "New password (prompted if omitted)")
	return cmd
}

func newDevicesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List devices holding a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := a.svc.GetController().GetDevices(cmd.Context())
			if err != nil {
				return authed("devices", err)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FINGERPRINT\tNAME\tIP\tLAST USED\tCURRENT")
			for _, d := range list.SortedByLastUsed() {
				current := ""
				if d.IsCurrent {
					current = "*"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", d.DeviceFingerprint, d.DeviceName, d.IPAddress, d.LastUsedAt, current)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d device(s)\n", list.TotalCount)
			return nil
		},
	}
}

func newRevokeDeviceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke-device <fingerprint>",
		Short: "Revoke the session of one device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.svc.GetController().RevokeDevice(cmd.Context(), args[0])
			if err != nil {
				return authed("revoke-device", err)
			}
			if !res.Revoked {
				return fmt.Errorf("revoke-device: %s was not revoked", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Revoked %s\n", args[0])
			return nil
		},
	}
}

func newRevokeOthersCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke-others",
		Short: "Revoke every session except this device",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.svc.GetController().RevokeOtherDevices(cmd.Context())
			if err != nil {
				return authed("revoke-others", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Revoked %d device(s)\n", res.RevokedCount)
			return nil
		},
	}
}

func newTokenStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "token-stats",
		Short: "Show refresh token counts for the account",
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := a.svc.GetController().GetTokenStats(cmd.Context())
			if err != nil {
				return authed("token-stats", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "active=%d expired=%d revoked=%d total=%d\n",
				stats.Active, stats.Expired, stats.Revoked, stats.Total)
			return nil
		},
	}
}
