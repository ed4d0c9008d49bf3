package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/animestream/authcore/internal/config"
	"github.com/animestream/authcore/internal/logger"
	"github.com/animestream/authcore/internal/services"
	"github.com/spf13/cobra"
)

// app holds flag values and the services built for one invocation.
type app struct {
	apiURL         string
	persistentTier string
	sqlitePath     string
	rotation       string

	svc *services.Services
	in  *bufio.Reader
}

// NewRootCmd creates the root cobra command for the animectl CLI.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "animectl",
		Short: "animestream session tool",
		Long: "animectl logs in to the animestream API and manages the session. The access token " +
			"lives only for one invocation; the refresh token is kept in the persistent tier, " +
			"so every command starts as a returning client.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.svc != nil {
				a.svc.Close()
			}
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&a.apiURL, "api", config.GetAPIBaseURL(), "API base URL (or API_BASE_URL env)")
	root.PersistentFlags().StringVar(&a.persistentTier, "persistent-tier", config.GetPersistentTier(), "Persistent tier: auto, redis, sqlite, memory")
	root.PersistentFlags().StringVar(&a.sqlitePath, "sqlite", config.GetSQLitePath(), "SQLite file for the persistent tier")
	root.PersistentFlags().StringVar(&a.rotation, "rotation", config.GetRefreshRotation(), "Refresh token rotation: optional, required")

	root.AddCommand(
		newLoginCmd(a),
		newLogoutCmd(a),
		newRegisterCmd(a),
		newRefreshCmd(a),
		newTokenCmd(a),
		newWhoamiCmd(a),
		newStatusCmd(a),
		newForgotPasswordCmd(a),
		newResetPasswordCmd(a),
		newDevicesCmd(a),
		newRevokeDeviceCmd(a),
		newRevokeOthersCmd(a),
		newTokenStatsCmd(a),
	)

	return root
}

func (a *app) init(cmd *cobra.Command) error {
	opts := services.OptionsFromEnv()
	opts.APIBaseURL = strings.TrimRight(a.apiURL, "/")
	opts.Persistent.Kind = a.persistentTier
	opts.Persistent.SQLitePath = a.sqlitePath
	opts.Session.Kind = config.TierMemory

	svc, err := services.InitializeServices(cmd.Context(), opts)
	if err != nil {
		return err
	}
	a.svc = svc
	a.in = bufio.NewReader(cmd.InOrStdin())

	log := logger.For(logger.CLI)
	log.Debug().Str("api", opts.APIBaseURL).Str("tier", a.persistentTier).Msg("CLI ready")
	return nil
}

// prompt asks for a value on the command's input when the flag was left empty.
func (a *app) prompt(out io.Writer, label, value string) (string, error) {
	if value != "" {
		return value, nil
	}
	fmt.Fprintf(out, "%s: ", label)
	line, err := a.in.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read %s: %w", strings.ToLower(label), err)
	}
	value = strings.TrimSpace(line)
	if value == "" {
		return "", fmt.Errorf("%s cannot be empty", strings.ToLower(label))
	}
	return value, nil
}
