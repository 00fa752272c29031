package commands

import (
	"strconv"
	"time"

	"github.com/contact-dispatch/internal/service"

	"github.com/spf13/cobra"
)

func processPendingCmd(st *state) *cobra.Command {
	var (
		latest    bool
		strict    bool
		scriptKey string
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "process-pending [device]",
		Short: "Import the pending sessions of a device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := st.container.PendingOptions()
			if scriptKey != "" {
				opts.ScriptKey = scriptKey
			}
			if cmd.Flags().Changed("strict") {
				opts.Strict = strict
			}
			if limit > 0 {
				opts.Limit = limit
			}
			var (
				summary *service.PendingSummary
				err     error
			)
			if latest {
				summary, err = st.container.SessionImportService.ProcessLatestPendingSessionForDevice(cmd.Context(), args[0], opts)
			} else {
				summary, err = st.container.SessionImportService.ProcessPendingSessionsForDevice(cmd.Context(), args[0], opts)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), summary)
		},
	}
	cmd.Flags().BoolVar(&latest, "latest", false, "only import the newest pending session")
	cmd.Flags().BoolVar(&strict, "strict", false, "verify by contact count delta")
	cmd.Flags().StringVar(&scriptKey, "script", "", "import script key")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum sessions to process")
	return cmd
}

func revertCmd(st *state) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "revert [session_id]",
		Short: "Mark a successful session failed and return its numbers to the pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return err
			}
			restored, err := st.container.SessionLedger.RevertSession(cmd.Context(), uint(id), reason)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]interface{}{
				"session_id": id,
				"restored":   restored,
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "revert reason recorded on the session")
	return cmd
}

func tokenCmd(st *state) *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token [operator]",
		Short: "Issue an API bearer token for an operator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, expiresAt, err := service.IssueOperatorToken(st.cfg.JWT.SecretKey, st.cfg.JWT.Issuer, args[0], ttl)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]interface{}{
				"token":      token,
				"expires_at": expiresAt,
			})
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
