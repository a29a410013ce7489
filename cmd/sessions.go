package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/paperkey/unlock-cli/internal/model"
	"github.com/paperkey/unlock-cli/internal/store"
)

var (
	sessionsStatus string
	sessionsOwner  string
	sessionsLimit  int
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List journaled unlock sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close()

		sessions, err := st.ListSessions(ctx, store.SessionFilter{
			Status:  model.SessionStatus(sessionsStatus),
			OwnerID: sessionsOwner,
			Limit:   sessionsLimit,
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(sessions)
	},
}

func init() {
	sessionsCmd.Flags().StringVar(&sessionsStatus, "status", "", "filter by status (open|unlocked|failed)")
	sessionsCmd.Flags().StringVar(&sessionsOwner, "owner", "", "filter by owner identifier")
	sessionsCmd.Flags().IntVar(&sessionsLimit, "limit", 50, "maximum rows to return")
	rootCmd.AddCommand(sessionsCmd)
}
