package cmd

import (
	"fmt"

	"github.com/dnitsch/aws-session-broker/internal/cmdutils"
	"github.com/dnitsch/aws-session-broker/internal/credentialengine"
	"github.com/spf13/cobra"
)

var (
	refreshAll bool
	refreshCmd = &cobra.Command{
		Use:   "refresh [session id or account name]",
		Short: "Derive or reuse credentials for a session",
		Long: `Runs one credential derivation for the named session, or for every active
session with --all. Cached session tokens are reused while valid; anything
else is re-derived, which may prompt for an MFA code.`,
		RunE: refresh,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if !refreshAll && len(args) != 1 {
				return fmt.Errorf("provide a session id/account name or --all")
			}
			return nil
		},
	}
)

func init() {
	refreshCmd.PersistentFlags().BoolVarP(&refreshAll, "all", "a", false, "Refresh every active session")
	rootCmd.AddCommand(refreshCmd)
}

func refresh(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	engine, store, err := buildEngine(cmd.Context(), logger)
	if err != nil {
		return err
	}

	if refreshAll {
		results, err := cmdutils.RefreshActiveSessions(cmd.Context(), engine, store)
		if err != nil {
			return err
		}
		for _, r := range results {
			fmt.Printf("%s (%s): %s\n", r.Profile, r.SessionID, r.Outcome.Status)
		}
		return nil
	}

	id, err := cmdutils.FindSessionID(store, args[0])
	if err != nil {
		return err
	}
	outcome, err := cmdutils.StartSession(cmd.Context(), engine, store, id)
	if err != nil {
		return err
	}
	if outcome.Status == credentialengine.OutcomeFailed {
		return outcome.Err
	}
	fmt.Printf("%s: %s\n", args[0], outcome.Status)
	return nil
}
