package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dnitsch/aws-session-broker/internal/cmdutils"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect and stop credential sessions",
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List workspace sessions and their state",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, store, err := buildEngine(cmd.Context(), newLogger())
		if err != nil {
			return err
		}
		ws, err := store.GetWorkspace()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tACCOUNT\tKIND\tPROFILE\tACTIVE\tCOMPLETE")
		for _, s := range ws.Sessions {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%v\t%v\n",
				s.ID, s.Account.AccountName, s.Account.Kind, ws.ProfileName(s.ProfileID), s.Active, s.Complete)
		}
		return w.Flush()
	},
}

var sessionStopCmd = &cobra.Command{
	Use:   "stop <session id or account name>",
	Short: "Deactivate a session slot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, store, err := buildEngine(cmd.Context(), newLogger())
		if err != nil {
			return err
		}
		id, err := cmdutils.FindSessionID(store, args[0])
		if err != nil {
			return err
		}
		return cmdutils.StopSession(store, id)
	},
}

func init() {
	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionStopCmd)
	rootCmd.AddCommand(sessionCmd)
}
