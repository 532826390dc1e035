package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dnitsch/aws-session-broker/internal/cmdutils"
	"github.com/dnitsch/aws-session-broker/internal/credentialengine"
	"github.com/spf13/cobra"
)

var (
	daemonInterval int
	daemonCmd      = &cobra.Command{
		Use:   "daemon",
		Short: "Keep every active session refreshed in the foreground",
		Long: `Runs a refresh over all active sessions, then keeps re-deriving each one
ahead of the expiration it reported. A periodic sweep picks up sessions
activated after startup.`,
		RunE: daemon,
	}
)

func init() {
	daemonCmd.PersistentFlags().IntVarP(&daemonInterval, "sweep-interval", "i", 15, "Minutes between sweeps over the workspace for newly active sessions")
	rootCmd.AddCommand(daemonCmd)
}

func daemon(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	engine, store, err := buildEngine(cmd.Context(), logger)
	if err != nil {
		return err
	}

	scheduler := cmdutils.NewTimerScheduler(engine, logger)
	defer scheduler.Stop()
	engine.WithScheduler(scheduler)

	sweep := func() {
		results, err := cmdutils.RefreshActiveSessions(cmd.Context(), engine, store)
		if err != nil {
			logger.Error("sweep failed", "err", err)
			return
		}
		for _, r := range results {
			if r.Outcome.Status == credentialengine.OutcomeFailed {
				logger.Error("session refresh failed", "profile", r.Profile, "err", r.Outcome.Err)
			}
		}
	}

	sweep()
	fmt.Fprintf(os.Stderr, "watching sessions, sweep every %d minutes\n", daemonInterval)

	ticker := time.NewTicker(time.Duration(daemonInterval) * time.Minute)
	defer ticker.Stop()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			sweep()
		case <-sig:
			return nil
		case <-cmd.Context().Done():
			return nil
		}
	}
}
