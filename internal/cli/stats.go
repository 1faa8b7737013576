package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/deepsleep-project/deepsleep/internal/app/journal"
	"github.com/deepsleep-project/deepsleep/internal/app/stats"
	"github.com/deepsleep-project/deepsleep/internal/daemon"
	"github.com/deepsleep-project/deepsleep/internal/domain"
)

func init() {
	statsCmd.Flags().BoolVar(&statsReset, "reset", false, "Zero every counter")
	eventsCmd.Flags().IntVarP(&eventsLimit, "limit", "n", 20, "Number of events to show")
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(eventsCmd)
}

var (
	statsReset  bool
	eventsLimit int
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show idle entry and recovery counters",
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	svc := stats.NewService(db, cliLogger(cfg))
	out := cmd.OutOrStdout()
	if statsReset {
		if err := svc.Reset(); err != nil {
			return err
		}
		fmt.Fprintln(out, "Statistics reset.")
		return nil
	}

	snap, err := svc.Snapshot(time.Now())
	if err != nil {
		return err
	}
	w := newTable(out)
	fmt.Fprintln(w, "COUNTER\tVALUE")
	for _, c := range domain.Counters() {
		fmt.Fprintf(w, "%s\t%d\n", c, snap.Counters[c.String()])
	}
	fmt.Fprintf(w, "enter success rate\t%.1f%%\n", snap.EnterRate*100)
	fmt.Fprintf(w, "recovery rate\t%.1f%%\n", snap.RecoveryRate*100)
	fmt.Fprintf(w, "service start\t%s\n", formatTime(snap.ServiceStart))
	if snap.Uptime != "" {
		fmt.Fprintf(w, "uptime\t%s\n", snap.Uptime)
	}
	return w.Flush()
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show the most recent orchestrator log entries",
	RunE:  runEvents,
}

func runEvents(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	events, err := journal.New(db, cliLogger(cfg)).Recent(eventsLimit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(events) == 0 {
		fmt.Fprintln(out, "No events recorded.")
		return nil
	}
	w := newTable(out)
	fmt.Fprintln(w, "TIME\tMESSAGE")
	for _, e := range events {
		fmt.Fprintf(w, "%s\t%s\n", formatTime(e.Time), e.Message)
	}
	return w.Flush()
}
