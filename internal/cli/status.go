package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/deepsleep-project/deepsleep/internal/api"
	"github.com/deepsleep-project/deepsleep/internal/daemon"
	"github.com/deepsleep-project/deepsleep/internal/orchestrator"
	"github.com/deepsleep-project/deepsleep/internal/tui"
)

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the daemon status as JSON")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 2*time.Second, "Refresh interval")
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(watchCmd)
}

var (
	statusJSON    bool
	watchInterval time.Duration
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the screen, idle and scheduler state",
	Long: `Ask the running daemon for its status line. When no daemon answers,
probe the device directly and print what it reports.`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ctx, cancel := commandContext()
	defer cancel()

	st, err := newClient(cfg).Status(ctx)
	switch {
	case err == nil:
		if statusJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		}
		return printStatus(cmd.OutOrStdout(), st)
	case !daemonDown(err):
		return err
	}

	tools := daemon.NewToolkit(cfg, cliLogger(cfg))
	screen := tools.Screen.State(ctx)
	idle, _ := tools.Idle.QueryState(ctx)
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, orchestrator.FormatStatus(screen, idle, "", false))
	fmt.Fprintln(out, "daemon: not running (device probed directly)")
	fmt.Fprintf(out, "power saver: %v\n", tools.PowerSaver.IsEnabled(ctx))
	return nil
}

func printStatus(w io.Writer, st api.StatusResponse) error {
	fmt.Fprintln(w, st.Line)
	tw := newTable(w)
	running := "stopped"
	if st.Running {
		running = "running"
	}
	mode := string(st.Mode)
	if mode == "" {
		mode = "-"
	}
	fmt.Fprintf(tw, "daemon\t%s\n", running)
	fmt.Fprintf(tw, "screen\t%s\n", st.Screen)
	fmt.Fprintf(tw, "idle\t%s\n", st.Idle)
	fmt.Fprintf(tw, "mode\t%s\n", mode)
	fmt.Fprintf(tw, "force mode\t%v\n", st.ForceMode)
	fmt.Fprintf(tw, "motion backup\t%s\n", st.MotionBackup)
	fmt.Fprintf(tw, "started\t%s\n", formatTime(st.StartedAt))
	fmt.Fprintf(tw, "last screen off\t%s\n", formatTime(st.LastScreenOff))
	fmt.Fprintf(tw, "last screen on\t%s\n", formatTime(st.LastScreenOn))
	fmt.Fprintf(tw, "last suppress\t%s\n", formatTime(st.LastSuppress))
	return tw.Flush()
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live dashboard of the running daemon",
	RunE:  runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	p := tea.NewProgram(tui.NewModel(newClient(cfg), watchInterval))
	_, err = p.Run()
	return err
}
