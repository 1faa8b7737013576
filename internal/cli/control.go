package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deepsleep-project/deepsleep/internal/daemon"
	"github.com/deepsleep-project/deepsleep/internal/domain"
	"github.com/deepsleep-project/deepsleep/internal/infra/deviceidle"
	"github.com/deepsleep-project/deepsleep/internal/infra/sqlite"
)

func init() {
	suppressCmd.Flags().IntVar(&suppressOOM, "oom", 0, "oom_score_adj to write (default from config)")

	idleCmd.AddCommand(idleStateCmd, idleEnterCmd, idleExitCmd, idleStepCmd)
	powerSaverCmd.AddCommand(
		powerSaverActionCmd("on", "Turn battery saver on"),
		powerSaverActionCmd("off", "Turn battery saver off"),
		powerSaverActionCmd("aggressive", "Battery saver plus adaptive battery"),
		powerSaverActionCmd("restore", "Undo aggressive mode"),
		powerSaverStatusCmd,
	)
	autosleepCmd.AddCommand(autosleepBlockCmd, autosleepRestoreCmd, autosleepInfoCmd)

	rootCmd.AddCommand(modeCmd, screenCmd, idleCmd, suppressCmd, unsuppressCmd, powerSaverCmd, autosleepCmd, restoreCmd)
}

var suppressOOM int

// ─── Scheduler & Screen ─────────────────────────────────────────────────────

var modeCmd = &cobra.Command{
	Use:       "mode NAME",
	Short:     "Apply a WALT scheduler mode (daily, standby, default, performance)",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"daily", "standby", "default", "performance"},
	RunE:      runMode,
}

func runMode(cmd *cobra.Command, args []string) error {
	mode := domain.SchedulerMode(args[0])
	if !mode.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrUnknownMode, args[0])
	}
	cfg, tools, err := loadTools()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext()
	defer cancel()

	err = newClient(cfg).ApplyMode(ctx, mode)
	if err == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Applied %s through the daemon\n", mode.Label())
		return nil
	}
	if !daemonDown(err) {
		return err
	}
	if err := resultErr("apply mode", tools.Scheduler.ApplyMode(ctx, mode)); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Applied %s\n", mode.Label())
	return nil
}

var screenCmd = &cobra.Command{
	Use:       "screen on|off",
	Short:     "Inject a screen event into the running daemon",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"on", "off"},
	RunE: func(cmd *cobra.Command, args []string) error {
		ev, ok := domain.ParseScreenEvent(args[0])
		if !ok {
			return fmt.Errorf("screen state must be on or off, got %q", args[0])
		}
		cfg, err := daemon.LoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		ctx, cancel := commandContext()
		defer cancel()
		if err := newClient(cfg).Notify(ctx, ev); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Sent %s\n", ev)
		return nil
	},
}

// ─── Idle ───────────────────────────────────────────────────────────────────

var idleCmd = &cobra.Command{
	Use:   "idle",
	Short: "Query or drive device idle mode directly",
}

var idleStateCmd = &cobra.Command{
	Use:   "state",
	Short: "Print the current idle state",
	Args:  cobra.NoArgs,
	RunE: withTools(func(ctx context.Context, cmd *cobra.Command, _ daemon.Config, tools *daemon.Toolkit) error {
		state, res := tools.Idle.QueryState(ctx)
		if !res.OK {
			return resultErr("query idle state", res)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", state, state.Label())
		return nil
	}),
}

var idleEnterCmd = &cobra.Command{
	Use:   "enter",
	Short: "Force deep idle and verify it took",
	Args:  cobra.NoArgs,
	RunE: withTools(func(ctx context.Context, cmd *cobra.Command, _ daemon.Config, tools *daemon.Toolkit) error {
		if err := resultErr("force idle", tools.Idle.ForceEnter(ctx)); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Device is in deep idle.")
		return nil
	}),
}

var idleExitCmd = &cobra.Command{
	Use:   "exit",
	Short: "Leave forced idle",
	Args:  cobra.NoArgs,
	RunE: withTools(func(ctx context.Context, cmd *cobra.Command, _ daemon.Config, tools *daemon.Toolkit) error {
		if err := resultErr("unforce idle", tools.Idle.ForceExit(ctx)); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Device left forced idle.")
		return nil
	}),
}

var idleStepCmd = &cobra.Command{
	Use:   "step",
	Short: "Advance the idle state machine one step",
	Args:  cobra.NoArgs,
	RunE: withTools(func(ctx context.Context, cmd *cobra.Command, _ daemon.Config, tools *daemon.Toolkit) error {
		return resultErr("idle step", tools.Idle.Step(ctx))
	}),
}

// ─── Suppression ────────────────────────────────────────────────────────────

var suppressCmd = &cobra.Command{
	Use:   "suppress",
	Short: "Lower the OOM priority of background processes once",
	Args:  cobra.NoArgs,
	RunE: withTools(func(ctx context.Context, cmd *cobra.Command, cfg daemon.Config, tools *daemon.Toolkit) error {
		oom := cfg.Suppress.OOMValue
		if cmd.Flags().Changed("oom") {
			oom = suppressOOM
		}
		db, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		whitelist, err := db.ListWhitelist(domain.CategorySuppress)
		if err != nil {
			return err
		}

		n, res := tools.Suppressor.Suppress(ctx, oom, whitelist)
		if err := resultErr("suppress", res); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Suppressed %d processes (oom_score_adj=%d)\n", n, oom)
		return nil
	}),
}

var unsuppressCmd = &cobra.Command{
	Use:   "unsuppress",
	Short: "Reset oom_score_adj to 0 for every process",
	Args:  cobra.NoArgs,
	RunE: withTools(func(ctx context.Context, cmd *cobra.Command, _ daemon.Config, tools *daemon.Toolkit) error {
		return resultErr("unsuppress", tools.Suppressor.Unsuppress(ctx))
	}),
}

// ─── Power Saver ────────────────────────────────────────────────────────────

var powerSaverCmd = &cobra.Command{
	Use:     "powersaver",
	Aliases: []string{"ps"},
	Short:   "Control the system battery saver",
}

func powerSaverActionCmd(action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: withTools(func(ctx context.Context, cmd *cobra.Command, _ daemon.Config, tools *daemon.Toolkit) error {
			var res domain.Result
			switch action {
			case "on":
				res = tools.PowerSaver.Enable(ctx)
			case "off":
				res = tools.PowerSaver.Disable(ctx)
			case "aggressive":
				res = tools.PowerSaver.EnableAggressiveMode(ctx)
			case "restore":
				res = tools.PowerSaver.RestoreDefaults(ctx)
			}
			return resultErr("power saver "+action, res)
		}),
	}
}

var powerSaverStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print whether battery saver is on",
	Args:  cobra.NoArgs,
	RunE: withTools(func(ctx context.Context, cmd *cobra.Command, _ daemon.Config, tools *daemon.Toolkit) error {
		state := "off"
		if tools.PowerSaver.IsEnabled(ctx) {
			state = "on"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "power saver: %s\n", state)
		return nil
	}),
}

// ─── Autosleep ──────────────────────────────────────────────────────────────

var autosleepCmd = &cobra.Command{
	Use:   "autosleep",
	Short: "Hold or release kernel autosleep",
}

var autosleepBlockCmd = &cobra.Command{
	Use:   "block",
	Short: "Take a wakelock and disable autosleep",
	Args:  cobra.NoArgs,
	RunE: withTools(func(ctx context.Context, cmd *cobra.Command, _ daemon.Config, tools *daemon.Toolkit) error {
		return resultErr("block autosleep", tools.Autosleep.Block(ctx))
	}),
}

var autosleepRestoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Release the wakelock and re-enable autosleep",
	Args:  cobra.NoArgs,
	RunE: withTools(func(ctx context.Context, cmd *cobra.Command, _ daemon.Config, tools *daemon.Toolkit) error {
		return resultErr("restore autosleep", tools.Autosleep.Restore(ctx))
	}),
}

var autosleepInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show suspend states and the wakeup counter",
	Args:  cobra.NoArgs,
	RunE: withTools(func(ctx context.Context, cmd *cobra.Command, _ daemon.Config, tools *daemon.Toolkit) error {
		info := tools.Autosleep.Info(ctx)
		w := newTable(cmd.OutOrStdout())
		fmt.Fprintf(w, "power states\t%s\n", info.PowerStates)
		fmt.Fprintf(w, "wakeup count\t%s\n", info.WakeupCount)
		fmt.Fprintf(w, "held\t%v\n", info.Held)
		return w.Flush()
	}),
}

// ─── Restore ────────────────────────────────────────────────────────────────

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Undo everything a crashed daemon may have left behind",
	Long: `Leave forced idle, put motion detection back the way the last daemon
found it, reset process priorities and release any autosleep hold.
Every step runs even if an earlier one fails.`,
	Args: cobra.NoArgs,
	RunE: withTools(func(ctx context.Context, cmd *cobra.Command, cfg daemon.Config, tools *daemon.Toolkit) error {
		token := deviceidle.MotionEnabled
		if db, err := openStore(cfg); err == nil {
			if v, err := db.GetMeta(sqlite.MetaMotionBackup); err == nil && v != "" {
				token = v
			}
			db.Close()
		}

		var errs []error
		add := func(what string, res domain.Result) {
			if err := resultErr(what, res); err != nil {
				errs = append(errs, err)
			}
		}
		add("unforce idle", tools.Idle.ForceExit(ctx))
		add("restore motion detection", tools.Idle.RestoreMotionState(ctx, token))
		add("unsuppress", tools.Suppressor.Unsuppress(ctx))
		add("restore scheduler", tools.Scheduler.RestoreDefault(ctx))
		if tools.Autosleep.Held(ctx) {
			add("restore autosleep", tools.Autosleep.Restore(ctx))
		}
		if len(errs) > 0 {
			return errors.Join(errs...)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Device state restored.")
		return nil
	}),
}

type toolsFunc func(ctx context.Context, cmd *cobra.Command, cfg daemon.Config, tools *daemon.Toolkit) error

// withTools adapts fn into a RunE that loads config and controllers first.
func withTools(fn toolsFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, tools, err := loadTools()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()
		return fn(ctx, cmd, cfg, tools)
	}
}
