package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/deepsleep-project/deepsleep/internal/daemon"
)

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to listen on (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().BoolVar(&serveNoMonitor, "no-monitor", false, "Do not poll the screen state; take events from the API only")
	rootCmd.AddCommand(serveCmd)
}

var (
	serveHost      string
	servePort      int
	serveNoMonitor bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the deepsleep daemon",
	Long: `Start the orchestrator, the screen monitor and the local API server
(127.0.0.1:8765 by default). Stops cleanly on SIGINT or SIGTERM and puts
every setting it changed back.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	// Override config from flags
	if serveHost != "" {
		d.Config.API.Host = serveHost
	}
	if servePort > 0 {
		d.Config.API.Port = servePort
	}
	if serveNoMonitor {
		d.Config.Screen.Monitor = false
	}

	return d.Serve(context.Background())
}
