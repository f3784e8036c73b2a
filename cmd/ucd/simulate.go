package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/muurk/ucd/internal/config"
	"github.com/muurk/ucd/internal/controllertest"
	"github.com/muurk/ucd/internal/logging"
)

// Simulator flags
var (
	simMode         string
	simUsername     string
	simPassword     string
	simPushInterval time.Duration
)

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().StringVar(&simMode, "mode", controllertest.ShadowCollection.String(),
		"Discovery endpoint to answer (shadow-collection, proxy-objects, proxy-ids, discovered-ids, discovered-envelope, site-settings, none)")
	simulateCmd.Flags().StringVar(&simUsername, "sim-username", "admin", "Username the simulator accepts")
	simulateCmd.Flags().StringVar(&simPassword, "sim-password", "password", "Password the simulator accepts")
	simulateCmd.Flags().DurationVar(&simPushInterval, "push-interval", 0, "Push a device event to connected clients at this interval (0 disables)")
}

// simulateCmd runs the in-process fake controller
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a simulated controller for trying ucd without hardware",
	Long: `Start a local TLS controller that speaks the Connect API with two
simulated displays. Actions change the simulated state, so every other ucd
command can be tried against it.`,
	Example: `  # Terminal 1
  ucd simulate

  # Terminal 2 (use the host printed by simulate)
  ` + config.PasswordEnvVar + `=password ucd devices --host 127.0.0.1:PORT --username admin`,
	Args: cobra.NoArgs,
	RunE: runSimulate,
}

func runSimulate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := ensureLogging(zapcore.InfoLevel); err != nil {
		return err
	}

	mode, err := controllertest.ParseDiscoveryMode(simMode)
	if err != nil {
		return err
	}

	srv := controllertest.New(controllertest.Config{
		Username:     simUsername,
		Password:     simPassword,
		Mode:         mode,
		ApplyActions: true,
		Sites: []map[string]any{
			{"id": "default", "name": "default"},
		},
		Playlists: []map[string]any{
			{"id": "pl-1", "name": "Welcome"},
			{"id": "pl-2", "name": "Menu board"},
		},
	})
	defer srv.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Simulated controller listening on %s\n", srv.URL())
	fmt.Fprintf(out, "  Host:      %s\n", srv.Host())
	fmt.Fprintf(out, "  Username:  %s\n", simUsername)
	fmt.Fprintf(out, "  Password:  %s\n", simPassword)
	fmt.Fprintf(out, "  Discovery: %s\n\n", mode)
	fmt.Fprintf(out, "Try: %s=%s ucd devices --host %s --username %s\n", config.PasswordEnvVar, simPassword, srv.Host(), simUsername)
	fmt.Fprintln(out, "Press Ctrl+C to stop.")

	var tick <-chan time.Time
	if simPushInterval > 0 {
		ticker := time.NewTicker(simPushInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			logging.Info("Simulated controller stopped", zap.Int("actions", len(srv.Actions())))
			return nil
		case <-tick:
			srv.Push("DEVICE_STATE_CHANGED")
			logging.Debug("Pushed device event", zap.Int("connections", srv.Connections()))
		}
	}
}
