// Ucd is a command-line client for UniFi Connect displays.
//
// It logs in to a UniFi console, lists the Connect devices it manages,
// sends device actions, follows the controller's push events and can
// bridge device state to MQTT.
//
// Usage:
//
//	ucd [command] [flags]
//
// See 'ucd --help' for available commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/muurk/ucd/internal/config"
	"github.com/muurk/ucd/internal/logging"
	"github.com/muurk/ucd/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	logging.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Persistent flags
var (
	controllerName string
	hostFlag       string
	usernameFlag   string
	siteFlag       string
	logLevel       string
	catalogFiles   []string
)

var rootCmd = &cobra.Command{
	Use:   "ucd",
	Short: "UniFi Connect display client",
	Long: `A client for UniFi Connect displays (UC-Display, UC-Cast, UC-Cast-Pro).

ucd logs in to a UniFi console, discovers the Connect devices it manages,
sends actions such as display on/off, volume and rotation, and follows the
controller's push events to keep device state current.

Controllers are stored in the config file by 'ucd login'. Passwords are
never stored; set ` + config.PasswordEnvVar + ` or answer the prompt.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initLogging(logLevel)
	},
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVarP(&controllerName, "controller", "c", "", "Configured controller name (default: the default controller)")
	rootCmd.PersistentFlags().StringVar(&hostFlag, "host", "", "Controller host, overrides the configured one")
	rootCmd.PersistentFlags().StringVarP(&usernameFlag, "username", "u", "", "Controller username")
	rootCmd.PersistentFlags().StringVar(&siteFlag, "site", "", "Controller site (default: default)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); silent when unset")
	rootCmd.PersistentFlags().StringSliceVar(&catalogFiles, "catalog", nil, "Extra action catalog file layered on the default (repeatable)")

	rootCmd.AddCommand(versionCmd)
}

// initLogging picks the first level set by the flag, UCD_LOG_LEVEL or the
// config file preferences.
func initLogging(level string) error {
	if level == "" {
		level = os.Getenv(logging.LogLevelEnvVar)
	}
	if level == "" {
		if reg, err := config.LoadRegistry(); err == nil && reg.Preferences != nil {
			level = reg.Preferences.LogLevel
		}
	}
	return logging.Initialize(level)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "ucd %s\n", version.Full())
	},
}
