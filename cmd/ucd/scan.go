package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/ucd/internal/config"
	"github.com/muurk/ucd/internal/discovery"
)

var scanTimeout int

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().IntVar(&scanTimeout, "timeout", 0, "Scan timeout in seconds (default from config, 5)")
}

// scanCmd discovers consoles on the network
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the local network for UniFi consoles",
	Long: `Scan for UniFi consoles using mDNS/DNS-SD discovery.

Only answers whose name looks like a UniFi console (UDM, UDR, UCK, UCG,
UNVR, UDW, UXG, UniFi) are listed. Use the printed host with 'ucd login'.`,
	Example: `  # Scan with the default timeout
  ucd scan

  # Longer scan for networks with many devices
  ucd scan --timeout 15`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

func runScan(cmd *cobra.Command, args []string) error {
	timeout := time.Duration(scanTimeout) * time.Second
	if timeout <= 0 {
		timeout = discovery.DefaultScanTimeout
		if reg, err := config.LoadRegistry(); err == nil {
			timeout = reg.Preferences.DiscoverDuration()
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Scanning for UniFi consoles (timeout: %s)...\n\n", timeout)

	consoles, err := discovery.QuickScan(cmd.Context(), timeout)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if len(consoles) == 0 {
		fmt.Fprintln(out, "No consoles found.")
		fmt.Fprintln(out, "\nTroubleshooting:")
		fmt.Fprintln(out, "  - Make sure this computer is on the same network as the console")
		fmt.Fprintln(out, "  - mDNS is often blocked across VLANs; pass --host to 'ucd login' instead")
		fmt.Fprintln(out, "  - Try increasing --timeout")
		return nil
	}

	fmt.Fprintf(out, "Found %d console(s):\n\n", len(consoles))
	for i, c := range consoles {
		fmt.Fprintf(out, "%d. %s\n", i+1, c.Name)
		fmt.Fprintf(out, "   Host:     %s\n", c.Host())
		fmt.Fprintf(out, "   Hostname: %s\n", c.Hostname)
		fmt.Fprintf(out, "   Service:  %s\n", c.Service)
		if len(c.Metadata) > 0 {
			fmt.Fprintf(out, "   Metadata: %v\n", c.Metadata)
		}
		fmt.Fprintln(out)
	}

	fmt.Fprintln(out, "Use 'ucd login --host <host> --username <user>' to add a console")
	return nil
}
