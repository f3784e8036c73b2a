package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/ucd/internal/catalog"
	"github.com/muurk/ucd/internal/config"
	"github.com/muurk/ucd/internal/connect"
	"github.com/muurk/ucd/internal/controls"
	"github.com/muurk/ucd/internal/ui"
)

const requestTimeout = 30 * time.Second

// Command flags
var (
	outputFormat string
	assumeYes    bool
	setDefault   bool
	verifyAction bool
	verifyTries  int
)

// disruptiveActions interrupt what the display is showing and ask for
// confirmation unless --yes is given.
var disruptiveActions = map[string]string{
	catalog.ActionReboot:   "The device will restart and go blank for about a minute",
	catalog.ActionPowerOff: "The device will power off and may need a power_on to come back",
}

var loginTroubleshooting = []string{
	"Check the controller host and that it is reachable on port 443",
	"Check the username and the " + config.PasswordEnvVar + " password",
	"Use a local console account; cloud SSO accounts cannot log in",
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(sitesCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(deviceCmd)
	rootCmd.AddCommand(actionCmd)
	rootCmd.AddCommand(controlsCmd)
	rootCmd.AddCommand(playlistsCmd)
}

// loginCmd verifies credentials and stores the controller
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to a controller and save it to the config file",
	Long: `Log in to a UniFi console and save its host, username and site.

Every known login endpoint is tried in turn. After a successful login the
controller's sites are listed; when --site is not given and the console has
exactly one site it is selected, otherwise the default site is used.

The password is read from ` + config.PasswordEnvVar + ` or prompted for and is never saved.`,
	Example: `  # Add a controller and make it the default
  ucd login --host 192.168.1.1 --username admin --controller home --default

  # Re-check the default controller
  ucd login`,
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().BoolVar(&setDefault, "default", false, "Make this the default controller")
}

func runLogin(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	t, err := resolveTarget()
	if err != nil {
		return err
	}
	password, err := readPassword(config.PasswordEnvVar, fmt.Sprintf("Password for %s@%s: ", t.Controller.Username, t.Controller.Host))
	if err != nil {
		return err
	}

	client, err := t.newClient(password)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	if err := client.Login(ctx); err != nil {
		fmt.Fprintln(os.Stderr, ui.RenderFailure("Login failed", err, loginTroubleshooting))
		return fmt.Errorf("login to %s failed: %s", t.Controller.Host, connect.ShortMessage(err))
	}

	site := t.Controller.Site
	sites, err := client.ListSites(ctx)
	switch {
	case err != nil:
		// Older consoles have no site listing; keep the manual site.
		sites = nil
	case site == "" && len(sites) == 1:
		site = sites[0].Name
	}
	if site == "" {
		site = "default"
	}

	c := t.Registry.EnsureController(t.Name)
	c.Host = connect.NormalizeHost(t.Controller.Host)
	c.Username = t.Controller.Username
	c.Site = site
	if t.Controller.CatalogFile != "" {
		c.CatalogFile = t.Controller.CatalogFile
	}
	t.Registry.RecordLogin(t.Name, client.Session().LoginPath())
	if setDefault {
		if err := t.Registry.SetDefault(t.Name); err != nil {
			return err
		}
	}
	if err := t.Registry.Save(); err != nil {
		return fmt.Errorf("logged in, but failed to save config: %w", err)
	}

	details := map[string]string{
		"Controller": t.Name,
		"Host":       c.Host,
		"Login path": client.Session().LoginPath(),
		"Site":       site,
	}
	if len(sites) > 0 {
		names := make([]string, len(sites))
		for i, s := range sites {
			names[i] = s.Name
		}
		details["Sites"] = strings.Join(names, ", ")
	}
	if path, err := config.GetConfigPath(); err == nil {
		details["Saved to"] = path
	}
	fmt.Fprintln(cmd.OutOrStdout(), ui.RenderSuccess("Logged in", details))
	return nil
}

var sitesCmd = &cobra.Command{
	Use:   "sites",
	Short: "List the controller's sites",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := openClient(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()
		sites, err := client.ListSites(ctx)
		if err != nil {
			return fmt.Errorf("failed to list sites: %s", connect.ShortMessage(err))
		}

		rows := make([][]string, len(sites))
		for i, s := range sites {
			rows[i] = []string{s.Name, s.ID}
		}
		return printList(cmd.OutOrStdout(), sites, []string{"NAME", "ID"}, rows)
	},
}

// devicesCmd lists every discovered device
var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List Connect devices",
	Long: `Discover the controller's Connect devices and list them.

Discovery tries each known endpoint until one answers with devices, so the
list is empty only when every endpoint failed or the site has no devices.`,
	Example: `  # Table output
  ucd devices

  # JSON for scripting
  ucd devices --format json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := openClient(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer client.Close()

		devices := client.Devices()
		if outputFormat == "json" {
			return writeJSON(cmd.OutOrStdout(), devices)
		}

		if len(devices) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No devices found.")
			if err := client.Directory().LastOutcome(); err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Last discovery error: %s\n", connect.ShortMessage(err))
			}
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.RenderDeviceTable(devices))
		fmt.Fprintln(cmd.OutOrStdout(), ui.MutedStyle.Render(fmt.Sprintf("%d device(s) via %s", len(devices), client.Directory().LastStrategy())))
		return nil
	},
}

func init() {
	devicesCmd.Flags().StringVar(&outputFormat, "format", "table", "Output format (table, json)")
}

var deviceCmd = &cobra.Command{
	Use:   "device <id>",
	Short: "Show one device as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := openClient(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer client.Close()

		d, err := lookupDevice(client, args[0])
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), d)
	},
}

// actionCmd sends one action to a device
var actionCmd = &cobra.Command{
	Use:   "action <id> <action> [key=value...]",
	Short: "Send an action to a device",
	Long: `Send an action to a device.

The action name is resolved to the identifier for the device's model using
the action catalog. Arguments are key=value pairs; numbers and booleans are
typed automatically.

Common actions: display_on, display_off, power_on, power_off, volume value=N,
set_volume value=N, brightness value=N, rotate scale=portraitPrim,
switch mode=web, load_website url=..., load_youtube url=...,
play playlistId=..., stop, reboot, start_locating, stop_locating.`,
	Example: `  ucd action d1 display_off
  ucd action d1 volume value=35
  ucd action d1 rotate scale=portraitPrim
  ucd action d1 load_website url=https://example.com
  ucd action d1 reboot --yes

  # Wait until the controller reports the new state
  ucd action d1 switch mode=youtube --verify`,
	Args: cobra.MinimumNArgs(2),
	RunE: runAction,
}

func init() {
	actionCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Skip the confirmation for disruptive actions")
	actionCmd.Flags().BoolVar(&verifyAction, "verify", false, "Refresh until the controller reports the expected state")
	actionCmd.Flags().IntVar(&verifyTries, "retries", connect.DefaultVerifyOptions().MaxAttempts, "Verification attempts")
}

func runAction(cmd *cobra.Command, args []string) error {
	deviceID, action := args[0], args[1]
	actionArgs, err := parseActionArgs(args[2:])
	if err != nil {
		return err
	}

	client, t, err := openClient(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer client.Close()

	d, err := lookupDevice(client, deviceID)
	if err != nil {
		return err
	}

	if warning, ok := disruptiveActions[action]; ok && !assumeYes {
		title := fmt.Sprintf("%s %s (%s)", action, d.Name, d.ID)
		if !ui.Confirm(os.Stdin, os.Stderr, title, []string{warning}) {
			return nil
		}
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
	defer cancel()

	result, err := client.PerformAction(ctx, d.ID, action, actionArgs)
	if err != nil {
		var hints []string
		if connect.IsUnsupportedActionError(err) {
			hints = []string{
				fmt.Sprintf("%s supports: %s", d.Model, strings.Join(client.Catalog().Actions(d.Model), ", ")),
				"Add identifiers for other models with --catalog",
			}
		}
		fmt.Fprintln(os.Stderr, ui.RenderFailure(fmt.Sprintf("%s failed", action), err, hints))
		return fmt.Errorf("%s on %s: %s", action, d.ID, connect.ShortMessage(err))
	}

	details := map[string]string{
		"Controller": t.Name,
		"Device":     fmt.Sprintf("%s (%s)", d.Name, d.ID),
		"Model":      d.Model,
	}
	if len(actionArgs) > 0 {
		details["Args"] = formatJSON(actionArgs)
	}
	if len(result) > 0 {
		details["Response"] = formatJSON(result)
	}

	title := fmt.Sprintf("%s sent", action)
	if verifyAction {
		opts := connect.DefaultVerifyOptions()
		opts.MaxAttempts = verifyTries
		verified := client.VerifyAction(cmd.Context(), d.ID, action, actionArgs, opts)
		if !verified.Success {
			fmt.Fprintln(os.Stderr, ui.RenderFailure(fmt.Sprintf("%s sent but not confirmed", action), verified.Err, []string{
				"The display may be offline or still applying the action",
				"Check again with 'ucd device " + d.ID + "'",
			}))
			return fmt.Errorf("%s on %s not confirmed after %d attempt(s)", action, d.ID, verified.Attempts)
		}
		if verified.Expected != nil {
			title = fmt.Sprintf("%s applied", action)
			details["Verified"] = fmt.Sprintf("%s (%d attempt(s))", formatJSON(verified.Expected), verified.Attempts)
		}
	}
	fmt.Fprintln(cmd.OutOrStdout(), ui.RenderSuccess(title, details))
	return nil
}

var controlsCmd = &cobra.Command{
	Use:   "controls <id>",
	Short: "List the controls a device supports with their current values",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := openClient(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer client.Close()

		d, err := lookupDevice(client, args[0])
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()
		playlists, _ := client.ListPlaylists(ctx)

		set := controls.For(d, client.Catalog(), playlists)
		if outputFormat == "json" {
			return writeJSON(cmd.OutOrStdout(), set)
		}

		rows := make([][]string, 0, len(set))
		for _, c := range set {
			value := "-"
			if v, ok := controls.Value(c, d); ok {
				value = fmt.Sprint(v)
			}
			rows = append(rows, []string{c.Key, string(c.Kind), c.Label, value, c.Action})
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.NewHeader("controls", "ucd controls "+d.ID, map[string]string{
			"Device": d.Name,
			"Model":  d.Model,
		}).Render())
		fmt.Fprintln(cmd.OutOrStdout(), ui.RenderTable([]string{"KEY", "KIND", "LABEL", "VALUE", "ACTION"}, rows, nil))
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{controlsCmd, sitesCmd, playlistsCmd} {
		c.Flags().StringVar(&outputFormat, "format", "table", "Output format (table, json)")
	}
}

var playlistsCmd = &cobra.Command{
	Use:   "playlists",
	Short: "List signage playlists",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := openClient(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()
		playlists, err := client.ListPlaylists(ctx)
		if err != nil {
			return fmt.Errorf("failed to list playlists: %s", connect.ShortMessage(err))
		}

		rows := make([][]string, len(playlists))
		for i, p := range playlists {
			rows[i] = []string{p.Name, p.ID}
		}
		return printList(cmd.OutOrStdout(), playlists, []string{"NAME", "ID"}, rows)
	},
}

// printList writes v as JSON or rows as a table, per --format.
func printList(out io.Writer, v any, headers []string, rows [][]string) error {
	if outputFormat == "json" {
		return writeJSON(out, v)
	}
	if len(rows) == 0 {
		fmt.Fprintln(out, "None found.")
		return nil
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i][0] < rows[j][0] })
	fmt.Fprintln(out, ui.RenderTable(headers, rows, nil))
	return nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return nil
}

func formatJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
