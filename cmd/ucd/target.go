package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/muurk/ucd/internal/catalog"
	"github.com/muurk/ucd/internal/config"
	"github.com/muurk/ucd/internal/connect"
	"github.com/muurk/ucd/internal/logging"
	"github.com/muurk/ucd/internal/ui"
	"go.uber.org/zap"
)

const loginTimeout = 30 * time.Second

// target is the controller a command talks to, resolved from the config
// file and the persistent flags.
type target struct {
	Name       string
	Controller config.Controller
	Registry   *config.Registry
}

// resolveTarget merges the persistent flags over the configured controller.
// --host alone is enough to address a controller that is not configured.
func resolveTarget() (*target, error) {
	reg, err := config.LoadRegistry()
	if err != nil {
		return nil, err
	}

	t := &target{Registry: reg}
	if hostFlag != "" {
		t.Name = controllerName
		if t.Name == "" {
			t.Name = connect.NormalizeHost(hostFlag)
		}
		if existing := reg.GetController(t.Name); existing != nil {
			t.Controller = *existing
		}
		t.Controller.Host = hostFlag
	} else {
		name, c, err := reg.Resolve(controllerName)
		if err != nil {
			return nil, err
		}
		t.Name = name
		t.Controller = *c
	}

	if usernameFlag != "" {
		t.Controller.Username = usernameFlag
	}
	if siteFlag != "" {
		t.Controller.Site = siteFlag
	}
	if t.Controller.Username == "" {
		return nil, fmt.Errorf("no username for controller %s (use --username)", t.Name)
	}
	return t, nil
}

// readPassword returns the controller password from the environment or an
// interactive prompt.
func readPassword(envVar, prompt string) (string, error) {
	if p := os.Getenv(envVar); p != "" {
		return p, nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("no password: set %s or run interactively", envVar)
	}

	fmt.Fprint(os.Stderr, prompt)
	data, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	password := strings.TrimRight(string(data), "\r\n")
	if password == "" {
		return "", errors.New("empty password")
	}
	return password, nil
}

// newClient builds a client for t without contacting the controller.
func (t *target) newClient(password string) (*connect.Client, error) {
	cat, err := t.Controller.LoadCatalog(catalogFiles...)
	if err != nil {
		return nil, err
	}
	opts := t.Registry.Preferences.ClientOptions()
	opts.Catalog = cat

	return connect.New(t.Controller.SessionConfig(password), opts)
}

// openClient resolves the target, logs in and, when listDevices is set,
// fills the device cache. The caller closes the client.
func openClient(ctx context.Context, listDevices bool) (*connect.Client, *target, error) {
	t, err := resolveTarget()
	if err != nil {
		return nil, nil, err
	}
	password, err := readPassword(config.PasswordEnvVar, fmt.Sprintf("Password for %s@%s: ", t.Controller.Username, t.Controller.Host))
	if err != nil {
		return nil, nil, err
	}

	client, err := t.newClient(password)
	if err != nil {
		return nil, nil, err
	}

	loginCtx, cancel := context.WithTimeout(ctx, loginTimeout)
	defer cancel()
	if err := client.Login(loginCtx); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	logging.Debug("Logged in",
		zap.String("controller", t.Name),
		zap.String("login_path", client.Session().LoginPath()),
	)

	if listDevices {
		devices := client.ListDevices(loginCtx)
		if len(devices) == 0 {
			if err := client.Directory().LastOutcome(); err != nil {
				logging.Warn("Device discovery found nothing", zap.Error(err))
			}
		}
		if models := placeholderModels(client.Catalog(), devices); len(models) > 0 {
			logging.Warn("Action catalog uses placeholder identifiers",
				zap.Strings("models", models),
				zap.String("controller", t.Name),
			)
			fmt.Fprintln(os.Stderr, ui.MutedStyle.Render(fmt.Sprintf(
				"Warning: no action identifiers configured for %s; actions will be rejected. Set catalog_file or pass --catalog.",
				strings.Join(models, ", "))))
		}
	}
	return client, t, nil
}

// placeholderModels returns the sorted, distinct models of devices whose
// action identifiers still come from a placeholder catalog.
func placeholderModels(cat *catalog.Catalog, devices []connect.Device) []string {
	seen := make(map[string]bool)
	var models []string
	for _, d := range devices {
		model := d.Model
		if model == "" || seen[model] || !cat.IsPlaceholder(model) {
			continue
		}
		seen[model] = true
		models = append(models, model)
	}
	sort.Strings(models)
	return models
}

// lookupDevice returns a cached device or a helpful error.
func lookupDevice(client *connect.Client, id string) (connect.Device, error) {
	d, ok := client.Device(id)
	if ok {
		return d, nil
	}
	known := make([]string, 0)
	for _, d := range client.Devices() {
		known = append(known, d.ID)
	}
	if len(known) == 0 {
		return connect.Device{}, fmt.Errorf("device %s not found (no devices discovered)", id)
	}
	return connect.Device{}, fmt.Errorf("device %s not found (known: %s)", id, strings.Join(known, ", "))
}
