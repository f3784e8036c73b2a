package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/muurk/ucd/internal/catalog"
	"github.com/muurk/ucd/internal/connect"
	"github.com/muurk/ucd/internal/controls"
	"github.com/muurk/ucd/internal/logging"
	"go.uber.org/zap"
)

const (
	// volumeStep is how far one key press moves the volume.
	volumeStep = 5

	actionTimeout  = 15 * time.Second
	refreshTimeout = 30 * time.Second
)

// Controller is the part of connect.Client the dashboard uses.
type Controller interface {
	Devices() []connect.Device
	Refresh(ctx context.Context) []connect.Device
	Subscribe(ids ...string) *connect.Subscription
	PerformAction(ctx context.Context, deviceID, action string, args map[string]any) (connect.ActionResult, error)
	Catalog() *catalog.Catalog
}

// Messages
type (
	// signalMsg carries one device id from the client subscription.
	signalMsg struct{ id string }

	// subscriptionClosedMsg is sent when the subscription channel closes.
	subscriptionClosedMsg struct{}

	refreshDoneMsg struct{ count int }

	actionDoneMsg struct {
		device string
		action string
		err    error
	}
)

// Model is the dashboard: a device list with the selected device's
// controls below it. It re-reads the client cache on every signal.
type Model struct {
	ctl Controller
	sub *connect.Subscription

	Devices    []connect.Device
	Cursor     int
	Refreshing bool
	Pending    int
	Status     string
	Err        error

	Width   int
	Height  int
	Spinner spinner.Model
	Help    help.Model
	Keys    keyMap
}

// NewModel returns a dashboard over ctl. The subscription is opened here
// so no signal is missed before the program starts.
func NewModel(ctl Controller) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return Model{
		ctl:     ctl,
		sub:     ctl.Subscribe(),
		Devices: ctl.Devices(),
		Width:   MinTerminalWidth,
		Height:  24,
		Spinner: s,
		Help:    help.New(),
		Keys:    newKeyMap(),
	}
}

// Init starts the first refresh and the signal loop.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.refresh(),
		waitForSignal(m.sub),
		m.Spinner.Tick,
	)
}

// Close releases the subscription.
func (m Model) Close() {
	if m.sub != nil {
		m.sub.Close()
	}
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case signalMsg:
		m.reload()
		return m, waitForSignal(m.sub)

	case subscriptionClosedMsg:
		return m, nil

	case refreshDoneMsg:
		m.Refreshing = false
		m.reload()
		m.Status = fmt.Sprintf("Refreshed %d devices", msg.count)
		return m, nil

	case actionDoneMsg:
		m.Pending--
		if msg.err != nil {
			m.Err = msg.err
			m.Status = ""
		} else {
			m.Err = nil
			m.Status = fmt.Sprintf("%s sent to %s", msg.action, msg.device)
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.Keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.Keys.Help):
		m.Help.ShowAll = !m.Help.ShowAll
		return m, nil
	case key.Matches(msg, m.Keys.Up):
		if m.Cursor > 0 {
			m.Cursor--
		}
		return m, nil
	case key.Matches(msg, m.Keys.Down):
		if m.Cursor < len(m.Devices)-1 {
			m.Cursor++
		}
		return m, nil
	case key.Matches(msg, m.Keys.Refresh):
		if m.Refreshing {
			return m, nil
		}
		m.Refreshing = true
		m.Status = "Refreshing..."
		return m, m.refresh()
	}

	d, ok := m.Selected()
	if !ok {
		return m, nil
	}
	controlSet := controls.For(d, m.ctl.Catalog(), nil)

	var (
		controlKey string
		value      any
	)
	switch {
	case key.Matches(msg, m.Keys.Toggle):
		controlKey = controls.KeyDisplay
		on, _ := currentValue(controlSet, controlKey, d).(bool)
		value = !on
	case key.Matches(msg, m.Keys.VolumeUp):
		controlKey = controls.KeyVolume
		level, _ := currentValue(controlSet, controlKey, d).(int)
		value = level + volumeStep
	case key.Matches(msg, m.Keys.VolumeDown):
		controlKey = controls.KeyVolume
		level, _ := currentValue(controlSet, controlKey, d).(int)
		value = level - volumeStep
	case key.Matches(msg, m.Keys.Rotate):
		controlKey = controls.KeyRotate
		value = nextOption(controlSet, controlKey, d)
	case key.Matches(msg, m.Keys.Mode):
		controlKey = controls.KeyMode
		value = nextOption(controlSet, controlKey, d)
	default:
		return m, nil
	}

	c, ok := controls.Find(controlSet, controlKey)
	if !ok {
		m.Err = fmt.Errorf("%s does not support %s", displayName(d), controlKey)
		return m, nil
	}
	action, args, err := controls.Command(c, value)
	if err != nil {
		m.Err = err
		return m, nil
	}

	m.Pending++
	m.Err = nil
	m.Status = fmt.Sprintf("Sending %s to %s...", action, displayName(d))
	return m, m.perform(d, action, args)
}

// Selected returns the device under the cursor.
func (m Model) Selected() (connect.Device, bool) {
	if m.Cursor < 0 || m.Cursor >= len(m.Devices) {
		return connect.Device{}, false
	}
	return m.Devices[m.Cursor], true
}

// reload re-reads the cache and keeps the cursor on the same device.
func (m *Model) reload() {
	var selectedID string
	if d, ok := m.Selected(); ok {
		selectedID = d.ID
	}

	m.Devices = m.ctl.Devices()
	m.Cursor = 0
	for i, d := range m.Devices {
		if d.ID == selectedID {
			m.Cursor = i
			break
		}
	}
}

func (m Model) refresh() tea.Cmd {
	ctl := m.ctl
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()
		return refreshDoneMsg{count: len(ctl.Refresh(ctx))}
	}
}

func (m Model) perform(d connect.Device, action string, args map[string]any) tea.Cmd {
	ctl := m.ctl
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()

		_, err := ctl.PerformAction(ctx, d.ID, action, args)
		if err != nil {
			logging.Warn("Dashboard action failed",
				zap.String("device_id", d.ID),
				zap.String("action", action),
				zap.Error(err),
			)
			err = errors.New(connect.ShortMessage(err))
		}
		return actionDoneMsg{device: displayName(d), action: action, err: err}
	}
}

// waitForSignal blocks on the subscription and turns the next id into a
// message.
func waitForSignal(sub *connect.Subscription) tea.Cmd {
	return func() tea.Msg {
		id, ok := <-sub.C
		if !ok {
			return subscriptionClosedMsg{}
		}
		return signalMsg{id: id}
	}
}

func currentValue(controlSet []controls.Control, controlKey string, d connect.Device) any {
	c, ok := controls.Find(controlSet, controlKey)
	if !ok {
		return nil
	}
	v, _ := controls.Value(c, d)
	return v
}

// nextOption returns the option after the current one, wrapping around.
// An unknown current value selects the first option.
func nextOption(controlSet []controls.Control, controlKey string, d connect.Device) string {
	c, ok := controls.Find(controlSet, controlKey)
	if !ok || len(c.Options) == 0 {
		return ""
	}
	current, _ := currentValue(controlSet, controlKey, d).(string)
	for i, o := range c.Options {
		if o.Label == current || o.Value == current {
			return c.Options[(i+1)%len(c.Options)].Value
		}
	}
	return c.Options[0].Value
}

func displayName(d connect.Device) string {
	if d.Name != "" {
		return d.Name
	}
	return d.ID
}

// Run starts the dashboard and blocks until the user quits or ctx is done.
func Run(ctx context.Context, ctl Controller) error {
	m := NewModel(ctl)
	defer m.Close()

	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
