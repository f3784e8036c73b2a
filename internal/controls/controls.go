package controls

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/muurk/ucd/internal/catalog"
	"github.com/muurk/ucd/internal/connect"
)

// Kind is the widget a control is presented as.
type Kind string

const (
	KindSwitch Kind = "switch"
	KindNumber Kind = "number"
	KindSelect Kind = "select"
	KindButton Kind = "button"
	KindText   Kind = "text"
	KindMedia  Kind = "media"
	KindSensor Kind = "sensor"
)

// Control keys produced by For. Buttons use ButtonPrefix plus the action.
const (
	KeyStatus     = "status"
	KeyDisplay    = "display"
	KeyVolume     = "volume"
	KeyBrightness = "brightness"
	KeyRotate     = "rotate"
	KeyMode       = "mode"
	KeyPlaylist   = "playlist"
	KeyWebsite    = "website"
	KeyYouTube    = "youtube"
	KeyMedia      = "media"
	ButtonPrefix  = "button_"
)

// Media commands accepted by Command for a KindMedia control. A float in
// [0, 1] sets the volume.
const (
	MediaTurnOn  = "turn_on"
	MediaTurnOff = "turn_off"
	MediaPlay    = "play"
	MediaPause   = "pause"
	MediaStop    = "stop"
)

// mediaExcludedModel has play and volume actions but no media surface.
const mediaExcludedModel = "UC-Cast-Pro"

var (
	// ErrReadOnly is returned by Command for controls that take no input.
	ErrReadOnly = errors.New("control is read-only")

	// ErrInvalidValue is returned by Command when the value does not fit
	// the control.
	ErrInvalidValue = errors.New("invalid control value")
)

// buttonActions are exposed as one-shot buttons when the model supports them.
var buttonActions = []string{
	catalog.ActionPowerOn,
	catalog.ActionPowerOff,
	catalog.ActionStartLocating,
	catalog.ActionStopLocating,
	catalog.ActionPlay,
	catalog.ActionStop,
	catalog.ActionReboot,
	catalog.ActionRotate,
}

// RotationOptions maps friendly rotation names to controller values.
var RotationOptions = []Option{
	{Label: "Landscape", Value: "landscapePrim"},
	{Label: "Portrait", Value: "portraitPrim"},
	{Label: "Landscape (flipped)", Value: "landscapeSec"},
	{Label: "Portrait (flipped)", Value: "portraitSec"},
}

// ModeOptions maps friendly mode names to controller values.
var ModeOptions = []Option{
	{Label: "Web", Value: "web"},
	{Label: "Media", Value: "digitalSignage"},
	{Label: "YouTube", Value: "youtube"},
}

// Range bounds a number control.
type Range struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Step float64 `json:"step,omitempty"`
}

// Option is one choice of a select control.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Control describes one user-facing surface of a display and how input on
// it maps to an action.
type Control struct {
	Key   string `json:"key"`
	Kind  Kind   `json:"kind"`
	Label string `json:"label"`

	// Action is sent on press, set or turn on. OffAction is sent on turn
	// off. VolumeAction is the media control's volume action.
	Action       string `json:"action,omitempty"`
	OffAction    string `json:"off_action,omitempty"`
	VolumeAction string `json:"volume_action,omitempty"`

	// Arg is the args key the input value is sent under.
	Arg string `json:"arg,omitempty"`

	Range   *Range   `json:"range,omitempty"`
	Options []Option `json:"options,omitempty"`
}

// For returns the controls a device supports, in a stable order.
// A nil catalog means the embedded default.
func For(d connect.Device, cat *catalog.Catalog, playlists []connect.Playlist) []Control {
	if cat == nil {
		cat = catalog.Default()
	}
	model := d.Model
	has := func(action string) bool { return cat.Supports(model, action) }

	controls := []Control{{Key: KeyStatus, Kind: KindSensor, Label: "Status"}}

	if on, off, ok := powerPair(cat, model); ok {
		controls = append(controls, Control{
			Key: KeyDisplay, Kind: KindSwitch, Label: "Display",
			Action: on, OffAction: off,
		})
	}

	if has(catalog.ActionBrightness) {
		controls = append(controls, Control{
			Key: KeyBrightness, Kind: KindNumber, Label: "Brightness",
			Action: catalog.ActionBrightness, Arg: "value",
			Range: &Range{Min: 0, Max: float64(d.MaxBrightness()), Step: 1},
		})
	}

	if volume, ok := volumeAction(cat, model); ok {
		controls = append(controls, Control{
			Key: KeyVolume, Kind: KindNumber, Label: "Volume",
			Action: volume, Arg: "value",
			Range: &Range{Min: 0, Max: float64(d.MaxVolume()), Step: 1},
		})
	}

	if has(catalog.ActionRotate) {
		controls = append(controls, Control{
			Key: KeyRotate, Kind: KindSelect, Label: "Rotation",
			Action: catalog.ActionRotate, Arg: "scale",
			Options: RotationOptions,
		})
	}

	if has(catalog.ActionSwitch) {
		controls = append(controls, Control{
			Key: KeyMode, Kind: KindSelect, Label: "Mode",
			Action: catalog.ActionSwitch, Arg: "mode",
			Options: ModeOptions,
		})
	}

	if has(catalog.ActionPlay) && len(playlists) > 0 {
		controls = append(controls, Control{
			Key: KeyPlaylist, Kind: KindSelect, Label: "Playlist",
			Action: catalog.ActionPlay, Arg: "playlistId",
			Options: playlistOptions(playlists),
		})
	}

	if has(catalog.ActionLoadWebsite) {
		controls = append(controls, Control{
			Key: KeyWebsite, Kind: KindText, Label: "Website URL",
			Action: catalog.ActionLoadWebsite, Arg: "url",
		})
	}
	if has(catalog.ActionLoadYouTube) {
		controls = append(controls, Control{
			Key: KeyYouTube, Kind: KindText, Label: "YouTube URL",
			Action: catalog.ActionLoadYouTube, Arg: "url",
		})
	}

	if IsMediaModel(cat, model) {
		on, off, _ := powerPair(cat, model)
		volume, _ := volumeAction(cat, model)
		controls = append(controls, Control{
			Key: KeyMedia, Kind: KindMedia, Label: "Media",
			Action: on, OffAction: off, VolumeAction: volume,
			Range: &Range{Min: 0, Max: float64(d.MaxVolume())},
		})
	}

	for _, action := range buttonActions {
		if has(action) {
			controls = append(controls, Control{
				Key: ButtonPrefix + action, Kind: KindButton, Label: titleCase(action),
				Action: action,
			})
		}
	}

	return controls
}

// Find returns the control with key.
func Find(controls []Control, key string) (Control, bool) {
	for _, c := range controls {
		if c.Key == key {
			return c, true
		}
	}
	return Control{}, false
}

// IsMediaModel reports whether a model gets a media control: it needs play
// and a volume action, and UC-Cast-Pro is excluded.
func IsMediaModel(cat *catalog.Catalog, model string) bool {
	if model == mediaExcludedModel {
		return false
	}
	_, hasVolume := volumeAction(cat, model)
	return cat.Supports(model, catalog.ActionPlay) && hasVolume
}

// Value reads the control's current value from a merged device. The bool
// is false when the device does not report it.
func Value(c Control, d connect.Device) (any, bool) {
	s := d.Shadow
	switch c.Kind {
	case KindSensor:
		if on, ok := s.Display(); ok {
			return onOff(on), true
		}
		if state, ok := s.String(connect.ShadowPowerState); ok {
			return strings.ToLower(state), true
		}
		return nil, false

	case KindSwitch:
		return s.Display()

	case KindNumber:
		return s.Int(c.ShadowKey())

	case KindSelect:
		raw, ok := s.String(c.ShadowKey())
		if !ok {
			return nil, false
		}
		for _, o := range c.Options {
			if o.Value == raw {
				return o.Label, true
			}
		}
		return raw, true

	case KindText:
		return s.String(c.ShadowKey())

	case KindMedia:
		on, ok := s.Display()
		if !ok {
			return nil, false
		}
		if !on {
			return "off", true
		}
		if mode, _ := s.Mode(); mode == "digitalSignage" {
			return "playing", true
		}
		return "idle", true
	}
	return nil, false
}

// ShadowKey returns the shadow key the control's value lives under.
func (c Control) ShadowKey() string {
	switch c.Key {
	case KeyVolume:
		return connect.ShadowVolume
	case KeyBrightness:
		return connect.ShadowBrightness
	case KeyRotate:
		return connect.ShadowRotate
	case KeyMode:
		return connect.ShadowMode
	case KeyPlaylist:
		return connect.ShadowPlaylistID
	case KeyWebsite:
		return connect.ShadowHomePage
	case KeyYouTube:
		return connect.ShadowYouTube
	}
	return c.Key
}

// Command maps user input on a control to an action and its args.
func Command(c Control, value any) (string, map[string]any, error) {
	switch c.Kind {
	case KindSensor:
		return "", nil, fmt.Errorf("%s: %w", c.Key, ErrReadOnly)

	case KindButton:
		return c.Action, nil, nil

	case KindSwitch:
		on, err := toBool(value)
		if err != nil {
			return "", nil, fmt.Errorf("%s: %w", c.Key, err)
		}
		if on {
			return c.Action, nil, nil
		}
		return c.OffAction, nil, nil

	case KindNumber:
		n, err := toFloat(value)
		if err != nil {
			return "", nil, fmt.Errorf("%s: %w", c.Key, err)
		}
		if c.Range != nil {
			n = math.Max(c.Range.Min, math.Min(c.Range.Max, n))
		}
		return c.Action, map[string]any{c.Arg: int(math.Round(n))}, nil

	case KindSelect:
		s, ok := value.(string)
		if !ok {
			return "", nil, fmt.Errorf("%s: %w: want a string, got %T", c.Key, ErrInvalidValue, value)
		}
		for _, o := range c.Options {
			if o.Label == s || o.Value == s {
				return c.Action, map[string]any{c.Arg: o.Value}, nil
			}
		}
		return "", nil, fmt.Errorf("%s: %w: unknown option %q", c.Key, ErrInvalidValue, s)

	case KindText:
		s, ok := value.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return "", nil, fmt.Errorf("%s: %w: want a non-empty string", c.Key, ErrInvalidValue)
		}
		return c.Action, map[string]any{c.Arg: strings.TrimSpace(s)}, nil

	case KindMedia:
		return mediaCommand(c, value)
	}
	return "", nil, fmt.Errorf("%s: %w: unknown kind %q", c.Key, ErrInvalidValue, c.Kind)
}

func mediaCommand(c Control, value any) (string, map[string]any, error) {
	if cmd, ok := value.(string); ok {
		switch cmd {
		case MediaTurnOn:
			return c.Action, nil, nil
		case MediaTurnOff:
			return c.OffAction, nil, nil
		case MediaPlay:
			return catalog.ActionPlay, nil, nil
		case MediaPause, MediaStop:
			return catalog.ActionStop, nil, nil
		}
	}

	level, err := toFloat(value)
	if err != nil || level < 0 || level > 1 {
		return "", nil, fmt.Errorf("%s: %w: want a media command or a level in [0, 1]", c.Key, ErrInvalidValue)
	}
	ceiling := float64(connect.DefaultMaxLevel)
	if c.Range != nil && c.Range.Max > 0 {
		ceiling = c.Range.Max
	}
	return c.VolumeAction, map[string]any{"value": int(math.Round(level * ceiling))}, nil
}

// powerPair prefers display_on/off and falls back to power_on/off.
func powerPair(cat *catalog.Catalog, model string) (string, string, bool) {
	if cat.Supports(model, catalog.ActionDisplayOn) && cat.Supports(model, catalog.ActionDisplayOff) {
		return catalog.ActionDisplayOn, catalog.ActionDisplayOff, true
	}
	if cat.Supports(model, catalog.ActionPowerOn) && cat.Supports(model, catalog.ActionPowerOff) {
		return catalog.ActionPowerOn, catalog.ActionPowerOff, true
	}
	return "", "", false
}

func volumeAction(cat *catalog.Catalog, model string) (string, bool) {
	switch {
	case cat.Supports(model, catalog.ActionVolume):
		return catalog.ActionVolume, true
	case cat.Supports(model, catalog.ActionSetVolume):
		return catalog.ActionSetVolume, true
	}
	return "", false
}

// playlistOptions labels each playlist by name, falling back to its id.
func playlistOptions(playlists []connect.Playlist) []Option {
	out := make([]Option, 0, len(playlists))
	for _, p := range playlists {
		if p.ID == "" {
			continue
		}
		label := p.Name
		if label == "" {
			label = p.ID
		}
		out = append(out, Option{Value: p.ID, Label: label})
	}
	return out
}

func titleCase(action string) string {
	words := strings.Split(action, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func toBool(v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "on", "true", "1":
			return true, nil
		case "off", "false", "0":
			return false, nil
		}
	}
	return false, fmt.Errorf("%w: want on/off, got %v", ErrInvalidValue, v)
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case float64:
		return t, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidValue, t)
		}
		return f, nil
	}
	return 0, fmt.Errorf("%w: want a number, got %T", ErrInvalidValue, v)
}
