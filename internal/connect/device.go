package connect

import (
	"encoding/json"
	"math"
	"strings"
)

// Shadow keys normalized by this package. Everything else in a shadow is
// passed through untouched.
const (
	ShadowDisplay    = "display"
	ShadowVolume     = "volume"
	ShadowBrightness = "brightness"
	ShadowRotate     = "rotate"
	ShadowMode       = "mode"
	ShadowHomePage   = "currentHomePage"
	ShadowYouTube    = "currentYouTubePage"
	ShadowPlaylistID = "playlistId"
	ShadowPowerState = "powerState"
)

// DefaultMaxLevel is used when a device reports no volume or brightness limit.
const DefaultMaxLevel = 100

// Shadow is the controller-reported live state of a device.
type Shadow map[string]any

// Clone returns a deep copy of the shadow.
func (s Shadow) Clone() Shadow {
	if s == nil {
		return Shadow{}
	}
	return Shadow(cloneMap(s))
}

// Bool returns a boolean shadow field.
func (s Shadow) Bool(key string) (bool, bool) {
	b, ok := s[key].(bool)
	return b, ok
}

// Int returns a numeric shadow field truncated to an int.
func (s Shadow) Int(key string) (int, bool) {
	return toInt(s[key])
}

// String returns a string shadow field.
func (s Shadow) String(key string) (string, bool) {
	str, ok := s[key].(string)
	return str, ok
}

// Display reports whether the screen is on.
func (s Shadow) Display() (bool, bool) { return s.Bool(ShadowDisplay) }

// Volume returns the current volume level.
func (s Shadow) Volume() (int, bool) { return s.Int(ShadowVolume) }

// Brightness returns the current brightness level.
func (s Shadow) Brightness() (int, bool) { return s.Int(ShadowBrightness) }

// Rotation returns the raw rotation value (e.g. "landscapePrim").
func (s Shadow) Rotation() (string, bool) { return s.String(ShadowRotate) }

// Mode returns the raw operating mode (e.g. "web", "digitalSignage").
func (s Shadow) Mode() (string, bool) { return s.String(ShadowMode) }

// HomePage returns the last loaded website.
func (s Shadow) HomePage() (string, bool) { return s.String(ShadowHomePage) }

// YouTubePage returns the last loaded YouTube URL.
func (s Shadow) YouTubePage() (string, bool) { return s.String(ShadowYouTube) }

// PlaylistID returns the active signage playlist.
func (s Shadow) PlaylistID() (string, bool) { return s.String(ShadowPlaylistID) }

// Snapshot is the optional screen capture metadata some firmwares report.
type Snapshot struct {
	Title     string `json:"title,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`
	Favicon   string `json:"favicon,omitempty"`
}

// Device is an immutable snapshot of one display as last reported by the
// controller, possibly with an optimistic patch merged into Shadow.
type Device struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Model    string         `json:"model"`
	Online   bool           `json:"online"`
	Shadow   Shadow         `json:"shadow"`
	Snapshot *Snapshot      `json:"snapshot,omitempty"`
	Raw      map[string]any `json:"-"`
}

// ParseDevice normalizes a raw controller record. It returns false when the
// record has no usable id.
func ParseDevice(record map[string]any) (Device, bool) {
	id, _ := record["id"].(string)
	if id == "" {
		return Device{}, false
	}

	raw := cloneMap(record)
	dev := Device{
		ID:    id,
		Model: modelKey(raw),
		Raw:   raw,
	}

	if name, ok := raw["name"].(string); ok && name != "" {
		dev.Name = name
	} else {
		dev.Name = dev.Model
	}

	dev.Online = onlineFlag(raw)

	if shadow, ok := raw["shadow"].(map[string]any); ok {
		dev.Shadow = Shadow(cloneMap(shadow))
	} else {
		dev.Shadow = Shadow{}
	}

	dev.Snapshot = parseSnapshot(raw, dev.Shadow)
	return dev, true
}

// Clone returns a deep copy of the device.
func (d Device) Clone() Device {
	out := d
	out.Shadow = d.Shadow.Clone()
	if d.Raw != nil {
		out.Raw = cloneMap(d.Raw)
	}
	if d.Snapshot != nil {
		snap := *d.Snapshot
		out.Snapshot = &snap
	}
	return out
}

// Record returns the opaque controller record with the (possibly merged)
// shadow written back into it.
func (d Device) Record() map[string]any {
	rec := cloneMap(d.Raw)
	if rec == nil {
		rec = map[string]any{"id": d.ID}
	}
	rec["shadow"] = map[string]any(d.Shadow.Clone())
	return rec
}

// MarshalJSON emits the full controller record so that consumers see the
// opaque fields as well as the merged shadow.
func (d Device) MarshalJSON() ([]byte, error) {
	rec := d.Record()
	rec["id"] = d.ID
	rec["name"] = d.Name
	rec["model"] = d.Model
	rec["online"] = d.Online
	return json.Marshal(rec)
}

// MaxVolume returns the device's volume ceiling. featureFlags.volume.max
// wins over extraInfo.maxVolume; each is looked up on the record and then
// on the shadow.
func (d Device) MaxVolume() int {
	return d.limit(
		[]string{"featureFlags", "volume", "max"},
		[]string{"extraInfo", "maxVolume"},
	)
}

// MaxBrightness returns the device's brightness ceiling, resolved the same
// way as MaxVolume.
func (d Device) MaxBrightness() int {
	return d.limit(
		[]string{"featureFlags", "brightness", "max"},
		[]string{"extraInfo", "maxBrightness"},
	)
}

func (d Device) limit(paths ...[]string) int {
	for _, path := range paths {
		for _, src := range []map[string]any{d.Raw, d.Shadow} {
			if v, ok := toInt(lookupPath(src, path)); ok && v > 0 {
				return v
			}
		}
	}
	return DefaultMaxLevel
}

func modelKey(rec map[string]any) string {
	if model, ok := rec["model"].(string); ok && model != "" {
		return model
	}
	if name, ok := lookupPath(rec, []string{"type", "name"}).(string); ok {
		return name
	}
	return ""
}

func onlineFlag(rec map[string]any) bool {
	for _, key := range []string{"online", "isOnline"} {
		if b, ok := rec[key].(bool); ok {
			return b
		}
	}
	for _, key := range []string{"state", "status"} {
		if s, ok := rec[key].(string); ok {
			switch strings.ToLower(s) {
			case "online", "connected":
				return true
			}
		}
	}
	return false
}

func parseSnapshot(rec map[string]any, shadow Shadow) *Snapshot {
	var src map[string]any
	if m, ok := rec["snapshot"].(map[string]any); ok {
		src = m
	} else if m, ok := shadow["snapshot"].(map[string]any); ok {
		src = m
	}
	if src == nil {
		return nil
	}

	snap := &Snapshot{}
	snap.Title, _ = src["title"].(string)
	snap.Thumbnail, _ = src["thumbnail"].(string)
	snap.Favicon, _ = src["favicon"].(string)
	if *snap == (Snapshot{}) {
		return nil
	}
	return snap
}

func lookupPath(m map[string]any, path []string) any {
	var cur any = m
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = obj[key]
		if !ok {
			return nil
		}
	}
	return cur
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
		if f, err := n.Float64(); err == nil {
			return int(f), true
		}
	}
	return 0, false
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case Shadow:
		return Shadow(cloneMap(t))
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
