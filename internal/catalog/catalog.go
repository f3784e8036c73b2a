// Package catalog maps a display model and a semantic action name to the
// opaque action identifier the controller expects.
//
// The catalog is pure data. It is loaded from YAML (an embedded default plus
// optional override files) and never changes once the client is running.
package catalog

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Action names shared by the dispatcher, the controls layer and the CLI.
const (
	ActionPowerOn       = "power_on"
	ActionPowerOff      = "power_off"
	ActionDisplayOn     = "display_on"
	ActionDisplayOff    = "display_off"
	ActionVolume        = "volume"
	ActionSetVolume     = "set_volume"
	ActionBrightness    = "brightness"
	ActionRotate        = "rotate"
	ActionSwitch        = "switch"
	ActionLoadWebsite   = "load_website"
	ActionLoadYouTube   = "load_youtube"
	ActionPlay          = "play"
	ActionStop          = "stop"
	ActionReboot        = "reboot"
	ActionStartLocating = "start_locating"
	ActionStopLocating  = "stop_locating"
)

// Catalog is a model key -> action name -> action identifier table.
type Catalog struct {
	Version int                          `yaml:"version"`
	Models  map[string]map[string]string `yaml:"models"`

	// Placeholder marks a file whose identifiers are samples rather than
	// values read from a controller. Every model it defines inherits the mark.
	Placeholder bool `yaml:"placeholder,omitempty"`

	placeholders map[string]bool
}

// Default returns the catalog compiled into the binary.
// It panics only if the embedded file is malformed, which tests guard against.
func Default() *Catalog {
	c, err := Load(bytes.NewReader(defaultCatalog))
	if err != nil {
		panic(fmt.Sprintf("embedded catalog is invalid: %v", err))
	}
	return c
}

// Load parses a catalog from YAML.
func Load(r io.Reader) (*Catalog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	if c.Version != 1 {
		return nil, fmt.Errorf("unsupported catalog version: %d (expected 1)", c.Version)
	}

	if c.Models == nil {
		c.Models = make(map[string]map[string]string)
	}

	c.placeholders = make(map[string]bool)
	for model, actions := range c.Models {
		for name, id := range actions {
			if id == "" {
				return nil, fmt.Errorf("model %s: action %s has an empty identifier", model, name)
			}
		}
		if c.Placeholder {
			c.placeholders[model] = true
		}
	}

	return &c, nil
}

// LoadFile parses a catalog file from disk.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog file: %w", err)
	}
	defer func() { _ = f.Close() }()

	c, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// WithOverrides returns the default catalog with every model from the given
// files layered on top. A model present in an override file replaces the
// default entry for that model entirely.
func WithOverrides(paths ...string) (*Catalog, error) {
	c := Default()
	for _, path := range paths {
		if path == "" {
			continue
		}
		override, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		c = c.Merge(override)
	}
	return c, nil
}

// Merge returns a new catalog where models from other replace models in c.
func (c *Catalog) Merge(other *Catalog) *Catalog {
	merged := &Catalog{
		Version:      1,
		Models:       make(map[string]map[string]string, len(c.Models)),
		placeholders: make(map[string]bool),
	}
	for model, actions := range c.Models {
		merged.Models[model] = copyActions(actions)
		if c.placeholders[model] {
			merged.placeholders[model] = true
		}
	}
	if other != nil {
		for model, actions := range other.Models {
			merged.Models[model] = copyActions(actions)
			if other.placeholders[model] {
				merged.placeholders[model] = true
			} else {
				delete(merged.placeholders, model)
			}
		}
	}
	return merged
}

// Lookup resolves an action identifier for a model.
func (c *Catalog) Lookup(model, action string) (string, bool) {
	actions, ok := c.Models[model]
	if !ok {
		return "", false
	}
	id, ok := actions[action]
	return id, ok
}

// Supports reports whether the model exposes the action.
func (c *Catalog) Supports(model, action string) bool {
	_, ok := c.Lookup(model, action)
	return ok
}

// SupportsAny reports whether the model exposes at least one of the actions.
func (c *Catalog) SupportsAny(model string, actions ...string) bool {
	for _, a := range actions {
		if c.Supports(model, a) {
			return true
		}
	}
	return false
}

// Actions returns the sorted action names known for a model.
func (c *Catalog) Actions(model string) []string {
	actions := c.Models[model]
	names := make([]string, 0, len(actions))
	for name := range actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsPlaceholder reports whether the identifiers for model come from a
// placeholder file. Actions sent with them are rejected by a real controller.
func (c *Catalog) IsPlaceholder(model string) bool {
	return c.placeholders[model]
}

// PlaceholderModels returns the sorted model keys still backed by
// placeholder identifiers.
func (c *Catalog) PlaceholderModels() []string {
	models := make([]string, 0, len(c.placeholders))
	for m := range c.placeholders {
		models = append(models, m)
	}
	sort.Strings(models)
	return models
}

// ModelKeys returns the sorted model keys.
func (c *Catalog) ModelKeys() []string {
	models := make([]string, 0, len(c.Models))
	for m := range c.Models {
		models = append(models, m)
	}
	sort.Strings(models)
	return models
}

func copyActions(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
