package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault_IsValid(t *testing.T) {
	c := Default()

	if c.Version != 1 {
		t.Errorf("Version = %d, want 1", c.Version)
	}

	if len(c.ModelKeys()) == 0 {
		t.Fatal("default catalog has no models")
	}

	for _, model := range c.ModelKeys() {
		if len(c.Actions(model)) == 0 {
			t.Errorf("model %s has no actions", model)
		}
	}
}

func TestLookup(t *testing.T) {
	c, err := Load(strings.NewReader(`
version: 1
models:
  UC-Display-7:
    display_off: id-a
  UC-Cast:
    display_off: id-b
`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name   string
		model  string
		action string
		wantID string
		wantOK bool
	}{
		{"known action", "UC-Display-7", "display_off", "id-a", true},
		{"same action resolves per model", "UC-Cast", "display_off", "id-b", true},
		{"unknown action", "UC-Display-7", "reboot", "", false},
		{"unknown model", "UC-Nope", "display_off", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := c.Lookup(tt.model, tt.action)
			if id != tt.wantID || ok != tt.wantOK {
				t.Errorf("Lookup(%q, %q) = (%q, %v), want (%q, %v)", tt.model, tt.action, id, ok, tt.wantID, tt.wantOK)
			}
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"wrong version", "version: 2\nmodels: {}\n"},
		{"missing version", "models: {}\n"},
		{"empty identifier", "version: 1\nmodels:\n  UC-Cast:\n    play: \"\"\n"},
		{"not yaml", "version: [1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(strings.NewReader(tt.yaml)); err == nil {
				t.Error("Load() should fail")
			}
		})
	}
}

func TestWithOverrides_ReplacesWholeModel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	content := "version: 1\nmodels:\n  UC-Cast:\n    play: custom-play\n  UC-Lab:\n    reboot: lab-reboot\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	c, err := WithOverrides(path)
	if err != nil {
		t.Fatalf("WithOverrides() error = %v", err)
	}

	if id, _ := c.Lookup("UC-Cast", "play"); id != "custom-play" {
		t.Errorf("UC-Cast play = %q, want custom-play", id)
	}
	if c.Supports("UC-Cast", "stop") {
		t.Error("override should replace the UC-Cast entry, not merge into it")
	}
	if !c.Supports("UC-Lab", "reboot") {
		t.Error("override should add new models")
	}
	if !c.Supports("UC-Display-7", "display_on") {
		t.Error("models absent from the override should keep their defaults")
	}

	if Default().Supports("UC-Lab", "reboot") {
		t.Error("WithOverrides must not mutate the default catalog")
	}
}

func TestPlaceholderModels(t *testing.T) {
	c := Default()
	if got, want := len(c.PlaceholderModels()), len(c.ModelKeys()); got != want {
		t.Errorf("default placeholder models = %d, want all %d", got, want)
	}

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	content := "version: 1\nmodels:\n  UC-Cast:\n    play: real-play\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	c, err := WithOverrides(path)
	if err != nil {
		t.Fatalf("WithOverrides() error = %v", err)
	}

	if c.IsPlaceholder("UC-Cast") {
		t.Error("UC-Cast came from an override and should not be a placeholder")
	}
	if !c.IsPlaceholder("UC-Display-7") {
		t.Error("UC-Display-7 still uses default identifiers")
	}
	for _, m := range c.PlaceholderModels() {
		if m == "UC-Cast" {
			t.Errorf("PlaceholderModels() = %v, should not list UC-Cast", c.PlaceholderModels())
		}
	}
	if !Default().IsPlaceholder("UC-Cast") {
		t.Error("WithOverrides must not clear marks on the default catalog")
	}
}

func TestLoad_PlaceholderFile(t *testing.T) {
	c, err := Load(strings.NewReader("version: 1\nplaceholder: true\nmodels:\n  UC-Lab:\n    reboot: x\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !c.IsPlaceholder("UC-Lab") {
		t.Error("models in a placeholder file should be marked")
	}
	if c.IsPlaceholder("UC-Other") {
		t.Error("unknown models are not placeholders")
	}
}

func TestWithOverrides_MissingFile(t *testing.T) {
	if _, err := WithOverrides(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("WithOverrides() should fail for a missing file")
	}
}

func TestSupportsAny(t *testing.T) {
	c := Default()
	if !c.SupportsAny("UC-Cast", ActionVolume, ActionSetVolume) {
		t.Error("UC-Cast should support one of volume/set_volume")
	}
	if c.SupportsAny("UC-Cast-Pro", ActionVolume, ActionSetVolume) {
		t.Error("UC-Cast-Pro should not support volume")
	}
}
