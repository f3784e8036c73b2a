package connect

import (
	"encoding/json"
	"testing"
)

func TestParseDevice(t *testing.T) {
	tests := []struct {
		name       string
		record     map[string]any
		wantOK     bool
		wantName   string
		wantModel  string
		wantOnline bool
	}{
		{
			name:   "no id",
			record: map[string]any{"name": "x"},
			wantOK: false,
		},
		{
			name:       "model field wins over type.name",
			record:     map[string]any{"id": "a", "name": "Lobby", "model": "UC-Cast", "type": map[string]any{"name": "UC-Display-7"}, "online": true},
			wantOK:     true,
			wantName:   "Lobby",
			wantModel:  "UC-Cast",
			wantOnline: true,
		},
		{
			name:       "type.name fallback and name from model",
			record:     map[string]any{"id": "a", "type": map[string]any{"name": "UC-Display-7"}, "isOnline": true},
			wantOK:     true,
			wantName:   "UC-Display-7",
			wantModel:  "UC-Display-7",
			wantOnline: true,
		},
		{
			name:       "state string",
			record:     map[string]any{"id": "a", "state": "CONNECTED"},
			wantOK:     true,
			wantOnline: true,
		},
		{
			name:       "offline status",
			record:     map[string]any{"id": "a", "status": "offline"},
			wantOK:     true,
			wantOnline: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, ok := ParseDevice(tt.record)
			if ok != tt.wantOK {
				t.Fatalf("ParseDevice() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if d.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", d.Name, tt.wantName)
			}
			if d.Model != tt.wantModel {
				t.Errorf("Model = %q, want %q", d.Model, tt.wantModel)
			}
			if d.Online != tt.wantOnline {
				t.Errorf("Online = %v, want %v", d.Online, tt.wantOnline)
			}
		})
	}
}

func TestParseDevice_CopiesInput(t *testing.T) {
	shadow := map[string]any{"display": true}
	rec := map[string]any{"id": "a", "shadow": shadow}

	d, _ := ParseDevice(rec)
	shadow["display"] = false

	if on, _ := d.Shadow.Display(); !on {
		t.Error("device shadow should not alias the input record")
	}
}

func TestDevice_MaxVolume(t *testing.T) {
	tests := []struct {
		name   string
		record map[string]any
		want   int
	}{
		{
			name:   "default",
			record: map[string]any{"id": "a"},
			want:   100,
		},
		{
			name: "feature flag beats extra info",
			record: map[string]any{
				"id":           "a",
				"featureFlags": map[string]any{"volume": map[string]any{"max": float64(60)}},
				"extraInfo":    map[string]any{"maxVolume": float64(40)},
			},
			want: 60,
		},
		{
			name:   "extra info",
			record: map[string]any{"id": "a", "extraInfo": map[string]any{"maxVolume": float64(40)}},
			want:   40,
		},
		{
			name: "shadow lookup after record",
			record: map[string]any{
				"id":     "a",
				"shadow": map[string]any{"featureFlags": map[string]any{"volume": map[string]any{"max": float64(30)}}},
			},
			want: 30,
		},
		{
			name: "record feature flag beats shadow feature flag",
			record: map[string]any{
				"id":           "a",
				"featureFlags": map[string]any{"volume": map[string]any{"max": float64(50)}},
				"shadow":       map[string]any{"featureFlags": map[string]any{"volume": map[string]any{"max": float64(30)}}},
			},
			want: 50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _ := ParseDevice(tt.record)
			if got := d.MaxVolume(); got != tt.want {
				t.Errorf("MaxVolume() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDevice_MaxBrightness(t *testing.T) {
	d, _ := ParseDevice(map[string]any{"id": "a", "extraInfo": map[string]any{"maxBrightness": float64(255)}})
	if got := d.MaxBrightness(); got != 255 {
		t.Errorf("MaxBrightness() = %d, want 255", got)
	}

	d, _ = ParseDevice(map[string]any{"id": "b"})
	if got := d.MaxBrightness(); got != DefaultMaxLevel {
		t.Errorf("MaxBrightness() = %d, want %d", got, DefaultMaxLevel)
	}
}

func TestDevice_Snapshot(t *testing.T) {
	d, _ := ParseDevice(map[string]any{
		"id":       "a",
		"snapshot": map[string]any{"title": "Menu", "favicon": "https://x/favicon.ico"},
	})
	if d.Snapshot == nil || d.Snapshot.Title != "Menu" {
		t.Fatalf("Snapshot = %+v, want title Menu", d.Snapshot)
	}

	d, _ = ParseDevice(map[string]any{"id": "b"})
	if d.Snapshot != nil {
		t.Errorf("Snapshot = %+v, want nil", d.Snapshot)
	}
}

func TestDevice_MarshalJSON(t *testing.T) {
	d, _ := ParseDevice(map[string]any{
		"id":     "a",
		"name":   "Lobby",
		"model":  "UC-Cast",
		"serial": "ABC",
		"shadow": map[string]any{"display": true},
	})
	d.Shadow["display"] = false

	data, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if out["serial"] != "ABC" {
		t.Errorf("serial = %v, want opaque field preserved", out["serial"])
	}
	shadow, _ := out["shadow"].(map[string]any)
	if shadow["display"] != false {
		t.Errorf("shadow.display = %v, want merged value false", shadow["display"])
	}
}

func TestShadowAccessors(t *testing.T) {
	s := Shadow{
		"display":    true,
		"volume":     float64(33),
		"brightness": json.Number("70"),
		"rotate":     "portraitPrim",
		"mode":       "web",
	}

	if v, ok := s.Volume(); !ok || v != 33 {
		t.Errorf("Volume() = %d, %v", v, ok)
	}
	if v, ok := s.Brightness(); !ok || v != 70 {
		t.Errorf("Brightness() = %d, %v", v, ok)
	}
	if v, ok := s.Rotation(); !ok || v != "portraitPrim" {
		t.Errorf("Rotation() = %q, %v", v, ok)
	}
	if _, ok := s.PlaylistID(); ok {
		t.Error("PlaylistID() should be absent")
	}
	if _, ok := s.Int("mode"); ok {
		t.Error("Int() on a string should fail")
	}
}
