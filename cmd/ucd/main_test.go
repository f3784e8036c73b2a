package main

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/muurk/ucd/internal/catalog"
	"github.com/muurk/ucd/internal/config"
	"github.com/muurk/ucd/internal/connect"
	"github.com/muurk/ucd/internal/mqttbridge"
)

func TestBridgeSettings(t *testing.T) {
	defer func() {
		mqttBroker, mqttClientID, mqttUsername, mqttPrefix, mqttQoS = "", "", "", "", -1
	}()

	tests := []struct {
		name     string
		section  *config.MQTT
		broker   string
		prefix   string
		qos      int
		want     config.MQTT
		wantErr  error
		wantFail bool
	}{
		{
			name:    "config file only",
			section: &config.MQTT{Broker: "10.0.0.5", QoS: 1},
			qos:     -1,
			want: config.MQTT{
				Broker: "10.0.0.5", QoS: 1,
				ClientID: config.DefaultClientID, TopicPrefix: config.DefaultTopicPrefix,
			},
		},
		{
			name:    "flags override",
			section: &config.MQTT{Broker: "10.0.0.5", TopicPrefix: "home", QoS: 1},
			broker:  "broker.lan",
			prefix:  "signage",
			qos:     0,
			want: config.MQTT{
				Broker: "broker.lan", QoS: 0,
				ClientID: config.DefaultClientID, TopicPrefix: "signage",
			},
		},
		{
			name:     "no broker",
			qos:      -1,
			wantFail: true,
		},
		{
			name:    "invalid qos",
			broker:  "broker.lan",
			qos:     3,
			wantErr: mqttbridge.ErrInvalidQoS,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mqttBroker, mqttPrefix, mqttQoS = tt.broker, tt.prefix, tt.qos

			got, err := bridgeSettings(tt.section)
			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("bridgeSettings() error = %v, want %v", err, tt.wantErr)
				}
				return
			case tt.wantFail:
				if err == nil {
					t.Error("bridgeSettings() error = nil, want an error")
				}
				return
			case err != nil:
				t.Fatalf("bridgeSettings() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("bridgeSettings() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestBridgeSettings_DoesNotMutateSection(t *testing.T) {
	defer func() { mqttBroker = "" }()

	section := &config.MQTT{Broker: "10.0.0.5"}
	mqttBroker = "other"
	if _, err := bridgeSettings(section); err != nil {
		t.Fatalf("bridgeSettings() error = %v", err)
	}
	if section.Broker != "10.0.0.5" {
		t.Errorf("section.Broker = %q, want it unchanged", section.Broker)
	}
}

func TestRootCommand_RegistersCommands(t *testing.T) {
	want := []string{
		"login", "sites", "devices", "device", "action", "controls", "playlists",
		"events", "watch", "bridge", "scan", "simulate", "version",
	}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("command %q not registered", name)
		}
	}

	for _, flag := range []string{"controller", "host", "username", "site", "log-level", "catalog"} {
		if rootCmd.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("persistent flag --%s missing", flag)
		}
	}
}

func TestResolveTarget_HostFlag(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	defer func() { hostFlag, usernameFlag, siteFlag, controllerName = "", "", "", "" }()

	hostFlag = "https://10.0.0.1:8443/network"
	usernameFlag = "admin"
	siteFlag = "hq"

	got, err := resolveTarget()
	if err != nil {
		t.Fatalf("resolveTarget() error = %v", err)
	}
	if got.Name != "10.0.0.1:8443" {
		t.Errorf("Name = %q, want 10.0.0.1:8443", got.Name)
	}
	if got.Controller.Username != "admin" || got.Controller.Site != "hq" {
		t.Errorf("Controller = %+v, want admin on hq", got.Controller)
	}

	usernameFlag = ""
	if _, err := resolveTarget(); err == nil {
		t.Error("resolveTarget() without a username should fail")
	}
}

func TestPlaceholderModels(t *testing.T) {
	devices := []connect.Device{
		{ID: "d1", Model: "UC-Display-7"},
		{ID: "d2", Model: "UC-Cast"},
		{ID: "d3", Model: "UC-Display-7"},
		{ID: "d4"},
	}

	got := placeholderModels(catalog.Default(), devices)
	if want := []string{"UC-Cast", "UC-Display-7"}; !reflect.DeepEqual(got, want) {
		t.Errorf("placeholderModels(default) = %v, want %v", got, want)
	}

	real, err := catalog.Load(strings.NewReader("version: 1\nmodels:\n  UC-Cast:\n    play: real\n"))
	if err != nil {
		t.Fatal(err)
	}
	got = placeholderModels(catalog.Default().Merge(real), devices)
	if want := []string{"UC-Display-7"}; !reflect.DeepEqual(got, want) {
		t.Errorf("placeholderModels(merged) = %v, want %v", got, want)
	}
}
