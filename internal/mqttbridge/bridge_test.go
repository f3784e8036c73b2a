package mqttbridge

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/muurk/ucd/internal/connect"
	"github.com/muurk/ucd/internal/controllertest"
)

type message struct {
	topic    string
	retained bool
	payload  []byte
}

// fakeBroker records publishes and keeps subscribed handlers so tests can
// deliver messages to them.
type fakeBroker struct {
	mu       sync.Mutex
	messages []message
	handlers map[string]MessageHandler
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{handlers: make(map[string]MessageHandler)}
}

func (f *fakeBroker) Publish(topic string, _ byte, retained bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message{topic: topic, retained: retained, payload: payload})
	return nil
}

func (f *fakeBroker) Subscribe(topic string, _ byte, handler MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
	return nil
}

func (f *fakeBroker) handler(topic string) MessageHandler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handlers[topic]
}

// last returns the most recent message on topic.
func (f *fakeBroker) last(topic string) (message, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.messages) - 1; i >= 0; i-- {
		if f.messages[i].topic == topic {
			return f.messages[i], true
		}
	}
	return message{}, false
}

func (f *fakeBroker) count(topic string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.messages {
		if m.topic == topic {
			n++
		}
	}
	return n
}

func newTestClient(t *testing.T) (*connect.Client, *controllertest.Server) {
	t.Helper()

	srv := controllertest.New(controllertest.Config{})
	t.Cleanup(srv.Close)

	client, err := connect.New(connect.SessionConfig{
		Host:     srv.Host(),
		Username: "admin",
		Password: "password",
	}, connect.Options{ReconcileDelay: time.Hour})
	if err != nil {
		t.Fatalf("connect.New() error = %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Login(ctx); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if got := client.ListDevices(ctx); len(got) != 2 {
		t.Fatalf("ListDevices() = %d devices, want 2", len(got))
	}
	return client, srv
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

var testTopics = NewTopics("ucd", "hq")

func TestBridge_PublishState(t *testing.T) {
	client, _ := newTestClient(t)
	broker := newFakeBroker()
	b := New(broker, client, testTopics, 1)

	if err := b.PublishState("d1"); err != nil {
		t.Fatalf("PublishState() error = %v", err)
	}

	msg, ok := broker.last("ucd/hq/d1/state")
	if !ok {
		t.Fatal("no state published for d1")
	}
	if !msg.retained {
		t.Error("state should be retained")
	}

	var state struct {
		Device struct {
			ID    string `json:"id"`
			Name  string `json:"name"`
			Model string `json:"model"`
		} `json:"device"`
		Values map[string]any `json:"values"`
	}
	if err := json.Unmarshal(msg.payload, &state); err != nil {
		t.Fatalf("state payload is not JSON: %v", err)
	}
	if state.Device.ID != "d1" || state.Device.Name != "Lobby" {
		t.Errorf("device = %+v, want d1 Lobby", state.Device)
	}
	if state.Values["volume"] != float64(20) {
		t.Errorf("values[volume] = %v, want 20", state.Values["volume"])
	}
	if state.Values["display"] != true {
		t.Errorf("values[display] = %v, want true", state.Values["display"])
	}
}

func TestBridge_PublishStateClearsUnknown(t *testing.T) {
	client, _ := newTestClient(t)
	broker := newFakeBroker()
	b := New(broker, client, testTopics, 1)

	if err := b.PublishState("gone"); err != nil {
		t.Fatalf("PublishState() error = %v", err)
	}
	msg, ok := broker.last("ucd/hq/gone/state")
	if !ok || !msg.retained || len(msg.payload) != 0 {
		t.Errorf("message = %+v, want empty retained payload", msg)
	}

	if err := b.PublishState("a/b"); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("PublishState(a/b) error = %v, want ErrInvalidTopic", err)
	}
}

func TestBridge_HandleSet(t *testing.T) {
	tests := []struct {
		name       string
		topic      string
		payload    string
		wantAction string
		wantArg    any
		wantOK     bool
	}{
		{
			name:       "action with args",
			topic:      "ucd/hq/d1/set",
			payload:    `{"action":"volume","args":{"value":35}}`,
			wantAction: "volume",
			wantArg:    float64(35),
			wantOK:     true,
		},
		{
			name:       "control with value",
			topic:      "ucd/hq/d1/set",
			payload:    `{"control":"volume","value":150}`,
			wantAction: "volume",
			wantArg:    float64(100),
			wantOK:     true,
		},
		{
			name:       "bare action name",
			topic:      "ucd/hq/d1/set",
			payload:    `reboot`,
			wantAction: "reboot",
			wantOK:     true,
		},
		{
			name:       "quoted action name",
			topic:      "ucd/hq/d2/set",
			payload:    `"display_on"`,
			wantAction: "display_on",
			wantOK:     true,
		},
		{
			name:       "unsupported action",
			topic:      "ucd/hq/d2/set",
			payload:    `{"action":"rotate","args":{"scale":"portraitPrim"}}`,
			wantAction: "rotate",
		},
		{
			name:    "unknown control",
			topic:   "ucd/hq/d2/set",
			payload: `{"control":"brightness","value":10}`,
		},
		{
			name:    "empty object",
			topic:   "ucd/hq/d1/set",
			payload: `{}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, srv := newTestClient(t)
			broker := newFakeBroker()
			b := New(broker, client, testTopics, 1)

			err := b.HandleSet(context.Background(), tt.topic, []byte(tt.payload))
			if (err == nil) != tt.wantOK {
				t.Errorf("HandleSet() error = %v, want ok %v", err, tt.wantOK)
			}

			id, _ := testTopics.DeviceFromSet(tt.topic)
			msg, ok := broker.last(testTopics.Result(id))
			if !ok {
				t.Fatal("no result published")
			}
			if msg.retained {
				t.Error("result should not be retained")
			}
			var result Result
			if err := json.Unmarshal(msg.payload, &result); err != nil {
				t.Fatalf("result payload is not JSON: %v", err)
			}
			if result.OK != tt.wantOK || result.Action != tt.wantAction {
				t.Errorf("result = %+v, want action %q ok %v", result, tt.wantAction, tt.wantOK)
			}
			if !tt.wantOK && result.Error == "" {
				t.Error("failed result should carry an error message")
			}

			actions := srv.Actions()
			if !tt.wantOK {
				if len(actions) != 0 {
					t.Errorf("actions = %v, want none", actions)
				}
				return
			}
			if len(actions) != 1 {
				t.Fatalf("actions = %d, want 1", len(actions))
			}
			if actions[0].Name != tt.wantAction || actions[0].DeviceID != id {
				t.Errorf("action = %+v, want %s on %s", actions[0], tt.wantAction, id)
			}
			if tt.wantArg != nil && actions[0].Args["value"] != tt.wantArg {
				t.Errorf("args = %v, want value %v", actions[0].Args, tt.wantArg)
			}
		})
	}
}

func TestBridge_HandleSetRejectsForeignTopic(t *testing.T) {
	client, _ := newTestClient(t)
	broker := newFakeBroker()
	b := New(broker, client, testTopics, 1)

	err := b.HandleSet(context.Background(), "ucd/other/d1/set", []byte(`{"action":"reboot"}`))
	if !errors.Is(err, ErrInvalidCommand) {
		t.Errorf("HandleSet() error = %v, want ErrInvalidCommand", err)
	}
}

func TestBridge_Run(t *testing.T) {
	client, _ := newTestClient(t)
	broker := newFakeBroker()
	b := New(broker, client, testTopics, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	waitFor(t, "set subscription", func() bool { return broker.handler("ucd/hq/+/set") != nil })
	waitFor(t, "initial states", func() bool {
		return broker.count("ucd/hq/d1/state") >= 1 && broker.count("ucd/hq/d2/state") >= 1
	})

	before := broker.count("ucd/hq/d1/state")
	handler := broker.handler("ucd/hq/+/set")
	if err := handler("ucd/hq/d1/set", []byte(`{"control":"display","value":false}`)); err != nil {
		t.Fatalf("set handler error = %v", err)
	}
	waitFor(t, "state republished after command", func() bool {
		return broker.count("ucd/hq/d1/state") > before
	})

	msg, _ := broker.last("ucd/hq/d1/state")
	var state struct {
		Values map[string]any `json:"values"`
	}
	if err := json.Unmarshal(msg.payload, &state); err != nil {
		t.Fatalf("state payload is not JSON: %v", err)
	}
	if state.Values["display"] != false {
		t.Errorf("values[display] = %v, want false after display_off", state.Values["display"])
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

// stallingBroker holds every result publish until release is closed, like a
// broker whose acknowledgement is slow to arrive.
type stallingBroker struct {
	*fakeBroker
	release chan struct{}

	waitMu  sync.Mutex
	waiting int
}

func (s *stallingBroker) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if strings.HasSuffix(topic, "/result") {
		s.waitMu.Lock()
		s.waiting++
		s.waitMu.Unlock()
		<-s.release
	}
	return s.fakeBroker.Publish(topic, qos, retained, payload)
}

func (s *stallingBroker) stalled() int {
	s.waitMu.Lock()
	defer s.waitMu.Unlock()
	return s.waiting
}

func TestBridge_RunSetHandlerDoesNotBlock(t *testing.T) {
	client, srv := newTestClient(t)
	broker := &stallingBroker{fakeBroker: newFakeBroker(), release: make(chan struct{})}
	b := New(broker, client, testTopics, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()
	waitFor(t, "set subscription", func() bool { return broker.handler("ucd/hq/+/set") != nil })
	handler := broker.handler("ucd/hq/+/set")

	returned := make(chan error, 2)
	go func() {
		returned <- handler("ucd/hq/d1/set", []byte(`{"action":"volume","args":{"value":30}}`))
		returned <- handler("ucd/hq/d1/set", []byte(`display_off`))
	}()
	for i := 0; i < 2; i++ {
		select {
		case err := <-returned:
			if err != nil {
				t.Errorf("set handler error = %v", err)
			}
		case <-time.After(time.Second):
			t.Fatal("set handler blocked on a stalled publish")
		}
	}

	waitFor(t, "both actions sent while results are stalled", func() bool {
		return len(srv.Actions()) == 2 && broker.stalled() == 2
	})

	close(broker.release)
	waitFor(t, "results published", func() bool { return broker.count("ucd/hq/d1/result") == 2 })

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}

	if err := handler("ucd/hq/d1/set", []byte(`reboot`)); !errors.Is(err, ErrBridgeStopped) {
		t.Errorf("set handler after Run = %v, want ErrBridgeStopped", err)
	}
}
