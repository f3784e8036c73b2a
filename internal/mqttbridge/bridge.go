package mqttbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/muurk/ucd/internal/catalog"
	"github.com/muurk/ucd/internal/connect"
	"github.com/muurk/ucd/internal/controls"
	"github.com/muurk/ucd/internal/logging"
	"go.uber.org/zap"
)

// DefaultActionTimeout bounds one command from the set topic.
const DefaultActionTimeout = 15 * time.Second

// Broker is the part of an MQTT client the bridge uses. *Client satisfies it.
type Broker interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Subscribe(topic string, qos byte, handler MessageHandler) error
}

// Controller is the part of connect.Client the bridge uses.
type Controller interface {
	Devices() []connect.Device
	Device(id string) (connect.Device, bool)
	Subscribe(ids ...string) *connect.Subscription
	PerformAction(ctx context.Context, deviceID, action string, args map[string]any) (connect.ActionResult, error)
	Catalog() *catalog.Catalog
}

// Command is the payload accepted on a set topic. Either Action (with
// optional Args) or Control with Value is given.
type Command struct {
	Action string         `json:"action,omitempty"`
	Args   map[string]any `json:"args,omitempty"`

	Control string `json:"control,omitempty"`
	Value   any    `json:"value,omitempty"`
}

// State is the retained payload on a device's state topic.
type State struct {
	Device connect.Device `json:"device"`
	Values map[string]any `json:"values"`
}

// Result is published on a device's result topic after each command.
type Result struct {
	Action string `json:"action,omitempty"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}

// Bridge mirrors the client's device cache to MQTT and turns set messages
// into actions.
type Bridge struct {
	broker        Broker
	ctl           Controller
	topics        Topics
	qos           byte
	actionTimeout time.Duration

	mu       sync.Mutex
	stopped  bool
	inflight sync.WaitGroup
}

// New returns a bridge publishing under topics.
func New(broker Broker, ctl Controller, topics Topics, qos byte) *Bridge {
	return &Bridge{
		broker:        broker,
		ctl:           ctl,
		topics:        topics,
		qos:           qos,
		actionTimeout: DefaultActionTimeout,
	}
}

// Run subscribes to the site's set topics, publishes every cached device
// and then republishes a device on each signal until ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	sub := b.ctl.Subscribe()
	defer sub.Close()
	defer b.drain()

	err := b.broker.Subscribe(b.topics.AllSet(), b.qos, func(topic string, payload []byte) error {
		return b.dispatch(ctx, topic, payload)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", b.topics.AllSet(), err)
	}

	b.PublishAll()

	for {
		select {
		case <-ctx.Done():
			return nil
		case id, ok := <-sub.C:
			if !ok {
				return nil
			}
			if err := b.PublishState(id); err != nil {
				logging.Warn("Failed to publish device state",
					zap.String("device_id", id),
					zap.Error(err),
				)
			}
		}
	}
}

// dispatch runs HandleSet on its own goroutine; the broker's delivery
// callback must return before the result publish can be acknowledged.
func (b *Bridge) dispatch(ctx context.Context, topic string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped || ctx.Err() != nil {
		return fmt.Errorf("%w: dropping %s", ErrBridgeStopped, topic)
	}

	payload = append([]byte(nil), payload...)
	b.inflight.Add(1)
	go func() {
		defer b.inflight.Done()
		if err := b.HandleSet(ctx, topic, payload); err != nil {
			logging.Warn("MQTT set message failed",
				zap.String("topic", topic),
				zap.Error(err),
			)
		}
	}()
	return nil
}

// drain refuses new commands and waits for the running ones.
func (b *Bridge) drain() {
	b.mu.Lock()
	b.stopped = true
	b.mu.Unlock()
	b.inflight.Wait()
}

// PublishAll publishes the state of every cached device.
func (b *Bridge) PublishAll() {
	for _, d := range b.ctl.Devices() {
		if err := b.PublishState(d.ID); err != nil {
			logging.Warn("Failed to publish device state",
				zap.String("device_id", d.ID),
				zap.Error(err),
			)
		}
	}
}

// PublishState publishes one device as retained JSON. A device no longer
// in the cache has its retained state cleared.
func (b *Bridge) PublishState(id string) error {
	if !validSegment(id) {
		return fmt.Errorf("%w: device id %q", ErrInvalidTopic, id)
	}
	d, ok := b.ctl.Device(id)
	if !ok {
		return b.broker.Publish(b.topics.State(id), b.qos, true, nil)
	}

	payload, err := json.Marshal(State{Device: d, Values: b.values(d)})
	if err != nil {
		return fmt.Errorf("encode state of %s: %w", id, err)
	}
	return b.broker.Publish(b.topics.State(id), b.qos, true, payload)
}

func (b *Bridge) values(d connect.Device) map[string]any {
	values := make(map[string]any)
	for _, c := range controls.For(d, b.ctl.Catalog(), nil) {
		if v, ok := controls.Value(c, d); ok {
			values[c.Key] = v
		}
	}
	return values
}

// HandleSet dispatches one set message and publishes its outcome.
func (b *Bridge) HandleSet(ctx context.Context, topic string, payload []byte) error {
	id, ok := b.topics.DeviceFromSet(topic)
	if !ok {
		return fmt.Errorf("%w: unexpected topic %s", ErrInvalidCommand, topic)
	}

	action, args, err := b.resolve(id, payload)
	if err == nil {
		ctx, cancel := context.WithTimeout(ctx, b.actionTimeout)
		_, err = b.ctl.PerformAction(ctx, id, action, args)
		cancel()
	}

	result := Result{Action: action, OK: err == nil}
	if err != nil {
		result.Error = connect.ShortMessage(err)
		logging.Warn("MQTT command failed",
			zap.String("device_id", id),
			zap.String("action", action),
			zap.Error(err),
		)
	} else {
		logging.Info("MQTT command performed",
			zap.String("device_id", id),
			zap.String("action", action),
		)
	}

	out, _ := json.Marshal(result)
	if pubErr := b.broker.Publish(b.topics.Result(id), b.qos, false, out); pubErr != nil {
		return pubErr
	}
	return err
}

// resolve turns a set payload into an action. A payload that is not a JSON
// object is taken as a bare action name.
func (b *Bridge) resolve(id string, payload []byte) (string, map[string]any, error) {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		name := strings.Trim(strings.TrimSpace(string(payload)), `"`)
		if name == "" || strings.ContainsAny(name, "{}[] ") {
			return "", nil, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
		}
		cmd.Action = name
	}

	switch {
	case cmd.Action != "":
		return cmd.Action, cmd.Args, nil
	case cmd.Control != "":
		d, ok := b.ctl.Device(id)
		if !ok {
			return "", nil, fmt.Errorf("%w: unknown device %s", ErrInvalidCommand, id)
		}
		c, ok := controls.Find(controls.For(d, b.ctl.Catalog(), nil), cmd.Control)
		if !ok {
			return "", nil, fmt.Errorf("%w: device %s has no control %q", ErrInvalidCommand, id, cmd.Control)
		}
		return controls.Command(c, cmd.Value)
	}
	return "", nil, fmt.Errorf("%w: payload names neither action nor control", ErrInvalidCommand)
}
