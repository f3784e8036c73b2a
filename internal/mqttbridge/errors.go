package mqttbridge

import "errors"

var (
	// ErrNotConnected is returned when publishing or subscribing on a
	// disconnected client.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed is returned when the initial connection attempt fails.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed is returned when a publish is not acknowledged.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed is returned when a subscribe is not acknowledged.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrInvalidTopic is returned for an empty topic.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")

	// ErrInvalidQoS is returned for a QoS above 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrBridgeStopped is returned for set messages that arrive after the
	// bridge stopped running.
	ErrBridgeStopped = errors.New("mqtt: bridge stopped")

	// ErrInvalidCommand is returned for a set payload that names neither an
	// action nor a control.
	ErrInvalidCommand = errors.New("mqtt: invalid command")
)
