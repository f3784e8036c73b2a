package connect

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"github.com/muurk/ucd/internal/logging"
	"go.uber.org/zap"
)

const (
	// DefaultBackoffBase is the first reconnect delay.
	DefaultBackoffBase = 2 * time.Second

	// DefaultBackoffMax caps the reconnect delay.
	DefaultBackoffMax = 30 * time.Second

	// DefaultStopTimeout bounds how long Stop waits for the loop to exit.
	DefaultStopTimeout = 5 * time.Second

	eventPath        = "/api/ws/system"
	handshakeTimeout = 10 * time.Second
)

// WatcherState is the lifecycle state of the event watcher.
type WatcherState int32

const (
	WatcherStopped WatcherState = iota
	WatcherConnecting
	WatcherStreaming
)

// String returns a human-readable name for the state
func (s WatcherState) String() string {
	switch s {
	case WatcherStopped:
		return "stopped"
	case WatcherConnecting:
		return "connecting"
	case WatcherStreaming:
		return "streaming"
	default:
		return fmt.Sprintf("WatcherState(%d)", int32(s))
	}
}

// NewReconnectBackoff returns the reconnect delay policy: exponential from
// base, doubling, capped at ceiling, without jitter. Call Reset after a
// successful connection.
func NewReconnectBackoff(base, ceiling time.Duration) *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = base
	bo.Multiplier = 2
	bo.MaxInterval = ceiling
	bo.RandomizationFactor = 0
	bo.Reset()
	return bo
}

// IsDeviceEvent reports whether a push event type announces a device change.
func IsDeviceEvent(eventType string) bool {
	return strings.Contains(eventType, "DEVICE") ||
		strings.Contains(eventType, "CHANGED") ||
		strings.Contains(eventType, "APPLIED")
}

// WatcherConfig tunes a Watcher. Zero values take the package defaults.
type WatcherConfig struct {
	BackoffBase time.Duration
	BackoffMax  time.Duration
	StopTimeout time.Duration
}

// Watcher holds the push-event connection open and turns device events into
// refresher triggers.
type Watcher struct {
	session   *Session
	refresher *Refresher
	cfg       WatcherConfig
	dialer    *websocket.Dialer

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	state    atomic.Int32
	connects atomic.Int64

	// onBackoff observes every reconnect delay before it is waited out.
	onBackoff func(time.Duration)
}

// NewWatcher creates a stopped watcher for the session's controller.
func NewWatcher(s *Session, r *Refresher, cfg WatcherConfig) *Watcher {
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = DefaultBackoffBase
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = DefaultBackoffMax
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}

	return &Watcher{
		session:   s,
		refresher: r,
		cfg:       cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
			Jar:              s.Jar(),
			TLSClientConfig:  &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // consoles ship self-signed certificates
		},
	}
}

// State returns the current lifecycle state.
func (w *Watcher) State() WatcherState {
	return WatcherState(w.state.Load())
}

// Connects returns how many times the watcher has connected successfully.
func (w *Watcher) Connects() int64 {
	return w.connects.Load()
}

// URL returns the push-event endpoint.
func (w *Watcher) URL() string {
	return "wss://" + w.session.Host() + eventPath
}

// Start launches the connection loop and the refresher. Calling Start on a
// running watcher does nothing.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		return nil
	}
	if !w.session.LoggedIn() {
		logging.Warn("Event watcher not started: no session")
		return ErrNotLoggedIn
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	w.cancel = cancel
	w.done = done

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		w.refresher.Run(runCtx)
	}()
	go func() {
		defer wg.Done()
		w.loop(runCtx)
	}()
	go func() {
		wg.Wait()
		close(done)
	}()

	return nil
}

// Stop cancels the loop and waits for it to exit, at most StopTimeout.
func (w *Watcher) Stop(ctx context.Context) error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	timer := time.NewTimer(w.cfg.StopTimeout)
	defer timer.Stop()

	select {
	case <-done:
		logging.Info("Event watcher stopped", zap.String("url", w.URL()))
		return nil
	case <-timer.C:
		return fmt.Errorf("event watcher did not stop within %s", w.cfg.StopTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Watcher) setState(s WatcherState) {
	old := WatcherState(w.state.Swap(int32(s)))
	if old != s {
		logging.LogStateTransition("watcher", old.String(), s.String())
	}
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.setState(WatcherStopped)

	bo := NewReconnectBackoff(w.cfg.BackoffBase, w.cfg.BackoffMax)
	url := w.URL()
	header := http.Header{}
	header.Set("Origin", w.session.BaseURL())

	for {
		if ctx.Err() != nil {
			return
		}

		w.setState(WatcherConnecting)
		conn, _, err := w.dialer.DialContext(ctx, url, header)
		if err == nil {
			bo.Reset()
			w.connects.Add(1)
			w.setState(WatcherStreaming)
			logging.Info("Connected to event stream", zap.String("url", url))
			err = w.read(ctx, conn)
		}

		if ctx.Err() != nil {
			return
		}

		delay := bo.NextBackOff()
		if w.onBackoff != nil {
			w.onBackoff(delay)
		}
		logging.Warn("Event stream disconnected, reconnecting",
			zap.Error(err),
			zap.Duration("backoff", delay),
		)
		w.setState(WatcherConnecting)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// read consumes frames until the connection fails or ctx is cancelled.
func (w *Watcher) read(ctx context.Context, conn *websocket.Conn) error {
	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-ctx.Done():
		case <-finished:
		}
		_ = conn.Close()
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		logging.LogWebSocketMessage(w.URL(), "received", msgType, data)
		if msgType != websocket.TextMessage {
			continue
		}
		w.handleMessage(data)
	}
}

func (w *Watcher) handleMessage(data []byte) {
	var event struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &event); err != nil || event.Type == "" {
		return
	}
	if IsDeviceEvent(event.Type) {
		logging.Debug("Device event received", zap.String("type", event.Type))
		w.refresher.Trigger()
	}
}
