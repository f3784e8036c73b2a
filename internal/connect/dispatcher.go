package connect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/muurk/ucd/internal/catalog"
	"github.com/muurk/ucd/internal/logging"
	"go.uber.org/zap"
)

const (
	// DefaultOptimisticTTL is how long a predicted shadow stays visible.
	DefaultOptimisticTTL = 4 * time.Second

	// DefaultReconcileDelay is how long after an action the authoritative
	// refresh runs.
	DefaultReconcileDelay = 2 * time.Second
)

// ActionResult is the controller's decoded answer to an action. It is empty
// when the controller answers with no body or a body that is not JSON.
type ActionResult map[string]any

// actionRequest is the body of the status PATCH.
type actionRequest struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// Dispatcher sends actions to displays and covers the gap until the
// controller reports the new state with an optimistic patch.
type Dispatcher struct {
	session        *Session
	catalog        *catalog.Catalog
	cache          *Cache
	refresher      *Refresher
	ttl            time.Duration
	reconcileDelay time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	timers map[*time.Timer]struct{}
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher. Zero durations take the defaults.
func NewDispatcher(s *Session, cat *catalog.Catalog, cache *Cache, r *Refresher, ttl, reconcileDelay time.Duration) *Dispatcher {
	if ttl <= 0 {
		ttl = DefaultOptimisticTTL
	}
	if reconcileDelay <= 0 {
		reconcileDelay = DefaultReconcileDelay
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		session:        s,
		catalog:        cat,
		cache:          cache,
		refresher:      r,
		ttl:            ttl,
		reconcileDelay: reconcileDelay,
		ctx:            ctx,
		cancel:         cancel,
		timers:         make(map[*time.Timer]struct{}),
	}
}

// ModelOf fetches the device record and returns its model key.
func (d *Dispatcher) ModelOf(ctx context.Context, deviceID string) (string, error) {
	var envelope struct {
		Data map[string]any `json:"data"`
	}
	path := "/proxy/connect/api/v2/devices/" + url.PathEscape(deviceID)
	if err := d.session.GetJSON(ctx, path, &envelope); err != nil {
		return "", fmt.Errorf("failed to fetch device %s: %w", deviceID, err)
	}

	if name, ok := lookupPath(envelope.Data, []string{"type", "name"}).(string); ok && name != "" {
		return name, nil
	}
	if model, ok := envelope.Data["model"].(string); ok && model != "" {
		return model, nil
	}
	return "", NewParseError(fmt.Sprintf("could not determine model for device %s", deviceID), nil)
}

// PerformAction resolves the action for the device's model, sends it, and
// installs the predicted shadow. Nothing is written when the model does not
// expose the action.
func (d *Dispatcher) PerformAction(ctx context.Context, deviceID, action string, args map[string]any) (ActionResult, error) {
	if args == nil {
		args = map[string]any{}
	}

	model, err := d.ModelOf(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	actionID, ok := d.catalog.Lookup(model, action)
	if !ok {
		return nil, NewUnsupportedActionError(model, action)
	}
	if d.catalog.IsPlaceholder(model) {
		logging.Warn("Sending a placeholder action identifier",
			zap.String("model", model),
			zap.String("action", action),
		)
	}

	path := "/proxy/connect/api/v2/devices/" + url.PathEscape(deviceID) + "/status"
	status, body, err := d.session.Exchange(ctx, http.MethodPatch, path, actionRequest{
		ID:   actionID,
		Name: action,
		Args: args,
	})
	if err != nil {
		return nil, fmt.Errorf("action %s on %s: %w", action, deviceID, err)
	}
	if status < 200 || status > 299 {
		return nil, NewHTTPError(status, path, fmt.Sprintf("action %s rejected with status %d", action, status))
	}

	logging.Info("Action sent",
		zap.String("device", deviceID),
		zap.String("model", model),
		zap.String("action", action),
	)

	result := decodeResult(body)

	patch, err := Predict(action, args)
	switch {
	case err != nil:
		logging.Debug("Optimistic patch skipped", zap.String("action", action), zap.Error(err))
	case patch != nil:
		d.cache.ApplyPatch(deviceID, patch, d.ttl)
	}

	d.scheduleReconcile()
	return result, nil
}

// PendingReconciles returns the number of scheduled, not yet started,
// reconciliation refreshes.
func (d *Dispatcher) PendingReconciles() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.timers)
}

// Close cancels pending reconciliations and waits for running ones.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.cancel()
	for t := range d.timers {
		if t.Stop() {
			d.wg.Done()
		}
		delete(d.timers, t)
	}
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) scheduleReconcile() {
	if d.refresher == nil {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	d.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(d.reconcileDelay, func() {
		defer d.wg.Done()

		d.mu.Lock()
		delete(d.timers, t)
		d.mu.Unlock()

		if d.ctx.Err() != nil {
			return
		}
		d.refresher.RefreshNow(d.ctx)
	})
	d.timers[t] = struct{}{}
}

func decodeResult(body []byte) ActionResult {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ActionResult{}
	}

	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return ActionResult{}
	}
	if m, ok := v.(map[string]any); ok {
		return ActionResult(m)
	}
	return ActionResult{"result": v}
}
