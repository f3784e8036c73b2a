package connect

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/muurk/ucd/internal/catalog"
	"github.com/muurk/ucd/internal/logging"
	"go.uber.org/zap"
)

// Options tunes a Client. Zero values take the package defaults.
type Options struct {
	// Settle is the refresher's burst-coalescing window.
	Settle time.Duration

	// ReconcileDelay is how long after an action the authoritative
	// refresh runs.
	ReconcileDelay time.Duration

	// OptimisticTTL is how long a predicted shadow stays visible.
	OptimisticTTL time.Duration

	// BackoffBase and BackoffMax shape the event stream reconnect delays.
	BackoffBase time.Duration
	BackoffMax  time.Duration

	// StopTimeout bounds how long stopping the event watcher may take.
	StopTimeout time.Duration

	// RequestTimeout is the per-request HTTP timeout.
	RequestTimeout time.Duration

	// Catalog resolves action identifiers. Nil means catalog.Default().
	Catalog *catalog.Catalog

	// Strategies overrides the discovery chain. Nil means DefaultStrategies().
	Strategies []Strategy
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{
		Settle:         DefaultSettle,
		ReconcileDelay: DefaultReconcileDelay,
		OptimisticTTL:  DefaultOptimisticTTL,
		BackoffBase:    DefaultBackoffBase,
		BackoffMax:     DefaultBackoffMax,
		StopTimeout:    DefaultStopTimeout,
		RequestTimeout: DefaultTimeout,
	}
}

// Client is the single entry point for one controller. Construct one per
// controller and hand it to every consumer.
type Client struct {
	session     *Session
	catalog     *catalog.Catalog
	broadcaster *Broadcaster
	cache       *Cache
	directory   *Directory
	refresher   *Refresher
	dispatcher  *Dispatcher
	watcher     *Watcher
}

// New wires a client for cfg. It does not contact the controller.
func New(cfg SessionConfig, opts Options) (*Client, error) {
	defaults := DefaultOptions()
	if opts.Settle < 0 {
		opts.Settle = 0
	} else if opts.Settle == 0 {
		opts.Settle = defaults.Settle
	}
	if opts.RequestTimeout > 0 && cfg.Timeout == 0 {
		cfg.Timeout = opts.RequestTimeout
	}
	if opts.Catalog == nil {
		opts.Catalog = catalog.Default()
	}
	if opts.Strategies == nil {
		opts.Strategies = DefaultStrategies()
	}

	session, err := NewSession(cfg)
	if err != nil {
		return nil, err
	}

	broadcaster := NewBroadcaster()
	cache := NewCache(broadcaster)
	directory := NewDirectoryWithStrategies(session, cache, opts.Strategies)
	refresher := NewRefresher(directory, broadcaster, opts.Settle)

	return &Client{
		session:     session,
		catalog:     opts.Catalog,
		broadcaster: broadcaster,
		cache:       cache,
		directory:   directory,
		refresher:   refresher,
		dispatcher:  NewDispatcher(session, opts.Catalog, cache, refresher, opts.OptimisticTTL, opts.ReconcileDelay),
		watcher: NewWatcher(session, refresher, WatcherConfig{
			BackoffBase: opts.BackoffBase,
			BackoffMax:  opts.BackoffMax,
			StopTimeout: opts.StopTimeout,
		}),
	}, nil
}

// Login authenticates the session.
func (c *Client) Login(ctx context.Context) error {
	return c.session.Login(ctx)
}

// ListDevices runs discovery, refreshes the cache and returns the merged
// devices. It never fails; see Directory.LastOutcome for why a list is empty.
func (c *Client) ListDevices(ctx context.Context) []Device {
	return c.directory.ListDevices(ctx)
}

// Refresh runs an authoritative pass and signals every device.
func (c *Client) Refresh(ctx context.Context) []Device {
	return c.refresher.RefreshNow(ctx)
}

// Device returns a cached device merged with its live patch.
func (c *Client) Device(id string) (Device, bool) {
	return c.cache.Get(id)
}

// Devices returns every cached device merged with live patches.
func (c *Client) Devices() []Device {
	return c.cache.All()
}

// PerformAction sends an action to a device. See Dispatcher.PerformAction.
func (c *Client) PerformAction(ctx context.Context, deviceID, action string, args map[string]any) (ActionResult, error) {
	return c.dispatcher.PerformAction(ctx, deviceID, action, args)
}

// ListSites returns the controller's sites.
func (c *Client) ListSites(ctx context.Context) ([]Site, error) {
	return c.session.ListSites(ctx)
}

// ListPlaylists returns the signage playlists.
func (c *Client) ListPlaylists(ctx context.Context) ([]Playlist, error) {
	return c.session.ListPlaylists(ctx)
}

// StartEvents starts the push-event watcher.
func (c *Client) StartEvents(ctx context.Context) error {
	return c.watcher.Start(ctx)
}

// StopEvents stops the push-event watcher.
func (c *Client) StopEvents(ctx context.Context) error {
	return c.watcher.Stop(ctx)
}

// Subscribe returns a subscription to device update signals.
func (c *Client) Subscribe(ids ...string) *Subscription {
	return c.broadcaster.Subscribe(ids...)
}

// Session returns the underlying session.
func (c *Client) Session() *Session { return c.session }

// Catalog returns the action catalog in use.
func (c *Client) Catalog() *catalog.Catalog { return c.catalog }

// Directory returns the device directory.
func (c *Client) Directory() *Directory { return c.directory }

// Watcher returns the event watcher.
func (c *Client) Watcher() *Watcher { return c.watcher }

// Close stops the watcher, cancels pending reconciliations, closes every
// subscription and releases the transport.
func (c *Client) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.watcher.cfg.StopTimeout)
	defer cancel()

	var errs []error
	if err := c.watcher.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop event watcher: %w", err))
	}
	c.dispatcher.Close()
	c.broadcaster.Close()
	if err := c.session.Close(); err != nil {
		errs = append(errs, err)
	}

	logging.Debug("Client closed", zap.String("host", c.session.Host()))
	return errors.Join(errs...)
}
