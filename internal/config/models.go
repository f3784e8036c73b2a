package config

import (
	"fmt"
	"sort"
	"time"

	"github.com/muurk/ucd/internal/catalog"
	"github.com/muurk/ucd/internal/connect"
)

// CurrentVersion is the only config file version this build understands.
const CurrentVersion = 1

// MQTT defaults applied by MQTT.WithDefaults.
const (
	DefaultTopicPrefix = "ucd"
	DefaultClientID    = "ucd-bridge"
)

// Registry represents the entire user configuration file.
// It stores controller connection details and application preferences.
type Registry struct {
	Version           int                    `yaml:"version"`
	DefaultController string                 `yaml:"default_controller,omitempty"`
	Controllers       map[string]*Controller `yaml:"controllers,omitempty"` // Keyed by user-chosen name
	Preferences       *Preferences           `yaml:"preferences,omitempty"`
	MQTT              *MQTT                  `yaml:"mqtt,omitempty"`
}

// Controller is one UniFi console the client can talk to.
// The password is NEVER stored; it is read from UCD_PASSWORD or prompted.
type Controller struct {
	Host        string    `yaml:"host"`
	Username    string    `yaml:"username,omitempty"`
	Site        string    `yaml:"site,omitempty"`
	CatalogFile string    `yaml:"catalog_file,omitempty"` // Extra action catalog layered on the default
	LoginPath   string    `yaml:"login_path,omitempty"`   // Last login candidate that worked, informational
	LastLogin   time.Time `yaml:"last_login,omitempty"`
}

// Preferences are client tuning knobs. Zero values leave the client
// defaults in place.
type Preferences struct {
	LogLevel         string `yaml:"log_level,omitempty"`
	SettleMS         int    `yaml:"settle_ms,omitempty"`
	ReconcileDelayMS int    `yaml:"reconcile_delay_ms,omitempty"`
	OptimisticTTLMS  int    `yaml:"optimistic_ttl_ms,omitempty"`
	BackoffBaseMS    int    `yaml:"backoff_base_ms,omitempty"`
	BackoffMaxMS     int    `yaml:"backoff_max_ms,omitempty"`
	DiscoverTimeout  int    `yaml:"discover_timeout,omitempty"` // mDNS scan timeout in seconds
}

// MQTT configures the state bridge. The broker password is never stored;
// it is read from UCD_MQTT_PASSWORD.
type MQTT struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id,omitempty"`
	Username    string `yaml:"username,omitempty"`
	TopicPrefix string `yaml:"topic_prefix,omitempty"`
	QoS         byte   `yaml:"qos,omitempty"`
}

// NewRegistry creates a new Registry with default values.
func NewRegistry() *Registry {
	return &Registry{
		Version:     CurrentVersion,
		Controllers: make(map[string]*Controller),
		Preferences: &Preferences{
			DiscoverTimeout: 5,
		},
	}
}

// GetController retrieves a controller by name.
// Returns nil if it doesn't exist in the registry.
func (r *Registry) GetController(name string) *Controller {
	return r.Controllers[name]
}

// EnsureController returns the named controller, creating an empty entry
// if needed. The first controller added becomes the default.
func (r *Registry) EnsureController(name string) *Controller {
	if r.Controllers == nil {
		r.Controllers = make(map[string]*Controller)
	}

	if c, exists := r.Controllers[name]; exists {
		return c
	}

	c := &Controller{}
	r.Controllers[name] = c
	if r.DefaultController == "" {
		r.DefaultController = name
	}
	return c
}

// RemoveController deletes a controller. Removing the default clears it.
func (r *Registry) RemoveController(name string) bool {
	if _, ok := r.Controllers[name]; !ok {
		return false
	}
	delete(r.Controllers, name)
	if r.DefaultController == name {
		r.DefaultController = ""
	}
	return true
}

// SetDefault makes name the default controller.
func (r *Registry) SetDefault(name string) error {
	if _, ok := r.Controllers[name]; !ok {
		return fmt.Errorf("unknown controller: %s", name)
	}
	r.DefaultController = name
	return nil
}

// ControllerNames returns every configured controller name, sorted.
func (r *Registry) ControllerNames() []string {
	names := make([]string, 0, len(r.Controllers))
	for name := range r.Controllers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve picks the controller to use. An empty name selects the default,
// or the only configured controller when no default is set.
func (r *Registry) Resolve(name string) (string, *Controller, error) {
	if name == "" {
		name = r.DefaultController
	}
	if name == "" && len(r.Controllers) == 1 {
		for only := range r.Controllers {
			name = only
		}
	}
	if name == "" {
		return "", nil, fmt.Errorf("no controller selected (configure one with 'ucd login' or pass --host)")
	}

	c, ok := r.Controllers[name]
	if !ok {
		return "", nil, fmt.Errorf("unknown controller: %s", name)
	}
	return name, c, nil
}

// RecordLogin remembers the login path that worked and when.
func (r *Registry) RecordLogin(name, loginPath string) {
	c := r.EnsureController(name)
	c.LoginPath = loginPath
	c.LastLogin = time.Now()
}

// SessionConfig builds a session configuration for c.
func (c *Controller) SessionConfig(password string) connect.SessionConfig {
	return connect.SessionConfig{
		Host:     c.Host,
		Username: c.Username,
		Password: password,
		Site:     c.Site,
	}
}

// LoadCatalog returns the default catalog with the controller's catalog
// file and any extra files layered on top, in that order.
func (c *Controller) LoadCatalog(extra ...string) (*catalog.Catalog, error) {
	paths := make([]string, 0, len(extra)+1)
	if c != nil {
		paths = append(paths, c.CatalogFile)
	}
	paths = append(paths, extra...)
	return catalog.WithOverrides(paths...)
}

// ClientOptions converts the preferences to client options.
func (p *Preferences) ClientOptions() connect.Options {
	if p == nil {
		return connect.Options{}
	}
	return connect.Options{
		Settle:         millis(p.SettleMS),
		ReconcileDelay: millis(p.ReconcileDelayMS),
		OptimisticTTL:  millis(p.OptimisticTTLMS),
		BackoffBase:    millis(p.BackoffBaseMS),
		BackoffMax:     millis(p.BackoffMaxMS),
	}
}

// DiscoverDuration returns the mDNS scan timeout.
func (p *Preferences) DiscoverDuration() time.Duration {
	if p == nil || p.DiscoverTimeout <= 0 {
		return 5 * time.Second
	}
	return time.Duration(p.DiscoverTimeout) * time.Second
}

// WithDefaults returns a copy of m with empty fields filled in.
func (m *MQTT) WithDefaults() MQTT {
	var out MQTT
	if m != nil {
		out = *m
	}
	if out.TopicPrefix == "" {
		out.TopicPrefix = DefaultTopicPrefix
	}
	if out.ClientID == "" {
		out.ClientID = DefaultClientID
	}
	if out.QoS > 2 {
		out.QoS = 2
	}
	return out
}

func millis(ms int) time.Duration {
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}
