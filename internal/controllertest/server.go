package controllertest

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/muurk/ucd/internal/logging"
	"go.uber.org/zap"
)

// DiscoveryMode selects which discovery endpoints answer.
type DiscoveryMode int

const (
	// ShadowCollection answers the v2 shadow collection.
	ShadowCollection DiscoveryMode = iota
	// ProxyObjects answers the v1 display list with full objects.
	ProxyObjects
	// ProxyIDs answers the v2 display list with bare ids.
	ProxyIDs
	// DiscoveredIDs answers the site-scoped v2 discovered POST with bare ids.
	DiscoveredIDs
	// DiscoveredEnvelope answers the global v1 discovered POST with {data: ids}.
	DiscoveredEnvelope
	// SiteSettings answers only the UI site-settings list.
	SiteSettings
	// None answers no discovery endpoint.
	None
)

// String returns a human-readable name for the mode
func (m DiscoveryMode) String() string {
	switch m {
	case ShadowCollection:
		return "shadow-collection"
	case ProxyObjects:
		return "proxy-objects"
	case ProxyIDs:
		return "proxy-ids"
	case DiscoveredIDs:
		return "discovered-ids"
	case DiscoveredEnvelope:
		return "discovered-envelope"
	case SiteSettings:
		return "site-settings"
	case None:
		return "none"
	default:
		return fmt.Sprintf("DiscoveryMode(%d)", int(m))
	}
}

// ParseDiscoveryMode is the inverse of DiscoveryMode.String.
func ParseDiscoveryMode(s string) (DiscoveryMode, error) {
	for m := ShadowCollection; m <= None; m++ {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown discovery mode: %s", s)
}

const (
	// SessionCookie is the cookie the fake sets on login.
	SessionCookie = "TOKEN"

	defaultToken = "fake-csrf-token"
)

// Config holds the fake controller configuration
type Config struct {
	Username string
	Password string
	Site     string

	// LoginPath is the only login candidate that succeeds.
	LoginPath string
	// LowerCaseKeys makes LoginPath accept only username/password keys.
	LowerCaseKeys bool
	// TokenInBody returns the CSRF token as csrfToken in the login body
	// instead of the X-Csrf-Token header.
	TokenInBody bool

	Mode DiscoveryMode

	// ApplyActions makes status PATCHes change the stored shadow.
	ApplyActions bool
	// StripSettingsID omits "id" from per-device settings answers.
	StripSettingsID bool

	Devices   []map[string]any
	Playlists []map[string]any
	Sites     []map[string]any
}

// Action is one status PATCH the fake received.
type Action struct {
	DeviceID string         `json:"deviceId"`
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Args     map[string]any `json:"args"`
}

// Server is an in-process TLS controller that speaks the vendor API.
type Server struct {
	cfg Config
	srv *httptest.Server

	mu        sync.Mutex
	mode      DiscoveryMode
	devices   map[string]map[string]any
	order     []string
	actions   []Action
	hits      map[string]int
	overrides map[string]int
	conns     map[*websocket.Conn]struct{}
	wsMu      sync.Mutex
}

// New starts a fake controller. Close it when done.
func New(cfg Config) *Server {
	if cfg.Username == "" {
		cfg.Username = "admin"
	}
	if cfg.Password == "" {
		cfg.Password = "password"
	}
	if cfg.Site == "" {
		cfg.Site = "default"
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/api/auth/login"
		cfg.LowerCaseKeys = true
	}
	if cfg.Devices == nil {
		cfg.Devices = DefaultDevices()
	}

	s := &Server{
		cfg:       cfg,
		mode:      cfg.Mode,
		devices:   make(map[string]map[string]any),
		hits:      make(map[string]int),
		overrides: make(map[string]int),
		conns:     make(map[*websocket.Conn]struct{}),
	}
	for _, d := range cfg.Devices {
		id, _ := d["id"].(string)
		if id == "" {
			continue
		}
		s.devices[id] = cloneMap(d)
		s.order = append(s.order, id)
	}

	s.srv = httptest.NewTLSServer(http.HandlerFunc(s.serveHTTP))
	logging.Debug("Fake controller listening",
		zap.String("url", s.srv.URL),
		zap.String("mode", cfg.Mode.String()),
	)
	return s
}

// Host returns host:port for use as a controller host.
func (s *Server) Host() string {
	return strings.TrimPrefix(s.srv.URL, "https://")
}

// URL returns the https base URL.
func (s *Server) URL() string {
	return s.srv.URL
}

// Close drops WebSocket clients and shuts the server down.
func (s *Server) Close() {
	s.DropConnections()
	s.srv.Close()
}

// SetMode changes which discovery endpoints answer.
func (s *Server) SetMode(m DiscoveryMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = m
}

// FailPath forces every request to path (any method) to answer status.
// A status of 0 removes the override.
func (s *Server) FailPath(path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.overrides, path)
		return
	}
	s.overrides[path] = status
}

// Hits returns how often method path was requested. The query string is
// not part of path.
func (s *Server) Hits(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[method+" "+path]
}

// Actions returns every status PATCH received so far.
func (s *Server) Actions() []Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Action(nil), s.actions...)
}

// Device returns a copy of a stored device record.
func (s *Server) Device(id string) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[id]
	if !ok {
		return nil, false
	}
	return cloneMap(d), true
}

// SetShadow replaces shadow keys of a stored device, as if the display had
// reported new state.
func (s *Server) SetShadow(id string, patch map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[id]
	if !ok {
		return
	}
	shadow, _ := d["shadow"].(map[string]any)
	if shadow == nil {
		shadow = map[string]any{}
		d["shadow"] = shadow
	}
	for k, v := range patch {
		shadow[k] = v
	}
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	s.mu.Lock()
	s.hits[r.Method+" "+path]++
	status, forced := s.overrides[path]
	mode := s.mode
	s.mu.Unlock()

	logging.Debug("Fake controller request",
		zap.String("method", r.Method),
		zap.String("path", path),
	)

	if forced {
		http.Error(w, http.StatusText(status), status)
		return
	}

	switch {
	case r.Method == http.MethodPost && isLoginPath(path):
		s.handleLogin(w, r)
		return
	case path == "/api/ws/system":
		s.handleWebSocket(w, r)
		return
	}

	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	switch {
	case r.Method == http.MethodGet && path == "/api/sites":
		writeJSON(w, http.StatusOK, map[string]any{"data": s.cfg.Sites})

	case r.Method == http.MethodGet && path == "/proxy/connect/api/v2/playlists":
		writeJSON(w, http.StatusOK, map[string]any{"data": s.cfg.Playlists})

	case r.Method == http.MethodGet && path == "/proxy/connect/api/v2/devices":
		if mode != ShadowCollection || r.URL.Query().Get("shadow") != "true" {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"type": "collection", "data": s.allDevices()})

	case r.Method == http.MethodGet && path == "/proxy/connect/api/v1/displays":
		if mode != ProxyObjects {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, http.StatusOK, s.allDevices())

	case r.Method == http.MethodGet && path == "/proxy/connect/api/v2/displays":
		if mode != ProxyIDs {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, http.StatusOK, s.allIDs())

	case r.Method == http.MethodPost && strings.HasSuffix(path, "/devices/discovered"):
		s.handleDiscovered(w, r, mode)

	case r.Method == http.MethodGet && strings.HasPrefix(path, "/connect/displays/devices/all/"):
		s.handleUISettings(w, r, mode)

	case r.Method == http.MethodGet && strings.HasPrefix(path, "/proxy/connect/api/") && strings.HasSuffix(path, "/settings"):
		s.handleSettings(w, r, between(path, "/displays/devices/", "/settings"))

	case r.Method == http.MethodPatch && strings.HasPrefix(path, "/proxy/connect/api/v2/devices/") && strings.HasSuffix(path, "/status"):
		s.handleAction(w, r, between(path, "/proxy/connect/api/v2/devices/", "/status"))

	case r.Method == http.MethodGet && strings.HasPrefix(path, "/proxy/connect/api/v2/devices/"):
		id := strings.TrimPrefix(path, "/proxy/connect/api/v2/devices/")
		d, ok := s.Device(id)
		if !ok {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": d})

	default:
		http.NotFound(w, r)
	}
}

func isLoginPath(path string) bool {
	switch path {
	case "/auth", "/api/auth", "/api/auth/login":
		return true
	}
	return false
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != s.cfg.LoginPath {
		http.NotFound(w, r)
		return
	}

	var creds map[string]string
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	userKey, passKey := "Username", "Password"
	if s.cfg.LowerCaseKeys {
		userKey, passKey = "username", "password"
	}
	if creds[userKey] != s.cfg.Username || creds[passKey] != s.cfg.Password {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: "session", Path: "/", HttpOnly: true})
	if s.cfg.TokenInBody {
		writeJSON(w, http.StatusOK, map[string]any{"csrfToken": defaultToken})
		return
	}
	w.Header().Set("X-Csrf-Token", defaultToken)
	writeJSON(w, http.StatusOK, map[string]any{"username": s.cfg.Username})
}

func (s *Server) authorized(r *http.Request) bool {
	c, err := r.Cookie(SessionCookie)
	if err != nil || c.Value == "" {
		return false
	}
	if r.Method == http.MethodGet {
		return true
	}
	return r.Header.Get("X-Csrf-Token") == defaultToken
}

func (s *Server) handleDiscovered(w http.ResponseWriter, r *http.Request, mode DiscoveryMode) {
	path := r.URL.Path
	switch {
	case mode == DiscoveredIDs && path == "/proxy/connect/api/v2/sites/"+s.cfg.Site+"/devices/discovered":
		writeJSON(w, http.StatusOK, s.allIDs())
	case mode == DiscoveredEnvelope && path == "/proxy/connect/api/v1/devices/discovered":
		writeJSON(w, http.StatusOK, map[string]any{"data": s.allIDs()})
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleUISettings(w http.ResponseWriter, r *http.Request, mode DiscoveryMode) {
	key := between(r.URL.Path, "/connect/displays/devices/all/", "/settings")
	if key == s.cfg.Site {
		if mode != SiteSettings {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, http.StatusOK, s.allDevices())
		return
	}
	s.handleSettings(w, r, key)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request, id string) {
	d, ok := s.Device(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if s.cfg.StripSettingsID {
		delete(d, "id")
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request, id string) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	var action Action
	if err := json.Unmarshal(body, &action); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	action.DeviceID = id

	s.mu.Lock()
	d, ok := s.devices[id]
	if ok {
		s.actions = append(s.actions, action)
		if s.cfg.ApplyActions {
			applyAction(d, action.Name, action.Args)
		}
	}
	s.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"err": nil, "type": "single", "data": map[string]any{"id": action.ID}})
}

func (s *Server) allDevices() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]any, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, cloneMap(s.devices[id]))
	}
	return out
}

func (s *Server) allIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// between returns the part of s after prefix and before suffix.
func between(s, prefix, suffix string) string {
	if i := strings.Index(s, prefix); i >= 0 {
		s = s[i+len(prefix):]
	}
	return strings.TrimSuffix(s, suffix)
}

// remoteHost strips the port from a RemoteAddr for logging.
func remoteHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
