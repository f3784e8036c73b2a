package connect

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/muurk/ucd/internal/logging"
	"github.com/muurk/ucd/internal/version"
	"go.uber.org/zap"
)

const (
	// DefaultSite is used when no site is configured.
	DefaultSite = "default"

	// DefaultTimeout is the per-request HTTP timeout.
	DefaultTimeout = 15 * time.Second

	csrfHeader        = "X-Csrf-Token"
	updatedCSRFHeader = "X-Updated-Csrf-Token"

	// maxResponseBody bounds how much of a response body is read.
	maxResponseBody = 8 << 20
)

// loginCandidate is one (path, credential casing) combination tried by Login.
type loginCandidate struct {
	path      string
	lowerKeys bool
}

// Firmware generations disagree on the login path and on the casing of the
// credential keys, so every known combination is tried in this order.
var loginCandidates = []loginCandidate{
	{path: "/auth", lowerKeys: false},
	{path: "/api/auth", lowerKeys: false},
	{path: "/api/auth", lowerKeys: true},
	{path: "/api/auth/login", lowerKeys: true},
}

// SessionConfig holds what is needed to talk to one controller.
type SessionConfig struct {
	Host     string
	Username string
	Password string
	Site     string
	Timeout  time.Duration
}

// Site is a controller site as returned by ListSites.
type Site struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Playlist is a signage playlist as returned by ListPlaylists.
type Playlist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Session is an authenticated HTTP session against one controller. The
// cookie jar is shared with the event watcher.
type Session struct {
	host     string
	baseURL  string
	site     string
	username string
	password string

	httpClient *http.Client
	jar        http.CookieJar
	userAgent  string

	mu        sync.RWMutex
	csrfToken string
	loginPath string

	closed atomic.Bool
}

// NewSession creates a session for the controller at cfg.Host. No request
// is made until Login.
func NewSession(cfg SessionConfig) (*Session, error) {
	host := NormalizeHost(cfg.Host)
	if host == "" {
		return nil, fmt.Errorf("controller host is required")
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	site := cfg.Site
	if site == "" {
		site = DefaultSite
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // consoles ship self-signed certificates
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     30 * time.Second,
	}

	return &Session{
		host:     host,
		baseURL:  "https://" + host,
		site:     site,
		username: cfg.Username,
		password: cfg.Password,
		httpClient: &http.Client{
			Timeout:   timeout,
			Jar:       jar,
			Transport: transport,
		},
		jar:       jar,
		userAgent: version.UserAgent(),
	}, nil
}

// NormalizeHost strips scheme, path and whitespace from user input so that
// "https://10.0.0.1:8443/manage" becomes "10.0.0.1:8443".
func NormalizeHost(input string) string {
	s := strings.TrimSpace(input)
	if s == "" {
		return ""
	}
	if strings.Contains(s, "://") {
		if u, err := url.Parse(s); err == nil && u.Host != "" {
			return u.Host
		}
		s = s[strings.Index(s, "://")+3:]
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSuffix(s, ".")
}

// Host returns the normalized controller host.
func (s *Session) Host() string { return s.host }

// BaseURL returns https://{host}.
func (s *Session) BaseURL() string { return s.baseURL }

// Site returns the configured site id.
func (s *Session) Site() string { return s.site }

// Jar returns the cookie jar holding the session cookie.
func (s *Session) Jar() http.CookieJar { return s.jar }

// CSRFToken returns the current anti-forgery token, which may be empty.
func (s *Session) CSRFToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.csrfToken
}

// LoginPath returns the path that accepted the last successful login.
func (s *Session) LoginPath() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loginPath
}

// LoggedIn reports whether Login has succeeded.
func (s *Session) LoggedIn() bool {
	return s.LoginPath() != ""
}

// Login authenticates against the first candidate endpoint that accepts the
// credentials.
func (s *Session) Login(ctx context.Context) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}

	var lastErr error
	for _, cand := range loginCandidates {
		payload := map[string]string{"Username": s.username, "Password": s.password}
		if cand.lowerKeys {
			payload = map[string]string{"username": s.username, "password": s.password}
		}

		status, header, body, err := s.send(ctx, http.MethodPost, cand.path, payload, false)
		if err != nil {
			logging.Error("Login request failed",
				zap.String("path", cand.path),
				zap.Error(err),
			)
			lastErr = err
			continue
		}

		switch {
		case status == http.StatusUnauthorized || status == http.StatusNotFound || status == http.StatusMethodNotAllowed:
			logging.Debug("Login candidate rejected",
				zap.String("path", cand.path),
				zap.Int("status", status),
			)
			lastErr = NewHTTPError(status, cand.path, "login rejected")
			continue
		case status >= 400:
			logging.Warn("Login candidate failed",
				zap.String("path", cand.path),
				zap.Int("status", status),
			)
			lastErr = NewHTTPError(status, cand.path, "login failed")
			continue
		}

		token := header.Get(csrfHeader)
		if token == "" {
			var reply struct {
				CSRFToken string `json:"csrfToken"`
			}
			if json.Unmarshal(body, &reply) == nil {
				token = reply.CSRFToken
			}
		}

		s.mu.Lock()
		if token != "" {
			s.csrfToken = token
		}
		s.loginPath = cand.path
		s.mu.Unlock()

		logging.Info("Logged in",
			zap.String("host", s.host),
			zap.String("path", cand.path),
			zap.Bool("csrf", token != ""),
		)
		return nil
	}

	return NewAuthError(fmt.Sprintf("all login attempts against %s failed", s.host), lastErr)
}

// GetJSON performs GET path and decodes the response into out.
func (s *Session) GetJSON(ctx context.Context, path string, out any) error {
	return s.doJSON(ctx, http.MethodGet, path, nil, out)
}

// PostJSON performs POST path with a JSON body and decodes the response into out.
func (s *Session) PostJSON(ctx context.Context, path string, body, out any) error {
	return s.doJSON(ctx, http.MethodPost, path, body, out)
}

// PatchJSON performs PATCH path with a JSON body and decodes the response into out.
func (s *Session) PatchJSON(ctx context.Context, path string, body, out any) error {
	return s.doJSON(ctx, http.MethodPatch, path, body, out)
}

// ListSites returns the sites known to the controller.
func (s *Session) ListSites(ctx context.Context) ([]Site, error) {
	var raw json.RawMessage
	if err := s.GetJSON(ctx, "/api/sites", &raw); err != nil {
		return nil, err
	}

	items, err := unwrapList(raw)
	if err != nil {
		return nil, NewParseError("unexpected sites payload", err)
	}

	sites := make([]Site, 0, len(items))
	for _, item := range items {
		id := firstString(item, "id", "_id", "name")
		if id == "" {
			continue
		}
		name := firstString(item, "desc", "name")
		if name == "" {
			name = id
		}
		sites = append(sites, Site{ID: id, Name: name})
	}
	return sites, nil
}

// ListPlaylists returns the signage playlists.
func (s *Session) ListPlaylists(ctx context.Context) ([]Playlist, error) {
	var raw json.RawMessage
	if err := s.GetJSON(ctx, "/proxy/connect/api/v2/playlists", &raw); err != nil {
		return nil, err
	}

	items, err := unwrapList(raw)
	if err != nil {
		return nil, NewParseError("unexpected playlists payload", err)
	}

	playlists := make([]Playlist, 0, len(items))
	for _, item := range items {
		id := firstString(item, "id")
		if id == "" {
			continue
		}
		name := firstString(item, "name")
		if name == "" {
			name = id
		}
		playlists = append(playlists, Playlist{ID: id, Name: name})
	}
	return playlists, nil
}

// Close releases pooled connections. It is safe to call more than once.
func (s *Session) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.httpClient.CloseIdleConnections()
	logging.Debug("Session closed", zap.String("host", s.host))
	return nil
}

// Exchange performs an authenticated request and returns status and body
// without judging the status code. Discovery strategies build on this.
func (s *Session) Exchange(ctx context.Context, method, path string, body any) (int, []byte, error) {
	status, _, data, err := s.send(ctx, method, path, body, true)
	return status, data, err
}

func (s *Session) doJSON(ctx context.Context, method, path string, body, out any) error {
	status, data, err := s.Exchange(ctx, method, path, body)
	if err != nil {
		return err
	}

	if status < 200 || status > 299 {
		return NewHTTPError(status, path, fmt.Sprintf("%s returned status %d", method, status))
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return NewParseError(fmt.Sprintf("failed to decode %s response", path), err)
	}
	return nil
}

func (s *Session) send(ctx context.Context, method, path string, body any, withToken bool) (int, http.Header, []byte, error) {
	req, err := s.newRequest(ctx, method, path, body, withToken)
	if err != nil {
		return 0, nil, nil, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		logging.LogHTTPExchange(method, path, 0, err)
		return 0, nil, nil, NewNetworkError(fmt.Sprintf("%s %s failed", method, path), err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		logging.LogHTTPExchange(method, path, resp.StatusCode, err)
		return resp.StatusCode, resp.Header, nil, NewNetworkError("failed to read response body", err)
	}

	logging.LogHTTPExchange(method, path, resp.StatusCode, nil)
	s.absorbToken(resp.Header)
	return resp.StatusCode, resp.Header, data, nil
}

func (s *Session) newRequest(ctx context.Context, method, path string, body any, withToken bool) (*http.Request, error) {
	if s.closed.Load() {
		return nil, fmt.Errorf("%s %s: %w", method, path, ErrSessionClosed)
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return nil, NewNetworkError("failed to create request", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", s.userAgent)
	if withToken {
		if token := s.CSRFToken(); token != "" {
			req.Header.Set(csrfHeader, token)
		}
	}
	return req, nil
}

func (s *Session) absorbToken(h http.Header) {
	token := h.Get(updatedCSRFHeader)
	if token == "" {
		return
	}
	s.mu.Lock()
	s.csrfToken = token
	s.mu.Unlock()
}

// unwrapList accepts either a bare JSON array of objects or {data: [...]}.
func unwrapList(raw json.RawMessage) ([]map[string]any, error) {
	var items []map[string]any
	if err := json.Unmarshal(raw, &items); err == nil {
		return items, nil
	}

	var envelope struct {
		Data []map[string]any `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, err
	}
	return envelope.Data, nil
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
