package connect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/muurk/ucd/internal/logging"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// settingsConcurrency bounds parallel per-id settings fetches.
const settingsConcurrency = 4

// errDeclined marks a strategy that got a well-formed answer it cannot use.
var errDeclined = errors.New("strategy declined")

// Requester is the part of a Session the discovery chain needs.
type Requester interface {
	Exchange(ctx context.Context, method, path string, body any) (int, []byte, error)
	Site() string
}

// Strategy is one way of asking the controller for its displays. A nil
// error means the records are authoritative and the chain stops.
type Strategy interface {
	Name() string
	Discover(ctx context.Context, r Requester) ([]map[string]any, error)
}

// DefaultStrategies returns the discovery chain in the order it is tried.
func DefaultStrategies() []Strategy {
	resolver := SettingsResolver{}
	return []Strategy{
		ShadowCollection{},
		ProxyList{Resolver: resolver},
		DiscoveredPost{Resolver: resolver},
		SiteSettings{},
	}
}

// ShadowCollection reads the v2 device collection with embedded shadows.
type ShadowCollection struct{}

// Name implements Strategy.
func (ShadowCollection) Name() string { return "shadow-collection" }

// Discover implements Strategy.
func (ShadowCollection) Discover(ctx context.Context, r Requester) ([]map[string]any, error) {
	const path = "/proxy/connect/api/v2/devices?shadow=true"

	data, err := getOK(ctx, r, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, NewParseError("invalid collection envelope", err)
	}
	if envelope.Type != "collection" {
		return nil, fmt.Errorf("%w: envelope type %q", errDeclined, envelope.Type)
	}

	var items []any
	if err := json.Unmarshal(envelope.Data, &items); err != nil || items == nil {
		return nil, fmt.Errorf("%w: collection data is not a list", errDeclined)
	}
	return objects(items), nil
}

// ProxyList reads the legacy display lists. They hold either full objects
// or bare ids that must be resolved through the settings endpoints.
type ProxyList struct {
	Resolver SettingsResolver
}

// Name implements Strategy.
func (ProxyList) Name() string { return "proxy-list" }

// Discover implements Strategy.
func (p ProxyList) Discover(ctx context.Context, r Requester) ([]map[string]any, error) {
	var lastErr error = errDeclined
	for _, path := range []string{
		"/proxy/connect/api/v1/displays",
		"/proxy/connect/api/v2/displays",
	} {
		data, err := getOK(ctx, r, http.MethodGet, path, nil)
		if err != nil {
			lastErr = err
			continue
		}

		var items []any
		if err := json.Unmarshal(data, &items); err != nil || len(items) == 0 {
			lastErr = fmt.Errorf("%w: %s returned no list", errDeclined, path)
			continue
		}

		if _, ok := items[0].(map[string]any); ok {
			return objects(items), nil
		}

		ids, ok := stringList(items)
		if !ok {
			lastErr = fmt.Errorf("%w: %s returned a mixed list", errDeclined, path)
			continue
		}

		records := p.Resolver.Resolve(ctx, r, ids)
		if len(records) > 0 {
			return records, nil
		}
		lastErr = fmt.Errorf("%w: no settings resolved for %d ids", errDeclined, len(ids))
	}
	return nil, lastErr
}

// DiscoveredPost asks the adoption endpoints for the ids of discovered
// displays and resolves them through the settings endpoints.
type DiscoveredPost struct {
	Resolver SettingsResolver
}

// Name implements Strategy.
func (DiscoveredPost) Name() string { return "discovered-post" }

// Discover implements Strategy.
func (d DiscoveredPost) Discover(ctx context.Context, r Requester) ([]map[string]any, error) {
	site := url.PathEscape(r.Site())

	var lastErr error = errDeclined
	for _, path := range []string{
		"/proxy/connect/api/v2/sites/" + site + "/devices/discovered",
		"/proxy/connect/api/v1/sites/" + site + "/devices/discovered",
		"/proxy/connect/api/v2/devices/discovered",
		"/proxy/connect/api/v1/devices/discovered",
	} {
		data, err := getOK(ctx, r, http.MethodPost, path, map[string]any{})
		if err != nil {
			lastErr = err
			continue
		}

		ids, ok := discoveredIDs(data)
		if !ok || len(ids) == 0 {
			lastErr = fmt.Errorf("%w: %s returned no ids", errDeclined, path)
			continue
		}

		records := d.Resolver.Resolve(ctx, r, ids)
		if len(records) > 0 {
			return records, nil
		}
		lastErr = fmt.Errorf("%w: no settings resolved for %d ids", errDeclined, len(ids))
	}
	return nil, lastErr
}

// SiteSettings reads the settings list the web UI uses.
type SiteSettings struct{}

// Name implements Strategy.
func (SiteSettings) Name() string { return "site-settings" }

// Discover implements Strategy.
func (SiteSettings) Discover(ctx context.Context, r Requester) ([]map[string]any, error) {
	path := "/connect/displays/devices/all/" + url.PathEscape(r.Site()) + "/settings"

	data, err := getOK(ctx, r, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var items []any
	if err := json.Unmarshal(data, &items); err != nil || len(items) == 0 {
		return nil, fmt.Errorf("%w: site settings returned no list", errDeclined)
	}
	if _, ok := items[0].(map[string]any); !ok {
		return nil, fmt.Errorf("%w: site settings list holds no objects", errDeclined)
	}
	return objects(items), nil
}

// SettingsResolver turns bare display ids into settings records.
type SettingsResolver struct {
	// Concurrency bounds parallel fetches. Zero means the package default.
	Concurrency int
}

// Resolve fetches settings for every id. Ids that cannot be resolved are
// skipped; the rest keep input order.
func (sr SettingsResolver) Resolve(ctx context.Context, r Requester, ids []string) []map[string]any {
	limit := sr.Concurrency
	if limit <= 0 {
		limit = settingsConcurrency
	}

	results := make([]map[string]any, len(ids))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, id := range ids {
		g.Go(func() error {
			results[i] = resolveSettings(ctx, r, id)
			return nil
		})
	}
	_ = g.Wait()

	records := make([]map[string]any, 0, len(ids))
	for _, rec := range results {
		if rec != nil {
			records = append(records, rec)
		}
	}
	if len(records) == 0 && len(ids) > 0 {
		logging.Warn("No display settings could be fetched", zap.Int("ids", len(ids)))
	}
	return records
}

func resolveSettings(ctx context.Context, r Requester, id string) map[string]any {
	escaped := url.PathEscape(id)
	for _, path := range []string{
		"/proxy/connect/api/v2/displays/devices/" + escaped + "/settings",
		"/proxy/connect/api/v1/displays/devices/" + escaped + "/settings",
		"/connect/displays/devices/all/" + escaped + "/settings",
	} {
		if ctx.Err() != nil {
			return nil
		}

		data, err := getOK(ctx, r, http.MethodGet, path, nil)
		if err != nil {
			logging.Debug("Settings candidate failed", zap.String("path", path), zap.Error(err))
			continue
		}

		var rec map[string]any
		if err := json.Unmarshal(data, &rec); err != nil || rec == nil {
			continue
		}
		if existing, _ := rec["id"].(string); existing == "" {
			rec["id"] = id
		}
		return rec
	}
	return nil
}

// getOK performs a request and returns the body only for a 200 answer.
func getOK(ctx context.Context, r Requester, method, path string, body any) ([]byte, error) {
	status, data, err := r.Exchange(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, NewHTTPError(status, path, fmt.Sprintf("%s returned status %d", method, status))
	}
	return data, nil
}

// discoveredIDs accepts either ["id", ...] or {"data": ["id", ...]}.
func discoveredIDs(data []byte) ([]string, bool) {
	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, false
	}

	var items []any
	switch v := payload.(type) {
	case []any:
		items = v
	case map[string]any:
		list, ok := v["data"].([]any)
		if !ok {
			return nil, false
		}
		items = list
	default:
		return nil, false
	}
	return stringList(items)
}

func stringList(items []any) ([]string, bool) {
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

func objects(items []any) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
