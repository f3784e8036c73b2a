package connect

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
)

type cannedResponse struct {
	status int
	body   string
	err    error
}

// cannedRequester answers "METHOD path" keys with fixed responses and 404
// for everything else.
type cannedRequester struct {
	site      string
	responses map[string]cannedResponse

	mu    sync.Mutex
	calls []string
}

func (c *cannedRequester) Exchange(_ context.Context, method, path string, _ any) (int, []byte, error) {
	key := method + " " + path
	c.mu.Lock()
	c.calls = append(c.calls, key)
	c.mu.Unlock()

	r, ok := c.responses[key]
	if !ok {
		return http.StatusNotFound, []byte(`{"error":"not found"}`), nil
	}
	if r.err != nil {
		return 0, nil, r.err
	}
	return r.status, []byte(r.body), nil
}

func (c *cannedRequester) Site() string {
	if c.site == "" {
		return "default"
	}
	return c.site
}

func (c *cannedRequester) called(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range c.calls {
		if k == key {
			return true
		}
	}
	return false
}

const (
	shadowPath = "GET /proxy/connect/api/v2/devices?shadow=true"
	v1Displays = "GET /proxy/connect/api/v1/displays"
	v2Displays = "GET /proxy/connect/api/v2/displays"
)

func settingsKey(id string) string {
	return "GET /proxy/connect/api/v2/displays/devices/" + id + "/settings"
}

func ids(records []map[string]any) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		id, _ := r["id"].(string)
		out = append(out, id)
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestShadowCollection(t *testing.T) {
	tests := []struct {
		name    string
		resp    cannedResponse
		wantIDs []string
		wantErr bool
	}{
		{
			name:    "collection",
			resp:    cannedResponse{status: 200, body: `{"type":"collection","data":[{"id":"a"},{"id":"b"}]}`},
			wantIDs: []string{"a", "b"},
		},
		{
			name:    "empty collection is authoritative",
			resp:    cannedResponse{status: 200, body: `{"type":"collection","data":[]}`},
			wantIDs: []string{},
		},
		{
			name:    "wrong envelope type",
			resp:    cannedResponse{status: 200, body: `{"type":"single","data":[{"id":"a"}]}`},
			wantErr: true,
		},
		{
			name:    "data not a list",
			resp:    cannedResponse{status: 200, body: `{"type":"collection","data":{"id":"a"}}`},
			wantErr: true,
		},
		{
			name:    "non-200",
			resp:    cannedResponse{status: 204, body: ``},
			wantErr: true,
		},
		{
			name:    "transport error",
			resp:    cannedResponse{err: NewNetworkError("boom", errors.New("reset"))},
			wantErr: true,
		},
		{
			name:    "not json",
			resp:    cannedResponse{status: 200, body: `<html>`},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &cannedRequester{responses: map[string]cannedResponse{shadowPath: tt.resp}}
			records, err := ShadowCollection{}.Discover(context.Background(), r)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Discover() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !equalStrings(ids(records), tt.wantIDs) {
				t.Errorf("ids = %v, want %v", ids(records), tt.wantIDs)
			}
		})
	}
}

func TestProxyList_Objects(t *testing.T) {
	r := &cannedRequester{responses: map[string]cannedResponse{
		v1Displays: {status: 200, body: `[{"id":"a","name":"Lobby"}]`},
	}}

	records, err := ProxyList{}.Discover(context.Background(), r)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if !equalStrings(ids(records), []string{"a"}) {
		t.Errorf("ids = %v, want [a]", ids(records))
	}
	if r.called(v2Displays) {
		t.Error("v2 should not be asked once v1 yields")
	}
}

func TestProxyList_IDsResolvedThroughSettings(t *testing.T) {
	r := &cannedRequester{responses: map[string]cannedResponse{
		v1Displays:       {status: 200, body: `[]`},
		v2Displays:       {status: 200, body: `["a","b","c"]`},
		settingsKey("a"): {status: 200, body: `{"id":"a","name":"A"}`},
		settingsKey("b"): {status: 500, body: `oops`},
		"GET /proxy/connect/api/v1/displays/devices/b/settings": {status: 200, body: `{"name":"B"}`},
		settingsKey("c"): {status: 200, body: `{"id":"c"}`},
	}}

	records, err := ProxyList{}.Discover(context.Background(), r)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if !equalStrings(ids(records), []string{"a", "b", "c"}) {
		t.Errorf("ids = %v, want [a b c] in input order", ids(records))
	}
	if records[1]["name"] != "B" {
		t.Errorf("record b = %v, want v1 settings answer", records[1])
	}
}

func TestProxyList_FailedIDDoesNotAffectOthers(t *testing.T) {
	r := &cannedRequester{responses: map[string]cannedResponse{
		v1Displays:       {status: 200, body: `["a","b","c"]`},
		settingsKey("a"): {status: 200, body: `{"id":"a"}`},
		settingsKey("b"): {status: 500, body: `oops`},
		"GET /proxy/connect/api/v1/displays/devices/b/settings": {status: 404, body: `{}`},
		"GET /connect/displays/devices/all/b/settings":          {status: 500, body: `oops`},
		settingsKey("c"): {status: 200, body: `{"id":"c"}`},
	}}

	records, err := ProxyList{}.Discover(context.Background(), r)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if !equalStrings(ids(records), []string{"a", "c"}) {
		t.Errorf("ids = %v, want [a c]", ids(records))
	}
	for _, key := range []string{
		settingsKey("b"),
		"GET /proxy/connect/api/v1/displays/devices/b/settings",
		"GET /connect/displays/devices/all/b/settings",
	} {
		if !r.called(key) {
			t.Errorf("%s was not tried", key)
		}
	}
	if r.called(v2Displays) {
		t.Error("v2 should not be asked once v1 yields")
	}
}

func TestProxyList_DeclinesWhenNothingResolves(t *testing.T) {
	r := &cannedRequester{responses: map[string]cannedResponse{
		v1Displays: {status: 200, body: `["a"]`},
	}}

	if _, err := (ProxyList{}).Discover(context.Background(), r); err == nil {
		t.Error("Discover() should decline when no id resolves")
	}
}

func TestDiscoveredPost(t *testing.T) {
	tests := []struct {
		name string
		key  string
		body string
	}{
		{"site scoped v2 bare list", "POST /proxy/connect/api/v2/sites/hq/devices/discovered", `["a"]`},
		{"site scoped v1 envelope", "POST /proxy/connect/api/v1/sites/hq/devices/discovered", `{"data":["a"]}`},
		{"global v2", "POST /proxy/connect/api/v2/devices/discovered", `["a"]`},
		{"global v1 envelope", "POST /proxy/connect/api/v1/devices/discovered", `{"data":["a"]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &cannedRequester{site: "hq", responses: map[string]cannedResponse{
				tt.key:           {status: 200, body: tt.body},
				settingsKey("a"): {status: 200, body: `{"id":"a"}`},
			}}
			records, err := DiscoveredPost{}.Discover(context.Background(), r)
			if err != nil {
				t.Fatalf("Discover() error = %v", err)
			}
			if !equalStrings(ids(records), []string{"a"}) {
				t.Errorf("ids = %v, want [a]", ids(records))
			}
		})
	}
}

func TestDiscoveredPost_RejectsNonStrings(t *testing.T) {
	r := &cannedRequester{responses: map[string]cannedResponse{
		"POST /proxy/connect/api/v2/sites/default/devices/discovered": {status: 200, body: `[{"id":"a"}]`},
	}}
	if _, err := (DiscoveredPost{}).Discover(context.Background(), r); err == nil {
		t.Error("Discover() should decline a list of objects")
	}
}

func TestSiteSettings(t *testing.T) {
	key := "GET /connect/displays/devices/all/default/settings"

	r := &cannedRequester{responses: map[string]cannedResponse{
		key: {status: 200, body: `[{"id":"a"},{"id":"b"}]`},
	}}
	records, err := SiteSettings{}.Discover(context.Background(), r)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if !equalStrings(ids(records), []string{"a", "b"}) {
		t.Errorf("ids = %v, want [a b]", ids(records))
	}

	for _, body := range []string{`[]`, `["a"]`, `{"data":[]}`} {
		r := &cannedRequester{responses: map[string]cannedResponse{key: {status: 200, body: body}}}
		if _, err := (SiteSettings{}).Discover(context.Background(), r); err == nil {
			t.Errorf("Discover(%s) should decline", body)
		}
	}
}

func TestSettingsResolver_InjectsID(t *testing.T) {
	r := &cannedRequester{responses: map[string]cannedResponse{
		"GET /connect/displays/devices/all/x/settings": {status: 200, body: `{"name":"X"}`},
	}}

	records := SettingsResolver{Concurrency: 1}.Resolve(context.Background(), r, []string{"x", "missing"})
	if len(records) != 1 {
		t.Fatalf("Resolve() returned %d records, want 1", len(records))
	}
	if records[0]["id"] != "x" {
		t.Errorf("id = %v, want injected x", records[0]["id"])
	}
}
