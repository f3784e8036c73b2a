package connect

import (
	"context"
	"testing"
	"time"

	"github.com/muurk/ucd/internal/controllertest"
)

// newFakeClient starts a fake controller and returns a logged-in client
// for it. Both are closed when the test ends.
func newFakeClient(t *testing.T, cfg controllertest.Config, opts Options) (*Client, *controllertest.Server) {
	t.Helper()

	srv := controllertest.New(cfg)
	t.Cleanup(srv.Close)

	client, err := New(SessionConfig{
		Host:     srv.Host(),
		Username: "admin",
		Password: "password",
	}, opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Login(ctx); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	return client, srv
}

// waitFor polls cond until it holds or the timeout expires.
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// drain collects every id currently buffered on a subscription.
func drain(sub *Subscription) []string {
	var ids []string
	for {
		select {
		case id, ok := <-sub.C:
			if !ok {
				return ids
			}
			ids = append(ids, id)
		default:
			return ids
		}
	}
}

// fixedClock is a settable time source.
type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

func (c *fixedClock) Advance(d time.Duration) { c.now = c.now.Add(d) }
