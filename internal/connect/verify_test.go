package connect

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/muurk/ucd/internal/controllertest"
)

var fastVerify = VerifyOptions{
	MaxAttempts:   3,
	InitialDelay:  -1,
	RetryDelay:    5 * time.Millisecond,
	MaxRetryDelay: 10 * time.Millisecond,
}

func TestVerifyAction_Applied(t *testing.T) {
	client, _ := newFakeClient(t, controllertest.Config{ApplyActions: true}, Options{ReconcileDelay: time.Hour})
	ctx := context.Background()
	client.ListDevices(ctx)

	args := map[string]any{"value": 35}
	if _, err := client.PerformAction(ctx, "d1", "volume", args); err != nil {
		t.Fatalf("PerformAction() error = %v", err)
	}

	result := client.VerifyAction(ctx, "d1", "volume", args, fastVerify)
	if !result.Success {
		t.Fatalf("VerifyAction() failed: %v (mismatches %v)", result.Err, result.Mismatches)
	}
	if result.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", result.Attempts)
	}
	if v, _ := result.Actual.Volume(); v != 35 {
		t.Errorf("Actual volume = %d, want 35", v)
	}
}

func TestVerifyAction_NotApplied(t *testing.T) {
	client, srv := newFakeClient(t, controllertest.Config{}, Options{ReconcileDelay: time.Hour})
	ctx := context.Background()
	client.ListDevices(ctx)

	if _, err := client.PerformAction(ctx, "d1", "display_off", nil); err != nil {
		t.Fatalf("PerformAction() error = %v", err)
	}
	// The optimistic patch says off; the controller still reports on.
	d, _ := client.Device("d1")
	if on, _ := d.Shadow.Display(); on {
		t.Fatal("optimistic patch should be visible")
	}

	before := srv.Hits(http.MethodGet, listPath)
	result := client.VerifyAction(ctx, "d1", "display_off", nil, fastVerify)
	if result.Success {
		t.Fatal("VerifyAction() succeeded, want a mismatch")
	}
	if result.Attempts != fastVerify.MaxAttempts {
		t.Errorf("Attempts = %d, want %d", result.Attempts, fastVerify.MaxAttempts)
	}
	if len(result.Mismatches) != 1 || !strings.HasPrefix(result.Mismatches[0], "display:") {
		t.Errorf("Mismatches = %v, want one display mismatch", result.Mismatches)
	}
	if result.Err == nil || !strings.Contains(result.Err.Error(), "3 attempt") {
		t.Errorf("Err = %v, want attempts in the message", result.Err)
	}
	if got := srv.Hits(http.MethodGet, listPath) - before; got != 3 {
		t.Errorf("refreshes = %d, want 3", got)
	}
}

func TestVerifyAction_Unpredictable(t *testing.T) {
	client, srv := newFakeClient(t, controllertest.Config{}, Options{ReconcileDelay: time.Hour})

	result := client.VerifyAction(context.Background(), "d1", "stop", nil, fastVerify)
	if !result.Success || result.Attempts != 0 || result.Expected != nil {
		t.Errorf("result = %+v, want success without attempts", result)
	}
	if srv.Hits(http.MethodGet, listPath) != 0 {
		t.Error("nothing should be fetched for an unpredictable action")
	}
}

func TestVerifyAction_Canceled(t *testing.T) {
	client, _ := newFakeClient(t, controllertest.Config{}, Options{ReconcileDelay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := client.VerifyAction(ctx, "d1", "display_on", nil, VerifyOptions{InitialDelay: time.Minute})
	if result.Success || result.Err == nil {
		t.Errorf("result = %+v, want a context error", result)
	}
}

func TestShadowMismatches(t *testing.T) {
	tests := []struct {
		name     string
		expected Shadow
		actual   Shadow
		want     int
	}{
		{"int matches float", Shadow{"volume": 35}, Shadow{"volume": float64(35)}, 0},
		{"bool matches", Shadow{"display": false}, Shadow{"display": false}, 0},
		{"string differs", Shadow{"mode": "web"}, Shadow{"mode": "youtube"}, 1},
		{"missing key", Shadow{"rotate": "portraitPrim"}, Shadow{}, 1},
		{"extra actual keys ignored", Shadow{"mode": "web"}, Shadow{"mode": "web", "volume": 3}, 0},
		{"two mismatches", Shadow{"mode": "web", "currentHomePage": "https://a"}, Shadow{"mode": "youtube"}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shadowMismatches(tt.expected, tt.actual); len(got) != tt.want {
				t.Errorf("shadowMismatches() = %v, want %d mismatch(es)", got, tt.want)
			}
		})
	}
}
