package connect

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/muurk/ucd/internal/logging"
	"go.uber.org/zap"
)

// VerifyOptions configures how VerifyAction polls the controller.
type VerifyOptions struct {
	// MaxAttempts is the number of authoritative refreshes. Default: 4
	MaxAttempts int

	// InitialDelay gives the display time to apply the action before the
	// first refresh. Default: 500ms
	InitialDelay time.Duration

	// RetryDelay is the first delay between attempts, doubled up to
	// MaxRetryDelay. Defaults: 1s and 5s
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

// DefaultVerifyOptions returns the options used when none are given.
func DefaultVerifyOptions() VerifyOptions {
	return VerifyOptions{
		MaxAttempts:   4,
		InitialDelay:  500 * time.Millisecond,
		RetryDelay:    time.Second,
		MaxRetryDelay: 5 * time.Second,
	}
}

// VerifyResult is the outcome of VerifyAction.
type VerifyResult struct {
	// Success is true when the reported shadow matched the prediction, or
	// when the action has no predictable effect.
	Success bool

	Attempts int

	// Expected is the predicted shadow delta; nil when nothing was checked.
	Expected Shadow

	// Actual is the shadow the controller reported on the last attempt.
	Actual Shadow

	// Mismatches lists the keys that differed on the last attempt.
	Mismatches []string

	Err error
}

var errShadowMismatch = errors.New("reported shadow does not match")

// VerifyAction refreshes until the controller reports the shadow an action
// predicts for deviceID, or the attempts run out. It reads the reported
// record, so an optimistic patch never makes a failed action look applied.
func (c *Client) VerifyAction(ctx context.Context, deviceID, action string, args map[string]any, opts VerifyOptions) *VerifyResult {
	opts = opts.withDefaults()
	result := &VerifyResult{}

	expected, err := Predict(action, args)
	if err != nil {
		result.Err = err
		return result
	}
	if len(expected) == 0 {
		result.Success = true
		return result
	}
	result.Expected = expected

	select {
	case <-ctx.Done():
		result.Err = ctx.Err()
		return result
	case <-time.After(opts.InitialDelay):
	}

	bo := NewReconnectBackoff(opts.RetryDelay, opts.MaxRetryDelay)
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		result.Attempts++
		c.Refresh(ctx)

		d, ok := c.cache.Reported(deviceID)
		if !ok {
			result.Actual, result.Mismatches = nil, []string{"device not reported"}
			return struct{}{}, fmt.Errorf("device %s not reported", deviceID)
		}
		result.Actual = d.Shadow
		result.Mismatches = shadowMismatches(expected, d.Shadow)
		if len(result.Mismatches) > 0 {
			return struct{}{}, errShadowMismatch
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(opts.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			logging.Debug("Action not reflected yet",
				zap.String("device_id", deviceID),
				zap.String("action", action),
				zap.Strings("mismatches", result.Mismatches),
				zap.Duration("retry_in", next),
			)
		}),
	)

	if err != nil {
		result.Err = fmt.Errorf("verification failed after %d attempt(s): %s", result.Attempts, strings.Join(result.Mismatches, "; "))
		return result
	}
	result.Success = true
	return result
}

func (o VerifyOptions) withDefaults() VerifyOptions {
	d := DefaultVerifyOptions()
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = d.MaxAttempts
	}
	if o.InitialDelay < 0 {
		o.InitialDelay = 0
	} else if o.InitialDelay == 0 {
		o.InitialDelay = d.InitialDelay
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = d.RetryDelay
	}
	if o.MaxRetryDelay < o.RetryDelay {
		o.MaxRetryDelay = max(d.MaxRetryDelay, o.RetryDelay)
	}
	return o
}

// shadowMismatches compares the expected keys against actual. Numbers are
// compared as integers since the controller reports JSON floats.
func shadowMismatches(expected, actual Shadow) []string {
	keys := make([]string, 0, len(expected))
	for k := range expected {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []string
	for _, k := range keys {
		want := expected[k]
		got, ok := actual[k]
		if !ok {
			out = append(out, fmt.Sprintf("%s: expected %v, not reported", k, want))
			continue
		}
		if !sameValue(want, got) {
			out = append(out, fmt.Sprintf("%s: expected %v, got %v", k, want, got))
		}
	}
	return out
}

func sameValue(a, b any) bool {
	if ai, ok := toInt(a); ok {
		bi, ok := toInt(b)
		return ok && ai == bi
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}
