package logging

import (
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(nil) })
	return logs
}

func TestInitialize_Silent(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "")
	if err := Initialize(""); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if GetLogger().Core().Enabled(zapcore.ErrorLevel) {
		t.Error("logger should be silent with no level configured")
	}
}

func TestInitialize_Levels(t *testing.T) {
	tests := []struct {
		level   string
		enabled zapcore.Level
		muted   zapcore.Level
	}{
		{"debug", zapcore.DebugLevel, zapcore.DebugLevel - 1},
		{"INFO", zapcore.InfoLevel, zapcore.DebugLevel},
		{"warn", zapcore.WarnLevel, zapcore.InfoLevel},
		{"error", zapcore.ErrorLevel, zapcore.WarnLevel},
		{"bogus", zapcore.InfoLevel, zapcore.DebugLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			t.Cleanup(func() { SetLogger(nil) })
			if err := Initialize(tt.level); err != nil {
				t.Fatalf("Initialize(%q) error = %v", tt.level, err)
			}
			core := GetLogger().Core()
			if !core.Enabled(tt.enabled) {
				t.Errorf("level %s should be enabled", tt.enabled)
			}
			if core.Enabled(tt.muted) {
				t.Errorf("level %s should be muted", tt.muted)
			}
		})
	}
}

func TestInitialize_FromEnv(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "warn")
	t.Cleanup(func() { SetLogger(nil) })

	if err := InitializeFromEnv(); err != nil {
		t.Fatalf("InitializeFromEnv() error = %v", err)
	}
	if !GetLogger().Core().Enabled(zapcore.WarnLevel) || GetLogger().Core().Enabled(zapcore.InfoLevel) {
		t.Error("logger should follow " + LogLevelEnvVar)
	}
}

func TestLogHTTPExchange(t *testing.T) {
	logs := observe(t)

	LogHTTPExchange("GET", "/proxy/connect/api/v2/devices", 200, nil)
	LogHTTPExchange("POST", "/api/auth/login", 0, errors.New("connection refused"))

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if got := entries[0].ContextMap()["status"]; got != int64(200) {
		t.Errorf("status = %v, want 200", got)
	}
	if _, ok := entries[1].ContextMap()["status"]; ok {
		t.Error("status should be omitted when there was no response")
	}
}

func TestLogWebSocketMessage_Truncates(t *testing.T) {
	logs := observe(t)

	LogWebSocketMessage("wss://console/api/ws/system", "in", 1, []byte(strings.Repeat("x", maxLoggedPayload+10)))
	LogWebSocketMessage("wss://console/api/ws/system", "in", 2, []byte{0x01})

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	content, _ := entries[0].ContextMap()["content"].(string)
	if len(content) != maxLoggedPayload+3 || !strings.HasSuffix(content, "...") {
		t.Errorf("content length = %d, want truncated to %d plus ellipsis", len(content), maxLoggedPayload)
	}
	if _, ok := entries[1].ContextMap()["content"]; ok {
		t.Error("binary frames should not log content")
	}
	if got := entries[1].ContextMap()["message_type"]; got != "binary" {
		t.Errorf("message_type = %v, want binary", got)
	}
}

func TestLogStateTransition(t *testing.T) {
	logs := observe(t)

	LogStateTransition("watcher", "connecting", "connected")

	entries := logs.FilterMessage("State transition").All()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	ctx := entries[0].ContextMap()
	if ctx["component"] != "watcher" || ctx["from"] != "connecting" || ctx["to"] != "connected" {
		t.Errorf("fields = %v", ctx)
	}
}

func TestWSMessageTypeName(t *testing.T) {
	tests := map[int]string{1: "text", 2: "binary", 8: "close", 9: "ping", 10: "pong", 42: "unknown(42)"}
	for in, want := range tests {
		if got := wsMessageTypeName(in); got != want {
			t.Errorf("wsMessageTypeName(%d) = %q, want %q", in, got, want)
		}
	}
}
