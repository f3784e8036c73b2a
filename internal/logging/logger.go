package logging

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger *zap.Logger

// LogLevelEnvVar is the environment variable that controls logging verbosity.
// When unset or empty, logging is silent (no zap output).
// Valid values: "debug", "info", "warn", "error"
const LogLevelEnvVar = "UCD_LOG_LEVEL"

// maxLoggedPayload caps how much of a WebSocket frame ends up in a log line.
const maxLoggedPayload = 512

// Initialize creates a new logger with the specified level.
// If level is empty, it checks UCD_LOG_LEVEL environment variable.
// If neither is set, logging is disabled (silent mode).
func Initialize(level string) error {
	if level == "" {
		level = os.Getenv(LogLevelEnvVar)
	}

	if level == "" {
		logger = zap.NewNop()
		return nil
	}

	var zapLevel zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	var err error
	logger, err = config.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	return nil
}

// InitializeFromEnv initializes the logger from the UCD_LOG_LEVEL
// environment variable. CLI commands use this to stay silent by default.
func InitializeFromEnv() error {
	return Initialize("")
}

// SetLogger replaces the global logger. Tests use it with zaptest/observer cores.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger = l
}

// GetLogger returns the global logger instance
func GetLogger() *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger
}

// Info logs an info message
func Info(msg string, fields ...zap.Field) {
	GetLogger().Info(msg, fields...)
}

// Debug logs a debug message
func Debug(msg string, fields ...zap.Field) {
	GetLogger().Debug(msg, fields...)
}

// Warn logs a warning message
func Warn(msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, fields...)
}

// Error logs an error message
func Error(msg string, fields ...zap.Field) {
	GetLogger().Error(msg, fields...)
}

// Fatal logs a fatal message and exits
func Fatal(msg string, fields ...zap.Field) {
	GetLogger().Fatal(msg, fields...)
}

// LogHTTPExchange logs one request/response pair against the controller.
// status is 0 when the request never produced a response.
func LogHTTPExchange(method, path string, status int, err error) {
	fields := []zap.Field{
		zap.String("method", method),
		zap.String("path", path),
	}
	if status != 0 {
		fields = append(fields, zap.Int("status", status))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	Debug("HTTP exchange", fields...)
}

// LogWebSocketMessage logs a WebSocket message
func LogWebSocketMessage(url string, direction string, messageType int, data []byte) {
	fields := []zap.Field{
		zap.String("url", url),
		zap.String("direction", direction),
		zap.String("message_type", wsMessageTypeName(messageType)),
		zap.Int("length", len(data)),
	}

	if messageType == 1 {
		fields = append(fields, zap.String("content", truncate(data)))
	}

	Debug("WebSocket message", fields...)
}

// LogStateTransition logs a state machine change (event watcher, bridge).
func LogStateTransition(component, from, to string) {
	Info("State transition",
		zap.String("component", component),
		zap.String("from", from),
		zap.String("to", to),
	)
}

func wsMessageTypeName(msgType int) string {
	switch msgType {
	case 1:
		return "text"
	case 2:
		return "binary"
	case 8:
		return "close"
	case 9:
		return "ping"
	case 10:
		return "pong"
	default:
		return fmt.Sprintf("unknown(%d)", msgType)
	}
}

func truncate(data []byte) string {
	if len(data) > maxLoggedPayload {
		return string(data[:maxLoggedPayload]) + "..."
	}
	return string(data)
}

// Sync flushes any buffered log entries
func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}
