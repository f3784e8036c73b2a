// Package ui renders the one-shot terminal output of the ucd commands:
// command headers, success and failure boxes, device tables and the
// confirmation prompt for disruptive actions.
//
// Logging is controlled separately through UCD_LOG_LEVEL. When it is unset
// zap is silent and only this package's output reaches the terminal.
package ui
