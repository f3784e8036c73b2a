package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// parseActionArgs turns key=value pairs into action arguments. Values are
// typed: integers, floats, booleans and JSON objects or arrays are decoded,
// anything else stays a string. Quote a value to force a string.
func parseActionArgs(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	args := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid argument %q (want key=value)", pair)
		}
		value, err := parseValue(raw)
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", key, err)
		}
		args[key] = value
	}
	return args, nil
}

func parseValue(raw string) (any, error) {
	if len(raw) >= 2 && raw[0] == '"' && raw[len(raw)-1] == '"' {
		return raw[1 : len(raw)-1], nil
	}
	if i, err := strconv.Atoi(raw); err == nil {
		return i, nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f, nil
	}
	switch raw {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	if strings.HasPrefix(raw, "{") || strings.HasPrefix(raw, "[") {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
		return v, nil
	}
	return raw, nil
}
