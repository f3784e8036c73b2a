// Package config provides user configuration management for ucd.
//
// This package manages a YAML configuration file that stores the UniFi
// consoles the client talks to, tuning preferences for the client and the
// MQTT bridge settings. The file follows OS-specific conventions for its
// location.
//
// # Configuration File Location
//
//   - Linux: $XDG_CONFIG_HOME/ucd/config.yaml or $HOME/.config/ucd/config.yaml
//   - macOS: $HOME/.config/ucd/config.yaml
//   - Windows: %LOCALAPPDATA%\ucd\config.yaml
//
// # Example
//
//	version: 1
//	default_controller: office
//	controllers:
//	  office:
//	    host: 192.168.1.1
//	    username: admin
//	    site: default
//	    catalog_file: /etc/ucd/catalog-extra.yaml
//	preferences:
//	  log_level: info
//	  settle_ms: 800
//	mqtt:
//	  broker: tcp://127.0.0.1:1883
//	  topic_prefix: ucd
//
// # Security
//
// IMPORTANT: passwords are NEVER stored. The controller password comes from
// UCD_PASSWORD or an interactive prompt; the broker password from
// UCD_MQTT_PASSWORD.
//
// # Thread Safety
//
// The global registry uses sync.Once for safe initialization across goroutines.
// File operations are protected by a mutex to ensure atomic writes.
package config
