package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	appName    = "ucd"
	configFile = "config.yaml"

	// PasswordEnvVar supplies the controller password non-interactively.
	PasswordEnvVar = "UCD_PASSWORD"

	// MQTTPasswordEnvVar supplies the broker password for the bridge.
	MQTTPasswordEnvVar = "UCD_MQTT_PASSWORD"
)

var (
	// Global registry instance (loaded lazily)
	globalRegistry     *Registry
	globalRegistryOnce sync.Once
	globalRegistryErr  error

	// Mutex for thread-safe file operations
	fileMutex sync.Mutex
)

// GetConfigDir returns the OS-appropriate configuration directory for the application.
// This follows platform conventions:
//   - Linux: $XDG_CONFIG_HOME/ucd or $HOME/.config/ucd
//   - macOS: $HOME/.config/ucd
//   - Windows: %LOCALAPPDATA%\ucd
func GetConfigDir() (string, error) {
	switch runtime.GOOS {
	case "windows":
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			return filepath.Join(localAppData, appName), nil
		}
		userProfile := os.Getenv("USERPROFILE")
		if userProfile == "" {
			return "", fmt.Errorf("cannot determine user profile directory (LOCALAPPDATA and USERPROFILE not set)")
		}
		return filepath.Join(userProfile, "AppData", "Local", appName), nil

	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		return filepath.Join(homeDir, ".config", appName), nil

	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, appName), nil
		}
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		return filepath.Join(homeDir, ".config", appName), nil
	}
}

// GetConfigPath returns the full path to the configuration file.
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, configFile), nil
}

// LoadRegistry loads the configuration registry from disk.
// If the file doesn't exist, returns a new default registry.
// Thread-safe - multiple calls will return the same instance.
func LoadRegistry() (*Registry, error) {
	globalRegistryOnce.Do(func() {
		path, err := GetConfigPath()
		if err != nil {
			globalRegistryErr = fmt.Errorf("failed to get config path: %w", err)
			return
		}
		globalRegistry, globalRegistryErr = LoadFrom(path)
	})
	return globalRegistry, globalRegistryErr
}

// LoadFrom reads a registry from path. A missing file yields a new default
// registry.
func LoadFrom(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewRegistry(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a registry document.
func Parse(data []byte) (*Registry, error) {
	var registry Registry
	if err := yaml.Unmarshal(data, &registry); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if registry.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported config version: %d (expected %d)", registry.Version, CurrentVersion)
	}

	if registry.Controllers == nil {
		registry.Controllers = make(map[string]*Controller)
	}
	for name, c := range registry.Controllers {
		if c == nil || c.Host == "" {
			return nil, fmt.Errorf("controller %q has no host", name)
		}
	}
	if registry.DefaultController != "" {
		if _, ok := registry.Controllers[registry.DefaultController]; !ok {
			return nil, fmt.Errorf("default_controller %q is not configured", registry.DefaultController)
		}
	}
	if registry.Preferences == nil {
		registry.Preferences = NewRegistry().Preferences
	}

	return &registry, nil
}

// Save saves the registry to the default config path.
func (r *Registry) Save() error {
	configPath, err := GetConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	return r.SaveTo(configPath)
}

// SaveTo writes the registry to path.
// Performs an atomic write to prevent corruption on crash.
func (r *Registry) SaveTo(configPath string) error {
	fileMutex.Lock()
	defer fileMutex.Unlock()

	// User-only permissions: the file names hosts and usernames
	if err := os.MkdirAll(filepath.Dir(configPath), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# ucd configuration file
# Controllers, preferences and MQTT bridge settings.
#
# Security Note: controller and broker passwords are NEVER stored in this
# file. Set ` + PasswordEnvVar + ` / ` + MQTTPasswordEnvVar + ` or answer the prompt.

`)
	data = append(header, data...)

	tmpPath := configPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary config file: %w", err)
	}

	if err := os.Rename(tmpPath, configPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to save config file: %w", err)
	}

	return nil
}

// ReloadRegistry reloads the registry from disk, discarding any in-memory changes.
func ReloadRegistry() (*Registry, error) {
	fileMutex.Lock()
	globalRegistryOnce = sync.Once{}
	fileMutex.Unlock()
	return LoadRegistry()
}

// SaveGlobal saves the global registry instance to disk.
func SaveGlobal() error {
	registry, err := LoadRegistry()
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}
	return registry.Save()
}
