// Package config reads and writes the per-device configuration file that a
// device server consults when it starts up and rewrites when it shuts down.
// Each attached device gets its own file, keyed by its hardware serial, so
// that settings like OSC prefix or physical rotation survive unplugging and
// replugging the same grid.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Rotation is the physical mounting rotation applied to a device's LED/key
// grid before any events are translated to OSC.
type Rotation int

// The four rotations a device driver is expected to support.
const (
	Rotate0   Rotation = 0
	Rotate90  Rotation = 90
	Rotate180 Rotation = 180
	Rotate270 Rotation = 270
)

// IsValid reports whether r is one of the four supported rotations.
func (r Rotation) IsValid() bool {
	switch r {
	case Rotate0, Rotate90, Rotate180, Rotate270:
		return true
	default:
		return false
	}
}

const (
	// DefaultOSCPrefix is prepended to every inbound and outbound OSC path
	// when a device's configuration does not override it.
	DefaultOSCPrefix = "/monome"
	// DefaultAppHost is where outbound grid/encoder/tilt events are sent
	// when a device's configuration does not override it.
	DefaultAppHost = "127.0.0.1"
	// DefaultAppPort is the outbound OSC port used when unconfigured.
	DefaultAppPort uint16 = 8000
)

// ServerConfig controls the device server's own OSC listener.
type ServerConfig struct {
	// Port is the UDP port the device's OSC server binds. Zero means an
	// ephemeral port chosen by the OS.
	Port uint16 `yaml:"port"`
}

// AppConfig controls where outbound device events are delivered.
type AppConfig struct {
	Host      string `yaml:"host"`
	Port      uint16 `yaml:"port"`
	OSCPrefix string `yaml:"osc_prefix"`
}

// DevConfig controls device-specific hardware behavior.
type DevConfig struct {
	Rotation Rotation `yaml:"rotation"`
}

// Config is the full set of recognized per-device options, with the
// defaults from §4.2 applied by Default and by Load on a missing file.
type Config struct {
	Server ServerConfig `yaml:"server"`
	App    AppConfig    `yaml:"app"`
	Dev    DevConfig    `yaml:"dev"`
}

// Default returns the configuration a brand new, never-before-seen device
// gets: ephemeral server port, loopback app host, port 8000, "/monome"
// prefix, no rotation.
func Default() Config {
	return Config{
		App: AppConfig{
			Host:      DefaultAppHost,
			Port:      DefaultAppPort,
			OSCPrefix: DefaultOSCPrefix,
		},
	}
}

// Dir returns the directory device configuration files live in. It honors
// $SERIALOSC_CONFIG_DIR for tests and deployments that want an explicit
// location, falling back to a "serialosc" directory under the user's config
// home.
func Dir() (string, error) {
	if d := os.Getenv("SERIALOSC_CONFIG_DIR"); d != "" {
		return d, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: resolving config home: %w", err)
	}
	return filepath.Join(base, "serialosc"), nil
}

// EnsureDir creates the configuration directory (and any missing parents)
// if it does not already exist. It is called once by the supervisor at
// startup, mirroring the original daemon's sosc_config_create_directory.
func EnsureDir() error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

func pathFor(dir, serial string) string {
	return filepath.Join(dir, serial+".yaml")
}

// Load reads the configuration for the device with the given serial. A
// missing file is not an error: Default() is returned instead, matching the
// spec's "missing config file is non-fatal" rule.
func Load(serial string) (Config, error) {
	dir, err := Dir()
	if err != nil {
		return Default(), err
	}

	data, err := os.ReadFile(pathFor(dir, serial))
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return Default(), fmt.Errorf("config: reading config for %s: %w", serial, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Default(), fmt.Errorf("config: parsing config for %s: %w", serial, err)
	}
	if !cfg.Dev.Rotation.IsValid() {
		cfg.Dev.Rotation = Rotate0
	}
	if cfg.App.OSCPrefix == "" {
		cfg.App.OSCPrefix = DefaultOSCPrefix
	}
	return cfg, nil
}

// Save writes cfg back to the device's configuration file, creating the
// configuration directory if needed. There is at most one writer per
// serial: the device server that owns that device, and only on shutdown.
func Save(serial string, cfg Config) error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("config: creating config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshaling config for %s: %w", serial, err)
	}

	tmp := pathFor(dir, serial) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("config: writing config for %s: %w", serial, err)
	}
	if err := os.Rename(tmp, pathFor(dir, serial)); err != nil {
		return fmt.Errorf("config: finalizing config for %s: %w", serial, err)
	}
	return nil
}
