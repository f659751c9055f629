package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Relay delivery strategies.
const (
	StrategyHTTP = "http"
	StrategyExec = "exec"
)

// Duration wraps time.Duration so YAML can carry values like "15s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the main application configuration, loaded from a YAML file
// with a .env overlay for the secrets-ish values.
type Config struct {
	Settings Settings     `yaml:"settings"`
	Server   ServerConfig `yaml:"server"`
	Data     DataConfig   `yaml:"data"`
	Relay    RelayConfig  `yaml:"relay"`
	Wifi     WifiConfig   `yaml:"wifi"`
}

// Settings holds global application settings.
type Settings struct {
	LogLevel string `yaml:"logLevel"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Listen     string `yaml:"listen"`
	StaticDir  string `yaml:"staticDir"`
	CORSOrigin string `yaml:"corsOrigin"`
	MapAPIKey  string `yaml:"mapApiKey"`
}

// DataConfig holds the flat-file locations.
type DataConfig struct {
	TelemetryFile string `yaml:"telemetryFile"`
	WaypointsFile string `yaml:"waypointsFile"`
	StatusFile    string `yaml:"statusFile"`
}

// RelayConfig selects and parameterizes the onboard relay strategy.
type RelayConfig struct {
	Strategy string   `yaml:"strategy"`
	URL      string   `yaml:"url"`
	Command  string   `yaml:"command"`
	Timeout  Duration `yaml:"timeout"`
}

// WifiConfig points at the reconfiguration script.
type WifiConfig struct {
	Script string `yaml:"script"`
}

// Default returns a configuration suitable for a local bench setup.
func Default() *Config {
	return &Config{
		Settings: Settings{LogLevel: "info"},
		Server: ServerConfig{
			Listen: "127.0.0.1:4000",
		},
		Data: DataConfig{
			TelemetryFile: filepath.Join("data", "live_telem.csv"),
			WaypointsFile: filepath.Join("data", "waypoints.csv"),
			StatusFile:    filepath.Join("data", "connection_status.txt"),
		},
		Relay: RelayConfig{
			Strategy: StrategyHTTP,
			URL:      "http://127.0.0.1:5000/command",
			Timeout:  Duration(15 * time.Second),
		},
		Wifi: WifiConfig{
			Script: filepath.Join("scripts", "changewifi.sh"),
		},
	}
}

// Load reads the YAML file at path (missing file is fine, defaults apply)
// and then overlays MAP_API_KEY, RELAY_URL and CORS_ORIGIN from the
// environment, after attempting to load a .env file alongside the binary.
// Environment values win over the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// run on defaults
		case err != nil:
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		}
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("could not load .env file", "error", err)
	}
	if v := os.Getenv("MAP_API_KEY"); v != "" {
		cfg.Server.MapAPIKey = v
	}
	if v := os.Getenv("RELAY_URL"); v != "" {
		cfg.Relay.URL = v
	}
	if v := os.Getenv("CORS_ORIGIN"); v != "" {
		cfg.Server.CORSOrigin = v
	}

	if cfg.Relay.Timeout <= 0 {
		cfg.Relay.Timeout = Duration(15 * time.Second)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Relay.Strategy {
	case StrategyHTTP:
		if c.Relay.URL == "" {
			return fmt.Errorf("relay strategy %q requires relay.url", c.Relay.Strategy)
		}
	case StrategyExec:
		if c.Relay.Command == "" {
			return fmt.Errorf("relay strategy %q requires relay.command", c.Relay.Strategy)
		}
	default:
		return fmt.Errorf("unknown relay strategy %q", c.Relay.Strategy)
	}
	return nil
}

// LogLevel maps the configured level name to a slog.Level, defaulting
// to info on anything unrecognized.
func (c *Config) LogLevel() slog.Level {
	switch c.Settings.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
