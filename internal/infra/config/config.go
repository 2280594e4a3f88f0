package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level client configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	RPC       RPCConfig       `yaml:"rpc"`
	Platform  PlatformConfig  `yaml:"platform"`
	Session   SessionConfig   `yaml:"session"`
	Bridge    BridgeConfig    `yaml:"bridge"`
	Logger    LoggerConfig    `yaml:"logger"`
	Tracer    TracerConfig    `yaml:"tracer"`
	DevServer DevServerConfig `yaml:"devserver"`
}

// ServerConfig describes the game server endpoint and client identity.
type ServerConfig struct {
	URL     string `yaml:"url"`
	Version string `yaml:"version"` // client version, sent for compatibility gating
	Build   string `yaml:"build"`
	// HandshakeTimeout closes a connection that has not received a welcome
	// in time. 0 disables the check.
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
}

// ReconnectConfig holds the exponential backoff bounds.
type ReconnectConfig struct {
	Base time.Duration `yaml:"base"`
	Cap  time.Duration `yaml:"cap"`
}

// RPCConfig holds call-level settings.
type RPCConfig struct {
	SendQueue int `yaml:"send_queue"` // outbound frames buffered per connection
	// CallTimeout bounds blocking calls made through the facade. 0 = no timeout.
	CallTimeout time.Duration `yaml:"call_timeout"`
	// FailPendingOnDisconnect rejects in-flight calls with ErrConnectionLost
	// when the connection drops.
	FailPendingOnDisconnect bool `yaml:"fail_pending_on_disconnect"`
}

// PlatformConfig selects how fresh auth tickets are obtained.
type PlatformConfig struct {
	Name      string `yaml:"name"`       // "web" (guest) or a platform name such as "steam"
	AppID     string `yaml:"app_id"`     // optional platform application id
	Ticket    string `yaml:"ticket"`     // static ticket; may be "enc:..."
	TicketEnv string `yaml:"ticket_env"` // env var holding a ticket issued by the platform launcher
}

// SessionConfig selects where the resumable session token is persisted.
type SessionConfig struct {
	Store string `yaml:"store"` // "memory" or "sqlite"
	Path  string `yaml:"path"`  // sqlite database path
}

// BridgeConfig enables the host bridge substrate when Addr is set.
type BridgeConfig struct {
	Addr string `yaml:"addr"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// DevServerConfig holds settings for the local development server.
type DevServerConfig struct {
	Addr    string            `yaml:"addr"`
	Tickets map[string]string `yaml:"tickets,omitempty"` // ticket -> user name
	// AllowGuests admits ticket=none connections as guest users.
	AllowGuests bool `yaml:"allow_guests"`
	// UpgradesPerMin caps connection attempts per client IP. 0 = unlimited.
	UpgradesPerMin int `yaml:"upgrades_per_min"`
	UpgradeBurst   int `yaml:"upgrade_burst"`
}

// defaultDataDir returns the persistent data directory under $HOME/.shiplink.
// Falls back to "./data" if $HOME cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".shiplink")
}

// Defaults returns a config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			URL:              "ws://localhost:8090/ws",
			Version:          "1.0.0",
			Build:            "dev",
			HandshakeTimeout: 15 * time.Second,
		},
		Reconnect: ReconnectConfig{
			Base: 500 * time.Millisecond,
			Cap:  30 * time.Second,
		},
		RPC: RPCConfig{
			SendQueue:               64,
			FailPendingOnDisconnect: true,
		},
		Platform: PlatformConfig{
			Name:      "web",
			TicketEnv: "SHIPLINK_PLATFORM_TICKET",
		},
		Session: SessionConfig{
			Store: "sqlite",
			Path:  filepath.Join(defaultDataDir(), "session.db"),
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
		DevServer: DevServerConfig{
			Addr:           ":8090",
			AllowGuests:    true,
			UpgradesPerMin: 120,
			UpgradeBurst:   20,
		},
	}
}

// Load reads the YAML file at path on top of Defaults, applies SHIPLINK_*
// env overrides, decrypts secrets and validates the result. A missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv("SHIPLINK_CONFIG_KEY"); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps SHIPLINK_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SHIPLINK_SERVER_URL"); v != "" {
		cfg.Server.URL = v
	}
	if v := os.Getenv("SHIPLINK_SERVER_VERSION"); v != "" {
		cfg.Server.Version = v
	}
	if v := os.Getenv("SHIPLINK_SERVER_BUILD"); v != "" {
		cfg.Server.Build = v
	}
	if v := os.Getenv("SHIPLINK_HANDSHAKE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			cfg.Server.HandshakeTimeout = d
		}
	}
	if v := os.Getenv("SHIPLINK_RECONNECT_BASE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Reconnect.Base = d
		}
	}
	if v := os.Getenv("SHIPLINK_RECONNECT_CAP"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Reconnect.Cap = d
		}
	}
	if v := os.Getenv("SHIPLINK_RPC_SEND_QUEUE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RPC.SendQueue = n
		}
	}
	if v := os.Getenv("SHIPLINK_RPC_CALL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			cfg.RPC.CallTimeout = d
		}
	}
	if v := os.Getenv("SHIPLINK_RPC_FAIL_PENDING_ON_DISCONNECT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.RPC.FailPendingOnDisconnect = b
		}
	}
	if v := os.Getenv("SHIPLINK_PLATFORM_NAME"); v != "" {
		cfg.Platform.Name = v
	}
	if v := os.Getenv("SHIPLINK_PLATFORM_APP_ID"); v != "" {
		cfg.Platform.AppID = v
	}
	if v := os.Getenv("SHIPLINK_SESSION_STORE"); v != "" {
		cfg.Session.Store = v
	}
	if v := os.Getenv("SHIPLINK_SESSION_PATH"); v != "" {
		cfg.Session.Path = v
	}
	if v := os.Getenv("SHIPLINK_BRIDGE_ADDR"); v != "" {
		cfg.Bridge.Addr = v
	}
	if v := os.Getenv("SHIPLINK_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("SHIPLINK_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("SHIPLINK_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("SHIPLINK_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("SHIPLINK_DEVSERVER_ADDR"); v != "" {
		cfg.DevServer.Addr = v
	}
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Allow 0600 and 0644 (readable by others but not writable)
	if mode&0o077 > 0o044 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
