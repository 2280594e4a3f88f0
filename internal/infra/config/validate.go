package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// listing every problem found.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateServer(cfg, ve)
	validateReconnect(cfg, ve)
	validateRPC(cfg, ve)
	validatePlatform(cfg, ve)
	validateSession(cfg, ve)
	validateBridge(cfg, ve)
	validateLogger(cfg, ve)
	validateDevServer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateServer(cfg *Config, ve *ValidationError) {
	if cfg.Server.URL == "" {
		ve.Add("server.url is required")
	} else if u, err := url.Parse(cfg.Server.URL); err != nil {
		ve.Add("server.url %q is not a valid URL: %v", cfg.Server.URL, err)
	} else if u.Scheme != "ws" && u.Scheme != "wss" && u.Scheme != "http" && u.Scheme != "https" {
		ve.Add("server.url scheme %q must be ws, wss, http or https", u.Scheme)
	}
	if cfg.Server.Version == "" {
		ve.Add("server.version is required")
	}
	if cfg.Server.HandshakeTimeout < 0 {
		ve.Add("server.handshake_timeout must be >= 0")
	}
}

func validateReconnect(cfg *Config, ve *ValidationError) {
	if cfg.Reconnect.Base <= 0 {
		ve.Add("reconnect.base must be > 0")
	}
	if cfg.Reconnect.Cap < cfg.Reconnect.Base {
		ve.Add("reconnect.cap (%s) must be >= reconnect.base (%s)", cfg.Reconnect.Cap, cfg.Reconnect.Base)
	}
}

func validateRPC(cfg *Config, ve *ValidationError) {
	if cfg.RPC.SendQueue <= 0 {
		ve.Add("rpc.send_queue must be > 0")
	}
	if cfg.RPC.CallTimeout < 0 {
		ve.Add("rpc.call_timeout must be >= 0")
	}
}

func validatePlatform(cfg *Config, ve *ValidationError) {
	if cfg.Platform.Name == "" {
		ve.Add("platform.name is required")
	}
	if IsEncrypted(cfg.Platform.Ticket) {
		ve.Add("platform.ticket is encrypted but SHIPLINK_CONFIG_KEY is not set")
	}
}

var validSessionStores = map[string]bool{
	"memory": true,
	"sqlite": true,
}

func validateSession(cfg *Config, ve *ValidationError) {
	if !validSessionStores[cfg.Session.Store] {
		ve.Add("session.store %q is invalid (valid: memory, sqlite)", cfg.Session.Store)
		return
	}
	if cfg.Session.Store == "sqlite" && cfg.Session.Path == "" {
		ve.Add("session.path is required when session.store is sqlite")
	}
}

func validateBridge(cfg *Config, ve *ValidationError) {
	if cfg.Bridge.Addr == "" {
		return
	}
	if _, _, err := net.SplitHostPort(cfg.Bridge.Addr); err != nil {
		ve.Add("bridge.addr %q is not a valid host:port", cfg.Bridge.Addr)
	}
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLogLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is invalid (valid: debug, info, warn, error)", cfg.Logger.Level)
	}
	if f := cfg.Logger.Format; f != "text" && f != "json" {
		ve.Add("logger.format %q is invalid (valid: text, json)", f)
	}
}

func validateDevServer(cfg *Config, ve *ValidationError) {
	if cfg.DevServer.Addr == "" {
		ve.Add("devserver.addr is required")
		return
	}
	if _, _, err := net.SplitHostPort(cfg.DevServer.Addr); err != nil {
		ve.Add("devserver.addr %q is not a valid host:port", cfg.DevServer.Addr)
	}
	for ticket, name := range cfg.DevServer.Tickets {
		if ticket == "" || name == "" {
			ve.Add("devserver.tickets entries need a ticket and a user name")
		}
	}
	if cfg.DevServer.UpgradesPerMin < 0 {
		ve.Add("devserver.upgrades_per_min must be >= 0")
	}
	if cfg.DevServer.UpgradesPerMin > 0 && cfg.DevServer.UpgradeBurst < 1 {
		ve.Add("devserver.upgrade_burst must be >= 1 when upgrades_per_min is set")
	}
}
