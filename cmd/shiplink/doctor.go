package main

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"shiplink/internal/adapter/platform"
	"shiplink/internal/adapter/tokenstore"
	"shiplink/internal/adapter/transport"
	"shiplink/internal/infra/config"
	"shiplink/internal/infra/logger"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

const dialCheckTimeout = 3 * time.Second

func runDoctor() error {
	cfgPath := configPath()
	cfg, cfgErr := config.Load(cfgPath)

	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile(cfgPath, cfgErr)},
		{Name: "Server", Fn: checkServer},
		{Name: "Platform ticket", Fn: checkTicket},
		{Name: "Session store", Fn: checkSessionStore},
		{Name: "Host bridge", Fn: checkBridge},
	}

	fmt.Println("shiplink doctor")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println()

	var pass, warn, fail int
	for _, check := range checks {
		result := check.Fn(cfg)
		result.Name = check.Name

		fmt.Printf("  %s %s: %s\n", statusIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Printf("      Fix: %s\n", result.Fix)
		}
		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}

	fmt.Println()
	fmt.Println(strings.Repeat("-", 50))
	fmt.Printf("Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)
	if fail > 0 {
		return fmt.Errorf("%d check(s) failed", fail)
	}
	return nil
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return "[PASS]"
	case StatusWarn:
		return "[WARN]"
	case StatusFail:
		return "[FAIL]"
	default:
		return "[????]"
	}
}

// checkConfigFile reports on the config file. A missing file is only a
// warning since defaults plus SHIPLINK_* variables are a valid setup.
func checkConfigFile(cfgPath string, cfgErr error) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config error: %v", cfgErr),
				Fix:     "Check " + cfgPath + " syntax and values",
			}
		}
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("no config file at %s, using defaults", cfgPath),
			}
		}
		return CheckResult{Status: StatusPass, Message: fmt.Sprintf("config loaded from %s", cfgPath)}
	}
}

// serverHostPort returns host:port for a ws/wss/http/https URL.
func serverHostPort(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("no host in %q", raw)
	}
	if u.Port() != "" {
		return u.Host, nil
	}
	port := "80"
	if u.Scheme == "wss" || u.Scheme == "https" {
		port = "443"
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}

func checkServer(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
	}
	addr, err := serverHostPort(cfg.Server.URL)
	if err != nil {
		return CheckResult{Status: StatusFail, Message: err.Error(), Fix: "Set server.url"}
	}
	conn, err := net.DialTimeout("tcp", addr, dialCheckTimeout)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cannot reach %s: %v", addr, err),
			Fix:     "Check server.url, or run 'shiplink devserver' for local testing",
		}
	}
	conn.Close()
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("%s is reachable", addr)}
}

func checkTicket(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
	}
	t, err := platform.NewSource(cfg.Platform, logger.Discard()).Ticket(context.Background())
	if err != nil {
		return CheckResult{Status: StatusFail, Message: err.Error()}
	}
	if t.Guest() && !strings.EqualFold(cfg.Platform.Name, platform.GuestPlatform) && cfg.Platform.Name != "" {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("no %s ticket available, will sign in as guest", cfg.Platform.Name),
			Fix:     fmt.Sprintf("Set platform.ticket or %s", cfg.Platform.TicketEnv),
		}
	}
	if t.Guest() {
		return CheckResult{Status: StatusPass, Message: "guest sign-in"}
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("%s ticket configured", t.Platform)}
}

func checkSessionStore(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
	}
	if cfg.Session.Store != "sqlite" {
		return CheckResult{Status: StatusPass, Message: "in-memory (sessions do not survive restarts)"}
	}
	store, err := tokenstore.NewSQLite(cfg.Session.Path)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cannot open %s: %v", cfg.Session.Path, err),
			Fix:     "Check session.path is writable",
		}
	}
	defer store.Close()

	token, err := store.Load(context.Background(), cfg.Server.URL)
	if err != nil {
		return CheckResult{Status: StatusFail, Message: fmt.Sprintf("read session: %v", err)}
	}
	if token == "" {
		return CheckResult{Status: StatusPass, Message: "sqlite ok, no saved session"}
	}
	return CheckResult{Status: StatusPass, Message: "sqlite ok, saved session will be resumed"}
}

func checkBridge(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
	}
	if cfg.Bridge.Addr == "" {
		return CheckResult{Status: StatusPass, Message: "not configured, using websocket"}
	}
	d, err := transport.NewBridgeDialer(cfg.Bridge.Addr, logger.Discard())
	if err != nil {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("unavailable (%v), falling back to websocket", err),
			Fix:     "Build with -tags hostbridge",
		}
	}
	if c, ok := d.(interface{ Close() error }); ok {
		c.Close()
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("%s at %s", d.Name(), cfg.Bridge.Addr)}
}
