package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"shiplink/internal/domain"
	"shiplink/internal/infra/config"
	"shiplink/internal/infra/logger"
	"shiplink/internal/infra/tracer"
)

// errUsage marks bad command-line input.
var errUsage = errors.New("usage")

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		}
	}

	cmd, args := splitCommand(os.Args[1:])

	var err error
	switch cmd {
	case "console":
		err = runConsole()
	case "call":
		err = runCall(args)
	case "devserver":
		err = runDevServer()
	case "encrypt":
		err = runEncrypt(args)
	case "doctor":
		err = runDoctor()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'shiplink --help' for usage information.\n", cmd)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
		os.Exit(exitCode(err))
	}
}

func showUsage() {
	fmt.Println(`shiplink - game server client

USAGE:
    shiplink [COMMAND] [FLAGS]

COMMANDS:
    console                  Interactive console (default)
    call METHOD [ARGS...]    Connect, call METHOD once and print the result.
                             ARGS are JSON values or plain strings; "-" is absent.
    devserver                Run a local development server
    encrypt VALUE            Encrypt a secret for the config file
                             (needs SHIPLINK_CONFIG_KEY)
    doctor                   Check config, server and session store

FLAGS:
    -h, --help         Show this help message
    --config PATH      Config file path (default: ./shiplink.yaml)

CONFIGURATION:
    Config file: ./shiplink.yaml (optional)
    Environment: SHIPLINK_* variables override config

EXIT CODES:
    0 ok, 1 error, 2 usage or config, 3 server rejected the call,
    4 not connected or connection lost

EXAMPLES:
    shiplink devserver
    shiplink call getProfile
    shiplink call rename "Captain Ahab"
    SHIPLINK_SERVER_URL=wss://game.example.com/ws shiplink`)
}

// configPath returns --config, then SHIPLINK_CONFIG, then ./shiplink.yaml.
func configPath() string {
	for i, arg := range os.Args {
		if arg == "--config" && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	if p := os.Getenv("SHIPLINK_CONFIG"); p != "" {
		return p
	}
	return "shiplink.yaml"
}

// positionalArgs drops the --config flag and its value.
func positionalArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--config":
			i++
		case strings.HasPrefix(args[i], "--config="):
		default:
			out = append(out, args[i])
		}
	}
	return out
}

// splitCommand returns the subcommand (console when none is given) and the
// remaining positional arguments. --config may appear anywhere.
func splitCommand(args []string) (string, []string) {
	pos := positionalArgs(args)
	if len(pos) == 0 || strings.HasPrefix(pos[0], "-") {
		return "console", pos
	}
	return pos[0], pos[1:]
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	if errors.Is(err, errUsage) {
		return 2
	}
	switch domain.ErrorCodeOf(err) {
	case domain.CodeConfigLoad, domain.CodeDecryption:
		return 2
	case domain.CodeRPCFailed, domain.CodeMethodNotFound:
		return 3
	case domain.CodeNotReady, domain.CodeSendQueueFull, domain.CodeConnectionLost,
		domain.CodeHandshakeTimeout, domain.CodeSessionInvalid:
		return 4
	default:
		return 1
	}
}

// app holds what every command needs: config, logger, tracing and a
// signal-aware context.
type app struct {
	cfg *config.Config
	log *slog.Logger
	ctx context.Context

	cleanups []func()
}

func (a *app) close() {
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		a.cleanups[i]()
	}
}

// bootstrap loads config and sets up logging and tracing for role. A
// terminal UI owns the screen, so quiet redirects stderr/stdout logs to a
// file next to the session store.
func bootstrap(role string, quiet bool) (*app, error) {
	// 1. Config
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrConfigLoad, err)
	}

	// 2. Logger & Tracer
	if quiet {
		switch cfg.Logger.Output {
		case "", "stderr", "stdout":
			cfg.Logger.Output = filepath.Join(filepath.Dir(cfg.Session.Path), role+".log")
		}
	}
	log, logCloser, err := logger.New(cfg.Logger, role)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	a := &app{cfg: cfg, log: log}
	a.cleanups = append(a.cleanups, func() { _ = logCloser() })

	tracerShutdown, err := tracer.Setup(context.Background(), cfg.Tracer)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("tracer: %w", err)
	}
	a.cleanups = append(a.cleanups, func() { _ = tracerShutdown(context.Background()) })

	// 3. Graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	a.ctx = ctx
	a.cleanups = append(a.cleanups, cancel)
	return a, nil
}
