package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"shiplink/internal/adapter/tui/console"
	"shiplink/internal/domain"
	"shiplink/pkg/shiplink"
)

const (
	minConnectWait     = 10 * time.Second
	defaultCallTimeout = 30 * time.Second
)

func runCall(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("%w: shiplink call METHOD [ARGS...]", errUsage)
	}

	a, err := bootstrap("call", false)
	if err != nil {
		return err
	}
	defer a.close()

	client, err := shiplink.New(a.cfg, shiplink.WithLogger(a.log))
	if err != nil {
		return fmt.Errorf("client: %w", err)
	}
	defer client.Stop()

	up := make(chan struct{}, 1)
	client.OnConnection(func(connected bool) {
		if connected {
			select {
			case up <- struct{}{}:
			default:
			}
		}
	})
	if err := client.Start(a.ctx); err != nil {
		return err
	}

	wait := max(a.cfg.Server.HandshakeTimeout, minConnectWait)
	select {
	case <-up:
	case <-time.After(wait):
		return domain.NewDomainError("call", domain.ErrNotReady, fmt.Sprintf("not connected after %s", wait))
	case <-a.ctx.Done():
		return a.ctx.Err()
	}

	timeout := a.cfg.RPC.CallTimeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	ctx, cancel := context.WithTimeout(a.ctx, timeout)
	defer cancel()

	res, err := client.Call(ctx, args[0], console.ParseArgs(args[1:])...)
	if err != nil {
		return err
	}
	return printResult(os.Stdout, res)
}

// printResult writes the result as indented JSON, or null for calls that
// return nothing.
func printResult(w io.Writer, res json.RawMessage) error {
	if len(res) == 0 {
		_, err := fmt.Fprintln(w, "null")
		return err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, res, "", "  "); err != nil {
		buf.Reset()
		buf.Write(res)
	}
	buf.WriteByte('\n')
	_, err := w.Write(buf.Bytes())
	return err
}
