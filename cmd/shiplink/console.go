package main

import (
	"fmt"

	"shiplink/internal/adapter/tui/console"
	"shiplink/pkg/shiplink"
)

func runConsole() error {
	a, err := bootstrap("console", true)
	if err != nil {
		return err
	}
	defer a.close()

	client, err := shiplink.New(a.cfg, shiplink.WithLogger(a.log))
	if err != nil {
		return fmt.Errorf("client: %w", err)
	}
	defer func() {
		if err := client.Stop(); err != nil {
			a.log.Error("client stop", "error", err)
		}
	}()

	a.log.Info("console starting", "server", a.cfg.Server.URL, "substrate", client.Substrate())
	opts := console.Options{
		Backend:     client,
		Server:      a.cfg.Server.URL,
		CallTimeout: a.cfg.RPC.CallTimeout,
		Markdown:    true,
	}
	return console.Run(a.ctx, opts, func() error { return client.Start(a.ctx) })
}
