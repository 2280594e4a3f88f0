package main

import (
	"shiplink/internal/adapter/devserver"
)

func runDevServer() error {
	a, err := bootstrap("devserver", false)
	if err != nil {
		return err
	}
	defer a.close()

	cfg := a.cfg.DevServer
	auth := devserver.NewTicketAuth(cfg.Tickets, cfg.AllowGuests)
	srv := devserver.NewServer(auth, cfg.Addr, a.log)
	srv.LimitUpgrades(cfg.UpgradesPerMin, cfg.UpgradeBurst)

	a.log.Info("devserver starting", "addr", cfg.Addr, "tickets", len(cfg.Tickets), "guests", cfg.AllowGuests)
	return srv.Start(a.ctx)
}
