package transport

import (
	"log/slog"

	"shiplink/internal/infra/logger"
)

// Select picks the substrate once at startup. The host bridge wins when it
// is compiled in and an address is configured; otherwise WebSocket is used.
func Select(bridgeAddr string, log *slog.Logger) Dialer {
	log = logger.OrDiscard(log)
	if bridgeAddr != "" {
		d, err := NewBridgeDialer(bridgeAddr, log)
		if err == nil {
			log.Info("transport selected", "substrate", d.Name(), "addr", bridgeAddr)
			return d
		}
		log.Warn("host bridge requested but unavailable, using websocket", "error", err)
	}
	d := NewWebSocketDialer(log)
	log.Info("transport selected", "substrate", d.Name())
	return d
}
