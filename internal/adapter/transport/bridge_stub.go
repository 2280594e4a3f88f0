//go:build !hostbridge

package transport

import (
	"log/slog"

	"shiplink/internal/domain"
)

// BridgeCompiled reports whether the host bridge substrate is built in.
const BridgeCompiled = false

// NewBridgeDialer is unavailable without the hostbridge build tag.
func NewBridgeDialer(_ string, _ *slog.Logger) (Dialer, error) {
	return nil, domain.ErrBridgeUnavailable
}
