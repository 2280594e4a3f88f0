package platform

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shiplink/internal/infra/config"
)

func TestSourceTicket(t *testing.T) {
	env := map[string]string{"STEAM_TICKET": " abc123 "}
	tests := []struct {
		name string
		cfg  config.PlatformConfig
		want Ticket
	}{
		{"web is guest", config.PlatformConfig{Name: "web", Ticket: "ignored"}, Ticket{Value: NoTicket, Platform: GuestPlatform}},
		{"empty is guest", config.PlatformConfig{}, Ticket{Value: NoTicket, Platform: GuestPlatform}},
		{"static ticket", config.PlatformConfig{Name: "Steam", AppID: "480", Ticket: "cfg-ticket"}, Ticket{Value: "cfg-ticket", Platform: "steam", AppID: "480"}},
		{"env ticket", config.PlatformConfig{Name: "steam", TicketEnv: "STEAM_TICKET"}, Ticket{Value: "abc123", Platform: "steam"}},
		{"missing env falls back", config.PlatformConfig{Name: "steam", TicketEnv: "UNSET"}, Ticket{Value: NoTicket, Platform: GuestPlatform}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSource(tt.cfg, nil)
			s.getenv = func(k string) string { return env[k] }
			got, err := s.Ticket(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGuestAndStatic(t *testing.T) {
	tk, err := Static{Value: "x", Platform: "steam"}.Ticket(context.Background())
	require.NoError(t, err)
	assert.False(t, tk.Guest())
	assert.True(t, Ticket{Value: NoTicket}.Guest())
}
