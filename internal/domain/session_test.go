package domain

import (
	"testing"
	"time"
)

func TestConnStateString(t *testing.T) {
	tests := map[ConnState]string{
		StateDisconnected:      "disconnected",
		StateConnecting:        "connecting",
		StateAwaitingHandshake: "awaiting_handshake",
		StateReady:             "ready",
		ConnState(42):          "unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(s), got, want)
		}
	}
}

func TestChatItemTime(t *testing.T) {
	item := ChatItem{SentAt: 1_700_000_000_123}
	if got := item.Time(); !got.Equal(time.UnixMilli(1_700_000_000_123)) {
		t.Errorf("Time() = %v", got)
	}
}
