package connection

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shiplink/internal/adapter/codec"
	"shiplink/internal/adapter/platform"
	"shiplink/internal/adapter/transport"
	"shiplink/internal/domain"
)

func TestFirstConnectUsesGuestTicket(t *testing.T) {
	h := newHarness(t, defaultTestConfig())

	target := h.dialer.nextTarget(t)
	assert.Equal(t, "ws://game.test/ws", target.URL)
	assert.Equal(t, "1.2.0", target.Query.Get("version"))
	assert.Equal(t, "88", target.Query.Get("build"))
	assert.Equal(t, "none", target.Query.Get("ticket"))
	assert.Equal(t, "web", target.Query.Get("platform"))
	assert.False(t, target.Query.Has("session"))
	assert.False(t, target.Query.Has("appId"))
	assert.Equal(t, domain.StateConnecting, h.ctrl.State())
}

func TestPlatformTicketCarriesAppID(t *testing.T) {
	h := newHarnessWithTickets(t, defaultTestConfig(),
		platform.Static{Value: "steam-ticket", Platform: "steam", AppID: "480"})

	target := h.dialer.nextTarget(t)
	assert.Equal(t, "steam-ticket", target.Query.Get("ticket"))
	assert.Equal(t, "steam", target.Query.Get("platform"))
	assert.Equal(t, "480", target.Query.Get("appId"))
	assert.False(t, target.Query.Has("session"))
}

func TestHandshakeReachesReady(t *testing.T) {
	h := newHarness(t, defaultTestConfig())
	h.dialer.nextTarget(t)
	conn := h.dialer.accept()
	h.waitState(t, domain.StateAwaitingHandshake)

	_, ok := h.session.CurrentUser()
	assert.False(t, ok)

	conn.push(t, &codec.Welcome{
		User:            domain.User{ID: "u1", Name: "Ship"},
		SessionToken:    "tok-1",
		ServerTime:      epoch.Add(5 * time.Second).UnixMilli(),
		OfflineDuration: 60_000,
	})
	h.waitState(t, domain.StateReady)

	u, ok := h.session.CurrentUser()
	require.True(t, ok)
	assert.Equal(t, "Ship", u.Name)
	assert.Equal(t, 5*time.Second, h.session.ClockOffset())
	assert.Equal(t, time.Minute, h.session.OfflineDuration())
	assert.Equal(t, "tok-1", h.session.Token())

	stored, err := h.tokens.Load(context.Background(), "ws://game.test/ws")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", stored)

	ev := h.events.snapshot()
	assert.Equal(t, []bool{true}, ev.states)
	assert.Equal(t, []domain.User{{ID: "u1", Name: "Ship"}}, ev.users)
}

func TestInvokeNotReadyBeforeOpen(t *testing.T) {
	h := newHarness(t, defaultTestConfig())
	h.dialer.nextTarget(t)

	_, err := h.client.Go(context.Background(), "getProfile")
	assert.ErrorIs(t, err, domain.ErrNotReady)
	assert.Equal(t, 0, h.client.Pending())
}

func TestCallRoundTrip(t *testing.T) {
	h := newHarness(t, defaultTestConfig())
	conn := h.ready(t, "tok")

	call, err := h.client.Go(context.Background(), "getProfile")
	require.NoError(t, err)

	req := conn.expectRequest(t)
	assert.Equal(t, "getProfile", req.Method)
	assert.Equal(t, call.ID, req.ID)

	conn.push(t, &codec.Response{ID: req.ID, Result: json.RawMessage(`{"name":"Ship"}`)})
	v, err := call.Wait(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Ship"}`, string(v))
}

func TestInvokeAllowedDuringHandshake(t *testing.T) {
	h := newHarness(t, defaultTestConfig())
	h.dialer.nextTarget(t)
	conn := h.dialer.accept()
	h.waitState(t, domain.StateAwaitingHandshake)

	call, err := h.client.Go(context.Background(), "echo", "hi")
	require.NoError(t, err)
	req := conn.expectRequest(t)
	conn.push(t, &codec.Response{ID: req.ID, Error: &codec.ErrorObject{Code: 401, Message: "not yet"}})

	_, err = call.Wait(context.Background())
	re, ok := domain.AsRPCError(err)
	require.True(t, ok)
	assert.Equal(t, 401, re.Code)
}

func TestOrdinaryCloseKeepsSession(t *testing.T) {
	h := newHarness(t, defaultTestConfig())
	conn := h.ready(t, "tok-1")

	conn.serverClose(transport.CloseGoingAway, "restart")
	h.waitState(t, domain.StateDisconnected)

	_, ok := h.session.CurrentUser()
	assert.False(t, ok)
	assert.Equal(t, "tok-1", h.session.Token())

	h.advanceBackoff(t, time.Second)
	target := h.dialer.nextTarget(t)
	assert.Equal(t, "tok-1", target.Query.Get("session"))
	assert.False(t, target.Query.Has("ticket"))
	assert.False(t, target.Query.Has("platform"))
	assert.Equal(t, "1.2.0", target.Query.Get("version"))

	require.Eventually(t, func() bool {
		return len(h.events.snapshot().states) == 2
	}, waitFor, 5*time.Millisecond)
	assert.Equal(t, []bool{true, false}, h.events.snapshot().states)
}

func TestSessionInvalidCloseDiscardsToken(t *testing.T) {
	h := newHarness(t, defaultTestConfig())
	conn := h.ready(t, "tok-1")

	conn.serverClose(transport.CloseSessionInvalid, "session expired")
	h.waitState(t, domain.StateDisconnected)

	h.advanceBackoff(t, time.Second)
	target := h.dialer.nextTarget(t)
	assert.False(t, target.Query.Has("session"))
	assert.Equal(t, "none", target.Query.Get("ticket"))
	assert.Equal(t, "web", target.Query.Get("platform"))

	stored, err := h.tokens.Load(context.Background(), "ws://game.test/ws")
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestBackoffGrowsUntilReady(t *testing.T) {
	h := newHarness(t, defaultTestConfig())

	h.dialer.nextTarget(t)
	h.dialer.refuse()
	h.advanceBackoff(t, time.Second)

	h.dialer.nextTarget(t)
	h.dialer.refuse()
	// Second delay is 2s: one second is not enough.
	h.advanceBackoff(t, time.Second)
	h.dialer.noDial(t)
	h.clock.Advance(time.Second)

	h.dialer.nextTarget(t)
	conn := h.dialer.accept()
	h.waitState(t, domain.StateAwaitingHandshake)
	conn.welcome(t, domain.User{ID: "u"}, "tok", h.clock.Now())
	h.waitState(t, domain.StateReady)
	assert.Equal(t, 0, h.ctrl.backoffAttempt())

	// After Ready the delay is back to the base.
	conn.serverClose(transport.CloseAbnormal, "")
	h.advanceBackoff(t, time.Second)
	h.dialer.nextTarget(t)
}

func TestFailedDialPublishesDisconnected(t *testing.T) {
	h := newHarness(t, defaultTestConfig())
	h.dialer.nextTarget(t)
	h.dialer.refuse()

	require.Eventually(t, func() bool {
		return len(h.events.snapshot().states) == 1
	}, waitFor, 5*time.Millisecond)
	assert.Equal(t, []bool{false}, h.events.snapshot().states)
}

func TestMalformedFrameKeepsConnection(t *testing.T) {
	h := newHarness(t, defaultTestConfig())
	h.dialer.nextTarget(t)
	conn := h.dialer.accept()
	h.waitState(t, domain.StateAwaitingHandshake)

	conn.in <- []byte{0xff, 0xff, 0xff}
	conn.in <- []byte{}
	conn.welcome(t, domain.User{ID: "u"}, "tok", h.clock.Now())
	h.waitState(t, domain.StateReady)
	h.dialer.noDial(t)
}

func TestWelcomeWhileReadyIgnored(t *testing.T) {
	h := newHarness(t, defaultTestConfig())
	conn := h.ready(t, "tok-1")

	conn.welcome(t, domain.User{ID: "intruder", Name: "Other"}, "tok-2", h.clock.Now().Add(time.Hour))
	// A response after the stray welcome proves it was processed.
	call, err := h.client.Go(context.Background(), "ping")
	require.NoError(t, err)
	req := conn.expectRequest(t)
	conn.push(t, &codec.Response{ID: req.ID})
	_, err = call.Wait(context.Background())
	require.NoError(t, err)

	u, _ := h.session.CurrentUser()
	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, "tok-1", h.session.Token())
	assert.Equal(t, time.Duration(0), h.session.ClockOffset())
	assert.Len(t, h.events.snapshot().users, 1)
}

func TestChatPushIsRouted(t *testing.T) {
	h := newHarness(t, defaultTestConfig())
	conn := h.ready(t, "tok")

	items := []domain.ChatItem{{From: "a", Text: "hi", SentAt: 1}, {From: "b", Text: "yo", SentAt: 2}}
	conn.push(t, &codec.Chat{Items: items})
	conn.push(t, &codec.Chat{})

	require.Eventually(t, func() bool {
		return len(h.events.snapshot().chats) == 2
	}, waitFor, 5*time.Millisecond)
	chats := h.events.snapshot().chats
	assert.Equal(t, items, chats[0])
	assert.Empty(t, chats[1])
}

func TestPendingCallsFailOnDisconnect(t *testing.T) {
	h := newHarness(t, defaultTestConfig())
	conn := h.ready(t, "tok")

	call, err := h.client.Go(context.Background(), "slow")
	require.NoError(t, err)
	conn.expectRequest(t)

	conn.serverClose(transport.CloseAbnormal, "")
	_, err = call.Wait(context.Background())
	assert.ErrorIs(t, err, domain.ErrConnectionLost)
	assert.Equal(t, 0, h.client.Pending())

	_, err = h.client.Go(context.Background(), "again")
	assert.ErrorIs(t, err, domain.ErrNotReady)
}

func TestSessionInvalidCloseFailsPendingWithSessionInvalid(t *testing.T) {
	h := newHarness(t, defaultTestConfig())
	conn := h.ready(t, "tok")

	call, err := h.client.Go(context.Background(), "slow")
	require.NoError(t, err)
	conn.expectRequest(t)

	conn.serverClose(transport.CloseSessionInvalid, "session expired")
	_, err = call.Wait(context.Background())
	assert.ErrorIs(t, err, domain.ErrConnectionLost)
	assert.ErrorIs(t, err, domain.ErrSessionInvalid)
	assert.Equal(t, domain.CodeSessionInvalid, domain.ErrorCodeOf(err))
}

func TestPendingCallsSurviveDisconnectWhenConfigured(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.FailPendingOnDisconnect = false
	h := newHarness(t, cfg)
	conn := h.ready(t, "tok")

	call, err := h.client.Go(context.Background(), "slow")
	require.NoError(t, err)
	conn.expectRequest(t)
	conn.serverClose(transport.CloseAbnormal, "")
	h.waitState(t, domain.StateDisconnected)
	assert.Equal(t, 1, h.client.Pending())

	h.advanceBackoff(t, time.Second)
	h.dialer.nextTarget(t)
	next := h.dialer.accept()
	h.waitState(t, domain.StateAwaitingHandshake)
	next.push(t, &codec.Response{ID: call.ID, Result: json.RawMessage(`"late"`)})

	v, err := call.Wait(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `"late"`, string(v))
}

func TestHandshakeTimeout(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.HandshakeTimeout = 5 * time.Second
	h := newHarness(t, cfg)

	h.dialer.nextTarget(t)
	conn := h.dialer.accept()
	h.waitState(t, domain.StateAwaitingHandshake)

	require.NoError(t, h.clock.WaitAdvance(5*time.Second, waitFor, 1))
	ce := conn.closedByClient(t)
	assert.Equal(t, transport.CloseNormal, ce.Code)
	h.waitState(t, domain.StateDisconnected)

	h.advanceBackoff(t, time.Second)
	h.dialer.nextTarget(t)
}

func TestHostClosingIsForwarded(t *testing.T) {
	h := newHarness(t, defaultTestConfig())
	h.dialer.nextTarget(t)
	hc := &hostConn{fakeConn: newFakeConn(), closing: make(chan struct{})}
	h.dialer.results <- dialResult{conn: hc}
	h.waitState(t, domain.StateAwaitingHandshake)

	close(hc.closing)
	require.Eventually(t, func() bool { return h.events.snapshot().host == 1 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, domain.StateAwaitingHandshake, h.ctrl.State())
}

func TestStopClosesNormally(t *testing.T) {
	h := newHarness(t, defaultTestConfig())
	conn := h.ready(t, "tok")

	h.ctrl.Stop()
	ce := conn.closedByClient(t)
	assert.Equal(t, transport.CloseNormal, ce.Code)
	assert.Equal(t, domain.StateDisconnected, h.ctrl.State())

	select {
	case err := <-h.done:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("Run did not return")
	}
	h.dialer.noDial(t)
}

func TestStopWhileDialing(t *testing.T) {
	h := newHarness(t, defaultTestConfig())
	h.dialer.nextTarget(t)
	h.ctrl.Stop()
	select {
	case err := <-h.done:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("Run did not return")
	}
}

func TestRunTwice(t *testing.T) {
	h := newHarness(t, defaultTestConfig())
	h.dialer.nextTarget(t)
	assert.Error(t, h.ctrl.Run(context.Background()))
}

func TestSendQueueFull(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.SendQueue = 1
	h := newHarness(t, cfg)
	h.dialer.nextTarget(t)
	conn := newFakeConn()
	conn.sent = make(chan []byte) // unbuffered: writer blocks on the first frame
	h.dialer.results <- dialResult{conn: conn}
	h.waitState(t, domain.StateAwaitingHandshake)

	var full error
	for range 4 {
		if _, err := h.client.Go(context.Background(), "spam"); err != nil {
			full = err
			break
		}
	}
	assert.ErrorIs(t, full, domain.ErrSendQueueFull)
}
