package console

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shiplink/internal/domain"
)

type call struct {
	method string
	params []any
}

type fakeBackend struct {
	mu     sync.Mutex
	calls  []call
	result json.RawMessage
	err    error

	onConn []func(bool)
	onUser []func(domain.User)
	onChat []func([]domain.ChatItem)
	onHost []func()
	unsubs int
}

func (f *fakeBackend) Call(_ context.Context, method string, params ...any) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{method, params})
	return f.result, f.err
}

func (f *fakeBackend) unsub() func() { return func() { f.unsubs++ } }

func (f *fakeBackend) OnConnection(fn func(bool)) func() {
	f.onConn = append(f.onConn, fn)
	return f.unsub()
}

func (f *fakeBackend) OnUser(fn func(domain.User)) func() {
	f.onUser = append(f.onUser, fn)
	return f.unsub()
}

func (f *fakeBackend) OnChat(fn func([]domain.ChatItem)) func() {
	f.onChat = append(f.onChat, fn)
	return f.unsub()
}

func (f *fakeBackend) OnHostClosing(fn func()) func() {
	f.onHost = append(f.onHost, fn)
	return f.unsub()
}

func sized(t *testing.T, b Backend) Model {
	t.Helper()
	m := New(Options{Backend: b, Server: "ws://localhost/ws"})
	out, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return out.(Model)
}

func typeLine(t *testing.T, m Model, line string) (Model, tea.Cmd) {
	t.Helper()
	m.input.SetValue(line)
	out, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return out.(Model), cmd
}

func lastEntry(m Model) string {
	e := m.Entries()
	if len(e) == 0 {
		return ""
	}
	return e[len(e)-1]
}

func TestParseLine(t *testing.T) {
	cmd, err := parseLine("  hello there ")
	require.NoError(t, err)
	assert.Equal(t, "chat.send", cmd.method)
	assert.Equal(t, []any{"hello there"}, cmd.params)

	cmd, err = parseLine(`/call rename Bad`)
	require.NoError(t, err)
	assert.Equal(t, "call", cmd.kind)
	assert.Equal(t, "rename", cmd.method)
	assert.Equal(t, []any{"Bad"}, cmd.params)

	_, err = parseLine("/call")
	assert.Error(t, err)
	_, err = parseLine("/nope")
	assert.Error(t, err)

	cmd, err = parseLine("/quit")
	require.NoError(t, err)
	assert.Equal(t, "quit", cmd.kind)
}

func TestParseArgs(t *testing.T) {
	got := ParseArgs([]string{"42", "-", `{"a":1}`, "plain", `"quoted"`})
	require.Len(t, got, 5)
	assert.Equal(t, json.RawMessage("42"), got[0])
	assert.Nil(t, got[1])
	assert.Equal(t, json.RawMessage(`{"a":1}`), got[2])
	assert.Equal(t, "plain", got[3])
	assert.Equal(t, json.RawMessage(`"quoted"`), got[4])
}

func TestSubmitChatSendsCall(t *testing.T) {
	b := &fakeBackend{}
	m := sized(t, b)

	m, cmd := typeLine(t, m, "ahoy")
	require.NotNil(t, cmd)
	assert.Empty(t, m.input.Value())

	msg := cmd()
	res, ok := msg.(CallResultMsg)
	require.True(t, ok)
	assert.Equal(t, "chat.send", res.Method)
	require.Len(t, b.calls, 1)
	assert.Equal(t, []any{"ahoy"}, b.calls[0].params)

	before := len(m.Entries())
	out, _ := m.Update(res)
	assert.Len(t, out.(Model).Entries(), before, "chat.send success adds nothing; the push does")
}

func TestCallResultRendered(t *testing.T) {
	b := &fakeBackend{result: json.RawMessage(`{"name":"Ship"}`)}
	m := sized(t, b)

	m, cmd := typeLine(t, m, "/call getProfile")
	assert.Contains(t, lastEntry(m), "getProfile()")
	out, _ := m.Update(cmd())
	m = out.(Model)
	assert.Contains(t, lastEntry(m), `"name": "Ship"`)
}

func TestCallErrorHumanized(t *testing.T) {
	b := &fakeBackend{err: &domain.RPCError{Code: 400, Message: "invalid name"}}
	m := sized(t, b)

	m, cmd := typeLine(t, m, "/call rename Bad")
	out, _ := m.Update(cmd())
	m = out.(Model)
	assert.Contains(t, lastEntry(m), "invalid name (code 400)")

	b.err = domain.ErrNotReady
	m, cmd = typeLine(t, m, "/call getProfile")
	out, _ = m.Update(cmd())
	assert.Contains(t, lastEntry(out.(Model)), "Not Connected")
}

func TestPushesUpdateStatus(t *testing.T) {
	m := sized(t, &fakeBackend{})
	assert.Contains(t, m.View(), "connecting")

	out, _ := m.Update(ConnectionMsg{Up: true})
	out, _ = out.(Model).Update(UserMsg{User: domain.User{ID: "u1", Name: "Ship"}})
	m = out.(Model)
	assert.True(t, m.Connected())
	view := m.View()
	assert.Contains(t, view, "connected")
	assert.Contains(t, view, "Ship")

	out, _ = m.Update(ChatMsg{Items: []domain.ChatItem{{ID: "m1", From: "Ship", Text: "hi all", SentAt: time.Now().UnixMilli()}}})
	m = out.(Model)
	assert.Contains(t, lastEntry(m), "hi all")

	out, _ = m.Update(ConnectionMsg{Up: false})
	assert.False(t, out.(Model).Connected())
}

func TestHelpClearQuit(t *testing.T) {
	m := sized(t, &fakeBackend{})

	m, _ = typeLine(t, m, "/help")
	assert.Contains(t, lastEntry(m), "/call METHOD")

	m, _ = typeLine(t, m, "/clear")
	assert.Empty(t, m.Entries())

	m, _ = typeLine(t, m, "/bogus")
	assert.Contains(t, lastEntry(m), "unknown command")

	m, cmd := typeLine(t, m, "/quit")
	require.NotNil(t, cmd)
	assert.Equal(t, "Bye.\n", m.View())
}

func TestLogIsBounded(t *testing.T) {
	m := sized(t, &fakeBackend{})
	for i := 0; i < defaultMaxEntries+20; i++ {
		out, _ := m.Update(ChatMsg{Items: []domain.ChatItem{{From: "a", Text: strings.Repeat("x", 3)}}})
		m = out.(Model)
	}
	assert.Len(t, m.Entries(), defaultMaxEntries)
}

func TestAttach(t *testing.T) {
	b := &fakeBackend{}
	var got []tea.Msg
	detach := Attach(b, func(msg tea.Msg) { got = append(got, msg) })

	b.onConn[0](true)
	b.onUser[0](domain.User{Name: "Ship"})
	b.onChat[0](nil)
	b.onHost[0]()
	assert.Equal(t, []tea.Msg{ConnectionMsg{Up: true}, UserMsg{User: domain.User{Name: "Ship"}}, ChatMsg{}, HostClosingMsg{}}, got)

	detach()
	assert.Equal(t, 4, b.unsubs)
}

func TestCallCmdTimeout(t *testing.T) {
	b := &blockingBackend{}
	msg := callCmd(b, 10*time.Millisecond, "slow", nil)()
	res := msg.(CallResultMsg)
	assert.True(t, errors.Is(res.Err, context.DeadlineExceeded))
}

type blockingBackend struct{ fakeBackend }

func (b *blockingBackend) Call(ctx context.Context, _ string, _ ...any) (json.RawMessage, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
