package console

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"shiplink/internal/adapter/tui/theme"
	"shiplink/internal/adapter/tui/uxerror"
	"shiplink/internal/domain"
)

const defaultCallTimeout = 10 * time.Second

const helpText = `Commands:
  <text>                   send a chat message
  /call METHOD [ARGS...]   call METHOD; ARGS are JSON or plain strings, "-" is absent
  /clear                   clear the log
  /quit                    exit`

// Options configures the console model.
type Options struct {
	Backend     Backend
	Server      string // shown in the status bar
	CallTimeout time.Duration
	Markdown    bool             // render call results with glamour
	Now         func() time.Time // chat timestamps; defaults to time.Now
}

// Model is the root Bubble Tea model of the console.
type Model struct {
	opts Options

	log     logView
	input   textinput.Model
	spinner spinner.Model

	connected bool
	user      *domain.User
	inflight  int
	width     int
	height    int
	quitting  bool
}

// New creates the console model.
func New(opts Options) Model {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = defaultCallTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	in := textinput.New()
	in.Placeholder = "message or /call METHOD ARGS"
	in.Prompt = theme.SymbolArrowR + " "
	in.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(theme.ColorInfo)

	return Model{
		opts:    opts,
		log:     newLogView(opts.Markdown),
		input:   in,
		spinner: s,
	}
}

// Init starts the cursor blink and the connecting spinner.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

// Update handles all incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			line := m.input.Value()
			m.input.Reset()
			return m.submit(line)
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.log, cmd = m.log.update(msg)
			return m, cmd
		}

	case ConnectionMsg:
		m.connected = msg.Up
		if msg.Up {
			m.system(theme.TextSuccess.Render(theme.SymbolSuccess) + " connected")
		} else {
			m.system(theme.TextWarning.Render(theme.SymbolWarning) + " disconnected, reconnecting" + theme.SymbolEllipsis)
		}
		return m, nil

	case UserMsg:
		u := msg.User
		m.user = &u
		m.system(fmt.Sprintf("signed in as %s (%s)", u.Name, u.ID))
		return m, nil

	case ChatMsg:
		for _, item := range msg.Items {
			m.log.add(m.renderChat(item))
		}
		return m, nil

	case HostClosingMsg:
		m.system(theme.TextWarning.Render("host is shutting down"))
		return m, nil

	case CallResultMsg:
		m.inflight--
		m.showResult(msg)
		return m, nil

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	if _, isMouse := msg.(tea.MouseMsg); isMouse {
		m.log, cmd = m.log.update(msg)
	} else {
		m.input, cmd = m.input.Update(msg)
	}
	return m, cmd
}

func (m Model) submit(line string) (tea.Model, tea.Cmd) {
	if strings.TrimSpace(line) == "" {
		return m, nil
	}
	cmd, err := parseLine(line)
	if err != nil {
		m.errorLine(err.Error())
		return m, nil
	}
	switch cmd.kind {
	case "quit":
		m.quitting = true
		return m, tea.Quit
	case "help":
		m.system(helpText)
		return m, nil
	case "clear":
		m.log.clear()
		return m, nil
	case "call":
		m.log.add(theme.Dim.Render(theme.SymbolArrowR + " " + cmd.method + formatParams(cmd.params)))
	}
	m.inflight++
	return m, callCmd(m.opts.Backend, m.opts.CallTimeout, cmd.method, cmd.params)
}

func (m *Model) showResult(msg CallResultMsg) {
	if msg.Err != nil {
		m.errorLine(uxerror.Humanize(msg.Err).Render())
		return
	}
	// chat.send answers with nothing; the echo arrives as a push.
	if msg.Method == "chat.send" {
		return
	}
	body := "(no result)"
	if len(msg.Result) > 0 {
		var pretty bytes.Buffer
		if json.Indent(&pretty, msg.Result, "", "  ") == nil {
			body = m.log.renderJSON(pretty.String())
		} else {
			body = string(msg.Result)
		}
	}
	m.log.add(theme.ResultLabel.Render(msg.Method) + " " + body)
}

func (m *Model) system(text string) {
	m.log.add(theme.SystemLabel.Render(theme.SymbolInfo) + " " + text)
}

func (m *Model) errorLine(text string) {
	m.log.add(theme.ErrorLabel.Render(theme.SymbolError) + " " + text)
}

func (m Model) renderChat(item domain.ChatItem) string {
	ts := ""
	if item.SentAt > 0 {
		ts = theme.Timestamp.Render(item.Time().In(m.opts.Now().Location()).Format("15:04")) + " "
	}
	from := item.From
	if item.Channel != "" {
		from = "#" + item.Channel + " " + from
	}
	return ts + theme.ChatLabel.Render(from) + " " + item.Text
}

func formatParams(params []any) string {
	if len(params) == 0 {
		return "()"
	}
	parts := make([]string, len(params))
	for i, p := range params {
		switch v := p.(type) {
		case nil:
			parts[i] = "-"
		case json.RawMessage:
			parts[i] = string(v)
		default:
			parts[i] = fmt.Sprintf("%q", v)
		}
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func (m *Model) layout() {
	// status bar (1) + input border (3)
	logHeight := theme.Clamp(m.height-4, 1, m.height)
	m.log.setSize(m.width, logHeight)
	m.input.Width = theme.Clamp(m.width-6, 10, m.width)
}

// View renders the console.
func (m Model) View() string {
	if m.quitting {
		return "Bye.\n"
	}
	if m.width == 0 {
		return "  Initializing..."
	}
	input := theme.InputBorder.Width(theme.Clamp(m.width-2, 10, m.width)).Render(m.input.View())
	return lipgloss.JoinVertical(lipgloss.Left, m.statusLine(), m.log.view(), input)
}

func (m Model) statusLine() string {
	var state string
	if m.connected {
		state = theme.TextSuccess.Render(theme.SymbolInfo + " connected")
	} else {
		state = theme.TextWarning.Render(m.spinner.View() + " connecting")
	}
	parts := []string{state}
	if m.user != nil {
		parts = append(parts, theme.StatusKey.Render("user")+" "+m.user.Name)
	}
	if m.opts.Server != "" {
		parts = append(parts, theme.StatusKey.Render("server")+" "+m.opts.Server)
	}
	if m.inflight > 0 {
		parts = append(parts, theme.StatusKey.Render("pending")+fmt.Sprintf(" %d", m.inflight))
	}
	return theme.StatusBar.Width(m.width).Render(strings.Join(parts, "  "))
}

// Connected reports the last known connection state.
func (m Model) Connected() bool { return m.connected }

// Entries returns the raw log lines.
func (m Model) Entries() []string { return m.log.entries }
