package console

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
)

const defaultMaxEntries = 500

// logView is a scrolling log that follows the tail unless the user has
// scrolled up.
type logView struct {
	viewport viewport.Model
	entries  []string
	max      int
	ready    bool
	atBottom bool

	markdown bool
	renderer *glamour.TermRenderer
	width    int
}

func newLogView(markdown bool) logView {
	return logView{max: defaultMaxEntries, atBottom: true, markdown: markdown}
}

func (l *logView) setSize(w, h int) {
	if !l.ready {
		l.viewport = viewport.New(w, h)
		l.viewport.MouseWheelEnabled = true
		l.ready = true
	} else {
		l.viewport.Width = w
		l.viewport.Height = h
	}
	if w != l.width {
		l.width = w
		l.renderer = nil
	}
	l.refresh()
}

func (l *logView) add(entry string) {
	l.entries = append(l.entries, entry)
	if over := len(l.entries) - l.max; over > 0 {
		l.entries = append(l.entries[:0], l.entries[over:]...)
	}
	l.refresh()
}

func (l *logView) clear() {
	l.entries = nil
	l.atBottom = true
	l.refresh()
}

// renderJSON shows a call result as a highlighted code block when markdown
// rendering is enabled.
func (l *logView) renderJSON(body string) string {
	if !l.markdown {
		return body
	}
	if l.renderer == nil {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(l.width),
		)
		if err != nil {
			return body
		}
		l.renderer = r
	}
	out, err := l.renderer.Render("```json\n" + body + "\n```")
	if err != nil {
		return body
	}
	return strings.TrimRight(out, "\n")
}

func (l logView) update(msg tea.Msg) (logView, tea.Cmd) {
	if !l.ready {
		return l, nil
	}
	var cmd tea.Cmd
	l.viewport, cmd = l.viewport.Update(msg)
	l.atBottom = l.viewport.AtBottom()
	return l, cmd
}

func (l logView) view() string {
	if !l.ready {
		return "  Initializing..."
	}
	return l.viewport.View()
}

func (l *logView) refresh() {
	if !l.ready {
		return
	}
	l.viewport.SetContent(strings.Join(l.entries, "\n"))
	if l.atBottom {
		l.viewport.GotoBottom()
	}
}
