package console

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
)

// Run shows the console until the user quits or ctx is cancelled. start is
// called once the backend's pushes are wired to the program, so no early
// connection event is missed.
func Run(ctx context.Context, opts Options, start func() error) error {
	p := tea.NewProgram(New(opts), tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	detach := Attach(opts.Backend, p.Send)
	defer detach()

	if start != nil {
		if err := start(); err != nil {
			return err
		}
	}

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
