package ui

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
)

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// workDoneMsg is sent to the program when the wrapped work returns.
type workDoneMsg struct{ err error }

// spinnerModel implements tea.Model.
type spinnerModel struct {
	spinner   spinner.Model
	styles    styles
	label     string
	start     time.Time
	cancel    context.CancelFunc
	done      bool
	cancelled bool
}

func newSpinnerModel(theme Theme, label string, cancel context.CancelFunc) spinnerModel {
	st := newStyles(theme)
	sp := spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(st.spinner))
	return spinnerModel{spinner: sp, styles: st, label: label, start: time.Now(), cancel: cancel}
}

func (m spinnerModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m spinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case workDoneMsg:
		m.done = true
		return m, tea.Quit
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.cancelled = true
			m.cancel()
			return m, tea.Quit
		}
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m spinnerModel) View() string {
	if m.done || m.cancelled {
		return ""
	}
	elapsed := time.Since(m.start).Truncate(time.Second)
	return fmt.Sprintf("%s %s %s\n", m.spinner.View(), m.styles.text.Render(m.label),
		m.styles.dim.Render(fmt.Sprintf("%s · ctrl+c to cancel", elapsed)))
}

// Spin runs work while a spinner with label is drawn on out. When out is not
// a terminal, work simply runs. Pressing ctrl+c cancels the context passed
// to work. Spin returns work's error.
func Spin(ctx context.Context, out *os.File, theme Theme, label string, work func(context.Context) error) error {
	if !IsTerminal(out) {
		return work(ctx)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts := []tea.ProgramOption{tea.WithOutput(out), tea.WithContext(ctx)}
	if !IsTerminal(os.Stdin) {
		// Input was piped and already consumed; there are no keys to read.
		opts = append(opts, tea.WithInput(nil))
	}
	p := tea.NewProgram(newSpinnerModel(theme, label, cancel), opts...)

	result := make(chan error, 1)
	go func() {
		err := work(ctx)
		result <- err
		p.Send(workDoneMsg{err: err})
	}()

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		// The spinner is cosmetic; a broken terminal must not lose the result.
		fmt.Fprintf(os.Stderr, "warning: spinner: %v\n", err)
	}
	return <-result
}
