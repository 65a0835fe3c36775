package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/smileynet/vcfsend/internal/sendsim"
)

// ProgressMsg carries one simulated send snapshot to the display.
// It mirrors sendsim.Snapshot so producers convert field by field.
type ProgressMsg struct {
	Successful int
	Delayed    int
	Cap        int
	Percent    int
	Elapsed    time.Duration
	Pause      time.Duration
}

// SendDoneMsg signals that the run reached its cap.
type SendDoneMsg struct{}

// SendErrorMsg signals that the run stopped early or failed.
type SendErrorMsg struct {
	Err error
}

// Model is the Bubble Tea model for the send progress display.
type Model struct {
	total      int
	message    string
	last       ProgressMsg
	bar        progress.Model
	spinner    spinner.Model
	width      int
	done       bool
	aborting   bool
	err        error
	cancelFunc context.CancelFunc
}

// ModelOption configures a Model.
type ModelOption func(*Model)

// WithCancelFunc sets the function called when the user stops the run.
func WithCancelFunc(fn context.CancelFunc) ModelOption {
	return func(m *Model) {
		m.cancelFunc = fn
	}
}

// WithMessage sets the message text shown in the header.
func WithMessage(msg string) ModelOption {
	return func(m *Model) {
		m.message = msg
	}
}

// NewModel creates a Model for a run over total contacts.
func NewModel(total int, opts ...ModelOption) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot

	bar := progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage())
	bar.Width = barWidth(0)

	m := Model{
		total:   total,
		bar:     bar,
		spinner: s,
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// Init starts the spinner tick.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case ProgressMsg:
		m.last = msg
		return m, nil

	case SendDoneMsg:
		m.done = true
		m.aborting = false
		return m, tea.Quit

	case SendErrorMsg:
		m.done = true
		m.aborting = false
		m.err = msg.Err
		return m, tea.Quit

	case tea.KeyMsg:
		if m.done {
			return m, nil
		}
		switch msg.String() {
		case "q", "s", "ctrl+c":
			// A second press while stopping, or no way to stop, quits at once.
			if m.aborting || m.cancelFunc == nil {
				m.done = true
				return m, tea.Quit
			}
			m.aborting = true
			m.cancelFunc()
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = barWidth(msg.Width)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the header, progress bar, and counters.
func (m Model) View() string {
	var b strings.Builder

	header := fmt.Sprintf("Sending to %s contacts", sendsim.FormatCount(m.total))
	if m.message != "" {
		header += fmt.Sprintf(" %s", dimStyle.Render(fmt.Sprintf("%q", truncate(m.message, 40))))
	}
	b.WriteString("  " + titleStyle.Render(header) + "\n\n")

	indicator := m.spinner.View()
	if m.done {
		indicator = okStyle.Render("✓")
		if m.err != nil {
			indicator = errStyle.Render("✗")
		}
	}
	fmt.Fprintf(&b, "  %s %s %3d%%  %s\n", indicator, m.bar.ViewAs(float64(m.last.Percent)/100), m.last.Percent, sendsim.FormatElapsed(m.last.Elapsed))

	fmt.Fprintf(&b, "  Successful: %s   Delayed: %s\n",
		sendsim.FormatCount(m.last.Successful), sendsim.FormatCount(m.last.Delayed))

	switch {
	case m.done && m.err != nil:
		b.WriteString("\n  " + errStyle.Render(fmt.Sprintf("Stopped: %s", m.err)) + "\n")
	case m.done:
		b.WriteString("\n  " + okStyle.Render(fmt.Sprintf("Done: %s sent in %s",
			sendsim.FormatCount(m.last.Successful), sendsim.FormatElapsed(m.last.Elapsed))) + "\n")
	case m.aborting:
		b.WriteString("\n  " + warnStyle.Render("Stopping... (press q again to force quit)") + "\n")
	case m.last.Pause > 0:
		b.WriteString("\n  " + dimStyle.Render(fmt.Sprintf("antiban pause %s", m.last.Pause.Round(time.Millisecond))) + "\n")
	default:
		b.WriteString("\n  " + dimStyle.Render("q/s: stop") + "\n")
	}

	return b.String()
}

// truncate shortens s to n runes with a trailing ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
