package tui

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"

	"github.com/smileynet/vcfsend/internal/sendsim"
)

// DisplayEvent is an event sent to a Display via the update channel.
// Implemented by ProgressMsg, SendDoneMsg, and SendErrorMsg.
type DisplayEvent interface {
	isDisplayEvent()
}

func (ProgressMsg) isDisplayEvent()  {}
func (SendDoneMsg) isDisplayEvent()  {}
func (SendErrorMsg) isDisplayEvent() {}

// Verify at compile time that message types implement DisplayEvent.
var (
	_ DisplayEvent = ProgressMsg{}
	_ DisplayEvent = SendDoneMsg{}
	_ DisplayEvent = SendErrorMsg{}
)

// Display renders send progress updates.
type Display interface {
	Run(ctx context.Context, events <-chan DisplayEvent) error
}

// DisplayOptions configures display creation.
type DisplayOptions struct {
	Writer     io.Writer          // Output destination (default: os.Stdout).
	ForcePlain bool               // Force plain text even if TTY.
	Total      int                // Contact count shown in the header.
	Message    string             // Message text shown in the header.
	CancelFunc context.CancelFunc // Called by TUI on stop keypress (ignored by PlainDisplay).
}

// NewDisplay returns a TUI display when stdout is a TTY, or a plain text
// display otherwise. ForcePlain overrides TTY detection.
func NewDisplay(opts DisplayOptions) Display {
	if opts.Writer == nil {
		opts.Writer = os.Stdout
	}

	if opts.ForcePlain || !isTTY(opts.Writer) {
		return &PlainDisplay{w: opts.Writer}
	}

	return &TUIDisplay{
		total:      opts.Total,
		message:    opts.Message,
		w:          opts.Writer,
		cancelFunc: opts.CancelFunc,
	}
}

// isTTY reports whether w is connected to a terminal.
func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Bridge manages the channel between a progress producer and a Display consumer.
type Bridge struct {
	ch chan DisplayEvent
}

// NewBridge creates a Bridge with a buffered event channel.
func NewBridge() *Bridge {
	return &Bridge{ch: make(chan DisplayEvent, 16)}
}

// Events returns the read-only channel for Display.Run() to consume.
func (b *Bridge) Events() <-chan DisplayEvent {
	return b.ch
}

// Send delivers a ProgressMsg to the display.
// It blocks if the channel buffer (16) is full.
func (b *Bridge) Send(msg ProgressMsg) {
	b.ch <- msg
}

// Report converts a simulator snapshot and sends it. Its signature
// matches the report callback of sendsim.Simulator.Run.
func (b *Bridge) Report(snap sendsim.Snapshot) {
	b.Send(ProgressMsg{
		Successful: snap.Successful,
		Delayed:    snap.Delayed,
		Cap:        snap.Cap,
		Percent:    snap.Percent,
		Elapsed:    snap.Elapsed,
		Pause:      snap.Pause,
	})
}

// Done signals that the run completed and closes the channel.
func (b *Bridge) Done() {
	b.ch <- SendDoneMsg{}
	close(b.ch)
}

// Error signals an early stop and closes the channel.
func (b *Bridge) Error(err error) {
	b.ch <- SendErrorMsg{Err: err}
	close(b.ch)
}

// PlainDisplay renders progress updates as timestamped text lines.
type PlainDisplay struct {
	w io.Writer
}

// Run loops over events, printing each progress update as a text line.
// Returns the send error if the run stopped early, or context error if cancelled.
func (d *PlainDisplay) Run(ctx context.Context, events <-chan DisplayEvent) error {
	var last ProgressMsg
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch msg := ev.(type) {
			case ProgressMsg:
				last = msg
				d.renderProgress(msg)
			case SendDoneMsg:
				_, _ = fmt.Fprintf(d.w, "Done: %s sent in %s\n",
					sendsim.FormatCount(last.Successful), sendsim.FormatElapsed(last.Elapsed))
				return nil
			case SendErrorMsg:
				_, _ = fmt.Fprintf(d.w, "Stopped at %s of %s\n",
					sendsim.FormatCount(last.Successful), sendsim.FormatCount(last.Cap))
				return msg.Err
			}
		}
	}
}

func (d *PlainDisplay) renderProgress(p ProgressMsg) {
	ts := time.Now().Format("15:04:05")
	pause := ""
	if p.Pause > 0 {
		pause = fmt.Sprintf(" (antiban pause %s)", p.Pause.Round(time.Millisecond))
	}
	_, _ = fmt.Fprintf(d.w, "[%s] [%s] %s/%s sent, %s delayed, %d%%%s\n",
		ts, sendsim.FormatElapsed(p.Elapsed),
		sendsim.FormatCount(p.Successful), sendsim.FormatCount(p.Cap),
		sendsim.FormatCount(p.Delayed), p.Percent, pause)
}

// TUIDisplay renders progress using a Bubble Tea terminal UI.
// Falls back to PlainDisplay if the TUI program fails to start.
type TUIDisplay struct {
	total      int
	message    string
	w          io.Writer
	cancelFunc context.CancelFunc
}

// Run starts the Bubble Tea program and feeds events from the channel.
// If the TUI fails to initialize, it falls back to plain text output.
func (d *TUIDisplay) Run(ctx context.Context, events <-chan DisplayEvent) error {
	opts := []ModelOption{WithMessage(d.message)}
	if d.cancelFunc != nil {
		opts = append(opts, WithCancelFunc(d.cancelFunc))
	}
	model := NewModel(d.total, opts...)
	p := tea.NewProgram(model, tea.WithOutput(d.w), tea.WithContext(ctx))

	// Forward events through an intermediate channel so we can stop
	// the goroutine cleanly on TUI failure before falling back.
	fwd := make(chan DisplayEvent, 16)
	stop := make(chan struct{})

	go func() {
		defer close(fwd)
		for ev := range events {
			select {
			case fwd <- ev:
			case <-stop:
				return
			}
		}
	}()

	go func() {
		for ev := range fwd {
			p.Send(ev)
		}
	}()

	final, err := p.Run()
	if err != nil {
		close(stop)
		// Fall back to plain text for remaining events from the original channel.
		plain := &PlainDisplay{w: d.w}
		return plain.Run(ctx, events)
	}

	if m, ok := final.(Model); ok && m.err != nil {
		return m.err
	}
	return nil
}
