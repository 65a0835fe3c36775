package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/exp/teatest"
)

func TestNewModel_Initial(t *testing.T) {
	m := NewModel(1500, WithMessage("hello"))

	if m.total != 1500 {
		t.Errorf("total = %d, want 1500", m.total)
	}
	if m.message != "hello" {
		t.Errorf("message = %q, want %q", m.message, "hello")
	}
	if m.done {
		t.Error("new model should not be done")
	}
	if m.err != nil {
		t.Errorf("new model should have nil err, got %v", m.err)
	}
}

func TestModel_Init_ReturnsTickCmd(t *testing.T) {
	m := NewModel(10)
	if cmd := m.Init(); cmd == nil {
		t.Fatal("Init() should return a non-nil Cmd for the spinner")
	}
}

func TestModel_Update_ProgressMsg(t *testing.T) {
	m := NewModel(1000)
	msg := ProgressMsg{Successful: 300, Cap: 1000, Percent: 30, Elapsed: 18 * time.Second}

	newModel, cmd := m.Update(msg)
	updated := newModel.(Model)

	if updated.last != msg {
		t.Errorf("last = %+v, want %+v", updated.last, msg)
	}
	if cmd != nil {
		t.Error("ProgressMsg should not produce a Cmd")
	}
}

func TestModel_Update_SendDoneMsg(t *testing.T) {
	m := NewModel(10)

	newModel, cmd := m.Update(SendDoneMsg{})
	updated := newModel.(Model)

	if !updated.done {
		t.Error("SendDoneMsg should set done")
	}
	if cmd == nil {
		t.Error("SendDoneMsg should produce quit Cmd")
	}
}

func TestModel_Update_SendErrorMsg(t *testing.T) {
	m := NewModel(10)
	testErr := errors.New("stopped")

	newModel, cmd := m.Update(SendErrorMsg{Err: testErr})
	updated := newModel.(Model)

	if !updated.done {
		t.Error("SendErrorMsg should set done")
	}
	if !errors.Is(updated.err, testErr) {
		t.Errorf("err = %v, want %v", updated.err, testErr)
	}
	if cmd == nil {
		t.Error("SendErrorMsg should produce quit Cmd")
	}
}

func TestModel_View_ShowsCounters(t *testing.T) {
	m := NewModel(14000, WithMessage("Promo"))
	newModel, _ := m.Update(ProgressMsg{Successful: 1200, Cap: 14000, Percent: 42, Elapsed: 75 * time.Second})
	view := newModel.(Model).View()

	for _, want := range []string{"14,000 contacts", "Promo", "1,200", "42%", "01:15", "Delayed: 0"} {
		if !strings.Contains(view, want) {
			t.Errorf("view should contain %q, got:\n%s", want, view)
		}
	}
}

func TestModel_View_AntibanPause(t *testing.T) {
	m := NewModel(100)
	newModel, _ := m.Update(ProgressMsg{Successful: 10, Pause: 340 * time.Millisecond})

	view := newModel.(Model).View()
	if !strings.Contains(view, "antiban pause 340ms") {
		t.Errorf("view should show pause, got:\n%s", view)
	}
}

func TestModel_View_DoneAndError(t *testing.T) {
	m := NewModel(100)
	m.last = ProgressMsg{Successful: 100, Elapsed: 5 * time.Second}
	m.done = true

	if view := m.View(); !strings.Contains(view, "Done: 100 sent in 00:05") {
		t.Errorf("done view missing summary, got:\n%s", view)
	}

	m.err = errors.New("sendsim: stopped before completion")
	if view := m.View(); !strings.Contains(view, "Stopped: sendsim: stopped before completion") {
		t.Errorf("error view missing message, got:\n%s", view)
	}
}

func TestModel_View_TruncatesLongMessage(t *testing.T) {
	m := NewModel(1, WithMessage(strings.Repeat("x", 100)))
	view := m.View()

	if strings.Contains(view, strings.Repeat("x", 41)) {
		t.Errorf("message should be truncated, got:\n%s", view)
	}
	if !strings.Contains(view, "…") {
		t.Errorf("truncated message should end with ellipsis, got:\n%s", view)
	}
}

// --- Stop key tests ---

func TestModel_Update_StopKeys_WithCancel_SetAborting(t *testing.T) {
	keys := []tea.KeyMsg{
		{Type: tea.KeyRunes, Runes: []rune{'q'}},
		{Type: tea.KeyRunes, Runes: []rune{'s'}},
		{Type: tea.KeyCtrlC},
	}
	for _, key := range keys {
		t.Run(key.String(), func(t *testing.T) {
			cancelled := false
			m := NewModel(10, WithCancelFunc(func() { cancelled = true }))

			newModel, cmd := m.Update(key)
			updated := newModel.(Model)

			if !updated.aborting {
				t.Error("first stop key with cancelFunc should set aborting")
			}
			if updated.done {
				t.Error("first stop key with cancelFunc should not set done")
			}
			if !cancelled {
				t.Error("first stop key should call cancelFunc")
			}
			if cmd != nil {
				t.Error("first stop key should not produce quit Cmd")
			}
			if !strings.Contains(updated.View(), "Stopping") {
				t.Errorf("view should show Stopping, got:\n%s", updated.View())
			}
		})
	}
}

func TestModel_Update_KeyMsg_DoublePress_ForcesQuit(t *testing.T) {
	m := NewModel(10, WithCancelFunc(func() {}))
	m.aborting = true

	newModel, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	updated := newModel.(Model)

	if !updated.done {
		t.Error("double-press should set done")
	}
	if cmd == nil {
		t.Error("double-press should produce quit Cmd")
	}
}

func TestModel_Update_KeyMsg_WithoutCancel_ImmediateQuit(t *testing.T) {
	m := NewModel(10)

	newModel, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	updated := newModel.(Model)

	if !updated.done {
		t.Error("q without cancelFunc should set done")
	}
	if cmd == nil {
		t.Error("q without cancelFunc should produce quit Cmd")
	}
}

func TestModel_Update_KeyMsg_WhenDone_Ignored(t *testing.T) {
	m := NewModel(10, WithCancelFunc(func() {}))
	m.done = true

	newModel, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	updated := newModel.(Model)

	if updated.aborting {
		t.Error("pressing q when done should not set aborting")
	}
	if cmd != nil {
		t.Error("pressing q when done should not produce cmd")
	}
}

func TestModel_Update_SendErrorMsg_ClearsAborting(t *testing.T) {
	m := NewModel(10, WithCancelFunc(func() {}))
	m.aborting = true

	newModel, cmd := m.Update(SendErrorMsg{Err: context.Canceled})
	updated := newModel.(Model)

	if !updated.done || updated.aborting {
		t.Errorf("done=%v aborting=%v, want done and not aborting", updated.done, updated.aborting)
	}
	if cmd == nil {
		t.Error("SendErrorMsg should produce quit Cmd")
	}
	if strings.Contains(updated.View(), "Stopping") {
		t.Error("View should not show Stopping when done")
	}
}

func TestModel_Update_WindowSizeMsg(t *testing.T) {
	m := NewModel(10)

	newModel, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	updated := newModel.(Model)

	if updated.width != 120 {
		t.Errorf("width = %d, want 120", updated.width)
	}
	if updated.bar.Width != maxBarWidth {
		t.Errorf("bar width = %d, want %d", updated.bar.Width, maxBarWidth)
	}
}

func TestBarWidth(t *testing.T) {
	tests := []struct {
		term, want int
	}{
		{term: 0, want: 40},
		{term: 20, want: minBarWidth},
		{term: 64, want: 40},
		{term: 200, want: maxBarWidth},
	}
	for _, tt := range tests {
		if got := barWidth(tt.term); got != tt.want {
			t.Errorf("barWidth(%d) = %d, want %d", tt.term, got, tt.want)
		}
	}
}

// TestModel_Teatest_FullRun verifies the model processes a run in sequence via teatest.
func TestModel_Teatest_FullRun(t *testing.T) {
	m := NewModel(300)

	tm := teatest.NewTestModel(t, m, teatest.WithInitialTermSize(80, 24))

	for i := 1; i <= 3; i++ {
		tm.Send(ProgressMsg{Successful: i * 100, Cap: 300, Percent: i * 10, Elapsed: time.Duration(i) * time.Second})
	}
	tm.Send(SendDoneMsg{})

	tm.WaitFinished(t, teatest.WithFinalTimeout(2*time.Second))

	final := tm.FinalModel(t).(Model)
	if !final.done {
		t.Error("final model should be done")
	}
	if final.last.Successful != 300 {
		t.Errorf("final successful = %d, want 300", final.last.Successful)
	}
}
