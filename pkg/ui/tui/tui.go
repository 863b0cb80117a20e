package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"igharvest/pkg/models"
	"igharvest/pkg/pacing"
)

// TUI runs the dashboard program. It implements the scraper's Observer and
// its Pacing method can be installed as the policy observer.
type TUI struct {
	program *tea.Program
	model   *Model
}

// NewTUI creates a dashboard listing targets. onQuit, when set, is called if
// the user quits before the run has finished.
func NewTUI(targets []string, onQuit func()) *TUI {
	model := NewModel(targets)
	model.onQuit = onQuit
	program := tea.NewProgram(&model, tea.WithAltScreen())

	return &TUI{
		program: program,
		model:   &model,
	}
}

// Start runs the program until it quits.
func (t *TUI) Start() error {
	_, err := t.program.Run()
	return err
}

// Stop stops the TUI gracefully
func (t *TUI) Stop() {
	t.program.Quit()
}

// Send sends a message to the TUI
func (t *TUI) Send(msg tea.Msg) {
	if t.program != nil {
		t.program.Send(msg)
	}
}

func (t *TUI) AccountStarted(username string, index, total int) {
	t.Send(AccountStartMsg{Username: username, Index: index, Total: total})
}

func (t *TUI) PostScraped(username string, done, total int) {
	t.Send(PostMsg{Username: username, Done: done, Total: total})
}

func (t *TUI) AccountFinished(r models.AccountResult) {
	t.Send(AccountDoneMsg{Result: r})
}

// Pacing forwards a policy event.
func (t *TUI) Pacing(ev pacing.Event) {
	t.Send(PacingMsg{Event: ev})
}

// Finish marks the run complete.
func (t *TUI) Finish(s models.RunSummary) {
	t.Send(RunDoneMsg{Summary: s})
}

// Log sends a log message to the TUI
func (t *TUI) Log(level, format string, args ...interface{}) {
	t.Send(LogMsg{Level: level, Message: fmt.Sprintf(format, args...)})
}

// LogError logs an error message
func (t *TUI) LogError(format string, args ...interface{}) {
	t.Log("ERROR", format, args...)
}
