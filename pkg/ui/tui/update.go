package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"igharvest/pkg/models"
	"igharvest/pkg/pacing"
)

// Message types for the TUI

// AccountStartMsg is sent when the scraper moves to a new account.
type AccountStartMsg struct {
	Username string
	Index    int
	Total    int
}

// PostMsg is sent after every collected post.
type PostMsg struct {
	Username string
	Done     int
	Total    int
}

// AccountDoneMsg carries the final result of an account.
type AccountDoneMsg struct {
	Result models.AccountResult
}

// PacingMsg wraps a policy event.
type PacingMsg struct {
	Event pacing.Event
}

// RunDoneMsg is sent once the whole run has finished.
type RunDoneMsg struct {
	Summary models.RunSummary
}

// LogMsg is sent to add a log message
type LogMsg struct {
	Level   string
	Message string
}

// TickMsg is sent periodically to update the UI
type TickMsg time.Time

// Update handles all messages and updates the model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.waitBar.Width = barWidth(msg.Width)
		m.postsBar.Width = barWidth(msg.Width)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case TickMsg:
		return m, tickCmd()

	case AccountStartMsg:
		m.StartAccount(msg.Username)
		m.AddLogMessage("INFO", "scraping @%s (%d/%d)", msg.Username, msg.Index, msg.Total)
		return m, nil

	case PostMsg:
		m.UpdatePosts(msg.Username, msg.Done, msg.Total)
		return m, nil

	case AccountDoneMsg:
		m.FinishAccount(msg.Result)
		r := msg.Result
		switch r.Status {
		case models.StatusSuccess:
			m.AddLogMessage("SUCCESS", "@%s: %d posts", r.Username, r.PostsScraped)
		case models.StatusSkipped:
			m.AddLogMessage("WARN", "@%s skipped", r.Username)
		default:
			m.AddLogMessage("ERROR", "@%s %s: %s", r.Username, r.Status, r.Error)
		}
		return m, nil

	case PacingMsg:
		m.ApplyPacing(msg.Event)
		return m, nil

	case RunDoneMsg:
		m.finished = true
		m.wait = nil
		m.AddLogMessage("SUCCESS", "run finished: %d posts across %d accounts", msg.Summary.TotalPosts(), len(msg.Summary.Accounts))
		return m, nil

	case LogMsg:
		m.AddLogMessage(msg.Level, "%s", msg.Message)
		return m, nil
	}

	return m, nil
}

// handleKeyPress handles keyboard input
func (m *Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "Q", "ctrl+c":
		if m.onQuit != nil && !m.finished {
			m.onQuit()
		}
		return m, tea.Quit

	case "?":
		m.showHelp = !m.showHelp
		return m, nil

	case "ctrl+l":
		m.logMessages = []LogMessage{}
		return m, nil
	}

	return m, nil
}

func barWidth(termWidth int) int {
	w := (termWidth-4)/2 - 10
	if w < 10 {
		return 10
	}
	return w
}

// Commands

// tickCmd returns a command that sends a tick message
func tickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*250, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}
