package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"igharvest/pkg/models"
	"igharvest/pkg/pacing"
)

// AccountState is where an account is in the run.
type AccountState int

const (
	AccountPending AccountState = iota
	AccountActive
	AccountDone
	AccountFailed
	AccountAborted
	AccountSkipped
)

// AccountItem is one row of the account panel.
type AccountItem struct {
	Username string
	State    AccountState
	Done     int
	Total    int
	Failed   int
	Error    string
}

// Wait is the pause the policy is currently sleeping through.
type Wait struct {
	Type    pacing.EventType
	Context pacing.RequestContext
	Delay   time.Duration
	Started time.Time
}

// Remaining is how much of the wait is left at now.
func (w Wait) Remaining(now time.Time) time.Duration {
	left := w.Delay - now.Sub(w.Started)
	if left < 0 {
		return 0
	}
	return left
}

// Fraction is the elapsed share of the wait, between 0 and 1.
func (w Wait) Fraction(now time.Time) float64 {
	if w.Delay <= 0 {
		return 1
	}
	f := float64(now.Sub(w.Started)) / float64(w.Delay)
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

// Model is the dashboard state. Every mutation happens inside Update, on the
// program's goroutine.
type Model struct {
	spinner  spinner.Model
	waitBar  progress.Model
	postsBar progress.Model

	accounts []*AccountItem
	byName   map[string]*AccountItem
	current  string
	wait     *Wait

	postsScraped int
	postsFailed  int
	cooldowns    int
	pauses       int
	sessionStart time.Time
	finished     bool

	width          int
	height         int
	showHelp       bool
	logMessages    []LogMessage
	maxLogMessages int

	now    func() time.Time
	onQuit func()
}

// LogMessage represents a log entry
type LogMessage struct {
	Time    time.Time
	Level   string
	Message string
	Color   lipgloss.Color
}

// NewModel creates a dashboard with targets listed as pending.
func NewModel(targets []string) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(neonMagenta)

	m := Model{
		spinner:        s,
		waitBar:        progress.New(progress.WithGradient(string(neonOrange), string(neonYellow)), progress.WithoutPercentage()),
		postsBar:       progress.New(progress.WithDefaultGradient()),
		byName:         make(map[string]*AccountItem),
		sessionStart:   time.Now(),
		maxLogMessages: 50,
		now:            time.Now,
	}
	for _, t := range targets {
		m.account(t)
	}
	return m
}

// Init initializes the model
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

func (m *Model) account(username string) *AccountItem {
	if a, ok := m.byName[username]; ok {
		return a
	}
	a := &AccountItem{Username: username}
	m.byName[username] = a
	m.accounts = append(m.accounts, a)
	return a
}

// StartAccount marks username as the account being scraped.
func (m *Model) StartAccount(username string) {
	a := m.account(username)
	a.State = AccountActive
	m.current = username
	m.wait = nil
}

// UpdatePosts records post progress for username.
func (m *Model) UpdatePosts(username string, done, total int) {
	a := m.account(username)
	if done > a.Done {
		m.postsScraped += done - a.Done
	}
	a.Done, a.Total = done, total
	m.wait = nil
}

// FinishAccount applies the final result of an account.
func (m *Model) FinishAccount(r models.AccountResult) {
	a := m.account(r.Username)
	if r.PostsScraped > a.Done {
		m.postsScraped += r.PostsScraped - a.Done
		a.Done = r.PostsScraped
	}
	a.Failed = r.PostsFailed
	a.Error = r.Error
	switch r.Status {
	case models.StatusSuccess:
		a.State = AccountDone
	case models.StatusAborted:
		a.State = AccountAborted
	case models.StatusSkipped:
		a.State = AccountSkipped
	default:
		a.State = AccountFailed
	}
	if m.current == r.Username {
		m.current = ""
		m.wait = nil
	}
}

// ApplyPacing folds a policy event into the dashboard.
func (m *Model) ApplyPacing(ev pacing.Event) {
	switch ev.Type {
	case pacing.EventPace, pacing.EventCooldown, pacing.EventPause, pacing.EventItemCooldown:
		m.wait = &Wait{Type: ev.Type, Context: ev.Context, Delay: ev.Delay, Started: m.now()}
	}
	switch ev.Type {
	case pacing.EventCooldown:
		m.cooldowns++
		m.AddLogMessage("WARN", "attempt %d for %s failed: %v", ev.Attempt, ev.Context, ev.Err)
	case pacing.EventPause:
		m.pauses++
		m.AddLogMessage("INFO", "%d/%d processed, resting %s", ev.Done, ev.Total, formatDuration(ev.Delay))
	case pacing.EventProgress:
		m.AddLogMessage("INFO", "%d/%d processed", ev.Done, ev.Total)
	case pacing.EventItemFailed:
		m.postsFailed++
		m.AddLogMessage("ERROR", "skipped %s: %v", ev.Item, ev.Err)
	}
}

// CurrentWait returns the wait in progress, if any.
func (m *Model) CurrentWait() (Wait, bool) {
	if m.wait == nil {
		return Wait{}, false
	}
	if m.wait.Remaining(m.now()) == 0 {
		return *m.wait, false
	}
	return *m.wait, true
}

// Accounts returns a copy of the account rows in run order.
func (m *Model) Accounts() []AccountItem {
	out := make([]AccountItem, 0, len(m.accounts))
	for _, a := range m.accounts {
		out = append(out, *a)
	}
	return out
}

// AddLogMessage appends a formatted entry, dropping the oldest past the cap.
func (m *Model) AddLogMessage(level, format string, args ...interface{}) {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}

	var color lipgloss.Color
	switch level {
	case "ERROR":
		color = lipgloss.Color("#FF0000")
	case "WARN":
		color = neonOrange
	case "SUCCESS":
		color = neonGreen
	default:
		color = neonCyan
	}

	m.logMessages = append(m.logMessages, LogMessage{
		Time:    m.now(),
		Level:   level,
		Message: msg,
		Color:   color,
	})
	if len(m.logMessages) > m.maxLogMessages {
		m.logMessages = m.logMessages[len(m.logMessages)-m.maxLogMessages:]
	}
}
