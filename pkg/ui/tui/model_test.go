package tui

import (
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igharvest/pkg/models"
	"igharvest/pkg/pacing"
)

func newTestModel(targets ...string) (*Model, *time.Time) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	m := NewModel(targets)
	m.now = func() time.Time { return now }
	m.sessionStart = now
	return &m, &now
}

func TestModelAccountLifecycle(t *testing.T) {
	m, _ := newTestModel("alice", "bob")

	m.Update(AccountStartMsg{Username: "alice", Index: 1, Total: 2})
	m.Update(PostMsg{Username: "alice", Done: 1, Total: 3})
	m.Update(PostMsg{Username: "alice", Done: 2, Total: 3})
	assert.Equal(t, 2, m.postsScraped)
	assert.Equal(t, "alice", m.current)

	m.Update(AccountDoneMsg{Result: models.AccountResult{Username: "alice", Status: models.StatusSuccess, PostsScraped: 3, PostsFailed: 1}})
	m.Update(AccountDoneMsg{Result: models.AccountResult{Username: "bob", Status: models.StatusSkipped}})

	accounts := m.Accounts()
	require.Len(t, accounts, 2)
	assert.Equal(t, AccountDone, accounts[0].State)
	assert.Equal(t, 3, accounts[0].Done)
	assert.Equal(t, 1, accounts[0].Failed)
	assert.Equal(t, AccountSkipped, accounts[1].State)
	assert.Equal(t, 3, m.postsScraped)
	assert.Empty(t, m.current)
}

func TestModelUnknownAccountIsAppended(t *testing.T) {
	m, _ := newTestModel()
	m.Update(AccountStartMsg{Username: "carol", Index: 1, Total: 1})
	m.Update(AccountDoneMsg{Result: models.AccountResult{Username: "carol", Status: models.StatusAborted, Error: "checkpoint"}})

	accounts := m.Accounts()
	require.Len(t, accounts, 1)
	assert.Equal(t, AccountAborted, accounts[0].State)
	assert.Equal(t, "checkpoint", accounts[0].Error)
}

func TestModelPacingWait(t *testing.T) {
	m, now := newTestModel("alice")

	m.Update(PacingMsg{Event: pacing.Event{
		Type:    pacing.EventCooldown,
		Context: pacing.RequestContext{Kind: pacing.KindPostPage, Target: "alice"},
		Delay:   60 * time.Second,
		Attempt: 1,
		Err:     errors.New("timeout"),
	}})

	w, ok := m.CurrentWait()
	require.True(t, ok)
	assert.Equal(t, pacing.EventCooldown, w.Type)
	assert.Equal(t, 60*time.Second, w.Remaining(*now))
	assert.Equal(t, 1, m.cooldowns)

	*now = now.Add(15 * time.Second)
	w, ok = m.CurrentWait()
	require.True(t, ok)
	assert.Equal(t, 45*time.Second, w.Remaining(*now))
	assert.InDelta(t, 0.25, w.Fraction(*now), 0.001)

	*now = now.Add(time.Minute)
	_, ok = m.CurrentWait()
	assert.False(t, ok, "elapsed wait is no longer current")
}

func TestModelPacingCounters(t *testing.T) {
	m, _ := newTestModel("alice")

	m.ApplyPacing(pacing.Event{Type: pacing.EventItemFailed, Item: "SC1", Err: errors.New("bad json")})
	m.ApplyPacing(pacing.Event{Type: pacing.EventItemCooldown, Item: "SC1", Delay: 30 * time.Second})
	m.ApplyPacing(pacing.Event{Type: pacing.EventProgress, Done: 25, Total: 200})
	m.ApplyPacing(pacing.Event{Type: pacing.EventPause, Done: 100, Total: 200, Delay: time.Minute})

	assert.Equal(t, 1, m.postsFailed)
	assert.Equal(t, 1, m.pauses)
	w, ok := m.CurrentWait()
	require.True(t, ok)
	assert.Equal(t, pacing.EventPause, w.Type)
	require.Len(t, m.logMessages, 3)
	assert.Equal(t, "skipped SC1: bad json", m.logMessages[0].Message)
	assert.Equal(t, "25/200 processed", m.logMessages[1].Message)
}

func TestModelPostClearsWait(t *testing.T) {
	m, _ := newTestModel("alice")
	m.ApplyPacing(pacing.Event{Type: pacing.EventPace, Delay: 5 * time.Second})
	m.Update(PostMsg{Username: "alice", Done: 1})

	_, ok := m.CurrentWait()
	assert.False(t, ok)
}

func TestModelLogCap(t *testing.T) {
	m, _ := newTestModel()
	for i := 0; i < 60; i++ {
		m.AddLogMessage("INFO", "line %d", i)
	}
	require.Len(t, m.logMessages, 50)
	assert.Equal(t, "line 10", m.logMessages[0].Message)

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlL})
	assert.Empty(t, m.logMessages)
}

func TestModelLogMsgKeepsPercentSigns(t *testing.T) {
	m, _ := newTestModel()
	m.Update(LogMsg{Level: "ERROR", Message: "natgeo: 100% of attempts failed %d"})

	require.Len(t, m.logMessages, 1)
	assert.Equal(t, "natgeo: 100% of attempts failed %d", m.logMessages[0].Message)
	assert.Equal(t, "ERROR", m.logMessages[0].Level)
}

func TestModelQuitCancelsRun(t *testing.T) {
	m, _ := newTestModel("alice")
	called := 0
	m.onQuit = func() { called++ }

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, 1, called)

	m.Update(RunDoneMsg{})
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	assert.Equal(t, 1, called, "quitting after the run does not cancel")
}

func TestViewRenders(t *testing.T) {
	m, _ := newTestModel("alice", "bob")
	assert.Equal(t, "Initializing...", m.View())

	m.Update(tea.WindowSizeMsg{Width: 140, Height: 50})
	m.Update(AccountStartMsg{Username: "alice", Index: 1, Total: 2})
	m.Update(PostMsg{Username: "alice", Done: 2, Total: 4})
	m.Update(PacingMsg{Event: pacing.Event{
		Type:    pacing.EventPace,
		Context: pacing.RequestContext{Kind: pacing.KindPostDetail, Target: "alice"},
		Delay:   4 * time.Second,
	}})

	out := m.View()
	assert.Contains(t, out, "@alice")
	assert.Contains(t, out, "@bob")
	assert.Contains(t, out, "post_detail:alice")
	assert.Contains(t, out, "2/4 posts")
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{-time.Second, "00:00"},
		{42 * time.Second, "00:42"},
		{3*time.Minute + 5*time.Second, "03:05"},
		{2*time.Hour + time.Minute, "02:01:00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatDuration(tt.in))
	}
}
