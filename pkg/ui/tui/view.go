package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"igharvest/pkg/pacing"
)

// View renders the entire TUI
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	var sections []string
	sections = append(sections, m.renderLogo())

	mainContent := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderLeftColumn(),
		"  ",
		m.renderRightColumn(),
	)
	sections = append(sections, mainContent)

	if m.showHelp {
		sections = append(sections, m.renderHelp())
	} else {
		sections = append(sections, helpStyle.Render("Press ? for help, q to stop"))
	}

	return baseStyle.Width(m.width).Height(m.height).Render(
		lipgloss.JoinVertical(lipgloss.Left, sections...),
	)
}

func (m *Model) renderLogo() string {
	logo := `
 ╦╔═╗╦ ╦╔═╗╦═╗╦  ╦╔═╗╔═╗╔╦╗
 ║║ ╦╠═╣╠═╣╠╦╝╚╗╔╝║╣ ╚═╗ ║
 ╩╚═╝╩ ╩╩ ╩╩╚═ ╚╝ ╚═╝╚═╝ ╩
 paced profile and post harvester`

	return logoStyle.Width(m.width).Render(logo)
}

func (m *Model) renderLeftColumn() string {
	width := (m.width - 4) / 2
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderStatsPanel(width),
		m.renderCurrentPanel(width),
		m.renderAccountsPanel(width),
	)
}

func (m *Model) renderRightColumn() string {
	width := (m.width - 4) / 2
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderWaitPanel(width),
		m.renderLogsPanel(width),
	)
}

func (m *Model) renderStatsPanel(width int) string {
	title := titleStyle.Render(" RUN STATS ")

	done := 0
	for _, a := range m.accounts {
		if a.State != AccountPending && a.State != AccountActive {
			done++
		}
	}

	stats := []string{
		stat("Session Time:", formatDuration(m.now().Sub(m.sessionStart))),
		stat("Accounts:", fmt.Sprintf("%d/%d", done, len(m.accounts))),
		stat("Posts Scraped:", fmt.Sprintf("%d", m.postsScraped)),
		stat("Posts Skipped:", fmt.Sprintf("%d", m.postsFailed)),
		stat("Cooldowns:", fmt.Sprintf("%d", m.cooldowns)),
		stat("Batch Pauses:", fmt.Sprintf("%d", m.pauses)),
	}
	if m.finished {
		stats = append(stats, successStyle.Render("✓ RUN COMPLETE"))
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, lipgloss.JoinVertical(lipgloss.Left, stats...)),
	)
}

func stat(label, value string) string {
	return fmt.Sprintf("%s %s", statsLabelStyle.Render(label), statsValueStyle.Render(value))
}

func (m *Model) renderCurrentPanel(width int) string {
	title := titleStyle.Render(" CURRENT ACCOUNT ")

	a, ok := m.byName[m.current]
	if !ok || m.current == "" {
		content := lipgloss.NewStyle().Foreground(dimWhite).Render("Idle")
		return panelStyle.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, title, content))
	}

	info := fmt.Sprintf("%s %s", m.spinner.View(), accountActiveStyle.Render("@"+a.Username))
	lines := []string{info}
	if a.Total > 0 {
		frac := float64(a.Done) / float64(a.Total)
		if frac > 1 {
			frac = 1
		}
		lines = append(lines,
			lipgloss.NewStyle().Foreground(dimWhite).Render(fmt.Sprintf("%d/%d posts", a.Done, a.Total)),
			m.postsBar.ViewAs(frac),
		)
	} else {
		lines = append(lines, lipgloss.NewStyle().Foreground(dimWhite).Render(fmt.Sprintf("%d posts", a.Done)))
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, lipgloss.JoinVertical(lipgloss.Left, lines...)),
	)
}

func (m *Model) renderAccountsPanel(width int) string {
	title := titleStyle.Render(" ACCOUNTS ")

	var items []string
	for _, a := range m.accounts {
		items = append(items, renderAccountItem(a))
	}
	if len(items) == 0 {
		items = append(items, lipgloss.NewStyle().Foreground(dimWhite).Render("No accounts"))
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, lipgloss.JoinVertical(lipgloss.Left, items...)),
	)
}

func renderAccountItem(a *AccountItem) string {
	switch a.State {
	case AccountActive:
		return accountActiveStyle.Render(fmt.Sprintf("▶ @%s  %d", a.Username, a.Done))
	case AccountDone:
		line := fmt.Sprintf("✓ @%s  %d posts", a.Username, a.Done)
		if a.Failed > 0 {
			line += fmt.Sprintf(", %d skipped", a.Failed)
		}
		return accountDoneStyle.Render(line)
	case AccountFailed:
		return errorStyle.PaddingLeft(2).Render(fmt.Sprintf("✗ @%s  failed", a.Username))
	case AccountAborted:
		return errorStyle.PaddingLeft(2).Render(fmt.Sprintf("✗ @%s  aborted", a.Username))
	case AccountSkipped:
		return accountDoneStyle.Render(fmt.Sprintf("- @%s  skipped", a.Username))
	default:
		return accountItemStyle.Render(fmt.Sprintf("⏳ @%s", a.Username))
	}
}

func (m *Model) renderWaitPanel(width int) string {
	title := titleStyle.Render(" PACING ")

	w, ok := m.CurrentWait()
	if !ok {
		content := rateNormalStyle.Render("● requesting")
		if m.finished {
			content = lipgloss.NewStyle().Foreground(dimWhite).Render("idle")
		}
		return panelStyle.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, title, content))
	}

	now := m.now()
	style := WaitStyle(w.Type)
	content := []string{
		fmt.Sprintf("%s %s", statsLabelStyle.Render(waitLabel(w.Type)), style.Render(w.Context.String())),
		m.waitBar.ViewAs(w.Fraction(now)),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Resumes in:"), statsValueStyle.Render(formatDuration(w.Remaining(now)))),
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(content, "\n")),
	)
}

func waitLabel(t pacing.EventType) string {
	switch t {
	case pacing.EventCooldown:
		return "Cooling down:"
	case pacing.EventItemCooldown:
		return "Item cooldown:"
	case pacing.EventPause:
		return "Batch pause:"
	default:
		return "Waiting before:"
	}
}

func (m *Model) renderLogsPanel(width int) string {
	title := titleStyle.Render(" LOG ")

	start := len(m.logMessages) - 10
	if start < 0 {
		start = 0
	}

	var logs []string
	for i := start; i < len(m.logMessages); i++ {
		log := m.logMessages[i]
		timestamp := logTimestampStyle.Render(log.Time.Format("15:04:05"))
		level := lipgloss.NewStyle().Foreground(log.Color).Bold(true).Render(fmt.Sprintf("[%-7s]", log.Level))

		text := log.Message
		maxMsgLen := width - 25
		if maxMsgLen > 3 && len([]rune(text)) > maxMsgLen {
			text = string([]rune(text)[:maxMsgLen-3]) + "..."
		}

		logs = append(logs, fmt.Sprintf("%s %s %s", timestamp, level, logMessageStyle.Render(text)))
	}

	content := strings.Join(logs, "\n")
	if content == "" {
		content = lipgloss.NewStyle().Foreground(dimWhite).Render("No logs yet...")
	}

	logsHeight := m.height - 24
	if logsHeight < 5 {
		logsHeight = 5
	}

	return panelStyle.Width(width).Height(logsHeight).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, content),
	)
}

func (m *Model) renderHelp() string {
	help := `
  Keys:
    q/Q      - Stop the run and quit
    ctrl+l   - Clear the log
    ?        - Toggle this help

  Pacing:
    ` + rateNormalStyle.Render("Green") + `    - Requesting
    ` + warningStyle.Render("Orange") + `   - Cooldown after a failure
    ` + rateCriticalStyle.Render("Red") + `      - Item skipped
    ` + statsValueStyle.Render("Yellow") + `   - Randomised wait or batch pause
`

	return panelStyle.Width(m.width).Render(help)
}

// formatDuration formats a duration as mm:ss or hh:mm:ss
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "00:00"
	}

	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
