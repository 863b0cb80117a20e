package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"igharvest/pkg/models"
	"igharvest/pkg/pacing"
)

const (
	ProgressBar   = "█"
	ProgressEmpty = "░"
	barWidth      = 20
)

// Progress prints line-oriented scrape progress. It satisfies the scraper's
// Observer interface, and Pacing can be installed as the policy observer so
// waits and cooldowns show up alongside the post counter.
type Progress struct {
	mu      sync.Mutex
	start   time.Time
	now     func() time.Time
	current string
	done    int
	total   int
	verbose bool
}

// NewProgress creates a progress printer. With verbose set every pacing
// delay is printed, otherwise only cooldowns, pauses and failures are.
func NewProgress(verbose bool) *Progress {
	return &Progress{start: time.Now(), now: time.Now, verbose: verbose}
}

func (p *Progress) AccountStarted(username string, index, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current, p.done, p.total = username, 0, 0
	if IsQuietMode() {
		return
	}
	fmt.Fprintf(output, "\n%s @%s %s\n", Magenta("[ACCOUNT]"), username, Dim(fmt.Sprintf("(%d/%d)", index, total)))
}

func (p *Progress) PostScraped(username string, done, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current, p.done, p.total = username, done, total
	if IsQuietMode() {
		return
	}
	fmt.Fprintf(output, "\r%s %s", Green("[SCRAPED]"), Bar(done, total))
}

func (p *Progress) AccountFinished(r models.AccountResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if IsQuietMode() && r.Status == models.StatusSuccess {
		return
	}
	line := fmt.Sprintf("@%s: %d posts", r.Username, r.PostsScraped)
	if r.PostsFailed > 0 {
		line += fmt.Sprintf(", %d skipped", r.PostsFailed)
	}
	switch r.Status {
	case models.StatusSuccess:
		fmt.Fprintf(output, "\n%s %s\n", Green("✓"), line)
	case models.StatusSkipped:
		fmt.Fprintf(output, "\n%s @%s skipped\n", Dim("-"), r.Username)
	default:
		fmt.Fprintf(output, "\n%s %s (%s: %s)\n", Red("✗"), line, r.Status, r.Error)
	}
}

// Pacing handles policy events.
func (p *Progress) Pacing(ev pacing.Event) {
	if IsQuietMode() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	switch ev.Type {
	case pacing.EventPace:
		if p.verbose {
			fmt.Fprintf(output, "\n%s %s before %s", Dim("[WAIT]"), FormatDuration(ev.Delay), ev.Context)
		}
	case pacing.EventCooldown:
		fmt.Fprintf(output, "\n%s attempt %d for %s failed: %v. Cooling down %s\n",
			Yellow("[COOLDOWN]"), ev.Attempt, ev.Context, ev.Err, FormatDuration(ev.Delay))
	case pacing.EventProgress:
		fmt.Fprintf(output, "\n%s %d/%d processed\n", Cyan("[PROGRESS]"), ev.Done, ev.Total)
	case pacing.EventPause:
		fmt.Fprintf(output, "\n%s %d items done, resting %s\n", Magenta("[PAUSE]"), ev.Done, FormatDuration(ev.Delay))
	case pacing.EventItemFailed:
		fmt.Fprintf(output, "\n%s %s: %v\n", Red("[SKIP]"), ev.Item, ev.Err)
	case pacing.EventItemCooldown:
		fmt.Fprintf(output, "%s %s\n", Dim("  cooling down"), FormatDuration(ev.Delay))
	}
}

// Elapsed returns the time since the printer was created.
func (p *Progress) Elapsed() time.Duration {
	return p.now().Sub(p.start)
}

// Bar renders done/total as a fixed-width bar. An unknown total renders the
// bare counter.
func Bar(done, total int) string {
	if total <= 0 {
		return fmt.Sprintf("%d", done)
	}
	filled := done * barWidth / total
	if filled > barWidth {
		filled = barWidth
	}
	bar := strings.Repeat(ProgressBar, filled) + strings.Repeat(ProgressEmpty, barWidth-filled)
	return fmt.Sprintf("[%s] %d/%d", bar, done, total)
}

// FormatDuration formats a duration in a human-readable way
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
