package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// ProgressReporter reports progress for batch evaluations.
type ProgressReporter interface {
	Start(total int64)
	// Increment records one settled item. Safe for concurrent use.
	Increment(failed bool)
	Finish()
}

var (
	barStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	failedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
)

// SimpleProgress is a single-line progress bar.
type SimpleProgress struct {
	mu      sync.Mutex
	total   int64
	current int64
	failed  int64
	started time.Time
	now     func() time.Time
	writer  io.Writer
}

// NewProgressReporter creates a progress reporter that writes to w.
// If w is nil, it defaults to os.Stderr so results on stdout stay clean.
func NewProgressReporter(w io.Writer) *SimpleProgress {
	if w == nil {
		w = os.Stderr
	}
	return &SimpleProgress{writer: w, now: time.Now}
}

// Start initializes the reporter with the number of items.
func (p *SimpleProgress) Start(total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.total = total
	p.current = 0
	p.failed = 0
	p.started = p.now()
	p.render()
}

// Increment records one settled item.
func (p *SimpleProgress) Increment(failed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current++
	if failed {
		p.failed++
	}
	p.render()
}

// Finish terminates the progress line.
func (p *SimpleProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.render()
	fmt.Fprintln(p.writer)
}

// Counts returns the settled and failed item counts.
func (p *SimpleProgress) Counts() (current, failed int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, p.failed
}

func (p *SimpleProgress) render() {
	if p.total == 0 {
		return
	}

	percent := float64(p.current) / float64(p.total) * 100
	barWidth := 40
	filled := int(float64(barWidth) * percent / 100)
	bar := barStyle.Render(strings.Repeat("█", filled)) + strings.Repeat("░", barWidth-filled)

	rate := 0.0
	if elapsed := p.now().Sub(p.started).Seconds(); elapsed > 0 {
		rate = float64(p.current) / elapsed
	}

	failed := ""
	if p.failed > 0 {
		failed = " " + failedStyle.Render(fmt.Sprintf("%d failed", p.failed))
	}
	fmt.Fprintf(p.writer, "\rEvaluating: [%s] %.1f%% (%d/%d) %.1f recs/s%s",
		bar, percent, p.current, p.total, rate, failed)
}
