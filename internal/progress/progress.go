package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Indicator tracks fixture completion during a run
type Indicator struct {
	writer      io.Writer
	total       int
	done        int
	passed      int
	failed      int
	startTime   time.Time
	mu          sync.Mutex
	showSpinner bool
	spinnerIdx  int
	stopChan    chan struct{}
	stopOnce    sync.Once // Ensures Stop() is only called once
	isCI        bool
}

// Config holds configuration for progress indicator
type Config struct {
	Writer      io.Writer
	ShowSpinner bool
	IsCI        bool // Set to true in CI/CD environments to disable fancy output
}

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// NewIndicator creates a new progress indicator
func NewIndicator(cfg Config) *Indicator {
	if cfg.Writer == nil {
		cfg.Writer = os.Stderr
	}

	// Auto-detect CI environment
	if !cfg.IsCI {
		cfg.IsCI = os.Getenv("CI") == "true" || os.Getenv("GITHUB_ACTIONS") == "true"
	}

	return &Indicator{
		writer:      cfg.Writer,
		startTime:   time.Now(),
		showSpinner: cfg.ShowSpinner && !cfg.IsCI,
		stopChan:    make(chan struct{}),
		isCI:        cfg.IsCI,
	}
}

// SetTotal sets the number of fixtures expected
func (p *Indicator) SetTotal(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total = n
}

// Start begins the progress indicator display
func (p *Indicator) Start() {
	if p.showSpinner {
		go p.spinnerLoop()
	}
}

// Stop stops the progress indicator
func (p *Indicator) Stop() {
	p.stopOnce.Do(func() {
		if p.showSpinner {
			close(p.stopChan)
			p.mu.Lock()
			// Clear spinner line
			fmt.Fprintf(p.writer, "\r%s\r", strings.Repeat(" ", 80))
			p.mu.Unlock()
		}
	})
}

// spinnerLoop runs the spinner animation
func (p *Indicator) spinnerLoop() {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopChan:
			return
		case <-ticker.C:
			p.mu.Lock()
			p.renderProgress()
			p.spinnerIdx = (p.spinnerIdx + 1) % len(spinnerFrames)
			p.mu.Unlock()
		}
	}
}

// renderProgress renders the current progress state
func (p *Indicator) renderProgress() {
	elapsed := time.Since(p.startTime)

	var progress float64
	if p.total > 0 {
		progress = float64(p.done) / float64(p.total)
	}

	barWidth := 30
	filled := min(int(float64(barWidth)*progress), barWidth)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	fmt.Fprintf(p.writer, "\r%s [%s] %d/%d fixtures | ✓ %d | ✗ %d | %s",
		spinnerFrames[p.spinnerIdx],
		bar,
		p.done,
		p.total,
		p.passed,
		p.failed,
		formatDuration(elapsed),
	)
}

// Fixture records a finished fixture. Outside spinner mode each fixture is
// printed on its own line.
func (p *Indicator) Fixture(id, kind string, passed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done++
	if passed {
		p.passed++
	} else {
		p.failed++
	}

	if !p.showSpinner {
		p.printFixture(id, kind, passed)
	}
}

// printFixture prints a fixture result in CI-friendly format
func (p *Indicator) printFixture(id, kind string, passed bool) {
	symbol := "✓"
	if !passed {
		symbol = "✗"
	}

	if p.total > 0 {
		fmt.Fprintf(p.writer, "[%d/%d] %s %s %s\n", p.done, p.total, symbol, id, kind)
		return
	}
	fmt.Fprintf(p.writer, "[%d] %s %s %s\n", p.done, symbol, id, kind)
}

// Counts returns how many fixtures finished, passed and failed
func (p *Indicator) Counts() (done, passed, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done, p.passed, p.failed
}

// formatDuration formats a duration for display
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
