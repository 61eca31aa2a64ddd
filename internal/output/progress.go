// Package output renders aegis reports and run progress for the CLI.
package output

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)

// Progress writes component progress to stderr. It implements
// engine.ProgressReporter.
type Progress struct {
	w       io.Writer
	verbose bool
	silent  bool
	noColor bool
	mu      sync.Mutex
	start   time.Time
}

// NewProgress creates a progress reporter.
func NewProgress(w io.Writer, verbose, silent, noColor bool) *Progress {
	return &Progress{
		w:       w,
		verbose: verbose,
		silent:  silent,
		noColor: noColor,
		start:   time.Now(),
	}
}

// Stage prints a stage header like "[1/3] Scanning 21 ports..."
func (p *Progress) Stage(num, total int, msg string) {
	if p.silent {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "[%d/%d] %s\n", num, total, msg)
}

// Detail prints verbose detail (only in verbose mode).
func (p *Progress) Detail(msg string) {
	if !p.verbose || p.silent {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "  %s\n", msg)
}

// Warn prints a component failure.
func (p *Progress) Warn(msg string) {
	if p.silent {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	marker := "!"
	if !p.noColor {
		marker = warnStyle.Render(marker)
	}
	fmt.Fprintf(p.w, "  %s %s\n", marker, msg)
}

// Complete prints the final duration.
func (p *Progress) Complete() {
	if p.silent {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "\nCompleted in %.1fs\n", time.Since(p.start).Seconds())
}
