package ui

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/bubbles/progress"

	"github.com/muurk/joinme/internal/ota"
)

// DownloadBar renders the transfer of a firmware image into flash
type DownloadBar struct {
	Label    string // e.g., "Downloading firmware 7"
	Width    int    // Terminal width
	progress ota.Progress
	bar      progress.Model
}

// NewDownloadBar creates a bar sized for the current terminal
func NewDownloadBar(label string) *DownloadBar {
	d := &DownloadBar{Label: label}
	return d.SetWidth(GetTerminalWidth())
}

// SetWidth sets the terminal width for responsive rendering
func (d *DownloadBar) SetWidth(width int) *DownloadBar {
	d.Width = width
	barWidth := width - 30 // Leave room for percentage and byte counts
	if barWidth < 20 {
		barWidth = 20
	}
	if barWidth > 50 {
		barWidth = 50
	}
	d.bar = progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(barWidth),
	)
	return d
}

// Update records the latest snapshot
func (d *DownloadBar) Update(p ota.Progress) {
	d.progress = p
}

// Progress returns the latest snapshot
func (d *DownloadBar) Progress() ota.Progress {
	return d.progress
}

// Render returns the label line and the bar line
func (d *DownloadBar) Render() string {
	fraction := d.progress.Fraction
	if fraction > 1 {
		fraction = 1
	}

	counts := ProgressCountStyle.Render(fmt.Sprintf("%3.0f%%  %s / %s",
		fraction*100,
		FormatBytes(d.progress.Written),
		FormatBytes(d.progress.Expected),
	))

	return ProgressLabelStyle.Render(d.Label+"...") + "\n\n" +
		ProgressBarStyle().Render(d.bar.ViewAs(fraction)+"  "+counts) + "\n"
}

// String implements fmt.Stringer
func (d *DownloadBar) String() string {
	return d.Render()
}

// LinePrinter is an ota.ProgressObserver for plain output. It rewrites a
// single line with a carriage return each time the percentage moves and
// ends it with a newline once the image is complete.
type LinePrinter struct {
	mu      sync.Mutex
	out     io.Writer
	label   string
	percent int
}

// NewLinePrinter creates a LinePrinter writing to out
func NewLinePrinter(out io.Writer, label string) *LinePrinter {
	return &LinePrinter{out: out, label: label, percent: -1}
}

// Progress implements ota.ProgressObserver
func (l *LinePrinter) Progress(p ota.Progress) {
	l.mu.Lock()
	defer l.mu.Unlock()

	percent := int(p.Fraction * 100)
	if percent > 100 {
		percent = 100
	}
	if percent == l.percent && !p.Done() {
		return
	}
	l.percent = percent

	fmt.Fprintf(l.out, "\r%s: %3d%% (%s / %s)", l.label, percent, FormatBytes(p.Written), FormatBytes(p.Expected))
	if p.Done() {
		fmt.Fprintln(l.out)
	}
}

// FormatBytes renders n using binary units with one decimal place
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
