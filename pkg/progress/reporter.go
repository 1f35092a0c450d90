// Package progress renders the single, continuously rewritten status line
// shown while a batch runs.
package progress

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

const (
	// reservedColumns is the room kept for the counters after the bar
	reservedColumns = 45
	minBarWidth     = 10
	fallbackColumns = 80
)

// Reporter writes progress lines to a terminal.
type Reporter struct {
	out   io.Writer
	width func() int
	now   func() time.Time
}

// NewReporter returns a reporter writing to stdout, sizing the bar to the
// terminal.
func NewReporter() *Reporter {
	return NewReporterTo(os.Stdout, terminalWidth)
}

// NewReporterTo returns a reporter writing to out; width reports the
// current number of terminal columns.
func NewReporterTo(out io.Writer, width func() int) *Reporter {
	return &Reporter{out: out, width: width, now: time.Now}
}

// Report redraws the status line for done of total items, counting time
// from start. The line is finished with a newline once done reaches total.
// Write errors are ignored: progress output must never stop a run.
func (r *Reporter) Report(done, total int, start time.Time) {
	fmt.Fprint(r.out, "\r"+r.Line(done, total, start))
	if done >= total {
		fmt.Fprintln(r.out)
	}
}

// Line renders the status line without the carriage return.
func (r *Reporter) Line(done, total int, start time.Time) string {
	elapsed := r.now().Sub(start)
	if elapsed < 0 {
		elapsed = 0
	}

	ratio := 1.0
	if total > 0 {
		ratio = float64(done) / float64(total)
	}

	barWidth := r.width() - reservedColumns
	if barWidth < minBarWidth {
		barWidth = minBarWidth
	}

	return fmt.Sprintf("%s %d/%d %6.2f%% TIME %s ETA %s",
		renderBar(barWidth, ratio), done, total, ratio*100,
		FormatClock(elapsed), FormatClock(ETA(elapsed, done, total)))
}

// ETA extrapolates the remaining time from the average time per item so
// far. It is zero until the first item is done.
func ETA(elapsed time.Duration, done, total int) time.Duration {
	if done <= 0 || done >= total {
		return 0
	}
	perItem := elapsed / time.Duration(done)
	return perItem * time.Duration(total-done)
}

// FormatClock formats d as hh:mm:ss, truncating fractions of a second.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	h, rem := secs/3600, secs%3600
	m, s := rem/60, rem%60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// renderBar draws a plain '#'/'-' bar so it survives redirection to a log.
// Partially filled cells are left empty.
func renderBar(width int, ratio float64) string {
	filled := int(float64(width) * ratio)
	ratio = float64(filled) / float64(width)

	bar := progress.New(
		progress.WithWidth(width),
		progress.WithoutPercentage(),
		progress.WithFillCharacters('#', '-'),
		progress.WithColorProfile(termenv.Ascii),
	)
	return bar.ViewAs(ratio)
}

func terminalWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return fallbackColumns
	}
	return w
}
