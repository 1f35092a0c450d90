package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/entrhq/convoexport/pkg/browser"
	"github.com/entrhq/convoexport/pkg/config"
	"github.com/entrhq/convoexport/pkg/diagnostics"
	"github.com/entrhq/convoexport/pkg/logging"
	"github.com/entrhq/convoexport/pkg/worklist"
)

// OutputExt is the extension of exported transcripts.
const OutputExt = ".txt"

// Outcome is the final state of one processed item.
type Outcome int

const (
	Completed Outcome = iota
	Failed
)

func (o Outcome) String() string {
	if o == Completed {
		return "completed"
	}
	return "failed"
}

// Result reports how an item ended.
type Result struct {
	Outcome  Outcome
	Attempts int
	Path     string

	// Err is the cause of the last failed attempt
	Err error
}

// Options configures a Processor.
type Options struct {
	MaxAttempts    int
	Backoff        time.Duration
	DownloadDir    string
	DiagnosticsDir string
	Diagnostics    config.DiagnosticsPolicy
}

// Processor exports one item with bounded retries. Each attempt gets its
// own tab so UI state left behind by a failure never leaks into the next try.
type Processor struct {
	fetcher Fetcher
	opts    Options
	log     *logging.Logger

	// sleep waits between attempts; tests replace it
	sleep func(ctx context.Context, d time.Duration) error
}

// NewProcessor creates a processor around fetcher.
func NewProcessor(fetcher Fetcher, opts Options, log *logging.Logger) *Processor {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.Diagnostics == "" {
		opts.Diagnostics = config.DiagnosticsFirstFailure
	}
	return &Processor{
		fetcher: fetcher,
		opts:    opts,
		log:     log,
		sleep:   Wait,
	}
}

// OutputPath is where the transcript of item is stored.
func (p *Processor) OutputPath(item worklist.WorkItem) string {
	return filepath.Join(p.opts.DownloadDir, item.ID+OutputExt)
}

// Process exports item, retrying up to MaxAttempts times.
//
// Item-level failures are absorbed into a Failed result. The returned error
// is reserved for problems that make further items pointless too: the
// session refusing to open a tab, or ctx being cancelled.
func (p *Processor) Process(ctx context.Context, session browser.Session, item worklist.WorkItem) (Result, error) {
	res := Result{Outcome: Failed, Path: p.OutputPath(item)}

	for attempt := 1; attempt <= p.opts.MaxAttempts; attempt++ {
		res.Attempts = attempt

		err := p.attempt(ctx, session, item, attempt)
		if err == nil {
			res.Outcome = Completed
			res.Err = nil
			return res, nil
		}

		var ie *InteractionError
		if !errors.As(err, &ie) || ie.Step == StepOpenTab {
			return res, err
		}
		res.Err = err

		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}

		if attempt < p.opts.MaxAttempts {
			if err := p.sleep(ctx, p.opts.Backoff); err != nil {
				return res, err
			}
		}
	}

	return res, nil
}

// attempt runs one try on a fresh tab. The tab is closed on every path.
func (p *Processor) attempt(ctx context.Context, session browser.Session, item worklist.WorkItem, attempt int) error {
	tab, err := session.NewTab()
	if err != nil {
		return &InteractionError{ItemID: item.ID, URL: item.URL, Step: StepOpenTab, Err: err}
	}
	defer p.closeTab(tab, item)

	data, err := p.fetcher.Fetch(ctx, tab, item)
	if err == nil {
		if err = writeArtifact(p.OutputPath(item), data); err != nil {
			err = &InteractionError{ItemID: item.ID, URL: item.URL, Step: StepSave, Err: err}
		}
	}
	if err == nil {
		p.log.Infof("%s exported on try %d (%d bytes)", item.ID, attempt, len(data))
		return nil
	}

	p.log.Errorf("%s try %d: %v", item.ID, attempt, err)
	if p.shouldCapture(attempt) {
		p.capture(tab, item)
	}
	return err
}

func (p *Processor) shouldCapture(attempt int) bool {
	switch p.opts.Diagnostics {
	case config.DiagnosticsFirstFailure:
		return attempt == 1
	case config.DiagnosticsFinalFailure:
		return attempt == p.opts.MaxAttempts
	default:
		return false
	}
}

func (p *Processor) capture(tab browser.Tab, item worklist.WorkItem) {
	snap, err := diagnostics.Capture(tab, p.opts.DiagnosticsDir, item.ID)
	if err != nil {
		p.log.Warnf("%s: diagnostics incomplete: %v", item.ID, err)
	}
	if snap.LoginRequired {
		p.log.Errorf("%s: page %q asks for a login, the browser session has probably expired", item.ID, snap.Title)
	}
	p.log.Debugf("%s: snapshot html=%s png=%s title=%q", item.ID, snap.HTMLPath, snap.ScreenshotPath, snap.Title)
}

// closeTab closes tab and discards the error; teardown never fails a run.
func (p *Processor) closeTab(tab browser.Tab, item worklist.WorkItem) {
	if err := tab.Close(); err != nil {
		p.log.Debugf("%s: ignoring tab close error: %v", item.ID, err)
	}
}

// writeArtifact stores data at path through a temp file and a rename, so
// a transcript is either absent or complete under its final name.
func writeArtifact(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create download directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write transcript: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close transcript: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to move transcript into place: %w", err)
	}
	return nil
}

// Wait pauses for d or until ctx is done, whichever comes first. A
// non-positive d only reports whether ctx is already done.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
