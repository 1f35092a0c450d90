// Package supervisor runs a whole export: it walks the worklist in order,
// delegates each item to the export processor, reports progress, packs the
// results and restarts the run from scratch when the browser connection
// breaks.
package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/entrhq/convoexport/pkg/browser"
	"github.com/entrhq/convoexport/pkg/config"
	"github.com/entrhq/convoexport/pkg/export"
	"github.com/entrhq/convoexport/pkg/logging"
	"github.com/entrhq/convoexport/pkg/packager"
	"github.com/entrhq/convoexport/pkg/progress"
	"github.com/entrhq/convoexport/pkg/worklist"
)

// ItemProcessor exports a single item.
type ItemProcessor interface {
	Process(ctx context.Context, session browser.Session, item worklist.WorkItem) (export.Result, error)
	OutputPath(item worklist.WorkItem) string
}

// Reporter receives a progress update after every item.
type Reporter interface {
	Report(done, total int, start time.Time)
}

// WorklistLoader produces the items of a run.
type WorklistLoader func() ([]worklist.WorkItem, error)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	failureStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	noticeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
)

// Supervisor owns the run loop and its RunState.
type Supervisor struct {
	cfg       *config.Config
	connector browser.Connector
	processor ItemProcessor
	loader    WorklistLoader
	reporter  Reporter
	log       *logging.Logger
	out       io.Writer
	sleep     func(ctx context.Context, d time.Duration) error
	now       func() time.Time
}

// Option customises a Supervisor.
type Option func(*Supervisor)

// WithWorklist replaces the spreadsheet loader.
func WithWorklist(loader WorklistLoader) Option {
	return func(s *Supervisor) { s.loader = loader }
}

// WithProcessor replaces the browser-driving item processor.
func WithProcessor(p ItemProcessor) Option {
	return func(s *Supervisor) { s.processor = p }
}

// WithReporter replaces the terminal progress line.
func WithReporter(r Reporter) Option {
	return func(s *Supervisor) { s.reporter = r }
}

// WithOutput redirects console messages (summary, retry notices).
func WithOutput(w io.Writer) Option {
	return func(s *Supervisor) { s.out = w }
}

// New creates a supervisor. By default it reads the worklist named in cfg,
// drives the browser with an export.Driver and draws progress on stdout.
func New(cfg *config.Config, connector browser.Connector, log *logging.Logger, opts ...Option) *Supervisor {
	s := &Supervisor{
		cfg:       cfg,
		connector: connector,
		log:       log,
		out:       os.Stdout,
		sleep:     export.Wait,
		now:       time.Now,
	}

	s.loader = func() ([]worklist.WorkItem, error) {
		return worklist.Load(cfg.Worklist.Path, cfg.Worklist.Sheet, cfg.Worklist.Column)
	}

	driver := export.NewDriver(cfg.Selectors, cfg.Timeouts)
	log.Debugf("worst case per attempt: %s", driver.AttemptBudget())
	s.processor = export.NewProcessor(driver, export.Options{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		Backoff:        cfg.Retry.Backoff,
		DownloadDir:    cfg.Output.DownloadDir,
		DiagnosticsDir: cfg.Output.DiagnosticsDir,
		Diagnostics:    cfg.Output.Diagnostics,
	}, log.Component("export"))

	s.reporter = progress.NewReporter()

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute runs the export, starting over after a crash up to
// cfg.Retry.RunRetries more times. Work already on disk survives a restart
// through the skip-if-present check. Cancellation is never retried.
func (s *Supervisor) Execute(ctx context.Context) (*Summary, error) {
	retries := s.cfg.Retry.RunRetries

	for run := 0; ; run++ {
		summary, err := s.Run(ctx)
		if err == nil {
			return summary, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			s.log.Errorf("run aborted: %v", err)
			return nil, err
		}

		s.log.Errorf("run %d crashed: %v", run+1, err)
		if run >= retries {
			fmt.Fprintln(s.out)
			fmt.Fprintln(s.out, failureStyle.Render(fmt.Sprintf("Final crash: %v", err)))
			return nil, err
		}

		fmt.Fprintln(s.out)
		fmt.Fprintln(s.out, noticeStyle.Render(fmt.Sprintf("Error: %v. Retrying %d/%d…", err, run+1, retries)))
		if err := s.sleep(ctx, s.cfg.Retry.RunRetryDelay); err != nil {
			return nil, err
		}
	}
}

// Run performs one complete pass: load, iterate, pack, report.
//
// Item failures are recorded in the summary. The returned error means the
// run itself broke (worklist unreadable, browser lost, packaging failed).
func (s *Supervisor) Run(ctx context.Context) (*Summary, error) {
	items, err := s.loader()
	if err != nil {
		return nil, fmt.Errorf("failed to load worklist: %w", err)
	}

	if err := os.MkdirAll(s.cfg.Output.DownloadDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}

	state := newRunState(len(items), s.now())
	summary := &Summary{
		RunID:     s.log.RunID(),
		Total:     len(items),
		StartTime: state.StartTime,
	}

	if err := s.iterate(ctx, items, state, summary); err != nil {
		return nil, err
	}
	summary.Failed = append([]string{}, state.Errors...)

	pk, err := packager.New(s.cfg.Output.DownloadDir, s.cfg.Output.BatchSize, s.cfg.Output.Pattern)
	if err != nil {
		return nil, err
	}
	packed, err := pk.Pack()
	if err != nil {
		return nil, fmt.Errorf("failed to pack transcripts: %w", err)
	}
	summary.Packed = packed.Files
	summary.Archives = packed.Archives
	fmt.Fprintf(s.out, "\nPacked %d files into %d zip(s) of %d\n", packed.Files, len(packed.Archives), s.cfg.Output.BatchSize)

	summary.EndTime = s.now()
	summary.Duration = summary.EndTime.Sub(summary.StartTime)

	if s.cfg.Output.ReportFile != "" {
		if err := writeReport(s.cfg.Output.ReportFile, summary); err != nil {
			s.log.Warnf("failed to write run report: %v", err)
		}
	}

	s.printSummary(summary)
	return summary, nil
}

// iterate processes items strictly in order over one browser session.
func (s *Supervisor) iterate(ctx context.Context, items []worklist.WorkItem, state *RunState, summary *Summary) error {
	session, err := s.connector.Connect(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to browser: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			s.log.Debugf("ignoring session close error: %v", err)
		}
	}()

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}

		if exists(s.processor.OutputPath(item)) {
			summary.Skipped++
		} else {
			res, err := s.processor.Process(ctx, session, item)
			if err != nil {
				return fmt.Errorf("item %s: %w", item.ID, err)
			}
			if res.Outcome == export.Completed {
				summary.Exported++
			} else {
				state.Errors = append(state.Errors, item.ID)
			}
		}

		state.advance()
		s.reporter.Report(state.Done, state.Total, state.StartTime)
	}
	return nil
}

func (s *Supervisor) printSummary(summary *Summary) {
	if summary.OK() {
		fmt.Fprintln(s.out, successStyle.Render("Completed without errors"))
		return
	}
	fmt.Fprintln(s.out, failureStyle.Render(fmt.Sprintf("Failed %d IDs: %v", len(summary.Failed), summary.Failed)))
}

func writeReport(path string, summary *Summary) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run report: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write run report: %w", err)
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
