package supervisor

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/entrhq/convoexport/pkg/browser"
	"github.com/entrhq/convoexport/pkg/browser/browsertest"
	"github.com/entrhq/convoexport/pkg/config"
	"github.com/entrhq/convoexport/pkg/export"
	"github.com/entrhq/convoexport/pkg/logging"
	"github.com/entrhq/convoexport/pkg/worklist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFetcher exports every item except the ids in fail.
type fakeFetcher struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls map[string]int
}

func newFakeFetcher(fail ...string) *fakeFetcher {
	f := &fakeFetcher{fail: make(map[string]bool), calls: make(map[string]int)}
	for _, id := range fail {
		f.fail[id] = true
	}
	return f
}

func (f *fakeFetcher) Fetch(ctx context.Context, tab browser.Tab, item worklist.WorkItem) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[item.ID]++
	if f.fail[item.ID] {
		return nil, &export.InteractionError{ItemID: item.ID, URL: item.URL, Step: export.StepOpenMenu, Err: export.ErrNoSelectorMatched}
	}
	return []byte("transcript " + item.ID), nil
}

func (f *fakeFetcher) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

type recordingReporter struct {
	done  []int
	total []int
}

func (r *recordingReporter) Report(done, total int, start time.Time) {
	r.done = append(r.done, done)
	r.total = append(r.total, total)
}

type harness struct {
	cfg       *config.Config
	fetcher   *fakeFetcher
	connector *browsertest.Connector
	reporter  *recordingReporter
	out       *bytes.Buffer
	logBuf    *bytes.Buffer
	sup       *Supervisor
}

func urls(ids ...int) []worklist.WorkItem {
	var items []worklist.WorkItem
	for _, id := range ids {
		items = append(items, worklist.NewItem(fmt.Sprintf("https://app.example.com/conversation/%d", id)))
	}
	return items
}

func newHarness(t *testing.T, items []worklist.WorkItem, fetcher *fakeFetcher) *harness {
	t.Helper()
	root := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Output.DownloadDir = filepath.Join(root, "downloads")
	cfg.Output.DiagnosticsDir = root
	cfg.Retry.Backoff = 0
	cfg.Retry.RunRetryDelay = 0
	require.NoError(t, cfg.Validate())

	h := &harness{
		cfg:      cfg,
		fetcher:  fetcher,
		reporter: &recordingReporter{},
		out:      &bytes.Buffer{},
		logBuf:   &bytes.Buffer{},
		connector: &browsertest.Connector{Sessions: []*browsertest.Session{
			browsertest.NewSession(func(n int) (*browsertest.Tab, error) { return browsertest.NewTab(), nil }),
		}},
	}
	h.sup = h.build(items)
	return h
}

func (h *harness) build(items []worklist.WorkItem) *Supervisor {
	log := logging.New(h.logBuf, "supervisor", logging.LevelDebug)
	proc := export.NewProcessor(h.fetcher, export.Options{
		MaxAttempts:    h.cfg.Retry.MaxAttempts,
		Backoff:        h.cfg.Retry.Backoff,
		DownloadDir:    h.cfg.Output.DownloadDir,
		DiagnosticsDir: h.cfg.Output.DiagnosticsDir,
		Diagnostics:    h.cfg.Output.Diagnostics,
	}, log.Component("export"))

	return New(h.cfg, h.connector, log,
		WithWorklist(func() ([]worklist.WorkItem, error) { return items, nil }),
		WithProcessor(proc),
		WithReporter(h.reporter),
		WithOutput(h.out),
	)
}

func zipNames(t *testing.T, path string) []string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return names
}

func TestRunMixedOutcomes(t *testing.T) {
	h := newHarness(t, urls(1, 2, 3), newFakeFetcher("3"))

	summary, err := h.sup.Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.Exported)
	assert.Equal(t, []string{"3"}, summary.Failed)
	assert.False(t, summary.OK())
	assert.Equal(t, 3, h.fetcher.calls["3"], "failing item is tried MaxAttempts times")

	assert.FileExists(t, filepath.Join(h.cfg.Output.DownloadDir, "1.txt"))
	assert.FileExists(t, filepath.Join(h.cfg.Output.DownloadDir, "2.txt"))
	assert.NoFileExists(t, filepath.Join(h.cfg.Output.DownloadDir, "3.txt"))

	require.Len(t, summary.Archives, 1)
	assert.Equal(t, []string{"1.txt", "2.txt"}, zipNames(t, summary.Archives[0]))

	assert.Contains(t, h.out.String(), "Packed 2 files into 1 zip(s) of 100")
	assert.Contains(t, h.out.String(), "Failed 1 IDs: [3]")
	assert.Contains(t, h.logBuf.String(), "3 try 3:")
}

func TestRunProgressIsMonotonic(t *testing.T) {
	h := newHarness(t, urls(1, 2, 3, 4), newFakeFetcher("2"))

	_, err := h.sup.Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3, 4}, h.reporter.done)
	assert.Equal(t, []int{4, 4, 4, 4}, h.reporter.total)
}

func TestRunIsIdempotent(t *testing.T) {
	h := newHarness(t, urls(1, 2, 3), newFakeFetcher())

	first, err := h.sup.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, first.Exported)
	assert.True(t, first.OK())
	assert.Contains(t, h.out.String(), "Completed without errors")

	before := h.fetcher.total()
	tabsBefore := len(h.connector.Sessions[0].Tabs())

	second, err := h.sup.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, second.Skipped)
	assert.Equal(t, 0, second.Exported)
	assert.Equal(t, before, h.fetcher.total(), "no browser interaction for downloaded ids")
	assert.Equal(t, tabsBefore, len(h.connector.Sessions[0].Tabs()))
	assert.Equal(t, []int{1, 2, 3, 1, 2, 3}, h.reporter.done)
}

func TestRunPacksInBatches(t *testing.T) {
	ids := make([]int, 150)
	for i := range ids {
		ids[i] = 1000 + i
	}
	h := newHarness(t, urls(ids...), newFakeFetcher())

	summary, err := h.sup.Execute(context.Background())
	require.NoError(t, err)

	require.Len(t, summary.Archives, 2)
	assert.Len(t, zipNames(t, summary.Archives[0]), 100)
	assert.Len(t, zipNames(t, summary.Archives[1]), 50)
	assert.Equal(t, "batch_002.zip", filepath.Base(summary.Archives[1]))
}

// assertNoBlankPadding fails on lines made only of spaces, which styled
// multi-line strings produce when they start with a newline.
func assertNoBlankPadding(t *testing.T, out string) {
	t.Helper()
	for _, line := range strings.Split(out, "\n") {
		if line != "" {
			assert.NotEmpty(t, strings.TrimSpace(line), "padded blank line in %q", out)
		}
	}
}

func TestExecuteRetriesAfterCrash(t *testing.T) {
	h := newHarness(t, urls(1, 2), newFakeFetcher())
	h.connector.Err = []error{errors.New("connect ECONNREFUSED 127.0.0.1:9222")}

	summary, err := h.sup.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Exported)
	assert.Equal(t, 2, h.connector.Connects())
	assert.Contains(t, h.out.String(), "\nError: connect ECONNREFUSED 127.0.0.1:9222. Retrying 1/1")
	assertNoBlankPadding(t, h.out.String())
	assert.Contains(t, h.logBuf.String(), "run 1 crashed")
}

func TestExecuteResumesAfterLostBrowser(t *testing.T) {
	h := newHarness(t, urls(1, 2, 3), newFakeFetcher())

	lost := errors.New("browser has been closed")
	broken := browsertest.NewSession(func(n int) (*browsertest.Tab, error) {
		if n >= 2 {
			return nil, lost
		}
		return browsertest.NewTab(), nil
	})
	healthy := browsertest.NewSession(func(n int) (*browsertest.Tab, error) { return browsertest.NewTab(), nil })
	h.connector.Sessions = []*browsertest.Session{broken, healthy}

	summary, err := h.sup.Execute(context.Background())
	require.NoError(t, err)

	assert.True(t, broken.Closed())
	assert.Equal(t, 1, summary.Skipped, "item exported before the crash is not fetched again")
	assert.Equal(t, 2, summary.Exported)
	assert.Equal(t, 1, h.fetcher.calls["1"])
}

func TestExecuteGivesUp(t *testing.T) {
	h := newHarness(t, urls(1), newFakeFetcher())
	boom := errors.New("no browser")
	h.connector.Err = []error{boom, boom}

	summary, err := h.sup.Execute(context.Background())
	assert.Nil(t, summary)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, h.connector.Connects())
	assert.Contains(t, h.out.String(), "\nFinal crash: failed to connect to browser: no browser")
	assertNoBlankPadding(t, h.out.String())
}

func TestExecuteDoesNotRetryCancellation(t *testing.T) {
	h := newHarness(t, urls(1, 2), newFakeFetcher())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.sup.Execute(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, h.connector.Connects())
	assert.NotContains(t, h.out.String(), "Retrying")
}

func TestRunWorklistError(t *testing.T) {
	h := newHarness(t, nil, newFakeFetcher())
	h.cfg.Retry.RunRetries = 0
	h.sup.loader = func() ([]worklist.WorkItem, error) { return nil, worklist.ErrColumnNotFound }

	_, err := h.sup.Execute(context.Background())
	assert.ErrorIs(t, err, worklist.ErrColumnNotFound)
	assert.Equal(t, 0, h.connector.Connects())
}

func TestRunWritesReport(t *testing.T) {
	h := newHarness(t, urls(1, 2), newFakeFetcher("2"))
	h.cfg.Output.ReportFile = filepath.Join(t.TempDir(), "reports", "run.json")

	_, err := h.sup.Execute(context.Background())
	require.NoError(t, err)

	data, err := os.ReadFile(h.cfg.Output.ReportFile)
	require.NoError(t, err)

	var report Summary
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 1, report.Exported)
	assert.Equal(t, []string{"2"}, report.Failed)
	assert.Equal(t, 1, report.Packed)
	assert.NotEmpty(t, report.RunID)
}

func TestUnknownIDsShareOutput(t *testing.T) {
	items := []worklist.WorkItem{
		worklist.NewItem("https://app.example.com/inbox/a"),
		worklist.NewItem("https://app.example.com/inbox/b"),
	}
	h := newHarness(t, items, newFakeFetcher())

	summary, err := h.sup.Execute(context.Background())
	require.NoError(t, err)

	// The second item finds unknown.txt already on disk and is skipped.
	assert.Equal(t, 1, summary.Exported)
	assert.Equal(t, 1, summary.Skipped)
	assert.FileExists(t, filepath.Join(h.cfg.Output.DownloadDir, "unknown.txt"))
}

func TestRunStateAdvanceIsCapped(t *testing.T) {
	s := newRunState(1, time.Now())
	s.advance()
	s.advance()
	assert.Equal(t, 1, s.Done)
}
