// Package browsertest provides scriptable in-memory implementations of the
// browser interfaces for tests.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/entrhq/convoexport/pkg/browser"
)

// Tab is a fake browser.Tab. Selectors listed in Present can be clicked and
// waited for; any other selector times out.
type Tab struct {
	mu sync.Mutex

	Present map[string]bool

	NavigateErr   error
	DownloadData  []byte
	DownloadErr   error
	HTML          string
	ContentErr    error
	ScreenshotErr error
	CloseErr      error

	calls  []string
	closed bool
	url    string
}

// NewTab returns a tab on which every selector in present matches.
func NewTab(present ...string) *Tab {
	t := &Tab{Present: make(map[string]bool), HTML: "<html><head><title>Inbox</title></head><body></body></html>"}
	for _, sel := range present {
		t.Present[sel] = true
	}
	return t
}

func (t *Tab) record(call string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, call)
}

func (t *Tab) matches(selector string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Present[selector]
}

// Calls returns every primitive invoked on the tab, in order.
func (t *Tab) Calls() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.calls...)
}

// Closed reports whether Close was called.
func (t *Tab) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *Tab) Navigate(url string, timeout time.Duration) error {
	t.record("navigate " + url)
	if t.NavigateErr != nil {
		return t.NavigateErr
	}
	t.mu.Lock()
	t.url = url
	t.mu.Unlock()
	return nil
}

func (t *Tab) Click(selector string, timeout time.Duration) error {
	t.record("click " + selector)
	if !t.matches(selector) {
		return fmt.Errorf("click failed: %w", browser.ErrTimeout)
	}
	return nil
}

func (t *Tab) WaitForSelector(selector string, timeout time.Duration) error {
	t.record("wait " + selector)
	if !t.matches(selector) {
		return fmt.Errorf("wait failed: %w", browser.ErrTimeout)
	}
	return nil
}

func (t *Tab) ExpectDownload(action func() error, timeout time.Duration) (browser.Download, error) {
	t.record("expect-download")
	if err := action(); err != nil {
		return nil, err
	}
	if t.DownloadErr != nil {
		return nil, t.DownloadErr
	}
	return &Download{Data: t.DownloadData}, nil
}

// Screenshot writes a placeholder file so callers can check it exists.
func (t *Tab) Screenshot(path string) error {
	t.record("screenshot " + path)
	if t.ScreenshotErr != nil {
		return t.ScreenshotErr
	}
	return os.WriteFile(path, []byte("\x89PNG"), 0644)
}

func (t *Tab) Content() (string, error) {
	t.record("content")
	if t.ContentErr != nil {
		return "", t.ContentErr
	}
	return t.HTML, nil
}

func (t *Tab) URL() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.url
}

func (t *Tab) Close() error {
	t.record("close")
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return t.CloseErr
}

// Download is a fake browser.Download.
type Download struct {
	Data []byte
	Err  error
}

func (d *Download) Bytes() ([]byte, error) {
	if d.Err != nil {
		return nil, d.Err
	}
	return d.Data, nil
}

// ErrSessionClosed is returned by NewTab once the session has been closed.
var ErrSessionClosed = errors.New("session closed")

// Session is a fake browser.Session. Factory builds the n-th tab (1-based);
// tabs handed out are kept for inspection.
type Session struct {
	mu      sync.Mutex
	Factory func(n int) (*Tab, error)
	tabs    []*Tab
	closed  bool
}

// NewSession returns a session whose tabs come from factory.
func NewSession(factory func(n int) (*Tab, error)) *Session {
	return &Session{Factory: factory}
}

func (s *Session) NewTab() (browser.Tab, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	tab, err := s.Factory(len(s.tabs) + 1)
	if err != nil {
		return nil, err
	}
	s.tabs = append(s.tabs, tab)
	return tab, nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Tabs returns every tab opened so far.
func (s *Session) Tabs() []*Tab {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Tab(nil), s.tabs...)
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Connector is a fake browser.Connector handing out Sessions in order.
// Once the list is exhausted the last session is reused.
type Connector struct {
	mu       sync.Mutex
	Sessions []*Session
	Err      []error
	connects int
}

// Connects returns how many times Connect was called.
func (c *Connector) Connects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connects
}

// Connect returns the next scripted session, or the scripted error for this
// call if there is one.
func (c *Connector) Connect(ctx context.Context) (browser.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.connects
	c.connects++

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if i < len(c.Err) && c.Err[i] != nil {
		return nil, c.Err[i]
	}
	if len(c.Sessions) == 0 {
		return nil, errors.New("no session scripted")
	}
	if i >= len(c.Sessions) {
		i = len(c.Sessions) - 1
	}
	return c.Sessions[i], nil
}
