package browser

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTimeout marks a bounded wait (navigation, selector, download) that ran out.
	ErrTimeout = errors.New("timeout")

	// ErrNoContext is returned when the remote browser exposes no context to reuse.
	ErrNoContext = errors.New("remote browser has no open context")
)

// Connector opens a Session on a browser.
type Connector interface {
	Connect(ctx context.Context) (Session, error)
}

// Session is a live connection to one browser context.
type Session interface {
	// NewTab opens a fresh page in the shared context
	NewTab() (Tab, error)

	// Close releases the connection. It does not quit the remote browser.
	Close() error
}

// Tab is a single page of the browser.
type Tab interface {
	// Navigate loads url and returns once the DOM has been constructed
	Navigate(url string, timeout time.Duration) error

	// Click clicks the first element matching selector
	Click(selector string, timeout time.Duration) error

	// WaitForSelector waits until an element matching selector is attached and visible
	WaitForSelector(selector string, timeout time.Duration) error

	// ExpectDownload runs action and waits for the download it triggers
	ExpectDownload(action func() error, timeout time.Duration) (Download, error)

	// Screenshot writes a full-page PNG to path
	Screenshot(path string) error

	// Content returns the current HTML of the page
	Content() (string, error)

	// URL returns the current page URL
	URL() string

	// Close closes the page
	Close() error
}

// Download is a file the browser finished downloading.
type Download interface {
	// Bytes reads the whole downloaded file
	Bytes() ([]byte, error)
}
