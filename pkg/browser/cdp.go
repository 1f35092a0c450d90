package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/playwright-community/playwright-go"
)

// CDPConnector attaches to an already running Chrome over its
// remote-debugging endpoint.
type CDPConnector struct {
	// Endpoint is the remote-debugging URL, e.g. http://localhost:9222
	Endpoint string

	// InstallDriver installs the Playwright driver before starting it
	InstallDriver bool
}

// NewCDPConnector creates a connector for endpoint.
func NewCDPConnector(endpoint string, installDriver bool) *CDPConnector {
	return &CDPConnector{
		Endpoint:      endpoint,
		InstallDriver: installDriver,
	}
}

// Connect starts the Playwright driver, connects to the endpoint and picks
// the browser's first context.
func (c *CDPConnector) Connect(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Keep driver output off the terminal, the progress line owns it
	opts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}

	if c.InstallDriver {
		if err := playwright.Install(opts); err != nil {
			return nil, fmt.Errorf("failed to install playwright: %w", err)
		}
	}

	pw, err := playwright.Run(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	browser, err := pw.Chromium.ConnectOverCDP(c.Endpoint)
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to connect to %s: %w", c.Endpoint, err)
	}

	contexts := browser.Contexts()
	if len(contexts) == 0 {
		_ = browser.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("%s: %w", c.Endpoint, ErrNoContext)
	}

	return &cdpSession{
		playwright: pw,
		browser:    browser,
		context:    contexts[0],
	}, nil
}

type cdpSession struct {
	playwright *playwright.Playwright
	browser    playwright.Browser
	context    playwright.BrowserContext
}

func (s *cdpSession) NewTab() (Tab, error) {
	page, err := s.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}
	return &pageTab{page: page}, nil
}

// Close disconnects from the browser and stops the driver. The remote
// browser and the user's context stay alive.
func (s *cdpSession) Close() error {
	var errs []error
	if err := s.browser.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to disconnect browser: %w", err))
	}
	if err := s.playwright.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
	}
	return errors.Join(errs...)
}

// pageTab adapts a Playwright page to Tab.
type pageTab struct {
	page playwright.Page
}

func (t *pageTab) Navigate(url string, timeout time.Duration) error {
	_, err := t.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   milliseconds(timeout),
	})
	return wrapError("navigation failed", err)
}

func (t *pageTab) Click(selector string, timeout time.Duration) error {
	err := t.page.Click(selector, playwright.PageClickOptions{
		Timeout: milliseconds(timeout),
	})
	return wrapError("click failed", err)
}

func (t *pageTab) WaitForSelector(selector string, timeout time.Duration) error {
	_, err := t.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: milliseconds(timeout),
	})
	return wrapError("wait failed", err)
}

func (t *pageTab) ExpectDownload(action func() error, timeout time.Duration) (Download, error) {
	dl, err := t.page.ExpectDownload(action, playwright.PageExpectDownloadOptions{
		Timeout: milliseconds(timeout),
	})
	if err != nil {
		return nil, wrapError("download failed", err)
	}
	return &pageDownload{download: dl}, nil
}

func (t *pageTab) Screenshot(path string) error {
	_, err := t.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	})
	return wrapError("screenshot failed", err)
}

func (t *pageTab) Content() (string, error) {
	html, err := t.page.Content()
	if err != nil {
		return "", wrapError("content failed", err)
	}
	return html, nil
}

func (t *pageTab) URL() string {
	return t.page.URL()
}

func (t *pageTab) Close() error {
	return wrapError("close failed", t.page.Close())
}

type pageDownload struct {
	download playwright.Download
}

// Bytes waits for the download to finish and reads the temporary file
// Playwright stored it in.
func (d *pageDownload) Bytes() ([]byte, error) {
	path, err := d.download.Path()
	if err != nil {
		return nil, wrapError("download path unavailable", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read download: %w", err)
	}
	return data, nil
}

// wrapError prefixes err with op and tags Playwright timeouts with ErrTimeout.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%s: %w: %w", op, ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func milliseconds(d time.Duration) *float64 {
	return playwright.Float(float64(d) / float64(time.Millisecond))
}
