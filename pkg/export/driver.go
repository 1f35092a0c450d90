// Package export drives the web app through the "export conversation" UI
// sequence and turns each successful download into a transcript file.
package export

import (
	"context"
	"time"

	"github.com/entrhq/convoexport/pkg/browser"
	"github.com/entrhq/convoexport/pkg/config"
	"github.com/entrhq/convoexport/pkg/worklist"
)

// Fetcher performs one export interaction on a tab.
type Fetcher interface {
	Fetch(ctx context.Context, tab browser.Tab, item worklist.WorkItem) ([]byte, error)
}

// Driver runs the UI sequence: open the conversation, open its action menu,
// wait for the popover, click export and collect the downloaded file.
type Driver struct {
	menu     Locator
	popover  string
	export   Locator
	timeouts config.TimeoutConfig
}

// NewDriver creates a driver from the configured selectors and timeouts.
func NewDriver(selectors config.SelectorConfig, timeouts config.TimeoutConfig) *Driver {
	return &Driver{
		menu:     Locator(selectors.Menu),
		popover:  selectors.Popover,
		export:   Locator(selectors.Export),
		timeouts: timeouts,
	}
}

// Fetch returns the exported transcript of item. It never touches the
// filesystem; every failure is an *InteractionError.
func (d *Driver) Fetch(ctx context.Context, tab browser.Tab, item worklist.WorkItem) ([]byte, error) {
	fail := func(step Step, err error) error {
		return &InteractionError{ItemID: item.ID, URL: item.URL, Step: step, Err: err}
	}

	if err := tab.Navigate(item.URL, d.timeouts.Navigation); err != nil {
		return nil, fail(StepNavigate, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fail(StepNavigate, err)
	}

	if _, err := d.menu.Click(tab, d.timeouts.MenuClick); err != nil {
		return nil, fail(StepOpenMenu, err)
	}

	if err := tab.WaitForSelector(d.popover, d.timeouts.Popover); err != nil {
		return nil, fail(StepPopover, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fail(StepPopover, err)
	}

	// The download listener is armed before the click so a fast download
	// cannot fire unobserved.
	var clickErr error
	dl, err := tab.ExpectDownload(func() error {
		_, clickErr = d.export.Click(tab, d.timeouts.ExportClick)
		return clickErr
	}, d.timeouts.Download)
	if clickErr != nil {
		return nil, fail(StepExport, clickErr)
	}
	if err != nil {
		return nil, fail(StepDownload, err)
	}

	data, err := dl.Bytes()
	if err != nil {
		return nil, fail(StepDownload, err)
	}
	return data, nil
}

// AttemptBudget is the longest a single attempt can wait on the browser.
func (d *Driver) AttemptBudget() time.Duration {
	t := d.timeouts
	return t.Navigation + time.Duration(len(d.menu))*t.MenuClick + t.Popover +
		time.Duration(len(d.export))*t.ExportClick + t.Download
}
