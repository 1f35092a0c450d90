package export

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/entrhq/convoexport/pkg/browser"
)

// Locator is an ordered list of alternative selectors for one UI element,
// most specific first. The markup of the target app drifts between
// releases, so several generations of selectors are kept side by side.
type Locator []string

// Click clicks the first selector that matches within timeout and returns
// it. Only timeouts move on to the next selector; any other error aborts.
func (l Locator) Click(tab browser.Tab, timeout time.Duration) (string, error) {
	for _, sel := range l {
		err := tab.Click(sel, timeout)
		if err == nil {
			return sel, nil
		}
		if !errors.Is(err, browser.ErrTimeout) {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNoSelectorMatched, strings.Join(l, " | "))
}
