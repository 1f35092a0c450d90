package export

import (
	"errors"
	"fmt"
)

// ErrNoSelectorMatched is returned when every selector of a Locator missed.
var ErrNoSelectorMatched = errors.New("no selector matched")

// Step identifies the part of the UI sequence an interaction failed in.
type Step string

const (
	StepOpenTab  Step = "open_tab"
	StepNavigate Step = "navigate"
	StepOpenMenu Step = "open_menu"
	StepPopover  Step = "wait_popover"
	StepExport   Step = "export"
	StepDownload Step = "download"
	StepSave     Step = "save"
)

// InteractionError is the failure of one export attempt for one item.
type InteractionError struct {
	ItemID string
	URL    string
	Step   Step
	Err    error
}

func (e *InteractionError) Error() string {
	return fmt.Sprintf("%s: %s failed: %v", e.ItemID, e.Step, e.Err)
}

func (e *InteractionError) Unwrap() error {
	return e.Err
}
