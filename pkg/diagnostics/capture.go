// Package diagnostics captures what a failed export attempt left on screen,
// so a human can later see why the UI did not cooperate.
package diagnostics

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/entrhq/convoexport/pkg/browser"
	"golang.org/x/net/html"
)

// Snapshot describes the files written for one failed item.
type Snapshot struct {
	HTMLPath       string
	ScreenshotPath string

	// Title is the <title> of the captured page, empty if none
	Title string

	// LoginRequired is set when the page shows a password field, which
	// usually means the browser session has expired
	LoginRequired bool
}

// Paths returns where the snapshot of item id is written inside dir.
func Paths(dir, id string) (htmlPath, screenshotPath string) {
	return filepath.Join(dir, fmt.Sprintf("fail_%s.html", id)),
		filepath.Join(dir, fmt.Sprintf("fail_%s.png", id))
}

// Capture writes fail_{id}.html and fail_{id}.png for tab into dir.
//
// It is best effort: both files are attempted even if one fails, and the
// returned error joins every failure. The snapshot reports what was written.
func Capture(tab browser.Tab, dir, id string) (*Snapshot, error) {
	htmlPath, pngPath := Paths(dir, id)
	snap := &Snapshot{}
	var errs []error

	content, err := tab.Content()
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to read page content: %w", err))
	} else {
		// Pages can carry broken surrogates from emoji; keep the file valid UTF-8
		content = strings.ToValidUTF8(content, "�")
		if err := os.WriteFile(htmlPath, []byte(content), 0644); err != nil {
			errs = append(errs, fmt.Errorf("failed to write html snapshot: %w", err))
		} else {
			snap.HTMLPath = htmlPath
			snap.Title, snap.LoginRequired = inspect(content)
		}
	}

	if err := tab.Screenshot(pngPath); err != nil {
		errs = append(errs, fmt.Errorf("failed to take screenshot: %w", err))
	} else {
		snap.ScreenshotPath = pngPath
	}

	return snap, errors.Join(errs...)
}

// inspect extracts the page title and looks for a password input.
func inspect(rawHTML string) (title string, loginRequired bool) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return "", false
	}

	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if title == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
			case "input":
				for _, attr := range n.Attr {
					if attr.Key == "type" && strings.EqualFold(attr.Val, "password") {
						loginRequired = true
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(doc)
	return title, loginRequired
}
