// Package worklist turns the exported spreadsheet of conversation links into
// the ordered list of items the supervisor works through.
package worklist

import "regexp"

// UnknownID is assigned to every URL that carries no conversation id.
// Items sharing it are not deduplicated and write to the same output path.
const UnknownID = "unknown"

var conversationID = regexp.MustCompile(`/conversation/(\d+)`)

// WorkItem is one conversation to export.
type WorkItem struct {
	URL string
	ID  string
}

// NewItem builds a WorkItem, deriving its ID from url.
func NewItem(url string) WorkItem {
	return WorkItem{URL: url, ID: ExtractID(url)}
}

// ExtractID returns the numeric conversation id embedded in url, or UnknownID.
func ExtractID(url string) string {
	if m := conversationID.FindStringSubmatch(url); len(m) > 1 {
		return m[1]
	}
	return UnknownID
}
