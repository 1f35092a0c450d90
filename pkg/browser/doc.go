// Package browser is the control channel to the remote Chrome instance the
// exporter drives.
//
// The exporter never launches a browser of its own. The user starts Chrome
// with remote debugging enabled and signs into the web app by hand:
//
//	chrome --remote-debugging-port=9222
//
// CDPConnector then attaches to that instance through Playwright and reuses
// its first browser context, so every tab opened by the exporter shares the
// user's authenticated cookies.
//
// # Primitives
//
// The rest of the module only depends on the Session and Tab interfaces,
// which expose the small capability set an export needs:
//
//   - open and close a tab
//   - navigate (waiting for DOMContentLoaded only)
//   - click the element matching a selector
//   - wait for a selector to appear
//   - wait for the download triggered by an action and read its bytes
//   - full-page screenshot and page HTML for diagnostics
//
// Every bounded wait that runs out is reported as an error wrapping
// ErrTimeout, whatever automation layer sits underneath.
package browser
