// Package browser defines the narrow browser-automation boundary the rest of
// ridewire drives, and the per-uid session pool built on top of it.
//
// Auth and booking code depend only on the interfaces here; the production
// implementation wraps Playwright, and tests substitute a scripted fake from
// the browsertest subpackage.
package browser

import "time"

// LaunchOptions configures a new browser process.
type LaunchOptions struct {
	// Headless controls whether the browser runs without a visible window.
	Headless bool
}

// NavigateOptions configures page navigation behavior.
type NavigateOptions struct {
	// WaitUntil specifies when to consider navigation successful.
	// Valid values: "load", "domcontentloaded", "networkidle"
	WaitUntil string

	// Timeout bounds the navigation (0 means driver default).
	Timeout time.Duration
}

// Driver owns the shared browser-automation runtime.
type Driver interface {
	// Launch starts a new browser process.
	Launch(opts LaunchOptions) (Browser, error)

	// Stop releases the shared runtime. No browsers may be launched after.
	Stop() error
}

// Browser is a running browser process.
type Browser interface {
	// NewContext creates an isolated context, optionally seeded from a
	// previously exported session state blob. The blob is opaque to
	// callers; nil means a fresh context.
	NewContext(sessionState []byte) (Context, error)

	Close() error
}

// Context is an isolated cookie/storage scope within a browser.
type Context interface {
	NewPage() (Page, error)

	// ExportState serializes the context's cookies and storage into an
	// opaque blob suitable for NewContext.
	ExportState() ([]byte, error)

	Close() error
}

// Page is a single browser tab.
type Page interface {
	Navigate(url string, opts NavigateOptions) error
	Reload(opts NavigateOptions) error
	URL() string

	// Query returns the first element matching the selector, or (nil, nil)
	// when no element matches. Errors are reserved for a broken page or
	// disconnected driver.
	Query(selector string) (Element, error)

	// QueryAll returns every element matching the selector.
	QueryAll(selector string) ([]Element, error)

	// WaitFor blocks until an element matching the selector appears, or
	// the timeout elapses (returned as an error).
	WaitFor(selector string, timeout time.Duration) (Element, error)

	// WaitForLoad blocks until the given load state ("load",
	// "domcontentloaded", "networkidle") is reached or the timeout elapses.
	WaitForLoad(state string, timeout time.Duration) error

	// TextContent returns the text content of the first element matching
	// the selector.
	TextContent(selector string) (string, error)

	// InnerHTML returns the inner HTML of the first element matching the
	// selector.
	InnerHTML(selector string) (string, error)

	Screenshot(path string) error
	IsClosed() bool
	Close() error
}

// Element is a handle to a single page element.
type Element interface {
	IsVisible() (bool, error)

	// Click dispatches a direct click on the element, bypassing
	// hover-dependent interaction so overlays cannot swallow it.
	Click() error

	Fill(value string) error
	TextContent() (string, error)
}
