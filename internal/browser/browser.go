// Package browser abstracts the browser engine behind small interfaces so the
// scraper never touches the engine directly and tests can substitute a fake
// page. The production implementation drives a headless Chromium via rod.
package browser

import "errors"

// ErrNoSuchElement is returned when a selector matches nothing right now.
var ErrNoSuchElement = errors.New("no such element")

// ErrStale is returned when an element reference was valid at lookup time
// but its DOM node detached before use.
var ErrStale = errors.New("stale element reference")

// ErrNotInteractable is returned when an element exists but cannot yet
// receive clicks or keystrokes.
var ErrNotInteractable = errors.New("element not interactable")

// IsTransient reports whether err is a page-state condition that polling
// again may resolve, as opposed to a real engine failure.
func IsTransient(err error) bool {
	return errors.Is(err, ErrNoSuchElement) ||
		errors.Is(err, ErrStale) ||
		errors.Is(err, ErrNotInteractable)
}

// Engine owns a browser process. Acquire one per extraction run and Close it
// on every exit path.
type Engine interface {
	NewPage() (Page, error)
	Close() error
}

// Page is one browser tab.
type Page interface {
	Navigate(url string) error
	ReadyState() (string, error)
	// Element returns the first match for a CSS selector without waiting;
	// ErrNoSuchElement when nothing matches yet.
	Element(selector string) (Element, error)
	// Elements returns all current matches without waiting. An empty slice
	// is not an error.
	Elements(selector string) ([]Element, error)
	Close() error
}

// Element is a handle to a located DOM node. Any method may fail with
// ErrStale once the node detaches.
type Element interface {
	Text() (string, error)
	Value() (string, error)
	Visible() (bool, error)
	Click() error
	Clear() error
	Input(text string) error
	Elements(selector string) ([]Element, error)
}
