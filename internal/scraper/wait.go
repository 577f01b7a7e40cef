package scraper

import (
	"errors"
	"fmt"
	"time"

	"valersync/internal/browser"
)

// errNotYet signals that a polled condition is not satisfied yet. Predicates
// return it (or a transient browser error) to keep the wait loop going.
var errNotYet = errors.New("condition not yet satisfied")

// TimeoutError is returned when a wait expires. Last carries the reason the
// final poll failed, which is usually the interesting part.
type TimeoutError struct {
	What    string
	Timeout time.Duration
	Last    error
}

func (e *TimeoutError) Error() string {
	if e.Last != nil {
		return fmt.Sprintf("timed out after %s waiting for %s: %v", e.Timeout, e.What, e.Last)
	}
	return fmt.Sprintf("timed out after %s waiting for %s", e.Timeout, e.What)
}

func (e *TimeoutError) Unwrap() error { return e.Last }

// waitFor polls fn until it succeeds or timeout elapses. A transient browser
// error (element missing, stale, not interactable) or errNotYet counts as
// "not yet satisfied" and is retried; any other error aborts immediately.
// This is the single chokepoint for reads of possibly-unrendered page state.
func waitFor[T any](what string, timeout, interval time.Duration, fn func() (T, error)) (T, error) {
	deadline := time.Now().Add(timeout)
	var last error
	for {
		v, err := fn()
		if err == nil {
			return v, nil
		}
		if !retryable(err) {
			var zero T
			return zero, err
		}
		last = err
		if time.Now().After(deadline) {
			break
		}
		time.Sleep(interval)
	}
	var zero T
	return zero, &TimeoutError{What: what, Timeout: timeout, Last: last}
}

func retryable(err error) bool {
	return errors.Is(err, errNotYet) || browser.IsTransient(err)
}

// waitReady blocks until document.readyState reports "complete".
func (s *Scraper) waitReady(page browser.Page) error {
	_, err := waitFor("document ready", s.timeout, s.poll, func() (string, error) {
		state, err := page.ReadyState()
		if err != nil {
			return "", err
		}
		if state != "complete" {
			return "", errNotYet
		}
		return state, nil
	})
	return err
}

// waitPresent blocks until selector matches an element.
func (s *Scraper) waitPresent(page browser.Page, selector string) (browser.Element, error) {
	return waitFor(selector, s.timeout, s.poll, func() (browser.Element, error) {
		return page.Element(selector)
	})
}

// waitVisible blocks until selector matches an element that is painted, which
// is a stronger condition than presence: a node can sit in the layout tree
// before it is rendered. The element is re-located on every poll so a handle
// going stale mid-wait just means another round.
func (s *Scraper) waitVisible(page browser.Page, selector string) (browser.Element, error) {
	return waitFor(selector+" visible", s.timeout, s.poll, func() (browser.Element, error) {
		el, err := page.Element(selector)
		if err != nil {
			return nil, err
		}
		visible, err := el.Visible()
		if err != nil {
			return nil, err
		}
		if !visible {
			return nil, errNotYet
		}
		return el, nil
	})
}

// waitFieldValue blocks until the form field matching selector reads back
// exactly want, confirming the browser observed a clear or typed input.
func (s *Scraper) waitFieldValue(page browser.Page, selector, want string) error {
	_, err := waitFor(selector+" value", s.timeout, s.poll, func() (string, error) {
		el, err := page.Element(selector)
		if err != nil {
			return "", err
		}
		value, err := el.Value()
		if err != nil {
			return "", err
		}
		if value != want {
			return "", errNotYet
		}
		return value, nil
	})
	return err
}
