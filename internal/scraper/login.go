package scraper

import (
	"errors"
	"log"

	"valersync/internal/browser"
)

// Portal selectors. The login surface and records table of the target portal
// are fixed; supporting other portal shapes is out of scope.
const (
	loginFormSelector    = "#login"
	usernameSelector     = "#username"
	passwordSelector     = "#password"
	submitSelector       = "button[type='submit']"
	flashSuccessSelector = ".flash.success"
	flashErrorSelector   = ".flash.error"
)

// login navigates to the login surface and submits the credentials. The
// returned bool is derived solely from the success flash appearing. A wait
// timing out at any step reports a failed login rather than an error; only
// engine-level failures propagate.
func (s *Scraper) login(page browser.Page, username, password string) (bool, error) {
	if err := page.Navigate(s.loginURL); err != nil {
		return false, err
	}

	if err := s.waitReady(page); err != nil {
		return loginOutcome(err)
	}
	if _, err := s.waitPresent(page, loginFormSelector); err != nil {
		return loginOutcome(err)
	}

	if err := s.fillField(page, usernameSelector, username); err != nil {
		return loginOutcome(err)
	}
	if err := s.fillField(page, passwordSelector, password); err != nil {
		return loginOutcome(err)
	}

	submit, err := s.waitVisible(page, submitSelector)
	if err != nil {
		return loginOutcome(err)
	}
	if err := submit.Click(); err != nil {
		return loginOutcome(err)
	}

	// The portal answers with either a success or an error flash; wait for
	// whichever appears, then wait for it to actually be painted.
	selector, err := waitFor("login flash", s.timeout, s.poll, func() (string, error) {
		if _, err := page.Element(flashSuccessSelector); err == nil {
			return flashSuccessSelector, nil
		}
		if _, err := page.Element(flashErrorSelector); err == nil {
			return flashErrorSelector, nil
		}
		return "", errNotYet
	})
	if err != nil {
		return loginOutcome(err)
	}
	if _, err := s.waitVisible(page, selector); err != nil {
		return loginOutcome(err)
	}

	return selector == flashSuccessSelector, nil
}

// fillField waits for the field to be present and interactable (two separate
// conditions; presence alone is not enough on slow-rendering pages), clears
// it and waits for the clear to be observed, then types the value and waits
// for the typed value to read back.
func (s *Scraper) fillField(page browser.Page, selector, value string) error {
	if _, err := s.waitPresent(page, selector); err != nil {
		return err
	}
	field, err := s.waitVisible(page, selector)
	if err != nil {
		return err
	}

	if err := field.Clear(); err != nil {
		return err
	}
	if err := s.waitFieldValue(page, selector, ""); err != nil {
		return err
	}

	if err := field.Input(value); err != nil {
		return err
	}
	return s.waitFieldValue(page, selector, value)
}

// loginOutcome folds a wait error into the login result: timeouts mean the
// login failed, anything else is an engine failure the caller must see.
func loginOutcome(err error) (bool, error) {
	var te *TimeoutError
	if errors.As(err, &te) {
		log.Printf("login wait expired: %v", te)
		return false, nil
	}
	return false, err
}
