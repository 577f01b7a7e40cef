// Package scraper extracts authorization records from the portal through a
// browser engine. Every page read goes through a bounded polling wait, so the
// whole extraction is bounded by the sum of its step timeouts.
package scraper

import (
	"errors"
	"fmt"
	"log"
	"time"

	"valersync/internal/browser"
	"valersync/internal/config"
)

// StatusPending is the status every freshly scraped record carries.
const StatusPending = "Pending"

// ErrAuthFailed reports that the portal rejected the credentials; the session
// fails fast without attempting extraction.
var ErrAuthFailed = errors.New("portal authentication failed")

// Record is one extracted authorization. It is transient scrape output with
// no persistence knowledge.
type Record struct {
	PatientName string
	AuthNumber  string
	Status      string
}

// Scraper runs the login-then-extract workflow against the portal. It owns
// the browser engine per run: acquired on entry, released on every exit path.
type Scraper struct {
	launch     func() (browser.Engine, error)
	loginURL   string
	recordsURL string
	timeout    time.Duration
	rowTimeout time.Duration
	poll       time.Duration
	progress   func(string)
}

// New creates a scraper that launches a headless browser per run.
func New(cfg *config.Config) *Scraper {
	timeout := time.Duration(cfg.Browser.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	headless := cfg.Browser.Headless
	return &Scraper{
		launch:     func() (browser.Engine, error) { return browser.Launch(headless) },
		loginURL:   cfg.Portal.LoginURL,
		recordsURL: cfg.Portal.RecordsURL,
		timeout:    timeout,
		rowTimeout: timeout / 6,
		poll:       250 * time.Millisecond,
	}
}

// SetProgress registers a callback invoked at workflow milestones.
func (s *Scraper) SetProgress(fn func(string)) {
	s.progress = fn
}

// RunFullExtraction logs in and extracts all authorization rows. Engine
// acquisition failures and extraction timeouts propagate; a rejected login
// returns ErrAuthFailed. The engine handle never escapes this method and is
// released on every exit path; a release failure is logged, not propagated.
func (s *Scraper) RunFullExtraction(username, password string) ([]Record, error) {
	if username == "" || password == "" {
		return nil, errors.New("username and password are required")
	}

	s.report("Launching browser...")
	engine, err := s.launch()
	if err != nil {
		return nil, fmt.Errorf("acquiring browser engine: %w", err)
	}
	defer func() {
		if err := engine.Close(); err != nil {
			log.Printf("error releasing browser engine: %v", err)
		}
	}()

	page, err := engine.NewPage()
	if err != nil {
		return nil, fmt.Errorf("opening page: %w", err)
	}

	s.report("Logging in to portal...")
	ok, err := s.login(page, username, password)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if !ok {
		return nil, ErrAuthFailed
	}

	s.report("Extracting authorization records...")
	if err := page.Navigate(s.recordsURL); err != nil {
		return nil, err
	}
	records, err := s.extractRows(page)
	if err != nil {
		return nil, fmt.Errorf("extracting rows: %w", err)
	}
	return records, nil
}

func (s *Scraper) report(msg string) {
	log.Println(msg)
	if s.progress != nil {
		s.progress(msg)
	}
}
