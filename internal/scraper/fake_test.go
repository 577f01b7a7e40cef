package scraper

import (
	"time"

	"valersync/internal/browser"
)

// fakeElement is an in-memory stand-in for a DOM node. A stale element fails
// every operation with browser.ErrStale, mimicking a detached node.
type fakeElement struct {
	text    string
	value   string
	visible bool
	stale   bool
	cells   []browser.Element
	onClick func()
	reads   int
}

func (e *fakeElement) Text() (string, error) {
	e.reads++
	if e.stale {
		return "", browser.ErrStale
	}
	return e.text, nil
}

func (e *fakeElement) Value() (string, error) {
	if e.stale {
		return "", browser.ErrStale
	}
	return e.value, nil
}

func (e *fakeElement) Visible() (bool, error) {
	if e.stale {
		return false, browser.ErrStale
	}
	return e.visible, nil
}

func (e *fakeElement) Click() error {
	if e.stale {
		return browser.ErrStale
	}
	if e.onClick != nil {
		e.onClick()
	}
	return nil
}

func (e *fakeElement) Clear() error {
	if e.stale {
		return browser.ErrStale
	}
	e.value = ""
	return nil
}

func (e *fakeElement) Input(text string) error {
	if e.stale {
		return browser.ErrStale
	}
	e.value += text
	return nil
}

func (e *fakeElement) Elements(string) ([]browser.Element, error) {
	e.reads++
	if e.stale {
		return nil, browser.ErrStale
	}
	return e.cells, nil
}

// fakePage serves elements from a mutable selector map; row queries go
// through an optional rows func so tests can vary what a re-fetch returns.
type fakePage struct {
	url        string
	ready      string
	els        map[string]*fakeElement
	rows       func() ([]browser.Element, error)
	rowFetches int
}

func newFakePage() *fakePage {
	return &fakePage{ready: "complete", els: make(map[string]*fakeElement)}
}

func (p *fakePage) Navigate(url string) error {
	p.url = url
	return nil
}

func (p *fakePage) ReadyState() (string, error) {
	return p.ready, nil
}

func (p *fakePage) Element(selector string) (browser.Element, error) {
	el, ok := p.els[selector]
	if !ok {
		return nil, browser.ErrNoSuchElement
	}
	return el, nil
}

func (p *fakePage) Elements(selector string) ([]browser.Element, error) {
	if selector == rowSelector && p.rows != nil {
		p.rowFetches++
		return p.rows()
	}
	if el, ok := p.els[selector]; ok {
		return []browser.Element{el}, nil
	}
	return nil, nil
}

func (p *fakePage) Close() error { return nil }

type fakeEngine struct {
	page     *fakePage
	pageErr  error
	closed   bool
	closeErr error
}

func (e *fakeEngine) NewPage() (browser.Page, error) {
	if e.pageErr != nil {
		return nil, e.pageErr
	}
	return e.page, nil
}

func (e *fakeEngine) Close() error {
	e.closed = true
	return e.closeErr
}

// withLoginForm adds the portal login surface. Clicking submit shows the
// success or error flash, like the real portal does.
func (p *fakePage) withLoginForm(accept bool) *fakePage {
	p.els[loginFormSelector] = &fakeElement{visible: true}
	p.els[usernameSelector] = &fakeElement{visible: true}
	p.els[passwordSelector] = &fakeElement{visible: true}
	p.els[submitSelector] = &fakeElement{visible: true, onClick: func() {
		if accept {
			p.els[flashSuccessSelector] = &fakeElement{visible: true, text: "You logged into a secure area!"}
		} else {
			p.els[flashErrorSelector] = &fakeElement{visible: true, text: "Your username is invalid!"}
		}
	}}
	return p
}

// withTable adds the records table backed by the given rows.
func (p *fakePage) withTable(rows ...browser.Element) *fakePage {
	p.els[tableSelector] = &fakeElement{visible: true}
	p.els[tableBodySelector] = &fakeElement{visible: true}
	p.rows = func() ([]browser.Element, error) { return rows, nil }
	return p
}

func tableRow(cells ...string) *fakeElement {
	row := &fakeElement{visible: true}
	for _, text := range cells {
		row.cells = append(row.cells, &fakeElement{visible: true, text: text})
	}
	return row
}

func newTestScraper(engine browser.Engine) *Scraper {
	return &Scraper{
		launch:     func() (browser.Engine, error) { return engine, nil },
		loginURL:   "http://portal.test/login",
		recordsURL: "http://portal.test/tables",
		timeout:    200 * time.Millisecond,
		rowTimeout: 40 * time.Millisecond,
		poll:       time.Millisecond,
	}
}
