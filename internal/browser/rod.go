package browser

import (
	"errors"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// rodEngine drives a headless Chromium through rod.
type rodEngine struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
}

// Launch starts a Chromium process and connects to it.
func Launch(headless bool) (Engine, error) {
	l := launcher.New().
		Headless(headless).
		NoSandbox(true).
		Set("disable-gpu").
		Set("window-size", "1920,1080")

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launching browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("connecting to browser: %w", err)
	}

	return &rodEngine{browser: b, launcher: l}, nil
}

func (e *rodEngine) NewPage() (Page, error) {
	p, err := e.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("opening page: %w", err)
	}
	return &rodPage{page: p}, nil
}

func (e *rodEngine) Close() error {
	err := e.browser.Close()
	e.launcher.Cleanup()
	return err
}

type rodPage struct {
	page *rod.Page
}

func (p *rodPage) Navigate(url string) error {
	if err := p.page.Navigate(url); err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}
	return nil
}

func (p *rodPage) ReadyState() (string, error) {
	obj, err := p.page.Eval("() => document.readyState")
	if err != nil {
		return "", mapRodError(err)
	}
	return obj.Value.Str(), nil
}

func (p *rodPage) Element(selector string) (Element, error) {
	has, el, err := p.page.Has(selector)
	if err != nil {
		return nil, mapRodError(err)
	}
	if !has {
		return nil, ErrNoSuchElement
	}
	return &rodElement{el: el}, nil
}

func (p *rodPage) Elements(selector string) ([]Element, error) {
	els, err := p.page.Elements(selector)
	if err != nil {
		return nil, mapRodError(err)
	}
	out := make([]Element, len(els))
	for i, el := range els {
		out[i] = &rodElement{el: el}
	}
	return out, nil
}

func (p *rodPage) Close() error {
	return p.page.Close()
}

type rodElement struct {
	el *rod.Element
}

func (e *rodElement) Text() (string, error) {
	text, err := e.el.Text()
	if err != nil {
		return "", mapRodError(err)
	}
	return text, nil
}

func (e *rodElement) Value() (string, error) {
	v, err := e.el.Property("value")
	if err != nil {
		return "", mapRodError(err)
	}
	return v.Str(), nil
}

func (e *rodElement) Visible() (bool, error) {
	visible, err := e.el.Visible()
	if err != nil {
		return false, mapRodError(err)
	}
	return visible, nil
}

func (e *rodElement) Click() error {
	if err := e.el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return mapRodError(err)
	}
	return nil
}

func (e *rodElement) Clear() error {
	if _, err := e.el.Eval(`() => { this.value = "" }`); err != nil {
		return mapRodError(err)
	}
	return nil
}

func (e *rodElement) Input(text string) error {
	if err := e.el.Input(text); err != nil {
		return mapRodError(err)
	}
	return nil
}

func (e *rodElement) Elements(selector string) ([]Element, error) {
	els, err := e.el.Elements(selector)
	if err != nil {
		return nil, mapRodError(err)
	}
	out := make([]Element, len(els))
	for i, el := range els {
		out[i] = &rodElement{el: el}
	}
	return out, nil
}

// mapRodError translates rod's error types into the package sentinels so
// callers can classify without importing rod.
func mapRodError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, &rod.ObjectNotFoundError{}),
		errors.Is(err, cdp.ErrObjNotFound),
		errors.Is(err, cdp.ErrCtxNotFound),
		errors.Is(err, cdp.ErrCtxDestroyed):
		// The node detached between locating and using it.
		return fmt.Errorf("%w: %v", ErrStale, err)
	case errors.Is(err, &rod.ElementNotFoundError{}):
		return fmt.Errorf("%w: %v", ErrNoSuchElement, err)
	case errors.Is(err, &rod.NotInteractableError{}),
		errors.Is(err, &rod.InvisibleShapeError{}),
		errors.Is(err, &rod.CoveredError{}):
		return fmt.Errorf("%w: %v", ErrNotInteractable, err)
	}
	return err
}
