// internal/browser/driver/driver.go

// Package driver is the narrow browser-automation surface the harness drives:
// resolve a locator, interact with the resolved element, run scripts, navigate
// and manage tabs. Two engines implement it, chromedp and playwright-go, each
// launched locally or attached to a remote grid.
package driver

import (
	"context"
	"errors"

	"github.com/xkilldash9x/wardrunner/api/schemas"
)

// Sentinel errors that engines map their native failures onto. Callers should
// test for them with errors.Is.
var (
	// ErrStaleElement means a resolved element is no longer attached to the document.
	ErrStaleElement = errors.New("stale element reference")
	// ErrClickIntercepted means another element (an overlay, a toast) would receive the click.
	ErrClickIntercepted = errors.New("element click intercepted")
	// ErrTimeout means a single driver command exceeded its deadline.
	ErrTimeout = errors.New("driver command timed out")
	// ErrNoSuchElement means the locator matched nothing.
	ErrNoSuchElement = errors.New("no such element")
	// ErrNotInteractable means the element exists but is hidden or disabled.
	ErrNotInteractable = errors.New("element not interactable")
	// ErrClosed means the driver has been quit.
	ErrClosed = errors.New("driver is closed")
)

// Element is a live reference to a resolved DOM element. References go stale
// as the page re-renders; callers re-resolve instead of caching them.
type Element interface {
	Locator() schemas.Locator
	Click(ctx context.Context) error
	// ScriptClick invokes the element's click() directly, bypassing hit-testing
	// and visibility checks.
	ScriptClick(ctx context.Context) error
	SendKeys(ctx context.Context, text string) error
	// ScriptSetValue assigns value and dispatches input and change events.
	ScriptSetValue(ctx context.Context, value string) error
	Text(ctx context.Context) (string, error)
	Attribute(ctx context.Context, name string) (string, error)
	Visible(ctx context.Context) (bool, error)
	Enabled(ctx context.Context) (bool, error)
	SelectByText(ctx context.Context, text string) error
	// ScriptSelectByText selects the matching option by assigning selectedIndex.
	ScriptSelectByText(ctx context.Context, text string) error
}

// Driver is one browser connection. All methods are safe to call only from
// the goroutine that owns the session.
type Driver interface {
	// Find resolves loc to the first matching element without waiting for it
	// to appear. It returns ErrNoSuchElement when nothing matches.
	Find(ctx context.Context, loc schemas.Locator) (Element, error)
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	// Evaluate runs script in the current tab and decodes its result into res,
	// which may be nil.
	Evaluate(ctx context.Context, script string, res interface{}) error
	// ReadyState returns document.readyState of the current tab.
	ReadyState(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)

	OpenTab(ctx context.Context, url string) (string, error)
	SwitchTab(ctx context.Context, id string) error
	CloseTab(ctx context.Context, id string) error
	Tabs() []string

	// Quit releases the browser. It is safe to call more than once.
	Quit(ctx context.Context) error
}
