// internal/browser/driver/playwright.go
package driver

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/playwright-community/playwright-go"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wardrunner/api/schemas"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// pwDriver drives a browser through playwright-go. Each driver owns one
// isolated BrowserContext, so cookies and storage never leak between roles.
type pwDriver struct {
	logger  *zap.Logger
	opts    Options
	browser playwright.Browser
	bctx    playwright.BrowserContext

	mu      sync.Mutex
	pages   map[string]playwright.Page
	order   []string
	current string
	closed  bool
}

var _ Driver = (*pwDriver)(nil)

// LaunchPlaywright launches a local Chromium through an already running
// Playwright runtime.
func LaunchPlaywright(ctx context.Context, pw *playwright.Playwright, opts Options, logger *zap.Logger) (Driver, error) {
	opts = opts.withDefaults()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args:     opts.Args,
		Timeout:  playwright.Float(float64(remaining(ctx, opts.StartupTimeout).Milliseconds())),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to launch playwright browser: %w", Normalize(err))
	}
	return newPlaywrightDriver(browser, opts, logger.With(zap.String("engine", "playwright"), zap.String("mode", "local")))
}

// ConnectPlaywright attaches to a remote Playwright browser server.
func ConnectPlaywright(ctx context.Context, pw *playwright.Playwright, wsURL string, opts Options, logger *zap.Logger) (Driver, error) {
	opts = opts.withDefaults()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	browser, err := pw.Chromium.Connect(wsURL, playwright.BrowserTypeConnectOptions{
		Timeout: playwright.Float(float64(remaining(ctx, opts.StartupTimeout).Milliseconds())),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to playwright server %s: %w", wsURL, Normalize(err))
	}
	return newPlaywrightDriver(browser, opts, logger.With(zap.String("engine", "playwright"), zap.String("mode", "remote"), zap.String("remote_url", wsURL)))
}

func newPlaywrightDriver(browser playwright.Browser, opts Options, logger *zap.Logger) (Driver, error) {
	ctxOpts := playwright.BrowserNewContextOptions{
		Viewport:          &playwright.Size{Width: opts.WindowWidth, Height: opts.WindowHeight},
		IgnoreHttpsErrors: playwright.Bool(opts.IgnoreTLSErrors),
	}
	opts.Emulation.applyPlaywright(&ctxOpts)
	bctx, err := browser.NewContext(ctxOpts)
	if err != nil {
		_ = browser.Close()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		_ = browser.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	id := uuid.NewString()
	return &pwDriver{
		logger:  logger,
		opts:    opts,
		browser: browser,
		bctx:    bctx,
		pages:   map[string]playwright.Page{id: page},
		order:   []string{id},
		current: id,
	}, nil
}

func (d *pwDriver) page() (playwright.Page, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	return d.pages[d.current], nil
}

// ms converts the time left on ctx into a Playwright timeout in milliseconds.
func ms(ctx context.Context) *float64 {
	return playwright.Float(float64(remaining(ctx, defaultCommandTimeout).Milliseconds()))
}

// pwSelector renders a locator in Playwright's selector-engine syntax.
func pwSelector(loc schemas.Locator) string {
	switch loc.Strategy {
	case schemas.ByXPath:
		return "xpath=" + loc.Query
	case schemas.ByID:
		return "id=" + loc.Query
	default:
		return "css=" + loc.Query
	}
}

func (d *pwDriver) Find(ctx context.Context, loc schemas.Locator) (Element, error) {
	page, err := d.page()
	if err != nil {
		return nil, err
	}
	all := page.Locator(pwSelector(loc))
	n, err := all.Count()
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", loc, Normalize(err))
	}
	if n == 0 {
		return nil, fmt.Errorf("resolving %s: %w", loc, ErrNoSuchElement)
	}
	return &pwElement{loc: loc, l: all.First()}, nil
}

func (d *pwDriver) Navigate(ctx context.Context, url string) error {
	page, err := d.page()
	if err != nil {
		return err
	}
	navCtx, cancel := context.WithTimeout(ctx, d.opts.NavigationTimeout)
	defer cancel()
	if _, err := page.Goto(url, playwright.PageGotoOptions{Timeout: ms(navCtx)}); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, Normalize(err))
	}
	return nil
}

func (d *pwDriver) CurrentURL(ctx context.Context) (string, error) {
	page, err := d.page()
	if err != nil {
		return "", err
	}
	return page.URL(), nil
}

func (d *pwDriver) Evaluate(ctx context.Context, script string, res interface{}) error {
	page, err := d.page()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return Normalize(err)
	}
	v, err := page.Evaluate(script)
	if err != nil {
		return fmt.Errorf("script evaluation failed: %w", Normalize(err))
	}
	if res == nil {
		return nil
	}
	// Playwright hands back loosely typed values; round-trip them into res.
	raw, err := jsonAPI.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding script result: %w", err)
	}
	if err := jsonAPI.Unmarshal(raw, res); err != nil {
		return fmt.Errorf("decoding script result: %w", err)
	}
	return nil
}

func (d *pwDriver) ReadyState(ctx context.Context) (string, error) {
	var state string
	if err := d.Evaluate(ctx, "document.readyState", &state); err != nil {
		return "", err
	}
	return state, nil
}

func (d *pwDriver) Screenshot(ctx context.Context) ([]byte, error) {
	page, err := d.page()
	if err != nil {
		return nil, err
	}
	buf, err := page.Screenshot(playwright.PageScreenshotOptions{Timeout: ms(ctx)})
	if err != nil {
		return nil, fmt.Errorf("capturing screenshot: %w", Normalize(err))
	}
	return buf, nil
}

func (d *pwDriver) OpenTab(ctx context.Context, url string) (string, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return "", ErrClosed
	}
	d.mu.Unlock()

	page, err := d.bctx.NewPage()
	if err != nil {
		return "", fmt.Errorf("opening tab: %w", Normalize(err))
	}
	if url != "" {
		if _, err := page.Goto(url, playwright.PageGotoOptions{Timeout: ms(ctx)}); err != nil {
			_ = page.Close()
			return "", fmt.Errorf("opening tab at %s: %w", url, Normalize(err))
		}
	}

	id := uuid.NewString()
	d.mu.Lock()
	d.pages[id] = page
	d.order = append(d.order, id)
	d.current = id
	d.mu.Unlock()
	return id, nil
}

func (d *pwDriver) SwitchTab(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	page, ok := d.pages[id]
	if !ok {
		return fmt.Errorf("unknown tab %q", id)
	}
	d.current = id
	return page.BringToFront()
}

func (d *pwDriver) CloseTab(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	page, ok := d.pages[id]
	if !ok {
		return fmt.Errorf("unknown tab %q", id)
	}
	if len(d.pages) == 1 {
		return fmt.Errorf("tab %q is the last open tab; use Quit", id)
	}
	delete(d.pages, id)
	d.order = removeID(d.order, id)
	if d.current == id {
		d.current = d.order[0]
	}
	return page.Close()
}

func (d *pwDriver) Tabs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.order...)
}

func (d *pwDriver) Quit(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	var err error
	if cerr := d.bctx.Close(); cerr != nil {
		err = multierr.Append(err, fmt.Errorf("closing browser context: %w", cerr))
	}
	if cerr := d.browser.Close(); cerr != nil {
		err = multierr.Append(err, fmt.Errorf("closing browser: %w", cerr))
	}
	d.logger.Debug("Browser connection released.", zap.Error(err))
	return err
}

// -- Element --

type pwElement struct {
	loc schemas.Locator
	l   playwright.Locator
}

var _ Element = (*pwElement)(nil)

func (e *pwElement) Locator() schemas.Locator { return e.loc }

func (e *pwElement) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s %s: %w", op, e.loc, Normalize(err))
}

func (e *pwElement) Click(ctx context.Context) error {
	return e.wrap("click", e.l.Click(playwright.LocatorClickOptions{Timeout: ms(ctx)}))
}

func (e *pwElement) ScriptClick(ctx context.Context) error {
	_, err := e.l.Evaluate("el => el.click()", nil, playwright.LocatorEvaluateOptions{Timeout: ms(ctx)})
	return e.wrap("script click", err)
}

func (e *pwElement) SendKeys(ctx context.Context, text string) error {
	return e.wrap("send keys to", e.l.PressSequentially(text, playwright.LocatorPressSequentiallyOptions{Timeout: ms(ctx)}))
}

func (e *pwElement) ScriptSetValue(ctx context.Context, value string) error {
	_, err := e.l.Evaluate(`(el, v) => {
		el.focus();
		el.value = v;
		el.dispatchEvent(new Event("input", {bubbles: true}));
		el.dispatchEvent(new Event("change", {bubbles: true}));
	}`, value, playwright.LocatorEvaluateOptions{Timeout: ms(ctx)})
	return e.wrap("script set value on", err)
}

func (e *pwElement) Text(ctx context.Context) (string, error) {
	s, err := e.l.InnerText(playwright.LocatorInnerTextOptions{Timeout: ms(ctx)})
	return s, e.wrap("read text of", err)
}

func (e *pwElement) Attribute(ctx context.Context, name string) (string, error) {
	s, err := e.l.GetAttribute(name, playwright.LocatorGetAttributeOptions{Timeout: ms(ctx)})
	return s, e.wrap("read attribute of", err)
}

func (e *pwElement) Visible(ctx context.Context) (bool, error) {
	v, err := e.l.IsVisible()
	return v, e.wrap("visibility of", err)
}

func (e *pwElement) Enabled(ctx context.Context) (bool, error) {
	v, err := e.l.IsEnabled(playwright.LocatorIsEnabledOptions{Timeout: ms(ctx)})
	return v, e.wrap("enabled state of", err)
}

func (e *pwElement) SelectByText(ctx context.Context, text string) error {
	_, err := e.l.SelectOption(playwright.SelectOptionValues{Labels: &[]string{text}}, playwright.LocatorSelectOptionOptions{Timeout: ms(ctx)})
	return e.wrap("select option on", err)
}

func (e *pwElement) ScriptSelectByText(ctx context.Context, text string) error {
	v, err := e.l.Evaluate(`(el, label) => {
		const idx = Array.from(el.options || []).findIndex(o => (o.text || "").trim() === label);
		if (idx < 0) return false;
		el.selectedIndex = idx;
		el.dispatchEvent(new Event("change", {bubbles: true}));
		return true;
	}`, text, playwright.LocatorEvaluateOptions{Timeout: ms(ctx)})
	if err != nil {
		return e.wrap("script select on", err)
	}
	if ok, _ := v.(bool); !ok {
		return fmt.Errorf("script select on %s: option %q: %w", e.loc, text, ErrNoSuchElement)
	}
	return nil
}
