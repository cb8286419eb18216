// internal/browser/driver/chromedp.go
package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wardrunner/api/schemas"
)

// cdpDriver drives Chrome over the DevTools protocol with chromedp. The first
// tab owns the browser connection; further tabs are child targets of it.
type cdpDriver struct {
	logger *zap.Logger
	opts   Options

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	mu      sync.Mutex
	tabs    map[string]*cdpTab
	order   []string
	current string
	primary string
	closed  bool
}

type cdpTab struct {
	ctx    context.Context
	cancel context.CancelFunc
}

var _ Driver = (*cdpDriver)(nil)

// LaunchChromedp starts a local Chrome process.
func LaunchChromedp(ctx context.Context, opts Options, logger *zap.Logger) (Driver, error) {
	opts = opts.withDefaults()
	// The allocator must outlive ctx, which only bounds startup.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), execAllocatorOptions(opts)...)
	return startChromedp(ctx, allocCtx, allocCancel, opts, logger.With(zap.String("engine", "chromedp"), zap.String("mode", "local")))
}

// ConnectChromedp attaches to a browser exposed on a remote DevTools websocket,
// such as a grid node.
func ConnectChromedp(ctx context.Context, remoteURL string, opts Options, logger *zap.Logger) (Driver, error) {
	opts = opts.withDefaults()
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), remoteURL)
	return startChromedp(ctx, allocCtx, allocCancel, opts, logger.With(zap.String("engine", "chromedp"), zap.String("mode", "remote"), zap.String("remote_url", remoteURL)))
}

// execAllocatorOptions assembles the flags for a local Chrome process.
func execAllocatorOptions(opts Options) []chromedp.ExecAllocatorOption {
	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts,
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("ignore-certificate-errors", opts.IgnoreTLSErrors),
		chromedp.Flag("disable-gpu", opts.Headless),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.WindowSize(opts.WindowWidth, opts.WindowHeight),
	)
	for _, arg := range opts.Args {
		name, value := splitArg(arg)
		allocOpts = append(allocOpts, chromedp.Flag(name, value))
	}
	return allocOpts
}

func startChromedp(ctx context.Context, allocCtx context.Context, allocCancel context.CancelFunc, opts Options, logger *zap.Logger) (Driver, error) {
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// The first Run on a fresh context allocates the browser and its first tab.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(browserCtx, opts.Emulation.cdpTasks()) }()

	timer := time.NewTimer(opts.StartupTimeout)
	defer timer.Stop()

	var err error
	select {
	case err = <-started:
	case <-ctx.Done():
		err = ctx.Err()
	case <-timer.C:
		err = fmt.Errorf("%w: browser did not start within %v", ErrTimeout, opts.StartupTimeout)
	}
	if err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start chromedp browser: %w", err)
	}

	id := cdpTargetID(browserCtx)
	d := &cdpDriver{
		logger:        logger,
		opts:          opts,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		tabs:          map[string]*cdpTab{id: {ctx: browserCtx, cancel: browserCancel}},
		order:         []string{id},
		current:       id,
		primary:       id,
	}
	logger.Debug("Browser started.", zap.String("target_id", id))
	return d, nil
}

func cdpTargetID(ctx context.Context) string {
	if c := chromedp.FromContext(ctx); c != nil && c.Target != nil {
		return string(c.Target.TargetID)
	}
	return ""
}

func (d *cdpDriver) currentTab() (*cdpTab, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	return d.tabs[d.current], nil
}

// run executes actions on the current tab, bounded by ctx.
func (d *cdpDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	tab, err := d.currentTab()
	if err != nil {
		return err
	}
	runCtx, cancel := CombineContext(tab.ctx, ctx)
	defer cancel()
	return Normalize(chromedp.Run(runCtx, actions...))
}

// cdpQuery translates a locator into a chromedp selector and query option.
func cdpQuery(loc schemas.Locator) (string, chromedp.QueryOption) {
	switch loc.Strategy {
	case schemas.ByXPath:
		return loc.Query, chromedp.BySearch
	case schemas.ByID:
		return fmt.Sprintf("[id=%q]", loc.Query), chromedp.ByQueryAll
	default:
		return loc.Query, chromedp.ByQueryAll
	}
}

func (d *cdpDriver) Find(ctx context.Context, loc schemas.Locator) (Element, error) {
	tab, err := d.currentTab()
	if err != nil {
		return nil, err
	}
	sel, by := cdpQuery(loc)

	var nodes []*cdp.Node
	runCtx, cancel := CombineContext(tab.ctx, ctx)
	defer cancel()
	// AtLeast(0) returns immediately instead of polling until a node appears.
	if err := chromedp.Run(runCtx, chromedp.Nodes(sel, &nodes, by, chromedp.AtLeast(0))); err != nil {
		return nil, fmt.Errorf("resolving %s: %w", loc, Normalize(err))
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("resolving %s: %w", loc, ErrNoSuchElement)
	}
	return &cdpElement{tab: tab, node: nodes[0], loc: loc}, nil
}

func (d *cdpDriver) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, d.opts.NavigationTimeout)
	defer cancel()
	if err := d.run(navCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

func (d *cdpDriver) CurrentURL(ctx context.Context) (string, error) {
	var u string
	if err := d.run(ctx, chromedp.Location(&u)); err != nil {
		return "", fmt.Errorf("reading current url: %w", err)
	}
	return u, nil
}

func (d *cdpDriver) Evaluate(ctx context.Context, script string, res interface{}) error {
	if res == nil {
		var discard json.RawMessage
		res = &discard
	}
	err := d.run(ctx, chromedp.Evaluate(script, res, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
	if err != nil {
		return fmt.Errorf("script evaluation failed: %w", err)
	}
	return nil
}

func (d *cdpDriver) ReadyState(ctx context.Context) (string, error) {
	var state string
	if err := d.Evaluate(ctx, "document.readyState", &state); err != nil {
		return "", err
	}
	return state, nil
}

func (d *cdpDriver) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := d.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("capturing screenshot: %w", err)
	}
	return buf, nil
}

func (d *cdpDriver) OpenTab(ctx context.Context, url string) (string, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return "", ErrClosed
	}
	tabCtx, tabCancel := chromedp.NewContext(d.browserCtx)
	d.mu.Unlock()

	runCtx, cancel := CombineContext(tabCtx, ctx)
	defer cancel()
	actions := []chromedp.Action{d.opts.Emulation.cdpTasks()}
	if url != "" {
		actions = append(actions, chromedp.Navigate(url))
	}
	if err := chromedp.Run(runCtx, actions...); err != nil {
		tabCancel()
		return "", fmt.Errorf("opening tab: %w", Normalize(err))
	}

	id := cdpTargetID(tabCtx)
	d.mu.Lock()
	d.tabs[id] = &cdpTab{ctx: tabCtx, cancel: tabCancel}
	d.order = append(d.order, id)
	d.current = id
	d.mu.Unlock()
	return id, nil
}

func (d *cdpDriver) SwitchTab(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if _, ok := d.tabs[id]; !ok {
		return fmt.Errorf("unknown tab %q", id)
	}
	d.current = id
	return nil
}

func (d *cdpDriver) CloseTab(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if id == d.primary {
		return fmt.Errorf("tab %q owns the browser connection; use Quit", id)
	}
	tab, ok := d.tabs[id]
	if !ok {
		return fmt.Errorf("unknown tab %q", id)
	}
	tab.cancel()
	delete(d.tabs, id)
	d.order = removeID(d.order, id)
	if d.current == id {
		d.current = d.primary
	}
	return nil
}

func (d *cdpDriver) Tabs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.order...)
}

func (d *cdpDriver) Quit(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	secondary := make([]*cdpTab, 0, len(d.tabs))
	for id, tab := range d.tabs {
		if id != d.primary {
			secondary = append(secondary, tab)
		}
	}
	d.mu.Unlock()

	for _, tab := range secondary {
		tab.cancel()
	}

	// chromedp.Cancel closes the browser gracefully but takes no context.
	done := make(chan error, 1)
	go func() { done <- chromedp.Cancel(d.browserCtx) }()

	var err error
	select {
	case cerr := <-done:
		if cerr != nil {
			err = multierr.Append(err, fmt.Errorf("closing browser: %w", cerr))
		}
	case <-ctx.Done():
		err = multierr.Append(err, fmt.Errorf("closing browser: %w", ctx.Err()))
	}
	d.browserCancel()
	d.allocCancel()
	d.logger.Debug("Browser connection released.", zap.Error(err))
	return err
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// -- Element --

type cdpElement struct {
	tab  *cdpTab
	node *cdp.Node
	loc  schemas.Locator
}

var _ Element = (*cdpElement)(nil)

// nodeResult is the uniform shape returned by the element scripts below.
type nodeResult struct {
	State string `json:"state"`
	Text  string `json:"text"`
	Flag  bool   `json:"flag"`
}

const (
	jsHitTest = `function() {
	if (!this.isConnected) return {state: "stale"};
	this.scrollIntoView({block: "center", inline: "center"});
	const r = this.getBoundingClientRect();
	const s = window.getComputedStyle(this);
	if (r.width === 0 || r.height === 0 || s.visibility === "hidden" || s.display === "none") return {state: "hidden"};
	if (this.disabled) return {state: "disabled"};
	const top = document.elementFromPoint(r.left + r.width / 2, r.top + r.height / 2);
	if (top && top !== this && !this.contains(top)) {
		return {state: "intercepted", text: (top.tagName || "").toLowerCase() + (top.id ? "#" + top.id : "")};
	}
	return {state: "ok"};
}`
	jsScriptClick = `function() {
	if (!this.isConnected) return {state: "stale"};
	this.click();
	return {state: "ok"};
}`
	jsSetValue = `function(v) {
	if (!this.isConnected) return {state: "stale"};
	this.focus();
	this.value = v;
	this.dispatchEvent(new Event("input", {bubbles: true}));
	this.dispatchEvent(new Event("change", {bubbles: true}));
	return {state: "ok"};
}`
	jsText = `function() {
	if (!this.isConnected) return {state: "stale"};
	return {state: "ok", text: (this.innerText ?? this.textContent ?? "").trim()};
}`
	jsAttribute = `function(name) {
	if (!this.isConnected) return {state: "stale"};
	const v = this.getAttribute(name);
	return {state: "ok", text: v === null ? "" : v};
}`
	jsVisible = `function() {
	if (!this.isConnected) return {state: "stale"};
	const r = this.getBoundingClientRect();
	const s = window.getComputedStyle(this);
	return {state: "ok", flag: r.width > 0 && r.height > 0 && s.visibility !== "hidden" && s.display !== "none" && s.opacity !== "0"};
}`
	jsEnabled = `function() {
	if (!this.isConnected) return {state: "stale"};
	return {state: "ok", flag: !this.disabled && this.getAttribute("aria-disabled") !== "true"};
}`
	jsSelectByText = `function(label, force) {
	if (!this.isConnected) return {state: "stale"};
	if (!force) {
		const r = this.getBoundingClientRect();
		if (r.width === 0 || r.height === 0) return {state: "hidden"};
		if (this.disabled) return {state: "disabled"};
	}
	const opts = Array.from(this.options || []);
	const idx = opts.findIndex(o => (o.text || "").trim() === label);
	if (idx < 0) return {state: "missing"};
	this.selectedIndex = idx;
	this.dispatchEvent(new Event("input", {bubbles: true}));
	this.dispatchEvent(new Event("change", {bubbles: true}));
	return {state: "ok"};
}`
)

func (e *cdpElement) Locator() schemas.Locator { return e.loc }

// call runs fn with the element bound to this and maps the returned state onto
// the driver sentinels.
func (e *cdpElement) call(ctx context.Context, fn string, args ...interface{}) (nodeResult, error) {
	var res nodeResult
	runCtx, cancel := CombineContext(e.tab.ctx, ctx)
	defer cancel()
	err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return callOnNode(ctx, e.node, fn, &res, args...)
	}))
	if err != nil {
		return res, fmt.Errorf("%s: %w", e.loc, Normalize(err))
	}
	switch res.State {
	case "ok":
		return res, nil
	case "stale":
		return res, fmt.Errorf("%s: %w", e.loc, ErrStaleElement)
	case "intercepted":
		return res, fmt.Errorf("%s: %w by <%s>", e.loc, ErrClickIntercepted, res.Text)
	case "hidden", "disabled":
		return res, fmt.Errorf("%s is %s: %w", e.loc, res.State, ErrNotInteractable)
	case "missing":
		return res, fmt.Errorf("%s: %w", e.loc, ErrNoSuchElement)
	default:
		return res, fmt.Errorf("%s: unexpected script state %q", e.loc, res.State)
	}
}

// callOnNode resolves node to a remote object and calls fn with it bound to
// this. The object is released afterwards; that fails harmlessly once the page
// has navigated away.
func callOnNode(ctx context.Context, node *cdp.Node, fn string, res interface{}, args ...interface{}) error {
	obj, err := dom.ResolveNode().WithNodeID(node.NodeID).Do(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = runtime.ReleaseObject(obj.ObjectID).Do(ctx) }()
	return chromedp.CallFunctionOn(fn, res, func(p *runtime.CallFunctionOnParams) *runtime.CallFunctionOnParams {
		return p.WithObjectID(obj.ObjectID).WithAwaitPromise(true)
	}, args...).Do(ctx)
}

func (e *cdpElement) Click(ctx context.Context) error {
	if _, err := e.call(ctx, jsHitTest); err != nil {
		return err
	}
	runCtx, cancel := CombineContext(e.tab.ctx, ctx)
	defer cancel()
	if err := chromedp.Run(runCtx, chromedp.MouseClickNode(e.node)); err != nil {
		return fmt.Errorf("click %s: %w", e.loc, Normalize(err))
	}
	return nil
}

func (e *cdpElement) ScriptClick(ctx context.Context) error {
	_, err := e.call(ctx, jsScriptClick)
	return err
}

func (e *cdpElement) SendKeys(ctx context.Context, text string) error {
	runCtx, cancel := CombineContext(e.tab.ctx, ctx)
	defer cancel()
	err := chromedp.Run(runCtx,
		dom.Focus().WithNodeID(e.node.NodeID),
		chromedp.KeyEvent(text),
	)
	if err != nil {
		return fmt.Errorf("send keys to %s: %w", e.loc, Normalize(err))
	}
	return nil
}

func (e *cdpElement) ScriptSetValue(ctx context.Context, value string) error {
	_, err := e.call(ctx, jsSetValue, value)
	return err
}

func (e *cdpElement) Text(ctx context.Context) (string, error) {
	res, err := e.call(ctx, jsText)
	return res.Text, err
}

func (e *cdpElement) Attribute(ctx context.Context, name string) (string, error) {
	res, err := e.call(ctx, jsAttribute, name)
	return res.Text, err
}

func (e *cdpElement) Visible(ctx context.Context) (bool, error) {
	res, err := e.call(ctx, jsVisible)
	return res.Flag, err
}

func (e *cdpElement) Enabled(ctx context.Context) (bool, error) {
	res, err := e.call(ctx, jsEnabled)
	return res.Flag, err
}

func (e *cdpElement) SelectByText(ctx context.Context, text string) error {
	_, err := e.call(ctx, jsSelectByText, text, false)
	return err
}

func (e *cdpElement) ScriptSelectByText(ctx context.Context, text string) error {
	_, err := e.call(ctx, jsSelectByText, text, true)
	return err
}
