// internal/browser/action/ops.go
package action

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/wardrunner/api/schemas"
	"github.com/xkilldash9x/wardrunner/internal/browser/driver"
	"github.com/xkilldash9x/wardrunner/internal/browser/wait"
)

// Click waits for loc to be clickable, then clicks it. Falls back to a script
// click when the pointer path is intercepted or the element keeps going stale.
// With SuppressTimeout, a timeout yields false and a nil error.
func (e *Executor) Click(ctx context.Context, loc schemas.Locator, opts ...Option) (bool, error) {
	p := e.opts.Policy
	p.PreCondition = e.waits.Clickable(loc)
	res, err := e.Execute(ctx, loc, Operation{
		Name: "click",
		Do: func(ctx context.Context, el driver.Element) (interface{}, error) {
			return nil, el.Click(ctx)
		},
		Fallback: func(ctx context.Context, el driver.Element) (interface{}, error) {
			return nil, el.ScriptClick(ctx)
		},
	}, p.with(opts))
	return res.OK, err
}

// SendKeys types text into loc. The fallback assigns the value by script and
// fires input and change events.
func (e *Executor) SendKeys(ctx context.Context, loc schemas.Locator, text string, opts ...Option) (bool, error) {
	p := e.opts.Policy
	p.PreCondition = e.waits.Visible(loc)
	res, err := e.Execute(ctx, loc, Operation{
		Name: "send_keys",
		Do: func(ctx context.Context, el driver.Element) (interface{}, error) {
			return nil, el.SendKeys(ctx, text)
		},
		Fallback: func(ctx context.Context, el driver.Element) (interface{}, error) {
			return nil, el.ScriptSetValue(ctx, text)
		},
	}, p.with(opts))
	return res.OK, err
}

// GetText returns the rendered text of loc. A suppressed timeout yields "".
func (e *Executor) GetText(ctx context.Context, loc schemas.Locator, opts ...Option) (string, error) {
	p := e.opts.Policy
	p.PreCondition = e.waits.Visible(loc)
	res, err := e.Execute(ctx, loc, Operation{
		Name: "get_text",
		Do: func(ctx context.Context, el driver.Element) (interface{}, error) {
			return el.Text(ctx)
		},
	}, p.with(opts))
	return e.stringResult("get_text", loc, res, err)
}

// GetAttribute returns attribute name of loc, "" when absent.
func (e *Executor) GetAttribute(ctx context.Context, loc schemas.Locator, name string, opts ...Option) (string, error) {
	p := e.opts.Policy
	res, err := e.Execute(ctx, loc, Operation{
		Name: "get_attribute",
		Do: func(ctx context.Context, el driver.Element) (interface{}, error) {
			return el.Attribute(ctx, name)
		},
	}, p.with(opts))
	return e.stringResult("get_attribute", loc, res, err)
}

// SelectByVisibleText picks the option labelled text in the select at loc.
func (e *Executor) SelectByVisibleText(ctx context.Context, loc schemas.Locator, text string, opts ...Option) (bool, error) {
	p := e.opts.Policy
	p.PreCondition = e.waits.Clickable(loc)
	res, err := e.Execute(ctx, loc, Operation{
		Name: "select_by_visible_text",
		Do: func(ctx context.Context, el driver.Element) (interface{}, error) {
			return nil, el.SelectByText(ctx, text)
		},
		Fallback: func(ctx context.Context, el driver.Element) (interface{}, error) {
			return nil, el.ScriptSelectByText(ctx, text)
		},
	}, p.with(opts))
	return res.OK, err
}

// IsVisible reports whether loc becomes visible within timeout. Expiry is a
// false answer, not an error.
func (e *Executor) IsVisible(ctx context.Context, loc schemas.Locator, timeout time.Duration, opts ...Option) (bool, error) {
	return e.probe(ctx, "is_visible", loc, e.waits.Visible(loc), timeout, func(ctx context.Context, el driver.Element) (interface{}, error) {
		return el.Visible(ctx)
	}, opts)
}

// IsClickable reports whether loc becomes visible and enabled within timeout.
func (e *Executor) IsClickable(ctx context.Context, loc schemas.Locator, timeout time.Duration, opts ...Option) (bool, error) {
	return e.probe(ctx, "is_clickable", loc, e.waits.Clickable(loc), timeout, func(ctx context.Context, el driver.Element) (interface{}, error) {
		return el.Enabled(ctx)
	}, opts)
}

// WaitForLoader waits for the given busy indicators, or the configured ones
// when none are passed, to disappear. A zero timeout uses the configured
// loader timeout.
func (e *Executor) WaitForLoader(ctx context.Context, timeout time.Duration, strict bool, loaders ...schemas.Locator) (bool, error) {
	set := wait.LoaderSet(loaders)
	if len(set) == 0 {
		set = e.opts.Loaders
	}
	if timeout <= 0 {
		timeout = e.opts.LoaderTimeout
	}
	return e.waits.WaitForQuiescence(ctx, set, timeout, strict)
}

func (e *Executor) probe(ctx context.Context, name string, loc schemas.Locator, cond wait.Condition, timeout time.Duration, do Primitive, opts []Option) (bool, error) {
	p := e.opts.Policy
	p.PreCondition = cond
	p.PreConditionTimeout = timeout
	p.SuppressTimeout = true
	res, err := e.Execute(ctx, loc, Operation{Name: name, Do: do}, p.with(opts))
	if errors.Is(err, wait.ErrTimeout) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	ok, _ := res.Value.(bool)
	return res.OK && ok, nil
}

func (e *Executor) stringResult(op string, loc schemas.Locator, res Result, err error) (string, error) {
	if err != nil {
		return "", err
	}
	if !res.OK {
		e.logger.Warn("Read returned no value.", zap.String("op", op), zap.Stringer("locator", loc), zap.Error(res.Err))
		return "", nil
	}
	s, _ := res.Value.(string)
	return s, nil
}
