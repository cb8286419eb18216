// internal/browser/wait/wait.go

// Package wait polls page and DOM signals until a condition holds or a
// deadline passes. Every wait here is a blocking, poll-based sleep bounded by
// an explicit timeout; none of them mutate shared driver state.
package wait

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/wardrunner/api/schemas"
	"github.com/xkilldash9x/wardrunner/internal/browser/driver"
	"github.com/xkilldash9x/wardrunner/internal/config"
)

// ErrTimeout is returned when a strict wait exhausts its budget.
var ErrTimeout = errors.New("wait timed out")

const (
	DefaultPollInterval = 200 * time.Millisecond
	DefaultSettleDelay  = 500 * time.Millisecond
	DefaultProbeTimeout = 2 * time.Second
)

// Condition reports whether the awaited state holds. An error counts as "not
// yet"; the poller keeps going until its deadline.
type Condition func(ctx context.Context) (bool, error)

// LoaderSet is an ordered set of busy indicators. The page is quiescent when
// none of them is visible.
type LoaderSet []schemas.Locator

// Options tunes an Engine.
type Options struct {
	// PollInterval is the fixed delay between probes.
	PollInterval time.Duration
	// SettleDelay is the unconditional pause after the document reports ready.
	SettleDelay time.Duration
	// ProbeTimeout bounds a single visibility probe, replacing any implicit
	// wait the driver might otherwise apply. Inside a wait it is further
	// capped by the wait's own deadline.
	ProbeTimeout time.Duration
}

// OptionsFromConfig maps the wait section of the harness configuration.
func OptionsFromConfig(cfg config.WaitConfig) Options {
	return Options{
		PollInterval: cfg.PollInterval,
		SettleDelay:  cfg.SettleDelay,
		ProbeTimeout: cfg.ProbeTimeout,
	}
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.SettleDelay < 0 {
		o.SettleDelay = 0
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = DefaultProbeTimeout
	}
	return o
}

// Engine runs waits against one session's driver.
type Engine struct {
	drv    driver.Driver
	opts   Options
	logger *zap.Logger
}

// New creates an Engine for drv.
func New(drv driver.Driver, opts Options, logger *zap.Logger) *Engine {
	return &Engine{
		drv:    drv,
		opts:   opts.withDefaults(),
		logger: logger.Named("wait"),
	}
}

// PollInterval returns the interval the engine sleeps between probes.
func (e *Engine) PollInterval() time.Duration { return e.opts.PollInterval }

// WaitFor polls cond until it reports true or timeout elapses. It returns an
// error wrapping ErrTimeout on expiry, or the context's error if ctx ends
// first. cond runs under a context bounded by the wait's deadline and the
// loop never sleeps past it, so the wait ends within one poll interval of the
// deadline. A non-positive timeout checks cond once.
func (e *Engine) WaitFor(ctx context.Context, cond Condition, timeout time.Duration) error {
	if timeout <= 0 {
		ok, err := cond(ctx)
		if ok {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			e.logger.Debug("Wait condition probe failed.", zap.Error(err))
		}
		return fmt.Errorf("%w after %v", ErrTimeout, timeout)
	}

	deadline := time.Now().Add(timeout)
	waitCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	for {
		ok, err := cond(waitCtx)
		if ok {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			e.logger.Debug("Wait condition probe failed; polling again.", zap.Error(err))
		}

		left := time.Until(deadline)
		if left <= 0 {
			return fmt.Errorf("%w after %v", ErrTimeout, timeout)
		}
		if err := Sleep(ctx, min(e.opts.PollInterval, left)); err != nil {
			return err
		}
	}
}

// WaitForQuiescence waits until none of loaders is visible. On timeout it
// returns an error wrapping ErrTimeout when strict is set, and false with a
// nil error otherwise.
func (e *Engine) WaitForQuiescence(ctx context.Context, loaders LoaderSet, timeout time.Duration, strict bool) (bool, error) {
	start := time.Now()
	err := e.WaitFor(ctx, func(ctx context.Context) (bool, error) {
		for _, l := range loaders {
			if e.visible(ctx, l) {
				return false, nil
			}
		}
		return true, nil
	}, timeout)

	switch {
	case err == nil:
		e.logger.Debug("Page quiescent.", zap.Duration("elapsed", time.Since(start)), zap.Int("loaders", len(loaders)))
		return true, nil
	case errors.Is(err, ErrTimeout) && !strict:
		e.logger.Debug("Loaders still visible; continuing (non-strict).", zap.Duration("timeout", timeout))
		return false, nil
	case errors.Is(err, ErrTimeout):
		return false, fmt.Errorf("loaders still visible: %w", err)
	default:
		return false, err
	}
}

// WaitForDocumentReady waits for document.readyState to report "complete",
// then pauses for the settle delay. It is best effort: failures are logged and
// the caller proceeds.
func (e *Engine) WaitForDocumentReady(ctx context.Context, timeout time.Duration) {
	err := e.WaitFor(ctx, func(ctx context.Context) (bool, error) {
		probeCtx, cancel := context.WithTimeout(ctx, e.opts.ProbeTimeout)
		defer cancel()
		state, err := e.drv.ReadyState(probeCtx)
		return state == "complete", err
	}, timeout)
	if err != nil {
		e.logger.Warn("Document readiness not observed; proceeding.", zap.Duration("timeout", timeout), zap.Error(err))
	}
	if err := Sleep(ctx, e.opts.SettleDelay); err != nil {
		e.logger.Debug("Settle delay interrupted.", zap.Error(err))
	}
}

// WaitForAnyVisible returns true as soon as one of locators is visible. If none
// appears within timeout it returns false and an error wrapping ErrTimeout.
func (e *Engine) WaitForAnyVisible(ctx context.Context, locators []schemas.Locator, timeout time.Duration) (bool, error) {
	var seen schemas.Locator
	err := e.WaitFor(ctx, func(ctx context.Context) (bool, error) {
		for _, l := range locators {
			if e.visible(ctx, l) {
				seen = l
				return true, nil
			}
		}
		return false, nil
	}, timeout)
	if err != nil {
		return false, fmt.Errorf("none of %d candidates became visible: %w", len(locators), err)
	}
	e.logger.Debug("Candidate visible.", zap.Stringer("locator", seen))
	return true, nil
}

// Visible is a Condition that holds while loc resolves to a visible element.
func (e *Engine) Visible(loc schemas.Locator) Condition {
	return func(ctx context.Context) (bool, error) {
		return e.visible(ctx, loc), nil
	}
}

// Clickable is a Condition that holds while loc resolves to an element that
// is both visible and enabled.
func (e *Engine) Clickable(loc schemas.Locator) Condition {
	return func(ctx context.Context) (bool, error) {
		probeCtx, cancel := context.WithTimeout(ctx, e.opts.ProbeTimeout)
		defer cancel()
		el, err := e.drv.Find(probeCtx, loc)
		if err != nil {
			return false, err
		}
		visible, err := el.Visible(probeCtx)
		if err != nil || !visible {
			return false, err
		}
		return el.Enabled(probeCtx)
	}
}

// IsVisible checks loc once, bounded by the probe timeout.
func (e *Engine) IsVisible(ctx context.Context, loc schemas.Locator) bool {
	return e.visible(ctx, loc)
}

func (e *Engine) visible(ctx context.Context, loc schemas.Locator) bool {
	probeCtx, cancel := context.WithTimeout(ctx, e.opts.ProbeTimeout)
	defer cancel()
	el, err := e.drv.Find(probeCtx, loc)
	if err != nil {
		return false
	}
	v, err := el.Visible(probeCtx)
	return err == nil && v
}

// Sleep pauses for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
