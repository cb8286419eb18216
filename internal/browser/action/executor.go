// internal/browser/action/executor.go

// Package action wraps every UI interaction in a bounded retry ladder. Each
// attempt re-resolves its locator, invokes one primitive and, on failure,
// classifies the error to decide between a settle-and-retry, the script-based
// fallback, a suppressed failure or propagation.
package action

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/wardrunner/api/schemas"
	"github.com/xkilldash9x/wardrunner/internal/browser/driver"
	"github.com/xkilldash9x/wardrunner/internal/browser/wait"
	"github.com/xkilldash9x/wardrunner/internal/config"
	"github.com/xkilldash9x/wardrunner/internal/observability"
)

// Primitive is one interaction with a freshly resolved element.
type Primitive func(ctx context.Context, el driver.Element) (interface{}, error)

// Operation names a primitive and its optional script-based fallback.
type Operation struct {
	Name     string
	Do       Primitive
	Fallback Primitive
}

// Result is the outcome of Execute. OK is false for a suppressed failure, in
// which case Err carries the last underlying error.
type Result struct {
	Value        interface{}
	OK           bool
	Attempts     int
	UsedFallback bool
	Err          error
}

// ActionError is returned when the retry budget is exhausted or a failure is
// propagated.
type ActionError struct {
	Op       string
	Locator  schemas.Locator
	Attempts int
	Class    FailureClass
	Err      error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s on %s failed after %d attempt(s) (%s): %v", e.Op, e.Locator, e.Attempts, e.Class, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

// Executor runs operations against one session's driver.
type Executor struct {
	drv     driver.Driver
	waits   *wait.Engine
	opts    Options
	logger  *zap.Logger
	metrics *observability.Metrics
}

// Options carries the executor's defaults.
type Options struct {
	Policy RetryPolicy
	// Loaders are the busy indicators WaitForLoader uses when none are given.
	Loaders       wait.LoaderSet
	LoaderTimeout time.Duration
}

// OptionsFromConfig maps the retry and wait sections of the configuration.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Policy:        PolicyFromConfig(cfg),
		Loaders:       wait.LoaderSet(cfg.Wait.Loaders),
		LoaderTimeout: cfg.Wait.LoaderTimeout,
	}
}

// New creates an Executor. metrics may be nil.
func New(drv driver.Driver, waits *wait.Engine, opts Options, logger *zap.Logger, metrics *observability.Metrics) *Executor {
	opts.Policy = opts.Policy.normalized()
	if opts.LoaderTimeout <= 0 {
		opts.LoaderTimeout = DefaultLoaderTimeout
	}
	return &Executor{
		drv:     drv,
		waits:   waits,
		opts:    opts,
		logger:  logger.Named("action"),
		metrics: metrics,
	}
}

// Policy returns the executor's default policy.
func (e *Executor) Policy() RetryPolicy { return e.opts.Policy }

// Execute runs op against loc under policy. It never issues more than
// policy.MaxAttempts primitive calls, fallback calls included.
func (e *Executor) Execute(ctx context.Context, loc schemas.Locator, op Operation, policy RetryPolicy) (Result, error) {
	policy = policy.normalized()
	log := e.logger.With(zap.String("op", op.Name), zap.Stringer("locator", loc))

	used := 0
	var lastErr error
	for used < policy.MaxAttempts {
		if policy.PreCondition != nil {
			if err := e.waits.WaitFor(ctx, policy.PreCondition, policy.PreConditionTimeout); err != nil {
				if policy.SuppressTimeout && errors.Is(err, wait.ErrTimeout) {
					e.metrics.ObserveOutcome(op.Name, "suppressed")
					log.Warn("Precondition timed out; reporting failure without error.", zap.Int("attempts", used), zap.Error(err))
					return Result{Attempts: used, Err: err}, nil
				}
				e.metrics.ObserveOutcome(op.Name, "failed")
				return Result{Attempts: used, Err: err}, fmt.Errorf("%s on %s: precondition not met: %w", op.Name, loc, err)
			}
		}

		used++
		el, err := e.drv.Find(ctx, loc)
		var val interface{}
		if err == nil {
			val, err = op.Do(ctx, el)
		}
		if err == nil {
			e.metrics.ObserveAttempt(op.Name, "ok")
			e.metrics.ObserveOutcome(op.Name, "success")
			return Result{Value: val, OK: true, Attempts: used}, nil
		}

		lastErr = err
		class := Classify(err)
		e.metrics.ObserveAttempt(op.Name, class.String())

		p := policy
		p.AllowFallback = policy.AllowFallback && op.Fallback != nil && el != nil
		decision := Decide(class, policy.MaxAttempts-used, p)
		log.Warn("Action attempt failed.",
			zap.Int("attempt", used),
			zap.Int("max_attempts", policy.MaxAttempts),
			zap.Stringer("class", class),
			zap.Stringer("decision", decision),
			zap.Error(err))

		if decision == Fallback {
			used++
			log.Info("Invoking script fallback.", zap.Int("attempt", used))
			val, ferr := op.Fallback(ctx, el)
			e.metrics.ObserveFallback(op.Name, ferr == nil)
			if ferr == nil {
				e.metrics.ObserveOutcome(op.Name, "success")
				return Result{Value: val, OK: true, Attempts: used, UsedFallback: true}, nil
			}
			lastErr = ferr
			class = Classify(ferr)
			p.AllowFallback = false
			decision = Decide(class, policy.MaxAttempts-used, p)
			log.Warn("Script fallback failed.",
				zap.Int("attempt", used),
				zap.Stringer("class", class),
				zap.Stringer("decision", decision),
				zap.Error(ferr))
		}

		switch decision {
		case Retry:
			if err := wait.Sleep(ctx, policy.SettleDelay); err != nil {
				e.metrics.ObserveOutcome(op.Name, "failed")
				return Result{Attempts: used, Err: lastErr}, fmt.Errorf("%s on %s: interrupted while settling: %w", op.Name, loc, err)
			}
		case Return:
			e.metrics.ObserveOutcome(op.Name, "suppressed")
			log.Warn("Timeout suppressed; reporting failure without error.", zap.Int("attempts", used))
			return Result{Attempts: used, Err: lastErr}, nil
		case Propagate:
			e.metrics.ObserveOutcome(op.Name, "failed")
			return Result{Attempts: used, Err: lastErr}, &ActionError{Op: op.Name, Locator: loc, Attempts: used, Class: class, Err: lastErr}
		}
	}

	// Only reachable if a Retry decision left no budget; report rather than lose it.
	e.metrics.ObserveOutcome(op.Name, "failed")
	return Result{Attempts: used, Err: lastErr}, nil
}
