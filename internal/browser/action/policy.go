// internal/browser/action/policy.go
package action

import (
	"time"

	"github.com/xkilldash9x/wardrunner/internal/browser/wait"
	"github.com/xkilldash9x/wardrunner/internal/config"
)

const (
	// DefaultMaxAttempts is the primitive-call budget of one operation,
	// fallback included.
	DefaultMaxAttempts = 3
	// DefaultSettleDelay is the pause between a failed attempt and the next.
	DefaultSettleDelay = time.Second
	// DefaultPreconditionTimeout bounds the wait for an operation's
	// precondition before each attempt.
	DefaultPreconditionTimeout = 10 * time.Second
	// DefaultLoaderTimeout bounds WaitForLoader when no timeout is given.
	DefaultLoaderTimeout = 30 * time.Second
)

// RetryPolicy bounds one Execute call.
type RetryPolicy struct {
	// MaxAttempts caps primitive invocations, fallbacks included.
	MaxAttempts int
	// AllowFallback permits the script-based path for operations that have one.
	AllowFallback bool
	// SuppressTimeout turns a timeout into a failed Result instead of an error.
	SuppressTimeout bool
	// SettleDelay is the fixed pause before each retry.
	SettleDelay time.Duration
	// PreCondition, when set, must hold before every attempt.
	PreCondition        wait.Condition
	PreConditionTimeout time.Duration
}

// DefaultPolicy is three attempts, one second apart, with fallback allowed.
func DefaultPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:         DefaultMaxAttempts,
		AllowFallback:       true,
		SettleDelay:         DefaultSettleDelay,
		PreConditionTimeout: DefaultPreconditionTimeout,
	}
}

// PolicyFromConfig builds the default policy from the retry and wait sections.
func PolicyFromConfig(cfg config.Config) RetryPolicy {
	p := DefaultPolicy()
	if cfg.Retry.MaxAttempts > 0 {
		p.MaxAttempts = cfg.Retry.MaxAttempts
	}
	if cfg.Retry.SettleDelay > 0 {
		p.SettleDelay = cfg.Retry.SettleDelay
	}
	p.AllowFallback = cfg.Retry.AllowFallback
	if cfg.Wait.PreconditionTimeout > 0 {
		p.PreConditionTimeout = cfg.Wait.PreconditionTimeout
	}
	return p
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.SettleDelay < 0 {
		p.SettleDelay = 0
	}
	if p.PreConditionTimeout <= 0 {
		p.PreConditionTimeout = DefaultPreconditionTimeout
	}
	return p
}

// Option adjusts the policy of a single element operation.
type Option func(*RetryPolicy)

func WithMaxAttempts(n int) Option {
	return func(p *RetryPolicy) { p.MaxAttempts = n }
}

func WithFallback(allow bool) Option {
	return func(p *RetryPolicy) { p.AllowFallback = allow }
}

// SuppressTimeout makes a timed-out operation report failure without an error.
func SuppressTimeout() Option {
	return func(p *RetryPolicy) { p.SuppressTimeout = true }
}

func WithSettleDelay(d time.Duration) Option {
	return func(p *RetryPolicy) { p.SettleDelay = d }
}

// WithPreCondition replaces the operation's default precondition.
func WithPreCondition(cond wait.Condition, timeout time.Duration) Option {
	return func(p *RetryPolicy) {
		p.PreCondition = cond
		if timeout > 0 {
			p.PreConditionTimeout = timeout
		}
	}
}

// WithoutPreCondition skips the wait before each attempt.
func WithoutPreCondition() Option {
	return func(p *RetryPolicy) { p.PreCondition = nil }
}

func (p RetryPolicy) with(opts []Option) RetryPolicy {
	for _, o := range opts {
		o(&p)
	}
	return p
}
