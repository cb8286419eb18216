// internal/browser/action/classify.go
package action

import (
	"context"
	"errors"
	"strings"

	"github.com/xkilldash9x/wardrunner/internal/browser/driver"
)

// FailureClass buckets a failed primitive so the retry ladder can pick a
// response without inspecting engine-specific errors.
type FailureClass int

const (
	// Generic covers anything not recognised below.
	Generic FailureClass = iota
	// Stale means the element detached from the document between resolve and use.
	Stale
	// Intercepted means another element would receive the interaction.
	Intercepted
	// TimedOut means the primitive or its context ran out of time.
	TimedOut
)

func (c FailureClass) String() string {
	switch c {
	case Stale:
		return "stale"
	case Intercepted:
		return "intercepted"
	case TimedOut:
		return "timed_out"
	default:
		return "generic"
	}
}

// Classify maps err onto a FailureClass. Driver sentinels are checked first;
// raw engine messages are matched as a last resort.
func Classify(err error) FailureClass {
	switch {
	case err == nil:
		return Generic
	case errors.Is(err, driver.ErrStaleElement):
		return Stale
	case errors.Is(err, driver.ErrClickIntercepted):
		return Intercepted
	case errors.Is(err, driver.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return TimedOut
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "stale element"), strings.Contains(msg, "not attached to the page"),
		strings.Contains(msg, "node with given id does not belong"):
		return Stale
	case strings.Contains(msg, "intercept"), strings.Contains(msg, "would receive the click"),
		strings.Contains(msg, "intercepts pointer events"):
		return Intercepted
	case strings.Contains(msg, "timed out"), strings.Contains(msg, "timeout"):
		return TimedOut
	}
	return Generic
}

// Decision is what the executor does next after a failed attempt.
type Decision int

const (
	// Propagate surfaces the failure to the caller.
	Propagate Decision = iota
	// Retry settles and re-resolves for another attempt.
	Retry
	// Fallback invokes the script-based path on the element just resolved.
	Fallback
	// Return ends the call with a failed Result and no error.
	Return
)

func (d Decision) String() string {
	switch d {
	case Retry:
		return "retry"
	case Fallback:
		return "fallback"
	case Return:
		return "return"
	default:
		return "propagate"
	}
}

// Decide picks the response to a failure of class when attemptsLeft primitive
// invocations remain in the budget. A fallback call spends one unit of that
// budget. policy.AllowFallback must already reflect whether a fallback is
// actually available for the operation.
func Decide(class FailureClass, attemptsLeft int, policy RetryPolicy) Decision {
	if attemptsLeft < 0 {
		attemptsLeft = 0
	}
	switch class {
	case Stale:
		switch {
		case attemptsLeft >= 2:
			return Retry
		case attemptsLeft == 1 && policy.AllowFallback:
			return Fallback
		case attemptsLeft == 1:
			return Retry
		}
	case Intercepted:
		switch {
		case attemptsLeft >= 1 && policy.AllowFallback:
			return Fallback
		case attemptsLeft >= 1:
			return Retry
		}
	case TimedOut:
		switch {
		case policy.SuppressTimeout:
			return Return
		case attemptsLeft >= 1:
			return Retry
		}
	default:
		if attemptsLeft >= 1 {
			return Retry
		}
	}
	return Propagate
}
