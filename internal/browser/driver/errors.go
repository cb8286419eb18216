// internal/browser/driver/errors.go
package driver

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// nativeMarkers maps fragments of engine error messages onto sentinels. CDP
// and Playwright report these conditions as plain strings.
var nativeMarkers = []struct {
	fragment string
	sentinel error
}{
	{"could not find node with given id", ErrStaleElement},
	{"no node with given id", ErrStaleElement},
	{"node with given id does not belong to the document", ErrStaleElement},
	{"element is not attached to the dom", ErrStaleElement},
	{"stale element", ErrStaleElement},
	{"intercepts pointer events", ErrClickIntercepted},
	{"click intercepted", ErrClickIntercepted},
	{"element is not visible", ErrNotInteractable},
	{"element is not enabled", ErrNotInteractable},
	{"not interactable", ErrNotInteractable},
	{"timeout", ErrTimeout},
	{"deadline exceeded", ErrTimeout},
}

// Normalize wraps a native engine error with the matching sentinel so callers
// can use errors.Is. Errors that already carry a sentinel, and errors with no
// known marker, are returned unchanged.
func Normalize(err error) error {
	if err == nil {
		return nil
	}
	for _, s := range []error{ErrStaleElement, ErrClickIntercepted, ErrTimeout, ErrNoSuchElement, ErrNotInteractable, ErrClosed} {
		if errors.Is(err, s) {
			return err
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	msg := strings.ToLower(err.Error())
	for _, m := range nativeMarkers {
		if strings.Contains(msg, m.fragment) {
			return fmt.Errorf("%w: %w", m.sentinel, err)
		}
	}
	return err
}
