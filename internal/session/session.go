// internal/session/session.go

// Package session owns the browser sessions of a test run, at most one live
// session per role, and the backend strategies that construct them.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/xkilldash9x/wardrunner/api/schemas"
	"github.com/xkilldash9x/wardrunner/internal/browser/action"
	"github.com/xkilldash9x/wardrunner/internal/browser/driver"
	"github.com/xkilldash9x/wardrunner/internal/browser/wait"
)

// Session is one browser connection bound to a role.
type Session struct {
	ID        string
	Role      schemas.RoleID
	Name      string
	Backend   schemas.BackendKind
	CreatedAt time.Time

	mu    sync.Mutex
	state schemas.SessionState

	drv     driver.Driver
	waits   *wait.Engine
	actions *action.Executor
}

func (s *Session) State() schemas.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// advance moves the session forward through Created, Active and Quit. It
// reports false, leaving the state untouched, for any other transition.
func (s *Session) advance(to schemas.SessionState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if to <= s.state {
		return false
	}
	s.state = to
	return true
}

// Driver returns the underlying browser driver.
func (s *Session) Driver() driver.Driver { return s.drv }

// Waits returns the session's wait engine.
func (s *Session) Waits() *wait.Engine { return s.waits }

// Actions returns the session's action executor.
func (s *Session) Actions() *action.Executor { return s.actions }

// quit releases the driver once. Later calls are no-ops.
func (s *Session) quit(ctx context.Context) error {
	if !s.advance(schemas.SessionQuit) {
		return nil
	}
	return s.drv.Quit(ctx)
}
