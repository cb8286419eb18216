// internal/session/registry.go
package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xkilldash9x/wardrunner/api/schemas"
	"github.com/xkilldash9x/wardrunner/internal/browser/action"
	"github.com/xkilldash9x/wardrunner/internal/browser/driver"
	"github.com/xkilldash9x/wardrunner/internal/browser/wait"
	"github.com/xkilldash9x/wardrunner/internal/config"
	"github.com/xkilldash9x/wardrunner/internal/observability"
)

const defaultQuitTimeout = 10 * time.Second

// Registry maps each role to its live session.
type Registry struct {
	cfg      config.Config
	backends *Backends
	logger   *zap.Logger
	metrics  *observability.Metrics

	mu       sync.Mutex
	sessions map[schemas.RoleID]*Session
	group    singleflight.Group
}

// NewRegistry creates an empty registry. metrics may be nil.
func NewRegistry(cfg config.Config, backends *Backends, logger *zap.Logger, metrics *observability.Metrics) *Registry {
	return &Registry{
		cfg:      cfg,
		backends: backends,
		logger:   logger.Named("sessions"),
		metrics:  metrics,
		sessions: make(map[schemas.RoleID]*Session),
	}
}

// Create builds a new session for role with the given backend. Any live
// session for role is quit first. Construction failures wrap ErrBackend and
// are not retried.
func (r *Registry) Create(ctx context.Context, role schemas.RoleID, kind schemas.BackendKind, name string) (*Session, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", schemas.ErrUnknownRole, role)
	}
	backend, err := r.backends.Get(kind)
	if err != nil {
		return nil, err
	}

	r.Quit(ctx, role)

	s := &Session{
		ID:        uuid.NewString(),
		Role:      role,
		Name:      name,
		Backend:   kind,
		CreatedAt: time.Now(),
	}
	log := r.logger.With(zap.Stringer("role", role), zap.String("session", name), zap.String("backend", string(kind)))
	log.Info("Creating browser session...")

	drv, err := backend.Open(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s session %q for role %s: %w", ErrBackend, kind, name, role, err)
	}
	s.drv = drv
	s.waits = wait.New(drv, wait.OptionsFromConfig(r.cfg.Wait), log)
	s.actions = action.New(drv, s.waits, action.OptionsFromConfig(r.cfg), log, r.metrics)
	s.advance(schemas.SessionActive)

	r.mu.Lock()
	prev := r.sessions[role]
	r.sessions[role] = s
	n := len(r.sessions)
	r.mu.Unlock()
	r.metrics.SetActiveSessions(n)

	// Another caller may have registered a session for this role while ours
	// was being built.
	if prev != nil {
		r.quitSession(ctx, prev)
	}

	log.Info("Browser session ready.", zap.String("session_id", s.ID))
	return s, nil
}

// Get returns the live session for role.
func (r *Registry) Get(role schemas.RoleID) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[role]
	if !ok || s.State() != schemas.SessionActive {
		return nil, false
	}
	return s, true
}

// GetOrCreate returns the live session for role, creating one with the
// configured backend when there is none. Concurrent calls for the same role
// share one construction.
func (r *Registry) GetOrCreate(ctx context.Context, role schemas.RoleID) (*Session, error) {
	if s, ok := r.Get(role); ok {
		return s, nil
	}
	v, err, _ := r.group.Do(string(role), func() (interface{}, error) {
		if s, ok := r.Get(role); ok {
			return s, nil
		}
		name := fmt.Sprintf("%s-%s", role, uuid.NewString()[:8])
		return r.Create(ctx, role, r.cfg.Browser.Backend, name)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// Quit tears down the session for role. Quitting a role with no session is a
// logged no-op; teardown errors are logged and never returned.
func (r *Registry) Quit(ctx context.Context, role schemas.RoleID) {
	r.mu.Lock()
	s, ok := r.sessions[role]
	delete(r.sessions, role)
	n := len(r.sessions)
	r.mu.Unlock()

	if !ok {
		r.logger.Debug("No session to quit.", zap.Stringer("role", role))
		return
	}
	r.metrics.SetActiveSessions(n)
	r.quitSession(ctx, s)
}

// QuitAll tears down every session. One failing teardown does not stop the
// others.
func (r *Registry) QuitAll(ctx context.Context) {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.sessions = make(map[schemas.RoleID]*Session)
	r.mu.Unlock()
	r.metrics.SetActiveSessions(0)

	if len(all) == 0 {
		r.logger.Info("No active sessions to quit.")
		return
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Role < all[j].Role })
	for _, s := range all {
		r.quitSession(ctx, s)
	}
	r.logger.Info("All sessions quit.", zap.Int("count", len(all)))
}

// Shutdown quits every session and stops shared backend runtimes.
func (r *Registry) Shutdown(ctx context.Context) {
	r.QuitAll(ctx)
	if err := r.backends.Close(); err != nil {
		r.logger.Warn("Failed to stop backend runtime.", zap.Error(err))
	}
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Roles returns the roles holding a session, sorted.
func (r *Registry) Roles() []schemas.RoleID {
	r.mu.Lock()
	roles := make([]schemas.RoleID, 0, len(r.sessions))
	for role := range r.sessions {
		roles = append(roles, role)
	}
	r.mu.Unlock()
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

// quitSession runs on a context detached from ctx's cancellation so a
// cancelled test still releases its browser.
func (r *Registry) quitSession(ctx context.Context, s *Session) {
	log := r.logger.With(zap.Stringer("role", s.Role), zap.String("session", s.Name), zap.String("session_id", s.ID))

	timeout := r.cfg.Browser.QuitTimeout
	if timeout <= 0 {
		timeout = defaultQuitTimeout
	}
	quitCtx, cancel := context.WithTimeout(driver.Detach(ctx), timeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			log.Error("Panic while quitting session.", zap.Any("panic", p))
		}
	}()
	if err := s.quit(quitCtx); err != nil {
		log.Warn("Failed to quit session cleanly.", zap.Error(err))
		return
	}
	log.Info("Session quit.")
}
