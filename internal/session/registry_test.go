// internal/session/registry_test.go
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/wardrunner/api/schemas"
	"github.com/xkilldash9x/wardrunner/internal/browser/driver"
	"github.com/xkilldash9x/wardrunner/internal/config"
	"github.com/xkilldash9x/wardrunner/internal/mocks"
)

// fakeBackend hands out mock drivers and records the order of events.
type fakeBackend struct {
	kind  schemas.BackendKind
	delay time.Duration
	err   error

	mu      sync.Mutex
	opened  []*mocks.MockDriver
	events  *[]string
	quitErr error
	opens   atomic.Int32
}

func (f *fakeBackend) Kind() schemas.BackendKind { return f.kind }

func (f *fakeBackend) Open(ctx context.Context, name string) (driver.Driver, error) {
	f.opens.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("open " + name)

	drv := new(mocks.MockDriver)
	drv.On("Quit", mock.Anything).Run(func(mock.Arguments) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.record("quit " + name)
	}).Return(f.quitErr)
	f.opened = append(f.opened, drv)
	return drv, nil
}

func (f *fakeBackend) record(ev string) {
	if f.events != nil {
		*f.events = append(*f.events, ev)
	}
}

func newRegistry(t *testing.T, backends ...Backend) *Registry {
	t.Helper()
	return NewRegistry(*config.NewDefaultConfig(), BackendsOf(backends...), zaptest.NewLogger(t), nil)
}

func TestCreateReplacesExistingSession(t *testing.T) {
	var events []string
	local := &fakeBackend{kind: schemas.BackendLocal, events: &events}
	r := newRegistry(t, local)
	ctx := context.Background()

	first, err := r.Create(ctx, schemas.RoleAdminA, schemas.BackendLocal, "s1")
	require.NoError(t, err)
	second, err := r.Create(ctx, schemas.RoleAdminA, schemas.BackendLocal, "s2")
	require.NoError(t, err)

	assert.Equal(t, 1, r.Len())
	assert.NotSame(t, first, second)
	assert.Equal(t, []string{"open s1", "quit s1", "open s2"}, events, "old handle must be quit before the new one is built")
	assert.Equal(t, schemas.SessionQuit, first.State())
	assert.Equal(t, schemas.SessionActive, second.State())

	got, ok := r.Get(schemas.RoleAdminA)
	require.True(t, ok)
	assert.Same(t, second, got)
	assert.NotNil(t, got.Actions())
	assert.NotNil(t, got.Waits())
}

func TestTeardownIsIdempotent(t *testing.T) {
	local := &fakeBackend{kind: schemas.BackendLocal}
	r := newRegistry(t, local)
	ctx := context.Background()

	assert.NotPanics(t, func() {
		r.Quit(ctx, schemas.RoleNurse)
		r.QuitAll(ctx)
		r.QuitAll(ctx)
	})

	_, err := r.Create(ctx, schemas.RoleNurse, schemas.BackendLocal, "n1")
	require.NoError(t, err)

	r.Quit(ctx, schemas.RoleNurse)
	r.Quit(ctx, schemas.RoleNurse)
	r.QuitAll(ctx)

	assert.Zero(t, r.Len())
	local.opened[0].AssertNumberOfCalls(t, "Quit", 1)
	_, ok := r.Get(schemas.RoleNurse)
	assert.False(t, ok)
}

func TestQuitAllWithNoSessionsLogs(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	r := NewRegistry(*config.NewDefaultConfig(), BackendsOf(), zap.New(core), nil)

	r.QuitAll(context.Background())

	assert.Equal(t, 1, logs.FilterMessage("No active sessions to quit.").Len())
}

func TestQuitAllIsolatesFailures(t *testing.T) {
	failing := &fakeBackend{kind: schemas.BackendRemote, quitErr: errors.New("grid gone")}
	local := &fakeBackend{kind: schemas.BackendLocal}
	core, logs := observer.New(zapcore.WarnLevel)
	r := NewRegistry(*config.NewDefaultConfig(), BackendsOf(failing, local), zap.New(core), nil)
	ctx := context.Background()

	_, err := r.Create(ctx, schemas.RoleAdminA, schemas.BackendRemote, "a")
	require.NoError(t, err)
	_, err = r.Create(ctx, schemas.RoleUserB, schemas.BackendLocal, "b")
	require.NoError(t, err)

	r.QuitAll(ctx)

	assert.Zero(t, r.Len())
	failing.opened[0].AssertNumberOfCalls(t, "Quit", 1)
	local.opened[0].AssertNumberOfCalls(t, "Quit", 1)
	assert.Equal(t, 1, logs.FilterMessage("Failed to quit session cleanly.").Len())
}

func TestQuitSurvivesDriverPanic(t *testing.T) {
	drv := new(mocks.MockDriver)
	drv.On("Quit", mock.Anything).Run(func(mock.Arguments) { panic("target crashed") })
	r := newRegistry(t)
	r.sessions[schemas.RoleProvider] = &Session{Role: schemas.RoleProvider, drv: drv, state: schemas.SessionActive}

	assert.NotPanics(t, func() { r.QuitAll(context.Background()) })
	assert.Zero(t, r.Len())
}

func TestCreatePropagatesBackendFailure(t *testing.T) {
	cause := errors.New("chrome not found")
	local := &fakeBackend{kind: schemas.BackendLocal, err: cause}
	r := newRegistry(t, local)

	s, err := r.Create(context.Background(), schemas.RoleEnroller, schemas.BackendLocal, "e1")

	assert.Nil(t, s)
	assert.ErrorIs(t, err, ErrBackend)
	assert.ErrorIs(t, err, cause)
	assert.Zero(t, r.Len())
	assert.EqualValues(t, 1, local.opens.Load(), "construction is not retried")
}

func TestCreateRejectsUnknownInputs(t *testing.T) {
	r := newRegistry(t, &fakeBackend{kind: schemas.BackendLocal})

	_, err := r.Create(context.Background(), schemas.RoleID("janitor"), schemas.BackendLocal, "x")
	assert.ErrorIs(t, err, schemas.ErrUnknownRole)

	_, err = r.Create(context.Background(), schemas.RoleNurse, schemas.BackendRemote, "x")
	assert.ErrorIs(t, err, ErrBackend)
}

func TestGetOrCreate(t *testing.T) {
	local := &fakeBackend{kind: schemas.BackendLocal, delay: 20 * time.Millisecond}
	r := newRegistry(t, local)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]*Session, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := r.GetOrCreate(ctx, schemas.RoleUserA)
			assert.NoError(t, err)
			results[i] = s
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, local.opens.Load())
	for _, s := range results {
		assert.Same(t, results[0], s)
	}
	assert.Equal(t, schemas.RoleUserA, results[0].Role)
	assert.Equal(t, schemas.BackendLocal, results[0].Backend)
	assert.Equal(t, []schemas.RoleID{schemas.RoleUserA}, r.Roles())
}

func TestHybridBackend(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	t.Run("Falls back to local when remote fails", func(t *testing.T) {
		remote := &fakeBackend{kind: schemas.BackendRemote, err: errors.New("connection refused")}
		local := &fakeBackend{kind: schemas.BackendLocal}
		h := NewHybridBackend(remote, local, logger)

		drv, err := h.Open(ctx, "h1")
		require.NoError(t, err)
		assert.Same(t, local.opened[0], drv)
	})

	t.Run("Prefers remote", func(t *testing.T) {
		remote := &fakeBackend{kind: schemas.BackendRemote}
		local := &fakeBackend{kind: schemas.BackendLocal}
		h := NewHybridBackend(remote, local, logger)

		_, err := h.Open(ctx, "h2")
		require.NoError(t, err)
		assert.Zero(t, local.opens.Load())
	})

	t.Run("Reports both failures", func(t *testing.T) {
		remoteErr := errors.New("connection refused")
		localErr := errors.New("chrome not found")
		h := NewHybridBackend(
			&fakeBackend{kind: schemas.BackendRemote, err: remoteErr},
			&fakeBackend{kind: schemas.BackendLocal, err: localErr},
			logger,
		)

		_, err := h.Open(ctx, "h3")
		assert.ErrorIs(t, err, remoteErr)
		assert.ErrorIs(t, err, localErr)
	})
}

func TestNewBackends(t *testing.T) {
	cfg := config.NewDefaultConfig().Browser
	b := NewBackends(cfg, zaptest.NewLogger(t))

	for _, kind := range []schemas.BackendKind{schemas.BackendLocal, schemas.BackendRemote, schemas.BackendHybrid} {
		be, err := b.Get(kind)
		require.NoError(t, err)
		assert.Equal(t, kind, be.Kind())
	}
	assert.NoError(t, b.Close(), "closing an unstarted runtime is a no-op")

	remote, _ := b.Get(schemas.BackendRemote)
	_, err := remote.Open(context.Background(), "r1")
	assert.ErrorContains(t, err, "no remote_url configured")
}

func TestSessionStateOnlyMovesForward(t *testing.T) {
	s := &Session{}
	assert.Equal(t, schemas.SessionCreated, s.State())
	assert.True(t, s.advance(schemas.SessionActive))
	assert.False(t, s.advance(schemas.SessionCreated))
	assert.True(t, s.advance(schemas.SessionQuit))
	assert.False(t, s.advance(schemas.SessionActive))
	assert.Equal(t, schemas.SessionQuit, s.State())
}
