// internal/session/backend.go
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wardrunner/api/schemas"
	"github.com/xkilldash9x/wardrunner/internal/browser/driver"
	"github.com/xkilldash9x/wardrunner/internal/config"
)

// ErrBackend wraps every failure to construct a browser session.
var ErrBackend = errors.New("session backend failed")

const playwrightInstallTimeout = 5 * time.Minute

// Backend constructs browser drivers.
type Backend interface {
	Kind() schemas.BackendKind
	Open(ctx context.Context, name string) (driver.Driver, error)
}

// Backends resolves a BackendKind to its strategy.
type Backends struct {
	byKind map[schemas.BackendKind]Backend
	pw     *playwrightRuntime
}

// NewBackends builds the local, remote and hybrid strategies for cfg's engine.
// The playwright runtime, if that engine is selected, starts on first use.
func NewBackends(cfg config.BrowserConfig, logger *zap.Logger) *Backends {
	logger = logger.Named("backend")
	opts := driver.OptionsFromConfig(cfg)
	b := &Backends{}
	if cfg.Engine == config.EnginePlaywright {
		b.pw = &playwrightRuntime{logger: logger}
	}

	local := &LocalBackend{opts: opts, pw: b.pw, logger: logger}
	remote := &RemoteBackend{url: cfg.RemoteURL, opts: opts, pw: b.pw, logger: logger}
	b.byKind = map[schemas.BackendKind]Backend{
		schemas.BackendLocal:  local,
		schemas.BackendRemote: remote,
		schemas.BackendHybrid: NewHybridBackend(remote, local, logger),
	}
	return b
}

// BackendsOf registers the given strategies by their Kind.
func BackendsOf(list ...Backend) *Backends {
	b := &Backends{byKind: make(map[schemas.BackendKind]Backend, len(list))}
	for _, be := range list {
		b.byKind[be.Kind()] = be
	}
	return b
}

// Get returns the strategy for kind.
func (b *Backends) Get(kind schemas.BackendKind) (Backend, error) {
	be, ok := b.byKind[kind]
	if !ok {
		return nil, fmt.Errorf("%w: no %q backend configured", ErrBackend, kind)
	}
	return be, nil
}

// Close stops the shared playwright runtime if it was started.
func (b *Backends) Close() error {
	if b.pw == nil {
		return nil
	}
	return b.pw.stop()
}

// LocalBackend launches a browser process on this host.
type LocalBackend struct {
	opts   driver.Options
	pw     *playwrightRuntime
	logger *zap.Logger
}

func (l *LocalBackend) Kind() schemas.BackendKind { return schemas.BackendLocal }

func (l *LocalBackend) Open(ctx context.Context, name string) (driver.Driver, error) {
	logger := l.logger.With(zap.String("session", name), zap.String("backend", string(l.Kind())))
	if l.pw == nil {
		return driver.LaunchChromedp(ctx, l.opts, logger)
	}
	pw, err := l.pw.get(ctx)
	if err != nil {
		return nil, err
	}
	return driver.LaunchPlaywright(ctx, pw, l.opts, logger)
}

// RemoteBackend attaches to a browser on an execution grid.
type RemoteBackend struct {
	url    string
	opts   driver.Options
	pw     *playwrightRuntime
	logger *zap.Logger
}

func (r *RemoteBackend) Kind() schemas.BackendKind { return schemas.BackendRemote }

func (r *RemoteBackend) Open(ctx context.Context, name string) (driver.Driver, error) {
	if r.url == "" {
		return nil, errors.New("no remote_url configured")
	}
	logger := r.logger.With(zap.String("session", name), zap.String("backend", string(r.Kind())), zap.String("url", r.url))
	if r.pw == nil {
		return driver.ConnectChromedp(ctx, r.url, r.opts, logger)
	}
	pw, err := r.pw.get(ctx)
	if err != nil {
		return nil, err
	}
	return driver.ConnectPlaywright(ctx, pw, r.url, r.opts, logger)
}

// HybridBackend tries the remote grid first and falls back to a local browser.
type HybridBackend struct {
	remote, local Backend
	logger        *zap.Logger
}

func NewHybridBackend(remote, local Backend, logger *zap.Logger) *HybridBackend {
	return &HybridBackend{remote: remote, local: local, logger: logger}
}

func (h *HybridBackend) Kind() schemas.BackendKind { return schemas.BackendHybrid }

func (h *HybridBackend) Open(ctx context.Context, name string) (driver.Driver, error) {
	drv, remoteErr := h.remote.Open(ctx, name)
	if remoteErr == nil {
		return drv, nil
	}
	h.logger.Warn("Remote backend unavailable; falling back to local browser.",
		zap.String("session", name), zap.Error(remoteErr))

	drv, localErr := h.local.Open(ctx, name)
	if localErr != nil {
		return nil, multierr.Combine(
			fmt.Errorf("remote: %w", remoteErr),
			fmt.Errorf("local: %w", localErr),
		)
	}
	return drv, nil
}

// playwrightRuntime is the playwright driver process shared by every session.
type playwrightRuntime struct {
	once   sync.Once
	pw     *playwright.Playwright
	err    error
	mu     sync.Mutex
	logger *zap.Logger
}

func (r *playwrightRuntime) get(ctx context.Context) (*playwright.Playwright, error) {
	r.once.Do(func() {
		r.logger.Info("Starting playwright runtime...")
		if err := r.ensureInstallation(ctx); err != nil {
			r.err = err
			return
		}
		pw, err := playwright.Run()
		if err != nil {
			r.err = fmt.Errorf("failed to start playwright driver: %w", err)
			return
		}
		r.mu.Lock()
		r.pw = pw
		r.mu.Unlock()
	})
	return r.pw, r.err
}

func (r *playwrightRuntime) ensureInstallation(ctx context.Context) error {
	installCtx, cancel := context.WithTimeout(ctx, playwrightInstallTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}}); err != nil {
			done <- fmt.Errorf("failed to install playwright browsers: %w", err)
			return
		}
		done <- nil
	}()

	select {
	case err := <-done:
		return err
	case <-installCtx.Done():
		return fmt.Errorf("timeout waiting for playwright installation: %w", installCtx.Err())
	}
}

func (r *playwrightRuntime) stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pw == nil {
		return nil
	}
	err := r.pw.Stop()
	r.pw = nil
	return err
}
