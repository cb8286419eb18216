// internal/login/login.go

// Package login authenticates a role's browser session against the active
// environment. Each attempt navigates to the login page, submits the role's
// credentials and verifies that the application let the user in.
package login

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/wardrunner/api/schemas"
	"github.com/xkilldash9x/wardrunner/internal/config"
	"github.com/xkilldash9x/wardrunner/internal/observability"
	"github.com/xkilldash9x/wardrunner/internal/reporting"
	"github.com/xkilldash9x/wardrunner/internal/session"
)

const DefaultMaxRetries = 3

// SessionProvider hands out the live session for a role.
type SessionProvider interface {
	GetOrCreate(ctx context.Context, role schemas.RoleID) (*session.Session, error)
}

// Orchestrator runs the login state machine.
type Orchestrator struct {
	cfg      config.Config
	sessions SessionProvider
	creds    CredentialSource
	reporter reporting.Reporter
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// New creates an Orchestrator. reporter and metrics may be nil.
func New(cfg config.Config, sessions SessionProvider, creds CredentialSource, reporter reporting.Reporter, logger *zap.Logger, metrics *observability.Metrics) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		sessions: sessions,
		creds:    creds,
		reporter: reporter,
		logger:   logger.Named("login"),
		metrics:  metrics,
	}
}

// LoginAsRole logs role in, making at most maxRetries attempts (at least
// one). It returns false with a nil error when every attempt failed
// verification. Credential, environment and session construction failures
// are returned immediately.
func (o *Orchestrator) LoginAsRole(ctx context.Context, role schemas.RoleID, maxRetries int) (bool, error) {
	if maxRetries < 1 {
		maxRetries = 1
	}
	log := o.logger.With(zap.Stringer("role", role), zap.String("environment", o.cfg.Environment))

	env, err := o.cfg.ActiveEnvironment()
	if err != nil {
		return false, fmt.Errorf("login as %s: %w", role, err)
	}
	cred, err := o.creds.Lookup(ctx, o.cfg.Environment, role)
	if err == nil && cred.Empty() {
		err = errors.New("empty username or password")
	}
	if err != nil {
		if !errors.Is(err, ErrCredentials) {
			err = fmt.Errorf("%w: %w", ErrCredentials, err)
		}
		return false, fmt.Errorf("login as %s: %w", role, err)
	}

	s, err := o.sessions.GetOrCreate(ctx, role)
	if err != nil {
		return false, fmt.Errorf("login as %s: %w", role, err)
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		err := o.attempt(ctx, s, env, cred)
		o.metrics.ObserveLogin(role.String(), err == nil)
		if err == nil {
			log.Info("Logged in.", zap.Int("attempt", attempt))
			return true, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, fmt.Errorf("login as %s: %w", role, ctxErr)
		}
		lastErr = err
		log.Warn("Login attempt failed.", zap.Int("attempt", attempt), zap.Int("max_retries", maxRetries), zap.Error(err))
	}

	log.Error("Login failed; retries exhausted.", zap.Int("attempts", maxRetries), zap.Error(lastErr))
	o.report(ctx, s, role, lastErr)
	return false, nil
}

func (o *Orchestrator) attempt(ctx context.Context, s *session.Session, env config.EnvironmentConfig, cred schemas.Credential) error {
	if err := o.navigateToLogin(ctx, s, env); err != nil {
		return err
	}
	if err := o.submitCredentials(ctx, s, cred); err != nil {
		return err
	}
	return o.verifySuccess(ctx, s, env)
}

func (o *Orchestrator) navigateToLogin(ctx context.Context, s *session.Session, env config.EnvironmentConfig) error {
	if err := s.Driver().Navigate(ctx, env.LoginURL()); err != nil {
		return fmt.Errorf("navigate to login: %w", err)
	}
	s.Waits().WaitForDocumentReady(ctx, o.cfg.Wait.DocumentTimeout)
	return nil
}

func (o *Orchestrator) submitCredentials(ctx context.Context, s *session.Session, cred schemas.Credential) error {
	actions := s.Actions()
	form := o.cfg.Login

	steps := []struct {
		what string
		run  func() (bool, error)
	}{
		{"username", func() (bool, error) { return actions.SendKeys(ctx, form.Username, cred.Username) }},
		{"password", func() (bool, error) { return actions.SendKeys(ctx, form.Password, cred.Password) }},
		{"submit", func() (bool, error) { return actions.Click(ctx, form.Submit) }},
	}
	for _, step := range steps {
		ok, err := step.run()
		if err != nil {
			return fmt.Errorf("submit credentials (%s): %w", step.what, err)
		}
		if !ok {
			return fmt.Errorf("submit credentials (%s): interaction did not complete", step.what)
		}
	}
	return nil
}

func (o *Orchestrator) verifySuccess(ctx context.Context, s *session.Session, env config.EnvironmentConfig) error {
	timeout := o.cfg.Login.VerifyTimeout
	start := time.Now()
	if locs := o.cfg.Login.SuccessLocators; len(locs) > 0 {
		if _, err := s.Waits().WaitForAnyVisible(ctx, locs, timeout); err != nil {
			return fmt.Errorf("verify login: %w", err)
		}
	}

	left := max(timeout-time.Since(start), s.Waits().PollInterval())
	var url string
	err := s.Waits().WaitFor(ctx, func(ctx context.Context) (bool, error) {
		var err error
		url, err = s.Driver().CurrentURL(ctx)
		return err == nil && !onLoginPage(url, env), err
	}, left)
	if err != nil {
		return fmt.Errorf("verify login: still on login page %q: %w", url, err)
	}
	return nil
}

func onLoginPage(url string, env config.EnvironmentConfig) bool {
	path := strings.Trim(env.LoginPath, "/")
	if path == "" {
		return strings.TrimRight(url, "/") == strings.TrimRight(env.LoginURL(), "/")
	}
	return strings.Contains(url, "/"+path)
}

func (o *Orchestrator) report(ctx context.Context, s *session.Session, role schemas.RoleID, cause error) {
	if o.reporter == nil {
		return
	}
	path, err := o.reporter.Attach(ctx, s.Driver(), role, cause)
	if err != nil {
		o.logger.Warn("Failed to attach failure report.", zap.Stringer("role", role), zap.Error(err))
		return
	}
	if path != "" {
		o.logger.Info("Failure report attached.", zap.Stringer("role", role), zap.String("path", path))
	}
}
