// internal/browser/action/executor_test.go
package action_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/wardrunner/api/schemas"
	"github.com/xkilldash9x/wardrunner/internal/browser/action"
	"github.com/xkilldash9x/wardrunner/internal/browser/driver"
	"github.com/xkilldash9x/wardrunner/internal/browser/wait"
	"github.com/xkilldash9x/wardrunner/internal/mocks"
	"github.com/xkilldash9x/wardrunner/internal/observability"
)

var saveButton = schemas.CSS("button#save")

type fixture struct {
	drv     *mocks.MockDriver
	el      *mocks.MockElement
	exec    *action.Executor
	metrics *observability.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	drv := new(mocks.MockDriver)
	el := mocks.NewMockElement(saveButton)
	drv.On("Find", mock.Anything, saveButton).Return(el, nil)

	waits := wait.New(drv, wait.Options{PollInterval: 5 * time.Millisecond, ProbeTimeout: 20 * time.Millisecond}, logger)
	policy := action.DefaultPolicy()
	policy.SettleDelay = time.Millisecond
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	return &fixture{
		drv:     drv,
		el:      el,
		exec:    action.New(drv, waits, action.Options{Policy: policy}, logger, metrics),
		metrics: metrics,
	}
}

// countingOp fails every call to Do and Fallback with the given errors.
type countingOp struct {
	do, fallback int
}

func (c *countingOp) op(doErr, fallbackErr error, withFallback bool) action.Operation {
	op := action.Operation{
		Name: "counted",
		Do: func(context.Context, driver.Element) (interface{}, error) {
			c.do++
			return nil, doErr
		},
	}
	if withFallback {
		op.Fallback = func(context.Context, driver.Element) (interface{}, error) {
			c.fallback++
			return nil, fallbackErr
		}
	}
	return op
}

func TestExecuteBoundedRetries(t *testing.T) {
	failures := map[string]error{
		"stale":       driver.ErrStaleElement,
		"intercepted": driver.ErrClickIntercepted,
		"timeout":     driver.ErrTimeout,
		"generic":     errors.New("detached frame"),
	}
	for name, failure := range failures {
		for n := 1; n <= 5; n++ {
			for _, withFallback := range []bool{false, true} {
				t.Run(fmt.Sprintf("%s/max=%d/fallback=%v", name, n, withFallback), func(t *testing.T) {
					f := newFixture(t)
					c := &countingOp{}
					policy := f.exec.Policy()
					policy.MaxAttempts = n

					res, err := f.exec.Execute(context.Background(), saveButton, c.op(failure, failure, withFallback), policy)

					require.Error(t, err)
					assert.ErrorIs(t, err, failure)
					assert.False(t, res.OK)
					assert.LessOrEqual(t, c.do+c.fallback, n, "primitive attempts must stay within budget")
					assert.Equal(t, c.do+c.fallback, res.Attempts)

					var aerr *action.ActionError
					require.ErrorAs(t, err, &aerr)
					assert.Equal(t, saveButton, aerr.Locator)
				})
			}
		}
	}
}

func TestExecuteInterceptedUsesFallbackBeforeExhaustion(t *testing.T) {
	f := newFixture(t)
	f.el.On("Click", mock.Anything).Return(driver.ErrClickIntercepted)
	f.el.On("ScriptClick", mock.Anything).Return(nil).Once()

	ok, err := f.exec.Click(context.Background(), saveButton, action.WithoutPreCondition())

	require.NoError(t, err)
	assert.True(t, ok)
	f.el.AssertNumberOfCalls(t, "Click", 1)
	f.el.AssertNumberOfCalls(t, "ScriptClick", 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Fallbacks.WithLabelValues("click", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ActionAttempts.WithLabelValues("click", "intercepted")))
}

func TestExecuteInterceptedWithoutFallbackRetries(t *testing.T) {
	f := newFixture(t)
	f.el.On("Click", mock.Anything).Return(driver.ErrClickIntercepted).Twice()
	f.el.On("Click", mock.Anything).Return(nil).Once()

	ok, err := f.exec.Click(context.Background(), saveButton, action.WithoutPreCondition(), action.WithFallback(false))

	require.NoError(t, err)
	assert.True(t, ok)
	f.el.AssertNumberOfCalls(t, "Click", 3)
	f.el.AssertNotCalled(t, "ScriptClick", mock.Anything)
}

func TestExecuteStaleFallsBackOnLastAttempt(t *testing.T) {
	f := newFixture(t)
	f.el.On("Click", mock.Anything).Return(driver.ErrStaleElement)
	f.el.On("ScriptClick", mock.Anything).Return(nil)

	policy := f.exec.Policy()
	res, err := f.exec.Execute(context.Background(), saveButton, action.Operation{
		Name: "click",
		Do: func(ctx context.Context, el driver.Element) (interface{}, error) {
			return nil, el.Click(ctx)
		},
		Fallback: func(ctx context.Context, el driver.Element) (interface{}, error) {
			return nil, el.ScriptClick(ctx)
		},
	}, policy)

	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.True(t, res.UsedFallback)
	assert.Equal(t, 3, res.Attempts)
	f.el.AssertNumberOfCalls(t, "Click", 2)
	f.el.AssertNumberOfCalls(t, "ScriptClick", 1)
	f.drv.AssertNumberOfCalls(t, "Find", 2)
}

func TestExecuteRecoversAfterTransientFailure(t *testing.T) {
	f := newFixture(t)
	f.el.On("Text", mock.Anything).Return("", driver.ErrStaleElement).Once()
	f.el.On("Text", mock.Anything).Return("Saved", nil).Once()

	text, err := f.exec.GetText(context.Background(), saveButton, action.WithoutPreCondition())

	require.NoError(t, err)
	assert.Equal(t, "Saved", text)
	f.drv.AssertNumberOfCalls(t, "Find", 2)
}

func TestExecuteSuppressedTimeout(t *testing.T) {
	f := newFixture(t)
	f.el.On("Click", mock.Anything).Return(driver.ErrTimeout)

	ok, err := f.exec.Click(context.Background(), saveButton, action.WithoutPreCondition(), action.SuppressTimeout())

	require.NoError(t, err)
	assert.False(t, ok)
	f.el.AssertNumberOfCalls(t, "Click", 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ActionOutcomes.WithLabelValues("click", "suppressed")))
}

func TestGetTextSuppressedReturnsEmpty(t *testing.T) {
	f := newFixture(t)
	f.el.On("Text", mock.Anything).Return("", fmt.Errorf("read: %w", context.DeadlineExceeded))

	text, err := f.exec.GetText(context.Background(), saveButton, action.WithoutPreCondition(), action.SuppressTimeout())
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestExecutePreconditionFailureIsReturned(t *testing.T) {
	f := newFixture(t)
	never := func(context.Context) (bool, error) { return false, nil }

	ok, err := f.exec.Click(context.Background(), saveButton, action.WithPreCondition(never, 20*time.Millisecond))

	assert.False(t, ok)
	assert.ErrorIs(t, err, wait.ErrTimeout)
	f.el.AssertNotCalled(t, "Click", mock.Anything)
}

func TestClickSuppressesPreconditionTimeout(t *testing.T) {
	f := newFixture(t)
	never := func(context.Context) (bool, error) { return false, nil }

	ok, err := f.exec.Click(context.Background(), saveButton,
		action.SuppressTimeout(), action.WithPreCondition(never, 30*time.Millisecond))

	require.NoError(t, err)
	assert.False(t, ok)
	f.el.AssertNotCalled(t, "Click", mock.Anything)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ActionOutcomes.WithLabelValues("click", "suppressed")))
}

func TestExecuteResolvesEveryAttempt(t *testing.T) {
	f := newFixture(t)
	missing := schemas.XPath("//button[text()='Gone']")
	f.drv.On("Find", mock.Anything, missing).Return(nil, driver.ErrNoSuchElement)

	policy := f.exec.Policy()
	c := &countingOp{}
	_, err := f.exec.Execute(context.Background(), missing, c.op(nil, nil, true), policy)

	assert.ErrorIs(t, err, driver.ErrNoSuchElement)
	assert.Zero(t, c.do, "primitive must not run without an element")
	assert.Zero(t, c.fallback)
	f.drv.AssertNumberOfCalls(t, "Find", policy.MaxAttempts)
}

func TestExecuteCancelledDuringSettle(t *testing.T) {
	f := newFixture(t)
	f.el.On("Click", mock.Anything).Return(errors.New("flaky"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	policy := f.exec.Policy()
	policy.SettleDelay = time.Second

	_, err := f.exec.Execute(ctx, saveButton, action.Operation{
		Name: "click",
		Do: func(ctx context.Context, el driver.Element) (interface{}, error) {
			return nil, el.Click(ctx)
		},
	}, policy)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestElementOperations(t *testing.T) {
	ctx := context.Background()

	t.Run("SendKeys falls back to script value", func(t *testing.T) {
		f := newFixture(t)
		f.el.On("SendKeys", mock.Anything, "nina").Return(driver.ErrClickIntercepted)
		f.el.On("ScriptSetValue", mock.Anything, "nina").Return(nil)

		ok, err := f.exec.SendKeys(ctx, saveButton, "nina", action.WithoutPreCondition())
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("GetAttribute", func(t *testing.T) {
		f := newFixture(t)
		f.el.On("Attribute", mock.Anything, "aria-disabled").Return("false", nil)

		v, err := f.exec.GetAttribute(ctx, saveButton, "aria-disabled")
		require.NoError(t, err)
		assert.Equal(t, "false", v)
	})

	t.Run("SelectByVisibleText", func(t *testing.T) {
		f := newFixture(t)
		f.el.On("SelectByText", mock.Anything, "Cardiology").Return(nil)

		ok, err := f.exec.SelectByVisibleText(ctx, saveButton, "Cardiology", action.WithoutPreCondition())
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("IsVisible true", func(t *testing.T) {
		f := newFixture(t)
		f.el.On("Visible", mock.Anything).Return(true, nil)

		ok, err := f.exec.IsVisible(ctx, saveButton, 50*time.Millisecond)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("IsVisible expiry is false without error", func(t *testing.T) {
		f := newFixture(t)
		f.el.On("Visible", mock.Anything).Return(false, nil)

		ok, err := f.exec.IsVisible(ctx, saveButton, 30*time.Millisecond)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("IsClickable requires enabled", func(t *testing.T) {
		f := newFixture(t)
		f.el.On("Visible", mock.Anything).Return(true, nil)
		f.el.On("Enabled", mock.Anything).Return(false, nil)

		ok, err := f.exec.IsClickable(ctx, saveButton, 30*time.Millisecond)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("WaitForLoader uses configured loaders", func(t *testing.T) {
		logger := zaptest.NewLogger(t)
		drv := new(mocks.MockDriver)
		spinner := schemas.CSS(".spinner")
		drv.On("Find", mock.Anything, spinner).Return(nil, driver.ErrNoSuchElement)
		waits := wait.New(drv, wait.Options{PollInterval: 5 * time.Millisecond}, logger)
		exec := action.New(drv, waits, action.Options{Policy: action.DefaultPolicy(), Loaders: wait.LoaderSet{spinner}}, logger, nil)

		ok, err := exec.WaitForLoader(ctx, time.Second, true)
		require.NoError(t, err)
		assert.True(t, ok)
		drv.AssertCalled(t, "Find", mock.Anything, spinner)
	})
}
