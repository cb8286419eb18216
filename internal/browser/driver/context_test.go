// internal/browser/driver/context_test.go
package driver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

type ctxKey struct{}

func TestCombineContext(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	t.Run("inherits primary values and op deadline", func(t *testing.T) {
		primary := context.WithValue(context.Background(), ctxKey{}, "cdp")
		op, cancelOp := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancelOp()

		combined, cancel := CombineContext(primary, op)
		defer cancel()

		assert.Equal(t, "cdp", combined.Value(ctxKey{}))
		_, ok := combined.Deadline()
		assert.True(t, ok)

		select {
		case <-combined.Done():
		case <-time.After(time.Second):
			t.Fatal("combined context did not observe the op deadline")
		}
	})

	t.Run("op cancellation propagates", func(t *testing.T) {
		op, cancelOp := context.WithCancel(context.Background())
		combined, cancel := CombineContext(context.Background(), op)
		defer cancel()

		cancelOp()
		select {
		case <-combined.Done():
		case <-time.After(time.Second):
			t.Fatal("combined context was not canceled")
		}
	})

	t.Run("primary cancellation propagates", func(t *testing.T) {
		primary, cancelPrimary := context.WithCancel(context.Background())
		combined, cancel := CombineContext(primary, context.Background())
		defer cancel()

		cancelPrimary()
		<-combined.Done()
		assert.ErrorIs(t, combined.Err(), context.Canceled)
	})
}

func TestDetach(t *testing.T) {
	parent, cancel := context.WithCancel(context.WithValue(context.Background(), ctxKey{}, "v"))
	cancel()

	d := Detach(parent)
	assert.NoError(t, d.Err())
	assert.Nil(t, d.Done())
	assert.Equal(t, "v", d.Value(ctxKey{}))
}
