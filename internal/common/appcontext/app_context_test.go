package appcontext

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var defaultLogger = logrus.WithField("foo", "bar")

func TestNew(t *testing.T) {
	ctx := New(context.Background(), defaultLogger)
	require.Equal(t, defaultLogger, ctx.Log)
	require.Equal(t, context.Background(), ctx.Context)
}

func TestBackground(t *testing.T) {
	ctx := Background()
	require.Equal(t, ctx.Context, context.Background())
}

func TestFromContext(t *testing.T) {
	ctx := WithLogFields(Background(), logrus.Fields{"a": 1})
	assert.Same(t, ctx, FromContext(ctx))

	wrapped := FromContext(context.Background())
	assert.NotNil(t, wrapped.Log)
	assert.Equal(t, context.Background(), wrapped.Context)
}

func TestWithLogFields(t *testing.T) {
	ctx := WithLogFields(Background(), logrus.Fields{"fish": "chips", "salt": "pepper"})
	require.Equal(t, context.Background(), ctx.Context)
	require.Equal(t, logrus.Fields{"fish": "chips", "salt": "pepper"}, ctx.Log.Data)
}

func TestDetach(t *testing.T) {
	parent, cancel := WithCancel(WithLogFields(Background(), logrus.Fields{"jobId": "1"}))
	detached := Detach(parent)
	cancel()
	assert.Error(t, parent.Err())
	assert.NoError(t, detached.Err())
	assert.Equal(t, parent.Log, detached.Log)
}

func TestWithTimeout(t *testing.T) {
	ctx, _ := WithTimeout(Background(), 100*time.Millisecond)
	testDeadline(t, ctx)
}

func TestWithDeadline(t *testing.T) {
	ctx, _ := WithDeadline(Background(), time.Now().Add(100*time.Millisecond))
	testDeadline(t, ctx)
}

func TestErrGroup(t *testing.T) {
	g, ctx := ErrGroup(WithLogFields(Background(), logrus.Fields{"a": "b"}))
	g.Go(func() error { return context.Canceled })
	assert.ErrorIs(t, g.Wait(), context.Canceled)
	assert.Error(t, ctx.Err())
	assert.Equal(t, logrus.Fields{"a": "b"}, ctx.Log.Data)
}

func testDeadline(t *testing.T, c *Context) {
	t.Helper()
	d := quiescent(t)
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		t.Fatalf("context not timed out after %v", d)
	case <-c.Done():
	}
	if e := c.Err(); e != context.DeadlineExceeded {
		t.Errorf("c.Err() == %v; want %v", e, context.DeadlineExceeded)
	}
}

func quiescent(t *testing.T) time.Duration {
	deadline, ok := t.Deadline()
	if !ok {
		return 5 * time.Second
	}

	const arbitraryCleanupMargin = 1 * time.Second
	return time.Until(deadline) - arbitraryCleanupMargin
}

func TestWithSignals(t *testing.T) {
	ctx, stop := WithSignals(Background(), syscall.SIGUSR1)
	defer stop()
	assert.NoError(t, ctx.Err())

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGUSR1))
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("context was not cancelled after signal")
	}
}

func TestWithSignals_Stop(t *testing.T) {
	ctx, stop := WithSignals(Background(), syscall.SIGUSR2)
	stop()
	<-ctx.Done()
	assert.Equal(t, context.Canceled, ctx.Err())
}
