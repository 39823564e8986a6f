package resource

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_Workers(t *testing.T) {
	c := NewController(Config{MaxWorkers: 2})

	require.NoError(t, c.AcquireWorker(t.Context()))
	require.NoError(t, c.AcquireWorker(t.Context()))

	assert.False(t, c.TryAcquireWorker())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.AcquireWorker(ctx), context.DeadlineExceeded)

	c.ReleaseWorker()
	assert.True(t, c.TryAcquireWorker())
}

func TestController_DefaultWorkers(t *testing.T) {
	c := NewController(Config{})

	require.True(t, c.TryAcquireWorker())
	assert.False(t, c.TryAcquireWorker())
}

func TestController_IO(t *testing.T) {
	t.Run("unlimited", func(t *testing.T) {
		c := NewController(Config{})
		assert.NoError(t, c.AcquireIO(context.Background(), 1<<30))
		assert.True(t, c.TryAcquireIO(1<<30))
	})

	t.Run("limited", func(t *testing.T) {
		c := NewController(Config{IOBytesPerSec: 100})

		assert.True(t, c.TryAcquireIO(100))
		assert.False(t, c.TryAcquireIO(50))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		assert.Error(t, c.AcquireIO(ctx, 50))
	})

	t.Run("larger than burst", func(t *testing.T) {
		c := NewController(Config{IOBytesPerSec: 1000})

		start := time.Now()
		require.NoError(t, c.AcquireIO(context.Background(), 1500))
		assert.GreaterOrEqual(t, time.Since(start), 400*time.Millisecond)
	})
}

func TestController_NilChecks(t *testing.T) {
	var c *Controller
	assert.NoError(t, c.AcquireWorker(context.Background()))
	assert.True(t, c.TryAcquireWorker())
	c.ReleaseWorker()
	assert.NoError(t, c.AcquireIO(context.Background(), 10))
	assert.True(t, c.TryAcquireIO(10))
}

func TestRateLimitedIO(t *testing.T) {
	ctx := context.Background()

	t.Run("writer", func(t *testing.T) {
		var buf bytes.Buffer
		w := NewRateLimitedWriter(ctx, &buf, NewController(Config{IOBytesPerSec: 1 << 20}))

		n, err := w.Write([]byte("hello"))
		require.NoError(t, err)
		assert.Equal(t, 5, n)
		assert.Equal(t, "hello", buf.String())
	})

	t.Run("reader", func(t *testing.T) {
		r := NewRateLimitedReader(ctx, strings.NewReader("hello world"), NewController(Config{IOBytesPerSec: 1 << 20}))

		got, err := io.ReadAll(r)
		require.NoError(t, err)
		assert.Equal(t, "hello world", string(got))
	})

	t.Run("canceled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		c := NewController(Config{IOBytesPerSec: 10})
		require.True(t, c.TryAcquireIO(10))
		cancel()

		var buf bytes.Buffer
		_, err := NewRateLimitedWriter(cctx, &buf, c).Write([]byte("x"))
		assert.Error(t, err)
		assert.Zero(t, buf.Len())
	})
}
