package captioner

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFunc(t *testing.T) {
	c := Func(func(ctx context.Context, img image.Image) (string, error) {
		return "a cat", nil
	})
	got, err := c.Caption(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "a cat", got)
}

func TestStatic(t *testing.T) {
	c := Func(func(context.Context, image.Image) (string, error) { return "x", nil })

	got, err := Static(c)(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, got)

	_, err = Static(nil)(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestUnavailable(t *testing.T) {
	c, err := Unavailable("model not installed")(context.Background())
	assert.Nil(t, c)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "model not installed")
}

func TestWithTimeout(t *testing.T) {
	fast := Func(func(context.Context, image.Image) (string, error) { return "fast", nil })
	failing := Func(func(context.Context, image.Image) (string, error) { return "", errors.New("boom") })
	stuck := Func(func(context.Context, image.Image) (string, error) {
		// Ignores its context on purpose.
		time.Sleep(time.Second)
		return "late", nil
	})

	t.Run("non-positive timeout is a no-op", func(t *testing.T) {
		_, wrapped := WithTimeout(fast, 0).(*timeoutCaptioner)
		assert.False(t, wrapped)
		_, wrapped = WithTimeout(fast, -time.Second).(*timeoutCaptioner)
		assert.False(t, wrapped)
	})

	t.Run("fast call passes through", func(t *testing.T) {
		got, err := WithTimeout(fast, time.Second).Caption(context.Background(), nil)
		require.NoError(t, err)
		assert.Equal(t, "fast", got)
	})

	t.Run("errors pass through", func(t *testing.T) {
		_, err := WithTimeout(failing, time.Second).Caption(context.Background(), nil)
		assert.EqualError(t, err, "boom")
	})

	t.Run("slow call is abandoned", func(t *testing.T) {
		start := time.Now()
		_, err := WithTimeout(stuck, 20*time.Millisecond).Caption(context.Background(), nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), 500*time.Millisecond)
	})

	t.Run("parent cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := WithTimeout(stuck, time.Minute).Caption(ctx, nil)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
