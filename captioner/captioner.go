// Package captioner defines the interface to the external image-captioning model and
// the ways of acquiring one.
//
// Captioning is a black box: a Captioner maps an image to a natural-language
// description. The model may not be available at all (not installed, server down), so
// callers acquire a Captioner through a Loader and are expected to degrade gracefully
// when the Loader fails.
package captioner

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"
)

// ErrUnavailable is returned by a Loader when no captioning model can be acquired.
var ErrUnavailable = errors.New("captioner unavailable")

// Captioner produces a caption for a single image.
type Captioner interface {
	// Caption returns a natural-language description of img.
	// Implementations should return promptly once ctx is done.
	Caption(ctx context.Context, img image.Image) (string, error)
}

// Func adapts an ordinary function to the Captioner interface.
type Func func(ctx context.Context, img image.Image) (string, error)

// Caption calls f(ctx, img).
func (f Func) Caption(ctx context.Context, img image.Image) (string, error) {
	return f(ctx, img)
}

// Loader acquires a Captioner. It is called once, during plugin setup.
type Loader func(ctx context.Context) (Captioner, error)

// Static returns a Loader that always yields c.
func Static(c Captioner) Loader {
	return func(context.Context) (Captioner, error) {
		if c == nil {
			return nil, ErrUnavailable
		}
		return c, nil
	}
}

// Unavailable returns a Loader that always fails with ErrUnavailable.
func Unavailable(reason string) Loader {
	return func(context.Context) (Captioner, error) {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, reason)
	}
}

// WithTimeout bounds every Caption call on c to d. A non-positive d returns c unchanged.
//
// The call is abandoned when the deadline passes even if c ignores its context; the
// result of an abandoned call is discarded.
func WithTimeout(c Captioner, d time.Duration) Captioner {
	if d <= 0 {
		return c
	}
	return &timeoutCaptioner{next: c, timeout: d}
}

type timeoutCaptioner struct {
	next    Captioner
	timeout time.Duration
}

type captionResult struct {
	caption string
	err     error
}

func (t *timeoutCaptioner) Caption(ctx context.Context, img image.Image) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	done := make(chan captionResult, 1)
	go func() {
		caption, err := t.next.Caption(ctx, img)
		done <- captionResult{caption: caption, err: err}
	}()

	select {
	case res := <-done:
		return res.caption, res.err
	case <-ctx.Done():
		return "", fmt.Errorf("captioning after %s: %w", t.timeout, ctx.Err())
	}
}
