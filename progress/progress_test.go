package progress

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nomis52/scenecap/logging"
)

func TestHandler(t *testing.T) {
	t.Run("set and get", func(t *testing.T) {
		h := NewHandler()
		h.Set("activity", "processed 4 frames")
		assert.Equal(t, "processed 4 frames", h.Get("activity"))
	})

	t.Run("get returns empty for unknown plugin", func(t *testing.T) {
		assert.Equal(t, "", NewHandler().Get("missing"))
	})

	t.Run("all returns a copy", func(t *testing.T) {
		h := NewHandler()
		h.Set("a", "one")
		h.Set("b", "two")

		all := h.All()
		assert.Equal(t, map[string]string{"a": "one", "b": "two"}, all)

		all["a"] = "changed"
		assert.Equal(t, "one", h.Get("a"))
	})

	t.Run("reset", func(t *testing.T) {
		h := NewHandler()
		h.Set("a", "one")
		h.Reset()
		assert.Empty(t, h.All())
	})

	t.Run("concurrent access", func(t *testing.T) {
		h := NewHandler()
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				h.Set("a", "status")
				_ = h.All()
			}()
		}
		wg.Wait()
		assert.Equal(t, "status", h.Get("a"))
	})
}

func TestLine(t *testing.T) {
	h := NewHandler()
	line := NewLine("activity", logging.Discard(), h)

	line.Set("reducing")
	assert.Equal(t, "reducing", h.Get("activity"))

	// Without a handler statuses are only logged.
	NewLine("activity", logging.Discard(), nil).Set("ignored")
	assert.Equal(t, "reducing", h.Get("activity"))

	var nilLine *Line
	assert.NotPanics(t, func() { nilLine.Set("nothing") })
}
