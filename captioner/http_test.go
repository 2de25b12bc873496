package captioner

import (
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 30), G: uint8(y * 30), B: 128, A: 255})
		}
	}
	return img
}

func newCaptionServer(t *testing.T, healthy bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			if !healthy {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte("model loading"))
				return
			}
			w.WriteHeader(http.StatusOK)
		case "/caption":
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "image/jpeg", r.Header.Get("Content-Type"))
			assert.Equal(t, "12", r.URL.Query().Get("max_new_tokens"))
			assert.True(t, strings.HasPrefix(r.Header.Get("User-Agent"), "scenecap/"))

			_, err := jpeg.Decode(r.Body)
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"caption": "a dog running in park"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestHTTPClient_Caption(t *testing.T) {
	ts := newCaptionServer(t, true)
	defer ts.Close()

	c := NewHTTPClient(ts.URL, WithMaxNewTokens(12))
	got, err := c.Caption(context.Background(), testImage())
	require.NoError(t, err)
	assert.Equal(t, "a dog running in park", got)
}

func TestHTTPClient_TrailingSlash(t *testing.T) {
	ts := newCaptionServer(t, true)
	defer ts.Close()

	loader := NewHTTPLoader(ts.URL+"/", WithMaxNewTokens(12))
	c, err := loader(context.Background())
	require.NoError(t, err)

	got, err := c.Caption(context.Background(), testImage())
	require.NoError(t, err)
	assert.Equal(t, "a dog running in park", got)
}

func TestHTTPClient_CaptionErrors(t *testing.T) {
	t.Run("nil image", func(t *testing.T) {
		c := NewHTTPClient("http://127.0.0.1:1")
		_, err := c.Caption(context.Background(), nil)
		assert.Error(t, err)
	})

	t.Run("server error", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("cuda out of memory"))
		}))
		defer ts.Close()

		_, err := NewHTTPClient(ts.URL).Caption(context.Background(), testImage())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "500")
		assert.Contains(t, err.Error(), "cuda out of memory")
	})

	t.Run("bad json", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("not json"))
		}))
		defer ts.Close()

		_, err := NewHTTPClient(ts.URL).Caption(context.Background(), testImage())
		assert.Error(t, err)
	})
}

func TestNewHTTPLoader(t *testing.T) {
	t.Run("healthy server", func(t *testing.T) {
		ts := newCaptionServer(t, true)
		defer ts.Close()

		c, err := NewHTTPLoader(ts.URL, WithMaxNewTokens(12))(context.Background())
		require.NoError(t, err)
		require.NotNil(t, c)

		got, err := c.Caption(context.Background(), testImage())
		require.NoError(t, err)
		assert.Equal(t, "a dog running in park", got)
	})

	t.Run("unhealthy server", func(t *testing.T) {
		ts := newCaptionServer(t, false)
		defer ts.Close()

		c, err := NewHTTPLoader(ts.URL)(context.Background())
		assert.Nil(t, c)
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.Contains(t, err.Error(), "model loading")
	})

	t.Run("no url", func(t *testing.T) {
		c, err := NewHTTPLoader("")(context.Background())
		assert.Nil(t, c)
		assert.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("unreachable", func(t *testing.T) {
		ts := newCaptionServer(t, true)
		url := ts.URL
		ts.Close()

		_, err := NewHTTPLoader(url)(context.Background())
		assert.ErrorIs(t, err, ErrUnavailable)
	})
}
