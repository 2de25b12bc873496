package captioner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"github.com/nomis52/scenecap/buildinfo"
)

const (
	// DefaultMaxNewTokens bounds the caption length requested from the model.
	DefaultMaxNewTokens = 30
	// DefaultJPEGQuality is the quality frames are encoded at before upload.
	DefaultJPEGQuality = 90

	defaultHTTPTimeout = 60 * time.Second
)

// HTTPClient captions images using a model served over HTTP.
//
// The server is expected to expose:
//
//	GET  /health                       -> 200 when the model is loaded
//	POST /caption?max_new_tokens=N     body: image/jpeg, response: {"caption": "..."}
type HTTPClient struct {
	baseURL      string
	httpClient   *http.Client
	maxNewTokens int
	jpegQuality  int
	logger       *slog.Logger
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHTTPClient sets the underlying http.Client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPClient) {
		h.httpClient = c
	}
}

// WithMaxNewTokens sets the maximum caption length in model tokens.
func WithMaxNewTokens(n int) HTTPOption {
	return func(h *HTTPClient) {
		h.maxNewTokens = n
	}
}

// WithJPEGQuality sets the JPEG quality (1-100) used to upload frames.
func WithJPEGQuality(q int) HTTPOption {
	return func(h *HTTPClient) {
		h.jpegQuality = q
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) HTTPOption {
	return func(h *HTTPClient) {
		h.logger = logger.With("component", "captioner")
	}
}

// NewHTTPClient creates a client for the captioning server at baseURL
// (e.g. "http://localhost:8000"). A trailing slash is ignored.
func NewHTTPClient(baseURL string, opts ...HTTPOption) *HTTPClient {
	c := &HTTPClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   &http.Client{Timeout: defaultHTTPTimeout},
		maxNewTokens: DefaultMaxNewTokens,
		jpegQuality:  DefaultJPEGQuality,
		logger:       slog.Default().With("component", "captioner"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewHTTPLoader returns a Loader that probes the server's health endpoint and yields an
// HTTPClient if the model is serving. An empty baseURL means no captioner is configured.
func NewHTTPLoader(baseURL string, opts ...HTTPOption) Loader {
	return func(ctx context.Context) (Captioner, error) {
		if baseURL == "" {
			return nil, fmt.Errorf("%w: no captioner url configured", ErrUnavailable)
		}
		c := NewHTTPClient(baseURL, opts...)
		if err := c.Health(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return c, nil
	}
}

// Health returns nil if the captioning server reports the model as loaded.
func (c *HTTPClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("creating health request: %w", err)
	}
	req.Header.Set("User-Agent", buildinfo.UserAgent())
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("checking captioner health: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("captioner health: unexpected status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

type captionResponse struct {
	Caption string `json:"caption"`
}

// Caption uploads img as a JPEG and returns the model's caption verbatim.
func (c *HTTPClient) Caption(ctx context.Context, img image.Image) (string, error) {
	if img == nil {
		return "", fmt.Errorf("captioning: nil image")
	}

	var body bytes.Buffer
	if err := imaging.Encode(&body, img, imaging.JPEG, imaging.JPEGQuality(c.jpegQuality)); err != nil {
		return "", fmt.Errorf("encoding frame: %w", err)
	}

	q := url.Values{}
	q.Set("max_new_tokens", strconv.Itoa(c.maxNewTokens))
	endpoint := c.baseURL + "/caption?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("creating caption request: %w", err)
	}
	req.Header.Set("Content-Type", "image/jpeg")
	req.Header.Set("User-Agent", buildinfo.UserAgent())

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("sending caption request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("caption request: unexpected status %d: %s", resp.StatusCode, string(msg))
	}

	var cr captionResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", fmt.Errorf("decoding caption response: %w", err)
	}

	c.logger.Debug("frame captioned", "caption", cr.Caption, "duration", time.Since(start))
	return cr.Caption, nil
}
