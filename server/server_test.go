package server

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomis52/scenecap/logging"
	"github.com/nomis52/scenecap/pipeline"
	"github.com/nomis52/scenecap/server/cron"
	"github.com/nomis52/scenecap/server/handlers"
	"github.com/nomis52/scenecap/server/runner"
)

type stubAnalyzer struct{}

func (stubAnalyzer) AnalyzeFile(ctx context.Context, manifest string) (*pipeline.Report, error) {
	return &pipeline.Report{SourceID: strings.TrimSuffix(filepath.Base(manifest), ".json"), Frames: 3}, nil
}

func newTestRunner(t *testing.T) *runner.Runner {
	t.Helper()
	r, err := runner.New(logging.Discard(), stubAnalyzer{})
	require.NoError(t, err)
	return r
}

// Tests

func TestNew_Options(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	tests := []struct {
		name    string
		opts    []Option
		wantErr string
	}{
		{name: "defaults"},
		{name: "watch dir and cron", opts: []Option{WithWatchDir(dir), WithCron("@hourly")}},
		{name: "missing watch dir", opts: []Option{WithWatchDir(filepath.Join(dir, "nope"))}, wantErr: "watch directory"},
		{name: "watch dir is a file", opts: []Option{WithWatchDir(file)}, wantErr: "not a directory"},
		{name: "cron without watch dir", opts: []Option{WithCron("@hourly")}, wantErr: "requires a watch directory"},
		{name: "invalid cron", opts: []Option{WithWatchDir(dir), WithCron("every day")}, wantErr: "cron"},
		{name: "missing certificate", opts: []Option{WithTLS(file, file)}, wantErr: "key pair"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(newTestRunner(t), tt.opts...)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, s.Logger())
		})
	}
}

func TestNew_InvalidCronIsTyped(t *testing.T) {
	_, err := New(newTestRunner(t), WithWatchDir(t.TempDir()), WithCron("61 * * * *"))
	assert.ErrorIs(t, err, cron.ErrInvalidCronSpec)
}

func TestServer_NextRun(t *testing.T) {
	s, err := New(newTestRunner(t))
	require.NoError(t, err)
	assert.Nil(t, s.NextRun())

	s, err = New(newTestRunner(t), WithWatchDir(t.TempDir()), WithCron("0 3 * * *"))
	require.NoError(t, err)
	next := s.NextRun()
	require.NotNil(t, next)
	assert.Equal(t, 3, next.Hour())
}

func TestServer_ResolveManifest(t *testing.T) {
	s, err := New(newTestRunner(t))
	require.NoError(t, err)
	_, err = s.ResolveManifest("clip.json")
	assert.ErrorContains(t, err, "no watch directory")

	dir := t.TempDir()
	s, err = New(newTestRunner(t), WithWatchDir(dir))
	require.NoError(t, err)

	path, err := s.ResolveManifest("sub/clip.json")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "sub", "clip.json"), path)

	for _, name := range []string{"../clip.json", "/etc/passwd", ""} {
		_, err := s.ResolveManifest(name)
		assert.Error(t, err, name)
	}
}

func TestServer_Routes(t *testing.T) {
	dir := t.TempDir()
	r := newTestRunner(t)
	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("scenecap_up 1\n"))
	})
	s, err := New(r, WithWatchDir(dir), WithMetricsHandler(metricsHandler))
	require.NoError(t, err)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	get := func(path string) (int, string) {
		resp, err := ts.Client().Get(ts.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(body)
	}

	code, body := get("/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body)

	code, body = get("/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "scenecap_up 1")

	resp, err := ts.Client().Post(ts.URL+"/run", "application/json", strings.NewReader(`{"manifest": "clip.json"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	r.Wait()

	code, body = get("/history")
	require.Equal(t, http.StatusOK, code)
	var history []runner.RunStatus
	require.NoError(t, json.Unmarshal([]byte(body), &history))
	require.Len(t, history, 1)
	assert.Equal(t, filepath.Join(dir, "clip.json"), history[0].Manifest)

	code, body = get("/history/" + history[0].ID)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"source_id":"clip"`)

	code, body = get("/api/status")
	require.Equal(t, http.StatusOK, code)
	var status handlers.APIStatusResponse
	require.NoError(t, json.Unmarshal([]byte(body), &status))
	assert.Equal(t, dir, status.Server.WatchDir)
	assert.Equal(t, runner.RunStateIdle, status.Run.State)
	assert.False(t, status.NextRun.Scheduled)

	code, _ = get("/run")
	assert.Equal(t, http.StatusMethodNotAllowed, code)
}

func TestServer_NoMetricsRoute(t *testing.T) {
	s, err := New(newTestRunner(t))
	require.NoError(t, err)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_RunShutsDown(t *testing.T) {
	s, err := New(newTestRunner(t), WithListenAddr("127.0.0.1:0"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServer_RunListenError(t *testing.T) {
	s, err := New(newTestRunner(t), WithListenAddr("not-an-address"))
	require.NoError(t, err)

	err = s.Run(context.Background())
	assert.Error(t, err)
}

func TestCertLoader(t *testing.T) {
	dir := t.TempDir()
	certFile := filepath.Join(dir, "cert.pem")
	keyFile := filepath.Join(dir, "key.pem")
	writeKeyPair(t, certFile, keyFile, "first")

	l, err := NewCertLoader(certFile, keyFile, logging.Discard())
	require.NoError(t, err)
	l.interval = 0

	cert, err := l.GetCertificate(nil)
	require.NoError(t, err)
	assert.Equal(t, "first", leafName(t, cert))

	// A renewed certificate is picked up.
	time.Sleep(10 * time.Millisecond)
	writeKeyPair(t, certFile, keyFile, "second")
	future := time.Now().Add(time.Second)
	require.NoError(t, os.Chtimes(certFile, future, future))
	cert, err = l.GetCertificate(nil)
	require.NoError(t, err)
	assert.Equal(t, "second", leafName(t, cert))

	// A broken renewal keeps the old certificate.
	require.NoError(t, os.WriteFile(certFile, []byte("garbage"), 0o600))
	future = future.Add(time.Second)
	require.NoError(t, os.Chtimes(certFile, future, future))
	cert, err = l.GetCertificate(nil)
	require.NoError(t, err)
	assert.Equal(t, "second", leafName(t, cert))
}

// Test helpers

func writeKeyPair(t *testing.T, certFile, keyFile, commonName string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600))
}

func leafName(t *testing.T, cert *tls.Certificate) string {
	t.Helper()
	require.NotNil(t, cert)
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)
	return leaf.Subject.CommonName
}
