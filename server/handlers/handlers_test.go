package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomis52/scenecap/buildinfo"
	"github.com/nomis52/scenecap/pipeline"
	"github.com/nomis52/scenecap/server/runner"
)

type mockRunner struct {
	err     error
	started []string
}

func (m *mockRunner) Run(manifest string) error {
	if m.err != nil {
		return m.err
	}
	m.started = append(m.started, manifest)
	return nil
}

type mockResolver struct{}

func (mockResolver) ResolveManifest(name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", fmt.Errorf("manifest %q is outside the watch directory", name)
	}
	return "/videos/" + name, nil
}

type mockProvider struct {
	status  runner.RunStatus
	history []runner.RunStatus
	nextRun *time.Time
}

func (m *mockProvider) Status() runner.RunStatus { return m.status }
func (m *mockProvider) History() []runner.RunStatus { return m.history }
func (m *mockProvider) NextRun() *time.Time { return m.nextRun }
func (m *mockProvider) Properties() ServerProperties {
	return ServerProperties{Build: buildinfo.Get(), Hostname: "test-host", WatchDir: "/videos"}
}

// Tests

func TestHandleHealth(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	HandleHealth(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/plain", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Equal(t, "ok", w.Body.String())
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, http.StatusConflict, "run of %s in progress", "a.json")

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error": "run of a.json in progress"}`, w.Body.String())
}

func TestRunHandler(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		runErr     error
		wantStatus int
		wantBody   string
	}{
		{
			name:       "accepted",
			body:       `{"manifest": "clip.json"}`,
			wantStatus: http.StatusAccepted,
			wantBody:   `"manifest":"/videos/clip.json"`,
		},
		{
			name:       "invalid json",
			body:       `{"manifest":`,
			wantStatus: http.StatusBadRequest,
			wantBody:   "invalid JSON",
		},
		{
			name:       "empty manifest",
			body:       `{}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   "manifest cannot be empty",
		},
		{
			name:       "outside watch dir",
			body:       `{"manifest": "../etc/passwd"}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   "outside the watch directory",
		},
		{
			name:       "run in progress",
			body:       `{"manifest": "clip.json"}`,
			runErr:     runner.ErrRunInProgress,
			wantStatus: http.StatusConflict,
			wantBody:   "already in progress",
		},
		{
			name:       "other error",
			body:       `{"manifest": "clip.json"}`,
			runErr:     errors.New("disk on fire"),
			wantStatus: http.StatusInternalServerError,
			wantBody:   "disk on fire",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &mockRunner{err: tt.runErr}
			handler := NewRunHandler(r, mockResolver{})

			req := httptest.NewRequest(http.MethodPost, "/run", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.Contains(t, w.Body.String(), tt.wantBody)
			if tt.wantStatus == http.StatusAccepted {
				assert.Equal(t, []string{"/videos/clip.json"}, r.started)
			} else {
				assert.Empty(t, r.started)
			}
		})
	}
}

func TestHistoryHandlers(t *testing.T) {
	started := time.Now()
	provider := &mockProvider{history: []runner.RunStatus{
		{ID: "b", Manifest: "/videos/b.json", StartedAt: &started, Report: &pipeline.Report{SourceID: "b"}},
		{ID: "a", Manifest: "/videos/a.json", StartedAt: &started, Error: "boom"},
	}}

	mux := http.NewServeMux()
	mux.Handle("GET /history", NewHistoryHandler(provider))
	mux.Handle("GET /history/{id}", NewHistoryRunHandler(provider))

	t.Run("list", func(t *testing.T) {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/history", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var runs []runner.RunStatus
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &runs))
		require.Len(t, runs, 2)
		assert.Equal(t, "b", runs[0].ID)
		assert.Equal(t, "boom", runs[1].Error)
	})

	t.Run("by id", func(t *testing.T) {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/history/b", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var run runner.RunStatus
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &run))
		require.NotNil(t, run.Report)
		assert.Equal(t, "b", run.Report.SourceID)
	})

	t.Run("unknown id", func(t *testing.T) {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/history/zzz", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("missing id", func(t *testing.T) {
		w := httptest.NewRecorder()
		NewHistoryRunHandler(provider).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/history/", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAPIStatusHandler(t *testing.T) {
	started := time.Now()
	next := started.Add(time.Hour)

	tests := []struct {
		name      string
		provider  *mockProvider
		scheduled bool
	}{
		{
			name:     "no schedule",
			provider: &mockProvider{status: runner.RunStatus{State: runner.RunStateIdle}},
		},
		{
			name: "scheduled while running",
			provider: &mockProvider{
				status:  runner.RunStatus{State: runner.RunStateRunning, Manifest: "/videos/a.json", StartedAt: &started},
				nextRun: &next,
			},
			scheduled: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			NewAPIStatusHandler(tt.provider).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))
			require.Equal(t, http.StatusOK, w.Code)

			var resp APIStatusResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.scheduled, resp.NextRun.Scheduled)
			assert.Equal(t, tt.provider.status.State, resp.Run.State)
			assert.Equal(t, "test-host", resp.Server.Hostname)
			assert.Equal(t, "dev", resp.Server.Build.Version)
			if tt.scheduled {
				require.NotNil(t, resp.NextRun.NextRun)
				assert.True(t, next.Equal(*resp.NextRun.NextRun))
			}
		})
	}
}
