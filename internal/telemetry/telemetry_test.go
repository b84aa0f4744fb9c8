package telemetry

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), Config{Enabled: false})
	require.NoError(t, err)

	// recording on a disabled instance is a no-op
	tel.RecordArtifact(context.Background(), "huggingface", "success", time.Second)
	tel.RecordAttempt(context.Background(), "complete", 1024)

	rec := httptest.NewRecorder()
	tel.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, tel.Shutdown(context.Background()))
}

func TestNilTelemetry_PassesThrough(t *testing.T) {
	var tel *Telemetry

	called := false
	err := tel.InstrumentDaemonOperation(context.Background(), "aria2", "add_uri", func(context.Context) error {
		called = true

		return nil
	})

	require.NoError(t, err)
	assert.True(t, called)
	assert.NotNil(t, tel.Tracer())
}

func TestDisabledTelemetry_InstrumentsWithoutTracer(t *testing.T) {
	tel, err := New(context.Background(), Config{Enabled: false})
	require.NoError(t, err)

	boom := errors.New("boom")

	tests := []struct {
		name string
		run  func(fn InstrumentedFunc) error
	}{
		{"daemon", func(fn InstrumentedFunc) error {
			return tel.InstrumentDaemonOperation(context.Background(), "aria2", "add_uri", fn)
		}},
		{"database", func(fn InstrumentedFunc) error {
			return tel.InstrumentDBOperation(context.Background(), "upsert", fn)
		}},
		{"artifact", func(fn InstrumentedFunc) error {
			return tel.InstrumentArtifact(context.Background(), func(ctx context.Context) (string, error) {
				return "direct", fn(ctx)
			})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := tt.run(func(context.Context) error {
				calls++

				return boom
			})

			require.ErrorIs(t, err, boom)
			assert.Equal(t, 1, calls)
		})
	}
}

func TestNew_EnabledServesMetrics(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tel, err := New(ctx, Config{Enabled: true, ServiceName: "mocap_installer_test"})
	require.NoError(t, err)

	defer func() { _ = tel.Shutdown(context.Background()) }()

	boom := errors.New("boom")

	err = tel.InstrumentArtifact(ctx, func(context.Context) (string, error) { return "google_drive", boom })
	require.ErrorIs(t, err, boom)

	tel.RecordAttempt(ctx, "stalled", 4096)
	tel.RecordRetry(ctx, true)

	srv := httptest.NewServer(tel.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "artifacts_total{")
	assert.Contains(t, string(body), "transfer_attempts_total{")
	assert.Contains(t, string(body), "transfer_retries_total{")
	assert.NotContains(t, string(body), "_ratio", "count units must not add a unit suffix")
	assert.Contains(t, string(body), `source="google_drive"`)
}

func TestGetStatusClass(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "2xx"},
		{302, "3xx"},
		{404, "4xx"},
		{503, "5xx"},
		{100, "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, getStatusClass(tt.code))
	}
}

func TestRequestID(t *testing.T) {
	var seen string

	h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	t.Run("propagates upstream id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "abc")

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, "abc", seen)
		assert.Equal(t, "abc", rec.Header().Get(RequestIDHeader))
	})

	t.Run("generates id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
	})
}
