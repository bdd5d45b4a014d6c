package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swing-service/internal/analytics"
	"swing-service/internal/ingest"
	"swing-service/internal/session"
)

func getJSON(t *testing.T, h http.Handler, path string) (int, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return rec.Code, body
}

func TestRootAndHealth(t *testing.T) {
	env := newTestEnv(t)
	h := env.server.Handler()

	code, body := getJSON(t, h, "/")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "running", body["status"])
	assert.Equal(t, true, body["realtime_detection"])
	assert.Contains(t, body, "endpoints")

	code, body = getJSON(t, h, "/api/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, 0.0, body["active_sessions"])
}

func TestActiveSessionEndpoints(t *testing.T) {
	env := newTestEnv(t)
	h := env.server.Handler()
	env.pipeline.Handle(context.Background(), "test", batchJSON(t, "watch_live", swingStream(30)))

	code, body := getJSON(t, h, "/api/sessions/watch_live")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "active", body["status"])
	stats := body["statistics"].(map[string]interface{})
	assert.Equal(t, 30.0, stats["total_samples_processed"])

	code, body = getJSON(t, h, "/api/detector/stats")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1.0, body["active_sessions"])
	assert.Contains(t, body["sessions"], "watch_live")

	_, body = getJSON(t, h, "/api/sessions")
	assert.Equal(t, []interface{}{"watch_live"}, body["active_sessions"])
}

func TestHistoryEndpoints(t *testing.T) {
	env := newTestEnv(t)
	h := env.server.Handler()
	playSession(t, env.pipeline, "watch_1")

	code, body := getJSON(t, h, "/api/sessions?limit=10")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1.0, body["total"])

	code, body = getJSON(t, h, "/api/sessions/watch_1")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ended", body["status"])
	assert.Equal(t, 1.0, body["shot_count"])
	shots := body["shots"].([]interface{})
	require.Len(t, shots, 1)
	assert.Equal(t, "shot_20251108_024943_001", shots[0].(map[string]interface{})["shot_id"])

	code, body = getJSON(t, h, "/api/swings?session_id=watch_1")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1.0, body["total"])
	assert.Equal(t, "watch_1", body["session_id"])

	code, body = getJSON(t, h, "/api/swings/recent?limit=5")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1.0, body["total"])
}

func TestEndpointErrors(t *testing.T) {
	env := newTestEnv(t)
	h := env.server.Handler()

	code, body := getJSON(t, h, "/api/sessions/ghost")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "session not found: ghost", body["error"])

	for _, path := range []string{"/api/sessions?limit=x", "/api/swings?limit=0", "/api/swings/recent?limit=-1"} {
		code, _ = getJSON(t, h, path)
		assert.Equal(t, http.StatusBadRequest, code, path)
	}
}

func TestEndpointsWithoutStores(t *testing.T) {
	p := ingest.NewPipeline(session.NewRegistry(analytics.DefaultConfig()), nil)
	h := NewServer(p, nil, nil, Options{}).Handler()

	code, body := getJSON(t, h, "/api/sessions")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0.0, body["total"])

	code, _ = getJSON(t, h, "/api/swings/recent")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	code, _ = getJSON(t, h, "/api/sessions/ghost")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestSessionFromCacheWithoutDatabase(t *testing.T) {
	env := newTestEnv(t)
	p := ingest.NewPipeline(session.NewRegistry(analytics.DefaultConfig()), env.redis)
	h := NewServer(p, nil, env.redis, Options{}).Handler()
	playSession(t, p, "watch_redis_only")

	code, body := getJSON(t, h, "/api/sessions/watch_redis_only")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "watch_redis_only", body["session_id"])
	assert.Equal(t, "ended", body["status"])
	assert.Equal(t, "1", body["shot_count"])
	assert.Equal(t, "AppleWatch", body["device"])

	code, _ = getJSON(t, h, "/api/sessions/ghost")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	h := env.server.Handler()
	getJSON(t, h, "/api/health")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `http_requests_total{endpoint="/api/health",method="GET",status="200"}`)
	assert.Contains(t, string(body), "swing_active_sessions")
}

func TestRunShutsDownOnCancel(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- env.server.Run(ctx, "127.0.0.1:0") }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRunReportsListenError(t *testing.T) {
	env := newTestEnv(t)
	err := env.server.Run(context.Background(), "127.0.0.1:-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not listen")
}
