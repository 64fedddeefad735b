package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"db_declarative_schema_syncer/internal/apply"
	"db_declarative_schema_syncer/internal/events"
	"db_declarative_schema_syncer/internal/logging"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func newTestServer(pinger Pinger) (*Server, http.Handler) {
	s := &Server{
		Addr:   "127.0.0.1:0",
		Logger: logging.Discard(),
		Live:   pinger,
		State:  &State{},
		Events: events.NewMemory(16),
	}
	return s, s.routes()
}

func TestHealthz(t *testing.T) {
	_, h := newTestServer(fakePinger{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestHealthzUnreachableDB(t *testing.T) {
	_, h := newTestServer(fakePinger{err: errors.New("connection refused")})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "service_unhealthy")
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestStatusReflectsLastResult(t *testing.T) {
	s, h := newTestServer(fakePinger{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{}`, rec.Body.String())

	s.State.RecordResult(apply.Result{Status: apply.StatusApplied, Applied: 3})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.LastResult)
	assert.Equal(t, apply.StatusApplied, resp.LastResult.Status)
	assert.Equal(t, 3, resp.LastResult.Applied)
	assert.NotNil(t, resp.UpdatedAt)
}

func TestStatusReflectsLastError(t *testing.T) {
	s, h := newTestServer(fakePinger{})
	s.State.RecordError("build shadow: apply tables/orders.sql: syntax error")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.LastError, "syntax error")
	assert.Nil(t, resp.LastResult)
}

func TestEventStreamDumpsRecent(t *testing.T) {
	s, h := newTestServer(fakePinger{})
	s.Events.Emit(events.Event{Kind: events.KindPlanComputed, Statements: 2})
	s.Events.Emit(events.Event{Kind: events.KindApplySucceeded, Statements: 2})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)

	var first events.Event
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, events.KindPlanComputed, first.Kind)
}
