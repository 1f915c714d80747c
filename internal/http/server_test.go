package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/swarmd/internal/approval"
	"github.com/fyrsmithlabs/swarmd/internal/cancel"
	"github.com/fyrsmithlabs/swarmd/internal/metrics"
	"github.com/fyrsmithlabs/swarmd/internal/plan"
)

type fakeStore struct {
	plans     map[string]plan.Plan
	cancelled []string
}

func (f *fakeStore) Snapshot(sessionID string) (plan.Plan, bool) {
	p, ok := f.plans[sessionID]
	return p, ok
}

func (f *fakeStore) Cancel(sessionID string) bool {
	if _, ok := f.plans[sessionID]; !ok {
		return false
	}
	f.cancelled = append(f.cancelled, sessionID)
	return true
}

func setupTestServer(t *testing.T, store *fakeStore, broker *approval.Broker) *Server {
	t.Helper()
	server, err := NewServer(store, broker, metrics.New(), zap.NewNop(), nil)
	require.NoError(t, err)
	return server
}

func TestNewServer(t *testing.T) {
	t.Run("creates server with valid config", func(t *testing.T) {
		cfg := &Config{Host: "localhost", Port: 9190}
		server, err := NewServer(&fakeStore{}, approval.NewBroker(), metrics.New(), zap.NewNop(), cfg)
		require.NoError(t, err)
		assert.NotNil(t, server)
		assert.Equal(t, cfg, server.config)
	})

	t.Run("uses defaults when config is nil", func(t *testing.T) {
		server, err := NewServer(&fakeStore{}, nil, nil, zap.NewNop(), nil)
		require.NoError(t, err)
		assert.Equal(t, "localhost", server.config.Host)
		assert.Equal(t, 9190, server.config.Port)
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(&fakeStore{}, nil, nil, nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})

	t.Run("returns error when store is nil", func(t *testing.T) {
		_, err := NewServer(nil, nil, nil, zap.NewNop(), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "session store cannot be nil")
	})
}

func TestHandleHealth(t *testing.T) {
	server := setupTestServer(t, &fakeStore{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
}

func TestHandleGetSession(t *testing.T) {
	p := plan.New("sess-1", "/tmp/ws", "build the thing")
	p, _ = p.AppendStep("researcher", "investigate")

	store := &fakeStore{plans: map[string]plan.Plan{"sess-1": p}}
	server := setupTestServer(t, store, nil)

	t.Run("returns snapshot", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/sess-1", nil)
		rec := httptest.NewRecorder()
		server.echo.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var got plan.Plan
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, "sess-1", got.SessionID)
		require.Len(t, got.Steps, 1)
		assert.Equal(t, "researcher", got.Steps[0].Agent)
	})

	t.Run("unknown session is 404", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/nope", nil)
		rec := httptest.NewRecorder()
		server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHandleCancelSession(t *testing.T) {
	p := plan.New("sess-1", "/tmp/ws", "build the thing")
	store := &fakeStore{plans: map[string]plan.Plan{"sess-1": p}}
	server := setupTestServer(t, store, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/sess-1/cancel", nil)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"sess-1"}, store.cancelled)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/sessions/nope/cancel", nil)
	rec = httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleResolveApproval(t *testing.T) {
	broker := approval.NewBroker()
	server := setupTestServer(t, &fakeStore{}, broker)

	// Park a session on the broker, then resolve it over HTTP.
	ctx, cancelCtx := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelCtx()

	got := make(chan approval.Response, 1)
	go func() {
		resp, err := broker.Await(ctx, cancel.NewToken(), approval.Request{
			SessionID: "sess-1",
			Reason:    "confidence below floor",
		})
		if err == nil {
			got <- resp
		}
	}()

	require.Eventually(t, func() bool {
		_, ok := broker.Pending("sess-1")
		return ok
	}, time.Second, 5*time.Millisecond)

	body, err := json.Marshal(ApprovalRequest{Approved: true, Feedback: "prefer the simpler route"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/sess-1/approval", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	select {
	case resp := <-got:
		assert.True(t, resp.Approved)
		assert.Equal(t, "prefer the simpler route", resp.Feedback)
	case <-ctx.Done():
		t.Fatal("awaiting goroutine never received the response")
	}

	// Resolving again conflicts: nothing is pending anymore.
	req = httptest.NewRequest(http.MethodPost, "/api/v1/sessions/sess-1/approval", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec = httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	server := setupTestServer(t, &fakeStore{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
