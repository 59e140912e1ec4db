package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xavierca1/conduit/internal/entity"
	"github.com/xavierca1/conduit/internal/infra/http/handlers"
	"github.com/xavierca1/conduit/internal/infra/http/middleware"
	"github.com/xavierca1/conduit/internal/infra/memstore"
	"github.com/xavierca1/conduit/internal/infra/queue"
	"github.com/xavierca1/conduit/internal/usecase"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type api struct {
	handler http.Handler
	queue   *queue.Queue
}

func newAPI(t *testing.T, db handlers.Pinger, limiter *middleware.RateLimiter) *api {
	t.Helper()
	store := memstore.New()
	q := queue.New(queue.NewMemoryStore(), queue.WithLogger(discard))
	events := usecase.NewEventService(store.Events, nil, discard)
	leads := usecase.NewLeadService(store.Leads, store.Messages, store.Jobs, events, discard)
	messages := usecase.NewMessageService(store.Messages, leads, q, events, discard)

	h := New(Deps{
		Leads:    handlers.NewLeadHandler(leads, messages, discard),
		Health:   handlers.NewHealthHandler(db, nil, nil),
		Logger:   discard,
		Registry: prometheus.NewRegistry(),
		Limiter:  limiter,
	})
	return &api{handler: h, queue: q}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Details json.RawMessage `json:"details"`
}

func (a *api) do(t *testing.T, method, path string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)

	var env envelope
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec.Code, env
}

func (a *api) createLead(t *testing.T) *entity.Lead {
	t.Helper()
	code, env := a.do(t, http.MethodPost, "/leads", map[string]any{"name": "Ana Souza", "email": "ana@example.com"})
	require.Equal(t, http.StatusCreated, code)
	var lead entity.Lead
	require.NoError(t, json.Unmarshal(env.Data, &lead))
	return &lead
}

func TestCreateLead(t *testing.T) {
	a := newAPI(t, nil, nil)
	lead := a.createLead(t)
	assert.NotEmpty(t, lead.ID)
	assert.Equal(t, entity.LeadStatusNew, lead.Status)
}

func TestCreateLeadValidation(t *testing.T) {
	a := newAPI(t, nil, nil)

	code, env := a.do(t, http.MethodPost, "/leads", map[string]any{"name": ""})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.False(t, env.Success)
	assert.Equal(t, "Validation failed", env.Error)

	var details []usecase.ValidationError
	require.NoError(t, json.Unmarshal(env.Details, &details))
	assert.NotEmpty(t, details)

	code, _ = a.do(t, http.MethodPost, "/leads", "{broken")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestSendQueuesJob(t *testing.T) {
	a := newAPI(t, nil, nil)
	lead := a.createLead(t)

	code, env := a.do(t, http.MethodPost, "/leads/send", map[string]any{"lead_id": lead.ID, "channel": "email", "content": "Hello"})
	require.Equal(t, http.StatusAccepted, code)

	var out usecase.SendMessageOutput
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.Equal(t, "queued", out.Status)

	job, err := a.queue.Job(context.Background(), out.JobID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobSendMessage, job.Kind)
	assert.Equal(t, queue.StatusCreated, job.Status)
}

func TestUnknownLeadIs404(t *testing.T) {
	a := newAPI(t, nil, nil)
	missing := "7d444840-9dc0-11d1-b245-5ffdce74fad2"

	code, env := a.do(t, http.MethodGet, "/leads/"+missing, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Lead not found", env.Error)

	code, _ = a.do(t, http.MethodPost, "/leads/send", map[string]any{"lead_id": missing, "channel": "chat", "content": "hi"})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = a.do(t, http.MethodGet, "/leads/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestTimelineAfterReply(t *testing.T) {
	a := newAPI(t, nil, nil)
	lead := a.createLead(t)

	code, _ := a.do(t, http.MethodPost, "/leads/reply", map[string]any{"lead_id": lead.ID, "channel": "chat", "content": "Interested!"})
	require.Equal(t, http.StatusCreated, code)

	code, env := a.do(t, http.MethodPost, "/leads/ai/reply", map[string]any{"lead_id": lead.ID, "channel": "chat"})
	require.Equal(t, http.StatusAccepted, code)
	var ai usecase.AIReplyOutput
	require.NoError(t, json.Unmarshal(env.Data, &ai))
	assert.NotEmpty(t, ai.JobID)

	code, env = a.do(t, http.MethodGet, "/leads/"+lead.ID, nil)
	require.Equal(t, http.StatusOK, code)

	var tl usecase.Timeline
	require.NoError(t, json.Unmarshal(env.Data, &tl))
	assert.Equal(t, entity.LeadStatusReplied, tl.Lead.Status)
	require.Len(t, tl.Messages, 1)
	assert.Equal(t, entity.DirectionInbound, tl.Messages[0].Direction)
	assert.Empty(t, tl.Jobs)
	assert.Equal(t, entity.EventReplyReceived, tl.Events[0].Type)
}

func TestEnqueueOnClosedQueueIs503(t *testing.T) {
	a := newAPI(t, nil, nil)
	lead := a.createLead(t)
	require.NoError(t, a.queue.Stop(context.Background()))

	code, env := a.do(t, http.MethodPost, "/leads/send", map[string]any{"lead_id": lead.ID, "channel": "email", "content": "Hello"})
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.NotContains(t, env.Error, "closed")
}

func TestHealth(t *testing.T) {
	a := newAPI(t, handlers.PingFunc(func(context.Context) error { return nil }), nil)
	code, env := a.do(t, http.MethodGet, "/health/detailed", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)

	a = newAPI(t, handlers.PingFunc(func(context.Context) error { return errors.New("connection refused") }), nil)
	code, env = a.do(t, http.MethodGet, "/health/detailed", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)

	var resp handlers.HealthResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "unhealthy: connection refused", resp.Dependencies["database"])
	assert.Equal(t, "not configured", resp.Dependencies["redis"])

	code, _ = a.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestLeadRoutesAreRateLimited(t *testing.T) {
	a := newAPI(t, nil, middleware.NewRateLimiter(1, time.Minute))
	a.createLead(t)

	code, _ := a.do(t, http.MethodPost, "/leads", map[string]any{"name": "Bo", "email": "bo@example.com"})
	assert.Equal(t, http.StatusTooManyRequests, code)

	code, _ = a.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestMetricsEndpoint(t *testing.T) {
	a := newAPI(t, nil, nil)
	a.do(t, http.MethodGet, "/health", nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}
