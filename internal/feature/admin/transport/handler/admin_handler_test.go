package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	batchentity "risk_backend/internal/feature/batch/domain/entity"
	batchusecase "risk_backend/internal/feature/batch/usecase"
	failureentity "risk_backend/internal/feature/failures/domain/entity"
	marketusecase "risk_backend/internal/feature/marketdata/usecase"
	onboardingentity "risk_backend/internal/feature/onboarding/domain/entity"
	onboardingusecase "risk_backend/internal/feature/onboarding/usecase"
	jwtmw "risk_backend/internal/platform/jwt"
)

type mockTracker struct {
	running []batchentity.BatchRun
}

func (m *mockTracker) ListRunning() []batchentity.BatchRun { return m.running }

func (m *mockTracker) IsRunning(jobType batchentity.JobType) bool {
	for _, run := range m.running {
		if run.JobType == jobType {
			return true
		}
	}
	return false
}

type mockRunLister struct {
	recent []batchentity.BatchRun
}

func (m *mockRunLister) Recent(context.Context, batchentity.JobType, int) ([]batchentity.BatchRun, error) {
	return m.recent, nil
}

type mockCache struct {
	ready bool
	size  int
}

func (m *mockCache) IsReady() bool { return m.ready }
func (m *mockCache) Len() int      { return m.size }

type mockQueue struct {
	EnqueueFunc func(ctx context.Context, symbol, requester string) (bool, error)
	jobs        map[string]onboardingentity.OnboardingJob
	depth       int
	cleared     int
}

func (m *mockQueue) Enqueue(ctx context.Context, symbol, requester string) (bool, error) {
	if m.EnqueueFunc != nil {
		return m.EnqueueFunc(ctx, symbol, requester)
	}
	return true, nil
}

func (m *mockQueue) Status(symbol string) (onboardingentity.OnboardingJob, bool) {
	job, ok := m.jobs[symbol]
	return job, ok
}

func (m *mockQueue) Depth() int { return m.depth }

func (m *mockQueue) Failed() []onboardingentity.OnboardingJob {
	var out []onboardingentity.OnboardingJob
	for _, job := range m.jobs {
		if job.State == onboardingentity.JobFailed {
			out = append(out, job)
		}
	}
	return out
}

func (m *mockQueue) ClearFailed() int { return m.cleared }

type mockFreshness struct {
	status marketusecase.FreshnessStatus
}

func (m *mockFreshness) CurrentStaleness(context.Context, time.Time) (marketusecase.FreshnessStatus, error) {
	return m.status, nil
}

type mockFailureReader struct {
	recs []failureentity.FailureRecord
}

func (m *mockFailureReader) Recent(context.Context, int) ([]failureentity.FailureRecord, error) {
	return m.recs, nil
}

type mockBatchTrigger struct {
	mu      sync.Mutex
	calls   int
	done    chan struct{}
	RunFunc func(ctx context.Context, target time.Time, backfill bool, by string) (batchusecase.RunResult, error)
}

func (m *mockBatchTrigger) Run(ctx context.Context, target time.Time, backfill bool, by string) (batchusecase.RunResult, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.RunFunc != nil {
		return m.RunFunc(ctx, target, backfill, by)
	}
	if m.done != nil {
		close(m.done)
	}
	return batchusecase.RunResult{Status: batchentity.RunCompleted}, nil
}

type mockRefreshTrigger struct {
	mu    sync.Mutex
	calls int
	done  chan struct{}
}

func (m *mockRefreshTrigger) Run(context.Context, time.Time, string) (batchusecase.RunResult, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.done != nil {
		close(m.done)
	}
	return batchusecase.RunResult{Status: batchentity.RunCompleted}, nil
}

type handlerFixture struct {
	handler *AdminHandler
	tracker *mockTracker
	queue   *mockQueue
	batch   *mockBatchTrigger
	refresh *mockRefreshTrigger
}

func newHandlerFixture() *handlerFixture {
	tracker := &mockTracker{}
	queue := &mockQueue{jobs: map[string]onboardingentity.OnboardingJob{}}
	batch := &mockBatchTrigger{}
	refresh := &mockRefreshTrigger{}
	h := NewAdminHandler(
		tracker,
		&mockRunLister{},
		&mockCache{ready: true, size: 42},
		queue,
		&mockFreshness{status: marketusecase.FreshnessStatus{Level: marketusecase.AlertNone, HasAnyPrice: true}},
		&mockFailureReader{},
		batch,
		refresh,
	)
	return &handlerFixture{handler: h, tracker: tracker, queue: queue, batch: batch, refresh: refresh}
}

func performRequest(h http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func newTestRouter(f *handlerFixture) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/admin/status", f.handler.Status)
	r.POST("/admin/batches/symbol", f.handler.TriggerSymbolBatch)
	r.POST("/admin/batches/refresh", f.handler.TriggerRefresh)
	r.POST("/admin/onboarding", f.handler.EnqueueOnboarding)
	r.GET("/admin/onboarding/:symbol", f.handler.OnboardingStatus)
	r.DELETE("/admin/onboarding/failed", f.handler.ClearOnboardingFailures)
	return r
}

func TestAdminHandler_Status(t *testing.T) {
	f := newHandlerFixture()
	f.tracker.running = []batchentity.BatchRun{{
		RunID:   "run-1",
		JobType: batchentity.JobSymbolBatch,
		Status:  batchentity.RunRunning,
	}}
	f.queue.depth = 2
	r := newTestRouter(f)

	w := performRequest(r, http.MethodGet, "/admin/status", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, string(resp["running"]), "run-1")
	assert.Contains(t, string(resp["cache"]), `"ready":true`)
	assert.Contains(t, string(resp["cache"]), `"symbols":42`)
	assert.Contains(t, string(resp["onboarding"]), `"depth":2`)
	assert.Contains(t, string(resp["freshness"]), `"level":"none"`)
}

func TestAdminHandler_TriggerSymbolBatch(t *testing.T) {
	t.Run("accepted and run in background", func(t *testing.T) {
		f := newHandlerFixture()
		f.batch.done = make(chan struct{})
		r := newTestRouter(f)

		w := performRequest(r, http.MethodPost, "/admin/batches/symbol", []byte(`{"target_date":"2026-08-28"}`))

		assert.Equal(t, http.StatusAccepted, w.Code)
		select {
		case <-f.batch.done:
		case <-time.After(2 * time.Second):
			t.Fatal("batch trigger never ran")
		}
	})

	t.Run("conflict while running", func(t *testing.T) {
		f := newHandlerFixture()
		f.tracker.running = []batchentity.BatchRun{{JobType: batchentity.JobSymbolBatch, Status: batchentity.RunRunning}}
		r := newTestRouter(f)

		w := performRequest(r, http.MethodPost, "/admin/batches/symbol", nil)

		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("bad target date", func(t *testing.T) {
		f := newHandlerFixture()
		r := newTestRouter(f)

		w := performRequest(r, http.MethodPost, "/admin/batches/symbol", []byte(`{"target_date":"28-08-2026"}`))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAdminHandler_TriggerRefresh_Conflict(t *testing.T) {
	f := newHandlerFixture()
	f.tracker.running = []batchentity.BatchRun{{JobType: batchentity.JobPortfolioRefresh, Status: batchentity.RunRunning}}
	r := newTestRouter(f)

	w := performRequest(r, http.MethodPost, "/admin/batches/refresh", nil)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAdminHandler_TriggerSymbolBatch_CanceledByServerShutdown(t *testing.T) {
	f := newHandlerFixture()
	canceled := make(chan struct{})
	f.batch.RunFunc = func(ctx context.Context, _ time.Time, _ bool, _ string) (batchusecase.RunResult, error) {
		<-ctx.Done()
		close(canceled)
		return batchusecase.RunResult{}, ctx.Err()
	}
	lifetime, cancel := context.WithCancel(context.Background())
	f.handler.BindLifetime(lifetime)
	r := newTestRouter(f)

	w := performRequest(r, http.MethodPost, "/admin/batches/symbol", nil)
	require.Equal(t, http.StatusAccepted, w.Code)

	cancel()
	select {
	case <-canceled:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown must cancel the background run")
	}
}

func TestAdminHandler_EnqueueOnboarding(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		enqueueFunc    func(ctx context.Context, symbol, requester string) (bool, error)
		expectedStatus int
	}{
		{
			name:           "accepted",
			body:           `{"symbol":"NVDA"}`,
			enqueueFunc:    func(context.Context, string, string) (bool, error) { return true, nil },
			expectedStatus: http.StatusAccepted,
		},
		{
			name:           "already known",
			body:           `{"symbol":"AAPL"}`,
			enqueueFunc:    func(context.Context, string, string) (bool, error) { return false, nil },
			expectedStatus: http.StatusOK,
		},
		{
			name: "queue full",
			body: `{"symbol":"NVDA"}`,
			enqueueFunc: func(context.Context, string, string) (bool, error) {
				return false, onboardingusecase.ErrQueueFull
			},
			expectedStatus: http.StatusTooManyRequests,
		},
		{
			name:           "missing symbol",
			body:           `{}`,
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newHandlerFixture()
			f.queue.EnqueueFunc = tt.enqueueFunc
			r := newTestRouter(f)

			w := performRequest(r, http.MethodPost, "/admin/onboarding", []byte(tt.body))

			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestAdminHandler_EnqueueOnboarding_RequesterFromAuthSubject(t *testing.T) {
	f := newHandlerFixture()
	var gotRequester string
	f.queue.EnqueueFunc = func(_ context.Context, _, requester string) (bool, error) {
		gotRequester = requester
		return true, nil
	}

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(jwtmw.ContextSubject, "ops-team") })
	r.POST("/admin/onboarding", f.handler.EnqueueOnboarding)

	w := performRequest(r, http.MethodPost, "/admin/onboarding", []byte(`{"symbol":"NVDA"}`))

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "ops-team", gotRequester, "requester must come from the authenticated subject")
}

func TestAdminHandler_OnboardingStatus(t *testing.T) {
	f := newHandlerFixture()
	f.queue.jobs["BAD"] = onboardingentity.OnboardingJob{
		Symbol:    "BAD",
		State:     onboardingentity.JobFailed,
		LastError: "no provider has it",
	}
	r := newTestRouter(f)

	w := performRequest(r, http.MethodGet, "/admin/onboarding/BAD", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "no provider has it")

	w = performRequest(r, http.MethodGet, "/admin/onboarding/UNKNOWN", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminHandler_ClearOnboardingFailures(t *testing.T) {
	f := newHandlerFixture()
	f.queue.cleared = 3
	r := newTestRouter(f)

	w := performRequest(r, http.MethodDelete, "/admin/onboarding/failed", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"cleared":3}`, w.Body.String())
}
