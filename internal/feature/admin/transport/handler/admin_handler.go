// Package handler exposes the admin and trigger surface over HTTP.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"risk_backend/internal/feature/admin/transport/http/dto"
	batchentity "risk_backend/internal/feature/batch/domain/entity"
	batchusecase "risk_backend/internal/feature/batch/usecase"
	failureentity "risk_backend/internal/feature/failures/domain/entity"
	marketusecase "risk_backend/internal/feature/marketdata/usecase"
	onboardingentity "risk_backend/internal/feature/onboarding/domain/entity"
	onboardingusecase "risk_backend/internal/feature/onboarding/usecase"
	jwtmw "risk_backend/internal/platform/jwt"
)

// Following Go convention: interfaces are defined by the consumer (handler),
// not the provider (usecase).

// BatchTracker reads in-flight batch state.
type BatchTracker interface {
	ListRunning() []batchentity.BatchRun
	IsRunning(jobType batchentity.JobType) bool
}

// RunLister reads persisted batch run history.
type RunLister interface {
	Recent(ctx context.Context, jobType batchentity.JobType, limit int) ([]batchentity.BatchRun, error)
}

// CacheInspector reads cache readiness.
type CacheInspector interface {
	IsReady() bool
	Len() int
}

// OnboardingQueue is the slice of the queue the admin surface needs.
type OnboardingQueue interface {
	Enqueue(ctx context.Context, symbol, requester string) (bool, error)
	Status(symbol string) (onboardingentity.OnboardingJob, bool)
	Depth() int
	Failed() []onboardingentity.OnboardingJob
	ClearFailed() int
}

// FreshnessReader grades price data staleness.
type FreshnessReader interface {
	CurrentStaleness(ctx context.Context, ref time.Time) (marketusecase.FreshnessStatus, error)
}

// FailureReader lists recent partial failures.
type FailureReader interface {
	Recent(ctx context.Context, limit int) ([]failureentity.FailureRecord, error)
}

// SymbolBatchTrigger starts a symbol batch run.
type SymbolBatchTrigger interface {
	Run(ctx context.Context, targetDate time.Time, backfill bool, triggeredBy string) (batchusecase.RunResult, error)
}

// RefreshTrigger starts a portfolio refresh run.
type RefreshTrigger interface {
	Run(ctx context.Context, targetDate time.Time, triggeredBy string) (batchusecase.RunResult, error)
}

// AdminHandler serves read-only status plus the batch and onboarding
// triggers.
type AdminHandler struct {
	tracker    BatchTracker
	runs       RunLister
	cache      CacheInspector
	queue      OnboardingQueue
	freshness  FreshnessReader
	failures   FailureReader
	batch      SymbolBatchTrigger
	refresh    RefreshTrigger
	runTimeout time.Duration

	// base bounds background trigger runs. Defaults to context.Background;
	// the server binds its lifetime context so shutdown cancels the runs.
	base context.Context
}

func NewAdminHandler(
	tracker BatchTracker,
	runs RunLister,
	cache CacheInspector,
	queue OnboardingQueue,
	freshness FreshnessReader,
	failures FailureReader,
	batch SymbolBatchTrigger,
	refresh RefreshTrigger,
) *AdminHandler {
	return &AdminHandler{
		tracker:    tracker,
		runs:       runs,
		cache:      cache,
		queue:      queue,
		freshness:  freshness,
		failures:   failures,
		batch:      batch,
		refresh:    refresh,
		runTimeout: 4 * time.Hour,
		base:       context.Background(),
	}
}

// BindLifetime ties background trigger runs to ctx, typically the server's
// signal context, so a shutdown cancels them.
func (h *AdminHandler) BindLifetime(ctx context.Context) {
	if ctx != nil {
		h.base = ctx
	}
}

// Status returns the composite operator view. Side-effect free.
func (h *AdminHandler) Status(c *gin.Context) {
	ctx := c.Request.Context()

	recent, err := h.runs.Recent(ctx, "", 20)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	fresh, err := h.freshness.CurrentStaleness(ctx, time.Now().UTC())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	failures, err := h.failures.Recent(ctx, 50)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := dto.StatusResponse{
		Running:    make([]dto.BatchRunItem, 0),
		RecentRuns: make([]dto.BatchRunItem, 0, len(recent)),
		Cache: dto.CacheStatus{
			Ready:   h.cache.IsReady(),
			Symbols: h.cache.Len(),
		},
		Onboarding: dto.OnboardingStatus{
			Depth:  h.queue.Depth(),
			Failed: make([]dto.OnboardingItem, 0),
		},
		Freshness: fresh,
		Failures:  make([]dto.FailureItem, 0, len(failures)),
	}
	for _, run := range h.tracker.ListRunning() {
		resp.Running = append(resp.Running, dto.NewBatchRunItem(run))
	}
	for _, run := range recent {
		resp.RecentRuns = append(resp.RecentRuns, dto.NewBatchRunItem(run))
	}
	for _, job := range h.queue.Failed() {
		resp.Onboarding.Failed = append(resp.Onboarding.Failed, onboardingItem(job))
	}
	for _, rec := range failures {
		resp.Failures = append(resp.Failures, dto.NewFailureItem(rec))
	}
	c.JSON(http.StatusOK, resp)
}

// TriggerSymbolBatch starts a symbol batch in the background. 409 when one
// is already running.
func (h *AdminHandler) TriggerSymbolBatch(c *gin.Context) {
	// The body is optional: all fields have defaults.
	var req dto.TriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		req = dto.TriggerRequest{}
	}
	target, ok := parseTargetDate(c, req.TargetDate)
	if !ok {
		return
	}
	backfill := req.Backfill == nil || *req.Backfill

	if h.tracker.IsRunning(batchentity.JobSymbolBatch) {
		c.JSON(http.StatusConflict, gin.H{"error": "a symbol batch is already running"})
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(h.base, h.runTimeout)
		defer cancel()
		if _, err := h.batch.Run(ctx, target, backfill, "admin"); err != nil {
			slog.Error("triggered symbol batch failed", "error", err)
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// TriggerRefresh starts a portfolio refresh in the background. 409 when one
// is already running.
func (h *AdminHandler) TriggerRefresh(c *gin.Context) {
	var req dto.TriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		req = dto.TriggerRequest{}
	}
	target, ok := parseTargetDate(c, req.TargetDate)
	if !ok {
		return
	}

	if h.tracker.IsRunning(batchentity.JobPortfolioRefresh) {
		c.JSON(http.StatusConflict, gin.H{"error": "a portfolio refresh is already running"})
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(h.base, h.runTimeout)
		defer cancel()
		if _, err := h.refresh.Run(ctx, target, "admin"); err != nil {
			slog.Error("triggered portfolio refresh failed", "error", err)
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// EnqueueOnboarding submits a symbol to the onboarding queue. 202 on
// acceptance, 200 when the symbol is already known, 429 at capacity.
func (h *AdminHandler) EnqueueOnboarding(c *gin.Context) {
	var req dto.EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	requester := c.GetString(jwtmw.ContextSubject)
	if requester == "" {
		requester = "admin"
	}

	accepted, err := h.queue.Enqueue(c.Request.Context(), req.Symbol, requester)
	if errors.Is(err, onboardingusecase.ErrQueueFull) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !accepted {
		c.JSON(http.StatusOK, gin.H{"status": "already_known"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

// OnboardingStatus returns the job for one symbol, if retained.
func (h *AdminHandler) OnboardingStatus(c *gin.Context) {
	job, ok := h.queue.Status(c.Param("symbol"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no onboarding job for symbol"})
		return
	}
	c.JSON(http.StatusOK, onboardingItem(job))
}

// ClearOnboardingFailures drops retained failed jobs.
func (h *AdminHandler) ClearOnboardingFailures(c *gin.Context) {
	cleared := h.queue.ClearFailed()
	c.JSON(http.StatusOK, gin.H{"cleared": cleared})
}

func onboardingItem(job onboardingentity.OnboardingJob) dto.OnboardingItem {
	return dto.OnboardingItem{
		Symbol:     job.Symbol,
		State:      string(job.State),
		Requester:  job.Requester,
		EnqueuedAt: job.EnqueuedAt.Format(time.RFC3339),
		LastError:  job.LastError,
	}
}

func parseTargetDate(c *gin.Context, raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, true
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "target_date must be YYYY-MM-DD"})
		return time.Time{}, false
	}
	return t, true
}
