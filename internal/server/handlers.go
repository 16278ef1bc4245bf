package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/techscaniq/diligence/internal/infrastructure/monitoring"
	"github.com/techscaniq/diligence/internal/infrastructure/resilience"
	"github.com/techscaniq/diligence/internal/pipeline"
	"github.com/techscaniq/diligence/internal/shared/id"
	"github.com/techscaniq/diligence/internal/shared/types"
)

// Run lifecycle states reported by the scan status endpoint
const (
	runStatusRunning   = "running"
	runStatusCompleted = "completed"
	runStatusFailed    = "failed"
)

type runState struct {
	Status string            `json:"status"`
	Result *types.ScanResult `json:"result,omitempty"`
	Error  string            `json:"error,omitempty"`

	finished time.Time
}

// Handlers serves the scan API over the pipeline driver
type Handlers struct {
	driver     *pipeline.Driver
	breakers   *resilience.Registry
	metrics    *monitoring.Metrics
	log        *zap.Logger
	runTimeout time.Duration
	retention  time.Duration
	started    time.Time

	mu   sync.RWMutex
	runs map[string]*runState
}

// NewHandlers creates the API handler set
func NewHandlers(driver *pipeline.Driver, breakers *resilience.Registry, metrics *monitoring.Metrics, log *zap.Logger, runTimeout time.Duration) *Handlers {
	if runTimeout <= 0 {
		runTimeout = 10 * time.Minute
	}
	return &Handlers{
		driver:     driver,
		breakers:   breakers,
		metrics:    metrics,
		log:        log,
		runTimeout: runTimeout,
		retention:  time.Hour,
		started:    time.Now(),
		runs:       make(map[string]*runState),
	}
}

// Root describes the service
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "diligence-pipeline",
		"status":  "running",
	})
}

// Health reports aggregate service health with breaker states
func (h *Handlers) Health(c *gin.Context) {
	snapshot := h.metrics.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"uptime_seconds": int(time.Since(h.started).Seconds()),
		"active_runs":    snapshot.ActiveRuns,
		"total_requests": snapshot.TotalRequests,
		"breakers":       h.breakers.Stats(),
	})
}

// StartScan validates the request and starts a pipeline run asynchronously
func (h *Handlers) StartScan(c *gin.Context) {
	var req types.ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.RequestID == "" {
		req.RequestID = id.NewRunID().String()
	}

	h.mu.Lock()
	if _, exists := h.runs[req.RequestID]; exists {
		h.mu.Unlock()
		c.JSON(http.StatusConflict, gin.H{"error": "run already exists", "run_id": req.RequestID})
		return
	}
	h.evictExpiredLocked()
	h.runs[req.RequestID] = &runState{Status: runStatusRunning}
	h.mu.Unlock()

	go h.execute(req)

	c.JSON(http.StatusAccepted, gin.H{
		"run_id": req.RequestID,
		"status": runStatusRunning,
	})
}

// execute drives one run to completion in the background
func (h *Handlers) execute(req types.ScanRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), h.runTimeout)
	defer cancel()

	result, err := h.driver.Run(ctx, req)

	h.mu.Lock()
	defer h.mu.Unlock()
	state := h.runs[req.RequestID]
	if state == nil {
		return
	}
	state.finished = time.Now()
	if err != nil {
		state.Status = runStatusFailed
		state.Error = err.Error()
		return
	}
	state.Status = runStatusCompleted
	state.Result = result
}

// evictExpiredLocked drops finished runs past the retention window.
// Callers hold the write lock.
func (h *Handlers) evictExpiredLocked() {
	cutoff := time.Now().Add(-h.retention)
	for id, state := range h.runs {
		if !state.finished.IsZero() && state.finished.Before(cutoff) {
			delete(h.runs, id)
		}
	}
}

// GetScan reports a run's lifecycle state and result
func (h *Handlers) GetScan(c *gin.Context) {
	runID := c.Param("id")

	// Copy while holding the lock; execute mutates the state it points to
	h.mu.RLock()
	state, ok := h.runs[runID]
	var snapshot runState
	if ok {
		snapshot = *state
	}
	h.mu.RUnlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown run"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run_id": runID,
		"status": snapshot.Status,
		"result": snapshot.Result,
		"error":  snapshot.Error,
	})
}

// GetScanHealth returns the run's phase-level health
func (h *Handlers) GetScanHealth(c *gin.Context) {
	runID := c.Param("id")

	verdict, ok := h.driver.RunHealth(runID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown run"})
		return
	}
	c.JSON(http.StatusOK, verdict)
}

// GetScanReport returns the run's operator report as plain text
func (h *Handlers) GetScanReport(c *gin.Context) {
	runID := c.Param("id")

	report, ok := h.driver.RunReport(runID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown run"})
		return
	}
	c.String(http.StatusOK, report)
}
