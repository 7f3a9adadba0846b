package handlers

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusDegraded  HealthStatus = "degraded"
	StatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck probes one dependency.
type HealthCheck struct {
	Name string
	// Critical failures make the service unhealthy; others only degrade it.
	Critical bool
	Check    func(ctx context.Context) error
}

type CheckResult struct {
	Name     string        `json:"name"`
	Status   HealthStatus  `json:"status"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

type HealthResponse struct {
	Status    HealthStatus  `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Version   string        `json:"version"`
	Uptime    string        `json:"uptime"`
	Checks    []CheckResult `json:"checks"`
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	checks    []HealthCheck
	timeout   time.Duration
	logger    *zap.Logger
	version   string
	startTime time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(checks []HealthCheck, logger *zap.Logger, version string) *HealthHandler {
	return &HealthHandler{
		checks:    checks,
		timeout:   5 * time.Second,
		logger:    logger,
		version:   version,
		startTime: time.Now(),
	}
}

// Liveness
// @Summary Liveness check
// @Description Returns 200 while the process is serving
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health/live [get]
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": StatusHealthy})
}

// Health runs every dependency check concurrently
// @Summary Health check
// @Description Returns 200 when healthy or degraded, 503 when a critical dependency is down
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	var (
		mu      sync.Mutex
		results = make([]CheckResult, 0, len(h.checks))
		status  = StatusHealthy
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, check := range h.checks {
		check := check
		g.Go(func() error {
			start := time.Now()
			err := check.Check(gctx)
			r := CheckResult{Name: check.Name, Status: StatusHealthy, Duration: time.Since(start)}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				r.Error = err.Error()
				r.Status = StatusDegraded
				if check.Critical {
					r.Status = StatusUnhealthy
					status = StatusUnhealthy
				} else if status == StatusHealthy {
					status = StatusDegraded
				}
			}
			results = append(results, r)
			// checks report through results, never abort their siblings
			return nil
		})
	}
	_ = g.Wait()
	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })

	statusCode := http.StatusOK
	if status == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
		h.logger.Warn("Health check failed", zap.Any("checks", results))
	}

	c.JSON(statusCode, HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Version:   h.version,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Checks:    results,
	})
}
