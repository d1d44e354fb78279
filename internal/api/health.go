package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/ignite/subscriptions/internal/pkg/httputil"
	"github.com/ignite/subscriptions/internal/pkg/logger"
)

// CheckFunc probes one dependency.
type CheckFunc func(ctx context.Context) error

// HealthStatus is the deep health check response body.
type HealthStatus struct {
	Status string                    `json:"status"` // "healthy" or "unhealthy"
	Checks map[string]ComponentCheck `json:"checks"`
}

// ComponentCheck is the result of one dependency probe.
type ComponentCheck struct {
	Status  string `json:"status"` // "up" or "down"
	Latency string `json:"latency"`
}

// HealthChecker serves /health_check. The plain check only proves the
// process is serving; ?deep=1 also probes every registered dependency.
type HealthChecker struct {
	checks  map[string]CheckFunc
	timeout time.Duration
	log     *logger.Logger
	rs      *httputil.Responder
}

// NewHealthChecker creates a checker for the named dependency probes.
func NewHealthChecker(checks map[string]CheckFunc, log *logger.Logger) *HealthChecker {
	if log == nil {
		log = logger.Nop()
	}
	return &HealthChecker{
		checks:  checks,
		timeout: 2 * time.Second,
		log:     log,
		rs:      httputil.NewResponder(log),
	}
}

// HandleHealth reports liveness, or readiness with ?deep=1.
//
//	GET /health_check
//	GET /health_check?deep=1
func (hc *HealthChecker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("deep") == "" {
		hc.rs.Empty(w, http.StatusOK)
		return
	}

	status := HealthStatus{Status: "healthy", Checks: make(map[string]ComponentCheck, len(hc.checks))}
	names := make([]string, 0, len(hc.checks))
	for name := range hc.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), hc.timeout)
		start := time.Now()
		err := hc.checks[name](ctx)
		cancel()

		check := ComponentCheck{Status: "up", Latency: time.Since(start).String()}
		if err != nil {
			check.Status = "down"
			status.Status = "unhealthy"
			hc.log.Warn("health check failed", "component", name, "error", err.Error())
		}
		status.Checks[name] = check
	}

	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	hc.rs.JSON(w, code, status)
}
