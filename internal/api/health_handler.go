package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ignite/loadboard/internal/docstore"
	"github.com/ignite/loadboard/internal/pkg/httputil"
	"github.com/redis/go-redis/v9"
)

// HealthStatus represents the overall health of the system.
type HealthStatus struct {
	Status  string                    `json:"status"` // "healthy", "degraded", "unhealthy"
	Version string                    `json:"version"`
	Uptime  string                    `json:"uptime"`
	Checks  map[string]ComponentCheck `json:"checks"`
}

// ComponentCheck represents the health of a single component.
type ComponentCheck struct {
	Status  string `json:"status"` // "up", "down", "degraded", "not_configured"
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// Probe checks one dependency. A nil Ping reports "not_configured".
type Probe struct {
	Name    string
	Timeout time.Duration
	Slow    time.Duration
	Ping    func(context.Context) error
}

// SQLProbe pings the PostgreSQL pool. db may be nil.
func SQLProbe(db *sql.DB) Probe {
	p := Probe{Name: "database", Timeout: 3 * time.Second, Slow: time.Second}
	if db != nil {
		p.Ping = db.PingContext
	}
	return p
}

// RedisProbe pings Redis. client may be nil.
func RedisProbe(client *redis.Client) Probe {
	p := Probe{Name: "redis", Timeout: 2 * time.Second, Slow: 500 * time.Millisecond}
	if client != nil {
		p.Ping = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}
	return p
}

// StoreProbe reads a missing document; a not-found answer counts as up.
func StoreProbe(store docstore.Store) Probe {
	p := Probe{Name: "store", Timeout: 3 * time.Second, Slow: time.Second}
	if store != nil {
		p.Ping = func(ctx context.Context) error {
			_, err := store.Get(ctx, "health", "probe")
			if errors.Is(err, docstore.ErrNotFound) {
				return nil
			}
			return err
		}
	}
	return p
}

// HealthChecker runs the probes behind the health endpoints.
type HealthChecker struct {
	probes    []Probe
	startTime time.Time
}

func NewHealthChecker(probes ...Probe) *HealthChecker {
	return &HealthChecker{probes: probes, startTime: time.Now()}
}

const healthVersion = "1.0.0"

// HandleHealth reports every probe. Always 200, the body carries the verdict.
//
//	GET /health
func (hc *HealthChecker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())
	httputil.OK(w, HealthStatus{
		Status:  determineOverallStatus(checks),
		Version: healthVersion,
		Uptime:  formatUptime(time.Since(hc.startTime)),
		Checks:  checks,
	})
}

// HandleLiveness always returns 200 while the process runs.
//
//	GET /health/live
func (hc *HealthChecker) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]any{
		"status": "alive",
		"uptime": formatUptime(time.Since(hc.startTime)),
	})
}

// HandleReadiness returns 503 when a configured dependency is down.
//
//	GET /health/ready
func (hc *HealthChecker) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())
	overall := determineOverallStatus(checks)

	ready := overall != "unhealthy"
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	httputil.JSON(w, status, map[string]any{
		"ready":  ready,
		"status": overall,
		"checks": checks,
	})
}

func (hc *HealthChecker) runAllChecks(ctx context.Context) map[string]ComponentCheck {
	type result struct {
		name  string
		check ComponentCheck
	}
	ch := make(chan result, len(hc.probes))
	for _, p := range hc.probes {
		go func() {
			if p.Ping == nil {
				ch <- result{p.Name, ComponentCheck{Status: "not_configured"}}
				return
			}
			ch <- result{p.Name, timedCheck(ctx, p.Timeout, p.Slow, p.Ping)}
		}()
	}

	checks := make(map[string]ComponentCheck, len(hc.probes))
	for range hc.probes {
		r := <-ch
		checks[r.name] = r.check
	}
	return checks
}

// timedCheck runs ping under timeout and grades the latency against slow.
func timedCheck(ctx context.Context, timeout, slow time.Duration, ping func(context.Context) error) ComponentCheck {
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := ping(pingCtx)
	latency := time.Since(start)

	if err != nil {
		return ComponentCheck{Status: "down", Latency: latency.String(), Message: fmt.Sprintf("ping failed: %v", err)}
	}
	if latency > slow {
		return ComponentCheck{Status: "degraded", Latency: latency.String(), Message: fmt.Sprintf("slow response (%s)", latency)}
	}
	return ComponentCheck{Status: "up", Latency: latency.String(), Message: "connected"}
}

func determineOverallStatus(checks map[string]ComponentCheck) string {
	overall := "healthy"
	for _, c := range checks {
		switch c.Status {
		case "down":
			return "unhealthy"
		case "degraded":
			overall = "degraded"
		}
	}
	return overall
}

func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}
