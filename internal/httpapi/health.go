package httpapi

import (
	"encoding/json"
	"net/http"
	"time"
)

// HealthAPI serves spec.md §4.I's health/metrics endpoint.
type HealthAPI struct {
	deps Deps
}

// NewHealthAPI creates a health endpoint handler over deps.
func NewHealthAPI(deps Deps) *HealthAPI {
	return &HealthAPI{deps: deps}
}

// RegisterRoutes registers the health route, following the teacher's
// RegisterRoutes(mux *http.ServeMux) convention.
func (api *HealthAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", api.HandleHealth)
}

type healthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	QueuedJobs  int       `json:"queued_jobs"`
	UptimeSecs  int64     `json:"uptime_seconds,omitempty"`
	RecentErrs  int       `json:"recent_errors,omitempty"`
}

// HandleHealth handles GET /health — spec.md §4.I:
// `{status:"ok", timestamp, queued_jobs:N}`. Store errors and a burst of
// recent ERROR-level log entries both degrade the reported status rather
// than failing the HTTP response, so a load balancer still gets something
// it can parse.
func (api *HealthAPI) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Timestamp: time.Now().UTC()}
	if !api.deps.ProcessStart.IsZero() {
		resp.UptimeSecs = int64(time.Since(api.deps.ProcessStart).Seconds())
	}

	if api.deps.Store != nil {
		n, err := api.deps.Store.Count(r.Context())
		if err != nil {
			resp.Status = "degraded"
			if api.deps.Log != nil {
				api.deps.Log.Warn("health check: store count failed", "error", err)
			}
		} else {
			resp.QueuedJobs = n
		}
	}

	if api.deps.Log != nil {
		resp.RecentErrs = api.deps.Log.RecentErrorCount()
		if resp.RecentErrs > healthRecentErrorThreshold {
			resp.Status = "degraded"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// healthRecentErrorThreshold is the number of ERROR-level log entries in
// the logger's five-minute window above which /health reports "degraded".
const healthRecentErrorThreshold = 10
