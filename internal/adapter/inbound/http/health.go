package http

import (
	"encoding/json"
	"net/http"

	"github.com/conduit-mcp/conduit/internal/domain/session"
)

// HealthResponse is the JSON body of the /health endpoint.
type HealthResponse struct {
	Status         string `json:"status"`
	Transport      string `json:"transport"`
	ActiveSessions int    `json:"activeSessions"`
	MaxSessions    int    `json:"maxSessions"`
}

// HealthChecker reports gateway liveness and session registry occupancy.
// The endpoint bypasses the security validator so load balancers can probe
// without credentials.
type HealthChecker struct {
	sessions  *session.Manager
	transport string
}

// NewHealthChecker creates a HealthChecker over the session registry.
func NewHealthChecker(sessions *session.Manager, transport string) *HealthChecker {
	return &HealthChecker{sessions: sessions, transport: transport}
}

// Check builds the current health snapshot.
func (h *HealthChecker) Check() HealthResponse {
	resp := HealthResponse{
		Status:    "ok",
		Transport: h.transport,
	}
	if h.sessions != nil {
		resp.ActiveSessions = h.sessions.Len()
		resp.MaxSessions = h.sessions.Cap()
	}
	return resp
}

// Handler returns the HTTP handler for the health endpoint.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "health endpoint accepts GET only")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(h.Check())
	})
}
