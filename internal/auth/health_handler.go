// health_handler.go -- Health check handler for GET /health.
package auth

import (
	"net/http"
)

// CheckHealth handles GET /health pings the user store and session store, returns per-dependency status.
// Returns 200 if both are healthy, 503 if either is down.
func (h *AuthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	usersStatus := "ok"
	sessionsStatus := "ok"

	if err := h.Users.CheckHealth(r.Context()); err != nil {
		logError(r, "user store health check failed", "error", err)
		usersStatus = "error"
	}
	if err := h.Sessions.Store.CheckHealth(r.Context()); err != nil {
		logError(r, "session store health check failed", "error", err)
		sessionsStatus = "error"
	}

	status := http.StatusOK
	if usersStatus == "error" || sessionsStatus == "error" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, struct {
		Users    string `json:"users"`
		Sessions string `json:"sessions"`
	}{usersStatus, sessionsStatus})
}
