package http

import (
	"net/http"
	"time"

	"github.com/quokkaworks/todo-sso/pkg/httpx"
	"github.com/quokkaworks/todo-sso/pkg/ssosdk"
)

// ReadyzHandler is the readiness probe. The API can't verify a single
// token before the provider's keys have been fetched, so readiness
// follows the key source.
func ReadyzHandler(startTime time.Time, version string, keys KeySource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := &ssosdk.HealthChecks{
			KeySource: "ok",
		}
		overallStatus := "ok"
		statusCode := http.StatusOK

		if !keys.IsReady() {
			checks.KeySource = "error: verification keys not loaded"
			overallStatus = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		response := ssosdk.HealthResponse{
			Status:  overallStatus,
			Uptime:  time.Since(startTime).String(),
			Version: version,
			Checks:  checks,
		}
		httpx.WriteJSON(w, statusCode, response)
	}
}
