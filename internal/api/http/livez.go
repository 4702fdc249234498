package http

import (
	"net/http"
	"time"

	"github.com/quokkaworks/todo-sso/pkg/httpx"
	"github.com/quokkaworks/todo-sso/pkg/ssosdk"
)

// LivezHandler is the liveness probe. It answers 200 whenever the
// process is up, regardless of dependency state.
func LivezHandler(startTime time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := ssosdk.HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).String(),
			Version: version,
		}
		httpx.WriteJSON(w, http.StatusOK, response)
	}
}
