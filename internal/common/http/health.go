package http

import (
	"net/http"

	"github.com/AlibekovAA/teamspace-realtime/internal/common/logger"
)

type HealthStatus struct {
	Status            string `json:"status"`
	Connection        string `json:"connection"`
	ReconnectAttempts int    `json:"reconnect_attempts"`
	Connected         bool   `json:"connected"`
}

// HealthProbe reports the live connection for the health endpoint.
type HealthProbe interface {
	State() string
	IsConnected() bool
	ReconnectAttempts() int
}

// HealthHandler answers 200 while the socket is open and 503 otherwise, so a
// supervisor can restart a client whose reconnect budget is spent.
func HealthHandler(log *logger.Logger, probe HealthProbe) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			WriteErrorEnvelope(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "method not allowed", nil, traceIDFromContext(r))
			return
		}

		status := HealthStatus{
			Status:            "ok",
			Connection:        probe.State(),
			ReconnectAttempts: probe.ReconnectAttempts(),
			Connected:         probe.IsConnected(),
		}
		code := http.StatusOK
		if !status.Connected {
			status.Status = "degraded"
			code = http.StatusServiceUnavailable
		}

		log.WithFields(r.Context(), logger.Fields{
			"connection": status.Connection,
			"action":     "health_check",
		}).Debug("health check request")
		WriteJSON(w, code, status)
	}
}
