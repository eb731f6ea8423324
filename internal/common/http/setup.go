package http

import (
	"net/http"

	"github.com/AlibekovAA/teamspace-realtime/internal/common/httpmetrics"
	"github.com/AlibekovAA/teamspace-realtime/internal/common/logger"
)

// BuildOpsHandler wraps the health and metrics mux with the shared middleware
// chain.
func BuildOpsHandler(log *logger.Logger, handler http.Handler) http.Handler {
	metrics := httpmetrics.New()
	recovery := RecoveryMiddleware(log)

	return SecurityHeadersMiddleware(TraceIDMiddleware(recovery(metrics.Wrap(handler))))
}
