// Package httptransport is the thin HTTP layer: it parses requests,
// extracts the authenticated caller, and delegates to domain services.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"contactshare/pkg/platform/middleware/auth"
	request "contactshare/pkg/platform/middleware/request"
)

// Handlers aggregates the per-module handlers for route registration.
type Handlers struct {
	Profile    *ProfileHandler
	Attribute  *AttributeHandler
	Circle     *CircleHandler
	Connection *ConnectionHandler
	Message    *MessageHandler
	QRCode     *QRCodeHandler
}

// NewRouter wires middleware and every route. All domain routes sit
// behind bearer auth; /healthz and /metrics stay open.
func NewRouter(h Handlers, validator auth.TokenValidator, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(logger))
	r.Use(request.Logging(logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(validator, logger))
		h.Profile.Register(r)
		h.Attribute.Register(r)
		h.Circle.Register(r)
		h.Connection.Register(r)
		h.Message.Register(r)
		h.QRCode.Register(r)
	})
	return r
}
