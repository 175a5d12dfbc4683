package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"recordgate/pkg/domain"
	"recordgate/pkg/platform/middleware/auth"
	"recordgate/pkg/platform/middleware/correlation"
	"recordgate/pkg/platform/middleware/metadata"
	"recordgate/pkg/platform/middleware/requesttime"
)

// NewRouter assembles the full HTTP surface. Health and metrics stay public;
// everything else requires a bearer token, and the evidence reads require the
// admin role on top.
func NewRouter(h *Handler, verifier *auth.Verifier, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(correlation.Middleware)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(chimiddleware.Timeout(30 * time.Second))

	r.Get("/healthz", h.HandleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(verifier, logger))

		r.Post("/query", h.HandleQuery)
		r.Post("/actions/row", h.HandleRowAction)
		r.Post("/actions/bulk", h.HandleBulkAction)
		r.Get("/lists", h.HandleLists)
		r.Get("/actions", h.HandleActions)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(domain.RoleAdmin, logger))
			r.Get("/evidence/recent", h.HandleEvidenceRecent)
			r.Get("/evidence/batches/{batchID}", h.HandleEvidenceBatch)
		})
	})

	return r
}
