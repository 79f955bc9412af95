package app

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/auth"
	"github.com/odyssey-erp/odyssey-ledger/internal/billing"
	"github.com/odyssey-erp/odyssey-ledger/internal/documents"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/numbering"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/pos"
	"github.com/odyssey-erp/odyssey-ledger/internal/rbac"
	"github.com/odyssey-erp/odyssey-ledger/internal/tax"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger     *slog.Logger
	Config     *Config
	Services   *Services
	Auth       auth.Middleware
	Policy     *rbac.Policy
	JobHandler *jobs.Handler
	Metrics    *observability.Metrics
	// Ready reports the health of each backing service for /readyz.
	Ready func(context.Context) map[string]error
}

// NewRouter constructs the chi.Router with Odyssey defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readiness(params.Ready, params.Logger))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	policy := params.Policy
	if policy == nil {
		policy = rbac.DefaultPolicy()
	}
	guard := rbac.Middleware{Policy: policy, Logger: params.Logger}
	svc := params.Services

	r.Group(func(r chi.Router) {
		r.Use(params.Auth.Authenticate)
		r.Use(params.Auth.RequireBusinessUnit)

		numbering.NewHandler(params.Logger, svc.Numbering, guard).MountRoutes(r)
		accounting.NewHandler(params.Logger, svc.Journals, svc.Chart, svc.Periods, guard).MountRoutes(r)
		tax.NewHandler(params.Logger, svc.Tax, guard).MountRoutes(r)
		inventory.NewHandler(params.Logger, svc.Inventory, guard).MountRoutes(r)
		documents.NewHandler(params.Logger, svc.Documents, guard).MountRoutes(r)
		billing.NewHandler(params.Logger, svc.Billing, guard).MountRoutes(r)
		pos.NewHandler(params.Logger, svc.POS, guard).MountRoutes(r)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no route for "+r.URL.Path)
	})

	return r
}

func readiness(check func(context.Context) map[string]error, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, code := "ready", http.StatusOK
		results := map[string]string{}
		if check != nil {
			for name, err := range check(r.Context()) {
				if err != nil {
					logger.Warn("readiness check failed", slog.String("dependency", name), slog.Any("error", err))
					results[name] = "unavailable"
					status, code = "unavailable", http.StatusServiceUnavailable
					continue
				}
				results[name] = "ok"
			}
		}
		httpx.JSON(w, code, map[string]any{"status": status, "checks": results})
	}
}
