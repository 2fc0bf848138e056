// Package api exposes the reconciliation services over a chi REST router.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/mmynk/posrecon/internal/auth"
	"github.com/mmynk/posrecon/internal/metrics"
	"github.com/mmynk/posrecon/internal/middleware"
	"github.com/mmynk/posrecon/internal/service"
)

// Services bundles the handlers' dependencies.
type Services struct {
	AutoMatch  *service.AutoMatchService
	Manual     *service.ManualMatchService
	MultiMatch *service.MultiMatchService
	Settlement *service.SettlementService
	Report     *service.ReportService
}

// Options configures NewRouter.
type Options struct {
	// JWT enables bearer-token authentication. When nil the operator and
	// scope are read from the X-Operator-ID, X-Company-ID and X-Branch-ID headers.
	JWT *auth.JWTManager

	Paging Paging

	// RequestTimeout bounds every request. Zero means 60 seconds.
	RequestTimeout time.Duration
}

type handler struct {
	svc    Services
	paging Paging
}

// NewRouter builds the HTTP surface.
func NewRouter(svc Services, opts Options) http.Handler {
	if opts.Paging.DefaultLimit == 0 {
		opts.Paging = DefaultPaging()
	}
	if opts.RequestTimeout == 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	h := &handler{svc: svc, paging: opts.Paging}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Metrics())
	r.Use(chimw.Timeout(opts.RequestTimeout))

	// Public routes accept, but do not require, a bearer token.
	r.Group(func(r chi.Router) {
		if opts.JWT != nil {
			r.Use(middleware.OptionalAuth(opts.JWT))
		}
		r.Get("/health", health)
		r.Handle("/metrics", metrics.Handler())
	})

	r.Group(func(r chi.Router) {
		if opts.JWT != nil {
			r.Use(middleware.RequireAuth(opts.JWT))
		} else {
			r.Use(middleware.HeaderAuth())
		}
		r.Use(middleware.Logging())

		r.Route("/reconciliation/bank", func(r chi.Router) {
			r.Get("/summary", h.summary)
			r.Get("/discrepancies", h.discrepancies)
			r.Get("/discrepancies/export", h.exportDiscrepancies)
			r.Get("/statements", h.listStatements)
			r.Get("/statements/{statementId}/potential-matches", h.potentialMatches)
			r.Get("/audit", h.auditTrail)

			r.Post("/auto-match", h.autoMatchPreview)
			r.Post("/auto-match/confirm", h.autoMatchConfirm)
			r.Post("/manual", h.manualMatch)
			r.Post("/undo/{statementId}", h.undoMatch)

			r.Route("/multi-match", func(r chi.Router) {
				r.Post("/", h.createGroup)
				r.Get("/", h.listGroups)
				r.Get("/suggestions", h.suggestStatements)
				r.Post("/suggest-aggregate", h.suggestAggregate)
				r.Get("/{groupId}", h.getGroup)
				r.Post("/{groupId}/undo", h.undoGroup)
			})
		})

		r.Route("/settlement-group", func(r chi.Router) {
			r.Post("/create", h.createSettlement)
			r.Get("/list", h.listSettlements)
			r.Get("/trash", h.listSettlementTrash)
			r.Get("/available-statements", h.availableStatements)
			r.Get("/available-aggregates", h.availableAggregates)
			r.Get("/suggestions", h.settlementSuggestions)
			r.Get("/number/{settlementNumber}", h.getSettlementByNumber)
			r.Get("/{id}", h.getSettlement)
			r.Get("/{id}/aggregates", h.settlementAggregates)
			r.Delete("/{id}/soft-delete", h.softDeleteSettlement)
			r.Post("/{id}/restore", h.restoreSettlement)
		})
	})

	return r
}

func health(w http.ResponseWriter, r *http.Request) {
	body := map[string]string{"status": "ok"}
	if op := middleware.GetUserID(r.Context()); op != "" {
		body["operator"] = op
	}
	writeJSON(w, http.StatusOK, body)
}
