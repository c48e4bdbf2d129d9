package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/solarperformanceinsight/spi/internal/api/middleware"
	"github.com/solarperformanceinsight/spi/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit
	// Metrics counts requests when set.
	Metrics mw.RequestRecorder

	HealthHandler  http.HandlerFunc
	MetricsHandler http.Handler

	GetUser http.HandlerFunc

	ListSystems  http.HandlerFunc
	CreateSystem http.HandlerFunc
	CheckSystem  http.HandlerFunc
	GetSystem    http.HandlerFunc
	UpdateSystem http.HandlerFunc
	DeleteSystem http.HandlerFunc

	CheckJob   http.HandlerFunc
	CreateJob  http.HandlerFunc
	ListJobs   http.HandlerFunc
	GetJob     http.HandlerFunc
	DeleteJob  http.HandlerFunc
	JobStatus  http.HandlerFunc
	ComputeJob http.HandlerFunc

	GetData  http.HandlerFunc
	PostData http.HandlerFunc

	ListResults http.HandlerFunc
	GetResult   http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	if deps.Metrics != nil {
		r.Use(mw.Metrics(deps.Metrics))
	}
	r.Use(mw.Recovery)

	r.Get("/health", orNotImplemented(deps.HealthHandler))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		if deps.RateLimit != nil {
			r.Use(deps.RateLimit.Limit)
		}

		r.Get("/user/", orNotImplemented(deps.GetUser))

		r.Route("/systems", func(r chi.Router) {
			r.Get("/", orNotImplemented(deps.ListSystems))
			r.Post("/", orNotImplemented(deps.CreateSystem))
			r.Post("/check", orNotImplemented(deps.CheckSystem))
			r.Get("/{systemID}", orNotImplemented(deps.GetSystem))
			r.Put("/{systemID}", orNotImplemented(deps.UpdateSystem))
			r.Post("/{systemID}", orNotImplemented(deps.UpdateSystem))
			r.Delete("/{systemID}", orNotImplemented(deps.DeleteSystem))
		})

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", orNotImplemented(deps.ListJobs))
			r.Post("/", orNotImplemented(deps.CreateJob))
			r.Post("/check", orNotImplemented(deps.CheckJob))

			r.Route("/{jobID}", func(r chi.Router) {
				r.Get("/", orNotImplemented(deps.GetJob))
				r.Delete("/", orNotImplemented(deps.DeleteJob))
				r.Get("/status", orNotImplemented(deps.JobStatus))
				r.Post("/compute", orNotImplemented(deps.ComputeJob))
				r.Get("/data/{dataID}", orNotImplemented(deps.GetData))
				r.Post("/data/{dataID}", orNotImplemented(deps.PostData))
				r.Get("/results", orNotImplemented(deps.ListResults))
				r.Get("/results/{resultID}", orNotImplemented(deps.GetResult))
			})
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
