package transport

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/vasiliy-maslov/storefront-payments/internal/handler"
	"github.com/vasiliy-maslov/storefront-payments/internal/lifecycle"
)

type RouterConfig struct {
	Name           string
	Version        string
	RequestTimeout time.Duration
	WebhookSecret  string
	// Admin routes are mounted only when Admin is non-nil.
	Admin *handler.AdminAuthenticator
}

type serviceInfo struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

type notFoundResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Path    string `json:"path"`
}

func NewRouter(svc lifecycle.Service, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	r.Group(func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			render.JSON(w, req, serviceInfo{
				Success:   true,
				Message:   cfg.Name,
				Version:   cfg.Version,
				Timestamp: time.Now().UTC(),
			})
		})

		handler.NewCheckoutHandler(svc).RegisterRoutes(r)
		handler.NewWebhookHandler(svc, handler.NewSignatureVerifier(cfg.WebhookSecret)).RegisterRoutes(r)
		handler.NewOrderHandler(svc).RegisterRoutes(r)
		if cfg.Admin != nil {
			handler.NewAdminHandler(svc, cfg.Admin).RegisterRoutes(r)
		}
	})

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		render.Status(req, http.StatusNotFound)
		render.JSON(w, req, notFoundResponse{Success: false, Error: "Route not found", Path: req.URL.Path})
	})

	return r
}
