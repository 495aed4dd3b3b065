package httpapi

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/gmarcinek/semantic-k/internal/config"
	"github.com/gmarcinek/semantic-k/internal/session"
)

func NewRouter(cfg config.Config, db *sql.DB, retriever Retriever, gatherer prometheus.Gatherer, logger *zap.Logger) http.Handler {
	h := NewHandler(session.NewStore(db), retriever, logger)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", h.Healthz)
	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(v1 chi.Router) {
		v1.Route("/sessions", func(s chi.Router) {
			s.Post("/", h.CreateSession)
			s.Delete("/{sessionID}", h.ResetSession)
			s.Get("/{sessionID}/messages", h.ListMessages)
		})
		v1.Post("/retrieve", h.Retrieve)
	})

	return r
}
