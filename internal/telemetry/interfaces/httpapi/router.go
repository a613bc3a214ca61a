package httpapi

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mqtt-timescale/internal/auth"
	"mqtt-timescale/internal/observability/metrics"
)

// Pinger reports store reachability.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// RouterConfig carries the collaborators of the HTTP surface.
type RouterConfig struct {
	Handler      *MessageHandler
	Pinger       Pinger
	JWTSecret    []byte
	IngestSecret []byte
	MaxSkew      time.Duration
	Logger       *log.Logger
}

// NewRouter builds the HTTP routes.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(accessLog(logger))
	r.Use(auth.NewAuthenticator(auth.Config{
		JWTSecret:    cfg.JWTSecret,
		IngestSecret: cfg.IngestSecret,
		MaxSkew:      cfg.MaxSkew,
		Policy:       auth.DefaultPolicy(),
		OnReject: func(scheme auth.Scheme, reason string) {
			metrics.IncAuthRejection(string(scheme), reason)
		},
	}).Wrap)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Pinger != nil {
			if err := cfg.Pinger.PingContext(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	if cfg.Handler == nil {
		return r
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/messages", cfg.Handler.Ingest)
		r.Post("/preview", cfg.Handler.Preview)
		r.Get("/node", cfg.Handler.Node)
	})
	r.Post("/ingest/mqtt", cfg.Handler.Ingest)

	return r
}

func accessLog(logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, ww.Status(), time.Since(start))
		})
	}
}
