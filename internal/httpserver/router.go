package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"dreamspace-gateway/internal/handlers"
	"dreamspace-gateway/internal/metrics"
	"dreamspace-gateway/internal/middleware"
)

// Options tunes the request limits applied to every route.
type Options struct {
	RequestTimeout time.Duration // default: 3m
	MaxBodyBytes   int64         // default: 16 MiB
}

func SetupRouter(r *chi.Mux, baseLogger *zap.Logger, designHandler *handlers.DesignHandler, opts Options) {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 3 * time.Minute
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 16 << 20
	}

	r.Use(metrics.Middleware)

	// base middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)

	r.Use(middleware.LoggingContext(baseLogger))
	r.Use(middleware.Recoverer())
	r.Use(middleware.Timeout(opts.RequestTimeout))
	r.Use(middleware.MaxBodySize(opts.MaxBodyBytes))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/redesign", designHandler.Redesign)
		r.Post("/advice", designHandler.Advice)
		r.Post("/shop", designHandler.Shop)
		r.Get("/styles", designHandler.Styles)
		r.Get("/styles/{style}/description", designHandler.DescribeStyle)
	})

	// health check
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/metrics", metrics.Handler())
}
