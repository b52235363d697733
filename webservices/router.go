package webservices

import (
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	tracing "github.com/jamesrr39/go-tracing"
	"github.com/jamesrr39/goutil/logpkg"
	"github.com/jamesrr39/ownmap-headless/headlessrender"
	"github.com/jamesrr39/semaphore"
)

type RouterOptions struct {
	MaxConcurrentRenders uint
	// Tracer records a trace per request when set
	Tracer        *tracing.Tracer
	ShouldProfile bool
	LogRequests   bool
}

func NewRouter(logger *logpkg.Logger, env *headlessrender.Environment, layerSet *LayerSet, options RouterOptions) chi.Router {
	maxConcurrentRenders := options.MaxConcurrentRenders
	if maxConcurrentRenders == 0 {
		maxConcurrentRenders = 4
	}
	sema := semaphore.NewSemaphore(maxConcurrentRenders)

	router := chi.NewRouter()
	if options.LogRequests {
		router.Use(middleware.DefaultLogger)
	}
	if options.Tracer != nil {
		router.Use(tracing.Middleware(options.Tracer))
	}
	router.Route("/api/", func(r chi.Router) {
		r.Mount("/info", NewInfoService(logger, layerSet))
		r.Mount("/layers/", NewLayerService(logger, env, layerSet, sema))
		r.Mount("/tiles/", NewTileService(logger, env, layerSet, sema, options.ShouldProfile))
	})

	return router
}
