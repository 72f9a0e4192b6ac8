package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/neuralchat/ragserver/internal/api/handlers"
	"github.com/neuralchat/ragserver/internal/api/middleware"
	"github.com/neuralchat/ragserver/internal/auth"
	"github.com/neuralchat/ragserver/internal/config"
	"github.com/neuralchat/ragserver/internal/document"
	"github.com/neuralchat/ragserver/internal/llm"
	"github.com/neuralchat/ragserver/internal/rag"
)

// Deps are the services behind the HTTP surface. Queue and Auth are
// optional: nil disables async ingestion and token checks respectively.
type Deps struct {
	Orchestrator *rag.Orchestrator
	Retriever    *rag.Retriever
	Ingester     *rag.Ingester
	Documents    document.Store
	Gateway      llm.Gateway
	Queue        handlers.Enqueuer
	Auth         *auth.Issuer
	Checks       map[string]handlers.Check
}

type Router struct {
	mux  *chi.Mux
	cfg  *config.Config
	deps Deps
	rl   *middleware.RateLimiter
}

func NewRouter(cfg *config.Config, deps Deps) *Router {
	return &Router{
		mux:  chi.NewRouter(),
		cfg:  cfg,
		deps: deps,
		rl:   middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst),
	}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(rt.cfg.Server.CORSOrigins))
	r.Use(rt.rl.Limit)

	// Health endpoints (no auth)
	health := handlers.NewHealthHandler(rt.deps.Checks)
	r.Get("/", health.Root)
	r.Get("/health", health.Health)
	r.Get("/readyz", health.Readyz)

	queryH := handlers.NewQueryHandler(rt.deps.Orchestrator, rt.deps.Retriever)
	docH := handlers.NewDocumentHandler(rt.deps.Ingester, rt.deps.Documents, rt.deps.Queue, rt.cfg.Server.MaxUploadBytes)
	modelsH := handlers.NewModelsHandler(rt.deps.Gateway)

	r.Route("/api", func(r chi.Router) {
		if rt.deps.Auth != nil {
			r.Use(rt.deps.Auth.Middleware)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Deadline(rt.cfg.Server.RequestTimeout))
			r.Post("/query", queryH.Query)
			r.Post("/llm", queryH.LLM)
			r.Post("/search", queryH.Search)
		})

		r.Post("/ingest", docH.Ingest)
		r.Route("/documents", func(r chi.Router) {
			r.Get("/", docH.List)
			r.Get("/{id}", docH.Get)
			r.Delete("/{id}", docH.Delete)
		})

		r.Get("/models", modelsH.Models)
	})

	return r
}

// Close releases background resources held by the middleware.
func (rt *Router) Close() {
	rt.rl.Stop()
}
