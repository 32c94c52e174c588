package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"conti/internal/cache"
	"conti/internal/core"
	"conti/internal/log"
	"conti/internal/middleware/trace"
	"conti/internal/services"
)

// Server is the JSON API over the local ledger. Balance and pacing
// responses are served from small LRU caches; every mutation purges
// them, so a stale view survives at most one write.
type Server struct {
	http.Server

	ledger     *services.LedgerService
	reconciler *services.Reconciler

	balanceCache *cache.LRUCache[core.RunningBalance]
	pacingCache  *cache.LRUCache[core.Pacing]
	cacheManager *cache.Manager

	shutdownOnce sync.Once
}

// NewServer wires routes, middleware and caches into a ready-to-run
// http.Server. The reconciler may be nil when no remote is configured;
// the sync endpoints then report sync as disabled.
func NewServer(addr string, ledger *services.LedgerService, reconciler *services.Reconciler, logger *log.Logger, corsOrigins []string) *Server {
	s := &Server{
		ledger:       ledger,
		reconciler:   reconciler,
		balanceCache: cache.NewLRUCache[core.RunningBalance](8, 2*time.Minute),
		pacingCache:  cache.NewLRUCache[core.Pacing](64, 2*time.Minute),
		cacheManager: cache.NewManager(),
	}
	s.cacheManager.Register(s.balanceCache)
	s.cacheManager.Register(s.pacingCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	tracer := trace.NewMiddleware(clientIP)

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(tracer.Middleware)
	r.Use(log.Middleware(logger))
	r.Use(log.RequestIDMiddleware(func(req *http.Request) string {
		return trace.GetRequestID(req.Context())
	}))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", handleReady)

	r.Route("/api", func(r chi.Router) {
		r.Use(log.ComponentMiddleware(log.ComponentHTTP))

		r.Route("/expenses", func(r chi.Router) {
			r.Get("/", s.handleListExpenses)
			r.Post("/", s.handleCreateExpense)
			r.Put("/{id}", s.handleUpdateExpense)
			r.Delete("/{id}", s.handleDeleteExpense)
		})
		r.Route("/income", func(r chi.Router) {
			r.Get("/", s.handleListIncome)
			r.Post("/", s.handleCreateIncome)
			r.Put("/{id}", s.handleUpdateIncome)
			r.Delete("/{id}", s.handleDeleteIncome)
		})
		r.Route("/transfers", func(r chi.Router) {
			r.Get("/", s.handleListTransfers)
			r.Post("/", s.handleCreateTransfer)
			r.Put("/{id}", s.handleUpdateTransfer)
			r.Delete("/{id}", s.handleDeleteTransfer)
		})
		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", s.handleListAccounts)
			r.Post("/", s.handleCreateAccount)
			r.Delete("/{id}", s.handleDeleteAccount)
			r.Put("/{id}/default", s.handleSetDefaultAccount)
		})

		r.Get("/balance", s.handleBalance)
		r.Get("/balance/anchors", s.handleGetAnchors)
		r.Put("/balance/anchors", s.handlePutAnchors)
		r.Get("/pacing/{month}", s.handlePacing)
		r.Get("/warnings", s.handleWarnings)

		r.Get("/budgets", s.handleListBudgets)
		r.Get("/budgets/{month}", s.handleGetBudget)
		r.Put("/budgets/{month}", s.handlePutBudget)
		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handlePutSettings)
		r.Get("/categories", s.handleGetCategories)
		r.Put("/categories", s.handlePutCategories)

		r.Post("/sync", s.handleTriggerSync)
		r.Get("/sync/status", s.handleSyncStatus)
	})

	s.Server = http.Server{
		Addr:           addr,
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 16,
	}
	return s
}

// Shutdown stops the HTTP listener and the cache cleanup goroutine.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// flushDerived throws away cached balance and pacing views after any
// write that could change them.
func (s *Server) flushDerived() {
	s.balanceCache.Purge()
	s.pacingCache.Purge()
}

// clientIP resolves the caller address, honoring proxy headers.
func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return ip
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	return r.RemoteAddr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
