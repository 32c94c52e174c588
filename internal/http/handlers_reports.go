package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"conti/internal/core"
	"conti/internal/log"
	"conti/internal/services"
)

const balanceCacheKey = "balance"

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	if rb, ok := s.balanceCache.Get(balanceCacheKey); ok {
		log.FromContext(r.Context()).DebugContext(r.Context(), "Balance cache hit")
		writeJSON(w, http.StatusOK, balanceToJSON(rb))
		return
	}
	snap, err := s.ledger.Snapshot(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	rb := services.Balance(snap)
	s.balanceCache.Set(balanceCacheKey, rb)
	writeJSON(w, http.StatusOK, balanceToJSON(rb))
}

func (s *Server) handleGetAnchors(w http.ResponseWriter, r *http.Request) {
	settings, err := s.ledger.Settings(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, anchorsToJSON(settings.StartingBalance))
}

func (s *Server) handlePutAnchors(w http.ResponseWriter, r *http.Request) {
	var p anchorsPayload
	if err := decodeJSON(w, r, &p); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	sb, err := p.toStartingBalance()
	if err != nil {
		writeError(w, r, err)
		return
	}
	settings, err := s.ledger.Settings(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	settings.StartingBalance = sb
	if err := s.ledger.SaveSettings(r.Context(), settings); err != nil {
		writeError(w, r, err)
		return
	}
	s.flushDerived()
	s.pushSectionsAsync(r)
	writeJSON(w, http.StatusOK, anchorsToJSON(sb))
}

func (s *Server) handlePacing(w http.ResponseWriter, r *http.Request) {
	monthKey := chi.URLParam(r, "month")
	if p, ok := s.pacingCache.Get(monthKey); ok {
		writeJSON(w, http.StatusOK, pacingToJSON(p))
		return
	}
	snap, err := s.ledger.Snapshot(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := services.PacingFor(snap, monthKey, core.DateOf(time.Now()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.pacingCache.Set(monthKey, p)
	writeJSON(w, http.StatusOK, pacingToJSON(p))
}

// handleWarnings recomputes the future-shortfall projection on every
// call; it is a point-in-time view and is never cached or persisted.
func (s *Server) handleWarnings(w http.ResponseWriter, r *http.Request) {
	snap, err := s.ledger.Snapshot(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	warnings := services.Shortfalls(snap, core.DateOf(time.Now()))
	out := make([]warningJSON, 0, len(warnings))
	for _, wn := range warnings {
		out = append(out, warningToJSON(wn))
	}
	writeJSON(w, http.StatusOK, out)
}
