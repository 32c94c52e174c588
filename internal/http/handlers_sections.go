package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"conti/internal/core"
	"conti/internal/log"
	"conti/internal/services"
)

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	budgets, err := s.ledger.Budgets(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make(map[string]budgetPayload, len(budgets))
	for month, mb := range budgets {
		out[month] = budgetToJSON(mb)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetBudget(w http.ResponseWriter, r *http.Request) {
	month := chi.URLParam(r, "month")
	if _, _, err := core.ParseMonthKey(month); err != nil {
		writeError(w, r, err)
		return
	}
	budgets, err := s.ledger.Budgets(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, budgetToJSON(budgets[month]))
}

func (s *Server) handlePutBudget(w http.ResponseWriter, r *http.Request) {
	month := chi.URLParam(r, "month")
	if _, _, err := core.ParseMonthKey(month); err != nil {
		writeError(w, r, err)
		return
	}
	var p budgetPayload
	if err := decodeJSON(w, r, &p); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	budgets, err := s.ledger.Budgets(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if budgets == nil {
		budgets = make(core.Budgets)
	}
	budgets[month] = p.toMonthBudget()
	if err := s.ledger.SaveBudgets(r.Context(), budgets); err != nil {
		writeError(w, r, err)
		return
	}
	s.pacingCache.Delete(month)
	s.pushSectionsAsync(r)
	writeJSON(w, http.StatusOK, budgetToJSON(budgets[month]))
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.ledger.Settings(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settingsToJSON(settings))
}

// handlePutSettings applies a partial update: empty fields keep their
// stored value, so clients can rotate one credential without knowing
// the others.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var p settingsPayload
	if err := decodeJSON(w, r, &p); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	settings, err := s.ledger.Settings(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if p.Currency != "" {
		settings.Currency = p.Currency
	}
	if p.SpreadsheetID != "" {
		settings.SpreadsheetID = p.SpreadsheetID
	}
	if p.APIKey != "" {
		settings.APIKey = p.APIKey
	}
	if p.RelayURL != "" {
		settings.RelayURL = p.RelayURL
	}
	if p.RelaySecret != "" {
		settings.RelaySecret = p.RelaySecret
	}
	if err := s.ledger.SaveSettings(r.Context(), settings); err != nil {
		writeError(w, r, err)
		return
	}
	s.pushSectionsAsync(r)
	writeJSON(w, http.StatusOK, settingsToJSON(settings))
}

func (s *Server) handleGetCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.ledger.Categories(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categoriesPayload{Categories: cats})
}

func (s *Server) handlePutCategories(w http.ResponseWriter, r *http.Request) {
	var p categoriesPayload
	if err := decodeJSON(w, r, &p); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	cats := core.NormalizeCategories(p.Categories)
	if err := s.ledger.SaveCategories(r.Context(), cats); err != nil {
		writeError(w, r, err)
		return
	}
	s.pushSectionsAsync(r)
	writeJSON(w, http.StatusOK, categoriesPayload{Categories: cats})
}

type syncResponse struct {
	Started bool                `json:"started"`
	Status  services.SyncStatus `json:"status"`
}

func (s *Server) handleTriggerSync(w http.ResponseWriter, r *http.Request) {
	if s.reconciler == nil || !s.reconciler.Enabled() {
		writeJSON(w, http.StatusConflict, errorResponse{Error: services.ErrSyncDisabled.Error()})
		return
	}
	started := s.reconciler.TrySync(r.Context())
	status := http.StatusAccepted
	if !started {
		// A cycle is already in flight; the caller's changes ride along
		// with it or with the next trigger.
		status = http.StatusOK
	}
	writeJSON(w, status, syncResponse{Started: started, Status: s.reconciler.Status()})
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	if s.reconciler == nil {
		writeJSON(w, http.StatusOK, syncResponse{Started: false})
		return
	}
	writeJSON(w, http.StatusOK, syncResponse{Status: s.reconciler.Status()})
}

// pushSectionsAsync eagerly rewrites the remote section data after a
// local section save. Sections merge remote-wins, so waiting for the
// next full cycle would roll the edit back if a pull happened first.
func (s *Server) pushSectionsAsync(r *http.Request) {
	if s.reconciler == nil || !s.reconciler.Enabled() {
		return
	}
	logger := log.FromContext(r.Context())
	go func() {
		ctx := context.Background()
		if err := s.reconciler.PushSections(ctx); err != nil {
			logger.ErrorContext(ctx, "Eager section push failed", "error", err)
		}
	}()
}
