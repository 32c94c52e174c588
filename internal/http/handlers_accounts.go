package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"conti/internal/core"
)

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.ledger.Accounts(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]accountJSON, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, accountToJSON(a))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var p accountPayload
	if err := decodeJSON(w, r, &p); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	created, err := s.ledger.CreateAccount(r.Context(), core.Account{
		ID:          p.ID,
		DisplayName: sanitizeInput(p.DisplayName),
		Default:     p.Default,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.flushDerived()
	writeJSON(w, http.StatusCreated, accountToJSON(created))
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	// The cash singleton is not a stored account and cannot be removed.
	if id == core.CashAccountID {
		writeError(w, r, core.ErrReservedAccount)
		return
	}
	if err := s.ledger.DeleteAccount(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	s.flushDerived()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetDefaultAccount(w http.ResponseWriter, r *http.Request) {
	updated, err := s.ledger.SetDefaultAccount(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.flushDerived()
	writeJSON(w, http.StatusOK, accountToJSON(updated))
}
