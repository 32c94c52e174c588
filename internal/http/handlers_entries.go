package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"conti/internal/core"
)

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	snap, err := s.ledger.Snapshot(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]entryJSON, 0, len(snap.Expenses))
	for _, e := range snap.Expenses {
		out = append(out, expenseJSON(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var p entryPayload
	if err := decodeJSON(w, r, &p); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	e, err := p.toExpense()
	if err != nil {
		writeError(w, r, err)
		return
	}
	created, err := s.ledger.CreateExpense(r.Context(), e)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.flushDerived()
	writeJSON(w, http.StatusCreated, expenseJSON(created))
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	var p entryPayload
	if err := decodeJSON(w, r, &p); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	e, err := p.toExpense()
	if err != nil {
		writeError(w, r, err)
		return
	}
	e.ID = chi.URLParam(r, "id")
	updated, err := s.ledger.UpdateExpense(r.Context(), e)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.flushDerived()
	writeJSON(w, http.StatusOK, expenseJSON(updated))
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteExpense(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	s.flushDerived()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListIncome(w http.ResponseWriter, r *http.Request) {
	snap, err := s.ledger.Snapshot(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]entryJSON, 0, len(snap.Incomes))
	for _, in := range snap.Incomes {
		out = append(out, incomeJSON(in))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateIncome(w http.ResponseWriter, r *http.Request) {
	var p entryPayload
	if err := decodeJSON(w, r, &p); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	in, err := p.toIncome()
	if err != nil {
		writeError(w, r, err)
		return
	}
	created, err := s.ledger.CreateIncome(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.flushDerived()
	writeJSON(w, http.StatusCreated, incomeJSON(created))
}

func (s *Server) handleUpdateIncome(w http.ResponseWriter, r *http.Request) {
	var p entryPayload
	if err := decodeJSON(w, r, &p); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	in, err := p.toIncome()
	if err != nil {
		writeError(w, r, err)
		return
	}
	in.ID = chi.URLParam(r, "id")
	updated, err := s.ledger.UpdateIncome(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.flushDerived()
	writeJSON(w, http.StatusOK, incomeJSON(updated))
}

func (s *Server) handleDeleteIncome(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteIncome(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	s.flushDerived()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListTransfers(w http.ResponseWriter, r *http.Request) {
	snap, err := s.ledger.Snapshot(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]transferJSON, 0, len(snap.Transfers))
	for _, tr := range snap.Transfers {
		out = append(out, transferToJSON(tr))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateTransfer(w http.ResponseWriter, r *http.Request) {
	tr, ok := s.decodeTransfer(w, r)
	if !ok {
		return
	}
	created, err := s.ledger.CreateTransfer(r.Context(), tr)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.flushDerived()
	writeJSON(w, http.StatusCreated, transferToJSON(created))
}

func (s *Server) handleUpdateTransfer(w http.ResponseWriter, r *http.Request) {
	tr, ok := s.decodeTransfer(w, r)
	if !ok {
		return
	}
	tr.ID = chi.URLParam(r, "id")
	updated, err := s.ledger.UpdateTransfer(r.Context(), tr)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.flushDerived()
	writeJSON(w, http.StatusOK, transferToJSON(updated))
}

func (s *Server) handleDeleteTransfer(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteTransfer(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	s.flushDerived()
	w.WriteHeader(http.StatusNoContent)
}

// decodeTransfer parses a transfer payload, loading the account list so
// legacy direction values can resolve to real endpoints.
func (s *Server) decodeTransfer(w http.ResponseWriter, r *http.Request) (core.Transfer, bool) {
	var p transferPayload
	if err := decodeJSON(w, r, &p); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return core.Transfer{}, false
	}
	accounts, err := s.ledger.Accounts(r.Context())
	if err != nil {
		writeError(w, r, err)
		return core.Transfer{}, false
	}
	tr, err := p.toTransfer(accounts)
	if err != nil {
		writeError(w, r, err)
		return core.Transfer{}, false
	}
	return tr, true
}
