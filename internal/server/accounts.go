package server

import (
	"net/http"
	"strconv"

	kycgate "github.com/eugener/kycgate/internal"
	"github.com/eugener/kycgate/internal/app"
)

type pagination struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

type listResponse struct {
	Data       any         `json:"data"`
	Pagination *pagination `json:"pagination,omitempty"`
}

func (s *server) handleTrustScore(w http.ResponseWriter, r *http.Request) {
	score, err := s.deps.Accounts.TrustScore(r.Context(), addressFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, score)
}

func (s *server) handleKYCStatus(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Accounts.KYCStatus(r.Context(), addressFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *server) handleLoans(w http.ResponseWriter, r *http.Request) {
	offset, limit, ok := parsePagination(w, r)
	if !ok {
		return
	}
	status := kycgate.LoanStatus(r.URL.Query().Get("status"))
	loans, err := s.deps.Accounts.Loans(r.Context(), addressFrom(r), status, limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, loans, offset, limit)
}

func (s *server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	offset, limit, ok := parsePagination(w, r)
	if !ok {
		return
	}
	txs, err := s.deps.Accounts.Transactions(r.Context(), addressFrom(r), limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, txs, offset, limit)
}

// writeList reports the page size the service actually used.
func writeList(w http.ResponseWriter, data any, offset, limit int) {
	limit, _ = app.PageLimit(limit, offset)
	writeJSON(w, http.StatusOK, listResponse{
		Data:       data,
		Pagination: &pagination{Offset: offset, Limit: limit},
	})
}

// parsePagination reads optional integer offset and limit query params.
// Range checks are left to the service. Writes 400 on malformed values.
func parsePagination(w http.ResponseWriter, r *http.Request) (offset, limit int, ok bool) {
	q := r.URL.Query()
	for _, p := range []struct {
		name string
		dst  *int
	}{{"offset", &offset}, {"limit", &limit}} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse(http.StatusBadRequest, "invalid "+p.name))
			return 0, 0, false
		}
		*p.dst = n
	}
	return offset, limit, true
}
