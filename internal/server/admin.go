package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	kycgate "github.com/eugener/kycgate/internal"
	"github.com/eugener/kycgate/internal/app"
	"github.com/eugener/kycgate/internal/ttlcache"
)

const (
	// maxAdminBody is the maximum allowed admin request body size (1 MB).
	maxAdminBody = 1 << 20
	// maxIngestBody bounds POST /admin/transactions (8 MB).
	maxIngestBody = 8 << 20
	// maxIngestBatch is the most transactions accepted per ingest request.
	maxIngestBatch = 5_000
)

// decodeJSON limits body size, decodes JSON into v, and writes a 400 on error.
// Returns true if decoding succeeded.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse(http.StatusBadRequest, "invalid request body"))
		return false
	}
	return true
}

// parseExpiresAt parses an optional RFC3339 expires_at string pointer.
// Writes 400 and returns false on invalid format.
func parseExpiresAt(w http.ResponseWriter, raw *string) (*time.Time, bool) {
	if raw == nil {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, *raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse(http.StatusBadRequest, "invalid expires_at format"))
		return nil, false
	}
	t = t.UTC()
	return &t, true
}

func (s *server) handleWhoAmI(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, kycgate.IdentityFromContext(r.Context()))
}

// --- Cache ---

func (s *server) handleCacheStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Cache.Stats())
}

func (s *server) handleCachePurge(w http.ResponseWriter, r *http.Request) {
	s.deps.Cache.Purge(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	ns, ok := ttlcache.ParseNamespace(chi.URLParam(r, "namespace"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse(http.StatusNotFound, "unknown cache namespace"))
		return
	}
	s.deps.Cache.Clear(r.Context(), ns)
	w.WriteHeader(http.StatusNoContent)
}

// --- Loans ---

type loanCreateRequest struct {
	Borrower kycgate.Address `json:"borrower"`
	Lender   kycgate.Address `json:"lender"`
	Amount   string          `json:"amount"`
}

func (s *server) handleCreateLoan(w http.ResponseWriter, r *http.Request) {
	var req loanCreateRequest
	if !decodeJSON(w, r, maxAdminBody, &req) {
		return
	}
	loan, err := s.deps.Loans.Create(r.Context(), app.NewLoan{
		Borrower: req.Borrower,
		Lender:   req.Lender,
		Amount:   req.Amount,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/admin/loans/"+loan.ID)
	writeJSON(w, http.StatusCreated, loan)
}

type loanTransitionRequest struct {
	Status kycgate.LoanStatus `json:"status"`
}

func (s *server) handleTransitionLoan(w http.ResponseWriter, r *http.Request) {
	var req loanTransitionRequest
	if !decodeJSON(w, r, maxAdminBody, &req) {
		return
	}
	loan, err := s.deps.Loans.Transition(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

// --- Transactions ---

type ingestRequest struct {
	Transactions []kycgate.Transaction `json:"transactions"`
}

type ingestResponse struct {
	Received int `json:"received"`
	Inserted int `json:"inserted"`
}

func (s *server) handleIngestTransactions(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if !decodeJSON(w, r, maxIngestBody, &req) {
		return
	}
	switch n := len(req.Transactions); {
	case n == 0:
		writeJSON(w, http.StatusBadRequest, errorResponse(http.StatusBadRequest, "no transactions"))
		return
	case n > maxIngestBatch:
		writeJSON(w, http.StatusBadRequest, errorResponse(http.StatusBadRequest, "too many transactions"))
		return
	}
	inserted, err := s.deps.Accounts.IngestTransactions(r.Context(), req.Transactions)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ingestResponse{Received: len(req.Transactions), Inserted: inserted})
}

// --- Keys ---

// keyCreateRequest is the payload for creating a new API key.
type keyCreateRequest struct {
	Name      string  `json:"name"`
	Role      string  `json:"role,omitempty"`
	ExpiresAt *string `json:"expires_at,omitempty"` // RFC3339
}

// keyCreateResponse includes the plaintext key, returned exactly once.
type keyCreateResponse struct {
	*kycgate.APIKey
	PlaintextKey string `json:"key"`
}

func (s *server) handleCreateKey(w http.ResponseWriter, r *http.Request) {
	var req keyCreateRequest
	if !decodeJSON(w, r, maxAdminBody, &req) {
		return
	}
	expiresAt, ok := parseExpiresAt(w, req.ExpiresAt)
	if !ok {
		return
	}

	plaintext, key, err := s.deps.Keys.CreateKey(r.Context(), app.CreateKeyOpts{
		Name:      req.Name,
		Role:      req.Role,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, keyCreateResponse{APIKey: key, PlaintextKey: plaintext})
}
