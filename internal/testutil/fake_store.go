package testutil

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	kycgate "github.com/eugener/kycgate/internal"
)

// FakeStore is an in-memory implementation of storage.Store for testing.
// It counts list calls so tests can observe cache hits.
type FakeStore struct {
	mu    sync.RWMutex
	loans map[string]*kycgate.Loan
	txs   []kycgate.Transaction
	keys  map[string]*kycgate.APIKey // hash -> key

	LoanLists int
	TxLists   int
	// Err, when set, is returned by every call.
	Err     error
	PingErr error
}

// NewFakeStore returns a FakeStore with empty collections.
func NewFakeStore() *FakeStore {
	return &FakeStore{
		loans: make(map[string]*kycgate.Loan),
		keys:  make(map[string]*kycgate.APIKey),
	}
}

// Counts returns the number of ListLoans and ListTransactions calls.
func (s *FakeStore) Counts() (loanLists, txLists int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.LoanLists, s.TxLists
}

// --- LoanStore ---

// CreateLoan stores a copy of loan.
func (s *FakeStore) CreateLoan(_ context.Context, loan *kycgate.Loan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if _, ok := s.loans[loan.ID]; ok {
		return kycgate.ErrConflict
	}
	cp := *loan
	s.loans[loan.ID] = &cp
	return nil
}

// GetLoan returns a copy of the loan with id.
func (s *FakeStore) GetLoan(_ context.Context, id string) (*kycgate.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return nil, s.Err
	}
	l, ok := s.loans[id]
	if !ok {
		return nil, kycgate.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (s *FakeStore) matchLoans(f kycgate.LoanFilter) []*kycgate.Loan {
	var out []*kycgate.Loan
	for _, l := range s.loans {
		if f.Borrower != "" && l.Borrower != f.Borrower {
			continue
		}
		if f.Status != "" && l.Status != f.Status {
			continue
		}
		cp := *l
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *kycgate.Loan) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out
}

// ListLoans returns loans matching f, newest first.
func (s *FakeStore) ListLoans(_ context.Context, f kycgate.LoanFilter) ([]*kycgate.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LoanLists++
	if s.Err != nil {
		return nil, s.Err
	}
	return page(s.matchLoans(f), f.Offset, f.Limit), nil
}

// CountLoans returns the number of loans matching f.
func (s *FakeStore) CountLoans(_ context.Context, f kycgate.LoanFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return 0, s.Err
	}
	return len(s.matchLoans(f)), nil
}

// UpdateLoanStatus applies a compare-and-set status change.
func (s *FakeStore) UpdateLoanStatus(_ context.Context, id string, from, to kycgate.LoanStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	l, ok := s.loans[id]
	if !ok {
		return kycgate.ErrNotFound
	}
	if l.Status != from {
		return fmt.Errorf("loan %s is %s: %w", id, l.Status, kycgate.ErrConflict)
	}
	l.Status = to
	l.UpdatedAt = at
	return nil
}

// SetLoanStatus overwrites a stored loan's status, simulating another writer.
func (s *FakeStore) SetLoanStatus(id string, status kycgate.LoanStatus) {
	s.mu.Lock()
	if l, ok := s.loans[id]; ok {
		l.Status = status
	}
	s.mu.Unlock()
}

// --- TransactionStore ---

// InsertTransactions appends txs, skipping known (hash, address) pairs.
func (s *FakeStore) InsertTransactions(_ context.Context, txs []kycgate.Transaction) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	n := 0
	for _, t := range txs {
		dup := slices.ContainsFunc(s.txs, func(e kycgate.Transaction) bool {
			return e.Hash == t.Hash && e.Address == t.Address
		})
		if !dup {
			s.txs = append(s.txs, t)
			n++
		}
	}
	return n, nil
}

// ListTransactions returns transactions for f.Address, newest block first.
func (s *FakeStore) ListTransactions(_ context.Context, f kycgate.TxFilter) ([]kycgate.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TxLists++
	if s.Err != nil {
		return nil, s.Err
	}
	var out []kycgate.Transaction
	for _, t := range s.txs {
		if t.Address == f.Address {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b kycgate.Transaction) int {
		if c := cmp.Compare(b.Block, a.Block); c != 0 {
			return c
		}
		return cmp.Compare(a.Hash, b.Hash)
	})
	return page(out, f.Offset, f.Limit), nil
}

// --- APIKeyStore ---

// AddKey stores key under the hash of raw.
func (s *FakeStore) AddKey(raw string, key *kycgate.APIKey) {
	key.KeyHash = kycgate.HashKey(raw)
	s.mu.Lock()
	s.keys[key.KeyHash] = key
	s.mu.Unlock()
}

// CreateKey stores key.
func (s *FakeStore) CreateKey(_ context.Context, key *kycgate.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if _, ok := s.keys[key.KeyHash]; ok {
		return kycgate.ErrConflict
	}
	s.keys[key.KeyHash] = key
	return nil
}

// GetKeyByHash looks up a key by hash.
func (s *FakeStore) GetKeyByHash(_ context.Context, hash string) (*kycgate.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return nil, s.Err
	}
	k, ok := s.keys[hash]
	if !ok {
		return nil, kycgate.ErrNotFound
	}
	return k, nil
}

// TouchKeyUsed is a no-op.
func (s *FakeStore) TouchKeyUsed(context.Context, string) error { return nil }

// Ping returns PingErr.
func (s *FakeStore) Ping(context.Context) error { return s.PingErr }

// Close is a no-op.
func (s *FakeStore) Close() error { return nil }

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
