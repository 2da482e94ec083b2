// Package app implements the cached account, loan and cache-admin services
// behind the kycgate HTTP API.
package app

import (
	"context"
	"fmt"
	"math"
	"time"

	kycgate "github.com/eugener/kycgate/internal"
	"github.com/eugener/kycgate/internal/storage"
	"github.com/eugener/kycgate/internal/ttlcache"
)

// Page size bounds for loan and transaction listings.
const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// Chain is the subset of the chain client the account service reads.
type Chain interface {
	TrustScore(ctx context.Context, addr kycgate.Address) (uint64, error)
	KYCStatus(ctx context.Context, addr kycgate.Address) (kycgate.KYCStatus, error)
}

// AccountService serves per-account reads through the TTL cache. Misses
// fall through to the chain (scores, KYC) or the store (loans,
// transactions); failed loads are not cached.
type AccountService struct {
	chain        Chain
	loans        storage.LoanStore
	transactions storage.TransactionStore
	cache        *ttlcache.Store

	scores  *ttlcache.Typed[kycgate.TrustScore]
	kyc     *ttlcache.Typed[kycgate.KYCRecord]
	loanLst *ttlcache.Typed[[]*kycgate.Loan]
	txLst   *ttlcache.Typed[[]kycgate.Transaction]
}

// NewAccountService wires the service to its sources and cache.
func NewAccountService(chain Chain, store storage.Store, cache *ttlcache.Store) *AccountService {
	return &AccountService{
		chain:        chain,
		loans:        store,
		transactions: store,
		cache:        cache,
		scores:       ttlcache.NewTyped[kycgate.TrustScore](cache, ttlcache.TrustScore),
		kyc:          ttlcache.NewTyped[kycgate.KYCRecord](cache, ttlcache.KYCStatus),
		loanLst:      ttlcache.NewTyped[[]*kycgate.Loan](cache, ttlcache.Loans),
		txLst:        ttlcache.NewTyped[[]kycgate.Transaction](cache, ttlcache.Transactions),
	}
}

// TrustScore returns the on-chain trust score of addr.
func (s *AccountService) TrustScore(ctx context.Context, addr kycgate.Address) (kycgate.TrustScore, error) {
	return s.scores.GetOrLoad(ctx, ttlcache.MakeKey("score", addr), func(ctx context.Context) (kycgate.TrustScore, error) {
		score, err := s.chain.TrustScore(ctx, addr)
		if err != nil {
			return kycgate.TrustScore{}, err
		}
		return kycgate.TrustScore{Address: addr, Score: score}, nil
	})
}

// KYCStatus returns the registry status of addr.
func (s *AccountService) KYCStatus(ctx context.Context, addr kycgate.Address) (kycgate.KYCRecord, error) {
	return s.kyc.GetOrLoad(ctx, ttlcache.MakeKey("kyc", addr), func(ctx context.Context) (kycgate.KYCRecord, error) {
		status, err := s.chain.KYCStatus(ctx, addr)
		if err != nil {
			return kycgate.KYCRecord{}, err
		}
		return kycgate.KYCRecord{Address: addr, Status: status}, nil
	})
}

// Loans returns one page of the loans borrowed by addr, newest first,
// optionally restricted to one status. An empty status lists every loan.
// limit and offset follow Transactions.
func (s *AccountService) Loans(ctx context.Context, addr kycgate.Address, status kycgate.LoanStatus, limit, offset int) ([]*kycgate.Loan, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown loan status %q", kycgate.ErrBadRequest, status)
	}
	limit, err := PageLimit(limit, offset)
	if err != nil {
		return nil, err
	}
	key := ttlcache.MakeKey("loans", addr, string(status), limit, offset)
	return s.loanLst.GetOrLoad(ctx, key, func(ctx context.Context) ([]*kycgate.Loan, error) {
		loans, err := s.loans.ListLoans(ctx, kycgate.LoanFilter{
			Borrower: addr,
			Status:   status,
			Limit:    limit,
			Offset:   offset,
		})
		if err != nil {
			return nil, err
		}
		if loans == nil {
			loans = []*kycgate.Loan{}
		}
		return loans, nil
	})
}

// Transactions returns one page of the transactions indexed under addr.
func (s *AccountService) Transactions(ctx context.Context, addr kycgate.Address, limit, offset int) ([]kycgate.Transaction, error) {
	limit, err := PageLimit(limit, offset)
	if err != nil {
		return nil, err
	}
	key := ttlcache.MakeKey("txs", addr, limit, offset)
	return s.txLst.GetOrLoad(ctx, key, func(ctx context.Context) ([]kycgate.Transaction, error) {
		txs, err := s.transactions.ListTransactions(ctx, kycgate.TxFilter{Address: addr, Limit: limit, Offset: offset})
		if err != nil {
			return nil, err
		}
		if txs == nil {
			txs = []kycgate.Transaction{}
		}
		return txs, nil
	})
}

// PageLimit returns the effective page size for a listing: zero selects
// DefaultPageSize and anything above MaxPageSize is clamped.
func PageLimit(limit, offset int) (int, error) {
	if offset < 0 || limit < 0 {
		return 0, fmt.Errorf("%w: limit and offset must not be negative", kycgate.ErrBadRequest)
	}
	if limit == 0 {
		return DefaultPageSize, nil
	}
	return min(limit, MaxPageSize), nil
}

// IngestTransactions validates and stores txs, then drops cached
// transaction pages when anything new was written. It returns the number
// of rows inserted.
func (s *AccountService) IngestTransactions(ctx context.Context, txs []kycgate.Transaction) (int, error) {
	for i := range txs {
		if err := normalizeTx(&txs[i]); err != nil {
			return 0, fmt.Errorf("transaction %d: %w", i, err)
		}
	}
	n, err := s.transactions.InsertTransactions(ctx, txs)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.cache.Clear(ttlcache.Transactions)
	}
	return n, nil
}

func normalizeTx(t *kycgate.Transaction) error {
	if t.Hash == "" {
		return fmt.Errorf("%w: hash is required", kycgate.ErrBadRequest)
	}
	for _, a := range []*kycgate.Address{&t.Address, &t.From, &t.To} {
		addr, err := kycgate.ParseAddress(string(*a))
		if err != nil {
			return err
		}
		*a = addr
	}
	if t.Amount == "" {
		t.Amount = "0"
	}
	if t.Amount != "0" && !kycgate.ValidAmount(t.Amount) {
		return fmt.Errorf("%w: amount must be a non-negative integer", kycgate.ErrBadRequest)
	}
	// Stores keep block heights in signed 64-bit columns.
	if t.Block > math.MaxInt64 {
		return fmt.Errorf("%w: block %d out of range", kycgate.ErrBadRequest, t.Block)
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	return nil
}
