// Package storage defines persistence interfaces for kycgate.
package storage

import (
	"context"
	"time"

	kycgate "github.com/eugener/kycgate/internal"
)

// LoanStore manages loan persistence.
type LoanStore interface {
	CreateLoan(ctx context.Context, loan *kycgate.Loan) error
	GetLoan(ctx context.Context, id string) (*kycgate.Loan, error)
	ListLoans(ctx context.Context, f kycgate.LoanFilter) ([]*kycgate.Loan, error)
	CountLoans(ctx context.Context, f kycgate.LoanFilter) (int, error)
	// UpdateLoanStatus moves loan id from status from to status to. It
	// returns kycgate.ErrConflict when the stored status is not from and
	// kycgate.ErrNotFound when the loan does not exist.
	UpdateLoanStatus(ctx context.Context, id string, from, to kycgate.LoanStatus, at time.Time) error
}

// TransactionStore manages indexed transaction persistence.
type TransactionStore interface {
	// InsertTransactions stores txs, skipping (Hash, Address) pairs that
	// already exist. It returns the number of rows actually inserted.
	InsertTransactions(ctx context.Context, txs []kycgate.Transaction) (int, error)
	ListTransactions(ctx context.Context, f kycgate.TxFilter) ([]kycgate.Transaction, error)
}

// APIKeyStore manages admin API key persistence.
type APIKeyStore interface {
	CreateKey(ctx context.Context, key *kycgate.APIKey) error
	GetKeyByHash(ctx context.Context, hash string) (*kycgate.APIKey, error)
	TouchKeyUsed(ctx context.Context, id string) error
}

// Store combines all storage interfaces.
type Store interface {
	LoanStore
	TransactionStore
	APIKeyStore
	Ping(ctx context.Context) error
	Close() error
}
