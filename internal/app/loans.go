package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	kycgate "github.com/eugener/kycgate/internal"
	"github.com/eugener/kycgate/internal/events"
	"github.com/eugener/kycgate/internal/storage"
)

// KYCChecker reports the KYC status of an account.
type KYCChecker interface {
	KYCStatus(ctx context.Context, addr kycgate.Address) (kycgate.KYCRecord, error)
}

// NewLoan holds the fields of a loan request.
type NewLoan struct {
	Borrower kycgate.Address
	Lender   kycgate.Address
	Amount   string
}

// LoanService creates loans and moves them through their lifecycle. Every
// persisted change is announced as an events.LoanChanged event.
type LoanService struct {
	store   storage.LoanStore
	kyc     KYCChecker
	emitter *events.Emitter
	now     func() time.Time
}

// NewLoanService returns a LoanService. Borrowers must be KYC verified
// according to kyc before a loan can be requested.
func NewLoanService(store storage.LoanStore, kyc KYCChecker, emitter *events.Emitter) *LoanService {
	return &LoanService{store: store, kyc: kyc, emitter: emitter, now: time.Now}
}

// Create records a new loan in the requested state.
func (s *LoanService) Create(ctx context.Context, req NewLoan) (*kycgate.Loan, error) {
	borrower, err := kycgate.ParseAddress(string(req.Borrower))
	if err != nil {
		return nil, fmt.Errorf("borrower: %w", err)
	}
	lender, err := kycgate.ParseAddress(string(req.Lender))
	if err != nil {
		return nil, fmt.Errorf("lender: %w", err)
	}
	if borrower == lender {
		return nil, fmt.Errorf("%w: borrower and lender must differ", kycgate.ErrBadRequest)
	}
	if !kycgate.ValidAmount(req.Amount) {
		return nil, fmt.Errorf("%w: amount must be a positive integer", kycgate.ErrBadRequest)
	}

	rec, err := s.kyc.KYCStatus(ctx, borrower)
	if err != nil {
		return nil, fmt.Errorf("check borrower kyc: %w", err)
	}
	if rec.Status != kycgate.KYCVerified {
		return nil, fmt.Errorf("%w: borrower kyc status is %s", kycgate.ErrConflict, rec.Status)
	}

	now := s.now().UTC()
	loan := &kycgate.Loan{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Borrower:  borrower,
		Lender:    lender,
		Amount:    req.Amount,
		Status:    kycgate.LoanRequested,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateLoan(ctx, loan); err != nil {
		return nil, fmt.Errorf("create loan: %w", err)
	}
	s.changed(ctx, loan)
	return loan, nil
}

// Transition moves loan id to status to. Illegal moves, and moves that race
// with another writer, fail with ErrConflict.
func (s *LoanService) Transition(ctx context.Context, id string, to kycgate.LoanStatus) (*kycgate.Loan, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown loan status %q", kycgate.ErrBadRequest, to)
	}
	loan, err := s.store.GetLoan(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get loan %s: %w", id, err)
	}
	if !kycgate.CanTransition(loan.Status, to) {
		return nil, fmt.Errorf("%w: loan %s cannot move from %s to %s", kycgate.ErrConflict, id, loan.Status, to)
	}

	at := s.now().UTC()
	if err := s.store.UpdateLoanStatus(ctx, id, loan.Status, to, at); err != nil {
		return nil, err
	}
	loan.Status = to
	loan.UpdatedAt = at
	s.changed(ctx, loan)
	return loan, nil
}

func (s *LoanService) changed(ctx context.Context, loan *kycgate.Loan) {
	slog.LogAttrs(ctx, slog.LevelInfo, "loan changed",
		slog.String("loan_id", loan.ID),
		slog.String("status", string(loan.Status)),
		slog.String("request_id", kycgate.RequestIDFromContext(ctx)),
	)
	s.emitter.Emit(ctx, events.LoanChanged, events.LoanEvent{Loan: loan})
}
