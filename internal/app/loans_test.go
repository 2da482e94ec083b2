package app

import (
	"context"
	"errors"
	"testing"

	kycgate "github.com/eugener/kycgate/internal"
	"github.com/eugener/kycgate/internal/events"
	"github.com/eugener/kycgate/internal/testutil"
)

type loanFixture struct {
	store   *testutil.FakeStore
	chain   *testutil.FakeChain
	emitter *events.Emitter
	svc     *LoanService
	seen    []*kycgate.Loan
}

func newLoanFixture(t *testing.T) *loanFixture {
	t.Helper()
	f := newFixture(t)
	lf := &loanFixture{
		store:   f.store,
		chain:   f.chain,
		emitter: events.NewEmitter(),
	}
	f.chain.KYCStatusFn = func(_ context.Context, a kycgate.Address) (kycgate.KYCStatus, error) {
		if a == alice {
			return kycgate.KYCVerified, nil
		}
		return kycgate.KYCPending, nil
	}
	lf.svc = NewLoanService(f.store, f.svc, lf.emitter)
	lf.emitter.On(events.LoanChanged, func(_ context.Context, p any) {
		lf.seen = append(lf.seen, p.(events.LoanEvent).Loan)
	})
	return lf
}

func TestLoanService_Create(t *testing.T) {
	t.Parallel()
	f := newLoanFixture(t)

	loan, err := f.svc.Create(context.Background(), NewLoan{
		Borrower: "0x00000000000000000000000000000000000A11CE",
		Lender:   bank,
		Amount:   "1000000000000000000",
	})
	if err != nil {
		t.Fatal(err)
	}
	if loan.Status != kycgate.LoanRequested || loan.Borrower != alice || loan.ID == "" {
		t.Errorf("loan = %+v", loan)
	}
	if loan.CreatedAt.IsZero() || !loan.CreatedAt.Equal(loan.UpdatedAt) {
		t.Errorf("timestamps = %v / %v", loan.CreatedAt, loan.UpdatedAt)
	}
	if _, err := f.store.GetLoan(context.Background(), loan.ID); err != nil {
		t.Errorf("loan not persisted: %v", err)
	}
	if len(f.seen) != 1 || f.seen[0].ID != loan.ID {
		t.Errorf("events = %v, want one for %s", f.seen, loan.ID)
	}
}

func TestLoanService_CreateRejected(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		req  NewLoan
		want error
	}{
		{"bad borrower", NewLoan{Borrower: "0x1", Lender: bank, Amount: "1"}, kycgate.ErrBadRequest},
		{"bad lender", NewLoan{Borrower: alice, Lender: "bank", Amount: "1"}, kycgate.ErrBadRequest},
		{"self loan", NewLoan{Borrower: alice, Lender: alice, Amount: "1"}, kycgate.ErrBadRequest},
		{"zero amount", NewLoan{Borrower: alice, Lender: bank, Amount: "0"}, kycgate.ErrBadRequest},
		{"fractional amount", NewLoan{Borrower: alice, Lender: bank, Amount: "1.5"}, kycgate.ErrBadRequest},
		{"kyc pending", NewLoan{Borrower: bob, Lender: bank, Amount: "1"}, kycgate.ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newLoanFixture(t)
			_, err := f.svc.Create(context.Background(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if len(f.seen) != 0 {
				t.Error("rejected request must not emit")
			}
		})
	}
}

func TestLoanService_CreateKYCLookupFails(t *testing.T) {
	t.Parallel()
	f := newLoanFixture(t)
	f.chain.KYCStatusFn = func(context.Context, kycgate.Address) (kycgate.KYCStatus, error) {
		return 0, kycgate.ErrUnavailable
	}

	_, err := f.svc.Create(context.Background(), NewLoan{Borrower: alice, Lender: bank, Amount: "1"})
	if !errors.Is(err, kycgate.ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}

func TestLoanService_Transition(t *testing.T) {
	t.Parallel()
	f := newLoanFixture(t)
	ctx := context.Background()

	loan, err := f.svc.Create(ctx, NewLoan{Borrower: alice, Lender: bank, Amount: "5"})
	if err != nil {
		t.Fatal(err)
	}
	for _, to := range []kycgate.LoanStatus{kycgate.LoanApproved, kycgate.LoanDisbursed, kycgate.LoanRepaid} {
		got, err := f.svc.Transition(ctx, loan.ID, to)
		if err != nil {
			t.Fatalf("-> %s: %v", to, err)
		}
		if got.Status != to {
			t.Errorf("status = %s, want %s", got.Status, to)
		}
	}
	stored, _ := f.store.GetLoan(ctx, loan.ID)
	if stored.Status != kycgate.LoanRepaid {
		t.Errorf("stored status = %s, want repaid", stored.Status)
	}
	if len(f.seen) != 4 {
		t.Errorf("events = %d, want 4", len(f.seen))
	}

	if _, err := f.svc.Transition(ctx, loan.ID, kycgate.LoanApproved); !errors.Is(err, kycgate.ErrConflict) {
		t.Errorf("transition out of terminal state: err = %v, want ErrConflict", err)
	}
}

func TestLoanService_TransitionErrors(t *testing.T) {
	t.Parallel()
	f := newLoanFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Transition(ctx, "missing", kycgate.LoanApproved); !errors.Is(err, kycgate.ErrNotFound) {
		t.Errorf("missing loan: err = %v, want ErrNotFound", err)
	}

	loan, _ := f.svc.Create(ctx, NewLoan{Borrower: alice, Lender: bank, Amount: "5"})
	if _, err := f.svc.Transition(ctx, loan.ID, "paused"); !errors.Is(err, kycgate.ErrBadRequest) {
		t.Errorf("unknown status: err = %v, want ErrBadRequest", err)
	}
	if _, err := f.svc.Transition(ctx, loan.ID, kycgate.LoanRepaid); !errors.Is(err, kycgate.ErrConflict) {
		t.Errorf("skipped state: err = %v, want ErrConflict", err)
	}
}

// A concurrent writer moves the loan between the read and the update. The
// compare-and-set in the store must reject the stale transition.
type racingStore struct {
	*testutil.FakeStore
	race func(id string)
}

func (s racingStore) GetLoan(ctx context.Context, id string) (*kycgate.Loan, error) {
	l, err := s.FakeStore.GetLoan(ctx, id)
	if err == nil {
		s.race(id)
	}
	return l, err
}

func TestLoanService_TransitionLostRace(t *testing.T) {
	t.Parallel()
	f := newLoanFixture(t)
	ctx := context.Background()

	loan, _ := f.svc.Create(ctx, NewLoan{Borrower: alice, Lender: bank, Amount: "5"})
	rs := racingStore{FakeStore: f.store, race: func(id string) {
		f.store.SetLoanStatus(id, kycgate.LoanRejected)
	}}
	svc := NewLoanService(rs, f.svc.kyc, f.emitter)

	if _, err := svc.Transition(ctx, loan.ID, kycgate.LoanApproved); !errors.Is(err, kycgate.ErrConflict) {
		t.Errorf("err = %v, want ErrConflict", err)
	}
	if len(f.seen) != 1 {
		t.Errorf("events = %d, want only the create event", len(f.seen))
	}
}
