// Package storagetest holds behavior tests shared by every storage.Store
// backend.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	kycgate "github.com/eugener/kycgate/internal"
	"github.com/eugener/kycgate/internal/storage"
)

const (
	alice = kycgate.Address("0x00000000000000000000000000000000000a11ce")
	bob   = kycgate.Address("0x0000000000000000000000000000000000000b0b")
	bank  = kycgate.Address("0x00000000000000000000000000000000000ba4c0")
)

// Run exercises a backend. newStore must return an empty, migrated store;
// each subtest gets its own.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Run("LoanRoundTrip", func(t *testing.T) { testLoanRoundTrip(t, newStore(t)) })
	t.Run("LoanListFilter", func(t *testing.T) { testLoanListFilter(t, newStore(t)) })
	t.Run("LoanStatusCompareAndSet", func(t *testing.T) { testLoanStatusCAS(t, newStore(t)) })
	t.Run("TransactionsDedup", func(t *testing.T) { testTransactionsDedup(t, newStore(t)) })
	t.Run("TransactionsPaging", func(t *testing.T) { testTransactionsPaging(t, newStore(t)) })
	t.Run("APIKeyRoundTrip", func(t *testing.T) { testAPIKeyRoundTrip(t, newStore(t)) })
	t.Run("Ping", func(t *testing.T) {
		if err := newStore(t).Ping(context.Background()); err != nil {
			t.Fatal(err)
		}
	})
}

// ts returns a fixed instant offset by n seconds, at microsecond precision
// so it survives every backend's timestamp encoding.
func ts(n int) time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 123456000, time.UTC).Add(time.Duration(n) * time.Second)
}

func newLoan(id string, borrower kycgate.Address, status kycgate.LoanStatus, n int) *kycgate.Loan {
	return &kycgate.Loan{
		ID:        id,
		Borrower:  borrower,
		Lender:    bank,
		Amount:    "1000000000000000000",
		Status:    status,
		CreatedAt: ts(n),
		UpdatedAt: ts(n),
	}
}

func testLoanRoundTrip(t *testing.T, s storage.Store) {
	ctx := context.Background()
	loan := newLoan("loan-1", alice, kycgate.LoanRequested, 0)
	if err := s.CreateLoan(ctx, loan); err != nil {
		t.Fatal("create:", err)
	}

	got, err := s.GetLoan(ctx, "loan-1")
	if err != nil {
		t.Fatal("get:", err)
	}
	if diff := cmp.Diff(loan, got); diff != "" {
		t.Errorf("loan mismatch (-want +got):\n%s", diff)
	}

	if err := s.CreateLoan(ctx, loan); !errors.Is(err, kycgate.ErrConflict) {
		t.Errorf("duplicate create err = %v, want ErrConflict", err)
	}
	if _, err := s.GetLoan(ctx, "missing"); !errors.Is(err, kycgate.ErrNotFound) {
		t.Errorf("get missing err = %v, want ErrNotFound", err)
	}
}

func testLoanListFilter(t *testing.T, s storage.Store) {
	ctx := context.Background()
	loans := []*kycgate.Loan{
		newLoan("a1", alice, kycgate.LoanRequested, 1),
		newLoan("a2", alice, kycgate.LoanApproved, 2),
		newLoan("a3", alice, kycgate.LoanRequested, 3),
		newLoan("b1", bob, kycgate.LoanRequested, 4),
	}
	for _, l := range loans {
		if err := s.CreateLoan(ctx, l); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name   string
		filter kycgate.LoanFilter
		want   []string
		count  int
	}{
		{"borrower", kycgate.LoanFilter{Borrower: alice}, []string{"a3", "a2", "a1"}, 3},
		{"borrower and status", kycgate.LoanFilter{Borrower: alice, Status: kycgate.LoanRequested}, []string{"a3", "a1"}, 2},
		{"status", kycgate.LoanFilter{Status: kycgate.LoanRequested}, []string{"b1", "a3", "a1"}, 3},
		{"paged", kycgate.LoanFilter{Borrower: alice, Offset: 1, Limit: 1}, []string{"a2"}, 3},
		{"none", kycgate.LoanFilter{Borrower: alice, Status: kycgate.LoanRepaid}, nil, 0},
	}
	for _, tt := range tests {
		got, err := s.ListLoans(ctx, tt.filter)
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		var ids []string
		for _, l := range got {
			ids = append(ids, l.ID)
		}
		if diff := cmp.Diff(tt.want, ids); diff != "" {
			t.Errorf("%s: ids (-want +got):\n%s", tt.name, diff)
		}
		n, err := s.CountLoans(ctx, tt.filter)
		if err != nil {
			t.Fatalf("%s: count: %v", tt.name, err)
		}
		if n != tt.count {
			t.Errorf("%s: count = %d, want %d", tt.name, n, tt.count)
		}
	}
}

func testLoanStatusCAS(t *testing.T, s storage.Store) {
	ctx := context.Background()
	if err := s.CreateLoan(ctx, newLoan("l", alice, kycgate.LoanRequested, 0)); err != nil {
		t.Fatal(err)
	}

	if err := s.UpdateLoanStatus(ctx, "l", kycgate.LoanRequested, kycgate.LoanApproved, ts(60)); err != nil {
		t.Fatal("update:", err)
	}
	got, err := s.GetLoan(ctx, "l")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != kycgate.LoanApproved {
		t.Errorf("status = %s, want approved", got.Status)
	}
	if !got.UpdatedAt.Equal(ts(60)) {
		t.Errorf("updated_at = %v, want %v", got.UpdatedAt, ts(60))
	}
	if !got.CreatedAt.Equal(ts(0)) {
		t.Errorf("created_at changed to %v", got.CreatedAt)
	}

	// Stale expected status.
	err = s.UpdateLoanStatus(ctx, "l", kycgate.LoanRequested, kycgate.LoanRejected, ts(61))
	if !errors.Is(err, kycgate.ErrConflict) {
		t.Errorf("stale update err = %v, want ErrConflict", err)
	}
	got, _ = s.GetLoan(ctx, "l")
	if got.Status != kycgate.LoanApproved {
		t.Errorf("status after conflict = %s, want approved", got.Status)
	}

	err = s.UpdateLoanStatus(ctx, "nope", kycgate.LoanRequested, kycgate.LoanApproved, ts(62))
	if !errors.Is(err, kycgate.ErrNotFound) {
		t.Errorf("missing loan err = %v, want ErrNotFound", err)
	}
}

func newTx(hash string, addr kycgate.Address, block uint64) kycgate.Transaction {
	return kycgate.Transaction{
		Hash:      hash,
		Address:   addr,
		From:      addr,
		To:        bank,
		Amount:    "5",
		Kind:      "repayment",
		Block:     block,
		CreatedAt: ts(int(block)),
	}
}

func testTransactionsDedup(t *testing.T, s storage.Store) {
	ctx := context.Background()
	n, err := s.InsertTransactions(ctx, []kycgate.Transaction{
		newTx("0x01", alice, 10),
		newTx("0x02", alice, 11),
		newTx("0x01", bob, 10), // same hash, different account
	})
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("inserted = %d, want 3", n)
	}

	n, err = s.InsertTransactions(ctx, []kycgate.Transaction{
		newTx("0x02", alice, 11),
		newTx("0x03", alice, 12),
	})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("second insert = %d, want 1 (duplicate skipped)", n)
	}

	if n, err := s.InsertTransactions(ctx, nil); err != nil || n != 0 {
		t.Errorf("empty insert = %d, %v", n, err)
	}

	got, err := s.ListTransactions(ctx, kycgate.TxFilter{Address: alice})
	if err != nil {
		t.Fatal(err)
	}
	want := []kycgate.Transaction{newTx("0x03", alice, 12), newTx("0x02", alice, 11), newTx("0x01", alice, 10)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("transactions (-want +got):\n%s", diff)
	}
}

func testTransactionsPaging(t *testing.T, s storage.Store) {
	ctx := context.Background()
	var txs []kycgate.Transaction
	for i := range 1200 {
		txs = append(txs, newTx(fmt.Sprintf("0x%04x", i), alice, uint64(i)))
	}
	n, err := s.InsertTransactions(ctx, txs)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(txs) {
		t.Fatalf("inserted = %d, want %d", n, len(txs))
	}

	page, err := s.ListTransactions(ctx, kycgate.TxFilter{Address: alice, Offset: 10, Limit: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 5 {
		t.Fatalf("page len = %d, want 5", len(page))
	}
	if page[0].Block != 1189 || page[4].Block != 1185 {
		t.Errorf("page blocks = %d..%d, want 1189..1185", page[0].Block, page[4].Block)
	}

	def, err := s.ListTransactions(ctx, kycgate.TxFilter{Address: alice})
	if err != nil {
		t.Fatal(err)
	}
	if len(def) != 50 {
		t.Errorf("default page len = %d, want 50", len(def))
	}

	none, err := s.ListTransactions(ctx, kycgate.TxFilter{Address: bob})
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Errorf("bob has %d transactions, want 0", len(none))
	}
}

func testAPIKeyRoundTrip(t *testing.T, s storage.Store) {
	ctx := context.Background()
	exp := ts(3600)
	key := &kycgate.APIKey{
		ID:        "key-1",
		Name:      "ops",
		KeyHash:   "abc123hash",
		KeyPrefix: "kyc_abc1",
		Role:      "operator",
		ExpiresAt: &exp,
		CreatedAt: ts(0),
	}
	if err := s.CreateKey(ctx, key); err != nil {
		t.Fatal("create:", err)
	}

	got, err := s.GetKeyByHash(ctx, "abc123hash")
	if err != nil {
		t.Fatal("get:", err)
	}
	if diff := cmp.Diff(key, got); diff != "" {
		t.Errorf("key mismatch (-want +got):\n%s", diff)
	}

	if err := s.TouchKeyUsed(ctx, "key-1"); err != nil {
		t.Fatal("touch:", err)
	}
	got, _ = s.GetKeyByHash(ctx, "abc123hash")
	if got.LastUsedAt == nil {
		t.Error("last_used_at should be set after touch")
	}

	if _, err := s.GetKeyByHash(ctx, "nope"); !errors.Is(err, kycgate.ErrNotFound) {
		t.Errorf("missing key err = %v, want ErrNotFound", err)
	}

	dup := *key
	dup.ID = "key-2"
	if err := s.CreateKey(ctx, &dup); !errors.Is(err, kycgate.ErrConflict) {
		t.Errorf("duplicate hash err = %v, want ErrConflict", err)
	}
}
