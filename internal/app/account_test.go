package app

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	kycgate "github.com/eugener/kycgate/internal"
	"github.com/eugener/kycgate/internal/testutil"
	"github.com/eugener/kycgate/internal/ttlcache"
)

const (
	alice = kycgate.Address("0x00000000000000000000000000000000000a11ce")
	bob   = kycgate.Address("0x0000000000000000000000000000000000000b0b")
	bank  = kycgate.Address("0x00000000000000000000000000000000000ba4c0")
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

type fixture struct {
	chain *testutil.FakeChain
	store *testutil.FakeStore
	cache *ttlcache.Store
	clock *clock
	svc   *AccountService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		chain: &testutil.FakeChain{},
		store: testutil.NewFakeStore(),
		clock: &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	f.cache = ttlcache.New(ttlcache.Options{TTL: time.Minute, Now: f.clock.now})
	f.svc = NewAccountService(f.chain, f.store, f.cache)
	return f
}

func TestAccountService_TrustScoreCached(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	score := uint64(700)
	f.chain.TrustScoreFn = func(context.Context, kycgate.Address) (uint64, error) { return score, nil }

	got, err := f.svc.TrustScore(context.Background(), alice)
	if err != nil {
		t.Fatal(err)
	}
	if got.Score != 700 || got.Address != alice {
		t.Errorf("got %+v", got)
	}

	score = 900
	got, _ = f.svc.TrustScore(context.Background(), alice)
	if got.Score != 700 {
		t.Errorf("second read = %d, want cached 700", got.Score)
	}
	if n := f.chain.Calls("TrustScore"); n != 1 {
		t.Errorf("chain calls = %d, want 1", n)
	}

	f.clock.advance(time.Minute + time.Millisecond)
	got, _ = f.svc.TrustScore(context.Background(), alice)
	if got.Score != 900 {
		t.Errorf("after expiry = %d, want 900", got.Score)
	}
}

func TestAccountService_PerAccountKeys(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.chain.KYCStatusFn = func(_ context.Context, a kycgate.Address) (kycgate.KYCStatus, error) {
		if a == alice {
			return kycgate.KYCVerified, nil
		}
		return kycgate.KYCPending, nil
	}

	a, _ := f.svc.KYCStatus(context.Background(), alice)
	b, _ := f.svc.KYCStatus(context.Background(), bob)
	if a.Status != kycgate.KYCVerified || b.Status != kycgate.KYCPending {
		t.Errorf("alice = %v, bob = %v", a.Status, b.Status)
	}
	if n := f.cache.Len(ttlcache.KYCStatus); n != 2 {
		t.Errorf("kyc entries = %d, want 2", n)
	}
}

func TestAccountService_ErrorsNotCached(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	fail := true
	f.chain.TrustScoreFn = func(context.Context, kycgate.Address) (uint64, error) {
		if fail {
			return 0, kycgate.ErrUpstream
		}
		return 5, nil
	}

	if _, err := f.svc.TrustScore(context.Background(), alice); !errors.Is(err, kycgate.ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
	if n := f.cache.Len(ttlcache.TrustScore); n != 0 {
		t.Errorf("entries after failure = %d, want 0", n)
	}
	fail = false
	got, err := f.svc.TrustScore(context.Background(), alice)
	if err != nil || got.Score != 5 {
		t.Errorf("retry = %+v, %v", got, err)
	}
}

func TestAccountService_LoansByStatus(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	for i, st := range []kycgate.LoanStatus{kycgate.LoanRequested, kycgate.LoanApproved, kycgate.LoanRequested} {
		f.store.CreateLoan(ctx, &kycgate.Loan{
			ID: string(rune('a' + i)), Borrower: alice, Lender: bank, Amount: "1", Status: st,
			CreatedAt: f.clock.t.Add(time.Duration(i) * time.Second),
		})
	}

	all, err := f.svc.Loans(ctx, alice, "", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("all = %d, want 3", len(all))
	}
	req, _ := f.svc.Loans(ctx, alice, kycgate.LoanRequested, 0, 0)
	if len(req) != 2 {
		t.Errorf("requested = %d, want 2", len(req))
	}
	none, _ := f.svc.Loans(ctx, bob, "", 0, 0)
	if none == nil || len(none) != 0 {
		t.Errorf("bob loans = %v, want empty non-nil", none)
	}

	f.svc.Loans(ctx, alice, "", 0, 0)
	f.svc.Loans(ctx, alice, kycgate.LoanRequested, 0, 0)
	if lists, _ := f.store.Counts(); lists != 3 {
		t.Errorf("store lists = %d, want 3 (repeat reads cached)", lists)
	}

	if _, err := f.svc.Loans(ctx, alice, "bogus", 0, 0); !errors.Is(err, kycgate.ErrBadRequest) {
		t.Errorf("bad status err = %v, want ErrBadRequest", err)
	}
}

func TestAccountService_LoansPaging(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	for i := range 3 {
		f.store.CreateLoan(ctx, &kycgate.Loan{
			ID: string(rune('a' + i)), Borrower: alice, Lender: bank, Amount: "1", Status: kycgate.LoanRequested,
			CreatedAt: f.clock.t.Add(time.Duration(i) * time.Second),
		})
	}

	p, err := f.svc.Loans(ctx, alice, "", 2, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(p) != 2 || p[0].ID != "b" || p[1].ID != "a" {
		t.Errorf("page = %+v", p)
	}
	first, _ := f.svc.Loans(ctx, alice, "", 1, 0)
	if len(first) != 1 || first[0].ID != "c" {
		t.Errorf("first page = %+v", first)
	}
	if _, err := f.svc.Loans(ctx, alice, "", 0, -1); !errors.Is(err, kycgate.ErrBadRequest) {
		t.Errorf("negative offset err = %v", err)
	}
}

func TestPageLimit(t *testing.T) {
	t.Parallel()
	tests := []struct {
		limit, offset, want int
	}{
		{0, 0, DefaultPageSize},
		{10, 5, 10},
		{MaxPageSize + 1, 0, MaxPageSize},
	}
	for _, tt := range tests {
		if got, err := PageLimit(tt.limit, tt.offset); err != nil || got != tt.want {
			t.Errorf("PageLimit(%d, %d) = %d, %v; want %d", tt.limit, tt.offset, got, err, tt.want)
		}
	}
	if _, err := PageLimit(-1, 0); !errors.Is(err, kycgate.ErrBadRequest) {
		t.Errorf("negative limit err = %v", err)
	}
}

func TestAccountService_TransactionsPaging(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	var txs []kycgate.Transaction
	for i := range 5 {
		txs = append(txs, kycgate.Transaction{
			Hash: string(rune('a' + i)), Address: alice, From: alice, To: bank, Block: uint64(i),
		})
	}
	f.store.InsertTransactions(ctx, txs)

	p, err := f.svc.Transactions(ctx, alice, 2, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(p) != 2 || p[0].Block != 3 || p[1].Block != 2 {
		t.Errorf("page = %+v", p)
	}

	// Same page again is cached; a different page is a separate key.
	f.svc.Transactions(ctx, alice, 2, 1)
	f.svc.Transactions(ctx, alice, 2, 0)
	if _, lists := f.store.Counts(); lists != 2 {
		t.Errorf("store lists = %d, want 2", lists)
	}

	if _, err := f.svc.Transactions(ctx, alice, -1, 0); !errors.Is(err, kycgate.ErrBadRequest) {
		t.Errorf("negative limit err = %v", err)
	}
}

func TestAccountService_IngestClearsTransactions(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Transactions(ctx, alice, 0, 0); err != nil {
		t.Fatal(err)
	}
	f.cache.Put(ttlcache.TrustScore, "unrelated", 1)

	n, err := f.svc.IngestTransactions(ctx, []kycgate.Transaction{{
		Hash: "0xaa", Address: "0x00000000000000000000000000000000000A11CE", From: alice, To: bank, Amount: "10", Block: 7,
	}})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("inserted = %d, want 1", n)
	}
	if f.cache.Len(ttlcache.Transactions) != 0 {
		t.Error("transactions namespace should be cleared after ingest")
	}
	if f.cache.Len(ttlcache.TrustScore) != 1 {
		t.Error("other namespaces must be untouched")
	}

	got, _ := f.svc.Transactions(ctx, alice, 0, 0)
	if len(got) != 1 || got[0].Address != alice || got[0].CreatedAt.IsZero() {
		t.Errorf("ingested = %+v", got)
	}

	// Duplicate ingest adds nothing and leaves the cache alone.
	f.svc.IngestTransactions(ctx, []kycgate.Transaction{{Hash: "0xaa", Address: alice, From: alice, To: bank}})
	if f.cache.Len(ttlcache.Transactions) != 1 {
		t.Error("no-op ingest should keep cached pages")
	}
}

func TestAccountService_IngestValidation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	tests := map[string]kycgate.Transaction{
		"missing hash": {Address: alice, From: alice, To: bank},
		"bad address":  {Hash: "0x1", Address: "nope", From: alice, To: bank},
		"bad amount":   {Hash: "0x1", Address: alice, From: alice, To: bank, Amount: "-3"},
		"block range":  {Hash: "0x1", Address: alice, From: alice, To: bank, Block: math.MaxInt64 + 1},
	}
	for name, tx := range tests {
		if _, err := f.svc.IngestTransactions(context.Background(), []kycgate.Transaction{tx}); !errors.Is(err, kycgate.ErrBadRequest) {
			t.Errorf("%s: err = %v, want ErrBadRequest", name, err)
		}
	}
	if got, _ := f.store.ListTransactions(context.Background(), kycgate.TxFilter{Address: alice}); len(got) != 0 {
		t.Errorf("rejected batches reached the store: %+v", got)
	}
}
