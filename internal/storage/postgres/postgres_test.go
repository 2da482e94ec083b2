package postgres

import (
	"context"
	"os"
	"testing"

	kycgate "github.com/eugener/kycgate/internal"
	"github.com/eugener/kycgate/internal/storage"
	"github.com/eugener/kycgate/internal/storage/storagetest"
)

// Set KYCGATE_TEST_POSTGRES_DSN to a disposable database to run these.
const dsnEnv = "KYCGATE_TEST_POSTGRES_DSN"

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv(dsnEnv)
	if dsn == "" {
		t.Skip(dsnEnv + " not set")
	}
	ctx := context.Background()
	s, err := New(ctx, dsn)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.pool.Exec(ctx, `TRUNCATE loans, transactions, api_keys`); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// Subtests share one database, so they run sequentially.
func TestStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store { return newTestStore(t) })
}

func TestLoanWhere(t *testing.T) {
	t.Parallel()
	where, args := loanWhere(kycgate.LoanFilter{Borrower: "0xab", Status: kycgate.LoanApproved})
	if where != " WHERE borrower = $1 AND status = $2" {
		t.Errorf("where = %q", where)
	}
	if len(args) != 2 || args[0] != "0xab" || args[1] != "approved" {
		t.Errorf("args = %v", args)
	}
	if where, args := loanWhere(kycgate.LoanFilter{}); where != "" || args != nil {
		t.Errorf("empty filter = %q, %v", where, args)
	}
}
