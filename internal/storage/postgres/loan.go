package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	kycgate "github.com/eugener/kycgate/internal"
)

const (
	defaultListLimit = 50
	loanSelect       = `SELECT id, borrower, lender, amount::text, status, created_at, updated_at FROM loans`
)

// CreateLoan inserts a new loan.
func (s *Store) CreateLoan(ctx context.Context, loan *kycgate.Loan) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO loans (id, borrower, lender, amount, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4::text::numeric, $5, $6, $7)`,
		loan.ID, loan.Borrower.String(), loan.Lender.String(), loan.Amount,
		string(loan.Status), loan.CreatedAt.UTC(), loan.UpdatedAt.UTC(),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("loan %s: %w", loan.ID, kycgate.ErrConflict)
	}
	return err
}

// GetLoan retrieves a loan by ID.
func (s *Store) GetLoan(ctx context.Context, id string) (*kycgate.Loan, error) {
	return scanLoan(s.pool.QueryRow(ctx, loanSelect+` WHERE id = $1`, id))
}

// ListLoans returns loans matching f, newest first.
func (s *Store) ListLoans(ctx context.Context, f kycgate.LoanFilter) ([]*kycgate.Loan, error) {
	where, args := loanWhere(f)
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	n := len(args)
	args = append(args, limit, f.Offset)

	rows, err := s.pool.Query(ctx,
		loanSelect+where+` ORDER BY created_at DESC, id DESC LIMIT $`+strconv.Itoa(n+1)+` OFFSET $`+strconv.Itoa(n+2),
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*kycgate.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// CountLoans returns the number of loans matching f.
func (s *Store) CountLoans(ctx context.Context, f kycgate.LoanFilter) (int, error) {
	where, args := loanWhere(f)
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM loans`+where, args...).Scan(&n)
	return n, err
}

// UpdateLoanStatus moves a loan from one status to another. The update only
// applies while the stored status still equals from.
func (s *Store) UpdateLoanStatus(ctx context.Context, id string, from, to kycgate.LoanStatus, at time.Time) error {
	var updated bool
	var current *string
	err := s.pool.QueryRow(ctx,
		`WITH upd AS (
		   UPDATE loans SET status=$1, updated_at=$2 WHERE id=$3 AND status=$4 RETURNING id
		 )
		 SELECT EXISTS (SELECT 1 FROM upd), (SELECT status FROM loans WHERE id=$3)`,
		string(to), at.UTC(), id, string(from),
	).Scan(&updated, &current)
	switch {
	case err != nil:
		return err
	case updated:
		return nil
	case current == nil:
		return fmt.Errorf("loan %s: %w", id, kycgate.ErrNotFound)
	default:
		return fmt.Errorf("loan %s is %s, not %s: %w", id, *current, from, kycgate.ErrConflict)
	}
}

func loanWhere(f kycgate.LoanFilter) (string, []any) {
	var clauses []string
	var args []any
	if f.Borrower != "" {
		args = append(args, f.Borrower.String())
		clauses = append(clauses, "borrower = $"+strconv.Itoa(len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		clauses = append(clauses, "status = $"+strconv.Itoa(len(args)))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanLoan(row pgx.Row) (*kycgate.Loan, error) {
	var l kycgate.Loan
	var borrower, lender, status string
	if err := row.Scan(&l.ID, &borrower, &lender, &l.Amount, &status, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, notFoundErr(err)
	}
	l.Borrower = kycgate.Address(borrower)
	l.Lender = kycgate.Address(lender)
	l.Status = kycgate.LoanStatus(status)
	l.CreatedAt = l.CreatedAt.UTC()
	l.UpdatedAt = l.UpdatedAt.UTC()
	return &l, nil
}
