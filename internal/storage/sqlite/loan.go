package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	kycgate "github.com/eugener/kycgate/internal"
)

const (
	defaultListLimit = 50
	loanColumns      = `id, borrower, lender, amount, status, created_at, updated_at`
)

// CreateLoan inserts a new loan.
func (s *Store) CreateLoan(ctx context.Context, loan *kycgate.Loan) error {
	_, err := s.write.ExecContext(ctx,
		`INSERT INTO loans (`+loanColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		loan.ID, loan.Borrower.String(), loan.Lender.String(), loan.Amount,
		string(loan.Status), formatTime(loan.CreatedAt), formatTime(loan.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("loan %s: %w", loan.ID, kycgate.ErrConflict)
	}
	return err
}

// GetLoan retrieves a loan by ID.
func (s *Store) GetLoan(ctx context.Context, id string) (*kycgate.Loan, error) {
	row := s.read.QueryRowContext(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = ?`, id)
	return scanLoan(row)
}

// ListLoans returns loans matching f, newest first.
func (s *Store) ListLoans(ctx context.Context, f kycgate.LoanFilter) ([]*kycgate.Loan, error) {
	where, args := loanWhere(f)
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit, f.Offset)

	rows, err := s.read.QueryContext(ctx,
		`SELECT `+loanColumns+` FROM loans`+where+
			` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, args...,
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
	err := s.read.QueryRowContext(ctx, `SELECT COUNT(*) FROM loans`+where, args...).Scan(&n)
	return n, err
}

// UpdateLoanStatus moves a loan from one status to another. The update only
// applies while the stored status still equals from.
func (s *Store) UpdateLoanStatus(ctx context.Context, id string, from, to kycgate.LoanStatus, at time.Time) error {
	tx, err := s.write.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE loans SET status=?, updated_at=? WHERE id=? AND status=?`,
		string(to), formatTime(at), id, string(from),
	)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var current string
		err := tx.QueryRowContext(ctx, `SELECT status FROM loans WHERE id=?`, id).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("loan %s: %w", id, kycgate.ErrNotFound)
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("loan %s is %s, not %s: %w", id, current, from, kycgate.ErrConflict)
	}
	return tx.Commit()
}

func loanWhere(f kycgate.LoanFilter) (string, []any) {
	var clauses []string
	var args []any
	if f.Borrower != "" {
		clauses = append(clauses, "borrower = ?")
		args = append(args, f.Borrower.String())
	}
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(f.Status))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanLoan(s scanner) (*kycgate.Loan, error) {
	var l kycgate.Loan
	var borrower, lender, status, createdAt, updatedAt string
	if err := s.Scan(&l.ID, &borrower, &lender, &l.Amount, &status, &createdAt, &updatedAt); err != nil {
		return nil, notFoundErr(err)
	}
	l.Borrower = kycgate.Address(borrower)
	l.Lender = kycgate.Address(lender)
	l.Status = kycgate.LoanStatus(status)
	l.CreatedAt = parseTime(createdAt)
	l.UpdatedAt = parseTime(updatedAt)
	return &l, nil
}

// isUniqueViolation reports a SQLite UNIQUE or PRIMARY KEY constraint
// failure (extended codes 2067 and 1555).
func isUniqueViolation(err error) bool {
	var coded interface{ Code() int }
	if !errors.As(err, &coded) {
		return false
	}
	switch coded.Code() {
	case 2067, 1555:
		return true
	}
	return false
}
