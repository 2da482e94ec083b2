package sqlite

import (
	"context"
	"strings"

	kycgate "github.com/eugener/kycgate/internal"
)

// txBatch bounds the rows per INSERT so bind variables stay well under the
// SQLite limit.
const txBatch = 500

// InsertTransactions batch-inserts transactions, ignoring rows whose
// (hash, address) pair is already stored.
func (s *Store) InsertTransactions(ctx context.Context, txs []kycgate.Transaction) (int, error) {
	if len(txs) == 0 {
		return 0, nil
	}

	dbtx, err := s.write.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer dbtx.Rollback()

	var inserted int64
	for start := 0; start < len(txs); start += txBatch {
		batch := txs[start:min(start+txBatch, len(txs))]

		// cols must match the number of columns in the INSERT below.
		const cols = 8
		placeholders := make([]string, len(batch))
		args := make([]any, 0, len(batch)*cols)
		for i, t := range batch {
			placeholders[i] = "(?, ?, ?, ?, ?, ?, ?, ?)"
			args = append(args,
				t.Hash, t.Address.String(), t.From.String(), t.To.String(),
				t.Amount, t.Kind, int64(t.Block), formatTime(t.CreatedAt),
			)
		}
		result, err := dbtx.ExecContext(ctx,
			`INSERT OR IGNORE INTO transactions
			 (hash, address, from_addr, to_addr, amount, kind, block, created_at)
			 VALUES `+strings.Join(placeholders, ", "), args...,
		)
		if err != nil {
			return 0, err
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, err
		}
		inserted += n
	}
	if err := dbtx.Commit(); err != nil {
		return 0, err
	}
	return int(inserted), nil
}

// ListTransactions returns transactions indexed under f.Address, most recent
// block first.
func (s *Store) ListTransactions(ctx context.Context, f kycgate.TxFilter) ([]kycgate.Transaction, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.read.QueryContext(ctx,
		`SELECT hash, address, from_addr, to_addr, amount, kind, block, created_at
		 FROM transactions WHERE address = ?
		 ORDER BY block DESC, hash ASC LIMIT ? OFFSET ?`,
		f.Address.String(), limit, f.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []kycgate.Transaction
	for rows.Next() {
		var t kycgate.Transaction
		var addr, from, to, createdAt string
		var block int64
		if err := rows.Scan(&t.Hash, &addr, &from, &to, &t.Amount, &t.Kind, &block, &createdAt); err != nil {
			return nil, err
		}
		t.Address = kycgate.Address(addr)
		t.From = kycgate.Address(from)
		t.To = kycgate.Address(to)
		t.Block = uint64(block)
		t.CreatedAt = parseTime(createdAt)
		out = append(out, t)
	}
	return out, rows.Err()
}
