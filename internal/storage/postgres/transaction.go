package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	kycgate "github.com/eugener/kycgate/internal"
)

const insertTx = `INSERT INTO transactions
	(hash, address, from_addr, to_addr, amount, kind, block, created_at)
	VALUES ($1, $2, $3, $4, $5::text::numeric, $6, $7, $8)
	ON CONFLICT (hash, address) DO NOTHING`

// InsertTransactions queues one insert per transaction in a single batch
// inside a transaction. Existing (hash, address) pairs are skipped.
func (s *Store) InsertTransactions(ctx context.Context, txs []kycgate.Transaction) (int, error) {
	if len(txs) == 0 {
		return 0, nil
	}

	var inserted int64
	err := pgx.BeginFunc(ctx, s.pool, func(dbtx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, t := range txs {
			batch.Queue(insertTx,
				t.Hash, t.Address.String(), t.From.String(), t.To.String(),
				t.Amount, t.Kind, int64(t.Block), t.CreatedAt.UTC(),
			)
		}
		br := dbtx.SendBatch(ctx, batch)
		for range txs {
			tag, err := br.Exec()
			if err != nil {
				br.Close()
				return err
			}
			inserted += tag.RowsAffected()
		}
		return br.Close()
	})
	if err != nil {
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
	rows, err := s.pool.Query(ctx,
		`SELECT hash, address, from_addr, to_addr, amount::text, kind, block, created_at
		 FROM transactions WHERE address = $1
		 ORDER BY block DESC, hash ASC LIMIT $2 OFFSET $3`,
		f.Address.String(), limit, f.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []kycgate.Transaction
	for rows.Next() {
		var t kycgate.Transaction
		var addr, from, to string
		var block int64
		if err := rows.Scan(&t.Hash, &addr, &from, &to, &t.Amount, &t.Kind, &block, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Address = kycgate.Address(addr)
		t.From = kycgate.Address(from)
		t.To = kycgate.Address(to)
		t.Block = uint64(block)
		t.CreatedAt = t.CreatedAt.UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}
