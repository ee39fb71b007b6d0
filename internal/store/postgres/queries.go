package postgres

import (
	"context"
	"database/sql"

	"github.com/alfredjeanlab/logbridge/internal/model"
)

// executor is satisfied by *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryInsertRecord(ctx context.Context, db executor, rec model.Record) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO log_records (id, seq, agent, content, text, received_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`,
		rec.ID, int64(rec.Seq), rec.Agent, rec.Content, rec.Text, rec.ReceivedAt,
	)
	return err
}

func queryRecentRecords(ctx context.Context, db executor, limit int) ([]model.Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, seq, agent, content, text, received_at
		FROM log_records
		ORDER BY received_at DESC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Record
	for rows.Next() {
		var (
			rec model.Record
			seq int64
		)
		if err := rows.Scan(&rec.ID, &seq, &rec.Agent, &rec.Content, &rec.Text, &rec.ReceivedAt); err != nil {
			return nil, err
		}
		rec.Seq = uint64(seq)
		out = append(out, rec)
	}
	return out, rows.Err()
}
