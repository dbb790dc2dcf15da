package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/silosync/internal/client/models"
	"github.com/dmitrijs2005/silosync/internal/common"
	"github.com/dmitrijs2005/silosync/internal/dbx"
)

// PostgresRepository stores records as JSONB rows over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) List(ctx context.Context, kind models.Kind) ([]models.Record, error) {
	query := `SELECT data FROM records WHERE kind = $1 ORDER BY seq`

	rows, err := r.db.QueryContext(ctx, query, string(kind))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	out := make([]models.Record, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		rec, err := decode(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) Get(ctx context.Context, kind models.Kind, id string) (models.Record, error) {
	query := `SELECT data FROM records WHERE kind = $1 AND id = $2`

	var raw []byte
	err := r.db.QueryRowContext(ctx, query, string(kind), id).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return decode(raw)
}

func (r *PostgresRepository) Insert(ctx context.Context, kind models.Kind, rec models.Record) error {
	query := `INSERT INTO records (kind, id, data) VALUES ($1, $2, $3)`

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode error: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, string(kind), rec.ID(), string(data)); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Update(ctx context.Context, kind models.Kind, rec models.Record) error {
	query := `UPDATE records SET data = $3, updated_at = now() WHERE kind = $1 AND id = $2`

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode error: %w", err)
	}
	res, err := r.db.ExecContext(ctx, query, string(kind), rec.ID(), string(data))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOne(res)
}

func (r *PostgresRepository) Delete(ctx context.Context, kind models.Kind, id string) error {
	query := `DELETE FROM records WHERE kind = $1 AND id = $2`

	res, err := r.db.ExecContext(ctx, query, string(kind), id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOne(res)
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrorNotFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

func decode(raw []byte) (models.Record, error) {
	var rec models.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode error: %w", err)
	}
	return rec, nil
}
