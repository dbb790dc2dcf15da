package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/silosync/internal/client/models"
	"github.com/dmitrijs2005/silosync/internal/common"
	"github.com/dmitrijs2005/silosync/internal/dbx"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// table returns the table for kind. Only the closed set of kinds reaches SQL text.
func table(kind models.Kind) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("%w: %q", common.ErrUnknownKind, kind)
	}
	return kind.Table(), nil
}

func (r *SQLiteRepository) Upsert(ctx context.Context, kind models.Kind, rec models.Record, cachedAt time.Time) error {
	t, err := table(kind)
	if err != nil {
		return err
	}
	id := rec.ID()
	if id == "" {
		return common.ErrMissingID
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode %s record %s: %w", kind, id, err)
	}

	query := fmt.Sprintf(`INSERT INTO %s (id, data, cached_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, cached_at = excluded.cached_at`, t)
	if _, err := r.db.ExecContext(ctx, query, id, string(data), cachedAt.UnixMilli()); err != nil {
		return fmt.Errorf("failed to upsert %s record %s: %w", kind, id, err)
	}
	return nil
}

func (r *SQLiteRepository) InsertAll(ctx context.Context, kind models.Kind, recs []models.Record, cachedAt time.Time) error {
	for _, rec := range recs {
		if err := r.Upsert(ctx, kind, rec, cachedAt); err != nil {
			return err
		}
	}
	return nil
}

func (r *SQLiteRepository) GetAll(ctx context.Context, kind models.Kind) ([]models.Record, error) {
	t, err := table(kind)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`SELECT data FROM %s ORDER BY rowid`, t))
	if err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", kind, err)
	}
	defer rows.Close()

	result := make([]models.Record, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", kind, err)
		}
		rec, err := decode(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s row: %w", kind, err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s rows: %w", kind, err)
	}
	return result, nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, kind models.Kind, id string) (models.Record, error) {
	t, err := table(kind)
	if err != nil {
		return nil, err
	}

	var data string
	err = r.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT data FROM %s WHERE id = ?`, t), id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s record %s: %w", kind, id, err)
	}

	rec, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s record %s: %w", kind, id, err)
	}
	return rec, nil
}

func (r *SQLiteRepository) DeleteByID(ctx context.Context, kind models.Kind, id string) error {
	t, err := table(kind)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, t), id); err != nil {
		return fmt.Errorf("failed to delete %s record %s: %w", kind, id, err)
	}
	return nil
}

func (r *SQLiteRepository) Clear(ctx context.Context, kind models.Kind) error {
	t, err := table(kind)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, t)); err != nil {
		return fmt.Errorf("failed to clear %s: %w", kind, err)
	}
	return nil
}

// RewriteRefs replaces the id from with to in every cached record of kind
// that refers to it. Records are matched on the JSON string form of from.
func (r *SQLiteRepository) RewriteRefs(ctx context.Context, kind models.Kind, from, to string) error {
	t, err := table(kind)
	if err != nil {
		return err
	}
	qf, err := json.Marshal(from)
	if err != nil {
		return err
	}
	qt, err := json.Marshal(to)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`UPDATE %s SET data = replace(data, ?, ?) WHERE instr(data, ?) > 0`, t)
	if _, err := r.db.ExecContext(ctx, query, string(qf), string(qt), string(qf)); err != nil {
		return fmt.Errorf("failed to rewrite %s references %s -> %s: %w", kind, from, to, err)
	}
	return nil
}

func decode(data string) (models.Record, error) {
	var rec models.Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, err
	}
	return rec, nil
}
