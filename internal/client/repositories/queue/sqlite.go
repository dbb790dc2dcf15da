package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/silosync/internal/client/models"
	"github.com/dmitrijs2005/silosync/internal/common"
	"github.com/dmitrijs2005/silosync/internal/dbx"
)

const columns = `id, type, entity, data, changed, timestamp, retry_count, temp_id, real_id, last_error, previous`

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Insert(ctx context.Context, a *models.PendingAction) error {
	data, err := json.Marshal(a.Data)
	if err != nil {
		return fmt.Errorf("failed to encode action data: %w", err)
	}
	var changed sql.NullString
	if len(a.Changed) > 0 {
		b, err := json.Marshal(a.Changed)
		if err != nil {
			return fmt.Errorf("failed to encode changed fields: %w", err)
		}
		changed = sql.NullString{String: string(b), Valid: true}
	}
	previous, err := encodePrevious(a.Previous)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `INSERT INTO sync_queue (`+columns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, string(a.Type), string(a.Entity), string(data), changed, a.Timestamp, a.RetryCount, a.TempID, a.RealID, a.LastError, previous)
	if err != nil {
		return fmt.Errorf("failed to insert queue action %s: %w", a.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]models.PendingAction, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+columns+` FROM sync_queue ORDER BY timestamp ASC, rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue: %w", err)
	}
	defer rows.Close()

	result := make([]models.PendingAction, 0)
	for rows.Next() {
		a, err := scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate queue rows: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) Update(ctx context.Context, id string, patch models.ActionPatch) error {
	sets := make([]string, 0, 4)
	args := make([]any, 0, 5)

	if patch.RetryCount != nil {
		sets = append(sets, "retry_count = ?")
		args = append(args, *patch.RetryCount)
	}
	if patch.RealID != nil {
		sets = append(sets, "real_id = ?")
		args = append(args, *patch.RealID)
	}
	if patch.Data != nil {
		data, err := json.Marshal(patch.Data)
		if err != nil {
			return fmt.Errorf("failed to encode action data: %w", err)
		}
		sets = append(sets, "data = ?")
		args = append(args, string(data))
	}
	if patch.Previous != nil {
		previous, err := encodePrevious(patch.Previous)
		if err != nil {
			return err
		}
		sets = append(sets, "previous = ?")
		args = append(args, previous)
	}
	if patch.LastError != nil {
		sets = append(sets, "last_error = ?")
		args = append(args, *patch.LastError)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	res, err := r.db.ExecContext(ctx, `UPDATE sync_queue SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("failed to update queue action %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("queue action %s: %w", id, common.ErrorNotFound)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete queue action %s: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) SetRealID(ctx context.Context, kind models.Kind, tempID, realID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE sync_queue SET real_id = ?
		WHERE entity = ? AND (temp_id = ? OR json_extract(data, '$.id') = ?)`,
		realID, string(kind), tempID, tempID)
	if err != nil {
		return fmt.Errorf("failed to rewrite queue ids %s -> %s: %w", tempID, realID, err)
	}
	return nil
}

// RewriteRefs replaces the id from with to wherever it appears as a JSON
// string in queued payloads.
func (r *SQLiteRepository) RewriteRefs(ctx context.Context, from, to string) error {
	quotedFrom, quotedTo := quote(from), quote(to)
	_, err := r.db.ExecContext(ctx, `UPDATE sync_queue
		SET data = replace(data, ?, ?), previous = replace(previous, ?, ?)
		WHERE instr(data, ?) > 0 OR instr(coalesce(previous, ''), ?) > 0`,
		quotedFrom, quotedTo, quotedFrom, quotedTo, quotedFrom, quotedFrom)
	if err != nil {
		return fmt.Errorf("failed to rewrite queued references %s -> %s: %w", from, to, err)
	}
	return nil
}

func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count queue: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sync_queue`); err != nil {
		return fmt.Errorf("failed to clear queue: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (*models.PendingAction, error) {
	var (
		a        models.PendingAction
		typ      string
		entity   string
		data     string
		changed  sql.NullString
		previous sql.NullString
	)
	err := s.Scan(&a.ID, &typ, &entity, &data, &changed, &a.Timestamp, &a.RetryCount, &a.TempID, &a.RealID, &a.LastError, &previous)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan queue row: %w", err)
	}

	a.Type = models.ActionType(typ)
	a.Entity = models.Kind(entity)
	if err := json.Unmarshal([]byte(data), &a.Data); err != nil {
		return nil, fmt.Errorf("failed to decode data of queue action %s: %w", a.ID, err)
	}
	if changed.Valid && changed.String != "" {
		if err := json.Unmarshal([]byte(changed.String), &a.Changed); err != nil {
			return nil, fmt.Errorf("failed to decode changed fields of queue action %s: %w", a.ID, err)
		}
	}
	if previous.Valid && previous.String != "" {
		if err := json.Unmarshal([]byte(previous.String), &a.Previous); err != nil {
			return nil, fmt.Errorf("failed to decode previous record of queue action %s: %w", a.ID, err)
		}
	}
	return &a, nil
}

func encodePrevious(rec models.Record) (sql.NullString, error) {
	if rec == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode previous record: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

// quote renders id the way encoding/json writes it inside a payload.
func quote(id string) string {
	b, _ := json.Marshal(id)
	return string(b)
}
