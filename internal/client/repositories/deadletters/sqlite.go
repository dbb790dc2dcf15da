// Package deadletters keeps actions the sync engine abandoned so that they
// can be inspected or replayed by hand.
package deadletters

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/silosync/internal/client/models"
	"github.com/dmitrijs2005/silosync/internal/dbx"
)

type Repository interface {
	Add(ctx context.Context, dl models.DeadLetter) error
	List(ctx context.Context) ([]models.DeadLetter, error)
	Clear(ctx context.Context) error
}

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Add(ctx context.Context, dl models.DeadLetter) error {
	action, err := json.Marshal(dl.Action)
	if err != nil {
		return fmt.Errorf("failed to encode dead letter: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO dead_letters (action_id, entity, action, reason, status_code, failed_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		dl.Action.ID, string(dl.Action.Entity), string(action), dl.Reason, dl.StatusCode, dl.FailedAt)
	if err != nil {
		return fmt.Errorf("failed to insert dead letter %s: %w", dl.Action.ID, err)
	}
	return nil
}

// List returns dead letters oldest first.
func (r *SQLiteRepository) List(ctx context.Context) ([]models.DeadLetter, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT action, reason, status_code, failed_at FROM dead_letters ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	defer rows.Close()

	result := make([]models.DeadLetter, 0)
	for rows.Next() {
		var (
			dl     models.DeadLetter
			action string
		)
		if err := rows.Scan(&action, &dl.Reason, &dl.StatusCode, &dl.FailedAt); err != nil {
			return nil, fmt.Errorf("failed to scan dead letter: %w", err)
		}
		if err := json.Unmarshal([]byte(action), &dl.Action); err != nil {
			return nil, fmt.Errorf("failed to decode dead letter: %w", err)
		}
		result = append(result, dl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate dead letters: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM dead_letters`); err != nil {
		return fmt.Errorf("failed to clear dead letters: %w", err)
	}
	return nil
}
