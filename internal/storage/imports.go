package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/spice-harvest/internal/model"
)

// SaveImportRun records an executed import. ID and CreatedAt are filled in when empty.
func (s *SQLiteStorage) SaveImportRun(ctx context.Context, run *model.ImportRun) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateImportRun(run); err != nil {
		return err
	}
	return s.saveImportRunTx(ctx, s.db, run)
}

func (s *SQLiteStorage) saveImportRunTx(ctx context.Context, q queryable, run *model.ImportRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO import_runs (id, account_id, source, imported, skipped, errors, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.AccountID, run.Source, run.Imported, run.Skipped, run.Errors, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save import run: %w", err)
	}
	return nil
}

// ListImportRuns returns the most recent runs first. An empty accountID lists every
// account; a non-positive limit means 50.
func (s *SQLiteStorage) ListImportRuns(ctx context.Context, accountID string, limit int) ([]model.ImportRun, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.listImportRunsTx(ctx, s.db, accountID, limit)
}

func (s *SQLiteStorage) listImportRunsTx(ctx context.Context, q queryable, accountID string, limit int) ([]model.ImportRun, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, account_id, source, imported, skipped, errors, created_at FROM import_runs`
	args := []any{}
	if accountID != "" {
		query += ` WHERE account_id = ?`
		args = append(args, accountID)
	}
	query += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, limit)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query import runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []model.ImportRun
	for rows.Next() {
		var run model.ImportRun
		if err := rows.Scan(&run.ID, &run.AccountID, &run.Source, &run.Imported, &run.Skipped, &run.Errors, &run.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan import run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
