package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/Veraticus/spice-harvest/internal/common"
	"github.com/Veraticus/spice-harvest/internal/model"
	"github.com/Veraticus/spice-harvest/internal/recipe"
)

// SaveRecipe inserts or replaces a recipe. Sensitive values are stripped before the
// write and r is updated to what was stored, including a generated ID when empty.
func (s *SQLiteStorage) SaveRecipe(ctx context.Context, r *model.Recipe) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRecipe(r); err != nil {
		return err
	}
	return s.saveRecipeTx(ctx, s.db, r)
}

func (s *SQLiteStorage) saveRecipeTx(ctx context.Context, q queryable, r *model.Recipe) error {
	clean := recipe.Sanitize(*r)
	if clean.ID == "" {
		clean.ID = uuid.NewString()
	}

	steps, err := json.Marshal(clean.Steps)
	if err != nil {
		return fmt.Errorf("failed to encode recipe steps: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO recipes (id, name, institution, start_url, steps)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			institution = excluded.institution,
			start_url = excluded.start_url,
			steps = excluded.steps,
			updated_at = CURRENT_TIMESTAMP
	`, clean.ID, clean.Name, clean.Institution, clean.StartURL, string(steps))
	if err != nil {
		return fmt.Errorf("failed to save recipe: %w", err)
	}

	*r = clean
	return nil
}

// GetRecipe retrieves a recipe by ID.
func (s *SQLiteStorage) GetRecipe(ctx context.Context, id string) (*model.Recipe, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return s.getRecipeTx(ctx, s.db, id)
}

func (s *SQLiteStorage) getRecipeTx(ctx context.Context, q queryable, id string) (*model.Recipe, error) {
	var (
		r           model.Recipe
		institution sql.NullString
		startURL    sql.NullString
		steps       string
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, name, institution, start_url, steps
		FROM recipes
		WHERE id = ?
	`, id).Scan(&r.ID, &r.Name, &institution, &startURL, &steps)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("recipe %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recipe: %w", err)
	}

	r.Institution = institution.String
	r.StartURL = startURL.String
	if err := decodeSteps(&r, steps); err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRecipes returns every stored recipe ordered by name.
func (s *SQLiteStorage) ListRecipes(ctx context.Context) ([]model.Recipe, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.listRecipesTx(ctx, s.db)
}

func (s *SQLiteStorage) listRecipesTx(ctx context.Context, q queryable) ([]model.Recipe, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, name, institution, start_url, steps
		FROM recipes
		ORDER BY name COLLATE NOCASE, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query recipes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	recipes := []model.Recipe{}
	for rows.Next() {
		var (
			r           model.Recipe
			institution sql.NullString
			startURL    sql.NullString
			steps       string
		)
		if err := rows.Scan(&r.ID, &r.Name, &institution, &startURL, &steps); err != nil {
			return nil, fmt.Errorf("failed to scan recipe: %w", err)
		}
		r.Institution = institution.String
		r.StartURL = startURL.String
		if err := decodeSteps(&r, steps); err != nil {
			return nil, err
		}
		recipes = append(recipes, r)
	}

	return recipes, rows.Err()
}

// DeleteRecipe removes a recipe.
func (s *SQLiteStorage) DeleteRecipe(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	return s.deleteRecipeTx(ctx, s.db, id)
}

func (s *SQLiteStorage) deleteRecipeTx(ctx context.Context, q queryable, id string) error {
	res, err := q.ExecContext(ctx, `DELETE FROM recipes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete recipe: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete recipe: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("recipe %s: %w", id, common.ErrNotFound)
	}
	return nil
}

// decodeSteps unpacks stored steps. A row that somehow holds a sensitive value is
// scrubbed before it leaves the store.
func decodeSteps(r *model.Recipe, raw string) error {
	if err := json.Unmarshal([]byte(raw), &r.Steps); err != nil {
		return errors.Join(common.ErrDatabaseCorrupted, fmt.Errorf("recipe %s steps: %w", r.ID, err))
	}
	if r.Steps == nil {
		r.Steps = []model.RecordingStep{}
	}

	clean := recipe.Sanitize(*r)
	if r.HasSensitiveValues() || clean.SensitiveStepCount() != r.SensitiveStepCount() {
		slog.Warn("stored recipe carried sensitive values; scrubbing", "recipe", r.ID)
	}
	*r = clean
	return nil
}
