// Package importer turns candidates into a reconciliation preview and commits the
// accepted rows to storage.
package importer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/spice-harvest/internal/clean"
	"github.com/Veraticus/spice-harvest/internal/common"
	"github.com/Veraticus/spice-harvest/internal/model"
	"github.com/Veraticus/spice-harvest/internal/reconcile"
	"github.com/Veraticus/spice-harvest/internal/service"
)

// historyPadding widens the history window past the candidates' own date range so
// fuzzy date matches at the edges still see their counterparts.
const historyPadding = 2 * 24 * time.Hour

// ExecuteOptions controls which preview entries are written.
type ExecuteOptions struct {
	Source         string // recorded on each transaction and on the import run
	SkipDuplicates bool
}

// Importer previews and executes imports for one store.
type Importer struct {
	store   service.Storage
	logger  *slog.Logger
	newID   func() string
	matcher reconcile.Matcher
}

// New creates an importer. A zero matcher uses the reconciliation defaults.
func New(store service.Storage, matcher reconcile.Matcher, logger *slog.Logger) *Importer {
	return &Importer{
		store:   store,
		matcher: matcher,
		logger:  common.ComponentLogger(logger, "importer"),
		newID:   uuid.NewString,
	}
}

// Preview reconciles candidates against the account's stored history.
func (im *Importer) Preview(ctx context.Context, candidates []model.Candidate, accountID string) (model.Preview, error) {
	if accountID == "" {
		return model.Preview{}, fmt.Errorf("%w: account ID is required", common.ErrMissingConfig)
	}

	var history []model.Transaction
	if from, to, ok := dateRange(candidates); ok {
		var err error
		history, err = im.store.GetTransactionsByAccount(ctx, accountID, from.Add(-historyPadding), to.Add(historyPadding))
		if err != nil {
			return model.Preview{}, fmt.Errorf("failed to load history for %s: %w", accountID, err)
		}
	}

	preview := im.matcher.Reconcile(candidates, history)
	im.logger.Info("import preview",
		"account", accountID,
		"candidates", len(candidates),
		"history", len(history),
		"rows", len(preview.Rows),
		"duplicates", len(preview.Duplicates),
		"errors", len(preview.Errors))
	return preview, nil
}

// Execute writes the preview's new rows, plus its duplicates when SkipDuplicates is
// false, in a single database transaction and records the run. Rows whose content is
// already stored are counted as skipped rather than written twice.
func (im *Importer) Execute(ctx context.Context, preview model.Preview, accountID string, opts ExecuteOptions) (model.ImportResult, error) {
	if accountID == "" {
		return model.ImportResult{}, fmt.Errorf("%w: account ID is required", common.ErrMissingConfig)
	}
	if opts.Source == "" {
		opts.Source = "import"
	}

	accepted := make([]model.ParsedCandidate, 0, len(preview.Rows)+len(preview.Duplicates))
	accepted = append(accepted, preview.Rows...)
	result := model.ImportResult{}
	if opts.SkipDuplicates {
		result.Skipped = len(preview.Duplicates)
	} else {
		for _, dup := range preview.Duplicates {
			accepted = append(accepted, dup.Candidate)
		}
	}

	txns := make([]model.Transaction, 0, len(accepted))
	for _, pc := range accepted {
		txns = append(txns, im.toTransaction(pc, accountID, opts.Source))
	}

	tx, err := im.store.BeginTx(ctx)
	if err != nil {
		return model.ImportResult{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if len(txns) > 0 {
		inserted, err := tx.SaveTransactions(ctx, txns)
		if err != nil {
			return model.ImportResult{}, fmt.Errorf("failed to save transactions: %w", err)
		}
		result.Imported = inserted
		result.Skipped += len(txns) - inserted
	}

	run := &model.ImportRun{
		AccountID: accountID,
		Source:    opts.Source,
		Imported:  result.Imported,
		Skipped:   result.Skipped,
		Errors:    len(preview.Errors),
	}
	if err := tx.SaveImportRun(ctx, run); err != nil {
		return model.ImportResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.ImportResult{}, fmt.Errorf("failed to commit import: %w", err)
	}

	im.logger.Info("import executed",
		"account", accountID,
		"source", opts.Source,
		"imported", result.Imported,
		"skipped", result.Skipped,
		"run", run.ID)
	return result, nil
}

// Import previews and executes in one call, for unattended callers.
func (im *Importer) Import(ctx context.Context, candidates []model.Candidate, accountID string, opts ExecuteOptions) (model.Preview, model.ImportResult, error) {
	preview, err := im.Preview(ctx, candidates, accountID)
	if err != nil {
		return model.Preview{}, model.ImportResult{}, err
	}
	result, err := im.Execute(ctx, preview, accountID, opts)
	return preview, result, err
}

func (im *Importer) toTransaction(pc model.ParsedCandidate, accountID, source string) model.Transaction {
	txn := model.Transaction{
		ID:          im.newID(),
		AccountID:   accountID,
		Date:        pc.Date,
		Description: clean.Whitespace(pc.Candidate.Description),
		Amount:      pc.Amount,
		Category:    pc.Candidate.Category,
		Source:      source,
	}
	if txn.Description == "" {
		txn.Description = "(no description)"
	}
	if pc.Candidate.Balance != "" {
		if balance, err := reconcile.ParseAmount(pc.Candidate.Balance); err == nil {
			txn.Balance = &balance
		} else {
			im.logger.Debug("ignoring unparseable balance", "row", pc.Row, "error", err)
		}
	}
	return txn
}

// dateRange returns the span of candidate dates that parse. ok is false when none do.
func dateRange(candidates []model.Candidate) (from, to time.Time, ok bool) {
	for _, c := range candidates {
		d, err := reconcile.ParseDate(c.Date)
		if err != nil {
			continue
		}
		if !ok || d.Before(from) {
			from = d
		}
		if !ok || d.After(to) {
			to = d
		}
		ok = true
	}
	return from, to, ok
}
