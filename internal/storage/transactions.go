package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/spice-harvest/internal/common"
	"github.com/Veraticus/spice-harvest/internal/model"
)

const dateLayout = "2006-01-02"

// SaveTransactions stores transactions and reports how many were new. Rows whose
// hash is already stored are ignored, so saving the same batch twice is a no-op.
func (s *SQLiteStorage) SaveTransactions(ctx context.Context, transactions []model.Transaction) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateTransactions(transactions); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	inserted, err := s.saveTransactionsTx(ctx, tx, transactions)
	if err != nil {
		return 0, err
	}

	return inserted, tx.Commit()
}

func (s *SQLiteStorage) saveTransactionsTx(ctx context.Context, tx *sql.Tx, transactions []model.Transaction) (int, error) {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO transactions (
			id, hash, account_id, date, description, amount_cents,
			balance_cents, category, source, external_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	inserted := 0
	for _, txn := range transactions {
		if txn.Hash == "" {
			txn.Hash = txn.GenerateHash()
		}

		var balance sql.NullInt64
		if txn.Balance != nil {
			balance = sql.NullInt64{Int64: toCents(*txn.Balance), Valid: true}
		}

		res, err := stmt.ExecContext(ctx,
			txn.ID,
			txn.Hash,
			txn.AccountID,
			txn.Date.Format(dateLayout),
			txn.Description,
			toCents(txn.Amount),
			balance,
			nullString(txn.Category),
			nullString(txn.Source),
			nullString(txn.ExternalID),
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert transaction %s: %w", txn.ID, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	return inserted, nil
}

// GetTransactionsByAccount returns an account's transactions dated within [from, to],
// compared by calendar day.
func (s *SQLiteStorage) GetTransactionsByAccount(ctx context.Context, accountID string, from, to time.Time) ([]model.Transaction, error) {
	if err := validateAccountRange(ctx, accountID, from, to); err != nil {
		return nil, err
	}
	return s.getTransactionsByAccountTx(ctx, s.db, accountID, from, to)
}

func (s *SQLiteStorage) getTransactionsByAccountTx(ctx context.Context, q queryable, accountID string, from, to time.Time) ([]model.Transaction, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, hash, account_id, date, description, amount_cents,
		       balance_cents, category, source, external_id
		FROM transactions
		WHERE account_id = ? AND date >= ? AND date <= ?
		ORDER BY date ASC, id ASC
	`, accountID, from.Format(dateLayout), to.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var transactions []model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, txn)
	}

	return transactions, rows.Err()
}

// GetTransactionCount counts stored transactions, for one account or all when
// accountID is empty.
func (s *SQLiteStorage) GetTransactionCount(ctx context.Context, accountID string) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	return s.getTransactionCountTx(ctx, s.db, accountID)
}

func (s *SQLiteStorage) getTransactionCountTx(ctx context.Context, q queryable, accountID string) (int, error) {
	var count int
	var err error
	if accountID == "" {
		err = q.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&count)
	} else {
		err = q.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions WHERE account_id = ?`, accountID).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

// GetTransactionByID retrieves a single transaction by ID.
func (s *SQLiteStorage) GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, hash, account_id, date, description, amount_cents,
		       balance_cents, category, source, external_id
		FROM transactions
		WHERE id = ?
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("transaction %s: %w", id, common.ErrNotFound)
	}
	txn, err := scanTransaction(rows)
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func scanTransaction(rows *sql.Rows) (model.Transaction, error) {
	var (
		txn        model.Transaction
		date       string
		amount     int64
		balance    sql.NullInt64
		category   sql.NullString
		source     sql.NullString
		externalID sql.NullString
	)

	err := rows.Scan(
		&txn.ID,
		&txn.Hash,
		&txn.AccountID,
		&date,
		&txn.Description,
		&amount,
		&balance,
		&category,
		&source,
		&externalID,
	)
	if err != nil {
		return txn, fmt.Errorf("failed to scan transaction: %w", err)
	}

	txn.Date, err = time.Parse(dateLayout, date)
	if err != nil {
		return txn, errors.Join(common.ErrDatabaseCorrupted, fmt.Errorf("transaction %s date %q: %w", txn.ID, date, err))
	}
	txn.Amount = fromCents(amount)
	if balance.Valid {
		b := fromCents(balance.Int64)
		txn.Balance = &b
	}
	txn.Category = category.String
	txn.Source = source.String
	txn.ExternalID = externalID.String

	return txn, nil
}

func toCents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

func fromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
