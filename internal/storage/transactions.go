package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/phishnet/internal/model"
	"github.com/Veraticus/phishnet/internal/service"
)

const transactionColumns = `id, user_id, amount, timestamp, merchant, category,
	payment_method, location, base_risk, status`

const upsertTransaction = `
	INSERT INTO transactions (` + transactionColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		user_id = excluded.user_id,
		amount = excluded.amount,
		timestamp = excluded.timestamp,
		merchant = excluded.merchant,
		category = excluded.category,
		payment_method = excluded.payment_method,
		location = excluded.location,
		base_risk = excluded.base_risk,
		status = excluded.status,
		updated_at = CURRENT_TIMESTAMP`

type rowScanner interface {
	Scan(dest ...any) error
}

// SaveTransaction inserts or replaces a single transaction.
func (s *SQLiteStorage) SaveTransaction(ctx context.Context, txn model.Transaction) error {
	return s.SaveTransactions(ctx, []model.Transaction{txn})
}

// SaveTransactions saves multiple transactions in one database transaction.
func (s *SQLiteStorage) SaveTransactions(ctx context.Context, transactions []model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransactions(transactions); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, upsertTransaction)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, txn := range transactions {
			txn = txn.Normalize()
			if _, err := stmt.ExecContext(ctx,
				txn.ID, txn.UserID, txn.Amount, txn.Timestamp.UTC(), txn.Merchant, txn.Category,
				txn.PaymentMethod, txn.Location, txn.BaseRiskIndicator, string(txn.Status),
			); err != nil {
				return mapError(err, fmt.Sprintf("failed to save transaction %s", txn.ID))
			}
		}

		slog.Debug("Saved transactions", "count", len(transactions))
		return nil
	})
}

// GetTransaction returns the transaction with the given ID.
func (s *SQLiteStorage) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, strings.TrimSpace(id))

	txn, err := scanTransaction(row)
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("transaction %s", id))
	}
	return txn, nil
}

// SetStatus updates the review status of a transaction.
func (s *SQLiteStorage) SetStatus(ctx context.Context, id string, status model.TransactionStatus) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	if err := validateStatus(status); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE transactions SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update status of transaction %s: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return mapError(sql.ErrNoRows, fmt.Sprintf("transaction %s", id))
	}

	slog.Debug("Transaction status updated", "transaction_id", id, "status", status)
	return nil
}

// ListTransactions returns transactions matching filter, newest first.
func (s *SQLiteStorage) ListTransactions(ctx context.Context, filter service.TransactionFilter) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE 1=1`
	var args []any

	if filter.Status != nil {
		query += ` AND status = ?`
		args = append(args, string(*filter.Status))
	}
	if filter.Since != nil {
		query += ` AND timestamp >= ?`
		args = append(args, filter.Since.UTC())
	}
	query += ` ORDER BY timestamp DESC, id`

	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var transactions []model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, *txn)
	}

	return transactions, rows.Err()
}

// CountByStatus summarizes how many transactions sit in each status.
func (s *SQLiteStorage) CountByStatus(ctx context.Context) (service.StatusSummary, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM transactions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	summary := make(service.StatusSummary)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		summary[model.TransactionStatus(status)] = count
	}

	return summary, rows.Err()
}

func scanTransaction(row rowScanner) (*model.Transaction, error) {
	var (
		txn    model.Transaction
		status string
	)
	if err := row.Scan(
		&txn.ID, &txn.UserID, &txn.Amount, &txn.Timestamp, &txn.Merchant, &txn.Category,
		&txn.PaymentMethod, &txn.Location, &txn.BaseRiskIndicator, &status,
	); err != nil {
		return nil, err
	}
	txn.Status = model.TransactionStatus(status)
	return &txn, nil
}
