package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Veraticus/phishnet/internal/common"
	"github.com/Veraticus/phishnet/internal/model"
)

// SaveTestTransactions stores the labeled transactions used by one
// evaluation run.
func (s *SQLiteStorage) SaveTestTransactions(ctx context.Context, testID string, txns []model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(testID, "testID"); err != nil {
		return err
	}
	if len(txns) == 0 {
		return nil
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO test_transactions (id, test_id, user_id, amount, timestamp, merchant,
				category, payment_method, location, base_risk, status, is_actual_fraud)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, txn := range txns {
			fraud, ok := txn.Label()
			if !ok {
				return fmt.Errorf("test transaction %s: %w", txn.ID, common.ErrMissingLabel)
			}
			txn = txn.Normalize()
			if _, err := stmt.ExecContext(ctx,
				txn.ID, testID, txn.UserID, txn.Amount, txn.Timestamp.UTC(), txn.Merchant,
				txn.Category, txn.PaymentMethod, txn.Location, txn.BaseRiskIndicator,
				string(txn.Status), fraud,
			); err != nil {
				return mapError(err, fmt.Sprintf("failed to save test transaction %s", txn.ID))
			}
		}
		return nil
	})
}

// GetTestTransactions returns the labeled transactions stored for testID.
func (s *SQLiteStorage) GetTestTransactions(ctx context.Context, testID string) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, amount, timestamp, merchant, category, payment_method,
			location, base_risk, status, is_actual_fraud
		FROM test_transactions WHERE test_id = ? ORDER BY rowid`, testID)
	if err != nil {
		return nil, fmt.Errorf("failed to query test transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var txns []model.Transaction
	for rows.Next() {
		var (
			txn    model.Transaction
			status string
			fraud  bool
		)
		if err := rows.Scan(&txn.ID, &txn.UserID, &txn.Amount, &txn.Timestamp, &txn.Merchant,
			&txn.Category, &txn.PaymentMethod, &txn.Location, &txn.BaseRiskIndicator, &status, &fraud,
		); err != nil {
			return nil, fmt.Errorf("failed to scan test transaction: %w", err)
		}
		txn.Status = model.TransactionStatus(status)
		txns = append(txns, txn.WithLabel(fraud))
	}
	return txns, rows.Err()
}

// SaveEvaluation stores the result of one evaluation run.
func (s *SQLiteStorage) SaveEvaluation(ctx context.Context, metrics *model.EvaluationMetrics) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if metrics == nil {
		return fmt.Errorf("%w: metrics", ErrNilParameter)
	}
	if err := validateString(metrics.TestID, "testID"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO test_results (test_id, algorithm, timestamp, true_positives, false_positives,
			true_negatives, false_negatives, threshold, accuracy, precision, recall, f1_score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		metrics.TestID, metrics.Algorithm, metrics.Timestamp.UTC(),
		metrics.TruePositives, metrics.FalsePositives, metrics.TrueNegatives, metrics.FalseNegatives,
		metrics.Threshold, metrics.Accuracy, metrics.Precision, metrics.Recall, metrics.F1Score,
	)
	if err != nil {
		return mapError(err, fmt.Sprintf("failed to save evaluation %s", metrics.TestID))
	}
	return nil
}

// ListEvaluations returns stored results, newest first. A limit of zero
// returns all of them.
func (s *SQLiteStorage) ListEvaluations(ctx context.Context, limit int) ([]model.EvaluationMetrics, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `
		SELECT test_id, algorithm, timestamp, true_positives, false_positives, true_negatives,
			false_negatives, threshold, accuracy, precision, recall, f1_score
		FROM test_results ORDER BY timestamp DESC, test_id`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query evaluations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []model.EvaluationMetrics
	for rows.Next() {
		var m model.EvaluationMetrics
		if err := rows.Scan(&m.TestID, &m.Algorithm, &m.Timestamp,
			&m.TruePositives, &m.FalsePositives, &m.TrueNegatives, &m.FalseNegatives,
			&m.Threshold, &m.Accuracy, &m.Precision, &m.Recall, &m.F1Score,
		); err != nil {
			return nil, fmt.Errorf("failed to scan evaluation: %w", err)
		}
		results = append(results, m)
	}
	return results, rows.Err()
}
