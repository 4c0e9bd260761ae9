package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ndewijer/SPV-Distribution-Engine/internal/model"
)

// BatchRepository provides data access methods for the payment_batch table.
type BatchRepository struct {
	db *sql.DB
	tx *sql.Tx
}

// NewBatchRepository creates a new BatchRepository with the provided database connection.
func NewBatchRepository(db *sql.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// WithTx returns a new BatchRepository scoped to the provided transaction.
func (r *BatchRepository) WithTx(tx *sql.Tx) *BatchRepository {
	return &BatchRepository{
		db: r.db,
		tx: tx,
	}
}

func (r *BatchRepository) getQuerier() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

// InsertBatch records a new submission.
func (r *BatchRepository) InsertBatch(ctx context.Context, b *model.PaymentBatch) error {
	_, err := r.getQuerier().ExecContext(ctx, `
		INSERT INTO payment_batch (
			id, distribution_id, bank_batch_id, status, total, successful, failed, amount,
			error, submitted_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		b.ID, b.DistributionID, nullIfEmpty(b.BankBatchID), b.Status, b.Total, b.Successful, b.Failed, b.Amount,
		nullIfEmpty(b.Error), FormatTime(b.SubmittedAt), formatTimePtr(b.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert payment batch: %w", err)
	}
	return nil
}

// UpdateBatch stores the contents and outcome of a submission.
func (r *BatchRepository) UpdateBatch(ctx context.Context, b *model.PaymentBatch) error {
	result, err := r.getQuerier().ExecContext(ctx, `
		UPDATE payment_batch
		SET bank_batch_id = ?, status = ?, total = ?, successful = ?, failed = ?, amount = ?,
			error = ?, completed_at = ?
		WHERE id = ?
	`,
		nullIfEmpty(b.BankBatchID), b.Status, b.Total, b.Successful, b.Failed, b.Amount,
		nullIfEmpty(b.Error), formatTimePtr(b.CompletedAt),
		b.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update payment batch: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("payment batch %s not found", b.ID)
	}
	return nil
}

// HasInFlightBatch reports whether a submission of the distribution is still waiting on the bank.
func (r *BatchRepository) HasInFlightBatch(ctx context.Context, distributionID string) (bool, error) {
	var n int
	err := r.getQuerier().QueryRowContext(ctx, `
		SELECT COUNT(*) FROM payment_batch WHERE distribution_id = ? AND status = ?
	`, distributionID, model.BatchSubmitted).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to query payment_batch table: %w", err)
	}
	return n > 0, nil
}

// ListBatches returns the submissions of a distribution, newest first.
func (r *BatchRepository) ListBatches(ctx context.Context, distributionID string) ([]model.PaymentBatch, error) {
	rows, err := r.getQuerier().QueryContext(ctx, `
		SELECT id, distribution_id, bank_batch_id, status, total, successful, failed, amount,
			error, submitted_at, completed_at
		FROM payment_batch
		WHERE distribution_id = ?
		ORDER BY submitted_at DESC, id ASC
	`, distributionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query payment_batch table: %w", err)
	}
	defer rows.Close()

	batches := []model.PaymentBatch{}
	for rows.Next() {
		var b model.PaymentBatch
		var bankBatchID, errMsg, completedAt sql.NullString
		var submittedAt string

		if err := rows.Scan(
			&b.ID, &b.DistributionID, &bankBatchID, &b.Status, &b.Total, &b.Successful, &b.Failed, &b.Amount,
			&errMsg, &submittedAt, &completedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan payment_batch table results: %w", err)
		}

		b.BankBatchID = bankBatchID.String
		b.Error = errMsg.String
		if b.SubmittedAt, err = ParseTime(submittedAt); err != nil {
			return nil, err
		}
		if b.CompletedAt, err = parseNullTime(completedAt); err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payment_batch table: %w", err)
	}
	return batches, nil
}
