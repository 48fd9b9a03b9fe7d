package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/sonikswap/internal/models"
	"github.com/desertthunder/sonikswap/internal/shared"
)

const transferColumns = `id, sequence, source, dest, source_id, dest_id, name, selected_count,
	matched_count, failed_count, status, message, created_at, updated_at`

// TransferRepository implements models.Repository[*models.Transfer] for transfer history.
//
// It also satisfies tasks.TransferRecorder, so the engine records runs as they start and finish.
type TransferRepository struct {
	db *sql.DB
}

// NewTransferRepository creates a new TransferRepository with the given database connection
func NewTransferRepository(db *sql.DB) *TransferRepository {
	return &TransferRepository{db: db}
}

// Create inserts a new transfer into the database with generated ID and sequence
func (r *TransferRepository) Create(transfer *models.Transfer) error {
	if err := transfer.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	sequence, err := NextSequence(r.db, "transfers")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()

	query := `
		INSERT INTO transfers (` + transferColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		id,
		sequence,
		transfer.Source(),
		transfer.Dest(),
		transfer.SourceID(),
		transfer.DestID(),
		transfer.Name(),
		transfer.SelectedCount(),
		transfer.MatchedCount(),
		transfer.FailedCount(),
		transfer.Status(),
		transfer.Message(),
		transfer.CreatedAt(),
		transfer.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert transfer: %w", err)
	}

	transfer.SetID(id)
	transfer.SetSequence(sequence)
	return nil
}

// Get retrieves a transfer by ID
func (r *TransferRepository) Get(id string) (*models.Transfer, error) {
	query := `SELECT ` + transferColumns + ` FROM transfers WHERE id = ?`

	transfer, err := scanTransfer(r.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: transfer %s", shared.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan transfer: %w", err)
	}
	return transfer, nil
}

// Update stores the outcome fields of a transfer
func (r *TransferRepository) Update(transfer *models.Transfer) error {
	if err := transfer.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	now := time.Now()
	transfer.SetUpdatedAt(now)

	query := `
		UPDATE transfers
		SET dest_id = ?, name = ?, selected_count = ?, matched_count = ?, failed_count = ?,
			status = ?, message = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.Exec(query,
		transfer.DestID(),
		transfer.Name(),
		transfer.SelectedCount(),
		transfer.MatchedCount(),
		transfer.FailedCount(),
		transfer.Status(),
		transfer.Message(),
		now,
		transfer.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update transfer: %w", err)
	}

	return expectAffected(result, "transfer", transfer.ID())
}

// Delete removes a transfer record. History has no soft delete.
func (r *TransferRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM transfers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete transfer: %w", err)
	}
	return expectAffected(result, "transfer", id)
}

// List retrieves transfers ordered by sequence, newest first.
//
// Supported criteria: "provider" (matches source or destination), "status", and "limit".
func (r *TransferRepository) List(criteria map[string]any) ([]*models.Transfer, error) {
	query := `SELECT ` + transferColumns + ` FROM transfers WHERE 1 = 1`
	args := []any{}

	if provider := criteriaString(criteria, "provider"); provider != "" {
		query += " AND (source = ? OR dest = ?)"
		args = append(args, provider, provider)
	}

	if status := criteriaString(criteria, "status"); status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}

	query += " ORDER BY sequence DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transfers: %w", err)
	}
	defer rows.Close()

	var transfers []*models.Transfer
	for rows.Next() {
		transfer, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transfer: %w", err)
		}
		transfers = append(transfers, transfer)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return transfers, nil
}

func scanTransfer(s scanner) (*models.Transfer, error) {
	var (
		id            string
		sequence      int
		source        string
		dest          string
		sourceID      string
		destID        string
		name          string
		selectedCount int
		matchedCount  int
		failedCount   int
		status        string
		message       string
		createdAt     time.Time
		updatedAt     time.Time
	)

	err := s.Scan(&id, &sequence, &source, &dest, &sourceID, &destID, &name, &selectedCount,
		&matchedCount, &failedCount, &status, &message, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	transfer := models.NewTransfer(models.Provider(source), models.Provider(dest), sourceID, name, selectedCount)
	transfer.SetID(id)
	transfer.SetSequence(sequence)
	transfer.Restore(destID, matchedCount, failedCount, models.TransferStatus(status), message)
	transfer.SetCreatedAt(createdAt)
	transfer.SetUpdatedAt(updatedAt)
	return transfer, nil
}

func criteriaString(criteria map[string]any, key string) string {
	switch v := criteria[key].(type) {
	case string:
		return v
	case models.Provider:
		return string(v)
	case models.TransferStatus:
		return string(v)
	default:
		return ""
	}
}
