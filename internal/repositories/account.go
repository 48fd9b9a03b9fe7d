package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/sonikswap/internal/models"
	"github.com/desertthunder/sonikswap/internal/shared"
)

const accountColumns = `id, provider, external_id, username, access_token, refresh_token, expiry, created_at, updated_at, deleted_at`

// AccountRepository implements [models.Repository] for linked provider [models.Account] persistence.
type AccountRepository struct {
	db *sql.DB
}

// NewAccountRepository creates a new [AccountRepository] with the given database connection
func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create inserts a new account into the database with a generated ID
func (r *AccountRepository) Create(account *models.Account) error {
	if err := account.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	id := shared.GenerateID()

	query := `
		INSERT INTO accounts (id, provider, external_id, username, access_token, refresh_token, expiry, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		id,
		account.Provider(),
		account.ExternalID(),
		account.Username(),
		account.AccessToken(),
		account.RefreshToken(),
		nullTime(account.Expiry()),
		account.CreatedAt(),
		account.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert account: %w", err)
	}

	account.SetID(id)
	return nil
}

// Get retrieves an account by ID, excluding unlinked accounts
func (r *AccountRepository) Get(id string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = ? AND deleted_at IS NULL`
	return r.scanOne(r.db.QueryRow(query, id))
}

// GetByProvider returns the most recently linked active account for provider.
func (r *AccountRepository) GetByProvider(provider models.Provider) (*models.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE provider = ? AND deleted_at IS NULL
		ORDER BY updated_at DESC
		LIMIT 1
	`

	account, err := r.scanOne(r.db.QueryRow(query, provider))
	if errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", shared.ErrAccountNotLinked, provider)
	}
	return account, err
}

// Upsert links account, replacing any other active account for the same provider.
//
// Relinking a previously unlinked account restores its row. On return account carries the stored ID.
func (r *AccountRepository) Upsert(account *models.Account) error {
	if err := account.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()

	if _, err := tx.Exec(
		`UPDATE accounts SET deleted_at = ? WHERE provider = ? AND external_id != ? AND deleted_at IS NULL`,
		now, account.Provider(), account.ExternalID(),
	); err != nil {
		return fmt.Errorf("failed to unlink previous accounts: %w", err)
	}

	var existingID string
	var createdAt time.Time
	err = tx.QueryRow(
		`SELECT id, created_at FROM accounts WHERE provider = ? AND external_id = ?`,
		account.Provider(), account.ExternalID(),
	).Scan(&existingID, &createdAt)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		existingID = shared.GenerateID()
		createdAt = account.CreatedAt()
		_, err = tx.Exec(`
			INSERT INTO accounts (id, provider, external_id, username, access_token, refresh_token, expiry, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, existingID, account.Provider(), account.ExternalID(), account.Username(),
			account.AccessToken(), account.RefreshToken(), nullTime(account.Expiry()), createdAt, now)
		if err != nil {
			return fmt.Errorf("failed to insert account: %w", err)
		}
	case err != nil:
		return fmt.Errorf("failed to query account: %w", err)
	default:
		_, err = tx.Exec(`
			UPDATE accounts
			SET username = ?, access_token = ?, refresh_token = CASE WHEN ? = '' THEN refresh_token ELSE ? END,
				expiry = ?, updated_at = ?, deleted_at = NULL
			WHERE id = ?
		`, account.Username(), account.AccessToken(), account.RefreshToken(), account.RefreshToken(),
			nullTime(account.Expiry()), now, existingID)
		if err != nil {
			return fmt.Errorf("failed to update account: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit account: %w", err)
	}

	account.SetID(existingID)
	account.SetCreatedAt(createdAt)
	account.SetUpdatedAt(now)
	account.SetDeletedAt(nil)
	return nil
}

// Update modifies an existing account in the database
func (r *AccountRepository) Update(account *models.Account) error {
	if err := account.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	now := time.Now()
	account.SetUpdatedAt(now)

	query := `
		UPDATE accounts
		SET username = ?, access_token = ?, refresh_token = ?, expiry = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query,
		account.Username(),
		account.AccessToken(),
		account.RefreshToken(),
		nullTime(account.Expiry()),
		now,
		account.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}

	return expectAffected(result, "account", account.ID())
}

// Delete soft-deletes (unlinks) an account by ID
func (r *AccountRepository) Delete(id string) error {
	result, err := r.db.Exec(`UPDATE accounts SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}

	return expectAffected(result, "account", id)
}

// List retrieves all active accounts matching the given criteria.
//
// Supported criteria: "provider" (string or [models.Provider]).
func (r *AccountRepository) List(criteria map[string]any) ([]*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE deleted_at IS NULL`
	args := []any{}

	if provider := criteriaString(criteria, "provider"); provider != "" {
		query += " AND provider = ?"
		args = append(args, provider)
	}

	query += " ORDER BY provider ASC, updated_at DESC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return accounts, nil
}

func (r *AccountRepository) scanOne(row *sql.Row) (*models.Account, error) {
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: account", shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}
	return account, nil
}

func scanAccount(s scanner) (*models.Account, error) {
	var (
		id           string
		provider     string
		externalID   string
		username     string
		accessToken  string
		refreshToken string
		expiry       sql.NullTime
		createdAt    time.Time
		updatedAt    time.Time
		deletedAt    sql.NullTime
	)

	if err := s.Scan(&id, &provider, &externalID, &username, &accessToken, &refreshToken, &expiry, &createdAt, &updatedAt, &deletedAt); err != nil {
		return nil, err
	}

	account := models.NewAccount(models.Provider(provider), externalID, username)
	account.SetID(id)
	account.SetTokens(accessToken, refreshToken, expiry.Time)
	account.SetCreatedAt(createdAt)
	account.SetUpdatedAt(updatedAt)
	if deletedAt.Valid {
		account.SetDeletedAt(&deletedAt.Time)
	}
	return account, nil
}
