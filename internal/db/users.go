package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jonathan/wohnblitz/internal/types"
)

// -----------------------------------------------------------------------------
// User Account Methods
// -----------------------------------------------------------------------------

// CreateUserAccount inserts a user account and returns its ID
func (db *DB) CreateUserAccount(ctx context.Context, firstName, lastName, email string) (uuid.UUID, error) {
	var id uuid.UUID
	err := db.pool.QueryRow(ctx,
		`INSERT INTO users (first_name, last_name, email) VALUES ($1, $2, $3) RETURNING id`,
		firstName, lastName, email,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create user: %w", err)
	}
	return id, nil
}

// GetUserAccount retrieves a user account by ID. It returns nil, nil when the
// user does not exist.
func (db *DB) GetUserAccount(ctx context.Context, id uuid.UUID) (*types.UserAccount, error) {
	var account types.UserAccount
	err := db.pool.QueryRow(ctx,
		`SELECT id, first_name, last_name, email, is_active, filter_settings, applicant_profile
		 FROM users WHERE id = $1`,
		id,
	).Scan(&account.ID, &account.FirstName, &account.LastName, &account.Email, &account.Active,
		&account.FilterSettingsJSON, &account.ApplicantProfileJSON)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &account, nil
}

// UpdateBotConfig replaces the stored filter and applicant profile documents.
// A nil document leaves the stored value unchanged.
func (db *DB) UpdateBotConfig(ctx context.Context, id uuid.UUID, filterJSON, profileJSON *string) error {
	result, err := db.pool.Exec(ctx,
		`UPDATE users SET
		    filter_settings = COALESCE($2, filter_settings),
		    applicant_profile = COALESCE($3, applicant_profile),
		    updated_at = NOW()
		 WHERE id = $1`,
		id, filterJSON, profileJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to update bot config: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteUserAccount removes a user and, through cascading deletes, their
// applications and logs
func (db *DB) DeleteUserAccount(ctx context.Context, id uuid.UUID) error {
	_, err := db.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}
