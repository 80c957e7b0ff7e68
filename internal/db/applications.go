package db

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// -----------------------------------------------------------------------------
// Application Methods
// -----------------------------------------------------------------------------

// Column widths of the applications table.
const (
	maxTitleLen   = 200
	maxAddressLen = 300
)

// CreateApplication records a new application in the pending state. Title
// and address are cut to their column widths.
func (db *DB) CreateApplication(ctx context.Context, input ApplicationInput) (*Application, error) {
	var listingID *string
	if input.ListingID != "" {
		listingID = &input.ListingID
	}

	var app Application
	err := db.pool.QueryRow(ctx,
		`INSERT INTO applications (user_id, listing_id, title, address, price, rooms, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, user_id, listing_id, title, address, price, rooms, status, applied_at, updated_at`,
		input.UserID, listingID, clampRunes(input.Title, maxTitleLen), clampRunes(input.Address, maxAddressLen),
		input.Price, input.Rooms, ApplicationStatusPending,
	).Scan(&app.ID, &app.UserID, &app.ListingID, &app.Title, &app.Address, &app.Price,
		&app.Rooms, &app.Status, &app.AppliedAt, &app.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create application: %w", err)
	}
	return &app, nil
}

// UpdateApplicationStatus sets the status of an application
func (db *DB) UpdateApplicationStatus(ctx context.Context, id uuid.UUID, status string) error {
	if !ValidApplicationStatus(status) {
		return fmt.Errorf("invalid application status: %q", status)
	}
	result, err := db.pool.Exec(ctx,
		`UPDATE applications SET status = $1, updated_at = NOW() WHERE id = $2`,
		status, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update application status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("application %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetApplication retrieves an application by ID
func (db *DB) GetApplication(ctx context.Context, id uuid.UUID) (*Application, error) {
	var app Application
	err := db.pool.QueryRow(ctx,
		`SELECT id, user_id, listing_id, title, address, price, rooms, status, applied_at, updated_at
		 FROM applications WHERE id = $1`,
		id,
	).Scan(&app.ID, &app.UserID, &app.ListingID, &app.Title, &app.Address, &app.Price,
		&app.Rooms, &app.Status, &app.AppliedAt, &app.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get application: %w", err)
	}
	return &app, nil
}

// ListApplications retrieves a user's most recent applications
func (db *DB) ListApplications(ctx context.Context, userID uuid.UUID, limit int) ([]Application, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.pool.Query(ctx,
		`SELECT id, user_id, listing_id, title, address, price, rooms, status, applied_at, updated_at
		 FROM applications WHERE user_id = $1 ORDER BY applied_at DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	defer rows.Close()

	var apps []Application
	for rows.Next() {
		var app Application
		if err := rows.Scan(&app.ID, &app.UserID, &app.ListingID, &app.Title, &app.Address, &app.Price,
			&app.Rooms, &app.Status, &app.AppliedAt, &app.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

// CountApplications counts applications created at or after since
func (db *DB) CountApplications(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM applications WHERE applied_at >= $1`,
		since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count applications: %w", err)
	}
	return count, nil
}

// CountApplicationsByStatus counts applications with the given status created
// at or after since
func (db *DB) CountApplicationsByStatus(ctx context.Context, status string, since time.Time) (int, error) {
	var count int
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM applications WHERE status = $1 AND applied_at >= $2`,
		status, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s applications: %w", status, err)
	}
	return count, nil
}

// CountApplicationsBefore counts applications created strictly before cutoff
func (db *DB) CountApplicationsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	var count int
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM applications WHERE applied_at < $1`,
		cutoff,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count old applications: %w", err)
	}
	return count, nil
}

// clampRunes cuts s to at most n characters without splitting a rune.
func clampRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
