package db

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// -----------------------------------------------------------------------------
// Bot Log Methods
// -----------------------------------------------------------------------------

// AppendLog inserts a bot log entry
func (db *DB) AppendLog(ctx context.Context, input BotLogInput) error {
	var detailsJSON []byte
	if input.Details != nil {
		var err error
		detailsJSON, err = json.Marshal(input.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal log details: %w", err)
		}
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO bot_logs (user_id, level, message, action, listing_id, details)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		input.UserID, input.Level, input.Message, nullIfEmpty(input.Action),
		nullIfEmpty(input.ListingID), detailsJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to append bot log: %w", err)
	}
	return nil
}

// ListLogs retrieves the most recent bot logs matching the filters
func (db *DB) ListLogs(ctx context.Context, filters LogFilters) ([]BotLog, error) {
	if filters.Limit <= 0 {
		filters.Limit = 100
	}

	query := `SELECT id, user_id, level, message, action, listing_id, details, logged_at
		FROM bot_logs WHERE 1=1`
	args := []any{}
	argNum := 1

	if filters.UserID != uuid.Nil {
		query += fmt.Sprintf(" AND user_id = $%d", argNum)
		args = append(args, filters.UserID)
		argNum++
	}
	if filters.Level != "" {
		query += fmt.Sprintf(" AND level = $%d", argNum)
		args = append(args, filters.Level)
		argNum++
	}
	if filters.Action != "" {
		query += fmt.Sprintf(" AND action = $%d", argNum)
		args = append(args, filters.Action)
		argNum++
	}

	query += fmt.Sprintf(" ORDER BY logged_at DESC LIMIT $%d", argNum)
	args = append(args, filters.Limit)

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bot logs: %w", err)
	}
	defer rows.Close()

	var logs []BotLog
	for rows.Next() {
		var entry BotLog
		var detailsJSON []byte
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.Level, &entry.Message, &entry.Action,
			&entry.ListingID, &detailsJSON, &entry.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan bot log: %w", err)
		}
		entry.Details = decodeDetails(entry.ID, detailsJSON)
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

// decodeDetails parses a details column. Unreadable details are logged and
// dropped so the entry itself is still listed.
func decodeDetails(id uuid.UUID, raw []byte) map[string]any {
	if raw == nil {
		return nil
	}
	var details map[string]any
	if err := json.Unmarshal(raw, &details); err != nil {
		log.Printf("[db] Bot log %s has unreadable details: %v", id, err)
		return nil
	}
	return details
}

// DeleteLogsOlderThan removes log entries written strictly before cutoff and
// returns how many were deleted. Entries at exactly cutoff are kept.
func (db *DB) DeleteLogsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := db.pool.Exec(ctx, `DELETE FROM bot_logs WHERE logged_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old bot logs: %w", err)
	}
	return result.RowsAffected(), nil
}

// DeleteUserLogs removes every log entry of one user
func (db *DB) DeleteUserLogs(ctx context.Context, userID uuid.UUID) (int64, error) {
	result, err := db.pool.Exec(ctx, `DELETE FROM bot_logs WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete bot logs: %w", err)
	}
	return result.RowsAffected(), nil
}

// CountLogs counts log entries written at or after since
func (db *DB) CountLogs(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM bot_logs WHERE logged_at >= $1`,
		since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count bot logs: %w", err)
	}
	return count, nil
}

// CountLogsByLevel counts log entries of one level written at or after since
func (db *DB) CountLogsByLevel(ctx context.Context, level string, since time.Time) (int, error) {
	var count int
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM bot_logs WHERE level = $1 AND logged_at >= $2`,
		level, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s bot logs: %w", level, err)
	}
	return count, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
