package db

import (
	"time"

	"github.com/google/uuid"
)

// ApplicationStatus constants
const (
	ApplicationStatusPending   = "pending"
	ApplicationStatusSent      = "sent"
	ApplicationStatusResponded = "responded"
	ApplicationStatusRejected  = "rejected"
)

// LogLevel constants
const (
	LogLevelDebug   = "DEBUG"
	LogLevelInfo    = "INFO"
	LogLevelWarning = "WARNING"
	LogLevelError   = "ERROR"
)

// LogAction constants
const (
	LogActionStart = "start"
	LogActionStop  = "stop"
	LogActionCrawl = "crawl"
	LogActionApply = "apply"
	LogActionError = "error"
)

// ValidApplicationStatus reports whether s is a known application status.
func ValidApplicationStatus(s string) bool {
	switch s {
	case ApplicationStatusPending, ApplicationStatusSent, ApplicationStatusResponded, ApplicationStatusRejected:
		return true
	}
	return false
}

// Application is one contact-form submission attempt for a listing.
type Application struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	ListingID *string   `json:"listing_id,omitempty"`
	Title     string    `json:"title"`
	Address   string    `json:"address"`
	Price     *float64  `json:"price,omitempty"`
	Rooms     *int      `json:"rooms,omitempty"`
	Status    string    `json:"status"`
	AppliedAt time.Time `json:"applied_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ApplicationInput is the data needed to record a new pending application.
// A nil Price means the rent could not be read.
type ApplicationInput struct {
	UserID    uuid.UUID
	ListingID string
	Title     string
	Address   string
	Price     *float64
	Rooms     int
}

// BotLog is one persisted bot log entry.
type BotLog struct {
	ID        uuid.UUID      `json:"id"`
	UserID    uuid.UUID      `json:"user_id"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Action    *string        `json:"action,omitempty"`
	ListingID *string        `json:"listing_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// BotLogInput is a log entry to append. Empty Action and ListingID are
// stored as NULL.
type BotLogInput struct {
	UserID    uuid.UUID
	Level     string
	Message   string
	Action    string
	ListingID string
	Details   map[string]any
}

// LogFilters holds optional filters for listing bot logs
type LogFilters struct {
	UserID uuid.UUID
	Level  string
	Action string
	Limit  int
}
