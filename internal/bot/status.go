// Package bot runs the per-user crawl, filter and apply loops and keeps their
// live status.
package bot

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of one user's bot.
type Status string

// Status values
const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusError    Status = "error"
	StatusStopping Status = "stopping"
)

// Metrics is the live record of one user's bot. The manager owns it; callers
// only ever receive copies.
type Metrics struct {
	UserID           uuid.UUID `json:"user_id"`
	Status           Status    `json:"status"`
	ListingsFound    int       `json:"listings_found"`
	ApplicationsSent int       `json:"applications_sent"`
	LastActivity     time.Time `json:"last_activity"`
	CurrentAction    string    `json:"current_action"`
	ErrorMessage     string    `json:"error_message,omitempty"`
	StartedAt        time.Time `json:"started_at"`
	RuntimeSeconds   int64     `json:"runtime_seconds"`
}

// MetricsUpdate is a partial change to a bot's metrics. Nil fields are left
// untouched; the Add fields are increments.
type MetricsUpdate struct {
	Status              *Status
	CurrentAction       *string
	ErrorMessage        *string
	ClearError          bool
	AddListingsFound    int
	AddApplicationsSent int
}

// Action returns an update that only changes the current action.
func Action(action string) MetricsUpdate {
	return MetricsUpdate{CurrentAction: &action}
}

// Transition returns an update that changes status and current action.
func Transition(status Status, action string) MetricsUpdate {
	return MetricsUpdate{Status: &status, CurrentAction: &action}
}

func (u MetricsUpdate) apply(m *Metrics) {
	if u.Status != nil {
		// A bot being stopped only ever moves on to stopped.
		if m.Status != StatusStopping || *u.Status == StatusStopped {
			m.Status = *u.Status
		}
	}
	if u.CurrentAction != nil {
		m.CurrentAction = *u.CurrentAction
	}
	if u.ClearError {
		m.ErrorMessage = ""
	}
	if u.ErrorMessage != nil {
		m.ErrorMessage = *u.ErrorMessage
	}
	m.ListingsFound += u.AddListingsFound
	m.ApplicationsSent += u.AddApplicationsSent
}

// Result is returned by the manager's control operations. Expected conditions
// such as "already running" are reported here rather than as errors.
type Result struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Status  *Metrics `json:"status,omitempty"`
}

// Overview aggregates the metrics of every bot started in this process.
type Overview struct {
	TotalBots             int            `json:"total_bots"`
	ActiveBots            int            `json:"active_bots"`
	StatusCounts          map[Status]int `json:"status_counts"`
	TotalListingsFound    int            `json:"total_listings_found"`
	TotalApplicationsSent int            `json:"total_applications_sent"`
}
