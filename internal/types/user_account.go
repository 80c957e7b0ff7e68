package types

import "github.com/google/uuid"

// UserAccount is the stored user data the bot needs: the name and e-mail used
// to derive a fallback applicant profile, and the raw JSON documents holding
// the user's filter and applicant profile (nil when never set).
type UserAccount struct {
	ID                   uuid.UUID `json:"id"`
	FirstName            string    `json:"first_name"`
	LastName             string    `json:"last_name"`
	Email                string    `json:"email"`
	Active               bool      `json:"active"`
	FilterSettingsJSON   *string   `json:"filter_settings,omitempty"`
	ApplicantProfileJSON *string   `json:"applicant_profile,omitempty"`
}
