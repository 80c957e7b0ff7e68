package types

import "strings"

// DefaultCity is used when neither the profile nor the account provides one.
const DefaultCity = "Berlin"

// ApplicantProfile is the personal data typed into listing contact forms.
type ApplicantProfile struct {
	Salutation string `json:"salutation,omitempty" validate:"omitempty,max=20"`
	FirstName  string `json:"first_name" validate:"max=100"`
	LastName   string `json:"last_name" validate:"required,max=100"`
	Street     string `json:"street,omitempty" validate:"max=200"`
	PostalCode string `json:"postal_code,omitempty" validate:"omitempty,numeric,len=5"`
	City       string `json:"city,omitempty" validate:"max=100"`
	Email      string `json:"email" validate:"required,email"`
	Phone      string `json:"phone,omitempty" validate:"max=50"`
}

// FullName joins first and last name.
func (p ApplicantProfile) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}
