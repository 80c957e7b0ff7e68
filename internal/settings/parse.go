package settings

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jonathan/wohnblitz/internal/types"
)

// filterDocument mirrors the stored filter JSON. Pointers tell a missing key
// apart from an explicit zero value.
type filterDocument struct {
	MaxRent       *float64              `json:"max_rent"`
	MinRooms      *int                  `json:"min_rooms"`
	WBS           *types.WBSRequirement `json:"wbs_required"`
	ExcludedAreas *[]string             `json:"excluded_areas"`
}

// ParseFilterSettings turns the stored filter document into settings.
//
// Defaulting rules, per field: a missing max_rent becomes 1500, a missing
// min_rooms becomes 2, a missing or null wbs_required means any, and a
// missing excluded_areas uses the default districts while an explicit empty
// list excludes nothing. A nil or blank document yields the full defaults.
// A document that fails to parse or validate yields the full defaults
// together with a *ConfigError.
func ParseFilterSettings(raw *string, validate *validator.Validate) (types.FilterSettings, error) {
	defaults := types.DefaultFilterSettings()
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return defaults, nil
	}

	if err := loadSchemas(); err != nil {
		return defaults, &ConfigError{Document: "filter settings", Cause: err}
	}
	problems, err := checkSchema(filterSchema, *raw)
	if err != nil {
		return defaults, &ConfigError{Document: "filter settings", Problems: []string{"not valid JSON"}, Cause: err}
	}
	if len(problems) > 0 {
		return defaults, &ConfigError{Document: "filter settings", Problems: problems}
	}

	var doc filterDocument
	if err := json.Unmarshal([]byte(*raw), &doc); err != nil {
		return defaults, &ConfigError{Document: "filter settings", Cause: err}
	}

	settings := defaults
	if doc.MaxRent != nil {
		settings.MaxRent = *doc.MaxRent
	}
	if doc.MinRooms != nil {
		settings.MinRooms = *doc.MinRooms
	}
	if doc.WBS != nil {
		settings.WBS = *doc.WBS
	}
	if doc.ExcludedAreas != nil {
		settings.ExcludedAreas = append([]string{}, (*doc.ExcludedAreas)...)
	}

	if err := validate.Struct(settings); err != nil {
		return defaults, &ConfigError{Document: "filter settings", Problems: validationProblems(err)}
	}
	return settings, nil
}

// DeriveProfile builds the minimal applicant profile from the account's name
// and e-mail.
func DeriveProfile(account types.UserAccount) types.ApplicantProfile {
	return types.ApplicantProfile{
		FirstName: strings.TrimSpace(account.FirstName),
		LastName:  strings.TrimSpace(account.LastName),
		City:      types.DefaultCity,
		Email:     strings.TrimSpace(account.Email),
	}
}

// ParseApplicantProfile turns the stored profile document into a profile.
// Fields the document leaves empty are filled from the account. A nil or
// blank document yields the derived profile; an unusable one yields the
// derived profile together with a *ConfigError.
func ParseApplicantProfile(raw *string, account types.UserAccount, validate *validator.Validate) (types.ApplicantProfile, error) {
	derived := DeriveProfile(account)
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return derived, nil
	}

	if err := loadSchemas(); err != nil {
		return derived, &ConfigError{Document: "applicant profile", Cause: err}
	}
	problems, err := checkSchema(profileSchema, *raw)
	if err != nil {
		return derived, &ConfigError{Document: "applicant profile", Problems: []string{"not valid JSON"}, Cause: err}
	}
	if len(problems) > 0 {
		return derived, &ConfigError{Document: "applicant profile", Problems: problems}
	}

	var profile types.ApplicantProfile
	if err := json.Unmarshal([]byte(*raw), &profile); err != nil {
		return derived, &ConfigError{Document: "applicant profile", Cause: err}
	}
	profile = trimProfile(profile)
	if profile.FirstName == "" {
		profile.FirstName = derived.FirstName
	}
	if profile.LastName == "" {
		profile.LastName = derived.LastName
	}
	if profile.Email == "" {
		profile.Email = derived.Email
	}
	if profile.City == "" {
		profile.City = derived.City
	}

	if err := validate.Struct(profile); err != nil {
		return derived, &ConfigError{Document: "applicant profile", Problems: validationProblems(err)}
	}
	return profile, nil
}

func trimProfile(p types.ApplicantProfile) types.ApplicantProfile {
	p.Salutation = strings.TrimSpace(p.Salutation)
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	p.Street = strings.TrimSpace(p.Street)
	p.PostalCode = strings.TrimSpace(p.PostalCode)
	p.City = strings.TrimSpace(p.City)
	p.Email = strings.TrimSpace(p.Email)
	p.Phone = strings.TrimSpace(p.Phone)
	return p
}

func validationProblems(err error) []string {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return []string{err.Error()}
	}
	problems := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		problems = append(problems, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return problems
}
