// Package settings loads a user's filter settings and applicant profile,
// falling back to documented defaults when the stored documents are missing
// or unusable.
package settings

import (
	"context"
	"fmt"
	"log"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jonathan/wohnblitz/internal/types"
)

// AccountSource looks up stored user accounts. It returns nil, nil when the
// account does not exist.
type AccountSource interface {
	GetUserAccount(ctx context.Context, userID uuid.UUID) (*types.UserAccount, error)
}

// Provider serves per-user bot configuration.
type Provider struct {
	accounts AccountSource
	validate *validator.Validate
}

// NewProvider creates a provider reading accounts from the given source.
func NewProvider(accounts AccountSource) *Provider {
	return &Provider{
		accounts: accounts,
		validate: validator.New(),
	}
}

// FilterSettings returns the user's filter. Only a failed account lookup is an
// error; an unusable stored filter is logged and replaced by the defaults.
func (p *Provider) FilterSettings(ctx context.Context, userID uuid.UUID) (types.FilterSettings, error) {
	account, err := p.account(ctx, userID)
	if err != nil {
		return types.FilterSettings{}, err
	}

	settings, err := ParseFilterSettings(account.FilterSettingsJSON, p.validate)
	if err != nil {
		log.Printf("[settings] User %s: %v, using default filter", userID, err)
	}
	return settings, nil
}

// ApplicantProfile returns the user's applicant profile, deriving one from the
// account when none is stored or the stored one is unusable.
func (p *Provider) ApplicantProfile(ctx context.Context, userID uuid.UUID) (types.ApplicantProfile, error) {
	account, err := p.account(ctx, userID)
	if err != nil {
		return types.ApplicantProfile{}, err
	}

	profile, err := ParseApplicantProfile(account.ApplicantProfileJSON, *account, p.validate)
	if err != nil {
		log.Printf("[settings] User %s: %v, using profile derived from account", userID, err)
	}
	return profile, nil
}

func (p *Provider) account(ctx context.Context, userID uuid.UUID) (*types.UserAccount, error) {
	account, err := p.accounts.GetUserAccount(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user %s: %w", userID, err)
	}
	if account == nil {
		return nil, ErrUserNotFound
	}
	return account, nil
}
