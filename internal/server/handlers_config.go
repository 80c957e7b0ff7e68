package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jonathan/wohnblitz/internal/settings"
	"github.com/jonathan/wohnblitz/internal/types"
)

// updateBotConfigRequest carries the new documents. A missing or null field
// leaves the stored document unchanged.
type updateBotConfigRequest struct {
	FilterSettings   json.RawMessage `json:"filter_settings"`
	ApplicantProfile json.RawMessage `json:"applicant_profile"`
}

type botConfigResponse struct {
	Message          string                 `json:"message,omitempty"`
	FilterSettings   types.FilterSettings   `json:"filter_settings"`
	ApplicantProfile types.ApplicantProfile `json:"applicant_profile"`
	// Problems lists why stored documents were replaced by defaults.
	Problems []string `json:"problems,omitempty"`
}

// handleGetBotConfig returns the configuration a bot started now would use.
func (s *Server) handleGetBotConfig(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	account, err := s.store.GetUserAccount(r.Context(), userID)
	if err != nil {
		s.storeError(w, "get user account", err)
		return
	}
	if account == nil {
		s.errorResponse(w, http.StatusNotFound, "User not found")
		return
	}

	var resp botConfigResponse
	var filterErr, profileErr error
	resp.FilterSettings, filterErr = settings.ParseFilterSettings(account.FilterSettingsJSON, s.validate)
	resp.ApplicantProfile, profileErr = settings.ParseApplicantProfile(account.ApplicantProfileJSON, *account, s.validate)
	for _, err := range []error{filterErr, profileErr} {
		if err != nil {
			resp.Problems = append(resp.Problems, err.Error())
		}
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// handleUpdateBotConfig validates and stores new filter and profile
// documents. Running bots keep their configuration until restarted.
func (s *Server) handleUpdateBotConfig(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	var req updateBotConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	filterRaw, profileRaw := documentOrNil(req.FilterSettings), documentOrNil(req.ApplicantProfile)
	if filterRaw == nil && profileRaw == nil {
		s.validationResponse(w, &ErrValidation{
			Field:   "body",
			Message: "filter_settings or applicant_profile is required",
		})
		return
	}

	account, err := s.store.GetUserAccount(r.Context(), userID)
	if err != nil {
		s.storeError(w, "get user account", err)
		return
	}
	if account == nil {
		s.errorResponse(w, http.StatusNotFound, "User not found")
		return
	}

	filterDoc, profileDoc := account.FilterSettingsJSON, account.ApplicantProfileJSON
	if filterRaw != nil {
		filterDoc = filterRaw
	}
	if profileRaw != nil {
		profileDoc = profileRaw
	}

	resp := botConfigResponse{Message: "Configuration saved. Restart the bot to apply it."}
	resp.FilterSettings, err = settings.ParseFilterSettings(filterDoc, s.validate)
	if err != nil && filterRaw != nil {
		s.validationResponse(w, configValidation("filter_settings", err))
		return
	}
	resp.ApplicantProfile, err = settings.ParseApplicantProfile(profileDoc, *account, s.validate)
	if err != nil && profileRaw != nil {
		s.validationResponse(w, configValidation("applicant_profile", err))
		return
	}

	if err := s.store.UpdateBotConfig(r.Context(), userID, filterRaw, profileRaw); err != nil {
		s.storeError(w, "update bot config", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) validationResponse(w http.ResponseWriter, err *ErrValidation) {
	body := map[string]any{
		"error": err.Error(),
		"field": err.Field,
	}
	if len(err.Problems) > 0 {
		body["problems"] = err.Problems
	}
	s.jsonResponse(w, HTTPStatus(err), body)
}

func configValidation(field string, err error) *ErrValidation {
	v := &ErrValidation{Field: field, Message: err.Error()}
	var configErr *settings.ConfigError
	if errors.As(err, &configErr) {
		v.Message = "document rejected"
		v.Problems = configErr.Problems
	}
	return v
}

// documentOrNil returns the raw document as a string, or nil when it is
// absent or JSON null.
func documentOrNil(raw json.RawMessage) *string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	doc := string(trimmed)
	return &doc
}
