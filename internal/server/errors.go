package server

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/jonathan/wohnblitz/internal/db"
	"github.com/jonathan/wohnblitz/internal/settings"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field    string
	Message  string
	Problems []string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var validationErr *ErrValidation
	var configErr *settings.ConfigError
	switch {
	case errors.Is(err, settings.ErrUserNotFound), errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &validationErr), errors.As(err, &configErr):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// storeError writes err with its mapped status. Internal errors are logged
// and hidden from the client.
func (s *Server) storeError(w http.ResponseWriter, op string, err error) {
	status := HTTPStatus(err)
	if status == http.StatusInternalServerError {
		s.logError(op, err)
		s.errorResponse(w, status, "Database error")
		return
	}
	s.errorResponse(w, status, err.Error())
}

func (s *Server) logError(op string, err error) {
	log.Printf("[server] %s failed: %v", op, err)
}
