package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jonathan/wohnblitz/internal/db"
)

type logQuery struct {
	Level  string `validate:"omitempty,oneof=DEBUG INFO WARNING ERROR"`
	Action string `validate:"omitempty,oneof=start stop crawl apply error"`
	Limit  int    `validate:"min=0,max=1000"`
}

func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	query := logQuery{
		Level:  strings.ToUpper(q.Get("level")),
		Action: strings.ToLower(q.Get("action")),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			s.errorResponse(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		query.Limit = limit
	}
	if err := s.validate.Struct(query); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid query: "+err.Error())
		return
	}

	logs, err := s.store.ListLogs(r.Context(), db.LogFilters{
		UserID: userID,
		Level:  query.Level,
		Action: query.Action,
		Limit:  query.Limit,
	})
	if err != nil {
		s.storeError(w, "list logs", err)
		return
	}
	if logs == nil {
		logs = []db.BotLog{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"logs":  logs,
		"count": len(logs),
	})
}

func (s *Server) handleDeleteLogs(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	deleted, err := s.store.DeleteUserLogs(r.Context(), userID)
	if err != nil {
		s.storeError(w, "delete logs", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

func (s *Server) handleListApplications(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		var err error
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 || limit > 500 {
			s.errorResponse(w, http.StatusBadRequest, "Invalid limit")
			return
		}
	}

	apps, err := s.store.ListApplications(r.Context(), userID, limit)
	if err != nil {
		s.storeError(w, "list applications", err)
		return
	}
	if apps == nil {
		apps = []db.Application{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"applications": apps,
		"count":        len(apps),
	})
}

// handleGetApplication returns one of the user's applications. Applications
// of other users are reported as missing.
func (s *Server) handleGetApplication(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	appID, err := uuid.Parse(r.PathValue("appID"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid application ID")
		return
	}

	app, err := s.store.GetApplication(r.Context(), appID)
	if err != nil {
		s.storeError(w, "get application", err)
		return
	}
	if app == nil || app.UserID != userID {
		s.errorResponse(w, http.StatusNotFound, "Application not found")
		return
	}
	s.jsonResponse(w, http.StatusOK, app)
}
