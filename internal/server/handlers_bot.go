package server

import (
	"net/http"
	"time"

	"github.com/jonathan/wohnblitz/internal/bot"
)

type botStatusResponse struct {
	// Tracked is false when the user's bot was never started in this process.
	Tracked bool        `json:"tracked"`
	Status  bot.Metrics `json:"status"`
}

type botListResponse struct {
	Bots     []bot.Metrics `json:"bots"`
	Overview bot.Overview  `json:"overview"`
}

func (s *Server) handleStartBot(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	s.resultResponse(w, s.bots.Start(r.Context(), userID))
}

func (s *Server) handleStopBot(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	s.resultResponse(w, s.bots.Stop(r.Context(), userID))
}

func (s *Server) handleRestartBot(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	s.resultResponse(w, s.bots.Restart(r.Context(), userID))
}

func (s *Server) handleBotStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	m, tracked := s.bots.Status(userID)
	s.jsonResponse(w, http.StatusOK, botStatusResponse{Tracked: tracked, Status: m})
}

// handleBotStatusStream pushes the user's metrics as server-sent events
// whenever they change, and ends with a complete event once the bot has
// stopped.
func (s *Server) handleBotStatusStream(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	m, tracked := s.bots.Status(userID)
	if !tracked {
		s.errorResponse(w, http.StatusNotFound, "No bot has been started for this user")
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	ticker := time.NewTicker(s.streamInterval)
	defer ticker.Stop()

	var last bot.Metrics
	for sent := false; ; sent = true {
		if !sent || m != last {
			if err := sse.WriteEvent("status", m); err != nil {
				return
			}
			last = m
		}
		if m.Status == bot.StatusStopped {
			sse.WriteComplete(userID.String(), string(m.Status))
			return
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
		m, _ = s.bots.Status(userID)
	}
}

func (s *Server) handleListBots(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, botListResponse{
		Bots:     s.bots.AllStatuses(),
		Overview: s.bots.Overview(),
	})
}

func (s *Server) handleStopAllBots(w http.ResponseWriter, r *http.Request) {
	s.resultResponse(w, s.bots.StopAll(r.Context()))
}
