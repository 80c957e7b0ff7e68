package server

import (
	"net/http"

	"github.com/jonathan/wohnblitz/internal/bot"
	"github.com/jonathan/wohnblitz/internal/observability"
)

type metricsResponse struct {
	Metrics observability.Snapshot `json:"metrics"`
	Bots    bot.Overview           `json:"bots"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, metricsResponse{
		Metrics: s.metrics.Snapshot(),
		Bots:    s.bots.Overview(),
	})
}

func (s *Server) handleMaintenanceReport(w http.ResponseWriter, _ *http.Request) {
	if s.maintenance == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "Maintenance is not running")
		return
	}
	s.jsonResponse(w, http.StatusOK, s.maintenance.Report())
}
