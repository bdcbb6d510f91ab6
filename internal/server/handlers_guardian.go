package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opencode-ai/supervision/internal/supervisor"
	"github.com/opencode-ai/supervision/pkg/types"
)

// ContentRequest carries text for guardian checks.
type ContentRequest struct {
	Content string `json:"content"`
}

// RulesBody is the guardian rule list.
type RulesBody struct {
	Rules []string `json:"rules"`
}

// guardianCheck handles POST /guardian/{supervisorID}/check
func (s *Server) guardianCheck(w http.ResponseWriter, r *http.Request) {
	g, ok := s.lookupGuardian(w, r)
	if !ok {
		return
	}
	var req ContentRequest
	if !decodeBody(w, r, &req) {
		return
	}

	writeJSON(w, http.StatusOK, g.CheckContent(&types.Message{Role: types.RoleUser, Content: req.Content}))
}

// guardianRedact handles POST /guardian/{supervisorID}/redact
func (s *Server) guardianRedact(w http.ResponseWriter, r *http.Request) {
	g, ok := s.lookupGuardian(w, r)
	if !ok {
		return
	}
	var req ContentRequest
	if !decodeBody(w, r, &req) {
		return
	}

	writeJSON(w, http.StatusOK, ContentRequest{Content: g.ApplyGuardrails(req.Content)})
}

// getGuardianRules handles GET /guardian/{supervisorID}/rules
func (s *Server) getGuardianRules(w http.ResponseWriter, r *http.Request) {
	g, ok := s.lookupGuardian(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, RulesBody{Rules: g.GetGuardrailRules()})
}

// setGuardianRules handles PUT /guardian/{supervisorID}/rules
func (s *Server) setGuardianRules(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "supervisorID")

	var body RulesBody
	if !decodeBody(w, r, &body) {
		return
	}

	err := s.services.Manager.SetGuardianRules(id, body.Rules)
	switch {
	case isNotFound(err):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
		return
	case errors.Is(err, supervisor.ErrNotGuardian):
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	sup, _ := s.services.Manager.GetSupervisor(id)
	writeJSON(w, http.StatusOK, RulesBody{Rules: sup.(*supervisor.Guardian).GetGuardrailRules()})
}

// GuardianStatsResponse reports guardian counters and recent blocks.
type GuardianStatsResponse struct {
	Stats    supervisor.GuardianStats      `json:"stats"`
	BlockLog []supervisor.GuardianLogEntry `json:"blockLog"`
}

// getGuardianStats handles GET /guardian/{supervisorID}/stats
func (s *Server) getGuardianStats(w http.ResponseWriter, r *http.Request) {
	g, ok := s.lookupGuardian(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, GuardianStatsResponse{Stats: g.Stats(), BlockLog: g.BlockLog()})
}
