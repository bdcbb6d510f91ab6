package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opencode-ai/supervision/internal/permission"
	"github.com/opencode-ai/supervision/internal/toolgate"
)

// listSessionTools handles GET /session/{sessionID}/tools. The session's
// mode and tool permission come from the mode and toolPermission query
// parameters.
func (s *Server) listSessionTools(w http.ResponseWriter, r *http.Request) {
	if s.services.Gate == nil {
		unavailable(w, "Tool gate")
		return
	}

	tools, err := s.services.Gate.Tools(r.Context(), sessionFor(r, nil))
	if err != nil {
		writeError(w, http.StatusBadGateway, ErrCodeToolError, err.Error())
		return
	}
	if tools == nil {
		tools = []toolgate.VisibleTool{}
	}
	writeJSON(w, http.StatusOK, tools)
}

// InvokeToolRequest carries the arguments of a tool call.
type InvokeToolRequest struct {
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// InvokeToolResponse is the text output of a tool call.
type InvokeToolResponse struct {
	Output string `json:"output"`
}

// invokeSessionTool handles POST /session/{sessionID}/tools/{name}
func (s *Server) invokeSessionTool(w http.ResponseWriter, r *http.Request) {
	if s.services.Gate == nil {
		unavailable(w, "Tool gate")
		return
	}

	name := chi.URLParam(r, "name")
	var req InvokeToolRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}

	out, err := s.services.Gate.Invoke(r.Context(), sessionFor(r, nil), name, req.Arguments)
	switch {
	case errors.Is(err, toolgate.ErrMalformedToolName):
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
	case errors.Is(err, toolgate.ErrToolNotVisible):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, toolgate.ErrDoomLoop), permission.IsRejectedError(err):
		writeError(w, http.StatusForbidden, ErrCodePermissionDenied, err.Error())
	case err != nil:
		writeError(w, http.StatusBadGateway, ErrCodeToolError, err.Error())
	default:
		writeJSON(w, http.StatusOK, InvokeToolResponse{Output: out})
	}
}

// listConfirmations handles GET /confirmation. The optional sessionID query
// parameter restricts the list to one session.
func (s *Server) listConfirmations(w http.ResponseWriter, r *http.Request) {
	if s.services.Checker == nil {
		unavailable(w, "Confirmation checker")
		return
	}
	writeJSON(w, http.StatusOK, s.services.Checker.Pending(r.URL.Query().Get("sessionID")))
}

// ConfirmationReply answers a pending confirmation.
type ConfirmationReply struct {
	Action string `json:"action"` // once | always | reject
}

// respondConfirmation handles POST /confirmation/{requestID}
func (s *Server) respondConfirmation(w http.ResponseWriter, r *http.Request) {
	if s.services.Checker == nil {
		unavailable(w, "Confirmation checker")
		return
	}

	var reply ConfirmationReply
	if !decodeBody(w, r, &reply) {
		return
	}
	switch reply.Action {
	case permission.ReplyOnce, permission.ReplyAlways, permission.ReplyReject:
	default:
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "action must be once, always or reject")
		return
	}

	if err := s.services.Checker.Respond(chi.URLParam(r, "requestID"), reply.Action); err != nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
		return
	}
	writeSuccess(w)
}

// getMCPStatus handles GET /mcp
func (s *Server) getMCPStatus(w http.ResponseWriter, r *http.Request) {
	if s.services.MCP == nil {
		unavailable(w, "MCP client")
		return
	}
	writeJSON(w, http.StatusOK, s.services.MCP.Status())
}

// resetSession handles POST /session/{sessionID}/reset
func (s *Server) resetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if s.services.Checker != nil {
		s.services.Checker.ClearSession(sessionID)
	}
	if s.services.Gate != nil {
		s.services.Gate.ResetSession(sessionID)
	}
	s.services.Contexts.Clear(sessionID)

	s.logger.Info().Str("session", sessionID).Msg("Session state reset")
	writeSuccess(w)
}
