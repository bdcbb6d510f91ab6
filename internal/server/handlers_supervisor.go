package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opencode-ai/supervision/internal/supervisor"
	"github.com/opencode-ai/supervision/pkg/types"
)

// SupervisorInfo describes a registered supervisor.
type SupervisorInfo struct {
	ID          string                  `json:"id"`
	Name        string                  `json:"name"`
	Kind        supervisor.Kind         `json:"kind"`
	Permissions []supervisor.Permission `json:"permissions"`
	Rules       []string                `json:"rules,omitempty"`
	Members     []SupervisorInfo        `json:"members,omitempty"`
}

func describe(s supervisor.Supervisor) SupervisorInfo {
	info := SupervisorInfo{
		ID:          s.ID(),
		Name:        s.Name(),
		Kind:        s.Kind(),
		Permissions: s.Permissions().List(),
	}
	switch v := s.(type) {
	case *supervisor.Guardian:
		info.Rules = v.GetGuardrailRules()
	case *supervisor.Collection:
		for _, m := range v.Members() {
			info.Members = append(info.Members, describe(m))
		}
	}
	return info
}

func describeAll(list []supervisor.Supervisor) []SupervisorInfo {
	infos := make([]SupervisorInfo, 0, len(list))
	for _, s := range list {
		infos = append(infos, describe(s))
	}
	return infos
}

// listSupervisors handles GET /supervisor
func (s *Server) listSupervisors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, describeAll(s.services.Manager.GetAllSupervisors()))
}

// createSupervisor handles POST /supervisor. The body is a supervisor
// configuration record.
func (s *Server) createSupervisor(w http.ResponseWriter, r *http.Request) {
	var cfg types.SupervisorConfig
	if !decodeBody(w, r, &cfg) {
		return
	}
	if cfg.Type == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "type is required")
		return
	}
	if cfg.ID != "" {
		if _, exists := s.services.Manager.GetSupervisor(cfg.ID); exists {
			writeError(w, http.StatusConflict, ErrCodeConflict, "Supervisor already exists: "+cfg.ID)
			return
		}
	}

	sup, err := supervisor.NewFromConfig(cfg, s.services.Deps)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	if err := s.services.Manager.AddSupervisor(r.Context(), sup); err != nil {
		// The supervisor stays registered; report it alongside the failure.
		writeErrorWithDetails(w, http.StatusBadGateway, ErrCodeSupervisorError, err.Error(), map[string]any{
			"id": sup.ID(),
		})
		return
	}

	writeJSON(w, http.StatusCreated, describe(sup))
}

// getSupervisor handles GET /supervisor/{supervisorID}
func (s *Server) getSupervisor(w http.ResponseWriter, r *http.Request) {
	sup, ok := s.lookupSupervisor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, describe(sup))
}

// deleteSupervisor handles DELETE /supervisor/{supervisorID}
func (s *Server) deleteSupervisor(w http.ResponseWriter, r *http.Request) {
	sup, ok := s.lookupSupervisor(w, r)
	if !ok {
		return
	}
	if err := s.services.Manager.RemoveSupervisor(r.Context(), sup.ID()); err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeSuccess(w)
}

// listSessionSupervisors handles GET /session/{sessionID}/supervisor
func (s *Server) listSessionSupervisors(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	writeJSON(w, http.StatusOK, describeAll(s.services.Manager.GetSessionSupervisors(sessionID)))
}

// RegisterRequest adds a supervisor to a session roster.
type RegisterRequest struct {
	SupervisorID string `json:"supervisorID"`
}

// registerSessionSupervisor handles POST /session/{sessionID}/supervisor
func (s *Server) registerSessionSupervisor(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req RegisterRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sup, ok := s.services.Manager.GetSupervisor(req.SupervisorID)
	if !ok {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Supervisor not found: "+req.SupervisorID)
		return
	}

	if err := s.services.Manager.RegisterSupervisor(sessionID, sup); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, describeAll(s.services.Manager.GetSessionSupervisors(sessionID)))
}

// unregisterSessionSupervisor handles DELETE /session/{sessionID}/supervisor/{supervisorID}
func (s *Server) unregisterSessionSupervisor(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	supervisorID := chi.URLParam(r, "supervisorID")

	s.services.Manager.UnregisterSupervisor(sessionID, supervisorID)
	writeSuccess(w)
}

// SuperviseRequestBody is the input of the request hook.
type SuperviseRequestBody struct {
	Session  *types.Session  `json:"session,omitempty"`
	Messages []types.Message `json:"messages"`
}

// superviseRequest handles POST /session/{sessionID}/supervise/request.
// Supervisor errors fail the request.
func (s *Server) superviseRequest(w http.ResponseWriter, r *http.Request) {
	var body SuperviseRequestBody
	if !decodeBody(w, r, &body) {
		return
	}
	session := sessionFor(r, body.Session)

	res, err := s.services.Manager.ProcessRequest(r.Context(), session, body.Messages)
	if err != nil {
		writeError(w, http.StatusBadGateway, ErrCodeSupervisorError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SuperviseResponseBody is the input of the response hook.
type SuperviseResponseBody struct {
	Session  *types.Session       `json:"session,omitempty"`
	Response *types.MessageUpdate `json:"response"`
}

// superviseResponse handles POST /session/{sessionID}/supervise/response
func (s *Server) superviseResponse(w http.ResponseWriter, r *http.Request) {
	var body SuperviseResponseBody
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Response == nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "response is required")
		return
	}
	session := sessionFor(r, body.Session)

	res, err := s.services.Manager.ProcessResponse(r.Context(), session, body.Response)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// lookupSupervisor resolves {supervisorID}, writing a 404 when missing.
func (s *Server) lookupSupervisor(w http.ResponseWriter, r *http.Request) (supervisor.Supervisor, bool) {
	id := chi.URLParam(r, "supervisorID")
	sup, ok := s.services.Manager.GetSupervisor(id)
	if !ok {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Supervisor not found: "+id)
		return nil, false
	}
	return sup, true
}

// lookupGuardian resolves {supervisorID} to a guardian.
func (s *Server) lookupGuardian(w http.ResponseWriter, r *http.Request) (*supervisor.Guardian, bool) {
	sup, ok := s.lookupSupervisor(w, r)
	if !ok {
		return nil, false
	}
	g, ok := sup.(*supervisor.Guardian)
	if !ok {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, supervisor.ErrNotGuardian.Error()+": "+sup.ID())
		return nil, false
	}
	return g, true
}

// sessionFor returns the session described by the request, with the id
// taken from the path.
func sessionFor(r *http.Request, session *types.Session) *types.Session {
	sess := types.Session{}
	if session != nil {
		sess = *session
	}
	sess.ID = chi.URLParam(r, "sessionID")

	q := r.URL.Query()
	if mode := q.Get("mode"); mode != "" {
		sess.Mode = types.OperatingMode(mode)
	}
	if perm := q.Get("toolPermission"); perm != "" {
		sess.ToolPermission = types.ToolPermission(perm)
	}
	return &sess
}

func isNotFound(err error) bool {
	return errors.Is(err, supervisor.ErrSupervisorNotFound)
}
