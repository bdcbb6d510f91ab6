package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opencode-ai/supervision/internal/reqcontext"
	"github.com/opencode-ai/supervision/pkg/types"
)

// BuildContextRequest selects context items for one request.
type BuildContextRequest struct {
	// Query is matched against candidates. When empty, the last user
	// message is used.
	Query    string          `json:"query,omitempty"`
	Messages []types.Message `json:"messages,omitempty"`
	// Candidates are the items the selector may pick from.
	Candidates []reqcontext.Item `json:"candidates,omitempty"`
	// IncludeTools adds the session's visible tools to the candidates.
	IncludeTools bool `json:"includeTools,omitempty"`
}

// buildContext handles POST /session/{sessionID}/context
func (s *Server) buildContext(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req BuildContextRequest
	if !decodeBody(w, r, &req) {
		return
	}

	query := req.Query
	if query == "" {
		query = lastUserText(req.Messages)
	}

	candidates := req.Candidates
	if req.IncludeTools && s.services.Gate != nil {
		tools, err := s.services.Gate.Tools(r.Context(), sessionFor(r, nil))
		if err != nil {
			writeError(w, http.StatusBadGateway, ErrCodeToolError, err.Error())
			return
		}
		for _, t := range tools {
			candidates = append(candidates, reqcontext.Item{
				Type:        reqcontext.ItemTool,
				Name:        t.Tool,
				ServerName:  t.Server,
				Description: t.Description,
			})
		}
	}

	writeJSON(w, http.StatusOK, s.contexts.Build(sessionID, query, candidates))
}

// listContextItems handles GET /session/{sessionID}/context/items
func (s *Server) listContextItems(w http.ResponseWriter, r *http.Request) {
	items := s.services.Contexts.List(chi.URLParam(r, "sessionID"))
	if items == nil {
		items = []reqcontext.SessionItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

// addContextItem handles POST /session/{sessionID}/context/items
func (s *Server) addContextItem(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var item reqcontext.SessionItem
	if !decodeBody(w, r, &item) {
		return
	}

	err := s.services.Contexts.Add(sessionID, item)
	if errors.Is(err, reqcontext.ErrInvalidIncludeMode) || errors.Is(err, reqcontext.ErrInvalidItem) {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.services.Contexts.List(sessionID))
}

// removeContextItem handles DELETE /session/{sessionID}/context/items. The
// body identifies the item by type, serverName and name.
func (s *Server) removeContextItem(w http.ResponseWriter, r *http.Request) {
	var item reqcontext.Item
	if !decodeBody(w, r, &item) {
		return
	}
	if !s.services.Contexts.Remove(chi.URLParam(r, "sessionID"), item) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Context item not found: "+item.Name)
		return
	}
	writeSuccess(w)
}

func lastUserText(messages []types.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == types.RoleUser && messages[i].Content != "" {
			return messages[i].Content
		}
	}
	return ""
}
