package server

import (
	"github.com/go-chi/chi/v5"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	r := s.router

	// Supervisor registry
	r.Route("/supervisor", func(r chi.Router) {
		r.Get("/", s.listSupervisors)
		r.Post("/", s.createSupervisor)
		r.Get("/{supervisorID}", s.getSupervisor)
		r.Delete("/{supervisorID}", s.deleteSupervisor)
	})

	// Session rosters and supervision hooks
	r.Route("/session/{sessionID}", func(r chi.Router) {
		r.Get("/supervisor", s.listSessionSupervisors)
		r.Post("/supervisor", s.registerSessionSupervisor)
		r.Delete("/supervisor/{supervisorID}", s.unregisterSessionSupervisor)

		r.Post("/supervise/request", s.superviseRequest)
		r.Post("/supervise/response", s.superviseResponse)

		// Tools visible to the session
		r.Get("/tools", s.listSessionTools)
		r.Post("/tools/{name}", s.invokeSessionTool)

		// Request context
		r.Post("/context", s.buildContext)
		r.Get("/context/items", s.listContextItems)
		r.Post("/context/items", s.addContextItem)
		r.Delete("/context/items", s.removeContextItem)

		// Forget approvals, repeated-call history and sticky context
		r.Post("/reset", s.resetSession)
	})

	// Guardian operations
	r.Route("/guardian/{supervisorID}", func(r chi.Router) {
		r.Post("/check", s.guardianCheck)
		r.Post("/redact", s.guardianRedact)
		r.Get("/rules", s.getGuardianRules)
		r.Put("/rules", s.setGuardianRules)
		r.Get("/stats", s.getGuardianStats)
	})

	// Tool confirmations
	r.Route("/confirmation", func(r chi.Router) {
		r.Get("/", s.listConfirmations)
		r.Post("/{requestID}", s.respondConfirmation)
	})

	// Tool servers
	r.Get("/mcp", s.getMCPStatus)

	// Event streaming (SSE)
	r.Get("/event", s.allEvents)
}
