// Package server exposes the supervision layer over HTTP.
//
// The server is a chi router with request-id, recovery and CORS middleware.
// Handlers translate JSON bodies into calls on the supervision manager, the
// tool gate, the confirmation checker and the request-context store, and
// report failures with a uniform envelope:
//
//	{"error": {"code": "NOT_FOUND", "message": "Supervisor not found: guard"}}
//
// # API Endpoints
//
//   - /supervisor: list, create (from a configuration record), get, delete
//   - /session/{id}/supervisor: the session roster
//   - /session/{id}/supervise/request: the request hook; supervisor errors
//     fail the call with SUPERVISOR_ERROR
//   - /session/{id}/supervise/response: the response hook; never fails on
//     supervisor errors
//   - /session/{id}/tools: tools visible to the session and tool invocation
//   - /session/{id}/context: request context assembly and sticky items
//   - /session/{id}/reset: forget tool approvals, repeated-call history and
//     sticky context items of the session
//   - /guardian/{id}/*: check, redact, rules and stats of a guardian
//   - /confirmation: pending tool confirmations and their answers
//   - /mcp: tool server status
//   - /event: Server-Sent Events stream of supervision events
//
// Session mode and tool permission for the tool routes come from the mode
// and toolPermission query parameters; the supervise routes also accept a
// session object in the body.
//
// # Event Streaming
//
// GET /event subscribes to the event bus and writes each event as an SSE
// message whose data is the JSON event. The first message has type
// server.connected. A heartbeat comment is sent every 30 seconds. The
// sessionID query parameter drops events of other sessions; type restricts
// the event types.
package server
