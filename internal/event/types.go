package event

// Type identifies the kind of supervision event.
type Type string

const (
	SupervisorAdded   Type = "supervisor.added"
	SupervisorRemoved Type = "supervisor.removed"
	SupervisorFailed  Type = "supervisor.failed"
	RequestBlocked    Type = "request.blocked"
	RequestModified   Type = "request.modified"
	ResponseBlocked   Type = "response.blocked"
	ResponseModified  Type = "response.modified"
	RulesUpdated      Type = "guardian.rules.updated"

	ConfirmationRequired Type = "tool.confirmation.required"
	ConfirmationResolved Type = "tool.confirmation.resolved"
)

// Phase values used in SupervisorFailed events.
const (
	PhaseInitialize = "initialize"
	PhaseCleanup    = "cleanup"
	PhaseRequest    = "request"
	PhaseResponse   = "response"
)

// Event is a typed supervision notification.
type Event struct {
	ID           string         `json:"id"`
	Type         Type           `json:"type"`
	Time         int64          `json:"time"`
	SessionID    string         `json:"sessionID,omitempty"`
	SupervisorID string         `json:"supervisorID,omitempty"`
	Supervisor   string         `json:"supervisor,omitempty"` // display name
	Kind         string         `json:"kind,omitempty"`
	Phase        string         `json:"phase,omitempty"`
	Reasons      []string       `json:"reasons,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Diff         string         `json:"diff,omitempty"` // unified diff for response.modified
	Error        string         `json:"error,omitempty"`

	// Tool confirmation
	RequestID string `json:"requestID,omitempty"`
	Tool      string `json:"tool,omitempty"`
	Title     string `json:"title,omitempty"`
	Granted   *bool  `json:"granted,omitempty"`
}
