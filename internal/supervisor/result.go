package supervisor

import "github.com/opencode-ai/supervision/pkg/types"

// Action is the decision a supervisor returns.
type Action string

const (
	ActionAllow  Action = "allow"
	ActionModify Action = "modify"
	ActionBlock  Action = "block"
)

// ParseAction parses an action name.
func ParseAction(s string) (Action, bool) {
	switch a := Action(s); a {
	case ActionAllow, ActionModify, ActionBlock:
		return a, true
	}
	return "", false
}

// Metadata keys set on composite chain results.
const (
	MetaModificationsApplied = "modificationsApplied"
	MetaSupervisorsProcessed = "supervisorsProcessed"
	MetaConfidence           = "confidence"
)

// RequestResult is the outcome of supervising a request.
type RequestResult struct {
	Action       Action         `json:"action"`
	FinalMessage *types.Message `json:"finalMessage,omitempty"`
	Reasons      []string       `json:"reasons,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// ResponseResult is the outcome of supervising a response.
type ResponseResult struct {
	Action        Action               `json:"action"`
	FinalResponse *types.MessageUpdate `json:"finalResponse,omitempty"`
	Reasons       []string             `json:"reasons,omitempty"`
	Metadata      map[string]any       `json:"metadata,omitempty"`
}

// GuardianDecision is the verdict of a guardian content check.
type GuardianDecision struct {
	Allowed         bool    `json:"allowed"`
	Reason          string  `json:"reason,omitempty"`
	Confidence      float64 `json:"confidence"`
	ModifiedContent string  `json:"modifiedContent,omitempty"`
}

// AllowRequest returns an allow result carrying msg unchanged.
func AllowRequest(msg *types.Message) *RequestResult {
	return &RequestResult{Action: ActionAllow, FinalMessage: msg}
}

// AllowResponse returns an allow result carrying resp unchanged.
func AllowResponse(resp *types.MessageUpdate) *ResponseResult {
	return &ResponseResult{Action: ActionAllow, FinalResponse: resp}
}

// BlockRequest returns a block result with the given reason.
func BlockRequest(reason string, metadata map[string]any) *RequestResult {
	return &RequestResult{Action: ActionBlock, Reasons: []string{reason}, Metadata: metadata}
}

// BlockResponse returns a block result with the given reason.
func BlockResponse(reason string, metadata map[string]any) *ResponseResult {
	return &ResponseResult{Action: ActionBlock, Reasons: []string{reason}, Metadata: metadata}
}
