// Package types provides the core data types shared by the supervision layer
// and its hosts.
package types

// OperatingMode selects how a session executes tool calls.
type OperatingMode string

const (
	// ModeChat asks the user before running tools that need confirmation.
	ModeChat OperatingMode = "chat"
	// ModeAutonomous runs tools without per-call confirmation, subject to
	// the session's ToolPermission.
	ModeAutonomous OperatingMode = "autonomous"
)

// ToolPermission is the autonomous-mode confirmation policy of a session.
type ToolPermission string

const (
	// ToolPermissionAlways requires confirmation for every tool.
	ToolPermissionAlways ToolPermission = "always"
	// ToolPermissionNever requires confirmation for no tool.
	ToolPermissionNever ToolPermission = "never"
	// ToolPermissionTool defers to each tool's own configuration.
	ToolPermissionTool ToolPermission = "tool"
)

// Session is the chat session a request/response pair belongs to.
type Session struct {
	ID             string         `json:"id"`
	Title          string         `json:"title,omitempty"`
	Agent          string         `json:"agent,omitempty"`
	Mode           OperatingMode  `json:"mode,omitempty"`
	ToolPermission ToolPermission `json:"toolPermission,omitempty"`
}

// IsAutonomous reports whether the session runs in autonomous mode.
func (s *Session) IsAutonomous() bool {
	return s != nil && s.Mode == ModeAutonomous
}

// EffectiveToolPermission returns the tool permission, defaulting to "tool".
func (s *Session) EffectiveToolPermission() ToolPermission {
	if s == nil || s.ToolPermission == "" {
		return ToolPermissionTool
	}
	return s.ToolPermission
}
