package types

// Config represents the supervision configuration.
type Config struct {
	// Schema reference (for editor support)
	Schema string `json:"$schema,omitempty" yaml:"$schema,omitempty"`

	// Log level (DEBUG|INFO|WARN|ERROR)
	LogLevel string `json:"logLevel,omitempty" yaml:"logLevel,omitempty"`

	// Supervisor records turned into instances at startup
	Supervisors []SupervisorConfig `json:"supervisors,omitempty" yaml:"supervisors,omitempty"`

	// Roster presets: session ID -> ordered supervisor IDs
	Sessions map[string][]string `json:"sessions,omitempty" yaml:"sessions,omitempty"`

	// MCP server configs
	MCP map[string]MCPConfig `json:"mcp,omitempty" yaml:"mcp,omitempty"`

	// Provider configs for agent-backed supervisors
	Provider map[string]ProviderConfig `json:"provider,omitempty" yaml:"provider,omitempty"`

	// Per-supervisor call bound
	Timeout *TimeoutConfig `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// Ignore modifications from supervisors lacking the permission
	EnforcePermissions bool `json:"enforcePermissions,omitempty" yaml:"enforcePermissions,omitempty"`

	// Reject roster registration of unknown supervisor IDs
	StrictRegistration bool `json:"strictRegistration,omitempty" yaml:"strictRegistration,omitempty"`

	// Request context selection
	Context *ContextConfig `json:"context,omitempty" yaml:"context,omitempty"`
}

// SupervisorConfig is a persisted supervisor record.
type SupervisorConfig struct {
	Type        string         `json:"type" yaml:"type"` // "guardian"|"agent"|"passthrough"|"collection"
	ID          string         `json:"id,omitempty" yaml:"id,omitempty"`
	Name        string         `json:"name,omitempty" yaml:"name,omitempty"`
	Permissions []string       `json:"permissions,omitempty" yaml:"permissions,omitempty"`
	Config      map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

// MCPConfig holds MCP server configuration.
type MCPConfig struct {
	Type        string                   `json:"type,omitempty" yaml:"type,omitempty"` // "local"|"remote"
	Command     []string                 `json:"command,omitempty" yaml:"command,omitempty"`
	URL         string                   `json:"url,omitempty" yaml:"url,omitempty"`
	Headers     map[string]string        `json:"headers,omitempty" yaml:"headers,omitempty"`
	Environment map[string]string        `json:"environment,omitempty" yaml:"environment,omitempty"`
	Enabled     *bool                    `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Timeout     int                      `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Tools       map[string]MCPToolConfig `json:"tools,omitempty" yaml:"tools,omitempty"` // pattern -> tool config
}

// MCPToolConfig holds per-tool availability and confirmation settings.
type MCPToolConfig struct {
	Enabled             *bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	RequireConfirmation bool  `json:"requireConfirmation,omitempty" yaml:"requireConfirmation,omitempty"`

	// "allow"|"deny"|"ask"; overrides requireConfirmation
	Action string `json:"action,omitempty" yaml:"action,omitempty"`
}

// ProviderConfig holds configuration for a specific provider.
type ProviderConfig struct {
	APIKey    string `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	BaseURL   string `json:"baseURL,omitempty" yaml:"baseURL,omitempty"`
	Model     string `json:"model,omitempty" yaml:"model,omitempty"`
	MaxTokens int    `json:"maxTokens,omitempty" yaml:"maxTokens,omitempty"`
	Disable   bool   `json:"disable,omitempty" yaml:"disable,omitempty"`
}

// TimeoutConfig bounds supervisor calls.
type TimeoutConfig struct {
	Duration string `json:"duration" yaml:"duration"`                     // e.g. "30s"
	Fallback string `json:"fallback,omitempty" yaml:"fallback,omitempty"` // "allow"|"block"
}

// ContextConfig tunes agent-mode context selection.
type ContextConfig struct {
	Threshold float64 `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	TopK      int     `json:"topK,omitempty" yaml:"topK,omitempty"`
}
