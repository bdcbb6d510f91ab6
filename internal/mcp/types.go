package mcp

import (
	"encoding/json"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/opencode-ai/supervision/internal/toolgate"
	"github.com/opencode-ai/supervision/pkg/types"
)

// Config defines MCP server configuration.
type Config struct {
	Enabled     bool              `json:"enabled"`
	Type        TransportType     `json:"type"`
	URL         string            `json:"url,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Command     []string          `json:"command,omitempty"`
	Environment map[string]string `json:"environment,omitempty"`
	Timeout     int               `json:"timeout,omitempty"` // milliseconds
}

// TransportType represents the type of MCP transport.
type TransportType string

const (
	TransportTypeRemote TransportType = "remote"
	TransportTypeLocal  TransportType = "local"
	TransportTypeStdio  TransportType = "stdio"
)

// ConfigFrom converts a configuration record. Servers are enabled unless
// the record says otherwise; the transport defaults to remote when a URL is
// set and local otherwise.
func ConfigFrom(mc types.MCPConfig) *Config {
	cfg := &Config{
		Enabled:     mc.Enabled == nil || *mc.Enabled,
		Type:        TransportType(mc.Type),
		URL:         mc.URL,
		Headers:     mc.Headers,
		Command:     mc.Command,
		Environment: mc.Environment,
		Timeout:     mc.Timeout,
	}
	if cfg.Type == "" {
		if cfg.URL != "" {
			cfg.Type = TransportTypeRemote
		} else {
			cfg.Type = TransportTypeLocal
		}
	}
	return cfg
}

// ServerStatus represents the status of an MCP server.
type ServerStatus struct {
	Name       string      `json:"name"`
	Status     Status      `json:"status"`
	ToolCount  int         `json:"toolCount"`
	Error      *string     `json:"error,omitempty"`
	ServerInfo *ServerInfo `json:"serverInfo,omitempty"`
}

// Status represents the connection status.
type Status string

const (
	StatusConnected  Status = "connected"
	StatusDisabled   Status = "disabled"
	StatusFailed     Status = "failed"
	StatusConnecting Status = "connecting"
)

// ServerInfo represents information about an MCP server.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// fromSDKTool converts an SDK tool description.
func fromSDKTool(t *sdkmcp.Tool) toolgate.Tool {
	tool := toolgate.Tool{Name: t.Name, Description: t.Description}
	if t.InputSchema != nil {
		if data, err := json.Marshal(t.InputSchema); err == nil {
			tool.InputSchema = data
		}
	}
	return tool
}
