package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/opencode-ai/supervision/internal/toolgate"
	"github.com/opencode-ai/supervision/pkg/types"
)

const defaultTimeout = 5 * time.Second

// Client manages MCP server connections using the official MCP SDK. It is
// the tool source behind the tool permission gate.
type Client struct {
	mu        sync.RWMutex
	servers   map[string]*mcpServer
	sdkClient *sdkmcp.Client
	logger    zerolog.Logger
}

// mcpServer represents a connected MCP server.
type mcpServer struct {
	name       string
	config     *Config
	session    *sdkmcp.ClientSession
	tools      []toolgate.Tool
	status     Status
	error      string
	serverInfo *ServerInfo
}

// NewClient creates a new MCP client.
func NewClient(logger zerolog.Logger) *Client {
	sdkClient := sdkmcp.NewClient(&sdkmcp.Implementation{
		Name:    "supervision",
		Version: "1.0.0",
	}, nil)

	return &Client{
		servers:   make(map[string]*mcpServer),
		sdkClient: sdkClient,
		logger:    logger,
	}
}

// ConnectAll adds every configured server. Connection failures are logged
// and recorded in the server status; they do not stop the others.
func (c *Client) ConnectAll(ctx context.Context, servers map[string]types.MCPConfig) {
	names := make([]string, 0, len(servers))
	for name := range servers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := c.AddServer(ctx, name, ConfigFrom(servers[name])); err != nil {
			c.logger.Warn().Err(err).Str("server", name).Msg("Failed to connect MCP server")
			continue
		}
		c.logger.Info().Str("server", name).Msg("MCP server added")
	}
}

// AddServer adds and connects to an MCP server.
func (c *Client) AddServer(ctx context.Context, name string, config *Config) error {
	if err := c.reserve(name); err != nil {
		return err
	}

	if !config.Enabled {
		c.store(&mcpServer{name: name, config: config, status: StatusDisabled})
		return nil
	}

	server, err := c.connectServer(ctx, name, config)
	if err != nil {
		c.store(&mcpServer{name: name, config: config, status: StatusFailed, error: err.Error()})
		return err
	}
	c.store(server)
	return nil
}

// Attach connects a server over a caller-supplied transport, such as an
// in-process pipe.
func (c *Client) Attach(ctx context.Context, name string, transport sdkmcp.Transport) error {
	if err := c.reserve(name); err != nil {
		return err
	}

	config := &Config{Enabled: true}
	server := &mcpServer{name: name, config: config, status: StatusConnecting}
	session, err := c.connectWithTransport(ctx, transport, defaultTimeout, server)
	if err != nil {
		c.store(&mcpServer{name: name, config: config, status: StatusFailed, error: err.Error()})
		return err
	}
	server.session = session
	server.status = StatusConnected
	c.store(server)
	return nil
}

// reserve claims a server name so concurrent adds of the same name fail.
func (c *Client) reserve(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.servers[name]; ok {
		return fmt.Errorf("server already exists: %s", name)
	}
	c.servers[name] = &mcpServer{name: name, status: StatusConnecting}
	return nil
}

func (c *Client) store(server *mcpServer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.servers[server.name] = server
}

// connectServer establishes connection to an MCP server using the SDK.
func (c *Client) connectServer(ctx context.Context, name string, config *Config) (*mcpServer, error) {
	timeout := time.Duration(config.Timeout) * time.Millisecond
	if timeout == 0 {
		timeout = defaultTimeout
	}

	server := &mcpServer{
		name:   name,
		config: config,
		status: StatusConnecting,
	}

	switch config.Type {
	case TransportTypeRemote:
		if config.URL == "" {
			return nil, fmt.Errorf("empty url")
		}
		httpClient := httpClientWithHeaders(nil, config.Headers)
		transports := []struct {
			name      string
			transport sdkmcp.Transport
		}{
			{name: "streamable", transport: &sdkmcp.StreamableClientTransport{Endpoint: config.URL, HTTPClient: httpClient}},
			{name: "sse", transport: &sdkmcp.SSEClientTransport{Endpoint: config.URL, HTTPClient: httpClient}},
		}

		var lastErr error
		for _, candidate := range transports {
			session, err := c.connectWithTransport(ctx, candidate.transport, timeout, server)
			if err != nil {
				lastErr = fmt.Errorf("%s transport: %w", candidate.name, err)
				continue
			}
			server.session = session
			server.status = StatusConnected
			return server, nil
		}
		return nil, lastErr

	case TransportTypeLocal, TransportTypeStdio:
		if len(config.Command) == 0 {
			return nil, fmt.Errorf("empty command")
		}

		cmd := exec.Command(config.Command[0], config.Command[1:]...)
		cmd.Env = os.Environ()
		for k, v := range config.Environment {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
		}

		session, err := c.connectWithTransport(ctx, &sdkmcp.CommandTransport{Command: cmd}, timeout, server)
		if err != nil {
			return nil, err
		}
		server.session = session
		server.status = StatusConnected
		return server, nil

	default:
		return nil, fmt.Errorf("unknown transport type: %s", config.Type)
	}
}

func (c *Client) connectWithTransport(ctx context.Context, transport sdkmcp.Transport, timeout time.Duration, server *mcpServer) (*sdkmcp.ClientSession, error) {
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	session, err := c.sdkClient.Connect(connectCtx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	if initResult := session.InitializeResult(); initResult != nil && initResult.ServerInfo != nil {
		server.serverInfo = &ServerInfo{
			Name:    initResult.ServerInfo.Name,
			Version: initResult.ServerInfo.Version,
		}
	}

	listCtx, listCancel := context.WithTimeout(ctx, timeout)
	defer listCancel()
	server.session = session
	if err := server.listTools(listCtx); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	return session, nil
}

func httpClientWithHeaders(base *http.Client, headers map[string]string) *http.Client {
	if base == nil {
		base = &http.Client{}
	}

	// Copy to avoid mutating caller-provided client
	client := *base
	client.Timeout = 0

	if len(headers) == 0 {
		return &client
	}

	transport := client.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	client.Transport = &headerRoundTripper{
		headers: headers,
		next:    transport,
	}

	return &client
}

type headerRoundTripper struct {
	headers map[string]string
	next    http.RoundTripper
}

func (h *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	cloned := req.Clone(req.Context())
	for k, v := range h.headers {
		cloned.Header.Set(k, v)
	}
	return h.next.RoundTrip(cloned)
}

// listTools lists available tools from the server using the SDK.
func (s *mcpServer) listTools(ctx context.Context) error {
	if s.session == nil {
		return fmt.Errorf("not connected")
	}

	result, err := s.session.ListTools(ctx, nil)
	if err != nil {
		return err
	}

	s.tools = make([]toolgate.Tool, len(result.Tools))
	for i, t := range result.Tools {
		s.tools[i] = fromSDKTool(t)
	}
	return nil
}

// ServerTools returns the tools of every connected server, keyed by server
// name. Tool names are sanitized for use in qualified names.
func (c *Client) ServerTools(ctx context.Context) (map[string][]toolgate.Tool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string][]toolgate.Tool, len(c.servers))
	for name, server := range c.servers {
		if server.status != StatusConnected {
			continue
		}
		tools := make([]toolgate.Tool, len(server.tools))
		for i, t := range server.tools {
			t.Name = sanitizeToolName(t.Name)
			tools[i] = t
		}
		out[name] = tools
	}
	return out, nil
}

// CallTool executes a tool on the named server. The tool name may be the
// sanitized form returned by ServerTools.
func (c *Client) CallTool(ctx context.Context, serverName, toolName string, args json.RawMessage) (string, error) {
	c.mu.RLock()
	server, ok := c.servers[serverName]
	c.mu.RUnlock()

	if !ok || server.status != StatusConnected || server.session == nil {
		return "", fmt.Errorf("server not connected: %s", serverName)
	}

	originalToolName := toolName
	for _, t := range server.tools {
		if sanitizeToolName(t.Name) == toolName {
			originalToolName = t.Name
			break
		}
	}

	var argsMap map[string]any
	if len(args) > 0 {
		if err := json.Unmarshal(args, &argsMap); err != nil {
			return "", fmt.Errorf("failed to parse arguments: %w", err)
		}
	}

	result, err := server.session.CallTool(ctx, &sdkmcp.CallToolParams{
		Name:      originalToolName,
		Arguments: argsMap,
	})
	if err != nil {
		return "", err
	}

	if result.IsError {
		for _, content := range result.Content {
			if textContent, ok := content.(*sdkmcp.TextContent); ok {
				return "", fmt.Errorf("tool error: %s", textContent.Text)
			}
		}
		return "", fmt.Errorf("tool execution failed")
	}

	var output strings.Builder
	for _, content := range result.Content {
		if textContent, ok := content.(*sdkmcp.TextContent); ok {
			output.WriteString(textContent.Text)
		}
	}
	return output.String(), nil
}

// Status returns status of all MCP servers sorted by name.
func (c *Client) Status() []ServerStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := make([]ServerStatus, 0, len(c.servers))
	for name, server := range c.servers {
		status = append(status, server.statusOf(name))
	}
	sort.Slice(status, func(i, j int) bool { return status[i].Name < status[j].Name })
	return status
}

// GetServer returns information about a specific server.
func (c *Client) GetServer(name string) (*ServerStatus, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	server, ok := c.servers[name]
	if !ok {
		return nil, fmt.Errorf("server not found: %s", name)
	}
	s := server.statusOf(name)
	return &s, nil
}

func (s *mcpServer) statusOf(name string) ServerStatus {
	st := ServerStatus{
		Name:       name,
		Status:     s.status,
		ToolCount:  len(s.tools),
		ServerInfo: s.serverInfo,
	}
	if s.error != "" {
		msg := s.error
		st.Error = &msg
	}
	return st
}

// RemoveServer removes and disconnects a server.
func (c *Client) RemoveServer(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	server, ok := c.servers[name]
	if !ok {
		return fmt.Errorf("server not found: %s", name)
	}

	if server.session != nil {
		server.session.Close()
	}

	delete(c.servers, name)
	return nil
}

// Close disconnects all servers.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, server := range c.servers {
		if server.session != nil {
			server.session.Close()
		}
	}

	c.servers = make(map[string]*mcpServer)
	return nil
}

// ServerCount returns the number of configured servers.
func (c *Client) ServerCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.servers)
}

// ConnectedCount returns the number of connected servers.
func (c *Client) ConnectedCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	count := 0
	for _, server := range c.servers {
		if server.status == StatusConnected {
			count++
		}
	}
	return count
}

// sanitizeToolName replaces non-alphanumeric chars with underscore.
func sanitizeToolName(name string) string {
	var result strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			result.WriteRune(r)
		} else {
			result.WriteRune('_')
		}
	}
	return result.String()
}
