package toolgate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/opencode-ai/supervision/internal/permission"
	"github.com/opencode-ai/supervision/pkg/types"
)

// Separator joins server and tool names into a qualified name.
const Separator = "_"

var (
	// ErrMalformedToolName is returned for qualified names without a separator.
	ErrMalformedToolName = errors.New("malformed tool name")
	// ErrToolNotVisible is returned when invoking a tool the session cannot see.
	ErrToolNotVisible = errors.New("tool not visible to session")
	// ErrDoomLoop is returned when a session keeps repeating the same call.
	ErrDoomLoop = errors.New("repeated identical tool call")
)

// Tool describes a tool exposed by a tool server.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// Source is the tool-server layer the gate filters.
type Source interface {
	// ServerTools returns the tools of every connected server.
	ServerTools(ctx context.Context) (map[string][]Tool, error)
	// CallTool runs a tool on a server.
	CallTool(ctx context.Context, server, tool string, args json.RawMessage) (string, error)
}

// Confirmer applies a tool's configured action before it runs.
// permission.Checker implements it.
type Confirmer interface {
	Check(ctx context.Context, req permission.Request, action permission.Action) error
}

// ToolConfig is the availability and confirmation setting of a tool.
// Action overrides RequireConfirmation when set.
type ToolConfig struct {
	Enabled             *bool             `json:"enabled,omitempty"`
	RequireConfirmation bool              `json:"requireConfirmation,omitempty"`
	Action              permission.Action `json:"action,omitempty"`
}

func (tc ToolConfig) action() permission.Action {
	switch {
	case tc.Action != "":
		return tc.Action
	case tc.RequireConfirmation:
		return permission.ActionAsk
	}
	return permission.ActionAllow
}

// ServerConfig configures one tool server. Tool keys are tool-name
// patterns; the most specific match applies.
type ServerConfig struct {
	Enabled *bool                 `json:"enabled,omitempty"`
	Tools   map[string]ToolConfig `json:"tools,omitempty"`
}

// VisibleTool is a tool the model may call.
type VisibleTool struct {
	QualifiedName       string          `json:"name"`
	Server              string          `json:"server"`
	Tool                string          `json:"tool"`
	Description         string          `json:"description,omitempty"`
	InputSchema         json.RawMessage `json:"inputSchema,omitempty"`
	RequireConfirmation bool            `json:"requireConfirmation,omitempty"`

	Action permission.Action `json:"action"`
}

// Gate computes the tool list visible to a session and runs tools by
// qualified name.
type Gate struct {
	source    Source
	servers   map[string]ServerConfig
	confirmer Confirmer
	loops     *permission.DoomLoopDetector
	logger    zerolog.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithConfirmer routes Invoke through c for tools whose action is not allow.
// Ask actions are skipped in autonomous sessions.
func WithConfirmer(c Confirmer) Option {
	return func(g *Gate) { g.confirmer = c }
}

// WithDoomLoopDetection rejects a call repeated threshold times in a row.
func WithDoomLoopDetection(threshold int) Option {
	return func(g *Gate) { g.loops = permission.NewDoomLoopDetector(threshold) }
}

// WithLogger sets the gate's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(g *Gate) { g.logger = logger }
}

// New creates a gate over source. Servers without configuration are enabled
// with all tools enabled and no confirmation.
func New(source Source, servers map[string]ServerConfig, opts ...Option) *Gate {
	if servers == nil {
		servers = map[string]ServerConfig{}
	}
	g := &Gate{
		source:  source,
		servers: servers,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// FromConfig converts MCP configuration into gate server settings.
func FromConfig(cfg map[string]types.MCPConfig) map[string]ServerConfig {
	servers := make(map[string]ServerConfig, len(cfg))
	for name, mc := range cfg {
		sc := ServerConfig{Enabled: mc.Enabled}
		if len(mc.Tools) > 0 {
			sc.Tools = make(map[string]ToolConfig, len(mc.Tools))
			for pattern, tc := range mc.Tools {
				sc.Tools[pattern] = ToolConfig{
					Enabled:             tc.Enabled,
					RequireConfirmation: tc.RequireConfirmation,
					Action:              permission.Action(tc.Action),
				}
			}
		}
		servers[name] = sc
	}
	return servers
}

// QualifiedName joins a server and tool name.
func QualifiedName(server, tool string) string {
	return server + Separator + tool
}

// ParseQualifiedName splits a qualified name on the first separator.
func ParseQualifiedName(name string) (server, tool string, err error) {
	server, tool, ok := strings.Cut(name, Separator)
	if !ok || server == "" || tool == "" {
		return "", "", fmt.Errorf("%w: %q", ErrMalformedToolName, name)
	}
	return server, tool, nil
}

// Tools returns the tools visible to session, sorted by qualified name.
func (g *Gate) Tools(ctx context.Context, session *types.Session) ([]VisibleTool, error) {
	perServer, err := g.source.ServerTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	return g.Filter(session, perServer), nil
}

// Filter applies server/tool enablement and, for autonomous sessions, the
// session's tool permission.
func (g *Gate) Filter(session *types.Session, perServer map[string][]Tool) []VisibleTool {
	var available []VisibleTool
	for server, tools := range perServer {
		sc := g.servers[server]
		if sc.Enabled != nil && !*sc.Enabled {
			continue
		}
		for _, t := range tools {
			tc := sc.toolConfig(t.Name)
			if tc.Enabled != nil && !*tc.Enabled {
				continue
			}
			action := tc.action()
			available = append(available, VisibleTool{
				QualifiedName:       QualifiedName(server, t.Name),
				Server:              server,
				Tool:                t.Name,
				Description:         t.Description,
				InputSchema:         t.InputSchema,
				RequireConfirmation: action == permission.ActionAsk,
				Action:              action,
			})
		}
	}

	if session.IsAutonomous() {
		available = filterAutonomous(available, session.EffectiveToolPermission())
	}

	sort.Slice(available, func(i, j int) bool { return available[i].QualifiedName < available[j].QualifiedName })
	return available
}

func filterAutonomous(tools []VisibleTool, perm types.ToolPermission) []VisibleTool {
	switch perm {
	case types.ToolPermissionAlways:
		return nil
	case types.ToolPermissionNever:
		return tools
	}

	out := tools[:0]
	for _, t := range tools {
		if !t.RequireConfirmation {
			out = append(out, t)
		}
	}
	return out
}

func (sc ServerConfig) toolConfig(tool string) ToolConfig {
	if key, ok := permission.BestMatch(sc.Tools, tool); ok {
		return sc.Tools[key]
	}
	return ToolConfig{}
}

// Lookup finds a visible tool by qualified name.
func (g *Gate) Lookup(ctx context.Context, session *types.Session, qualifiedName string) (*VisibleTool, error) {
	if _, _, err := ParseQualifiedName(qualifiedName); err != nil {
		return nil, err
	}

	tools, err := g.Tools(ctx, session)
	if err != nil {
		return nil, err
	}
	for i := range tools {
		if tools[i].QualifiedName == qualifiedName {
			return &tools[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrToolNotVisible, qualifiedName)
}

// Invoke runs a visible tool. Denied tools are rejected. In non-autonomous
// sessions tools that require confirmation are confirmed first when a
// confirmer is configured.
func (g *Gate) Invoke(ctx context.Context, session *types.Session, qualifiedName string, args json.RawMessage) (string, error) {
	t, err := g.Lookup(ctx, session, qualifiedName)
	if err != nil {
		return "", err
	}

	sessionID := ""
	if session != nil {
		sessionID = session.ID
	}

	if g.loops != nil && g.loops.Observe(sessionID, qualifiedName, args) {
		g.logger.Warn().Str("session", sessionID).Str("tool", qualifiedName).Msg("Repeated identical tool call")
		return "", fmt.Errorf("%w: %s", ErrDoomLoop, qualifiedName)
	}

	action := t.Action
	if action == permission.ActionAsk && (session.IsAutonomous() || g.confirmer == nil) {
		action = permission.ActionAllow
	}
	if action != permission.ActionAllow {
		req := permission.Request{
			SessionID: sessionID,
			Tool:      qualifiedName,
			Title:     fmt.Sprintf("Run %s on %s", t.Tool, t.Server),
			Metadata:  map[string]any{"args": string(args)},
		}
		if g.confirmer == nil {
			return "", permission.Denied(req)
		}
		if err := g.confirmer.Check(ctx, req, action); err != nil {
			return "", err
		}
	}

	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	g.logger.Debug().Str("session", sessionID).Str("tool", qualifiedName).Msg("Invoking tool")
	out, err := g.source.CallTool(ctx, t.Server, t.Tool, args)
	if err != nil {
		return "", fmt.Errorf("tool %s: %w", qualifiedName, err)
	}
	return out, nil
}

// ResetSession forgets the repeated-call history of a session.
func (g *Gate) ResetSession(sessionID string) {
	if g.loops != nil {
		g.loops.Clear(sessionID)
	}
}

// ToolInfos returns eino tool descriptors for the visible tools whose
// qualified names match one of the allow patterns.
func (g *Gate) ToolInfos(ctx context.Context, session *types.Session, allow []string) ([]*schema.ToolInfo, error) {
	tools, err := g.Tools(ctx, session)
	if err != nil {
		return nil, err
	}

	var infos []*schema.ToolInfo
	for _, t := range tools {
		if !permission.MatchAny(allow, t.QualifiedName) {
			continue
		}
		infos = append(infos, &schema.ToolInfo{
			Name:        t.QualifiedName,
			Desc:        t.Description,
			ParamsOneOf: schema.NewParamsOneOfByParams(ParseInputSchema(t.InputSchema)),
		})
	}
	return infos, nil
}
