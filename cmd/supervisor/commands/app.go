package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/opencode-ai/supervision/internal/config"
	"github.com/opencode-ai/supervision/internal/event"
	"github.com/opencode-ai/supervision/internal/logging"
	"github.com/opencode-ai/supervision/internal/mcp"
	"github.com/opencode-ai/supervision/internal/permission"
	"github.com/opencode-ai/supervision/internal/provider"
	"github.com/opencode-ai/supervision/internal/reqcontext"
	"github.com/opencode-ai/supervision/internal/supervisor"
	"github.com/opencode-ai/supervision/internal/toolgate"
	"github.com/opencode-ai/supervision/pkg/types"
)

// doomLoopThreshold rejects the third identical tool call in a row.
const doomLoopThreshold = 3

// app is the wired supervision stack built from configuration.
type app struct {
	config   *config.Loaded
	bus      *event.Bus
	manager  *supervisor.Manager
	models   *provider.Registry
	mcp      *mcp.Client
	gate     *toolgate.Gate
	checker  *permission.Checker
	selector *reqcontext.Selector
	deps     supervisor.Dependencies
	logger   zerolog.Logger
}

// buildApp loads configuration from dir, connects tool servers, and creates
// the configured supervisors and roster presets.
func buildApp(ctx context.Context, dir string) (*app, error) {
	loaded, err := config.Load(dir)
	if err != nil {
		return nil, err
	}
	cfg := loaded.Config

	a := &app{
		config: loaded,
		bus:    event.NewBus(),
		models: provider.NewRegistry(cfg.Provider),
		mcp:    mcp.NewClient(logging.Component("mcp")),
		logger: logging.Component("supervisor"),
	}
	a.checker = permission.NewChecker(a.bus)

	a.mcp.ConnectAll(ctx, cfg.MCP)
	a.gate = toolgate.New(a.mcp, toolgate.FromConfig(cfg.MCP),
		toolgate.WithConfirmer(a.checker),
		toolgate.WithDoomLoopDetection(doomLoopThreshold),
		toolgate.WithLogger(logging.Component("toolgate")),
	)

	opts, err := managerOptions(cfg, a.logger, a.bus)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	a.manager = supervisor.NewManager(opts...)
	a.deps = supervisor.Dependencies{Models: a.models.ChatModel, Tools: a.gate}

	if cfg.Context != nil {
		a.selector = reqcontext.NewSelector(cfg.Context.Threshold, cfg.Context.TopK)
	} else {
		a.selector = reqcontext.NewSelector(0, 0)
	}

	if err := addSupervisors(ctx, a.manager, cfg.Supervisors, a.deps, a.logger); err != nil {
		a.close(ctx)
		return nil, err
	}
	if err := applyRosters(a.manager, cfg.Sessions, a.logger); err != nil {
		a.close(ctx)
		return nil, err
	}
	return a, nil
}

// close releases supervisors, tool server connections and the bus.
func (a *app) close(ctx context.Context) {
	if a.manager != nil {
		if err := a.manager.Close(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to close supervisors")
		}
	}
	if err := a.mcp.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to close MCP servers")
	}
	a.bus.Close()
}

// managerOptions translates configuration into manager options.
func managerOptions(cfg *types.Config, logger zerolog.Logger, publisher event.Publisher) ([]supervisor.Option, error) {
	opts := []supervisor.Option{
		supervisor.WithLogger(logger),
		supervisor.WithPublisher(publisher),
	}
	if t := cfg.Timeout; t != nil {
		d, err := time.ParseDuration(t.Duration)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout: %w", err)
		}
		fallback := supervisor.ActionAllow
		if t.Fallback == string(supervisor.ActionBlock) {
			fallback = supervisor.ActionBlock
		}
		opts = append(opts, supervisor.WithSupervisorTimeout(d, fallback))
	}
	if cfg.EnforcePermissions {
		opts = append(opts, supervisor.WithPermissionEnforcement())
	}
	if cfg.StrictRegistration {
		opts = append(opts, supervisor.WithStrictRegistration())
	}
	return opts, nil
}

// addSupervisors creates and registers the configured supervisors. A record
// that cannot be built is an error; a supervisor that fails to initialize is
// logged and stays registered.
func addSupervisors(ctx context.Context, m *supervisor.Manager, records []types.SupervisorConfig, deps supervisor.Dependencies, logger zerolog.Logger) error {
	for _, rec := range records {
		s, err := supervisor.NewFromConfig(rec, deps)
		if err != nil {
			return err
		}
		if err := m.AddSupervisor(ctx, s); err != nil {
			logger.Warn().Err(err).Str("supervisor", s.ID()).Msg("Supervisor registered without initialization")
		}
	}
	return nil
}

// applyRosters registers the configured roster presets. Ids that do not
// resolve are skipped unless registration is strict.
func applyRosters(m *supervisor.Manager, sessions map[string][]string, logger zerolog.Logger) error {
	for sessionID, ids := range sessions {
		for _, id := range ids {
			s, ok := m.GetSupervisor(id)
			if !ok {
				logger.Warn().Str("session", sessionID).Str("supervisor", id).Msg("Roster preset names an unknown supervisor")
				continue
			}
			if err := m.RegisterSupervisor(sessionID, s); err != nil {
				return fmt.Errorf("session %s: %w", sessionID, err)
			}
		}
	}
	return nil
}

// reloadGuardianRules pushes the rule phrases of reloaded guardian records
// to the registered guardians with the same id.
func reloadGuardianRules(m *supervisor.Manager, cfg *types.Config, logger zerolog.Logger) {
	reloadRecords(m, cfg.Supervisors, logger)
}

// reloadRecords walks guardian records, descending into collection members.
func reloadRecords(m *supervisor.Manager, records []types.SupervisorConfig, logger zerolog.Logger) {
	for _, rec := range records {
		kind, _ := supervisor.ParseKind(rec.Type)
		switch kind {
		case supervisor.KindCollection:
			members, err := supervisor.CollectionMembers(rec)
			if err != nil {
				logger.Warn().Err(err).Str("supervisor", rec.ID).Msg("Collection members not reloaded")
				continue
			}
			reloadRecords(m, members, logger)
		case supervisor.KindGuardian:
			if rec.ID == "" {
				continue
			}
			if err := m.SetGuardianRules(rec.ID, stringList(rec.Config["rules"])); err != nil {
				logger.Warn().Err(err).Msg("Reloaded guardian rules not applied")
			}
		}
	}
}

// stringList converts a decoded JSON or YAML list to strings.
func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
