package supervisor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/opencode-ai/supervision/internal/event"
	"github.com/opencode-ai/supervision/pkg/types"
)

// Manager owns the supervisor registry and the per-session rosters, and runs
// the request and response chains.
type Manager struct {
	mu       sync.RWMutex
	registry map[string]Supervisor
	rosters  map[string][]string
	strict   bool

	runner runner
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for lifecycle and fail-open logging.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) {
		m.runner.logger = logger
	}
}

// WithPublisher sets the receiver of supervision events.
func WithPublisher(p event.Publisher) Option {
	return func(m *Manager) {
		if p != nil {
			m.runner.publisher = p
		}
	}
}

// WithSupervisorTimeout bounds every supervisor call. When a call times out
// the fallback action applies: ActionAllow skips the step, ActionBlock ends
// the chain with a block result.
func WithSupervisorTimeout(d time.Duration, fallback Action) Option {
	return func(m *Manager) {
		m.runner.timeout = d
		if fallback == ActionBlock {
			m.runner.fallback = ActionBlock
		} else {
			m.runner.fallback = ActionAllow
		}
	}
}

// WithPermissionEnforcement makes the chains ignore modify results from
// supervisors that lack a message-modify permission.
func WithPermissionEnforcement() Option {
	return func(m *Manager) {
		m.runner.enforce = true
	}
}

// WithStrictRegistration makes RegisterSupervisor reject ids that are not in
// the registry.
func WithStrictRegistration() Option {
	return func(m *Manager) {
		m.strict = true
	}
}

// NewManager creates an empty manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		registry: make(map[string]Supervisor),
		rosters:  make(map[string][]string),
		runner:   newRunner(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddSupervisor registers s and initializes it. If initialization fails the
// supervisor stays in the registry and the error is returned. A different
// instance already registered under the same id is replaced and cleaned up.
func (m *Manager) AddSupervisor(ctx context.Context, s Supervisor) error {
	m.mu.Lock()
	replaced, ok := m.registry[s.ID()]
	m.registry[s.ID()] = s
	m.mu.Unlock()

	if ok && replaced != s {
		m.runner.logger.Warn().Str("supervisor", s.ID()).Msg("Replacing registered supervisor")
		if err := replaced.Cleanup(ctx); err != nil {
			m.runner.logger.Error().Err(err).Str("supervisor", s.ID()).Msg("Supervisor cleanup failed")
			m.runner.failed(replaced, "", event.PhaseCleanup, err)
		}
	}

	if err := s.Initialize(ctx); err != nil {
		m.runner.logger.Error().Err(err).Str("supervisor", s.ID()).Msg("Failed to initialize supervisor")
		m.runner.failed(s, "", event.PhaseInitialize, err)
		return fmt.Errorf("initialize supervisor %s: %w", s.ID(), err)
	}

	m.runner.logger.Info().
		Str("supervisor", s.ID()).
		Str("name", s.Name()).
		Str("kind", string(s.Kind())).
		Msg("Supervisor added")
	m.runner.publisher.Publish(event.Event{
		Type:         event.SupervisorAdded,
		SupervisorID: s.ID(),
		Supervisor:   s.Name(),
		Kind:         string(s.Kind()),
	})
	return nil
}

// RemoveSupervisor cleans up the supervisor, deletes it from the registry and
// purges its id from every roster. Rosters left empty are deleted. Removing
// an unknown id is a no-op.
func (m *Manager) RemoveSupervisor(ctx context.Context, id string) error {
	m.mu.RLock()
	s, ok := m.registry[id]
	m.mu.RUnlock()
	if !ok {
		return nil
	}

	if err := s.Cleanup(ctx); err != nil {
		m.runner.logger.Error().Err(err).Str("supervisor", id).Msg("Supervisor cleanup failed")
		m.runner.failed(s, "", event.PhaseCleanup, err)
	}

	m.mu.Lock()
	delete(m.registry, id)
	for sessionID, ids := range m.rosters {
		ids = without(ids, id)
		if len(ids) == 0 {
			delete(m.rosters, sessionID)
		} else {
			m.rosters[sessionID] = ids
		}
	}
	m.mu.Unlock()

	m.runner.logger.Info().Str("supervisor", id).Msg("Supervisor removed")
	m.runner.publisher.Publish(event.Event{
		Type:         event.SupervisorRemoved,
		SupervisorID: id,
		Supervisor:   s.Name(),
		Kind:         string(s.Kind()),
	})
	return nil
}

// GetSupervisor looks up a supervisor by id.
func (m *Manager) GetSupervisor(id string) (Supervisor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.registry[id]
	return s, ok
}

// GetAllSupervisors returns every registered supervisor sorted by id.
func (m *Manager) GetAllSupervisors() []Supervisor {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]Supervisor, 0, len(m.registry))
	for _, s := range m.registry {
		list = append(list, s)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID() < list[j].ID() })
	return list
}

// RegisterSupervisor adds s to the session's roster. The registry is not
// consulted unless the manager uses strict registration.
func (m *Manager) RegisterSupervisor(sessionID string, s Supervisor) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := s.ID()
	if m.strict {
		if _, ok := m.registry[id]; !ok {
			return fmt.Errorf("%w: %s", ErrSupervisorNotFound, id)
		}
	}

	ids := m.rosters[sessionID]
	for _, existing := range ids {
		if existing == id {
			return nil
		}
	}
	m.rosters[sessionID] = append(ids, id)
	return nil
}

// UnregisterSupervisor removes id from the session's roster, deleting the
// roster when it becomes empty.
func (m *Manager) UnregisterSupervisor(sessionID, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids, ok := m.rosters[sessionID]
	if !ok {
		return
	}
	ids = without(ids, id)
	if len(ids) == 0 {
		delete(m.rosters, sessionID)
		return
	}
	m.rosters[sessionID] = ids
}

// GetSessionSupervisors resolves the session's roster against the registry in
// insertion order. Ids with no registry entry are skipped.
func (m *Manager) GetSessionSupervisors(sessionID string) []Supervisor {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.rosters[sessionID]
	list := make([]Supervisor, 0, len(ids))
	for _, id := range ids {
		if s, ok := m.registry[id]; ok {
			list = append(list, s)
		}
	}
	return list
}

// SessionRoster returns a copy of the raw roster ids, including ids that do
// not resolve. The second result is false when the session has no roster.
func (m *Manager) SessionRoster(sessionID string) ([]string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids, ok := m.rosters[sessionID]
	return append([]string(nil), ids...), ok
}

// ProcessRequest runs the session's request chain. An error from any
// supervisor aborts the chain and is returned.
func (m *Manager) ProcessRequest(ctx context.Context, session *types.Session, messages []types.Message) (*RequestResult, error) {
	chain := m.GetSessionSupervisors(sessionIDOf(session))
	return m.runner.request(ctx, chain, session, messages)
}

// ProcessResponse runs the session's response chain. Supervisor errors are
// logged and skipped; the returned error is always nil and kept for
// symmetry with ProcessRequest.
func (m *Manager) ProcessResponse(ctx context.Context, session *types.Session, response *types.MessageUpdate) (*ResponseResult, error) {
	chain := m.GetSessionSupervisors(sessionIDOf(session))
	return m.runner.response(ctx, chain, session, response), nil
}

// SetGuardianRules replaces the rule phrases of a guardian and publishes
// RulesUpdated. The guardian is looked up in the registry first, then among
// the members of registered collections.
func (m *Manager) SetGuardianRules(id string, rules []string) error {
	s, ok := m.GetSupervisor(id)
	if !ok {
		s, ok = findMember(m.GetAllSupervisors(), id)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrSupervisorNotFound, id)
	}
	g, ok := s.(*Guardian)
	if !ok {
		return fmt.Errorf("%w: %s is a %s supervisor", ErrNotGuardian, id, s.Kind())
	}

	g.SetGuardrailRules(rules)
	m.runner.logger.Info().Str("supervisor", id).Strs("rules", rules).Msg("Guardian rules updated")
	m.runner.publisher.Publish(event.Event{
		Type:         event.RulesUpdated,
		SupervisorID: id,
		Supervisor:   g.Name(),
		Kind:         string(g.Kind()),
		Metadata:     map[string]any{"rules": g.GetGuardrailRules()},
	})
	return nil
}

// Close cleans up every registered supervisor.
func (m *Manager) Close(ctx context.Context) error {
	for _, s := range m.GetAllSupervisors() {
		if err := m.RemoveSupervisor(ctx, s.ID()); err != nil {
			return err
		}
	}
	return nil
}

// findMember searches collection members depth first.
func findMember(list []Supervisor, id string) (Supervisor, bool) {
	for _, s := range list {
		c, ok := s.(*Collection)
		if !ok {
			continue
		}
		for _, member := range c.Members() {
			if member.ID() == id {
				return member, true
			}
		}
		if found, ok := findMember(c.Members(), id); ok {
			return found, true
		}
	}
	return nil, false
}

func without(ids []string, id string) []string {
	out := ids[:0:0]
	for _, existing := range ids {
		if existing != id {
			out = append(out, existing)
		}
	}
	return out
}
