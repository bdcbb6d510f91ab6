package supervisor

import (
	"context"
	"errors"
	"strings"

	"github.com/opencode-ai/supervision/pkg/types"
)

// Kind tags the closed set of supervisor variants.
type Kind string

const (
	KindPassThrough Kind = "passthrough"
	KindGuardian    Kind = "guardian"
	KindAgent       Kind = "agent"
	KindCollection  Kind = "collection"
)

// ParseKind maps a configuration type name onto a Kind. Names are case
// insensitive; "pass-through" and "default" are accepted for passthrough.
func ParseKind(name string) (Kind, bool) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(name))); k {
	case KindPassThrough, "pass-through", "default":
		return KindPassThrough, true
	case KindGuardian, KindAgent, KindCollection:
		return k, true
	}
	return "", false
}

var (
	// ErrSupervisorNotFound is returned for ids missing from the registry.
	ErrSupervisorNotFound = errors.New("supervisor not found")
	// ErrUnknownSupervisorType is returned by NewFromConfig for unknown types.
	ErrUnknownSupervisorType = errors.New("unknown supervisor type")
	// ErrInvalidVerdict is returned when an agent-backed review cannot be parsed.
	ErrInvalidVerdict = errors.New("invalid supervisor verdict")
	// ErrNotGuardian is returned by guardian operations on other kinds.
	ErrNotGuardian = errors.New("not a guardian supervisor")
)

// Supervisor is a policy agent that can allow, modify, or block a chat
// request or response.
type Supervisor interface {
	ID() string
	Name() string
	Kind() Kind
	Permissions() Permissions

	// Initialize prepares the supervisor. It may perform slow I/O.
	Initialize(ctx context.Context) error
	// Cleanup releases resources. Best effort.
	Cleanup(ctx context.Context) error

	ProcessRequest(ctx context.Context, session *types.Session, messages []types.Message) (*RequestResult, error)
	ProcessResponse(ctx context.Context, session *types.Session, response *types.MessageUpdate) (*ResponseResult, error)
}

// Base carries identity and permissions and provides the default
// pass-through behavior. Concrete kinds embed it and override selectively.
type Base struct {
	id          string
	name        string
	permissions Permissions
}

// NewBase creates a Base holding its own copy of perms. A nil permission set
// becomes read-only.
func NewBase(id, name string, perms Permissions) Base {
	if perms == nil {
		perms = NewPermissions(PermReadOnly)
	}
	if name == "" {
		name = id
	}
	return Base{id: id, name: name, permissions: perms.Clone()}
}

func (b *Base) ID() string   { return b.id }
func (b *Base) Name() string { return b.name }

// Permissions returns a copy of the granted set.
func (b *Base) Permissions() Permissions { return b.permissions.Clone() }

// Initialize is a no-op.
func (b *Base) Initialize(ctx context.Context) error { return nil }

// Cleanup is a no-op.
func (b *Base) Cleanup(ctx context.Context) error { return nil }

// ProcessRequest allows the request with the last message unchanged.
func (b *Base) ProcessRequest(ctx context.Context, session *types.Session, messages []types.Message) (*RequestResult, error) {
	return AllowRequest(types.LastMessage(messages)), nil
}

// ProcessResponse allows the response unchanged.
func (b *Base) ProcessResponse(ctx context.Context, session *types.Session, response *types.MessageUpdate) (*ResponseResult, error) {
	return AllowResponse(response), nil
}
