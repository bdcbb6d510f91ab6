package supervisor

import (
	"context"
	"sync"

	"github.com/opencode-ai/supervision/internal/event"
	"github.com/opencode-ai/supervision/pkg/types"
)

// funcSupervisor is a test supervisor driven by callbacks.
type funcSupervisor struct {
	Base

	onRequest  func(ctx context.Context, session *types.Session, messages []types.Message) (*RequestResult, error)
	onResponse func(ctx context.Context, session *types.Session, response *types.MessageUpdate) (*ResponseResult, error)
	initErr    error
	cleanupErr error

	mu       sync.Mutex
	inits    int
	cleanups int
}

func newFuncSupervisor(id string, perms ...Permission) *funcSupervisor {
	var set Permissions
	if len(perms) > 0 {
		set = NewPermissions(perms...)
	}
	return &funcSupervisor{Base: NewBase(id, "", set)}
}

func (f *funcSupervisor) Kind() Kind { return KindPassThrough }

func (f *funcSupervisor) Initialize(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inits++
	return f.initErr
}

func (f *funcSupervisor) Cleanup(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleanups++
	return f.cleanupErr
}

func (f *funcSupervisor) ProcessRequest(ctx context.Context, session *types.Session, messages []types.Message) (*RequestResult, error) {
	if f.onRequest == nil {
		return f.Base.ProcessRequest(ctx, session, messages)
	}
	return f.onRequest(ctx, session, messages)
}

func (f *funcSupervisor) ProcessResponse(ctx context.Context, session *types.Session, response *types.MessageUpdate) (*ResponseResult, error) {
	if f.onResponse == nil {
		return f.Base.ProcessResponse(ctx, session, response)
	}
	return f.onResponse(ctx, session, response)
}

// recorder collects published events.
type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recorder) Publish(e event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) ofType(t event.Type) []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []event.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func userMessage(id, content string) types.Message {
	return types.Message{ID: id, SessionID: "ses_1", Role: types.RoleUser, Content: content}
}

func testSession() *types.Session {
	return &types.Session{ID: "ses_1"}
}
