package supervisor

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/opencode-ai/supervision/pkg/types"
)

// Collection groups supervisors into one roster entry. Its members run as a
// nested chain with the same semantics as a session chain.
type Collection struct {
	Base

	members []Supervisor
	runner  runner
}

// NewCollection creates a collection over members, in order.
func NewCollection(id, name string, perms Permissions, members ...Supervisor) *Collection {
	return &Collection{
		Base:    NewBase(id, name, perms),
		members: members,
		runner:  newRunner(),
	}
}

// WithLogger sets the logger used by the nested response chain.
func (c *Collection) WithLogger(logger zerolog.Logger) *Collection {
	c.runner.logger = logger
	return c
}

// Kind returns KindCollection.
func (c *Collection) Kind() Kind { return KindCollection }

// Members returns the member supervisors in chain order.
func (c *Collection) Members() []Supervisor {
	return append([]Supervisor(nil), c.members...)
}

// Initialize initializes every member, stopping at the first failure.
func (c *Collection) Initialize(ctx context.Context) error {
	for _, s := range c.members {
		if err := s.Initialize(ctx); err != nil {
			return fmt.Errorf("member %s: %w", s.ID(), err)
		}
	}
	return nil
}

// Cleanup cleans up every member and joins their errors.
func (c *Collection) Cleanup(ctx context.Context) error {
	var errs []error
	for _, s := range c.members {
		if err := s.Cleanup(ctx); err != nil {
			errs = append(errs, fmt.Errorf("member %s: %w", s.ID(), err))
		}
	}
	return errors.Join(errs...)
}

// ProcessRequest runs the members' request chain.
func (c *Collection) ProcessRequest(ctx context.Context, session *types.Session, messages []types.Message) (*RequestResult, error) {
	return c.runner.request(ctx, c.members, session, messages)
}

// ProcessResponse runs the members' response chain. A member that modified
// the response makes the collection report a modify.
func (c *Collection) ProcessResponse(ctx context.Context, session *types.Session, response *types.MessageUpdate) (*ResponseResult, error) {
	res := c.runner.response(ctx, c.members, session, response)
	if res.Action == ActionAllow && len(res.Reasons) > 0 {
		res.Action = ActionModify
	}
	return res, nil
}
