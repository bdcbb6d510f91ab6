package permission

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/opencode-ai/supervision/internal/event"
)

// Checker asks for and remembers tool call confirmations.
type Checker struct {
	mu        sync.RWMutex
	approved  map[string]map[string]bool // sessionID -> tool -> approved
	pending   map[string]*pendingRequest // requestID -> waiting request
	publisher event.Publisher
}

type pendingRequest struct {
	req     Request
	created time.Time
	ch      chan Response
}

// NewChecker creates a checker that announces requests on publisher.
func NewChecker(publisher event.Publisher) *Checker {
	if publisher == nil {
		publisher = event.Discard
	}
	return &Checker{
		approved:  make(map[string]map[string]bool),
		pending:   make(map[string]*pendingRequest),
		publisher: publisher,
	}
}

// Check applies a configured action to a tool call.
func (c *Checker) Check(ctx context.Context, req Request, action Action) error {
	switch action {
	case ActionAllow:
		return nil
	case ActionDeny:
		return Denied(req)
	case ActionAsk:
		return c.Ask(ctx, req)
	}
	return fmt.Errorf("unknown tool action %q", action)
}

// Ask waits for the user to confirm the call, unless the tool was already
// approved for the session.
func (c *Checker) Ask(ctx context.Context, req Request) error {
	if c.IsApproved(req.SessionID, req.Tool) {
		return nil
	}

	if req.ID == "" {
		req.ID = "per_" + ulid.Make().String()
	}
	if req.Title == "" {
		req.Title = fmt.Sprintf("Run tool %s", req.Tool)
	}

	p := &pendingRequest{req: req, created: time.Now(), ch: make(chan Response, 1)}
	c.mu.Lock()
	c.pending[req.ID] = p
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
	}()

	c.publisher.Publish(event.Event{
		Type:      event.ConfirmationRequired,
		SessionID: req.SessionID,
		RequestID: req.ID,
		Tool:      req.Tool,
		Title:     req.Title,
		Metadata:  req.Metadata,
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case resp := <-p.ch:
		switch resp.Action {
		case ReplyOnce:
			return nil
		case ReplyAlways:
			c.Approve(req.SessionID, req.Tool)
			return nil
		default:
			return &RejectedError{
				SessionID: req.SessionID,
				Tool:      req.Tool,
				CallID:    req.CallID,
				Message:   "Tool call rejected by user",
			}
		}
	}
}

// Respond answers a pending request.
func (c *Checker) Respond(requestID string, action string) error {
	c.mu.RLock()
	p, ok := c.pending[requestID]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrRequestNotFound, requestID)
	}

	select {
	case p.ch <- Response{RequestID: requestID, Action: action}:
	default:
		return fmt.Errorf("%w: %s already answered", ErrRequestNotFound, requestID)
	}

	granted := action == ReplyOnce || action == ReplyAlways
	c.publisher.Publish(event.Event{
		Type:      event.ConfirmationResolved,
		SessionID: p.req.SessionID,
		RequestID: requestID,
		Tool:      p.req.Tool,
		Granted:   &granted,
	})
	return nil
}

// Pending lists the requests waiting for an answer, oldest first.
func (c *Checker) Pending(sessionID string) []Request {
	c.mu.RLock()
	defer c.mu.RUnlock()

	waiting := make([]*pendingRequest, 0, len(c.pending))
	for _, p := range c.pending {
		if sessionID == "" || p.req.SessionID == sessionID {
			waiting = append(waiting, p)
		}
	}
	sort.Slice(waiting, func(i, j int) bool { return waiting[i].created.Before(waiting[j].created) })

	list := make([]Request, len(waiting))
	for i, p := range waiting {
		list[i] = p.req
	}
	return list
}

// Approve marks a tool as approved for a session.
func (c *Checker) Approve(sessionID, tool string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.approved[sessionID] == nil {
		c.approved[sessionID] = make(map[string]bool)
	}
	c.approved[sessionID][tool] = true
}

// IsApproved reports whether a tool was approved for the session.
func (c *Checker) IsApproved(sessionID, tool string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.approved[sessionID][tool]
}

// ClearSession forgets all approvals of a session.
func (c *Checker) ClearSession(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.approved, sessionID)
}
