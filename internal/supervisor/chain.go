package supervisor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/opencode-ai/supervision/internal/event"
	"github.com/opencode-ai/supervision/pkg/types"
)

// ErrSupervisorTimeout is returned for a supervisor call that exceeded the
// configured per-supervisor timeout.
var ErrSupervisorTimeout = errors.New("supervisor timed out")

// runner holds the settings shared by the request and response chains.
type runner struct {
	logger    zerolog.Logger
	publisher event.Publisher
	timeout   time.Duration
	fallback  Action
	enforce   bool
}

func newRunner() runner {
	return runner{
		logger:    zerolog.Nop(),
		publisher: event.Discard,
		fallback:  ActionAllow,
	}
}

// call runs fn under the per-supervisor timeout, if any.
func call[T any](ctx context.Context, timeout time.Duration, name string, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		res T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := fn(cctx)
		done <- outcome{res, err}
	}()

	select {
	case o := <-done:
		return o.res, o.err
	case <-cctx.Done():
		var zero T
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return zero, fmt.Errorf("%w: %s after %s", ErrSupervisorTimeout, name, timeout)
	}
}

func timeoutReason(s Supervisor) string {
	return fmt.Sprintf("Supervisor %s timed out", s.Name())
}

// mayModify reports whether a modify result from s is honored.
func (r *runner) mayModify(s Supervisor, phase string) bool {
	if !r.enforce || s.Permissions().CanModifyMessages() {
		return true
	}
	r.logger.Warn().
		Str("supervisor", s.ID()).
		Str("phase", phase).
		Msg("Ignoring modification from supervisor without modify permission")
	return false
}

func (r *runner) failed(s Supervisor, sessionID, phase string, err error) {
	r.publisher.Publish(event.Event{
		Type:         event.SupervisorFailed,
		SessionID:    sessionID,
		SupervisorID: s.ID(),
		Supervisor:   s.Name(),
		Kind:         string(s.Kind()),
		Phase:        phase,
		Error:        err.Error(),
	})
}

// request runs the request chain. A block returns the blocking result
// verbatim. Supervisor errors abort the chain.
func (r *runner) request(ctx context.Context, chain []Supervisor, session *types.Session, messages []types.Message) (*RequestResult, error) {
	sessionID := sessionIDOf(session)
	working := append([]types.Message(nil), messages...)
	reasons := []string{}

	for _, s := range chain {
		input := working
		if r.timeout > 0 {
			input = append([]types.Message(nil), working...)
		}

		res, err := call(ctx, r.timeout, s.Name(), func(ctx context.Context) (*RequestResult, error) {
			return s.ProcessRequest(ctx, session, input)
		})
		if err != nil {
			r.failed(s, sessionID, event.PhaseRequest, err)
			if errors.Is(err, ErrSupervisorTimeout) {
				r.logger.Warn().Err(err).Str("supervisor", s.ID()).Str("session", sessionID).Msg("Supervisor request timed out")
				if r.fallback == ActionBlock {
					res = BlockRequest(timeoutReason(s), nil)
					r.publishRequestBlocked(s, sessionID, res)
					return res, nil
				}
				continue
			}
			return nil, fmt.Errorf("supervisor %s: %w", s.ID(), err)
		}
		if res == nil {
			continue
		}

		switch res.Action {
		case ActionBlock:
			r.publishRequestBlocked(s, sessionID, res)
			return res, nil
		case ActionModify:
			if res.FinalMessage == nil || !r.mayModify(s, event.PhaseRequest) {
				continue
			}
			if len(working) == 0 {
				working = append(working, *res.FinalMessage)
			} else {
				working[len(working)-1] = *res.FinalMessage
			}
			reasons = append(reasons, res.Reasons...)
			r.publisher.Publish(event.Event{
				Type:         event.RequestModified,
				SessionID:    sessionID,
				SupervisorID: s.ID(),
				Supervisor:   s.Name(),
				Kind:         string(s.Kind()),
				Reasons:      res.Reasons,
			})
		}
	}

	action := ActionAllow
	if len(reasons) > 0 {
		action = ActionModify
	}
	return &RequestResult{
		Action:       action,
		FinalMessage: types.LastMessage(working),
		Reasons:      reasons,
		Metadata: map[string]any{
			MetaModificationsApplied: len(reasons),
			MetaSupervisorsProcessed: len(chain),
		},
	}, nil
}

func (r *runner) publishRequestBlocked(s Supervisor, sessionID string, res *RequestResult) {
	r.logger.Info().
		Str("supervisor", s.ID()).
		Str("session", sessionID).
		Strs("reasons", res.Reasons).
		Msg("Request blocked")
	r.publisher.Publish(event.Event{
		Type:         event.RequestBlocked,
		SessionID:    sessionID,
		SupervisorID: s.ID(),
		Supervisor:   s.Name(),
		Kind:         string(s.Kind()),
		Reasons:      res.Reasons,
		Metadata:     res.Metadata,
	})
}

// response runs the response chain. Supervisor errors are logged and the
// failing step is skipped.
func (r *runner) response(ctx context.Context, chain []Supervisor, session *types.Session, response *types.MessageUpdate) *ResponseResult {
	sessionID := sessionIDOf(session)
	current := response
	reasons := []string{}

	for _, s := range chain {
		input := current
		res, err := call(ctx, r.timeout, s.Name(), func(ctx context.Context) (*ResponseResult, error) {
			return s.ProcessResponse(ctx, session, input)
		})
		if err != nil {
			r.logger.Warn().
				Err(err).
				Str("supervisor", s.ID()).
				Str("session", sessionID).
				Msg("Supervisor response processing failed, skipping")
			r.failed(s, sessionID, event.PhaseResponse, err)
			if errors.Is(err, ErrSupervisorTimeout) && r.fallback == ActionBlock {
				res = BlockResponse(timeoutReason(s), nil)
				r.publishResponseBlocked(s, sessionID, res)
				return res
			}
			continue
		}
		if res == nil {
			continue
		}

		switch res.Action {
		case ActionBlock:
			r.publishResponseBlocked(s, sessionID, res)
			return res
		case ActionModify:
			if res.FinalResponse == nil || !r.mayModify(s, event.PhaseResponse) {
				continue
			}
			r.publisher.Publish(event.Event{
				Type:         event.ResponseModified,
				SessionID:    sessionID,
				SupervisorID: s.ID(),
				Supervisor:   s.Name(),
				Kind:         string(s.Kind()),
				Reasons:      res.Reasons,
				Diff:         contentDiff(contentOf(current), res.FinalResponse.Content),
			})
			current = res.FinalResponse
			reasons = append(reasons, res.Reasons...)
		}
	}

	return &ResponseResult{
		Action:        ActionAllow,
		FinalResponse: current,
		Reasons:       reasons,
		Metadata: map[string]any{
			MetaModificationsApplied: len(reasons),
			MetaSupervisorsProcessed: len(chain),
		},
	}
}

func (r *runner) publishResponseBlocked(s Supervisor, sessionID string, res *ResponseResult) {
	r.logger.Info().
		Str("supervisor", s.ID()).
		Str("session", sessionID).
		Strs("reasons", res.Reasons).
		Msg("Response blocked")
	r.publisher.Publish(event.Event{
		Type:         event.ResponseBlocked,
		SessionID:    sessionID,
		SupervisorID: s.ID(),
		Supervisor:   s.Name(),
		Kind:         string(s.Kind()),
		Reasons:      res.Reasons,
		Metadata:     res.Metadata,
	})
}

func sessionIDOf(session *types.Session) string {
	if session == nil {
		return ""
	}
	return session.ID
}

func contentOf(u *types.MessageUpdate) string {
	if u == nil {
		return ""
	}
	return u.Content
}

// contentDiff renders a line-based patch between two response bodies.
func contentDiff(before, after string) string {
	if before == after {
		return ""
	}
	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)
	return strings.TrimSpace(dmp.PatchToText(dmp.PatchMake(before, diffs)))
}
