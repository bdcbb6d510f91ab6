package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/opencode-ai/supervision/internal/permission"
	"github.com/opencode-ai/supervision/pkg/types"
)

const (
	// DefaultAgentMaxSteps bounds the tool-calling rounds of one review.
	DefaultAgentMaxSteps = 5
	// DefaultAgentMaxRetries bounds model call retries.
	DefaultAgentMaxRetries = 3
	// DefaultAgentRetryInterval is the initial backoff interval.
	DefaultAgentRetryInterval = 500 * time.Millisecond
)

const verdictInstructions = `Answer with a single JSON object and nothing else:
{"action": "allow" | "modify" | "block", "content": "<rewritten text, only for modify>", "reason": "<short explanation>"}`

// ModelFactory builds the chat model behind an agent-backed supervisor.
type ModelFactory func(ctx context.Context) (model.ToolCallingChatModel, error)

// ToolRunner exposes the restricted tool set of an agent-backed supervisor.
// toolgate.Gate implements it.
type ToolRunner interface {
	ToolInfos(ctx context.Context, session *types.Session, allow []string) ([]*schema.ToolInfo, error)
	Invoke(ctx context.Context, session *types.Session, qualifiedName string, args json.RawMessage) (string, error)
}

// AgentOptions configures an Agent.
type AgentOptions struct {
	// Prompt holds the review instructions given to the model.
	Prompt string
	// Tools are qualified tool-name patterns the sub-session may call.
	Tools []string
	// MaxSteps bounds tool-calling rounds per review.
	MaxSteps int
	// MaxRetries bounds retries of a failed model call.
	MaxRetries int
	// RetryInterval is the initial retry backoff.
	RetryInterval time.Duration
	// CheckResponses enables review of provider responses.
	CheckResponses bool

	Model  ModelFactory
	Runner ToolRunner
}

// Verdict is the model's answer to a review.
type Verdict struct {
	Action  string `json:"action"`
	Content string `json:"content,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// Agent delegates review to a bounded sub-session on a chat model.
type Agent struct {
	Base

	opts AgentOptions

	mu    sync.RWMutex
	model model.ToolCallingChatModel
}

// NewAgent creates an agent-backed supervisor. The model is built at
// Initialize.
func NewAgent(id, name string, perms Permissions, opts AgentOptions) *Agent {
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultAgentMaxSteps
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	} else if opts.MaxRetries == 0 {
		opts.MaxRetries = DefaultAgentMaxRetries
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultAgentRetryInterval
	}
	return &Agent{Base: NewBase(id, name, perms), opts: opts}
}

// Kind returns KindAgent.
func (a *Agent) Kind() Kind { return KindAgent }

// Initialize builds the chat model.
func (a *Agent) Initialize(ctx context.Context) error {
	if a.opts.Model == nil {
		return errors.New("agent supervisor has no model")
	}
	m, err := a.opts.Model(ctx)
	if err != nil {
		return fmt.Errorf("failed to create model: %w", err)
	}

	a.mu.Lock()
	a.model = m
	a.mu.Unlock()
	return nil
}

// Cleanup drops the chat model.
func (a *Agent) Cleanup(ctx context.Context) error {
	a.mu.Lock()
	a.model = nil
	a.mu.Unlock()
	return nil
}

// ProcessRequest reviews the last message.
func (a *Agent) ProcessRequest(ctx context.Context, session *types.Session, messages []types.Message) (*RequestResult, error) {
	last := types.LastMessage(messages)
	if !last.HasText() {
		return AllowRequest(last), nil
	}

	v, err := a.review(ctx, session, "user message", last.Content)
	if err != nil {
		return nil, err
	}

	switch a.action(v) {
	case ActionBlock:
		return BlockRequest(a.blockReason(v), map[string]any{"verdict": v.Reason}), nil
	case ActionModify:
		modified := last.WithContent(v.Content)
		return &RequestResult{
			Action:       ActionModify,
			FinalMessage: &modified,
			Reasons:      []string{a.modifyReason(v)},
		}, nil
	}
	return AllowRequest(last), nil
}

// ProcessResponse reviews the response when response review is enabled.
func (a *Agent) ProcessResponse(ctx context.Context, session *types.Session, response *types.MessageUpdate) (*ResponseResult, error) {
	if !a.opts.CheckResponses || !response.HasText() {
		return AllowResponse(response), nil
	}

	v, err := a.review(ctx, session, "assistant response", response.Content)
	if err != nil {
		return nil, err
	}

	switch a.action(v) {
	case ActionBlock:
		return BlockResponse(a.blockReason(v), map[string]any{"verdict": v.Reason}), nil
	case ActionModify:
		modified := response.WithContent(v.Content)
		return &ResponseResult{
			Action:        ActionModify,
			FinalResponse: &modified,
			Reasons:       []string{a.modifyReason(v)},
		}, nil
	}
	return AllowResponse(response), nil
}

// action maps a verdict onto what this supervisor may do. A modify without
// content or without permission degrades to allow.
func (a *Agent) action(v *Verdict) Action {
	act, _ := ParseAction(strings.ToLower(v.Action))
	if act == ActionModify && (v.Content == "" || !a.Permissions().CanModifyMessages()) {
		return ActionAllow
	}
	return act
}

func (a *Agent) blockReason(v *Verdict) string {
	if v.Reason != "" {
		return v.Reason
	}
	return fmt.Sprintf("Blocked by supervisor %s", a.Name())
}

func (a *Agent) modifyReason(v *Verdict) string {
	if v.Reason != "" {
		return v.Reason
	}
	return fmt.Sprintf("Content modified by supervisor %s", a.Name())
}

// review runs the sub-session until the model answers with a verdict.
func (a *Agent) review(ctx context.Context, session *types.Session, subject, content string) (*Verdict, error) {
	a.mu.RLock()
	chatModel := a.model
	a.mu.RUnlock()
	if chatModel == nil {
		return nil, fmt.Errorf("agent supervisor %s is not initialized", a.ID())
	}

	if a.opts.Runner != nil && len(a.opts.Tools) > 0 {
		infos, err := a.opts.Runner.ToolInfos(ctx, session, a.opts.Tools)
		if err != nil {
			return nil, fmt.Errorf("failed to list tools: %w", err)
		}
		if len(infos) > 0 {
			chatModel, err = chatModel.WithTools(infos)
			if err != nil {
				return nil, fmt.Errorf("failed to bind tools: %w", err)
			}
		}
	}

	history := []*schema.Message{
		{Role: schema.System, Content: a.systemPrompt()},
		{Role: schema.User, Content: fmt.Sprintf("Review the following %s:\n\n%s", subject, content)},
	}

	for step := 0; step < a.opts.MaxSteps; step++ {
		reply, err := a.generate(ctx, chatModel, history)
		if err != nil {
			return nil, err
		}

		if len(reply.ToolCalls) == 0 {
			return ParseVerdict(reply.Content)
		}

		history = append(history, reply)
		for _, tc := range reply.ToolCalls {
			history = append(history, &schema.Message{
				Role:       schema.Tool,
				Content:    a.runTool(ctx, session, tc),
				ToolCallID: tc.ID,
			})
		}
	}

	return nil, fmt.Errorf("%w: no verdict after %d steps", ErrInvalidVerdict, a.opts.MaxSteps)
}

func (a *Agent) runTool(ctx context.Context, session *types.Session, tc schema.ToolCall) string {
	if a.opts.Runner == nil {
		return "error: no tools available"
	}
	if !permission.MatchAny(a.opts.Tools, tc.Function.Name) {
		return fmt.Sprintf("error: tool %s is not available to this supervisor", tc.Function.Name)
	}
	out, err := a.opts.Runner.Invoke(ctx, session, tc.Function.Name, json.RawMessage(tc.Function.Arguments))
	if err != nil {
		return "error: " + err.Error()
	}
	return out
}

func (a *Agent) systemPrompt() string {
	var sb strings.Builder
	if a.opts.Prompt != "" {
		sb.WriteString(a.opts.Prompt)
		sb.WriteString("\n\n")
	}
	sb.WriteString(verdictInstructions)
	return sb.String()
}

// generate calls the model with exponential backoff.
func (a *Agent) generate(ctx context.Context, m model.ToolCallingChatModel, history []*schema.Message) (*schema.Message, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = a.opts.RetryInterval
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	b.Reset()
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(a.opts.MaxRetries)), ctx)

	var reply *schema.Message
	err := backoff.Retry(func() error {
		msg, err := m.Generate(ctx, history)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		reply = msg
		return nil
	}, policy)
	if err != nil {
		return nil, fmt.Errorf("model call failed: %w", err)
	}
	if reply == nil {
		return nil, fmt.Errorf("%w: empty model reply", ErrInvalidVerdict)
	}
	return reply, nil
}

// ParseVerdict extracts the JSON verdict from a model reply. Surrounding
// prose and code fences are tolerated.
func ParseVerdict(text string) (*Verdict, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: no JSON object in reply", ErrInvalidVerdict)
	}

	var v Verdict
	if err := json.Unmarshal([]byte(text[start:end+1]), &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVerdict, err)
	}
	if _, ok := ParseAction(strings.ToLower(v.Action)); !ok {
		return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidVerdict, v.Action)
	}
	return &v, nil
}
