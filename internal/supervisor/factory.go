package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/oklog/ulid/v2"

	"github.com/opencode-ai/supervision/pkg/types"
)

// ModelResolver builds a chat model for a provider/model pair.
type ModelResolver func(ctx context.Context, providerID, modelID string) (model.ToolCallingChatModel, error)

// Dependencies are the collaborators handed to supervisors built from
// configuration records.
type Dependencies struct {
	Models ModelResolver
	Tools  ToolRunner
}

type guardianConfig struct {
	Rules          []string `json:"rules"`
	Redact         bool     `json:"redact"`
	CheckResponses bool     `json:"checkResponses"`
}

type agentConfig struct {
	Prompt         string   `json:"prompt"`
	Provider       string   `json:"provider"`
	Model          string   `json:"model"`
	Tools          []string `json:"tools"`
	MaxSteps       int      `json:"maxSteps"`
	MaxRetries     int      `json:"maxRetries"`
	RetryInterval  string   `json:"retryInterval"`
	CheckResponses bool     `json:"checkResponses"`
}

type collectionConfig struct {
	Members []types.SupervisorConfig `json:"members"`
}

// NewID returns a fresh supervisor id.
func NewID() string {
	return "sup_" + ulid.Make().String()
}

// NewFromConfig turns a configuration record into a supervisor. The result
// is not initialized.
func NewFromConfig(cfg types.SupervisorConfig, deps Dependencies) (Supervisor, error) {
	id := cfg.ID
	if id == "" {
		id = NewID()
	}

	perms, err := ParsePermissions(cfg.Permissions)
	if err != nil {
		return nil, fmt.Errorf("supervisor %s: %w", id, err)
	}

	kind, ok := ParseKind(cfg.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSupervisorType, cfg.Type)
	}

	switch kind {
	case KindPassThrough:
		return NewPassThrough(id, cfg.Name, perms), nil

	case KindGuardian:
		var gc guardianConfig
		if err := decodeConfig(cfg.Config, &gc); err != nil {
			return nil, fmt.Errorf("supervisor %s: %w", id, err)
		}
		return NewGuardian(id, cfg.Name, perms, GuardianOptions{
			Rules:          gc.Rules,
			Redact:         gc.Redact,
			CheckResponses: gc.CheckResponses,
		}), nil

	case KindAgent:
		var ac agentConfig
		if err := decodeConfig(cfg.Config, &ac); err != nil {
			return nil, fmt.Errorf("supervisor %s: %w", id, err)
		}
		opts := AgentOptions{
			Prompt:         ac.Prompt,
			Tools:          ac.Tools,
			MaxSteps:       ac.MaxSteps,
			MaxRetries:     ac.MaxRetries,
			CheckResponses: ac.CheckResponses,
			Runner:         deps.Tools,
		}
		if ac.RetryInterval != "" {
			d, err := time.ParseDuration(ac.RetryInterval)
			if err != nil {
				return nil, fmt.Errorf("supervisor %s: invalid retryInterval: %w", id, err)
			}
			opts.RetryInterval = d
		}
		if deps.Models != nil {
			resolve := deps.Models
			opts.Model = func(ctx context.Context) (model.ToolCallingChatModel, error) {
				return resolve(ctx, ac.Provider, ac.Model)
			}
		}
		return NewAgent(id, cfg.Name, perms, opts), nil

	case KindCollection:
		var cc collectionConfig
		if err := decodeConfig(cfg.Config, &cc); err != nil {
			return nil, fmt.Errorf("supervisor %s: %w", id, err)
		}
		members := make([]Supervisor, 0, len(cc.Members))
		for _, mc := range cc.Members {
			member, err := NewFromConfig(mc, deps)
			if err != nil {
				return nil, fmt.Errorf("collection %s: %w", id, err)
			}
			members = append(members, member)
		}
		return NewCollection(id, cfg.Name, perms, members...), nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownSupervisorType, cfg.Type)
}

// CollectionMembers returns the member records of a collection record.
func CollectionMembers(cfg types.SupervisorConfig) ([]types.SupervisorConfig, error) {
	if kind, _ := ParseKind(cfg.Type); kind != KindCollection {
		return nil, nil
	}
	var cc collectionConfig
	if err := decodeConfig(cfg.Config, &cc); err != nil {
		return nil, err
	}
	return cc.Members, nil
}

// decodeConfig maps a loosely typed config block onto out.
func decodeConfig(raw map[string]any, out any) error {
	if len(raw) == 0 {
		return nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
