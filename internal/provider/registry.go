package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cloudwego/eino/components/model"

	"github.com/opencode-ai/supervision/pkg/types"
)

// Registry builds and caches chat models for the configured providers.
type Registry struct {
	mu      sync.Mutex
	configs map[string]types.ProviderConfig
	models  map[string]model.ToolCallingChatModel
}

// NewRegistry creates a registry over provider configuration.
func NewRegistry(configs map[string]types.ProviderConfig) *Registry {
	cp := make(map[string]types.ProviderConfig, len(configs))
	for id, cfg := range configs {
		cp[id] = cfg
	}
	return &Registry{
		configs: cp,
		models:  make(map[string]model.ToolCallingChatModel),
	}
}

// IDs returns the enabled provider ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.configs))
	for id, cfg := range r.configs {
		if !cfg.Disable {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// DefaultProvider returns the provider used when a supervisor names none:
// anthropic when configured, otherwise the first enabled id.
func (r *Registry) DefaultProvider() (string, error) {
	ids := r.IDs()
	for _, id := range ids {
		if id == "anthropic" {
			return id, nil
		}
	}
	if len(ids) == 0 {
		return "", fmt.Errorf("%w: no providers configured", ErrProviderNotFound)
	}
	return ids[0], nil
}

// ChatModel returns the chat model for a provider and model. The model id
// may carry a "provider/" prefix when providerID is empty. Models are built
// once per provider/model pair.
func (r *Registry) ChatModel(ctx context.Context, providerID, modelID string) (model.ToolCallingChatModel, error) {
	if providerID == "" {
		providerID, modelID = ParseModelString(modelID)
	}
	if providerID == "" {
		id, err := r.DefaultProvider()
		if err != nil {
			return nil, err
		}
		providerID = id
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cfg, ok := r.configs[providerID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, providerID)
	}

	key := providerID + "/" + modelID
	if m, ok := r.models[key]; ok {
		return m, nil
	}

	m, err := NewChatModel(ctx, providerID, cfg, modelID)
	if err != nil {
		return nil, err
	}
	r.models[key] = m
	return m, nil
}
