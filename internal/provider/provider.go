package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"

	"github.com/opencode-ai/supervision/pkg/types"
)

// Kind is the wire protocol of a provider.
type Kind string

const (
	KindAnthropic Kind = "anthropic"
	KindOpenAI    Kind = "openai"
	KindArk       Kind = "ark"
)

const defaultMaxTokens = 4096

var (
	// ErrProviderNotFound is returned for provider ids with no configuration.
	ErrProviderNotFound = errors.New("provider not found")
	// ErrProviderDisabled is returned for providers disabled in configuration.
	ErrProviderDisabled = errors.New("provider disabled")
)

// KindOf maps a provider id onto its protocol. Unknown ids are treated as
// OpenAI-compatible endpoints.
func KindOf(providerID string) Kind {
	switch strings.ToLower(providerID) {
	case "anthropic", "claude":
		return KindAnthropic
	case "ark", "volcengine", "doubao":
		return KindArk
	}
	return KindOpenAI
}

// NewChatModel builds a chat model for a configured provider. A non-empty
// modelID overrides the configured model.
func NewChatModel(ctx context.Context, providerID string, cfg types.ProviderConfig, modelID string) (model.ToolCallingChatModel, error) {
	if cfg.Disable {
		return nil, fmt.Errorf("%w: %s", ErrProviderDisabled, providerID)
	}
	if modelID == "" {
		modelID = cfg.Model
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	switch KindOf(providerID) {
	case KindAnthropic:
		return newClaudeModel(ctx, cfg.APIKey, cfg.BaseURL, modelID, maxTokens)
	case KindArk:
		return newArkModel(ctx, cfg.APIKey, cfg.BaseURL, modelID, maxTokens)
	default:
		return newOpenAIModel(ctx, cfg.APIKey, cfg.BaseURL, modelID, maxTokens)
	}
}

// ParseModelString parses "provider/model" format.
func ParseModelString(s string) (providerID, modelID string) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "", s
}
