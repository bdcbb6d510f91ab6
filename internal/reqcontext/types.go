package reqcontext

import (
	"errors"
	"fmt"
)

// ItemType tags a context item.
type ItemType string

const (
	ItemRule      ItemType = "rule"
	ItemReference ItemType = "reference"
	ItemTool      ItemType = "tool"
)

// IncludeMode records why an item is part of a context.
type IncludeMode string

const (
	IncludeAlways IncludeMode = "always"
	IncludeManual IncludeMode = "manual"
	IncludeAgent  IncludeMode = "agent"
)

var (
	// ErrInvalidIncludeMode is returned for a session item with agent mode
	// or an unknown mode.
	ErrInvalidIncludeMode = errors.New("invalid include mode")
	// ErrInvalidItem is returned for items missing required fields.
	ErrInvalidItem = errors.New("invalid context item")
)

// Item is a named rule, reference, or tool entry.
type Item struct {
	Type        ItemType `json:"type"`
	Name        string   `json:"name"`
	ServerName  string   `json:"serverName,omitempty"` // tool items only
	Description string   `json:"description,omitempty"`
	Content     string   `json:"content,omitempty"`
}

// Key identifies an item across sources.
func (i Item) Key() string {
	return string(i.Type) + "\x00" + i.ServerName + "\x00" + i.Name
}

// Validate checks the fields required for the item's type.
func (i Item) Validate() error {
	switch i.Type {
	case ItemRule, ItemReference:
	case ItemTool:
		if i.ServerName == "" {
			return fmt.Errorf("%w: tool %q has no server", ErrInvalidItem, i.Name)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidItem, i.Type)
	}
	if i.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidItem)
	}
	return nil
}

// SessionItem lives for the whole session.
type SessionItem struct {
	Item
	IncludeMode IncludeMode `json:"includeMode"` // always | manual
	AddedAt     int64       `json:"addedAt"`
}

// RequestItem is part of one request's context.
type RequestItem struct {
	Item
	IncludeMode     IncludeMode `json:"includeMode"`
	SimilarityScore *float64    `json:"similarityScore,omitempty"`
}

// RequestContext is the context attached to one request/response pair.
type RequestContext struct {
	SessionID string        `json:"sessionID"`
	Items     []RequestItem `json:"items"`
	CreatedAt int64         `json:"createdAt"`
}

// Filter returns the items of the given type.
func (rc *RequestContext) Filter(t ItemType) []RequestItem {
	var out []RequestItem
	for _, it := range rc.Items {
		if it.Type == t {
			out = append(out, it)
		}
	}
	return out
}
