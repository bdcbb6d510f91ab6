package reqcontext

import "time"

// Assemble builds the context for one request: sticky session items first,
// then agent-selected items. An item present in both keeps its first
// position and include mode; a later duplicate only updates the similarity
// score.
func Assemble(sessionID string, sticky []SessionItem, selected []RequestItem) *RequestContext {
	rc := &RequestContext{
		SessionID: sessionID,
		Items:     make([]RequestItem, 0, len(sticky)+len(selected)),
		CreatedAt: time.Now().UnixMilli(),
	}

	index := make(map[string]int, len(sticky)+len(selected))
	add := func(item RequestItem) {
		key := item.Key()
		if i, ok := index[key]; ok {
			if item.SimilarityScore != nil {
				score := *item.SimilarityScore
				rc.Items[i].SimilarityScore = &score
			}
			return
		}
		index[key] = len(rc.Items)
		rc.Items = append(rc.Items, item)
	}

	for _, s := range sticky {
		add(RequestItem{Item: s.Item, IncludeMode: s.IncludeMode})
	}
	for _, s := range selected {
		add(s)
	}
	return rc
}

// Builder assembles request contexts from a store and a selector.
type Builder struct {
	store    *Store
	selector *Selector
}

// NewBuilder creates a builder. A nil selector disables agent selection.
func NewBuilder(store *Store, selector *Selector) *Builder {
	return &Builder{store: store, selector: selector}
}

// Build assembles the context of a request given its text and the items the
// agent may pick from.
func (b *Builder) Build(sessionID, query string, candidates []Item) *RequestContext {
	var selected []RequestItem
	if b.selector != nil {
		selected = b.selector.Select(query, candidates)
	}
	return Assemble(sessionID, b.store.List(sessionID), selected)
}
