// Package reqcontext assembles the context record attached to each
// request/response pair.
//
// A session keeps sticky items in a Store (include mode always or manual).
// For each request a Selector picks further items by fuzzy similarity to the
// request text; these carry include mode agent and a similarity score.
// Assemble concatenates both sources, sticky items first.
//
// Items are identified by type, server and name. When an item appears in both
// sources the first occurrence keeps its place and include mode and the later
// one contributes its similarity score.
package reqcontext
