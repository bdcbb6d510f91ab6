package permission

import (
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// MatchWildcard checks if a tool name matches a wildcard pattern.
// Simple prefix and suffix wildcards use string matching, everything else
// goes through doublestar.
func MatchWildcard(pattern, s string) bool {
	if pattern == "*" {
		return true
	}

	if strings.Contains(pattern, "**") {
		matched, _ := doublestar.Match(pattern, s)
		return matched
	}

	simple := !strings.ContainsAny(pattern, "?[{") && strings.Count(pattern, "*") == 1

	// prefix*
	if simple && strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(s, strings.TrimSuffix(pattern, "*"))
	}

	// *suffix
	if simple && strings.HasPrefix(pattern, "*") {
		return strings.HasSuffix(s, strings.TrimPrefix(pattern, "*"))
	}

	if strings.ContainsAny(pattern, "*?[{") {
		matched, _ := doublestar.Match(pattern, s)
		return matched
	}

	return pattern == s
}

// MatchAny reports whether s matches any of the patterns.
func MatchAny(patterns []string, s string) bool {
	for _, p := range patterns {
		if MatchWildcard(p, s) {
			return true
		}
	}
	return false
}

// BestMatch returns the key of patterns that matches s most specifically:
// an exact key first, then the longest matching wildcard. Ties go to the
// lexically smaller key.
func BestMatch[V any](patterns map[string]V, s string) (string, bool) {
	if _, ok := patterns[s]; ok {
		return s, true
	}

	keys := make([]string, 0, len(patterns))
	for k := range patterns {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	for _, k := range keys {
		if MatchWildcard(k, s) {
			return k, true
		}
	}
	return "", false
}
