package oauth

import (
	"slices"
	"strings"
)

// CanonicalScope sorts and de-duplicates scopes and joins them with single
// spaces. The result is used as the lookup key of a stored session, so any
// permutation of the same scopes yields the same string.
func CanonicalScope(scopes []string) string {
	fields := make([]string, 0, len(scopes))
	for _, s := range scopes {
		fields = append(fields, strings.Fields(s)...)
	}
	slices.Sort(fields)
	return strings.Join(slices.Compact(fields), " ")
}

// UnionScope returns the canonical union of a space separated scope string
// and additional scopes.
func UnionScope(scope string, extra ...string) string {
	return CanonicalScope(append(strings.Fields(scope), extra...))
}

// SplitScope splits a canonical scope string into its individual scopes.
func SplitScope(scope string) []string {
	return strings.Fields(scope)
}
