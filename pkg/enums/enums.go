// Package enums holds the closed string sets stored in subscription rows.
package enums

import (
	"fmt"
	"strings"
)

// parse matches raw against the members of set after trimming and lowercasing.
func parse[T ~string](kind, raw string, set map[T]struct{}) (T, error) {
	v := T(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := set[v]; ok {
		return v, nil
	}
	return "", fmt.Errorf("invalid %s %q", kind, raw)
}

func setOf[T comparable](values ...T) map[T]struct{} {
	out := make(map[T]struct{}, len(values))
	for _, v := range values {
		out[v] = struct{}{}
	}
	return out
}
