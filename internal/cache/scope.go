package cache

import "strings"

// Scope names a group of cached list reads, most general part first, for
// example {"issues", projectID, "sprint", sprintID, "status", statusID}.
// Invalidating a scope invalidates every list whose scope starts with it.
type Scope []string

func NewScope(parts ...string) Scope {
	return Scope(parts)
}

// Append returns a new scope; s is never modified.
func (s Scope) Append(parts ...string) Scope {
	out := make(Scope, 0, len(s)+len(parts))
	out = append(out, s...)
	return append(out, parts...)
}

func (s Scope) HasPrefix(prefix Scope) bool {
	if len(prefix) > len(s) {
		return false
	}
	for i := range prefix {
		if s[i] != prefix[i] {
			return false
		}
	}
	return true
}

func (s Scope) key() string {
	return strings.Join(s, "\x1f")
}

func (s Scope) String() string {
	return strings.Join(s, "/")
}
