package oauth

import (
	"encoding/json"
	"strings"
)

// ClaimSet maps claim names to their decoded JSON values. Lookups of
// missing claims return the zero value and false.
type ClaimSet map[string]any

// Get returns the raw value of a claim.
func (c ClaimSet) Get(name string) (any, bool) {
	v, ok := c[name]
	return v, ok
}

// Lookup resolves a dotted path through nested objects, e.g.
// "realm_access.roles".
func (c ClaimSet) Lookup(path string) (any, bool) {
	var cur any = map[string]any(c)
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// String returns a string claim.
func (c ClaimSet) String(name string) (string, bool) {
	s, ok := c[name].(string)
	return s, ok
}

// Bool returns a boolean claim.
func (c ClaimSet) Bool(name string) (bool, bool) {
	b, ok := c[name].(bool)
	return b, ok
}

// Int64 returns a numeric claim.
func (c ClaimSet) Int64(name string) (int64, bool) {
	switch v := c[name].(type) {
	case float64:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case int64:
		return v, true
	case int:
		return int64(v), true
	}
	return 0, false
}

// Strings returns a claim holding a string or a list of strings.
func (c ClaimSet) Strings(name string) ([]string, bool) {
	return stringsOf(c[name])
}

// Map returns an object claim as a ClaimSet.
func (c ClaimSet) Map(name string) (ClaimSet, bool) {
	m, ok := c[name].(map[string]any)
	return ClaimSet(m), ok
}

func stringsOf(v any) ([]string, bool) {
	switch v := v.(type) {
	case string:
		return []string{v}, true
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

// LookupStrings resolves a dotted path to a string list.
func (c ClaimSet) LookupStrings(path string) ([]string, bool) {
	v, ok := c.Lookup(path)
	if !ok {
		return nil, false
	}
	return stringsOf(v)
}
