package client

import "sort"

// NormalizeCookies converts a mapping-style cookie set into an ordered
// sequence of Cookie records, sorted by name so the order is stable. An
// already-sequence-shaped value passes through unchanged.
func NormalizeCookies(v any) any {
	switch cookies := v.(type) {
	case map[string]string:
		names := make([]string, 0, len(cookies))
		for name := range cookies {
			names = append(names, name)
		}
		sort.Strings(names)
		out := make([]Cookie, 0, len(cookies))
		for _, name := range names {
			out = append(out, Cookie{Name: name, Value: cookies[name]})
		}
		return out
	default:
		return v
	}
}
