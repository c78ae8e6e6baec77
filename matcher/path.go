package matcher

import (
	"strings"

	"github.com/routewise/xdsresolver/xdsresource"
)

// MatchPath reports whether method satisfies m. Exact/prefix comparisons
// honor CaseSensitive; regex always matches the full method name.
func MatchPath(m xdsresource.PathMatcher, method string) bool {
	switch m.Kind {
	case xdsresource.PathExact:
		v, s := m.Value, method
		if !m.CaseSensitive {
			v, s = strings.ToLower(v), strings.ToLower(s)
		}
		return v == s
	case xdsresource.PathPrefix:
		v, s := m.Value, method
		if !m.CaseSensitive {
			v, s = strings.ToLower(v), strings.ToLower(s)
		}
		return strings.HasPrefix(s, v)
	case xdsresource.PathRegex:
		if m.Regex == nil {
			return false
		}
		loc := m.Regex.FindStringIndex(method)
		return loc != nil && loc[0] == 0 && loc[1] == len(method)
	default:
		return false
	}
}
