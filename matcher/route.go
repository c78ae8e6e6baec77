package matcher

import (
	"github.com/routewise/xdsresolver/internal/xrand"
	"github.com/routewise/xdsresolver/xdsresource"
)

// MatchRoute reports whether a route's match predicate is satisfied: path
// matches AND every header matcher matches AND the fraction matches.
func MatchRoute(m xdsresource.RouteMatch, method string, idx HeaderIndex, rnd xrand.Source) bool {
	if !MatchPath(m.Path, method) {
		return false
	}
	for _, hm := range m.Headers {
		if !MatchHeader(hm, idx) {
			return false
		}
	}
	return MatchFraction(m.Fraction, rnd)
}
