package matcher

import (
	"github.com/routewise/xdsresolver/internal/xrand"
	"github.com/routewise/xdsresolver/xdsresource"
)

// MatchFraction draws a uniform random integer in [0, denominator) and
// reports whether it is strictly less than the numerator. A nil matcher
// always matches. rnd is injected so tests can supply deterministic
// draws.
func MatchFraction(m *xdsresource.FractionMatcher, rnd xrand.Source) bool {
	if m == nil {
		return true
	}
	denom := int64(m.Fraction.Denominator)
	if denom <= 0 {
		return false
	}
	draw := rnd.Int63n(denom)
	return draw < int64(m.Fraction.Numerator)
}
