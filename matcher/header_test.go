package matcher

import (
	"regexp"
	"testing"

	"google.golang.org/grpc/metadata"

	"github.com/routewise/xdsresolver/xdsresource"
)

func TestBuildHeaderIndexJoinsAndFiltersAndInjects(t *testing.T) {
	md := metadata.Pairs(
		"x-custom", "a",
		"x-custom", "b",
		"x-bin-bin", "also-dropped-as-bin-suffixed",
		"trace-bin", "dropped",
	)
	idx := BuildHeaderIndex(md)

	if v, ok := idx.Get("x-custom"); !ok || v != "a,b" {
		t.Errorf("x-custom = %q, %v; want \"a,b\", true", v, ok)
	}
	if _, ok := idx.Get("trace-bin"); ok {
		t.Error("expected trace-bin to be dropped as a binary header")
	}
	if v, ok := idx.Get("content-type"); !ok || v != "application/grpc" {
		t.Errorf("content-type = %q, %v; want synthetic application/grpc", v, ok)
	}
}

func TestMatchHeaderPresent(t *testing.T) {
	idx := HeaderIndex{"x-present": "v"}

	// present=true, inverted=false: requires the header to actually be present.
	if !MatchHeader(xdsresource.HeaderMatcher{Name: "x-present", Kind: xdsresource.HeaderPresent, PresentValue: true}, idx) {
		t.Error("expected present match")
	}
	if MatchHeader(xdsresource.HeaderMatcher{Name: "x-missing", Kind: xdsresource.HeaderPresent, PresentValue: true}, idx) {
		t.Error("expected present mismatch for missing header")
	}
	// present=false means "must be absent".
	if !MatchHeader(xdsresource.HeaderMatcher{Name: "x-missing", Kind: xdsresource.HeaderPresent, PresentValue: false}, idx) {
		t.Error("expected absent-required match for missing header")
	}
}

func TestMatchHeaderExactAndInverted(t *testing.T) {
	idx := HeaderIndex{"k": "v"}
	m := xdsresource.HeaderMatcher{Name: "k", Kind: xdsresource.HeaderExact, ExactValue: "v"}
	if !MatchHeader(m, idx) {
		t.Error("expected exact match")
	}
	m.Inverted = true
	if MatchHeader(m, idx) {
		t.Error("expected inverted exact match to fail")
	}
}

func TestMatchHeaderRegexFullMatch(t *testing.T) {
	idx := HeaderIndex{"k": "abc123"}
	m := xdsresource.HeaderMatcher{Name: "k", Kind: xdsresource.HeaderRegex, Regex: regexp.MustCompile(`^[a-z]+\d+$`)}
	if !MatchHeader(m, idx) {
		t.Error("expected full regex match")
	}
	m2 := xdsresource.HeaderMatcher{Name: "k", Kind: xdsresource.HeaderRegex, Regex: regexp.MustCompile(`^[a-z]+$`)}
	if MatchHeader(m2, idx) {
		t.Error("expected partial regex match to be rejected")
	}
}

func TestMatchHeaderRangeParseFailureIsBaseMismatch(t *testing.T) {
	idx := HeaderIndex{"k": "not-a-number"}
	m := xdsresource.HeaderMatcher{Name: "k", Kind: xdsresource.HeaderRange, RangeStart: 0, RangeEnd: 100, Inverted: true}
	if !MatchHeader(m, idx) {
		t.Error("parse failure is a base mismatch, so an inverted range matcher must match")
	}
}

func TestMatchHeaderRange(t *testing.T) {
	idx := HeaderIndex{"k": "42"}
	m := xdsresource.HeaderMatcher{Name: "k", Kind: xdsresource.HeaderRange, RangeStart: 0, RangeEnd: 100}
	if !MatchHeader(m, idx) {
		t.Error("expected 42 to be in [0, 100]")
	}
	m.RangeEnd = 10
	if MatchHeader(m, idx) {
		t.Error("expected 42 to be outside [0, 10]")
	}
}

func TestMatchHeaderPrefixSuffix(t *testing.T) {
	idx := HeaderIndex{"k": "hello-world"}
	if !MatchHeader(xdsresource.HeaderMatcher{Name: "k", Kind: xdsresource.HeaderPrefix, Prefix: "hello"}, idx) {
		t.Error("expected prefix match")
	}
	if !MatchHeader(xdsresource.HeaderMatcher{Name: "k", Kind: xdsresource.HeaderSuffix, Suffix: "world"}, idx) {
		t.Error("expected suffix match")
	}
}
