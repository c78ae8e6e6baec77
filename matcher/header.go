package matcher

import (
	"sort"
	"strconv"
	"strings"

	"google.golang.org/grpc/metadata"

	"github.com/routewise/xdsresolver/xdsresource"
)

// syntheticContentType is injected before header matching so that routes
// written against Envoy's own synthetic gRPC content-type header continue
// to match.
const syntheticContentType = "application/grpc"

// HeaderIndex is a flattened, comma-joined view of request metadata, built
// once per call and reused across every HeaderMatcher and hash policy
// evaluation.
type HeaderIndex map[string]string

// BuildHeaderIndex flattens md the way Envoy indexes request metadata:
// multi-valued headers are joined with "," preserving order, headers whose
// name ends in "-bin" are dropped (binary headers aren't matchable as
// strings), and a synthetic "content-type: application/grpc" entry is
// added.
func BuildHeaderIndex(md metadata.MD) HeaderIndex {
	idx := make(HeaderIndex, len(md)+1)
	for name, values := range md {
		if strings.HasSuffix(name, "-bin") {
			continue
		}
		if len(values) == 0 {
			continue
		}
		idx[name] = strings.Join(values, ",")
	}
	idx["content-type"] = syntheticContentType
	return idx
}

// Get returns the header value and whether it was present.
func (h HeaderIndex) Get(name string) (string, bool) {
	v, ok := h[name]
	return v, ok
}

// Names returns the sorted header names, useful for deterministic test
// output.
func (h HeaderIndex) Names() []string {
	names := make([]string, 0, len(h))
	for n := range h {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// MatchHeader reports whether idx satisfies m. Every kind but
// HeaderPresent computes a baseMatch and then applies the same
// baseMatch-XOR-Inverted rule; HeaderPresent instead has its own formula
// since "absent" and "inverted" interact directly rather than through an
// intermediate baseMatch. A HeaderRange value that fails to parse as an
// integer simply yields baseMatch = false and still flows through the
// XOR, so an inverted range matcher matches on non-numeric values the
// same way it matches on out-of-range ones.
func MatchHeader(m xdsresource.HeaderMatcher, idx HeaderIndex) bool {
	value, present := idx.Get(m.Name)

	if m.Kind == xdsresource.HeaderPresent {
		return (!present) == (m.PresentValue == m.Inverted)
	}

	if !present {
		return false != m.Inverted
	}

	var base bool
	switch m.Kind {
	case xdsresource.HeaderExact:
		base = value == m.ExactValue
	case xdsresource.HeaderRegex:
		base = m.Regex != nil && m.Regex.MatchString(value) && fullMatch(m.Regex, value)
	case xdsresource.HeaderRange:
		n, err := strconv.ParseInt(value, 10, 64)
		if err == nil {
			base = n >= m.RangeStart && n <= m.RangeEnd
		}
	case xdsresource.HeaderPrefix:
		base = strings.HasPrefix(value, m.Prefix)
	case xdsresource.HeaderSuffix:
		base = strings.HasSuffix(value, m.Suffix)
	default:
		base = false
	}
	return base != m.Inverted
}

func fullMatch(re interface{ FindStringIndex(string) []int }, s string) bool {
	loc := re.FindStringIndex(s)
	return loc != nil && loc[0] == 0 && loc[1] == len(s)
}
