// Package xdsresource holds the immutable value types produced by the xDS
// layer and consumed by the resolver core: virtual hosts, routes, hash
// policies, and filter configuration. None of these types are ever
// mutated after construction; a new update produces a wholly new tree.
package xdsresource

import "regexp"

// PathMatchKind selects which shape of path comparison a PathMatcher
// performs.
type PathMatchKind int

const (
	PathExact PathMatchKind = iota
	PathPrefix
	PathRegex
)

// PathMatcher matches a full RPC method name (e.g. "/pkg.Service/Method").
type PathMatcher struct {
	Kind PathMatchKind

	// Exact/Prefix is the literal value to compare against. CaseSensitive
	// applies only to these two kinds.
	Value         string
	CaseSensitive bool

	// Regex is used when Kind == PathRegex; it is always matched in full
	// (regexp.MatchString semantics with an anchored pattern).
	Regex *regexp.Regexp
}

// HeaderMatchKind selects which shape of header comparison a HeaderMatcher
// performs.
type HeaderMatchKind int

const (
	HeaderPresent HeaderMatchKind = iota
	HeaderExact
	HeaderRegex
	HeaderRange
	HeaderPrefix
	HeaderSuffix
)

// HeaderMatcher matches a single ASCII request header, indexed by name.
type HeaderMatcher struct {
	Name string
	Kind HeaderMatchKind

	// PresentValue is consulted only when Kind == HeaderPresent: it is the
	// configured "present" flag from the route config.
	PresentValue bool

	ExactValue string
	Regex      *regexp.Regexp
	RangeStart int64 // inclusive
	RangeEnd   int64 // inclusive
	Prefix     string
	Suffix     string

	Inverted bool
}

// FractionDenominator is the scale a FractionMatcher's numerator is drawn
// against.
type FractionDenominator int

const (
	DenomHundred     FractionDenominator = 100
	DenomTenThousand FractionDenominator = 10000
	DenomMillion     FractionDenominator = 1000000
)

// FractionalPercent is a numerator/denominator pair, shared by
// FractionMatcher and the fault-injection percentages.
type FractionalPercent struct {
	Numerator   uint32
	Denominator FractionDenominator
}

// FractionMatcher matches probabilistically: a uniform random draw in
// [0, Denominator) strictly less than Numerator is a match.
type FractionMatcher struct {
	Fraction FractionalPercent
}

// RouteMatch is the match predicate of a Route: path AND all headers AND
// fraction.
type RouteMatch struct {
	Path     PathMatcher
	Headers  []HeaderMatcher
	Fraction *FractionMatcher // nil means "always match"
}

// HashPolicyKind selects which input a HashPolicy contributes to the
// per-call hash.
type HashPolicyKind int

const (
	HashPolicyHeader HashPolicyKind = iota
	HashPolicyChannelID
)

// HashPolicy is one element of a RouteAction's ordered hash-policy list.
type HashPolicy struct {
	Kind HashPolicyKind

	// Header-kind fields.
	HeaderName        string
	Regex             *regexp.Regexp // optional; nil means no substitution
	RegexSubstitution string

	Terminal bool
}

// ClusterWeight is one entry of a weighted-cluster RouteAction.
type ClusterWeight struct {
	Name                     string
	Weight                   uint32
	HTTPFilterConfigOverride map[string]any
}

// RouteAction carries either a single Cluster or a WeightedClusters list,
// never both.
type RouteAction struct {
	Cluster          string // set iff WeightedClusters is empty
	WeightedClusters []ClusterWeight

	// TimeoutNano is the route's own timeout in nanoseconds; nil means
	// "use the listener's fallback timeout".
	TimeoutNano *int64

	HashPolicies []HashPolicy
}

// HasWeightedClusters reports whether the action names a weighted-cluster
// list rather than a single cluster.
func (a RouteAction) HasWeightedClusters() bool {
	return len(a.WeightedClusters) > 0
}

// Route is a single routing rule: a match predicate, an action, and a
// per-route filter-config override map keyed by filter instance name.
type Route struct {
	Match                    RouteMatch
	Action                   RouteAction
	HTTPFilterConfigOverride map[string]any
}

// VirtualHost groups routes under a set of domain patterns.
type VirtualHost struct {
	Name                     string
	Domains                  []string
	Routes                   []Route
	HTTPFilterConfigOverride map[string]any
}

// FilterConfig is the payload carried by a NamedFilterConfig. Concrete
// filter packages (e.g. httpfilter/fault) define their own config types
// implementing this marker so the filter registry can type-assert them.
type FilterConfig interface {
	isFilterConfig()
}

// RouterFilterConfig marks the position of the router filter within a
// filter chain; everything after it is unreachable.
type RouterFilterConfig struct{}

func (RouterFilterConfig) isFilterConfig() {}

// LameFilterConfig is the sentinel appended when a filter chain has no
// router filter; its presence as the chain's last entry makes the config
// selector fail every call with "No router filter".
type LameFilterConfig struct{}

func (LameFilterConfig) isFilterConfig() {}

// NamedFilterConfig pairs a filter instance name with its configuration,
// the unit the resolver walks when assembling a filter chain.
type NamedFilterConfig struct {
	Name   string
	Config FilterConfig
}

// LdsUpdate is the normalized content of a Listener Discovery response. It
// carries either an inline VirtualHosts list or a pointer to an RDS
// resource by name, never both.
type LdsUpdate struct {
	HTTPMaxStreamDurationNano int64

	// VirtualHosts is set when the listener inlines its route table.
	VirtualHosts []VirtualHost

	// RDSName is set when the listener instead points at a separate Route
	// Configuration resource.
	RDSName string

	// FilterChain is nil to mean "HTTP-filter support disabled; always
	// route".
	FilterChain []NamedFilterConfig
}

// InlineRouteConfig reports whether this update carries routes directly.
func (u LdsUpdate) InlineRouteConfig() bool {
	return u.RDSName == ""
}

// RdsUpdate is the normalized content of a Route Configuration response.
type RdsUpdate struct {
	VirtualHosts []VirtualHost
}

// RoutingConfig is the resolver's current routing snapshot. It is
// replaced atomically and never mutated in place.
type RoutingConfig struct {
	FallbackTimeoutNano int64
	Routes              []Route

	// FilterChain is nil to mean HTTP-filter support is disabled (always
	// route with no interceptors beyond cluster selection).
	FilterChain []NamedFilterConfig

	VirtualHostOverrideConfig map[string]any
}

// Empty is the zero-value RoutingConfig emitted after routing state is
// torn down: no routes, so every call fails route matching.
var Empty = RoutingConfig{}
