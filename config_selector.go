package xdsresolver

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/routewise/xdsresolver/hashfn"
	"github.com/routewise/xdsresolver/httpfilter"
	"github.com/routewise/xdsresolver/httpfilter/fault"
	"github.com/routewise/xdsresolver/internal/xrand"
	"github.com/routewise/xdsresolver/matcher"
	"github.com/routewise/xdsresolver/xdsresource"
)

// PickResult is what a successful SelectConfig call returns: the parsed
// per-method service config (the parse of the empty config when no
// timeout applies; nil on the LAME path) and the assembled interceptor
// chain to run before the call starts.
type PickResult struct {
	ServiceConfig ParsedServiceConfig
	Interceptor   httpfilter.ClientInterceptor
}

// configSelector implements the per-call routing decision. A single
// instance lives for the resolver's whole lifetime; it holds no routing
// state of its own beyond a reference to the resolver, reading the
// resolver's atomic RoutingConfig snapshot fresh on every call.
type configSelector struct {
	r *xdsResolver
}

func newConfigSelector(r *xdsResolver) *configSelector {
	return &configSelector{r: r}
}

// SelectConfig runs the full per-call algorithm: route match, cluster
// pick, override merge, retain-with-retry, timeout service config, hash
// generation, and interceptor assembly.
func (cs *configSelector) SelectConfig(ctx context.Context, method string) (*PickResult, *status.Status) {
	md, _ := metadata.FromOutgoingContext(ctx)
	idx := matcher.BuildHeaderIndex(md)

	for {
		rc := cs.r.routingConfig.Load()

		if lameFilterChain(rc.FilterChain) {
			return &PickResult{Interceptor: lameInterceptor{}}, nil
		}

		route, ok := matchRoutes(rc.Routes, method, idx, cs.r.rnd)
		if !ok {
			return nil, status.New(codes.Unavailable, "Could not find xDS route matching RPC")
		}

		cluster, weighted := pickCluster(route.Action, cs.r.rnd)
		overrides := mergeOverrides(rc.VirtualHostOverrideConfig, route.HTTPFilterConfigOverride, weighted)

		if !cs.r.clusterRefs.retain(cluster) {
			// Lost the race with a concurrent eviction; re-snapshot and
			// retry the whole attempt.
			continue
		}

		svcCfg, err := cs.methodServiceConfig(route.Action, rc.FallbackTimeoutNano)
		if err != nil {
			cs.r.clusterRefs.release(cluster)
			return nil, err
		}

		hash := generateHash(route.Action.HashPolicies, idx, cs.r.channelID, cs.r.rnd)

		interceptor, ierr := cs.buildInterceptorChain(rc.FilterChain, overrides, method, ctx, cluster, hash)
		if ierr != nil {
			cs.r.clusterRefs.release(cluster)
			return nil, ierr
		}

		return &PickResult{ServiceConfig: svcCfg, Interceptor: interceptor}, nil
	}
}

// lameFilterChain reports whether chain's last entry is the LAME sentinel.
func lameFilterChain(chain []xdsresource.NamedFilterConfig) bool {
	if len(chain) == 0 {
		return false
	}
	_, ok := chain[len(chain)-1].Config.(xdsresource.LameFilterConfig)
	return ok
}

// matchRoutes is a linear scan for the first route whose match predicate
// is satisfied.
func matchRoutes(routes []xdsresource.Route, method string, idx matcher.HeaderIndex, rnd xrand.Source) (xdsresource.Route, bool) {
	for _, rt := range routes {
		if matcher.MatchRoute(rt.Match, method, idx, rnd) {
			return rt, true
		}
	}
	return xdsresource.Route{}, false
}

// weightedPick carries the chosen weighted-cluster entry, used to locate
// its per-cluster override map.
type weightedPick struct {
	cw    xdsresource.ClusterWeight
	isSet bool
}

// pickCluster determines the destination cluster: either the action's
// single cluster, or a cumulative-weight draw over weightedClusters.
func pickCluster(action xdsresource.RouteAction, rnd xrand.Source) (string, weightedPick) {
	if !action.HasWeightedClusters() {
		return action.Cluster, weightedPick{}
	}
	var total int64
	for _, cw := range action.WeightedClusters {
		total += int64(cw.Weight)
	}
	r := rnd.Int63n(total)
	var cum int64
	for _, cw := range action.WeightedClusters {
		cum += int64(cw.Weight)
		if r < cum {
			return cw.Name, weightedPick{cw: cw, isSet: true}
		}
	}
	// Unreachable for well-formed weights (total > 0, r < total), but
	// fall back to the last entry rather than an empty cluster name.
	last := action.WeightedClusters[len(action.WeightedClusters)-1]
	return last.Name, weightedPick{cw: last, isSet: true}
}

// mergeOverrides layers the per-call filter-config override maps, later
// overriding earlier: virtualHost -> route -> weightedCluster.
func mergeOverrides(vhost, route map[string]any, wp weightedPick) map[string]any {
	merged := make(map[string]any, len(vhost)+len(route))
	for k, v := range vhost {
		merged[k] = v
	}
	for k, v := range route {
		merged[k] = v
	}
	if wp.isSet {
		for k, v := range wp.cw.HTTPFilterConfigOverride {
			merged[k] = v
		}
	}
	return merged
}

// methodServiceConfig computes the per-method timeout service config.
func (cs *configSelector) methodServiceConfig(action xdsresource.RouteAction, fallbackNano int64) (ParsedServiceConfig, *status.Status) {
	timeout := fallbackNano
	if action.TimeoutNano != nil {
		timeout = *action.TimeoutNano
	}

	var raw map[string]any
	if cs.r.enableTimeout && timeout > 0 {
		raw = buildMethodTimeoutConfig(timeout)
	} else {
		raw = emptyServiceConfig
	}

	parsed, err := cs.r.serviceConfigParser.ParseServiceConfig(raw)
	if err != nil {
		st, ok := status.FromError(err)
		if !ok {
			st = status.New(codes.Internal, err.Error())
		}
		return nil, status.New(st.Code(), "Failed to parse service config (method config): "+st.Message())
	}
	return parsed, nil
}

// generateHash computes the RPC hash over a route's hash-policy list.
func generateHash(policies []xdsresource.HashPolicy, idx matcher.HeaderIndex, channelID uint64, rnd xrand.Source) uint64 {
	var hash uint64
	var matched bool

	for _, p := range policies {
		newHash, ok := hashPolicyValue(p, idx, channelID)
		if ok {
			hash = hashfn.RotateLeft1(hash) ^ newHash
			matched = true
		}
		if p.Terminal && matched {
			break
		}
	}

	if !matched {
		return rnd.Uint64()
	}
	return hash
}

func hashPolicyValue(p xdsresource.HashPolicy, idx matcher.HeaderIndex, channelID uint64) (uint64, bool) {
	switch p.Kind {
	case xdsresource.HashPolicyHeader:
		v, present := idx.Get(p.HeaderName)
		if !present {
			return 0, false
		}
		if p.Regex != nil {
			v = p.Regex.ReplaceAllString(v, p.RegexSubstitution)
		}
		return hashfn.HashAsciiString(v), true
	case xdsresource.HashPolicyChannelID:
		return hashfn.HashLong(channelID), true
	default:
		return 0, false
	}
}

// buildInterceptorChain resolves each named filter from the registry and
// appends the cluster-selection interceptor last.
func (cs *configSelector) buildInterceptorChain(chain []xdsresource.NamedFilterConfig, overrides map[string]any, method string, ctx context.Context, cluster string, hash uint64) (httpfilter.ClientInterceptor, *status.Status) {
	var built httpfilter.Chain
	ri := httpfilter.RPCInfo{Context: ctx, Method: method}

	for _, nfc := range chain {
		if _, isRouter := nfc.Config.(xdsresource.RouterFilterConfig); isRouter {
			continue
		}
		typeURL := filterTypeURL(nfc.Config)
		if typeURL == "" {
			continue
		}
		f, ok := cs.r.filterRegistry.Get(typeURL)
		if !ok {
			continue
		}
		builder, ok := f.(httpfilter.ClientInterceptorBuilder)
		if !ok {
			continue
		}
		override, _ := overrides[nfc.Name].(xdsresource.FilterConfig)
		ic, err := builder.BuildClientInterceptor(nfc.Config, override, ri, cs.r.scheduler)
		if err != nil {
			return nil, status.New(codes.Internal, err.Error())
		}
		if ic != nil {
			built = append(built, ic)
		}
	}

	if !lameFilterChain(chain) {
		built = append(built, &clusterSelectionInterceptor{
			cluster:    cluster,
			hash:       hash,
			clusterRef: cs.r.clusterRefs,
		})
	}

	return built, nil
}

// filterTypeURL maps a concrete FilterConfig value to the type URL its
// registry entry is keyed under. The set of concrete FilterConfig types
// is small and closed (RouterFilterConfig and LameFilterConfig never
// reach here; FaultConfig is the only filter with registry entries in
// scope), so a type switch is simpler and clearer than threading a
// TypeURL field through every FilterConfig implementation.
func filterTypeURL(cfg xdsresource.FilterConfig) string {
	switch cfg.(type) {
	case *xdsresource.FaultConfig:
		return fault.TypeURL
	default:
		return ""
	}
}

// lameInterceptor is installed as the sole interceptor when the routing
// config's filter chain ends with the LAME sentinel, meaning no router
// filter was found: every call on that routing config fails immediately.
type lameInterceptor struct{}

func (lameInterceptor) Start(httpfilter.RPCInfo, *httpfilter.CallOptions, *httpfilter.CallLifecycle) *status.Status {
	return status.New(codes.Unavailable, "No router filter")
}

// clusterSelectionInterceptor sets the per-call cluster and hash options
// and guarantees exactly one release(cluster) regardless of how the call
// ends.
type clusterSelectionInterceptor struct {
	cluster    string
	hash       uint64
	clusterRef *clusterRefTable
}

func (ic *clusterSelectionInterceptor) Start(ri httpfilter.RPCInfo, opts *httpfilter.CallOptions, cl *httpfilter.CallLifecycle) *status.Status {
	opts.Cluster = ic.cluster
	opts.RPCHash = ic.hash

	var committed bool
	cl.OnHeaders(func() {
		if committed {
			return
		}
		committed = true
		ic.clusterRef.release(ic.cluster)
	})
	cl.OnClose(func() {
		if !committed {
			committed = true
			ic.clusterRef.release(ic.cluster)
		}
	})
	return nil
}
