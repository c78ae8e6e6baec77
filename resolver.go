// Package xdsresolver implements the xDS name resolver core: the LDS/RDS
// watcher state machine, the cluster reference-counting protocol, and the
// per-call config selector.
package xdsresolver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"google.golang.org/grpc/resolver"

	"github.com/routewise/xdsresolver/httpfilter"
	"github.com/routewise/xdsresolver/internal/envconfig"
	"github.com/routewise/xdsresolver/internal/grpclog"
	"github.com/routewise/xdsresolver/internal/syncctx"
	"github.com/routewise/xdsresolver/internal/xrand"
	"github.com/routewise/xdsresolver/matcher"
	"github.com/routewise/xdsresolver/scheduler"
	"github.com/routewise/xdsresolver/xdsresource"
)

// Scheme is this resolver's scheme, as returned by Builder.Scheme. This
// package does not register a Builder with the grpc resolver registry.
const Scheme = "xds"

// Builder implements resolver.Builder. Bootstrap loading and xDS client
// construction are out of scope for this core; Builder is handed a
// ready-made factory for both instead of performing them itself.
type Builder struct {
	// NewXdsClient constructs the XdsClient this resolver will watch
	// through, and a close func to release it. Required.
	NewXdsClient func() (XdsClient, func(), error)

	// FilterRegistry is the registry of HTTP filters available to the
	// config selector. A nil registry uses NewDefaultFilterRegistry.
	FilterRegistry *httpfilter.Registry

	// ServiceConfigParser parses the service config maps this resolver
	// emits. Required.
	ServiceConfigParser ServiceConfigParser

	// Scheduler backs delayed fault-filter work. A nil Scheduler uses
	// scheduler.New().
	Scheduler scheduler.Scheduler

	// Logger receives structured resolver logs. A nil Logger uses a
	// default stderr text handler.
	Logger *slog.Logger
}

// Scheme implements resolver.Builder.
func (*Builder) Scheme() string { return Scheme }

// Build implements resolver.Builder. The bootstrap process that maps a
// dial target to a listener resource name template is out of scope here;
// the target's path (or opaque part), with any leading slash trimmed, is
// used directly as the LDS resource name.
func (b *Builder) Build(target resolver.Target, cc resolver.ClientConn, _ resolver.BuildOptions) (_ resolver.Resolver, retErr error) {
	if b.NewXdsClient == nil {
		return nil, fmt.Errorf("xdsresolver: NewXdsClient is required")
	}
	if b.ServiceConfigParser == nil {
		return nil, fmt.Errorf("xdsresolver: ServiceConfigParser is required")
	}

	registry := b.FilterRegistry
	if registry == nil {
		registry = NewDefaultFilterRegistry()
	}
	sched := b.Scheduler
	if sched == nil {
		sched = scheduler.New()
	}

	r := &xdsResolver{
		cc:                  cc,
		channelID:           xrand.Global().Uint64(),
		filterRegistry:      registry,
		serviceConfigParser: b.ServiceConfigParser,
		scheduler:           sched,
		rnd:                 xrand.Global(),
		enableTimeout:       envconfig.XDSEnableTimeout,
	}
	defer func() {
		if retErr != nil {
			r.Close()
		}
	}()

	r.logger = grpclog.New(b.Logger, fmt.Sprintf("[xds-resolver %p]", r), 2)
	r.logger.Infof("Creating resolver for target: %+v", target)

	ctx, cancel := context.WithCancel(context.Background())
	r.serializer = syncctx.NewCallbackSerializer(ctx)
	r.serializerCancel = cancel

	client, closeClient, err := b.NewXdsClient()
	if err != nil {
		return nil, fmt.Errorf("xdsresolver: failed to create xds client: %v", err)
	}
	r.xdsClient = client
	r.xdsClientClose = closeClient

	r.clusterRefs = newClusterRefTable(func() {
		r.serializer.Schedule(func(context.Context) { r.onClusterRefChange() })
	})
	r.routingConfig.Store(&xdsresource.Empty)
	r.cs = newConfigSelector(r)

	endpoint := target.URL.Path
	if endpoint == "" {
		endpoint = target.URL.Opaque
	}
	r.authority = strings.TrimPrefix(endpoint, "/")
	r.ldsResourceName = r.authority
	r.listenerWatcher = newListenerWatcher(r.ldsResourceName, r)

	return r, nil
}

// xdsResolver implements resolver.Resolver. Every method except
// ResolveNow and Close executes only on the synchronization context;
// Close coordinates with the serializer explicitly before touching
// shared state.
type xdsResolver struct {
	cc             resolver.ClientConn
	logger         *grpclog.PrefixLogger
	xdsClient      XdsClient
	xdsClientClose func()
	channelID      uint64
	authority      string

	serializer       *syncctx.CallbackSerializer
	serializerCancel context.CancelFunc

	ldsResourceName     string
	listenerWatcher     *listenerWatcher
	listenerUpdateRecvd bool

	rdsResourceName        string
	routeConfigWatcher     *routeConfigWatcher
	routeConfigUpdateRecvd bool
	rdsFallbackNano        int64
	rdsFilterChain         []xdsresource.NamedFilterConfig

	clusterRefs   *clusterRefTable
	routingConfig atomic.Pointer[xdsresource.RoutingConfig]
	emittedOnce   bool

	filterRegistry      *httpfilter.Registry
	serviceConfigParser ServiceConfigParser
	scheduler           scheduler.Scheduler
	rnd                 xrand.Source
	enableTimeout       bool

	cs *configSelector
}

// ResolveNow is a no-op: this core has nothing to re-trigger on demand
// beyond what the LDS/RDS watch streams already deliver.
func (*xdsResolver) ResolveNow(resolver.ResolveNowOptions) {}

// Close cancels the synchronization context, waits for queued callbacks
// to drain, then tears down the watches and the xDS client.
func (r *xdsResolver) Close() {
	r.serializerCancel()
	<-r.serializer.Done()

	if r.listenerWatcher != nil {
		r.listenerWatcher.stop()
	}
	if r.routeConfigWatcher != nil {
		r.routeConfigWatcher.stop()
	}
	if r.xdsClientClose != nil {
		r.xdsClientClose()
	}
	r.logger.Infof("Shutdown")
}

// emitResolutionResult sends the current cluster set and config selector
// to the channel.
func (r *xdsResolver) emitResolutionResult() {
	names := r.clusterRefs.names()
	raw := buildLBServiceConfig(names)
	parsed, err := r.serviceConfigParser.ParseServiceConfig(raw)
	if err != nil {
		r.logger.Errorf("failed to parse generated load balancing service config: %v", err)
		r.cc.ReportError(err)
		return
	}
	r.emittedOnce = true
	r.cc.UpdateState(SetConfigSelector(resolver.State{ServiceConfig: parsed}, r.cs))
}

// emitEmptyResult sends an empty service config and no config-selector
// attribute.
func (r *xdsResolver) emitEmptyResult() {
	parsed, err := r.serviceConfigParser.ParseServiceConfig(emptyServiceConfig)
	if err != nil {
		r.logger.Errorf("failed to parse empty service config: %v", err)
		r.cc.ReportError(err)
		return
	}
	r.emittedOnce = true
	r.cc.UpdateState(resolver.State{ServiceConfig: parsed})
}

// onClusterRefChange runs on the synchronization context, scheduled by the
// clusterRefTable's onZero callback after a release evicted a cluster from
// the table, so a fresh resolution result must be emitted.
func (r *xdsResolver) onClusterRefChange() {
	r.emitResolutionResult()
}

func (r *xdsResolver) onError(err error) {
	r.cc.ReportError(err)
}

// onResourceNotFound tears down routing state: every currently-present
// cluster loses its membership share, the routing config is reset to
// empty, and an empty resolution result is emitted.
func (r *xdsResolver) onResourceNotFound() {
	r.clusterRefs.applyMembership(map[string]struct{}{})
	r.routingConfig.Store(&xdsresource.Empty)
	r.emitEmptyResult()
}

func (r *xdsResolver) onListenerResourceUpdate(update xdsresource.LdsUpdate) {
	if r.logger.V(2) {
		r.logger.Infof("received update for listener resource %q", r.ldsResourceName)
	}
	r.listenerUpdateRecvd = true

	if update.InlineRouteConfig() {
		r.rdsResourceName = ""
		if r.routeConfigWatcher != nil {
			r.routeConfigWatcher.stop()
			r.routeConfigWatcher = nil
		}
		r.updateRoutes(update.VirtualHosts, update.HTTPMaxStreamDurationNano, update.FilterChain)
		return
	}

	if r.rdsResourceName == update.RDSName && r.routeConfigWatcher != nil {
		// Same RDS resource as before: refresh the stored listener-level
		// fields and keep the existing watch. Nothing is recomputed or
		// emitted here; the new values take effect on the next route
		// configuration update.
		r.rdsFallbackNano = update.HTTPMaxStreamDurationNano
		r.rdsFilterChain = update.FilterChain
		return
	}

	if r.routeConfigWatcher != nil {
		r.routeConfigWatcher.stop()
		r.routeConfigWatcher = nil
		r.routeConfigUpdateRecvd = false
	}
	r.rdsResourceName = update.RDSName
	r.rdsFallbackNano = update.HTTPMaxStreamDurationNano
	r.rdsFilterChain = update.FilterChain
	r.routeConfigWatcher = newRouteConfigWatcher(r.rdsResourceName, r)
}

func (r *xdsResolver) onListenerResourceError(err error) {
	if r.logger.V(2) {
		r.logger.Infof("received error for listener resource %q: %v", r.ldsResourceName, err)
	}
	r.onError(err)
}

func (r *xdsResolver) onListenerResourceNotFound() {
	if r.logger.V(2) {
		r.logger.Infof("received resource-does-not-exist for listener resource %q", r.ldsResourceName)
	}
	r.listenerUpdateRecvd = false
	if r.routeConfigWatcher != nil {
		r.routeConfigWatcher.stop()
		r.routeConfigWatcher = nil
	}
	r.rdsResourceName = ""
	r.routeConfigUpdateRecvd = false
	r.onResourceNotFound()
}

func (r *xdsResolver) onRouteConfigResourceUpdate(update xdsresource.RdsUpdate) {
	if r.logger.V(2) {
		r.logger.Infof("received update for route configuration resource %q", r.rdsResourceName)
	}
	r.routeConfigUpdateRecvd = true
	r.updateRoutes(update.VirtualHosts, r.rdsFallbackNano, r.rdsFilterChain)
}

func (r *xdsResolver) onRouteConfigResourceError(err error) {
	if r.logger.V(2) {
		r.logger.Infof("received error for route configuration resource %q: %v", r.rdsResourceName, err)
	}
	r.onError(err)
}

func (r *xdsResolver) onRouteConfigResourceNotFound() {
	if r.logger.V(2) {
		r.logger.Infof("received resource-does-not-exist for route configuration resource %q", r.rdsResourceName)
	}
	r.routeConfigUpdateRecvd = false
	r.onResourceNotFound()
}

// updateRoutes recomputes the routing config and cluster membership from
// a newly received set of virtual hosts, then emits a resolution result
// if the table's cluster set changed or no result has been emitted yet.
func (r *xdsResolver) updateRoutes(virtualHosts []xdsresource.VirtualHost, fallbackNano int64, filterConfigs []xdsresource.NamedFilterConfig) {
	vh := matcher.FindBestMatchingVirtualHost(r.authority, virtualHosts)
	if vh == nil {
		r.onResourceNotFound()
		return
	}

	routes, effectiveChain := effectiveRoutesAndChain(vh.Routes, filterConfigs)

	newSet := clusterSetForRoutes(routes)

	rc := &xdsresource.RoutingConfig{
		FallbackTimeoutNano:       fallbackNano,
		Routes:                    routes,
		FilterChain:               effectiveChain,
		VirtualHostOverrideConfig: vh.HTTPFilterConfigOverride,
	}

	// Publish the new RoutingConfig before updating membership, so that any
	// reader observing the wider cluster set already sees the routes that
	// might pick from it.
	r.routingConfig.Store(rc)
	changed := r.clusterRefs.applyMembership(newSet)
	if changed || !r.emittedOnce {
		r.emitResolutionResult()
	}
}

// effectiveRoutesAndChain truncates filterConfigs at the first router
// filter, since nothing past it can ever run; if filterConfigs has no
// router filter at all, it appends a lame-duck filter and drops the
// routes entirely, so every call on this virtual host fails with a clear
// error instead of falling through to whatever filter happens to be last.
func effectiveRoutesAndChain(routes []xdsresource.Route, filterConfigs []xdsresource.NamedFilterConfig) ([]xdsresource.Route, []xdsresource.NamedFilterConfig) {
	if filterConfigs == nil {
		return routes, nil
	}

	for i, nfc := range filterConfigs {
		if _, ok := nfc.Config.(xdsresource.RouterFilterConfig); ok {
			return routes, filterConfigs[:i+1]
		}
	}

	lamed := append(append([]xdsresource.NamedFilterConfig(nil), filterConfigs...), xdsresource.NamedFilterConfig{
		Name:   "envoy.filters.http.router.lame",
		Config: xdsresource.LameFilterConfig{},
	})
	return nil, lamed
}

// clusterSetForRoutes collects every cluster name referenced by routes,
// whether directly or through a weighted-cluster action.
func clusterSetForRoutes(routes []xdsresource.Route) map[string]struct{} {
	set := make(map[string]struct{})
	for _, rt := range routes {
		if rt.Action.HasWeightedClusters() {
			for _, cw := range rt.Action.WeightedClusters {
				set[cw.Name] = struct{}{}
			}
			continue
		}
		set[rt.Action.Cluster] = struct{}{}
	}
	return set
}
