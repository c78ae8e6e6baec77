package xdsresolver

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc/resolver"
	"google.golang.org/grpc/serviceconfig"

	"github.com/routewise/xdsresolver/httpfilter"
	"github.com/routewise/xdsresolver/xdsresource"
)

// fakeXdsClient is an in-process XdsClient test double: watches are
// recorded and updates are delivered by the test calling straight into the
// captured watcher, the way a real xds client would from its own goroutine.
type fakeXdsClient struct {
	mu          sync.Mutex
	ldsWatchers map[string]ListenerWatcher
	rdsWatchers map[string]RouteConfigWatcher
	ldsCancels  int
	rdsCancels  int
}

func newFakeXdsClient() *fakeXdsClient {
	return &fakeXdsClient{
		ldsWatchers: make(map[string]ListenerWatcher),
		rdsWatchers: make(map[string]RouteConfigWatcher),
	}
}

func (c *fakeXdsClient) WatchListener(name string, w ListenerWatcher) func() {
	c.mu.Lock()
	c.ldsWatchers[name] = w
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.ldsWatchers, name)
		c.ldsCancels++
		c.mu.Unlock()
	}
}

func (c *fakeXdsClient) WatchRouteConfig(name string, w RouteConfigWatcher) func() {
	c.mu.Lock()
	c.rdsWatchers[name] = w
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.rdsWatchers, name)
		c.rdsCancels++
		c.mu.Unlock()
	}
}

func (c *fakeXdsClient) lds(name string) ListenerWatcher {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ldsWatchers[name]
}

func (c *fakeXdsClient) rds(name string) RouteConfigWatcher {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rdsWatchers[name]
}

func (c *fakeXdsClient) rdsWatchCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.rdsWatchers)
}

// fakeClientConn is a resolver.ClientConn test double recording every
// state update and error report.
type fakeClientConn struct {
	resolver.ClientConn // embed to satisfy any methods this test doesn't exercise

	mu     sync.Mutex
	states []resolver.State
	errs   []error
}

func (cc *fakeClientConn) UpdateState(s resolver.State) error {
	cc.mu.Lock()
	cc.states = append(cc.states, s)
	cc.mu.Unlock()
	return nil
}

func (cc *fakeClientConn) ReportError(err error) {
	cc.mu.Lock()
	cc.errs = append(cc.errs, err)
	cc.mu.Unlock()
}

func (cc *fakeClientConn) ParseServiceConfig(string) *serviceconfig.ParseResult {
	return &serviceconfig.ParseResult{}
}

func (cc *fakeClientConn) lastState() (resolver.State, bool) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	if len(cc.states) == 0 {
		return resolver.State{}, false
	}
	return cc.states[len(cc.states)-1], true
}

func (cc *fakeClientConn) stateCount() int {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return len(cc.states)
}

func (cc *fakeClientConn) errCount() int {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return len(cc.errs)
}

// waitSync blocks until every callback scheduled on r's synchronization
// context up to this point has run, by scheduling a barrier after them and
// waiting for it (the serializer runs callbacks strictly in FIFO order).
func waitSync(r *xdsResolver) {
	done := make(chan struct{})
	r.serializer.Schedule(func(context.Context) { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		panic("waitSync: serializer did not drain in time")
	}
}

func buildTestResolver(t *testing.T, xdsClient *fakeXdsClient, cc *fakeClientConn, path string) *xdsResolver {
	t.Helper()
	b := &Builder{
		NewXdsClient:        func() (XdsClient, func(), error) { return xdsClient, func() {}, nil },
		ServiceConfigParser: &capturingParser{},
	}
	target := resolver.Target{URL: url.URL{Path: path}}
	res, err := b.Build(target, cc, resolver.BuildOptions{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(res.Close)
	return res.(*xdsResolver)
}

func simpleVirtualHost(cluster string) xdsresource.VirtualHost {
	return xdsresource.VirtualHost{
		Domains: []string{"*"},
		Routes: []xdsresource.Route{{
			Match:  xdsresource.RouteMatch{Path: xdsresource.PathMatcher{Kind: xdsresource.PathPrefix, Value: "/"}},
			Action: xdsresource.RouteAction{Cluster: cluster},
		}},
	}
}

// TestInlineListenerEmitsResolutionResult verifies that an LDS update
// with inline routes and a router filter produces a resolution result
// naming its cluster.
func TestInlineListenerEmitsResolutionResult(t *testing.T) {
	xdsClient := newFakeXdsClient()
	cc := &fakeClientConn{}
	r := buildTestResolver(t, xdsClient, cc, "/my-listener")

	lw := xdsClient.lds("my-listener")
	if lw == nil {
		t.Fatal("expected a listener watch registered for my-listener")
	}

	lw.OnUpdate(xdsresource.LdsUpdate{
		VirtualHosts: []xdsresource.VirtualHost{simpleVirtualHost("cluster-a")},
		FilterChain:  routerChain(),
	})
	waitSync(r)

	if got := cc.stateCount(); got == 0 {
		t.Fatal("expected at least one UpdateState call")
	}
	state, _ := cc.lastState()
	if _, ok := GetConfigSelector(state); !ok {
		t.Error("expected a config selector attached to the resolution result")
	}

	pr, st := r.cs.SelectConfig(context.Background(), "/pkg.Svc/Method")
	if st != nil {
		t.Fatalf("SelectConfig: %v", st)
	}
	chain := pr.Interceptor.(httpfilter.Chain)
	sel := chain[len(chain)-1].(*clusterSelectionInterceptor)
	if sel.cluster != "cluster-a" {
		t.Errorf("picked cluster %q, want cluster-a", sel.cluster)
	}
}

// TestLDSRDSStateMachine verifies that LDS naming an RDS resource
// produces no result until RDS arrives; LDS revocation emits exactly one
// empty result and cancels the RDS watch; re-sending the same LDS then
// RDS reproduces the original result.
func TestLDSRDSStateMachine(t *testing.T) {
	xdsClient := newFakeXdsClient()
	cc := &fakeClientConn{}
	r := buildTestResolver(t, xdsClient, cc, "/my-listener")

	lw := xdsClient.lds("my-listener")
	lw.OnUpdate(xdsresource.LdsUpdate{RDSName: "my-route", FilterChain: routerChain()})
	waitSync(r)
	if got := cc.stateCount(); got != 0 {
		t.Fatalf("expected no resolution result before RDS arrives, got %d", got)
	}
	if xdsClient.rdsWatchCount() != 1 {
		t.Fatalf("expected exactly one RDS watch, got %d", xdsClient.rdsWatchCount())
	}

	rw := xdsClient.rds("my-route")
	if rw == nil {
		t.Fatal("expected a route config watch registered for my-route")
	}
	rw.OnUpdate(xdsresource.RdsUpdate{VirtualHosts: []xdsresource.VirtualHost{simpleVirtualHost("cluster-a")}})
	waitSync(r)
	firstCount := cc.stateCount()
	if firstCount == 0 {
		t.Fatal("expected a resolution result once RDS arrives")
	}

	// LDS revocation: exactly one empty result, and the RDS watch is torn
	// down.
	lw.OnResourceDoesNotExist()
	waitSync(r)
	if xdsClient.rdsWatchCount() != 0 {
		t.Errorf("expected the RDS watch to be cancelled, got %d still active", xdsClient.rdsWatchCount())
	}
	afterRevocation := cc.stateCount()
	if afterRevocation != firstCount+1 {
		t.Fatalf("expected exactly one additional (empty) result on revocation, got %d new results", afterRevocation-firstCount)
	}
	state, _ := cc.lastState()
	if _, ok := GetConfigSelector(state); ok {
		t.Error("expected no config selector attached to the empty revocation result")
	}

	// Re-sending the same LDS then RDS reproduces the original result.
	lw2 := xdsClient.lds("my-listener")
	if lw2 == nil {
		t.Fatal("expected the listener watch to still be active after revocation")
	}
	lw2.OnUpdate(xdsresource.LdsUpdate{RDSName: "my-route", FilterChain: routerChain()})
	waitSync(r)
	rw2 := xdsClient.rds("my-route")
	if rw2 == nil {
		t.Fatal("expected a fresh RDS watch after LDS repoints at the same name")
	}
	rw2.OnUpdate(xdsresource.RdsUpdate{VirtualHosts: []xdsresource.VirtualHost{simpleVirtualHost("cluster-a")}})
	waitSync(r)

	pr, st := r.cs.SelectConfig(context.Background(), "/pkg.Svc/Method")
	if st != nil {
		t.Fatalf("SelectConfig: %v", st)
	}
	chain := pr.Interceptor.(httpfilter.Chain)
	sel := chain[len(chain)-1].(*clusterSelectionInterceptor)
	if sel.cluster != "cluster-a" {
		t.Errorf("picked cluster %q, want cluster-a after re-establishing the same names", sel.cluster)
	}
}

// TestStaleRouteConfigUpdateDropped verifies that after LDS repoints to
// a new RDS name, a callback racing in from the old watcher must not be
// applied.
func TestStaleRouteConfigUpdateDropped(t *testing.T) {
	xdsClient := newFakeXdsClient()
	cc := &fakeClientConn{}
	r := buildTestResolver(t, xdsClient, cc, "/my-listener")

	lw := xdsClient.lds("my-listener")
	lw.OnUpdate(xdsresource.LdsUpdate{RDSName: "route-1", FilterChain: routerChain()})
	waitSync(r)
	staleRW := xdsClient.rds("route-1")

	lw.OnUpdate(xdsresource.LdsUpdate{RDSName: "route-2", FilterChain: routerChain()})
	waitSync(r)

	// The stale watcher for route-1 delivers an update after the resolver
	// has already moved on to route-2.
	staleRW.OnUpdate(xdsresource.RdsUpdate{VirtualHosts: []xdsresource.VirtualHost{simpleVirtualHost("cluster-stale")}})
	waitSync(r)

	if got := cc.stateCount(); got != 0 {
		t.Fatalf("expected the stale update to produce no resolution result, got %d", got)
	}
}

// TestMissingRouterFilterFailsCallsButResolves verifies that a filter
// chain with no router filter still resolves successfully, but every
// call fails with "No router filter".
func TestMissingRouterFilterFailsCallsButResolves(t *testing.T) {
	xdsClient := newFakeXdsClient()
	cc := &fakeClientConn{}
	r := buildTestResolver(t, xdsClient, cc, "/my-listener")

	lw := xdsClient.lds("my-listener")
	lw.OnUpdate(xdsresource.LdsUpdate{
		VirtualHosts: []xdsresource.VirtualHost{simpleVirtualHost("cluster-a")},
		// A non-nil but router-less chain: effectiveRoutesAndChain appends
		// the LAME sentinel since no RouterFilterConfig entry is found.
		FilterChain: []xdsresource.NamedFilterConfig{},
	})
	waitSync(r)

	if got := cc.stateCount(); got == 0 {
		t.Fatal("expected resolution to still succeed with no router filter")
	}

	pr, st := r.cs.SelectConfig(context.Background(), "/pkg.Svc/Method")
	if st != nil {
		t.Fatalf("expected SelectConfig itself to succeed, got %v", st)
	}
	gotSt := pr.Interceptor.Start(httpfilter.RPCInfo{}, &httpfilter.CallOptions{}, &httpfilter.CallLifecycle{})
	if gotSt == nil || gotSt.Message() != "No router filter" {
		t.Fatalf("expected every call to fail with \"No router filter\", got %v", gotSt)
	}
}
