package xdsresolver

import (
	"google.golang.org/grpc/serviceconfig"

	"github.com/routewise/xdsresolver/xdsresource"
)

// XdsClient is the abstract xDS transport collaborator. Bootstrap loading
// and the wire protocol live entirely outside this core; the resolver
// only ever sees this interface.
type XdsClient interface {
	// WatchListener starts a watch for the LDS resource named name,
	// delivering updates to w until the returned cancel func is called.
	WatchListener(name string, w ListenerWatcher) (cancel func())

	// WatchRouteConfig starts a watch for the RDS resource named name,
	// delivering updates to w until the returned cancel func is called.
	WatchRouteConfig(name string, w RouteConfigWatcher) (cancel func())
}

// ListenerWatcher receives callbacks for a single LDS resource. Exactly
// one of OnUpdate, OnError, or OnResourceDoesNotExist is called per
// underlying event, from an arbitrary goroutine.
type ListenerWatcher interface {
	OnUpdate(update xdsresource.LdsUpdate)
	OnError(err error)
	OnResourceDoesNotExist()
}

// RouteConfigWatcher receives callbacks for a single RDS resource.
type RouteConfigWatcher interface {
	OnUpdate(update xdsresource.RdsUpdate)
	OnError(err error)
	OnResourceDoesNotExist()
}

// ServiceConfigParser is the abstract service-config JSON parser: a pure
// function from a raw config map to either a parsed config or an error.
// The core never inspects the result beyond threading it through to the
// resolution result or a per-call PickResult.
type ServiceConfigParser interface {
	ParseServiceConfig(cfg map[string]any) (*serviceconfig.ParseResult, error)
}

// ParsedServiceConfig is the result type ServiceConfigParser produces.
type ParsedServiceConfig = *serviceconfig.ParseResult
