package xdsresolver

import (
	"context"

	"github.com/routewise/xdsresolver/xdsresource"
)

// listenerWatcher adapts the XdsClient's LDS callbacks onto the resolver's
// synchronization context and discards callbacks from a watcher that has
// since been superseded, by pointer identity against the resolver's
// current listenerWatcher field.
type listenerWatcher struct {
	resourceName string
	parent       *xdsResolver
	cancel       func()
}

func newListenerWatcher(resourceName string, parent *xdsResolver) *listenerWatcher {
	lw := &listenerWatcher{resourceName: resourceName, parent: parent}
	lw.cancel = parent.xdsClient.WatchListener(resourceName, lw)
	return lw
}

func (lw *listenerWatcher) stop() { lw.cancel() }

func (lw *listenerWatcher) OnUpdate(update xdsresource.LdsUpdate) {
	lw.parent.serializer.Schedule(func(context.Context) {
		if lw.parent.listenerWatcher != lw {
			return
		}
		lw.parent.onListenerResourceUpdate(update)
	})
}

func (lw *listenerWatcher) OnError(err error) {
	lw.parent.serializer.Schedule(func(context.Context) {
		if lw.parent.listenerWatcher != lw {
			return
		}
		lw.parent.onListenerResourceError(err)
	})
}

func (lw *listenerWatcher) OnResourceDoesNotExist() {
	lw.parent.serializer.Schedule(func(context.Context) {
		if lw.parent.listenerWatcher != lw {
			return
		}
		lw.parent.onListenerResourceNotFound()
	})
}

// routeConfigWatcher adapts the XdsClient's RDS callbacks the same way,
// discarding callbacks both by pointer identity and by resource name: an
// update for a name the resolver is no longer tracking is dropped even if,
// by pointer identity, it happens to still be the active watcher's own
// subsequent callback.
type routeConfigWatcher struct {
	resourceName string
	parent       *xdsResolver
	cancel       func()
}

func newRouteConfigWatcher(resourceName string, parent *xdsResolver) *routeConfigWatcher {
	rw := &routeConfigWatcher{resourceName: resourceName, parent: parent}
	rw.cancel = parent.xdsClient.WatchRouteConfig(resourceName, rw)
	return rw
}

func (rw *routeConfigWatcher) stop() { rw.cancel() }

func (rw *routeConfigWatcher) OnUpdate(update xdsresource.RdsUpdate) {
	rw.parent.serializer.Schedule(func(context.Context) {
		if rw.parent.routeConfigWatcher != rw || rw.parent.rdsResourceName != rw.resourceName {
			return
		}
		rw.parent.onRouteConfigResourceUpdate(update)
	})
}

func (rw *routeConfigWatcher) OnError(err error) {
	rw.parent.serializer.Schedule(func(context.Context) {
		if rw.parent.routeConfigWatcher != rw || rw.parent.rdsResourceName != rw.resourceName {
			return
		}
		rw.parent.onRouteConfigResourceError(err)
	})
}

func (rw *routeConfigWatcher) OnResourceDoesNotExist() {
	rw.parent.serializer.Schedule(func(context.Context) {
		if rw.parent.routeConfigWatcher != rw || rw.parent.rdsResourceName != rw.resourceName {
			return
		}
		rw.parent.onRouteConfigResourceNotFound()
	})
}
