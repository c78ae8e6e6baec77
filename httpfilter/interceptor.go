// Package httpfilter implements the filter registry and the per-call
// interceptor abstraction the config selector assembles a chain of. The
// only concrete filter in scope is the fault filter, in the sibling
// httpfilter/fault package.
package httpfilter

import (
	"context"

	"google.golang.org/grpc/status"
)

// RPCInfo describes the outgoing call an interceptor is being built for, or
// is intercepting.
type RPCInfo struct {
	Context context.Context
	Method  string
}

// CallOptions carries resolver-computed values the transport layer must
// honor for this call.
type CallOptions struct {
	Cluster string
	RPCHash uint64
}

// CallLifecycle lets an interceptor register hooks the host channel fires
// at two points of a call: when response headers are received, and when
// the call closes. Both may fire for the same call, so a hook that must
// act once per call guards against the other having already run.
type CallLifecycle struct {
	onHeaders []func()
	onClose   []func()
}

// OnHeaders registers f to run when response headers are received.
func (cl *CallLifecycle) OnHeaders(f func()) { cl.onHeaders = append(cl.onHeaders, f) }

// OnClose registers f to run when the call closes.
func (cl *CallLifecycle) OnClose(f func()) { cl.onClose = append(cl.onClose, f) }

// FireHeaders runs every registered OnHeaders hook, in registration order.
func (cl *CallLifecycle) FireHeaders() {
	for _, f := range cl.onHeaders {
		f()
	}
}

// FireClose runs every registered OnClose hook, in registration order.
func (cl *CallLifecycle) FireClose() {
	for _, f := range cl.onClose {
		f()
	}
}

// ClientInterceptor augments a single outgoing call. Start is invoked once,
// before the call is issued, on the calling goroutine; it may block (the
// only sanctioned blocking point in the core is a fault delay) and may
// return a non-nil status to abort the call before it ever starts.
type ClientInterceptor interface {
	Start(ri RPCInfo, opts *CallOptions, cl *CallLifecycle) *status.Status
}

// Chain composes interceptors left to right: each runs in order, and the
// chain stops (without running later interceptors) at the first non-nil
// status.
type Chain []ClientInterceptor

// Start runs every interceptor in order, short-circuiting on the first
// abort.
func (c Chain) Start(ri RPCInfo, opts *CallOptions, cl *CallLifecycle) *status.Status {
	for _, ic := range c {
		if st := ic.Start(ri, opts, cl); st != nil {
			return st
		}
	}
	return nil
}
