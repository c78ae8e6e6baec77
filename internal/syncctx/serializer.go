// Package syncctx implements the resolver's synchronization context: a
// serial callback queue that is the single writer for all resolver
// state. grpc-go's own internal/grpcsync.CallbackSerializer is internal
// to that module and cannot be imported from outside it, so this module
// owns its own copy: a FIFO of callbacks (a buffered channel; Schedule
// blocks while it is full) drained by a single goroutine, stoppable via context cancellation,
// with a Done() channel that closes once the drain goroutine has exited
// and no further callbacks will run.
package syncctx

import "context"

// CallbackSerializer provides a mechanism to schedule callbacks in a FIFO
// order, executed one at a time on a dedicated goroutine. All resolver
// state mutations (watcher callbacks, cluster-table membership changes,
// RoutingConfig replacement, resolution-result emission) are scheduled here
// so that they never race with each other.
type CallbackSerializer struct {
	ctx  context.Context
	done chan struct{}

	callbacks chan func(context.Context)
}

// NewCallbackSerializer returns a CallbackSerializer bound to ctx. Once ctx
// is cancelled, no new callback scheduled afterwards is guaranteed to run;
// callbacks already queued still execute before Done() closes.
func NewCallbackSerializer(ctx context.Context) *CallbackSerializer {
	cs := &CallbackSerializer{
		ctx:       ctx,
		done:      make(chan struct{}),
		callbacks: make(chan func(context.Context), 16),
	}
	go cs.run()
	return cs
}

func (cs *CallbackSerializer) run() {
	defer close(cs.done)
	for {
		select {
		case f := <-cs.callbacks:
			f(cs.ctx)
		case <-cs.ctx.Done():
			// Drain anything already queued before exiting so that callbacks
			// scheduled right before cancellation still get a chance to
			// observe ctx.Err() and clean up.
			for {
				select {
				case f := <-cs.callbacks:
					f(cs.ctx)
				default:
					return
				}
			}
		}
	}
}

// Schedule enqueues f to run on the serializer's goroutine. It returns false
// if the serializer's context is already done and the callback could not be
// guaranteed to run (the caller should treat this as a no-op).
func (cs *CallbackSerializer) Schedule(f func(ctx context.Context)) bool {
	select {
	case cs.callbacks <- f:
		return true
	case <-cs.ctx.Done():
		return false
	}
}

// Done returns a channel that is closed once the serializer's goroutine has
// exited, i.e. after the bound context is cancelled and every callback
// queued up to that point has run.
func (cs *CallbackSerializer) Done() <-chan struct{} {
	return cs.done
}
