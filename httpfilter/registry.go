package httpfilter

import (
	"sync"

	"github.com/routewise/xdsresolver/scheduler"
	"github.com/routewise/xdsresolver/xdsresource"
)

// Filter identifies a filter implementation by the xDS type URL its
// configuration is carried under.
type Filter interface {
	TypeURL() string
}

// ClientInterceptorBuilder is the capability a Filter may implement to
// participate in the per-call interceptor chain. Given the filter's base
// config, any per-call override, the call being built, and a scheduler for
// delayed work, it returns an optional interceptor. A nil interceptor with
// a nil error means "this filter has nothing to add to this call."
type ClientInterceptorBuilder interface {
	Filter
	BuildClientInterceptor(cfg, override xdsresource.FilterConfig, ri RPCInfo, sched scheduler.Scheduler) (ClientInterceptor, error)
}

// Registry maps filter type URLs to filter implementations. Registration
// happens once, at resolver construction.
type Registry struct {
	mu      sync.RWMutex
	filters map[string]Filter
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{filters: make(map[string]Filter)}
}

// Register adds f to the registry, keyed by its type URL.
func (r *Registry) Register(f Filter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filters[f.TypeURL()] = f
}

// Get returns the filter registered for typeURL, if any.
func (r *Registry) Get(typeURL string) (Filter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.filters[typeURL]
	return f, ok
}
