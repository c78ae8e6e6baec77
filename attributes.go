package xdsresolver

import (
	"context"

	"google.golang.org/grpc/attributes"
	"google.golang.org/grpc/resolver"
	"google.golang.org/grpc/status"

	"github.com/routewise/xdsresolver/httpfilter"
	"github.com/routewise/xdsresolver/httpfilter/fault"
)

// ConfigSelector is the resolver's per-call output: given an outgoing
// call, it returns either an error status or a PickResult. The host
// channel invokes it once per call, after reading it out of the
// resolution result's Attributes via GetConfigSelector.
type ConfigSelector interface {
	SelectConfig(ctx context.Context, method string) (*PickResult, *status.Status)
}

type configSelectorAttrKey struct{}

// SetConfigSelector returns a copy of state with cs attached, retrievable
// downstream via GetConfigSelector, using the public
// google.golang.org/grpc/attributes package as the carrier.
func SetConfigSelector(state resolver.State, cs ConfigSelector) resolver.State {
	state.Attributes = state.Attributes.WithValue(configSelectorAttrKey{}, cs)
	return state
}

// GetConfigSelector retrieves the ConfigSelector attached by
// SetConfigSelector, if any.
func GetConfigSelector(state resolver.State) (ConfigSelector, bool) {
	if state.Attributes == nil {
		return nil, false
	}
	cs, ok := state.Attributes.Value(configSelectorAttrKey{}).(ConfigSelector)
	return cs, ok
}

// NewDefaultFilterRegistry returns a Registry with the fault filter
// registered under its xDS type URL, the only concrete filter in scope.
func NewDefaultFilterRegistry() *httpfilter.Registry {
	reg := httpfilter.NewRegistry()
	reg.Register(fault.New())
	return reg
}
