// Package fault implements the HTTP fault-injection filter, the only
// concrete filter type this resolver registers. A Filter is stateful per
// instance: a shared random source and a count of calls currently being
// delayed or aborted, shared across every call it builds an interceptor
// for.
package fault

import (
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/routewise/xdsresolver/httpfilter"
	"github.com/routewise/xdsresolver/internal/xrand"
	"github.com/routewise/xdsresolver/matcher"
	"github.com/routewise/xdsresolver/scheduler"
	"github.com/routewise/xdsresolver/xdsresource"
)

// TypeURL identifies the fault filter's configuration in a filter chain.
const TypeURL = "type.googleapis.com/envoy.extensions.filters.http.fault.v3.HTTPFault"

// Header names the fault filter reads from outgoing request metadata.
const (
	headerAbortHTTPStatus  = "x-envoy-fault-abort-request"
	headerAbortGRPCStatus  = "x-envoy-fault-abort-grpc-request"
	headerAbortPercentage  = "x-envoy-fault-abort-request-percentage"
	headerDelayDurationMS  = "x-envoy-fault-delay-request"
	headerDelayPercentage  = "x-envoy-fault-delay-request-percentage"
)

// Filter is the fault filter's singleton per-resolver-instance state.
type Filter struct {
	rnd          xrand.Source
	activeFaults int64 // accessed atomically
}

// New returns a Filter using the process-wide random source.
func New() *Filter {
	return &Filter{rnd: xrand.Global()}
}

// NewWithSource returns a Filter using rnd, for deterministic tests.
func NewWithSource(rnd xrand.Source) *Filter {
	return &Filter{rnd: rnd}
}

// TypeURL implements httpfilter.Filter.
func (f *Filter) TypeURL() string { return TypeURL }

// ActiveFaults reports how many calls are currently being delayed or
// aborted by this filter instance.
func (f *Filter) ActiveFaults() int64 {
	return atomic.LoadInt64(&f.activeFaults)
}

// BuildClientInterceptor implements httpfilter.ClientInterceptorBuilder. It
// returns nil, nil if neither the base nor the override config names a
// FaultConfig.
func (f *Filter) BuildClientInterceptor(cfg, override xdsresource.FilterConfig, ri httpfilter.RPCInfo, sched scheduler.Scheduler) (httpfilter.ClientInterceptor, error) {
	effective := effectiveConfig(cfg, override)
	if effective == nil {
		return nil, nil
	}
	return &interceptor{f: f, cfg: effective, sched: sched}, nil
}

// effectiveConfig prefers the per-call override over the filter's base
// configuration, matching the resolver's general override precedence:
// later overrides earlier.
func effectiveConfig(cfg, override xdsresource.FilterConfig) *xdsresource.FaultConfig {
	if ov, ok := override.(*xdsresource.FaultConfig); ok && ov != nil {
		return ov
	}
	if base, ok := cfg.(*xdsresource.FaultConfig); ok {
		return base
	}
	return nil
}

type interceptor struct {
	f     *Filter
	cfg   *xdsresource.FaultConfig
	sched scheduler.Scheduler
}

func (ic *interceptor) Start(ri httpfilter.RPCInfo, opts *httpfilter.CallOptions, cl *httpfilter.CallLifecycle) *status.Status {
	md, _ := metadata.FromOutgoingContext(ri.Context)

	fireDelay, delayNano := ic.resolveDelay(md)
	fireAbort, abortStatus := ic.resolveAbort(md)

	if !fireDelay && !fireAbort {
		return nil
	}

	if max := ic.cfg.MaxActiveFaults; max != nil {
		for {
			cur := atomic.LoadInt64(&ic.f.activeFaults)
			if cur >= int64(*max) {
				// Gate closed: this call proceeds as if no fault were configured.
				return nil
			}
			if atomic.CompareAndSwapInt64(&ic.f.activeFaults, cur, cur+1) {
				break
			}
		}
	} else {
		atomic.AddInt64(&ic.f.activeFaults, 1)
	}

	var decremented bool
	decrementOnce := func() {
		if !decremented {
			atomic.AddInt64(&ic.f.activeFaults, -1)
			decremented = true
		}
	}

	if fireDelay {
		done := make(chan struct{})
		timer := ic.sched.AfterFunc(time.Duration(delayNano), func() { close(done) })
		select {
		case <-done:
			if !fireAbort {
				decrementOnce()
			}
		case <-ri.Context.Done():
			timer.Stop()
			decrementOnce()
			return nil
		}
	}

	if fireAbort {
		decrementOnce()
		return abortStatus
	}
	return nil
}

// resolveDelay decides whether the delay fires and, if so, its duration in
// nanoseconds.
func (ic *interceptor) resolveDelay(md metadata.MD) (bool, int64) {
	d := ic.cfg.Delay
	if d == nil {
		return false, 0
	}
	rate, ok := effectiveRate(d.Percent, d.HeaderDriven, md, headerDelayPercentage)
	if !ok || !fireFraction(rate, ic.f.rnd) {
		return false, 0
	}
	if !d.HeaderDriven {
		return true, d.FixedDelayNano
	}
	v, present := getHeader(md, headerDelayDurationMS)
	if !present {
		return false, 0
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return false, 0
	}
	return true, ms * int64(time.Millisecond)
}

// resolveAbort decides whether the abort fires and, if so, the status to
// deliver.
func (ic *interceptor) resolveAbort(md metadata.MD) (bool, *status.Status) {
	a := ic.cfg.Abort
	if a == nil {
		return false, nil
	}
	rate, ok := effectiveRate(a.Percent, a.HeaderDriven, md, headerAbortPercentage)
	if !ok || !fireFraction(rate, ic.f.rnd) {
		return false, nil
	}
	if !a.HeaderDriven {
		return true, a.FixedStatus
	}
	// HTTP status header takes precedence over the grpc-status header.
	if v, present := getHeader(md, headerAbortHTTPStatus); present {
		code, err := strconv.Atoi(v)
		if err != nil {
			return false, nil
		}
		return true, status.New(codes.Unimplemented, fmt.Sprintf("HTTP status code %d", code))
	}
	if v, present := getHeader(md, headerAbortGRPCStatus); present {
		code, err := strconv.Atoi(v)
		if err != nil {
			return false, nil
		}
		return true, status.New(codes.Code(code), "fault filter injected abort")
	}
	return false, nil
}

// effectiveRate returns the numerator to draw against: the configured
// percent for fixed faults, or min(header-provided, configured cap) for
// header-driven faults. A header-driven rate with no header to read
// yields numerator 0; ok is always true, kept only to keep call sites
// uniform.
func effectiveRate(configured xdsresource.FractionalPercent, headerDriven bool, md metadata.MD, percentHeader string) (xdsresource.FractionalPercent, bool) {
	if !headerDriven {
		return configured, true
	}
	v, present := getHeader(md, percentHeader)
	if !present {
		return xdsresource.FractionalPercent{Numerator: 0, Denominator: configured.Denominator}, true
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return xdsresource.FractionalPercent{Numerator: 0, Denominator: configured.Denominator}, true
	}
	num := uint32(n)
	if num > configured.Numerator {
		num = configured.Numerator
	}
	return xdsresource.FractionalPercent{Numerator: num, Denominator: configured.Denominator}, true
}

func fireFraction(pct xdsresource.FractionalPercent, rnd xrand.Source) bool {
	fm := &xdsresource.FractionMatcher{Fraction: pct}
	return matcher.MatchFraction(fm, rnd)
}

func getHeader(md metadata.MD, name string) (string, bool) {
	vs := md.Get(name)
	if len(vs) == 0 {
		return "", false
	}
	return vs[0], true
}
