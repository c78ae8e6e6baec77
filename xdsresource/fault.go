package xdsresource

import "google.golang.org/grpc/status"

// FaultDelay describes an HTTP fault-injection delay. It is either fixed
// (a literal duration) or header-driven (the actual duration is read
// from request metadata at call time; Percent caps the rate at which the
// header-driven value is honored).
type FaultDelay struct {
	HeaderDriven bool

	// FixedDelayNano is used when !HeaderDriven.
	FixedDelayNano int64

	// Percent is the configured rate (fixed mode) or the rate cap
	// (header-driven mode).
	Percent FractionalPercent
}

// FaultAbort describes an HTTP fault-injection abort.
type FaultAbort struct {
	HeaderDriven bool

	// FixedStatus is used when !HeaderDriven.
	FixedStatus *status.Status

	Percent FractionalPercent
}

// FaultConfig is the fault filter's per-route (or per-virtual-host)
// configuration.
type FaultConfig struct {
	Delay *FaultDelay
	Abort *FaultAbort

	// MaxActiveFaults caps the number of calls the fault filter may have
	// concurrently delaying or aborting; nil means unlimited.
	MaxActiveFaults *uint32
}

func (*FaultConfig) isFilterConfig() {}
