// Package xdsresolver is the root package of the xDS name resolver core:
// it wires together the matcher, hashfn, xdsresource, httpfilter, and
// scheduler packages into a resolver.Builder that watches LDS and RDS
// resources and drives a downstream gRPC channel.
//
// Subpackages:
//   - xdsresource: the immutable value types produced by the xDS layer.
//   - matcher: path, header, fraction, and hostname predicates.
//   - hashfn: the xxHash64 entry points used for per-call hash generation.
//   - httpfilter, httpfilter/fault: the filter registry and the one
//     concrete filter in scope, HTTP fault injection.
//   - scheduler: the delayed-callback abstraction the fault filter uses.
//   - internal/xrand, internal/syncctx, internal/envconfig, internal/grpclog:
//     ambient collaborators with no public surface of their own.
package xdsresolver
