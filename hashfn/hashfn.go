// Package hashfn provides the two xxHash64 entry points the config selector
// uses to turn header values and the resolver's channel identifier into
// hash-policy contributions. It wraps github.com/cespare/xxhash/v2.
package hashfn

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// HashAsciiString returns the 64-bit xxHash (seed zero) of the ASCII/UTF-8
// bytes of s.
func HashAsciiString(s string) uint64 {
	return xxhash.Sum64String(s)
}

// HashLong returns the 64-bit xxHash (seed zero) of the 8 little-endian
// bytes of x, used for the CHANNEL_ID hash policy.
func HashLong(x uint64) uint64 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], x)
	return xxhash.Sum64(b[:])
}

// RotateLeft1 rotates v left by one bit. The hash-combination step
// deliberately XORs each policy's contribution after rotating the
// running hash by one bit rather than summing or XORing directly, to
// avoid cancelling out when the same hash policy value recurs across
// multiple policies.
func RotateLeft1(v uint64) uint64 {
	return v<<1 | v>>63
}
