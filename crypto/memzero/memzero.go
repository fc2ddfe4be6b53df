// Package memzero zeroes secret buffers before they're dropped, per the
// ownership discipline in spec §9: private keys, root keys, chain keys,
// message keys, and authenticators must be wiped on drop.
package memzero

import "runtime"

// Bytes overwrites b with zeros in place.
//
//go:noinline
func Bytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(&b)
}

// Array32 overwrites a 32-byte array with zeros in place.
func Array32(b *[32]byte) {
	Bytes(b[:])
}
