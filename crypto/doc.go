// Package crypto groups the primitive wrappers (sha256, hmac, hkdf, aes,
// x25519, mlkem) the rest of the triple ratchet is built from. Each
// sub-package does one thing and keeps no state beyond what a single
// call needs.
package crypto
