package cipher

import (
	"errors"

	"github.com/sxweetlollipop2912/tripleratchet/keys"
	"github.com/sxweetlollipop2912/tripleratchet/spqr"
)

// Error kinds per spec §7. Lower layers (wire, x3dh, spqr, keys) define
// their own sentinels for concerns local to them; these are the ones a
// SessionCipher caller is expected to switch on.
var (
	ErrInvalidKey            = errors.New("cipher: invalid key")
	ErrInvalidMessage        = errors.New("cipher: invalid message")
	ErrDuplicateMessage      = errors.New("cipher: duplicate message")
	ErrSessionNotFound       = errors.New("cipher: session not found")
	ErrInvalidSession        = errors.New("cipher: invalid session")
	ErrUntrustedIdentity     = errors.New("cipher: untrusted identity")
	ErrSignatureValidation   = keys.ErrSignatureValidation
	ErrX3DHNoLongerSupported = errors.New("cipher: x3dh (v3) no longer supported")
	ErrMissingKyberCiphertext = keys.ErrMissingKyberCiphertext
	ErrEpochOutOfRange        = spqr.ErrEpochOutOfRange
	ErrErroneousData          = spqr.ErrErroneousData
)

// MaxForwardJumps bounds how far ahead of a chain's current index an
// inbound counter may jump before being rejected, per spec §6.
const MaxForwardJumps = 25000
