package crypto

import (
	"runtime"

	"kakioki/internal/util/memzero"
)

// Wipe zeroes key material once it is no longer needed.
//
//go:noinline
func Wipe(b []byte) {
	memzero.Zero(b)
	runtime.KeepAlive(&b)
}
