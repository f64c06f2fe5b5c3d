// Package memzero clears sensitive buffers.
package memzero

import "crypto/subtle"

// Zero overwrites b with zeros through a constant-time copy.
func Zero(b []byte) {
	if len(b) == 0 {
		return
	}
	subtle.ConstantTimeCopy(1, b, make([]byte, len(b)))
}
