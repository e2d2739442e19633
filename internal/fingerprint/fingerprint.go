// Package fingerprint computes the content digests used to decide whether a
// build output changed since the last sync.
package fingerprint

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Size is the digest length in bytes.
const Size = 32

// domainKey keys the hasher so cdnsync digests never collide with plain
// BLAKE3 digests of the same bytes computed elsewhere. Changing it
// invalidates every persisted cache file.
var domainKey = [32]byte{
	'c', 'd', 'n', 's', 'y', 'n', 'c', '.', 'a', 's', 's', 'e', 't',
}

// Of returns the hex-encoded keyed BLAKE3 digest of b. It is deterministic
// across runs and processes and accepts empty input.
func Of(b []byte) string {
	h, err := blake3.NewKeyed(domainKey[:])
	if err != nil {
		panic("fingerprint: blake3 keyed init: " + err.Error())
	}
	_, _ = h.Write(b)
	return hex.EncodeToString(h.Sum(nil))
}

// Short truncates a digest to the prefix used in remote object names.
func Short(digest string) string {
	if len(digest) <= 16 {
		return digest
	}
	return digest[:16]
}
