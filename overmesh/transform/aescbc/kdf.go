package aescbc

import "crypto/sha512"

// AES key strengths selectable by the key-size policy, in bytes.
const (
	aes128KeyBytes = 128 / 8
	aes192KeyBytes = 192 / 8
	aes256KeyBytes = 256 / 8
)

// keyMaterial is the derived sub-key record. The three regions come from
// disjoint ranges of one SHA-512 digest, so learning one does not reveal
// another.
type keyMaterial struct {
	dataKey  [aes256KeyBytes]byte // CBC key material; only strength bytes are used
	strength int                  // 16, 24 or 32
	ivKey    [aes128KeyBytes]byte // AES-ECB key for IV encryption, never for data
	ivExt    [aes128KeyBytes]byte // extends the 8-byte IV seed to block width
}

// deriveKeyMaterial hashes the secret once and splits the digest 32/16/16
// into data key, IV key and IV extension.
//
// The strength policy inspects the original secret's length, not the digest:
// the digest always yields 32 bytes of data-key material, but a short secret
// cannot carry 256 bits of entropy, so operators opt into AES-192 or AES-256
// by choosing a longer secret.
func deriveKeyMaterial(secret []byte) keyMaterial {
	digest := sha512.Sum512(secret)

	var km keyMaterial
	copy(km.dataKey[:], digest[0:32])
	copy(km.ivKey[:], digest[32:48])
	copy(km.ivExt[:], digest[48:64])
	km.strength = bestKeySize(len(secret))

	zero(digest[:])
	return km
}

// bestKeySize returns the AES key size in bytes selected for a secret of n
// bytes: one of aes128KeyBytes, aes192KeyBytes or aes256KeyBytes.
func bestKeySize(n int) int {
	switch {
	case n >= aes256KeyBytes:
		return aes256KeyBytes
	case n >= aes192KeyBytes:
		return aes192KeyBytes
	default:
		return aes128KeyBytes
	}
}

// destroy wipes the derived sub-keys.
func (km *keyMaterial) destroy() {
	zero(km.dataKey[:])
	zero(km.ivKey[:])
	zero(km.ivExt[:])
	km.strength = 0
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
