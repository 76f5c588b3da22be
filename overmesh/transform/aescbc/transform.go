package aescbc

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/overmesh/overmesh/overmesh/transform"
)

// Version is the single supported packet encoding version.
const Version = 1

// Wire layout sizes. The cleartext preamble precedes the ciphertext region.
const (
	verSize      = 1
	saSize       = 4
	ivSeedSize   = 8
	preambleSize = verSize + saSize + ivSeedSize

	// nonceSize bytes of randomness lead the encrypted assembly so that
	// identical payloads never produce identical ciphertext.
	nonceSize = 4
)

// MaxPayloadSize is the largest datagram Encode accepts: the nonce, payload
// and at least one pad byte must fit the working plaintext buffer.
const MaxPayloadSize = transform.MaxPacketSize - nonceSize - 1

func init() {
	transform.Register(transform.IDAESCBC, "aes", func(secret []byte) (transform.Transform, error) {
		return New(secret)
	})
}

// Transform is an AES-CBC packet transform instance. The key material is
// fixed at construction and never mutated, so one instance may serve
// concurrent Encode and Decode calls; the injected randomness source must
// itself be safe for concurrent use (crypto/rand.Reader is).
type Transform struct {
	km         keyMaterial
	dataCipher cipher.Block // AES at km.strength, CBC data encryption
	ivCipher   cipher.Block // AES-128, single-block IV encryption only
	random     io.Reader
}

var _ transform.Transform = (*Transform)(nil)

// New derives key material from the pre-shared secret and returns a ready
// transform. The secret may be any length; longer secrets select stronger
// AES variants (>=24 bytes AES-192, >=32 bytes AES-256). The secret itself
// is not retained.
func New(secret []byte) (*Transform, error) {
	return NewWithRandom(secret, rand.Reader)
}

// NewWithRandom is New with an explicit randomness source for the per-packet
// IV seed and nonce. Tests use a deterministic reader; production callers
// should not downgrade from a cryptographically strong source, since seed
// reuse weakens the IV construction.
func NewWithRandom(secret []byte, random io.Reader) (*Transform, error) {
	t := &Transform{
		km:     deriveKeyMaterial(secret),
		random: random,
	}

	var err error
	t.dataCipher, err = aes.NewCipher(t.km.dataKey[:t.km.strength])
	if err != nil {
		return nil, fmt.Errorf("aescbc: data cipher: %w", err)
	}
	t.ivCipher, err = aes.NewCipher(t.km.ivKey[:])
	if err != nil {
		return nil, fmt.Errorf("aescbc: iv cipher: %w", err)
	}
	return t, nil
}

func (t *Transform) ID() transform.ID { return transform.IDAESCBC }

// Encode transforms a datagram into a wire packet written to dst and returns
// the packet length. dst and src must not overlap. On error dst holds
// nothing valid and no partial packet is ever emitted.
func (t *Transform) Encode(dst, src []byte) (int, error) {
	if len(src) > MaxPayloadSize {
		return 0, transform.ErrPayloadTooLarge
	}

	// Round up to the next whole block, always adding at least one byte so
	// the padding count is 1..16 and the final byte can carry it.
	total := nonceSize + len(src)
	padded := (total/aes.BlockSize + 1) * aes.BlockSize
	if len(dst) < preambleSize+padded {
		return 0, transform.ErrShortBuffer
	}

	var fresh [ivSeedSize + nonceSize]byte
	if _, err := io.ReadFull(t.random, fresh[:]); err != nil {
		return 0, fmt.Errorf("aescbc: randomness source: %w", err)
	}
	seed := binary.BigEndian.Uint64(fresh[:ivSeedSize])

	// Assembly is what actually gets encrypted: nonce, payload, zero
	// padding with the pad count in the last byte.
	assembly := make([]byte, padded)
	copy(assembly[:nonceSize], fresh[ivSeedSize:])
	copy(assembly[nonceSize:], src)
	assembly[padded-1] = byte(padded - total)

	var iv [aes.BlockSize]byte
	t.buildIV(&iv, seed)

	dst[0] = Version
	binary.BigEndian.PutUint32(dst[verSize:verSize+saSize], 0) // SA id, reserved
	copy(dst[verSize+saSize:preambleSize], fresh[:ivSeedSize])
	cipher.NewCBCEncrypter(t.dataCipher, iv[:]).CryptBlocks(dst[preambleSize:preambleSize+padded], assembly)

	return preambleSize + padded, nil
}

// Decode recovers the datagram from a wire packet into dst and returns its
// length. Any error means the packet is malformed or was produced under a
// different secret and should be dropped.
//
// There is no authentication: a forged ciphertext whose final plaintext byte
// happens to pass the padding bound decodes to garbage, and that garbage is
// returned. Rejection of cross-key traffic relies on the padding bound
// failing, which it does in the overwhelming majority of cases but not all.
func (t *Transform) Decode(dst, src []byte) (int, error) {
	if len(src) < preambleSize+aes.BlockSize {
		return 0, transform.ErrShortPacket
	}
	if src[0] != Version {
		return 0, transform.ErrBadVersion
	}
	// src[1:5] is the SA id, reserved and ignored.
	seed := binary.BigEndian.Uint64(src[verSize+saSize : preambleSize])

	ct := src[preambleSize:]
	if len(ct)%aes.BlockSize != 0 {
		return 0, transform.ErrMisaligned
	}
	if len(ct) > transform.MaxPacketSize {
		return 0, transform.ErrPayloadTooLarge
	}

	var iv [aes.BlockSize]byte
	t.buildIV(&iv, seed)

	assembly := make([]byte, len(ct))
	cipher.NewCBCDecrypter(t.dataCipher, iv[:]).CryptBlocks(assembly, ct)

	// Only the final byte is inspected; interior pad bytes are not
	// verified, for compatibility with existing peers.
	pad := int(assembly[len(assembly)-1])
	if pad+nonceSize > len(assembly) {
		return 0, transform.ErrBadPadding
	}

	n := len(assembly) - pad - nonceSize
	if len(dst) < n {
		return 0, transform.ErrShortBuffer
	}
	copy(dst, assembly[nonceSize:nonceSize+n])
	return n, nil
}

// Tick is reserved for future rekeying and currently does nothing.
func (t *Transform) Tick(time.Time) {}

// Close wipes the derived key material. The transform must not be used
// afterwards, and no Encode or Decode may be in flight.
func (t *Transform) Close() error {
	t.km.destroy()
	return nil
}

// EncodedLen returns the wire packet length Encode will produce for a
// payload of n bytes, for sizing output buffers.
func EncodedLen(n int) int {
	total := nonceSize + n
	return preambleSize + (total/aes.BlockSize+1)*aes.BlockSize
}

// Overhead is the worst-case size increase of Encode over the payload.
func Overhead() int { return preambleSize + nonceSize + aes.BlockSize }
