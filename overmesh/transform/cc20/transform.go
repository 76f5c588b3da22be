// Package cc20 implements the ChaCha20 packet transform, the stream-cipher
// sibling of the AES-CBC transform. It shares the packet family's shape (a
// cleartext preamble followed by an encrypted region) but needs no padding:
// the ciphertext is exactly as long as the payload.
//
// Like the rest of the family it is encryption-only. There is no Poly1305
// tag; a flipped ciphertext bit flips the same payload bit and nothing
// detects it. Integrity is the outer layer's concern.
package cc20

import (
	"crypto/rand"
	"crypto/sha512"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/chacha20"

	"github.com/overmesh/overmesh/overmesh/transform"
)

// Version is the single supported packet encoding version.
const Version = 1

const (
	verSize      = 1
	saSize       = 4
	preambleSize = verSize + saSize + chacha20.NonceSize
)

// MaxPayloadSize is the largest datagram Encode accepts.
const MaxPayloadSize = transform.MaxPacketSize

func init() {
	transform.Register(transform.IDChaCha20, "cc20", func(secret []byte) (transform.Transform, error) {
		return New(secret)
	})
}

// Transform is a ChaCha20 packet transform instance. Safe for concurrent
// Encode/Decode; a fresh cipher state is keyed per packet from the immutable
// key and the packet's nonce.
type Transform struct {
	key    [chacha20.KeySize]byte
	random io.Reader
}

var _ transform.Transform = (*Transform)(nil)

// New derives the ChaCha20 key from the pre-shared secret. As in the AES
// transform, the secret is hashed with SHA-512 and the key taken from a
// fixed digest prefix; the secret itself is not retained.
func New(secret []byte) (*Transform, error) {
	return NewWithRandom(secret, rand.Reader)
}

// NewWithRandom is New with an explicit randomness source for per-packet
// nonces. Nonce reuse under one key leaks the XOR of the two plaintexts, so
// production callers must use a cryptographically strong source.
func NewWithRandom(secret []byte, random io.Reader) (*Transform, error) {
	t := &Transform{random: random}
	digest := sha512.Sum512(secret)
	copy(t.key[:], digest[:chacha20.KeySize])
	for i := range digest {
		digest[i] = 0
	}
	return t, nil
}

func (t *Transform) ID() transform.ID { return transform.IDChaCha20 }

// Encode writes ver(1) || sa(4, zero) || nonce(12) || ciphertext to dst and
// returns the packet length.
func (t *Transform) Encode(dst, src []byte) (int, error) {
	if len(src) > MaxPayloadSize {
		return 0, transform.ErrPayloadTooLarge
	}
	if len(dst) < preambleSize+len(src) {
		return 0, transform.ErrShortBuffer
	}

	dst[0] = Version
	for i := verSize; i < verSize+saSize; i++ {
		dst[i] = 0
	}
	nonce := dst[verSize+saSize : preambleSize]
	if _, err := io.ReadFull(t.random, nonce); err != nil {
		return 0, fmt.Errorf("cc20: randomness source: %w", err)
	}

	c, err := chacha20.NewUnauthenticatedCipher(t.key[:], nonce)
	if err != nil {
		return 0, fmt.Errorf("cc20: %w", err)
	}
	c.XORKeyStream(dst[preambleSize:preambleSize+len(src)], src)
	return preambleSize + len(src), nil
}

// Decode recovers the datagram from a wire packet. Errors mean drop.
func (t *Transform) Decode(dst, src []byte) (int, error) {
	if len(src) < preambleSize {
		return 0, transform.ErrShortPacket
	}
	if src[0] != Version {
		return 0, transform.ErrBadVersion
	}

	nonce := src[verSize+saSize : preambleSize]
	ct := src[preambleSize:]
	if len(ct) > MaxPayloadSize {
		return 0, transform.ErrPayloadTooLarge
	}
	if len(dst) < len(ct) {
		return 0, transform.ErrShortBuffer
	}

	c, err := chacha20.NewUnauthenticatedCipher(t.key[:], nonce)
	if err != nil {
		return 0, fmt.Errorf("cc20: %w", err)
	}
	c.XORKeyStream(dst[:len(ct)], ct)
	return len(ct), nil
}

// Tick is reserved for future rekeying and currently does nothing.
func (t *Transform) Tick(time.Time) {}

// Close wipes the key. The transform must not be used afterwards.
func (t *Transform) Close() error {
	for i := range t.key {
		t.key[i] = 0
	}
	return nil
}

// EncodedLen returns the wire packet length for a payload of n bytes.
func EncodedLen(n int) int { return preambleSize + n }

// Overhead is the fixed size increase of Encode over the payload.
func Overhead() int { return preambleSize }
