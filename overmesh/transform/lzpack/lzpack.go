// Package lzpack implements the LZ4 compression transform. It runs in front
// of a cipher transform on the tunnel's transmit path: Ethernet frames often
// carry compressible payloads, and compressing before encryption is the only
// order that works (ciphertext does not compress).
//
// LZ4 is chosen for its speed on commodity hardware; per-packet latency
// matters more than ratio on a tunnel hot path.
package lzpack

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/pierrec/lz4/v4"

	"github.com/overmesh/overmesh/overmesh/transform"
)

// Header: a flag byte, then the original payload length.
const (
	flagStored     = 0 // payload carried verbatim
	flagCompressed = 1 // payload is an LZ4 block

	headerSize = 1 + 4
)

func init() {
	transform.Register(transform.IDLZ4, "lz4", func([]byte) (transform.Transform, error) {
		return New(), nil
	})
}

// compressors reuses LZ4 compressor state to reduce per-packet allocations.
var compressors = sync.Pool{
	New: func() interface{} {
		return new(lz4.Compressor)
	},
}

// Transform is the keyless LZ4 packet transform. Safe for concurrent use.
type Transform struct{}

var _ transform.Transform = (*Transform)(nil)

// New returns the LZ4 transform. It holds no state and needs no secret.
func New() *Transform { return &Transform{} }

func (*Transform) ID() transform.ID { return transform.IDLZ4 }

// Encode writes flag(1) || origLen(4) || data to dst. Incompressible
// payloads are stored verbatim rather than grown.
func (*Transform) Encode(dst, src []byte) (int, error) {
	if len(src) > transform.MaxPacketSize {
		return 0, transform.ErrPayloadTooLarge
	}
	if len(dst) < headerSize {
		return 0, transform.ErrShortBuffer
	}
	binary.BigEndian.PutUint32(dst[1:headerSize], uint32(len(src)))

	c := compressors.Get().(*lz4.Compressor)
	defer compressors.Put(c)

	// Compress into scratch first: a block can expand, and dst may be
	// sized for the stored fallback only.
	scratch := make([]byte, lz4.CompressBlockBound(len(src)))
	n, err := c.CompressBlock(src, scratch)
	if err == nil && n > 0 && n < len(src) {
		if len(dst) < headerSize+n {
			return 0, transform.ErrShortBuffer
		}
		dst[0] = flagCompressed
		copy(dst[headerSize:], scratch[:n])
		return headerSize + n, nil
	}

	if len(dst) < headerSize+len(src) {
		return 0, transform.ErrShortBuffer
	}
	dst[0] = flagStored
	copy(dst[headerSize:], src)
	return headerSize + len(src), nil
}

// Decode recovers the original payload. Errors mean drop.
func (*Transform) Decode(dst, src []byte) (int, error) {
	if len(src) < headerSize {
		return 0, transform.ErrShortPacket
	}
	origLen := int(binary.BigEndian.Uint32(src[1:headerSize]))
	if origLen > transform.MaxPacketSize {
		return 0, transform.ErrPayloadTooLarge
	}
	if len(dst) < origLen {
		return 0, transform.ErrShortBuffer
	}
	data := src[headerSize:]

	switch src[0] {
	case flagStored:
		if len(data) != origLen {
			return 0, transform.ErrCorruptPayload
		}
		return copy(dst, data), nil
	case flagCompressed:
		n, err := lz4.UncompressBlock(data, dst[:origLen])
		if err != nil || n != origLen {
			return 0, transform.ErrCorruptPayload
		}
		return n, nil
	default:
		return 0, transform.ErrCorruptPayload
	}
}

// Tick does nothing; the transform is stateless.
func (*Transform) Tick(time.Time) {}

// Close does nothing; there is no key material.
func (*Transform) Close() error { return nil }

// EncodedBound returns the largest packet Encode can produce for a payload
// of n bytes (the stored fallback).
func EncodedBound(n int) int { return headerSize + n }
