// Package transform defines the pluggable packet transform interface used by
// the tunnel, the registry that dispatches among transform implementations,
// and the error taxonomy shared by all codecs.
//
// Transforms are symmetric: both peers construct the same transform from the
// same pre-shared secret, and Decode inverts Encode. Decode failures are a
// routine outcome on a tunnel exposed to the network (corrupted or hostile
// traffic) and signal "drop this packet", never a fatal condition.
package transform

import (
	"errors"
	"time"
)

// MaxPacketSize bounds the working plaintext buffer of every transform.
// Frames larger than this cannot traverse the tunnel.
const MaxPacketSize = 2048

// ID identifies a transform on the wire and in configuration.
type ID uint8

const (
	IDNull     ID = 1
	IDAESCBC   ID = 2
	IDChaCha20 ID = 3

	// Compression transforms live in a disjoint ID space so a tunnel can
	// stack one of each.
	IDLZ4 ID = 16
)

func (id ID) String() string {
	switch id {
	case IDNull:
		return "null"
	case IDAESCBC:
		return "aes"
	case IDChaCha20:
		return "cc20"
	case IDLZ4:
		return "lz4"
	default:
		return "unknown"
	}
}

var (
	// ErrPayloadTooLarge is returned by Encode when the input exceeds the
	// transform's working buffer.
	ErrPayloadTooLarge = errors.New("transform: payload too large")

	// ErrShortBuffer is returned when the caller-supplied output buffer
	// cannot hold the result. No partial output is written.
	ErrShortBuffer = errors.New("transform: output buffer too small")

	// ErrShortPacket is returned by Decode for inputs shorter than the
	// minimum valid wire packet.
	ErrShortPacket = errors.New("transform: packet too short")

	// ErrBadVersion is returned by Decode when the packet's version byte
	// is not the supported encoding version.
	ErrBadVersion = errors.New("transform: unsupported packet version")

	// ErrMisaligned is returned by Decode when a block-cipher ciphertext
	// region is not a whole number of cipher blocks.
	ErrMisaligned = errors.New("transform: ciphertext not block aligned")

	// ErrBadPadding is returned by Decode when the recovered padding count
	// is implausible for the packet length.
	ErrBadPadding = errors.New("transform: implausible padding")

	// ErrCorruptPayload is returned by Decode when the packet body fails
	// structural validation (for transforms that can detect it).
	ErrCorruptPayload = errors.New("transform: corrupt payload")

	// ErrUnknownTransform is returned by the registry for an unregistered
	// transform ID or name.
	ErrUnknownTransform = errors.New("transform: unknown transform")
)

// Transform encodes outbound datagrams into wire packets and decodes inbound
// wire packets back into datagrams.
//
// Encode and Decode write into dst and return the number of bytes written.
// On error nothing valid is in dst and 0 is returned. Implementations hold
// no mutable per-call state, so a single Transform may be used concurrently
// by multiple goroutines; Close must only be called once no calls are in
// flight, and the Transform must not be used afterwards.
type Transform interface {
	// ID reports the transform's wire/config identifier.
	ID() ID

	// Encode transforms a cleartext datagram into a wire packet.
	Encode(dst, src []byte) (int, error)

	// Decode recovers the datagram from a wire packet. Any error means
	// the packet should be dropped.
	Decode(dst, src []byte) (int, error)

	// Tick is a periodic housekeeping hook, reserved for future rekeying.
	Tick(now time.Time)

	// Close releases key material held by the transform.
	Close() error
}
