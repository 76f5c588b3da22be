package transform

import "time"

func init() {
	Register(IDNull, "null", func([]byte) (Transform, error) {
		return Null{}, nil
	})
}

// Null is the identity transform: packets pass through unchanged. It is used
// when a tunnel runs without encryption.
type Null struct{}

func (Null) ID() ID { return IDNull }

func (Null) Encode(dst, src []byte) (int, error) { return nullCopy(dst, src) }

func (Null) Decode(dst, src []byte) (int, error) { return nullCopy(dst, src) }

func (Null) Tick(time.Time) {}

func (Null) Close() error { return nil }

func nullCopy(dst, src []byte) (int, error) {
	if len(src) > MaxPacketSize {
		return 0, ErrPayloadTooLarge
	}
	if len(dst) < len(src) {
		return 0, ErrShortBuffer
	}
	return copy(dst, src), nil
}
