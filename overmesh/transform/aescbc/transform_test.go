package aescbc

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"math/rand"
	"testing"

	"github.com/overmesh/overmesh/overmesh/transform"
)

// fixedReader yields an endless stream of one byte value, for deterministic
// seeds and nonces in tests.
type fixedReader byte

func (r fixedReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(r)
	}
	return len(p), nil
}

func mustNew(t *testing.T, secret []byte) *Transform {
	t.Helper()
	tr, err := New(secret)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return tr
}

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	secretLens := []int{0, 1, 5, 16, 23, 24, 31, 32, 48, 200}
	payloadLens := []int{0, 1, 11, 12, 15, 16, 17, 64, 1500, MaxPayloadSize}

	for _, sl := range secretLens {
		secret := make([]byte, sl)
		rng.Read(secret)
		tr := mustNew(t, secret)

		for _, pl := range payloadLens {
			payload := make([]byte, pl)
			rng.Read(payload)

			packet := make([]byte, EncodedLen(pl))
			n, err := tr.Encode(packet, payload)
			if err != nil {
				t.Fatalf("Encode(secret %d, payload %d): %v", sl, pl, err)
			}
			if n != EncodedLen(pl) {
				t.Fatalf("Encode length = %d, want %d", n, EncodedLen(pl))
			}

			out := make([]byte, transform.MaxPacketSize)
			m, err := tr.Decode(out, packet[:n])
			if err != nil {
				t.Fatalf("Decode(secret %d, payload %d): %v", sl, pl, err)
			}
			if !bytes.Equal(out[:m], payload) {
				t.Fatalf("round trip mismatch for secret %d, payload %d", sl, pl)
			}
		}
	}
}

func TestConcreteVector(t *testing.T) {
	secret := bytes.Repeat([]byte{'A'}, 32)
	payload := []byte("HELLO, WORLD!!")

	tr := mustNew(t, secret)
	packet := make([]byte, EncodedLen(len(payload)))
	n, err := tr.Encode(packet, payload)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	out := make([]byte, transform.MaxPacketSize)
	m, err := tr.Decode(out, packet[:n])
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if string(out[:m]) != "HELLO, WORLD!!" {
		t.Fatalf("got %q", out[:m])
	}

	// A peer holding a different secret must not recover the payload. With
	// no authentication tag the decode may or may not error (padding
	// implausibility catches most forgeries), but it never yields the
	// original bytes.
	other := mustNew(t, []byte("a different secret entirely....."))
	m, err = other.Decode(out, packet[:n])
	if err == nil && bytes.Equal(out[:m], payload) {
		t.Fatalf("payload recovered under wrong secret")
	}
}

func TestEncodeDeterministicWithFixedRandom(t *testing.T) {
	secret := []byte("determinism test secret")
	payload := []byte("some payload bytes")

	a, err := NewWithRandom(secret, fixedReader(0x42))
	if err != nil {
		t.Fatalf("NewWithRandom: %v", err)
	}
	b, err := NewWithRandom(secret, fixedReader(0x42))
	if err != nil {
		t.Fatalf("NewWithRandom: %v", err)
	}

	p1 := make([]byte, EncodedLen(len(payload)))
	p2 := make([]byte, EncodedLen(len(payload)))
	n1, err := a.Encode(p1, payload)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	n2, err := b.Encode(p2, payload)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(p1[:n1], p2[:n2]) {
		t.Fatalf("same keys, same randomness, different packets")
	}

	// Preamble: version, zero SA id, then the seed verbatim.
	if p1[0] != Version {
		t.Fatalf("version byte = %d", p1[0])
	}
	if binary.BigEndian.Uint32(p1[1:5]) != 0 {
		t.Fatalf("SA id not zero")
	}
	for _, c := range p1[5:13] {
		if c != 0x42 {
			t.Fatalf("seed bytes not taken from randomness source")
		}
	}
}

func TestBuildIVDeterministic(t *testing.T) {
	tr := mustNew(t, []byte("iv determinism"))

	var iv1, iv2, iv3 [aes.BlockSize]byte
	tr.buildIV(&iv1, 0xDEADBEEFCAFE0123)
	tr.buildIV(&iv2, 0xDEADBEEFCAFE0123)
	tr.buildIV(&iv3, 0xDEADBEEFCAFE0124)

	if iv1 != iv2 {
		t.Fatalf("same seed produced different IVs")
	}
	if iv1 == iv3 {
		t.Fatalf("different seeds produced equal IVs")
	}
}

// Every valid encoding carries a padding count of 1..16: block-aligned
// assemblies still gain a full block of padding.
func TestPaddingBound(t *testing.T) {
	tr := mustNew(t, []byte("padding test secret"))

	for pl := 0; pl <= 3*aes.BlockSize; pl++ {
		payload := bytes.Repeat([]byte{0xAB}, pl)
		packet := make([]byte, EncodedLen(pl))
		n, err := tr.Encode(packet, payload)
		if err != nil {
			t.Fatalf("Encode(%d): %v", pl, err)
		}

		pad := decryptPadCount(t, tr, packet[:n])
		if pad < 1 || pad > aes.BlockSize {
			t.Fatalf("payload %d: padding count %d outside 1..%d", pl, pad, aes.BlockSize)
		}
		if (nonceSize+pl+pad)%aes.BlockSize != 0 {
			t.Fatalf("payload %d: pad %d does not complete a block", pl, pad)
		}
	}
}

// decryptPadCount recovers the trailing pad byte the way a receiver would.
func decryptPadCount(t *testing.T, tr *Transform, packet []byte) int {
	t.Helper()
	seed := binary.BigEndian.Uint64(packet[5:13])
	ct := packet[preambleSize:]

	var iv [aes.BlockSize]byte
	tr.buildIV(&iv, seed)
	assembly := make([]byte, len(ct))
	cipher.NewCBCDecrypter(tr.dataCipher, iv[:]).CryptBlocks(assembly, ct)
	return int(assembly[len(assembly)-1])
}

// forgePacket builds a syntactically valid packet whose plaintext assembly
// is fully attacker-chosen, to exercise decode validation deterministically.
func forgePacket(tr *Transform, seed uint64, assembly []byte) []byte {
	packet := make([]byte, preambleSize+len(assembly))
	packet[0] = Version
	binary.BigEndian.PutUint64(packet[5:13], seed)

	var iv [aes.BlockSize]byte
	tr.buildIV(&iv, seed)
	cipher.NewCBCEncrypter(tr.dataCipher, iv[:]).CryptBlocks(packet[preambleSize:], assembly)
	return packet
}

func TestDecodeRejectsImplausiblePadding(t *testing.T) {
	tr := mustNew(t, []byte("bad padding secret"))

	// One block whose pad count claims more bytes than the assembly holds.
	assembly := make([]byte, aes.BlockSize)
	assembly[len(assembly)-1] = 200
	packet := forgePacket(tr, 7, assembly)

	out := make([]byte, transform.MaxPacketSize)
	if _, err := tr.Decode(out, packet); !errors.Is(err, transform.ErrBadPadding) {
		t.Fatalf("err = %v, want ErrBadPadding", err)
	}

	// pad + nonce exactly filling the assembly is the largest legal count.
	assembly = make([]byte, aes.BlockSize)
	assembly[len(assembly)-1] = aes.BlockSize - nonceSize
	packet = forgePacket(tr, 7, assembly)
	n, err := tr.Decode(out, packet)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if n != 0 {
		t.Fatalf("payload length = %d, want 0", n)
	}
}

func TestDecodeRejectsBadVersion(t *testing.T) {
	tr := mustNew(t, []byte("version gate secret"))
	payload := []byte("versioned")

	packet := make([]byte, EncodedLen(len(payload)))
	n, err := tr.Encode(packet, payload)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	out := make([]byte, transform.MaxPacketSize)
	for v := 0; v <= 255; v++ {
		if v == Version {
			continue
		}
		packet[0] = byte(v)
		if _, err := tr.Decode(out, packet[:n]); !errors.Is(err, transform.ErrBadVersion) {
			t.Fatalf("version %d: err = %v, want ErrBadVersion", v, err)
		}
	}
}

func TestDecodeRejectsShortAndMisaligned(t *testing.T) {
	tr := mustNew(t, []byte("length robustness secret"))
	out := make([]byte, transform.MaxPacketSize)

	// Anything shorter than preamble plus one block is short.
	for l := 0; l < preambleSize+aes.BlockSize; l++ {
		src := make([]byte, l)
		if l > 0 {
			src[0] = Version
		}
		if _, err := tr.Decode(out, src); !errors.Is(err, transform.ErrShortPacket) {
			t.Fatalf("len %d: err = %v, want ErrShortPacket", l, err)
		}
	}

	// Ciphertext regions that are not whole blocks.
	for extra := 1; extra < aes.BlockSize; extra++ {
		src := make([]byte, preambleSize+aes.BlockSize+extra)
		src[0] = Version
		if _, err := tr.Decode(out, src); !errors.Is(err, transform.ErrMisaligned) {
			t.Fatalf("extra %d: err = %v, want ErrMisaligned", extra, err)
		}
	}
}

// Decode must tolerate arbitrary junk of any length without panicking or
// writing outside the output buffer.
func TestDecodeLengthRobustness(t *testing.T) {
	tr := mustNew(t, []byte("fuzz secret"))
	rng := rand.New(rand.NewSource(99))
	out := make([]byte, transform.MaxPacketSize)

	for l := 0; l <= 4*transform.MaxPacketSize; l += 7 {
		src := make([]byte, l)
		rng.Read(src)
		n, err := tr.Decode(out, src)
		if err == nil && (n < 0 || n > len(out)) {
			t.Fatalf("len %d: decoded length %d out of range", l, n)
		}
	}
}

func TestEncodeRejectsOversizePayload(t *testing.T) {
	tr := mustNew(t, []byte("oversize secret"))

	payload := make([]byte, MaxPayloadSize+1)
	dst := make([]byte, 4*transform.MaxPacketSize)
	if _, err := tr.Encode(dst, payload); !errors.Is(err, transform.ErrPayloadTooLarge) {
		t.Fatalf("err = %v, want ErrPayloadTooLarge", err)
	}
}

func TestEncodeRejectsShortOutput(t *testing.T) {
	tr := mustNew(t, []byte("short output secret"))
	payload := []byte("does not fit")

	dst := make([]byte, EncodedLen(len(payload))-1)
	if _, err := tr.Encode(dst, payload); !errors.Is(err, transform.ErrShortBuffer) {
		t.Fatalf("err = %v, want ErrShortBuffer", err)
	}
}

func TestDecodeRejectsShortOutput(t *testing.T) {
	tr := mustNew(t, []byte("short decode output"))
	payload := bytes.Repeat([]byte{0x55}, 100)

	packet := make([]byte, EncodedLen(len(payload)))
	n, err := tr.Encode(packet, payload)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	out := make([]byte, len(payload)-1)
	if _, err := tr.Decode(out, packet[:n]); !errors.Is(err, transform.ErrShortBuffer) {
		t.Fatalf("err = %v, want ErrShortBuffer", err)
	}
}

func TestKeyStrengthSelection(t *testing.T) {
	secret := []byte("sixteen byte key")
	a, err := NewWithRandom(secret, fixedReader(1))
	if err != nil {
		t.Fatalf("NewWithRandom: %v", err)
	}
	if a.km.strength != aes128KeyBytes {
		t.Fatalf("strength = %d, want %d", a.km.strength, aes128KeyBytes)
	}

	long := bytes.Repeat([]byte{'k'}, 40)
	b, err := NewWithRandom(long, fixedReader(1))
	if err != nil {
		t.Fatalf("NewWithRandom: %v", err)
	}
	if b.km.strength != aes256KeyBytes {
		t.Fatalf("strength = %d, want %d", b.km.strength, aes256KeyBytes)
	}
}

func TestCloseWipesKeys(t *testing.T) {
	tr := mustNew(t, []byte("teardown secret"))
	if err := tr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var zero32 [aes256KeyBytes]byte
	var zero16 [aes128KeyBytes]byte
	if tr.km.dataKey != zero32 || tr.km.ivKey != zero16 || tr.km.ivExt != zero16 {
		t.Fatalf("key material not wiped on Close")
	}
}

func BenchmarkEncode(b *testing.B) {
	tr, _ := New([]byte("benchmark secret of 32 bytes...."))
	payload := make([]byte, 1500)
	dst := make([]byte, EncodedLen(len(payload)))
	b.SetBytes(int64(len(payload)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := tr.Encode(dst, payload); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDecode(b *testing.B) {
	tr, _ := New([]byte("benchmark secret of 32 bytes...."))
	payload := make([]byte, 1500)
	packet := make([]byte, EncodedLen(len(payload)))
	n, _ := tr.Encode(packet, payload)
	out := make([]byte, transform.MaxPacketSize)
	b.SetBytes(int64(len(payload)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := tr.Decode(out, packet[:n]); err != nil {
			b.Fatal(err)
		}
	}
}
