// Package tunnel chains packet transforms into the tx/rx path of a virtual
// network tunnel: outbound frames are compressed then encrypted, inbound
// packets decrypted then decompressed. The tunnel's network layer sits above
// this package and owns sockets, peers and retransmission; this package owns
// only the byte transformation and the drop-on-failure contract.
package tunnel

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/overmesh/overmesh/overmesh/transform"
)

// BufferSize is the recommended capacity for Encode/Decode output buffers:
// large enough for any frame the pipeline accepts plus transform overhead.
const BufferSize = transform.MaxPacketSize + 128

// ErrClosed is returned by Encode and Decode after Close.
var ErrClosed = errors.New("tunnel: pipeline closed")

// Stats counts pipeline traffic. Fields are safe to read concurrently.
type Stats struct {
	FramesOut atomic.Int64 // frames encoded
	BytesOut  atomic.Int64 // wire bytes produced
	FramesIn  atomic.Int64 // packets decoded successfully
	BytesIn   atomic.Int64 // payload bytes recovered
	Drops     atomic.Int64 // inbound packets rejected
}

// Pipeline applies an optional compression transform and a cipher transform
// to every frame. Both transforms are fixed at construction; the pipeline
// itself is safe for concurrent Encode/Decode.
type Pipeline struct {
	cipher transform.Transform
	comp   transform.Transform // nil when compression is off
	log    *logrus.Logger

	stats     Stats
	closeOnce sync.Once
	closed    atomic.Bool

	scratch sync.Pool
}

// New builds a pipeline around cipher, with optional compression in front
// of it. comp and logger may be nil; a nil logger gets a quiet default.
func New(cipher transform.Transform, comp transform.Transform, logger *logrus.Logger) *Pipeline {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	p := &Pipeline{
		cipher: cipher,
		comp:   comp,
		log:    logger,
	}
	p.scratch.New = func() interface{} {
		b := make([]byte, BufferSize)
		return &b
	}
	return p
}

// Encode turns an outbound frame into a wire packet in dst and returns the
// packet length. Errors indicate caller mistakes (oversize frame, small
// buffer); nothing is transmitted on error.
func (p *Pipeline) Encode(dst, frame []byte) (int, error) {
	if p.closed.Load() {
		return 0, ErrClosed
	}

	src := frame
	if p.comp != nil {
		bufp := p.scratch.Get().(*[]byte)
		defer p.scratch.Put(bufp)
		n, err := p.comp.Encode(*bufp, frame)
		if err != nil {
			return 0, err
		}
		src = (*bufp)[:n]
	}

	n, err := p.cipher.Encode(dst, src)
	if err != nil {
		return 0, err
	}

	p.stats.FramesOut.Add(1)
	p.stats.BytesOut.Add(int64(n))
	p.log.WithFields(logrus.Fields{
		"frame": len(frame),
		"wire":  n,
	}).Debug("tunnel: frame encoded")
	return n, nil
}

// Decode turns an inbound wire packet back into a frame in dst and returns
// the frame length. Any error means the packet was malformed, corrupted or
// produced under a different secret; the caller must drop it and carry on.
func (p *Pipeline) Decode(dst, packet []byte) (int, error) {
	if p.closed.Load() {
		return 0, ErrClosed
	}

	var n int
	var err error
	if p.comp != nil {
		bufp := p.scratch.Get().(*[]byte)
		defer p.scratch.Put(bufp)
		m, derr := p.cipher.Decode(*bufp, packet)
		if derr == nil {
			n, derr = p.comp.Decode(dst, (*bufp)[:m])
		}
		err = derr
	} else {
		n, err = p.cipher.Decode(dst, packet)
	}

	if err != nil {
		p.stats.Drops.Add(1)
		p.log.WithFields(logrus.Fields{
			"wire":  len(packet),
			"error": err,
		}).Warn("tunnel: inbound packet dropped")
		return 0, err
	}

	p.stats.FramesIn.Add(1)
	p.stats.BytesIn.Add(int64(n))
	return n, nil
}

// Tick forwards the periodic housekeeping hook to both transforms.
func (p *Pipeline) Tick(now time.Time) {
	if p.closed.Load() {
		return
	}
	p.cipher.Tick(now)
	if p.comp != nil {
		p.comp.Tick(now)
	}
}

// Stats exposes the pipeline's traffic counters.
func (p *Pipeline) Stats() *Stats { return &p.stats }

// Close tears down both transforms. Safe to call more than once; the caller
// must ensure no Encode or Decode is in flight.
func (p *Pipeline) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		err = p.cipher.Close()
		if p.comp != nil {
			if cerr := p.comp.Close(); err == nil {
				err = cerr
			}
		}
	})
	return err
}
