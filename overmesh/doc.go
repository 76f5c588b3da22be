// Package overmesh provides the packet transform layer of the overmesh
// peer-to-peer virtual network tunnel.
//
// A transform converts a cleartext datagram (typically an Ethernet frame)
// into an obfuscated wire packet and back, under a pre-shared secret. The
// transforms here are encryption-only by design: they carry no
// authentication tag, no replay protection and no parameter negotiation.
// Peers must be configured with the same secret and transform out of band.
package overmesh
