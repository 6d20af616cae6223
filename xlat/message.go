// Copyright (c) 2024 RethinkDNS and its authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package xlat

import "sync"

// maxMessageSize bounds a single translated packet; IPv6 minimum MTU
// (1280) covers the dominant case but mapping expansion (+20 bytes for
// the IPv6-to-IPv4 header shrink, the reverse for 4-to-6 growth) needs
// headroom on both ends, so the buffer is sized like core/buf.go's own
// slab rather than exactly to path MTU.
const maxMessageSize = 1500 + 40

var messagePool = sync.Pool{
	New: func() any { return make([]byte, maxMessageSize) },
}

// Message is a translation scratch buffer borrowed from a shared pool,
// modeled on core/buf.go's Alloc/Recycle pair. off/end delimit the
// logical packet within buf, so growing the header on one end (Prepend)
// or shrinking it (Strip) never needs a copy of the payload.
type Message struct {
	buf      []byte
	off, end int
	kind     PacketKind
}

// PacketKind tags a Message's current wire format, set by TranslateFromIp6
// (IPv4) / TranslateToIp6 (IPv6) on a successful Forward.
type PacketKind int

const (
	KindUnknown PacketKind = iota
	KindIPv4
	KindIPv6
)

// SetIPv4 tags the message as a translated IPv4 datagram.
func (m *Message) SetIPv4() { m.kind = KindIPv4 }

// SetIPv6 tags the message as a translated IPv6 datagram.
func (m *Message) SetIPv6() { m.kind = KindIPv6 }

// Kind reports the message's current tagged wire format.
func (m *Message) Kind() PacketKind { return m.kind }

// NewMessage borrows a buffer and copies pkt into its body, with
// headroom bytes of free space before the payload for in-place header
// rewrites that grow the packet (4-to-6 translation can add up to 20
// bytes for the larger IPv6 header).
func NewMessage(pkt []byte, headroom int) *Message {
	buf := messagePool.Get().([]byte)
	need := headroom + len(pkt)
	if need > len(buf) {
		buf = make([]byte, need)
	}
	off := headroom
	copy(buf[off:], pkt)
	return &Message{buf: buf, off: off, end: off + len(pkt)}
}

// Bytes returns the current logical packet contents.
func (m *Message) Bytes() []byte { return m.buf[m.off:m.end] }

// Len returns the current logical packet length.
func (m *Message) Len() int { return m.end - m.off }

// Strip drops n bytes from the front, used to remove an IPv4 header
// before prepending the larger IPv6 one (or vice versa).
func (m *Message) Strip(n int) {
	m.off += n
	if m.off > m.end {
		m.off = m.end
	}
}

// Prepend reserves n bytes immediately before the current logical start
// and returns that slice for the caller to fill with a new header, or
// ok=false if insufficient headroom remains; the caller must treat that
// as a translation failure (Drop), not a crash.
func (m *Message) Prepend(n int) ([]byte, bool) {
	if m.off < n {
		return nil, false
	}
	m.off -= n
	return m.buf[m.off : m.off+n], true
}

// Free returns the underlying buffer to the shared pool. Callers must
// not use m after calling Free.
func (m *Message) Free() {
	if cap(m.buf) == maxMessageSize {
		messagePool.Put(m.buf[:maxMessageSize]) //nolint:staticcheck // reset len for reuse
	}
	m.buf, m.off, m.end = nil, 0, 0
}
