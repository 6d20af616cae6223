// Copyright (c) 2024 RethinkDNS and its authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package xlat implements a stateful NAT64 translator: bidirectional
// IPv6<->IPv4 packet rewriting with per-flow address/port mappings and
// idle-timeout eviction, modeled on firestack's intra/x64 NAT64 helpers
// and intra/netstack's gVisor-based header handling.
package xlat

import (
	"math/rand"
	"net/netip"
	"sync"
	"time"

	"github.com/thcu-gp/openthread/internal/log"
	"gvisor.dev/gvisor/pkg/tcpip/header"
)

// Translator is the façade described in the component table: it owns the
// mapping pool, active list, address pool, configuration, counters, and
// expiry timer, and implements TranslateFromIp6/TranslateToIp6. All
// exported methods except Close take t.mu for their full duration, the "external
// mutex at the boundary" the single-threaded-cooperative source assumes
// its host provides.
type Translator struct {
	mu sync.Mutex

	enabled     bool
	ip4Cidr     netip.Prefix
	cidrSet     bool
	nat64Prefix netip.Prefix
	prefixSet   bool
	state       State

	listener        Listener
	clock           Clock
	icmpTimeout     time.Duration
	udpTCPTimeout   time.Duration
	portTranslation bool
	poolSize        int

	pool     *mappingPool
	active   *activeMappings
	addrPool *AddressPool

	counters    ProtocolCounters
	errCounters ErrorCounters

	nextID uint64
	rng    *rand.Rand

	reaper *idleReaper
}

// NewTranslator constructs a disabled Translator with no CIDR/prefix
// configured, applies opts, allocates its mapping pool, and arms the
// expiry timer at min(icmpTimeout, udpTCPTimeout), per §4.4.
func NewTranslator(opts ...Option) *Translator {
	t := &Translator{
		clock:           realClock{},
		icmpTimeout:     DefaultICMPIdleTimeout,
		udpTCPTimeout:   DefaultUDPTCPIdleTimeout,
		portTranslation: true,
		poolSize:        DefaultMappingPoolSize,
		listener:        noopListener{},
		rng:             rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, o := range opts {
		o(t)
	}
	t.pool = newMappingPool(t.poolSize)
	t.active = newActiveMappings(t.pool)
	t.addrPool = newAddressPool()
	t.nextID = t.rng.Uint64()

	period := t.icmpTimeout
	if t.udpTCPTimeout < period {
		period = t.udpTCPTimeout
	}
	t.reaper = startIdleReaper(period, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.releaseExpiredMappingsLocked()
	})
	return t
}

// Close stops the expiry timer goroutine; a Translator not intended for
// further use should be Closed to avoid leaking it.
func (t *Translator) Close() { t.reaper.Stop() }

// State returns the current lifecycle state.
func (t *Translator) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// ---- control plane ----

func (t *Translator) recomputeStateLocked() {
	old := t.state
	next := deriveState(t.enabled, t.cidrSet, t.prefixSet)
	if next == old {
		return
	}
	t.state = next
	t.listener.OnStateChanged(old, next)
}

// SetEnabled flips the enable flag; disabling releases every active
// mapping (each address returned individually to addrPool, same as a
// single expired mapping) before recomputing state, per §4.6. Unlike
// SetIp4Cidr/ClearIp4Cidr, disabling must not discard addrPool itself:
// the configured CIDR is untouched by enable/disable, so a later
// SetEnabled(true) has to find the same pool still populated.
func (t *Translator) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
	if !enabled {
		t.active.forEach(func(idx int, m *AddressMapping) bool {
			t.releaseMappingLocked(idx, m)
			return true
		})
		t.active.reset()
	}
	t.recomputeStateLocked()
}

// SetIp4Cidr validates length in [1,32], repopulates the address pool,
// flushes the mapping/active lists, and recomputes state.
func (t *Translator) SetIp4Cidr(cidr netip.Prefix) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !cidr.IsValid() || !isValidCIDRLength(cidr.Bits()) {
		return &ConfigError{Op: "SetIp4Cidr", Err: ErrInvalidArgs}
	}
	t.releaseAllLocked()
	t.ip4Cidr = cidr.Masked()
	t.cidrSet = true
	if t.smallCidrModeLocked() {
		t.addrPool.populate(t.ip4Cidr, 2)
	} else {
		t.addrPool.populate(t.ip4Cidr, t.poolSize)
	}
	t.recomputeStateLocked()
	return nil
}

// ClearIp4Cidr flushes mappings and the address pool, then recomputes state.
func (t *Translator) ClearIp4Cidr() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.releaseAllLocked()
	t.ip4Cidr = netip.Prefix{}
	t.cidrSet = false
	t.addrPool.Clear()
	t.recomputeStateLocked()
}

// SetNat64Prefix accepts prefix if its length is one of the RFC 6052
// lengths; otherwise it behaves as ClearNat64Prefix.
func (t *Translator) SetNat64Prefix(prefix netip.Prefix) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !prefix.IsValid() || !isValidNat64PrefixLength(prefix.Bits()) {
		t.nat64Prefix = netip.Prefix{}
		t.prefixSet = false
		t.recomputeStateLocked()
		return
	}
	t.nat64Prefix = prefix.Masked()
	t.prefixSet = true
	t.recomputeStateLocked()
}

// ClearNat64Prefix unsets the NAT64 prefix and recomputes state.
func (t *Translator) ClearNat64Prefix() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nat64Prefix = netip.Prefix{}
	t.prefixSet = false
	t.recomputeStateLocked()
}

// GetIp4Cidr reports the configured IPv4 CIDR, or ErrNotFound if unset.
func (t *Translator) GetIp4Cidr() (netip.Prefix, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.cidrSet {
		return netip.Prefix{}, &ConfigError{Op: "GetIp4Cidr", Err: ErrNotFound}
	}
	return t.ip4Cidr, nil
}

// GetIp6Prefix reports the configured NAT64 prefix, or ErrNotFound if unset.
func (t *Translator) GetIp6Prefix() (netip.Prefix, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.prefixSet {
		return netip.Prefix{}, &ConfigError{Op: "GetIp6Prefix", Err: ErrNotFound}
	}
	return t.nat64Prefix, nil
}

// ProtocolCounters returns a snapshot of the aggregate counters.
func (t *Translator) ProtocolCounters() ProtocolCounters {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counters
}

// ErrorCounters returns a snapshot of the aggregate drop-reason counters.
func (t *Translator) ErrorCounters() ErrorCounters {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.errCounters
}

func (t *Translator) smallCidrModeLocked() bool {
	return t.ip4Cidr.Bits() > MaxCIDRLenForPool
}

func (t *Translator) releaseAllLocked() {
	t.active.forEach(func(idx int, m *AddressMapping) bool {
		t.pool.release(idx)
		return true
	})
	t.active.reset()
	t.addrPool.Clear()
}

// ---- mapping table (§4.3) ----

func (t *Translator) findOrAllocateMapping(ip6 netip.Addr, port uint16, proto L4Proto) (*AddressMapping, bool) {
	if _, m := t.active.findByIP6(ip6, port, t.portTranslation); m != nil {
		t.touch(m, proto)
		return m, true
	}
	return t.allocateMapping(ip6, port, proto)
}

func (t *Translator) allocateMapping(ip6 netip.Addr, port uint16, proto L4Proto) (*AddressMapping, bool) {
	ip4, ok := t.acquireAddressLocked()
	if !ok {
		return nil, false
	}
	idx, ok := t.pool.allocate()
	if !ok {
		if !t.smallCidrModeLocked() {
			t.addrPool.Push(ip4)
		}
		return nil, false
	}

	t.nextID++
	m := t.pool.get(idx)
	m.ID = t.nextID
	m.IP6 = ip6
	m.IP4 = ip4
	m.SrcPortOrID = port
	m.icmp = proto == ProtoICMP
	if t.portTranslation {
		m.TranslatedPortOrID = t.allocateSourcePort(port)
	} else {
		m.TranslatedPortOrID = 0
	}
	m.Counters = ProtocolCounters{}
	t.touch(m, proto)
	t.active.push(idx)
	return m, true
}

// acquireAddressLocked implements §4.3's two allocation modes.
func (t *Translator) acquireAddressLocked() (netip.Addr, bool) {
	if t.smallCidrModeLocked() {
		return t.addrPool.First()
	}
	if ip4, ok := t.addrPool.Pop(); ok {
		return ip4, true
	}
	t.releaseExpiredMappingsLocked()
	return t.addrPool.Pop()
}

// allocateSourcePort implements the parity-preserving port sampler.
func (t *Translator) allocateSourcePort(origPort uint16) uint16 {
	for {
		candidate := minDynamicPort + uint16(t.rng.Intn(int(maxDynamicPort-minDynamicPort)+1))
		if (origPort^candidate)&1 != 0 {
			if candidate == maxDynamicPort {
				candidate--
			} else {
				candidate++
			}
		}
		if !t.portInUseLocked(candidate) {
			return candidate
		}
	}
}

func (t *Translator) portInUseLocked(port uint16) bool {
	inUse := false
	t.active.forEach(func(_ int, m *AddressMapping) bool {
		if m.TranslatedPortOrID == port {
			inUse = true
			return false
		}
		return true
	})
	return inUse
}

func (t *Translator) findMapping(ip4 netip.Addr, port uint16, proto L4Proto) (*AddressMapping, bool) {
	_, m := t.active.findByIP4(ip4, port, t.portTranslation)
	if m == nil {
		return nil, false
	}
	t.touch(m, proto)
	return m, true
}

func (t *Translator) touch(m *AddressMapping, proto L4Proto) {
	now := t.clock.Now()
	if proto == ProtoICMP {
		m.Expiry = now.Add(t.icmpTimeout)
	} else {
		m.Expiry = now.Add(t.udpTCPTimeout)
	}
}

func (t *Translator) releaseMappingLocked(idx int, m *AddressMapping) {
	if !t.smallCidrModeLocked() {
		t.addrPool.Push(m.IP4)
	}
	t.pool.release(idx)
}

func (t *Translator) releaseExpiredMappingsLocked() int {
	now := t.clock.Now()
	expired := t.active.removeExpired(now)
	for _, idx := range expired {
		m := t.pool.get(idx)
		id := m.ID
		t.releaseMappingLocked(idx, m)
		t.listener.OnMappingExpired(id)
	}
	return len(expired)
}

// ---- data plane (§4.1/§4.2) ----

// TranslateFromIp6 translates an outbound IPv6 datagram (msg positioned
// at its start) into an IPv4 datagram, per §4.1's numbered contract.
func (t *Translator) TranslateFromIp6(msg *Message) Result {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.cidrSet || !t.prefixSet {
		return notTranslatedResult()
	}

	buf := msg.Bytes()
	if len(buf) < header.IPv6MinimumSize {
		t.errCounters.ToIp4.record(DropIllegalPacket)
		return dropResult(DropIllegalPacket)
	}
	ip6 := header.IPv6(buf)

	dst := ip6.DestinationAddress()
	dstAddr := addrFromTcpip(dst)
	if !t.nat64Prefix.Contains(dstAddr) {
		return notTranslatedResult()
	}

	proto := l4ProtoFromIPv6Next(ip6.NextHeader())
	if proto == ProtoUnknown {
		t.errCounters.ToIp4.record(DropUnsupportedProto)
		return dropResult(DropUnsupportedProto)
	}

	src := ip6.SourceAddress()
	srcAddr := addrFromTcpip(src)
	transport := buf[header.IPv6MinimumSize:]

	origPort, ok := readSrcPortOrID(proto, transport)
	if !ok {
		t.errCounters.ToIp4.record(DropIllegalPacket)
		return dropResult(DropIllegalPacket)
	}

	m, ok := t.findOrAllocateMapping(srcAddr, origPort, proto)
	if !ok {
		t.errCounters.ToIp4.record(DropNoMapping)
		return dropResult(DropNoMapping)
	}

	srcPortOrID := origPort
	if t.portTranslation {
		srcPortOrID = m.TranslatedPortOrID
	}

	ip4Dst, ok := embeddedIPv4(t.nat64Prefix, dstAddr)
	if !ok {
		t.errCounters.ToIp4.record(DropIllegalPacket)
		return dropResult(DropIllegalPacket)
	}

	msg.Strip(header.IPv6MinimumSize)
	body := msg.Bytes()

	var ipProto uint8
	switch proto {
	case ProtoUDP:
		ipProto = ipProtoUDP
		header.UDP(body).SetSourcePort(srcPortOrID)
	case ProtoTCP:
		ipProto = ipProtoTCP
		header.TCP(body).SetSourcePort(srcPortOrID)
	case ProtoICMP:
		ipProto = ipProtoICMP
		if !translateICMP6To4(body, srcPortOrID) {
			t.errCounters.ToIp4.record(DropUnsupportedProto)
			return dropResult(DropUnsupportedProto)
		}
	}

	totalLen := uint16(header.IPv4MinimumSize + len(body))
	if proto != ProtoICMP {
		segLen := len(body)
		zeroTransportChecksum(proto, body)
		xsum := transportChecksum(l4ProtoNumber(proto), m.IP4, ip4Dst, uint16(segLen), body)
		if proto == ProtoUDP {
			header.UDP(body).SetChecksum(udpChecksumOrFFFF(xsum))
		} else {
			header.TCP(body).SetChecksum(xsum)
		}
	}

	hdrBytes, ok := msg.Prepend(header.IPv4MinimumSize)
	if !ok {
		t.errCounters.ToIp4.record(DropIllegalPacket)
		return dropResult(DropIllegalPacket)
	}
	ipv4 := header.IPv4(hdrBytes)
	ipv4.Encode(&header.IPv4Fields{
		TotalLength: totalLen,
		ID:          0,
		TTL:         ip6.HopLimit(),
		Protocol:    ipProto,
		SrcAddr:     tcpipAddr(m.IP4),
		DstAddr:     tcpipAddr(ip4Dst),
	})
	ipv4HeaderChecksum(ipv4)

	msg.SetIPv4()
	n := msg.Len()
	t.counters.ToIp4.record(proto, n)
	m.Counters.ToIp4.record(proto, n)
	return forwardResult()
}

// TranslateToIp6 translates an inbound IPv4 datagram into an IPv6
// datagram, per §4.2's numbered contract.
func (t *Translator) TranslateToIp6(msg *Message) Result {
	t.mu.Lock()
	defer t.mu.Unlock()

	buf := msg.Bytes()
	if looksLikeIPv6(buf) {
		return notTranslatedResult()
	}
	if !t.cidrSet {
		log.D("xlat: cidr unset, passing through inbound packet")
		return forwardResult()
	}
	if !t.prefixSet {
		t.errCounters.ToIp6.record(DropIllegalPacket)
		return dropResult(DropIllegalPacket)
	}

	if len(buf) < header.IPv4MinimumSize {
		t.errCounters.ToIp6.record(DropIllegalPacket)
		return dropResult(DropIllegalPacket)
	}
	ip4 := header.IPv4(buf)
	if int(ip4.HeaderLength()) < header.IPv4MinimumSize || len(buf) < int(ip4.HeaderLength()) {
		t.errCounters.ToIp6.record(DropIllegalPacket)
		return dropResult(DropIllegalPacket)
	}

	proto := l4ProtoFromIPv4Next(ip4.Protocol())
	if proto == ProtoUnknown {
		t.errCounters.ToIp6.record(DropUnsupportedProto)
		return dropResult(DropUnsupportedProto)
	}

	hdrLen := int(ip4.HeaderLength())
	transport := buf[hdrLen:]
	dstPort, ok := readDstPortOrID(proto, transport)
	if !ok {
		t.errCounters.ToIp6.record(DropIllegalPacket)
		return dropResult(DropIllegalPacket)
	}

	dstAddr := addrFromTcpip(ip4.DestinationAddress())
	m, ok := t.findMapping(dstAddr, dstPort, proto)
	if !ok {
		t.errCounters.ToIp6.record(DropNoMapping)
		return dropResult(DropNoMapping)
	}

	srcAddr := addrFromTcpip(ip4.SourceAddress())
	ip6Src := synthesizeIPv6(t.nat64Prefix, srcAddr)

	msg.Strip(hdrLen)
	body := msg.Bytes()

	switch proto {
	case ProtoUDP:
		header.UDP(body).SetDestinationPort(m.SrcPortOrID)
	case ProtoTCP:
		header.TCP(body).SetDestinationPort(m.SrcPortOrID)
	case ProtoICMP:
		b16 := ip6Src.As16()
		d16 := m.IP6.As16()
		if !translateICMP4To6(body, b16, d16, m.SrcPortOrID) {
			t.errCounters.ToIp6.record(DropUnsupportedProto)
			return dropResult(DropUnsupportedProto)
		}
	}

	if proto != ProtoICMP {
		zeroTransportChecksum(proto, body)
		xsum := transportChecksum(l4ProtoNumber(proto), ip6Src, m.IP6, uint16(len(body)), body)
		if proto == ProtoUDP {
			header.UDP(body).SetChecksum(udpChecksumOrFFFF(xsum))
		} else {
			header.TCP(body).SetChecksum(xsum)
		}
	}

	hdrBytes, ok := msg.Prepend(header.IPv6MinimumSize)
	if !ok {
		t.errCounters.ToIp6.record(DropIllegalPacket)
		return dropResult(DropIllegalPacket)
	}
	ip6 := header.IPv6(hdrBytes)
	ip6.Encode(&header.IPv6Fields{
		PayloadLength:     uint16(len(body)),
		TransportProtocol: l4ProtoNumber(proto),
		HopLimit:          ip4.TTL(),
		SrcAddr:           tcpipAddr(ip6Src),
		DstAddr:           tcpipAddr(m.IP6),
	})

	msg.SetIPv6()
	n := msg.Len()
	t.counters.ToIp6.record(proto, n)
	m.Counters.ToIp6.record(proto, n)
	return forwardResult()
}
