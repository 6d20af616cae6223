// Copyright (c) 2024 RethinkDNS and its authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package xlat

import (
	"net/netip"
	"testing"
	"time"
)

func TestMappingPoolAllocateRelease(tester *testing.T) {
	p := newMappingPool(2)
	if p.capacity() != 2 {
		tester.Fatalf("capacity = %d, want 2", p.capacity())
	}
	a, ok := p.allocate()
	if !ok {
		tester.Fatalf("first allocate failed")
	}
	b, ok := p.allocate()
	if !ok {
		tester.Fatalf("second allocate failed")
	}
	if _, ok := p.allocate(); ok {
		tester.Fatalf("third allocate should fail, pool capacity is 2")
	}
	if p.len() != 2 {
		tester.Errorf("len = %d, want 2", p.len())
	}
	p.release(a)
	if p.len() != 1 {
		tester.Errorf("len after release = %d, want 1", p.len())
	}
	if _, ok := p.allocate(); !ok {
		tester.Errorf("allocate after release should succeed")
	}
	_ = b
}

func TestActiveMappingsFindByIP6AndIP4(tester *testing.T) {
	pool := newMappingPool(4)
	active := newActiveMappings(pool)

	idx, _ := pool.allocate()
	m := pool.get(idx)
	m.IP6 = netip.MustParseAddr("2001:db8::1")
	m.IP4 = netip.MustParseAddr("192.0.2.1")
	m.SrcPortOrID = 1000
	m.TranslatedPortOrID = 50000
	active.push(idx)

	if _, found := active.findByIP6(m.IP6, 1000, true); found == nil {
		tester.Errorf("expected to find mapping by ip6+port")
	}
	if _, found := active.findByIP6(m.IP6, 9999, true); found != nil {
		tester.Errorf("port mismatch should not match when matchPort is true")
	}
	if _, found := active.findByIP6(m.IP6, 9999, false); found == nil {
		tester.Errorf("expected match ignoring port when matchPort is false")
	}
	if _, found := active.findByIP4(m.IP4, 50000, true); found == nil {
		tester.Errorf("expected to find mapping by ip4+translated port")
	}
}

func TestActiveMappingsRemoveExpired(tester *testing.T) {
	pool := newMappingPool(4)
	active := newActiveMappings(pool)

	base := time.Unix(1700000000, 0)
	idxLive, _ := pool.allocate()
	pool.get(idxLive).Expiry = base.Add(time.Minute)
	active.push(idxLive)

	idxDead, _ := pool.allocate()
	pool.get(idxDead).Expiry = base.Add(-time.Minute)
	active.push(idxDead)

	expired := active.removeExpired(base)
	if len(expired) != 1 || expired[0] != idxDead {
		tester.Fatalf("got %v, want [%d]", expired, idxDead)
	}
	if active.len() != 1 {
		tester.Errorf("active.len() = %d, want 1", active.len())
	}
	if _, found := active.findByIP6(pool.get(idxLive).IP6, 0, false); found == nil {
		tester.Errorf("live mapping should still be reachable after sweep")
	}
}

// TestAllocateMappingKeyUniqueness covers invariant 1: no two active
// mappings share the same forward key.
func TestAllocateMappingKeyUniqueness(tester *testing.T) {
	tr, _ := newTestTranslator(tester)

	ip6 := netip.MustParseAddr("2001:db8::1")
	m1, ok := tr.findOrAllocateMapping(ip6, 1000, ProtoUDP)
	if !ok {
		tester.Fatalf("first allocation failed")
	}
	m2, ok := tr.findOrAllocateMapping(ip6, 1000, ProtoUDP)
	if !ok {
		tester.Fatalf("second lookup failed")
	}
	if m1 != m2 {
		tester.Errorf("expected the same mapping to be returned for an identical key")
	}
	if tr.active.len() != 1 {
		tester.Errorf("active.len() = %d, want 1 (no duplicate entries)", tr.active.len())
	}
}

// TestAllocateMappingPortRangeAndParity covers invariant 2.
func TestAllocateMappingPortRangeAndParity(tester *testing.T) {
	tr, _ := newTestTranslator(tester)

	for i, origPort := range []uint16{1, 2, 1023, 33000, 65534, 65535} {
		ip6 := netip.AddrFrom16([16]byte{0: 0x20, 1: 0x01, 15: byte(i + 1)})
		m, ok := tr.findOrAllocateMapping(ip6, origPort, ProtoUDP)
		if !ok {
			tester.Fatalf("allocation %d failed", i)
		}
		p := m.TranslatedPortOrID
		if p < minDynamicPort || p > maxDynamicPort {
			tester.Errorf("port %d out of dynamic range [%d,%d]", p, minDynamicPort, maxDynamicPort)
		}
		if (p^origPort)&1 != 0 {
			tester.Errorf("translated port %d does not preserve parity of %d", p, origPort)
		}
	}
}

// TestMonotonicMappingIDs covers invariant 4.
func TestMonotonicMappingIDs(tester *testing.T) {
	tr, _ := newTestTranslator(tester)

	var last uint64
	for i := 1; i <= 5; i++ {
		ip6 := netip.AddrFrom16([16]byte{0: 0x20, 1: 0x01, 15: byte(i)})
		m, ok := tr.findOrAllocateMapping(ip6, 1000, ProtoUDP)
		if !ok {
			tester.Fatalf("allocation %d failed", i)
		}
		if m.ID <= last {
			tester.Errorf("mapping ID %d did not increase past %d", m.ID, last)
		}
		last = m.ID
	}
}

// TestTouchResurrectsBeforeSweep covers invariant 5's touch half: a
// lookup before the sweep runs extends Expiry rather than requiring
// reallocation, even past the original deadline.
func TestTouchResurrectsBeforeSweep(tester *testing.T) {
	tr, clock := newTestTranslator(tester)

	ip6 := netip.MustParseAddr("2001:db8::1")
	first, ok := tr.findOrAllocateMapping(ip6, 1000, ProtoUDP)
	if !ok {
		tester.Fatalf("allocation failed")
	}
	firstID := first.ID

	clock.advance(DefaultUDPTCPIdleTimeout + time.Second)
	second, ok := tr.findOrAllocateMapping(ip6, 1000, ProtoUDP)
	if !ok {
		tester.Fatalf("lookup after expiry (pre-sweep) failed")
	}
	if second.ID != firstID {
		tester.Errorf("got a new mapping (ID %d), want resurrection of %d", second.ID, firstID)
	}
}
