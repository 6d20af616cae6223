// Copyright (c) 2024 RethinkDNS and its authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package xlat

import (
	"net/netip"
	"time"
)

// AddressMapping is one live flow-group entry, binding an IPv6 endpoint
// to the IPv4 endpoint representing it outbound. Per spec.md §9's design
// note, this is stored by value in a preallocated arena (mappingPool)
// rather than heap-allocated: `next` is an index into that same arena,
// -1 meaning "no successor", standing in for the source's intrusive
// singly-linked list in a language without placement-new.
type AddressMapping struct {
	// ID is seeded from a non-cryptographic random value at startup and
	// strictly increases thereafter, so it is not predictable across
	// reboots but is comparable within one process's lifetime.
	ID uint64

	IP6 netip.Addr
	IP4 netip.Addr

	// SrcPortOrID is the original L4 source port or ICMP identifier.
	SrcPortOrID uint16
	// TranslatedPortOrID is the rewritten port/ID seen on the wire when
	// port translation is enabled, zero otherwise.
	TranslatedPortOrID uint16

	Expiry time.Time

	Counters ProtocolCounters

	icmp bool // true if SrcPortOrID/TranslatedPortOrID are ICMP identifiers
	next int  // index of next active mapping in the arena, -1 if none
}

// mappingPool is a fixed-capacity slab of AddressMapping slots, indexed
// by position; allocate/free hand out/reclaim individual slots without
// any per-mapping heap churn.
type mappingPool struct {
	slots []AddressMapping
	free  []int
}

func newMappingPool(capacity int) *mappingPool {
	free := make([]int, capacity)
	for i := range free {
		free[i] = capacity - 1 - i
	}
	return &mappingPool{
		slots: make([]AddressMapping, capacity),
		free:  free,
	}
}

func (p *mappingPool) allocate() (int, bool) {
	n := len(p.free)
	if n == 0 {
		return -1, false
	}
	idx := p.free[n-1]
	p.free = p.free[:n-1]
	return idx, true
}

func (p *mappingPool) release(idx int) {
	p.slots[idx] = AddressMapping{}
	p.free = append(p.free, idx)
}

func (p *mappingPool) get(idx int) *AddressMapping { return &p.slots[idx] }

func (p *mappingPool) capacity() int { return len(p.slots) }

func (p *mappingPool) len() int { return len(p.slots) - len(p.free) }

// activeMappings is the intrusive list of live mappings over a
// mappingPool's arena: a single head index threaded through each
// AddressMapping's next field. Lookup and expiry sweep are linear scans,
// matching the source's "singly linked intrusive list with removal
// predicates" over a mapping count that is small by construction (capped
// at the pool's capacity).
type activeMappings struct {
	pool *mappingPool
	head int
}

func newActiveMappings(pool *mappingPool) *activeMappings {
	return &activeMappings{pool: pool, head: -1}
}

func (a *activeMappings) push(idx int) {
	a.pool.slots[idx].next = a.head
	a.head = idx
}

// findByIP6 looks up the forward key (ip6[, port]); matchPort controls
// whether port participates in the key, per invariant 2's port-
// translation-dependent key shape.
func (a *activeMappings) findByIP6(ip6 netip.Addr, port uint16, matchPort bool) (int, *AddressMapping) {
	for i := a.head; i != -1; i = a.pool.slots[i].next {
		m := &a.pool.slots[i]
		if m.IP6 == ip6 && (!matchPort || m.SrcPortOrID == port) {
			return i, m
		}
	}
	return -1, nil
}

// findByIP4 looks up the reverse key (ip4[, translated port/id]).
func (a *activeMappings) findByIP4(ip4 netip.Addr, port uint16, matchPort bool) (int, *AddressMapping) {
	for i := a.head; i != -1; i = a.pool.slots[i].next {
		m := &a.pool.slots[i]
		if m.IP4 == ip4 && (!matchPort || m.TranslatedPortOrID == port) {
			return i, m
		}
	}
	return -1, nil
}

// removeExpired unlinks and returns the indices of every mapping whose
// Expiry is before now, in one pass, implementing ReleaseExpiredMappings'
// list half.
func (a *activeMappings) removeExpired(now time.Time) []int {
	var expired []int
	prev := -1
	i := a.head
	for i != -1 {
		m := &a.pool.slots[i]
		next := m.next
		if m.Expiry.Before(now) {
			if prev == -1 {
				a.head = next
			} else {
				a.pool.slots[prev].next = next
			}
			expired = append(expired, i)
		} else {
			prev = i
		}
		i = next
	}
	return expired
}

// forEach walks the active list in arbitrary (insertion-reverse) order,
// calling fn(idx, mapping) for each entry until fn returns false. fn
// must not itself unlink idx from the list (use removeExpired/reset for
// bulk removal); it may freely mutate the mapping in place.
func (a *activeMappings) forEach(fn func(idx int, m *AddressMapping) bool) {
	i := a.head
	for i != -1 {
		m := &a.pool.slots[i]
		next := m.next
		if !fn(i, m) {
			return
		}
		i = next
	}
}

func (a *activeMappings) reset() { a.head = -1 }

func (a *activeMappings) len() int {
	n := 0
	a.forEach(func(int, *AddressMapping) bool { n++; return true })
	return n
}
