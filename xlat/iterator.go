// Copyright (c) 2024 RethinkDNS and its authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package xlat

import "net/netip"

// MappingSnapshot is one introspection record copied out of an active
// mapping, per §6's {id, ip6, ip4, srcPortOrId, translatedPortOrId,
// counters, remainingTimeMs} field list.
type MappingSnapshot struct {
	ID                 uint64
	IP6                netip.Addr
	IP4                netip.Addr
	SrcPortOrID        uint16
	TranslatedPortOrID uint16
	Counters           ProtocolCounters
	RemainingTimeMs    int64
}

// AddressMappingIterator is an externally driven cursor over a
// Translator's active list, snapshotting one entry per call so the
// caller never observes a half-mutated mapping. remainingTimeMs follows
// the lazy-expiry visibility contract: an entry already past its expiry
// but not yet swept is reported with remaining = 0, never hidden.
type AddressMappingIterator struct {
	t       *Translator
	indices []int
	ids     []uint64
	pos     int
}

// InitAddressMappingIterator snapshots the current set of active-mapping
// indices, together with each slot's ID at snapshot time, and returns a
// cursor over them.
func (t *Translator) InitAddressMappingIterator() *AddressMappingIterator {
	t.mu.Lock()
	defer t.mu.Unlock()
	indices := make([]int, 0, t.active.len())
	ids := make([]uint64, 0, t.active.len())
	t.active.forEach(func(idx int, m *AddressMapping) bool {
		indices = append(indices, idx)
		ids = append(ids, m.ID)
		return true
	})
	return &AddressMappingIterator{t: t, indices: indices, ids: ids}
}

// GetNextAddressMapping returns the next snapshot, or ok=false once the
// cursor is exhausted. A mapping released between Init and this call is
// silently skipped rather than surfaced as a stale snapshot; a slot whose
// ID no longer matches what Init saw has been recycled for an unrelated
// flow and is skipped the same way, never substituted for the original.
func (it *AddressMappingIterator) GetNextAddressMapping() (MappingSnapshot, bool) {
	it.t.mu.Lock()
	defer it.t.mu.Unlock()
	for it.pos < len(it.indices) {
		idx := it.indices[it.pos]
		wantID := it.ids[it.pos]
		it.pos++
		if idx < 0 || idx >= it.t.pool.capacity() {
			continue
		}
		m := it.t.pool.get(idx)
		if m.ID == 0 || m.ID != wantID {
			continue // slot was released, and possibly recycled for another flow
		}
		now := it.t.clock.Now()
		remaining := m.Expiry.Sub(now)
		if remaining < 0 {
			remaining = 0
		}
		return MappingSnapshot{
			ID:                 m.ID,
			IP6:                m.IP6,
			IP4:                m.IP4,
			SrcPortOrID:        m.SrcPortOrID,
			TranslatedPortOrID: m.TranslatedPortOrID,
			Counters:           m.Counters,
			RemainingTimeMs:    remaining.Milliseconds(),
		}, true
	}
	return MappingSnapshot{}, false
}
