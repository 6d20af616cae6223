// Copyright (c) 2024 RethinkDNS and its authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package xlat

import "math"

// ProtoCounts is a 64-bit saturating packet/byte counter pair.
type ProtoCounts struct {
	Packets uint64
	Bytes   uint64
}

func (c *ProtoCounts) add(n int) {
	c.Packets = satAdd(c.Packets, 1)
	c.Bytes = satAdd(c.Bytes, uint64(n))
}

func satAdd(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}

// DirCounters splits one direction's traffic by L4 protocol plus a
// running total, per spec.md §9's "Counters" note.
type DirCounters struct {
	UDP   ProtoCounts
	TCP   ProtoCounts
	ICMP  ProtoCounts
	Total ProtoCounts
}

func (d *DirCounters) record(proto L4Proto, n int) {
	switch proto {
	case ProtoUDP:
		d.UDP.add(n)
	case ProtoTCP:
		d.TCP.add(n)
	case ProtoICMP:
		d.ICMP.add(n)
	}
	d.Total.add(n)
}

// ProtocolCounters are the {UDP,TCP,ICMP,total} x {6→4,4→6} x
// {packets,bytes} counters, kept both per-mapping (AddressMapping.Counters)
// and aggregated on the Translator.
type ProtocolCounters struct {
	ToIp4 DirCounters // 6→4 (outbound)
	ToIp6 DirCounters // 4→6 (inbound)
}

// ErrorCounts is the per-direction drop-reason tally.
type ErrorCounts struct {
	IllegalPacket    uint64
	NoMapping        uint64
	UnsupportedProto uint64
	Unknown          uint64
}

func (e *ErrorCounts) record(reason DropReason) {
	switch reason {
	case DropIllegalPacket:
		e.IllegalPacket = satAdd(e.IllegalPacket, 1)
	case DropNoMapping:
		e.NoMapping = satAdd(e.NoMapping, 1)
	case DropUnsupportedProto:
		e.UnsupportedProto = satAdd(e.UnsupportedProto, 1)
	default:
		e.Unknown = satAdd(e.Unknown, 1)
	}
}

// ErrorCounters are the aggregate drop-reason counts, split by direction.
type ErrorCounters struct {
	ToIp4 ErrorCounts
	ToIp6 ErrorCounts
}
