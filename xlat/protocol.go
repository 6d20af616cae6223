// Copyright (c) 2024 RethinkDNS and its authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package xlat

// L4Proto is the transport protocol a mapping or packet belongs to, one
// of the three the translator understands. Anything else is dropped
// with UnsupportedProto before a L4Proto value is ever assigned.
type L4Proto int

const (
	ProtoUnknown L4Proto = iota
	ProtoUDP
	ProtoTCP
	ProtoICMP
)

func (p L4Proto) String() string {
	switch p {
	case ProtoUDP:
		return "udp"
	case ProtoTCP:
		return "tcp"
	case ProtoICMP:
		return "icmp"
	default:
		return "unknown"
	}
}

// raw IP protocol numbers, as they appear in an IPv4 Protocol field or an
// IPv6 Next Header field.
const (
	ipProtoICMP   = 1
	ipProtoTCP    = 6
	ipProtoUDP    = 17
	ipProtoICMPv6 = 58
)

// icmpEchoHeaderLen is the length, in bytes, of the fixed ICMP echo
// header (type, code, checksum, identifier, sequence) shared by ICMPv4
// and ICMPv6 echo request/reply messages.
const icmpEchoHeaderLen = 8
