// Copyright (c) 2024 RethinkDNS and its authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package xlat

import (
	"gvisor.dev/gvisor/pkg/tcpip"
	"gvisor.dev/gvisor/pkg/tcpip/header"
)

// looksLikeIPv6 reports whether buf's version nibble is 6, the cheap
// pre-check TranslateToIp6 uses to bail out to NotTranslated per §4.2
// rule 1 before any IPv4 parse is attempted.
func looksLikeIPv6(buf []byte) bool {
	return len(buf) > 0 && buf[0]>>4 == 6
}

func l4ProtoFromIPv6Next(next uint8) L4Proto {
	switch next {
	case ipProtoUDP:
		return ProtoUDP
	case ipProtoTCP:
		return ProtoTCP
	case ipProtoICMPv6:
		return ProtoICMP
	default:
		return ProtoUnknown
	}
}

func l4ProtoFromIPv4Next(next uint8) L4Proto {
	switch next {
	case ipProtoUDP:
		return ProtoUDP
	case ipProtoTCP:
		return ProtoTCP
	case ipProtoICMP:
		return ProtoICMP
	default:
		return ProtoUnknown
	}
}

// l4ProtoNumber maps an L4Proto to the tcpip transport-protocol number
// used both as the pseudo-header protocol for UDP/TCP checksums and as
// an IPv6 header's next-header value (ICMPv6's case).
func l4ProtoNumber(proto L4Proto) tcpip.TransportProtocolNumber {
	switch proto {
	case ProtoUDP:
		return header.UDPProtocolNumber
	case ProtoTCP:
		return header.TCPProtocolNumber
	case ProtoICMP:
		return header.ICMPv6ProtocolNumber
	default:
		return 0
	}
}

// readSrcPortOrID reads the source port (UDP/TCP) or ICMP identifier
// from a transport-layer segment, per §4.1 step 5.
func readSrcPortOrID(proto L4Proto, segment []byte) (uint16, bool) {
	switch proto {
	case ProtoUDP:
		if len(segment) < header.UDPMinimumSize {
			return 0, false
		}
		return header.UDP(segment).SourcePort(), true
	case ProtoTCP:
		if len(segment) < header.TCPMinimumSize {
			return 0, false
		}
		return header.TCP(segment).SourcePort(), true
	case ProtoICMP:
		if len(segment) < header.ICMPv6MinimumSize {
			return 0, false
		}
		return header.ICMPv6(segment).Ident(), true
	default:
		return 0, false
	}
}

// readDstPortOrID reads the destination port/ID from an inbound IPv4
// transport segment, per §4.2 step 4's lookup key.
func readDstPortOrID(proto L4Proto, segment []byte) (uint16, bool) {
	switch proto {
	case ProtoUDP:
		if len(segment) < header.UDPMinimumSize {
			return 0, false
		}
		return header.UDP(segment).DestinationPort(), true
	case ProtoTCP:
		if len(segment) < header.TCPMinimumSize {
			return 0, false
		}
		return header.TCP(segment).DestinationPort(), true
	case ProtoICMP:
		if len(segment) < header.ICMPv4MinimumSize {
			return 0, false
		}
		return header.ICMPv4(segment).Ident(), true
	default:
		return 0, false
	}
}

// zeroTransportChecksum clears a UDP/TCP segment's checksum field, the
// precondition transportChecksum's checksum.Checksum call imposes.
func zeroTransportChecksum(proto L4Proto, segment []byte) {
	switch proto {
	case ProtoUDP:
		header.UDP(segment).SetChecksum(0)
	case ProtoTCP:
		header.TCP(segment).SetChecksum(0)
	}
}
