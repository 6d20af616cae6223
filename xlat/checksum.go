// Copyright (c) 2024 RethinkDNS and its authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package xlat

import (
	"net"
	"net/netip"

	"gvisor.dev/gvisor/pkg/tcpip"
	"gvisor.dev/gvisor/pkg/tcpip/checksum"
	"gvisor.dev/gvisor/pkg/tcpip/header"
)

// tcpipAddr converts a netip.Addr into the tcpip.Address form gVisor's
// header package expects for pseudo-header checksum computation, the
// same raw-bytes conversion intra/ipn/wg.go uses to build a
// tcpip.AddressWithPrefix from a netip.Addr at this pinned gvisor version.
func tcpipAddr(a netip.Addr) tcpip.Address {
	return tcpip.Address(a.AsSlice())
}

// addrFromTcpip converts a header.IPv4/IPv6 SourceAddress()/
// DestinationAddress() result back into a netip.Addr, mirroring
// intra/netstack/hdl.go's net.IP(id.RemoteAddress) conversion (tcpip.Address
// is a raw byte string at this pinned gvisor version, so both the 4-byte
// and 16-byte forms round-trip through net.IP/netip.AddrFromSlice).
func addrFromTcpip(a tcpip.Address) netip.Addr {
	addr, _ := netip.AddrFromSlice(net.IP(a))
	return addr
}

// transportChecksum recomputes a UDP/TCP checksum over a pseudo-header
// (src, dst, proto, totalLen) plus the transport segment's own bytes,
// mirroring the recompute-after-rewrite step every netstack forwarder in
// intra/netstack performs after mutating addresses in place. Callers
// must zero the segment's checksum field before calling this, the same
// precondition checksum.Checksum itself imposes.
func transportChecksum(proto tcpip.TransportProtocolNumber, src, dst netip.Addr, totalLen uint16, segment []byte) uint16 {
	xsum := header.PseudoHeaderChecksum(proto, tcpipAddr(src), tcpipAddr(dst), totalLen)
	xsum = checksum.Combine(xsum, checksum.Checksum(segment, 0))
	return ^xsum
}

// icmpv4Checksum computes the plain RFC 792 checksum of an ICMPv4
// message (no pseudo-header), matching forwarders.go's own
// header.ICMPv4Checksum call site but built directly on
// tcpip/checksum.Checksum so translateICMP6To4 doesn't depend on the
// payload-checksum convenience wrapper's exact signature across gvisor
// versions.
func icmpv4Checksum(msg []byte) uint16 {
	return ^checksum.Checksum(msg, 0)
}

// icmp6Checksum computes the ICMPv6 checksum, which (unlike ICMPv4)
// is always taken over the IPv6 pseudo-header plus the full message.
func icmp6Checksum(src, dst netip.Addr, msg []byte) uint16 {
	xsum := header.PseudoHeaderChecksum(header.ICMPv6ProtocolNumber, tcpipAddr(src), tcpipAddr(dst), uint16(len(msg)))
	xsum = checksum.Combine(xsum, checksum.Checksum(msg, 0))
	return ^xsum
}

// ipv4HeaderChecksum recomputes an IPv4 header checksum in place, RFC
// 1071 style over the header bytes alone (IPv4 carries no
// pseudo-header), used after every field rewrite in TranslateFromIp6.
func ipv4HeaderChecksum(hdr header.IPv4) {
	hdr.SetChecksum(0)
	hdr.SetChecksum(^checksum.Checksum(hdr[:hdr.HeaderLength()], 0))
}

// addrFromArray16 is a small bridge for callers holding a raw [16]byte
// IPv6 address (as icmp.go does) rather than a netip.Addr.
func addrFromArray16(b [16]byte) netip.Addr { return netip.AddrFrom16(b) }

// udpChecksumOrFFFF applies RFC 768/2460: a computed UDP checksum of
// exactly zero is transmitted as all-ones, since zero means "no
// checksum" on the wire.
func udpChecksumOrFFFF(c uint16) uint16 {
	if c == 0 {
		return 0xFFFF
	}
	return c
}
