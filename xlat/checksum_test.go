// Copyright (c) 2024 RethinkDNS and its authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package xlat

import (
	"net/netip"
	"testing"

	"gvisor.dev/gvisor/pkg/tcpip/checksum"
	"gvisor.dev/gvisor/pkg/tcpip/header"
)

// TestTransportChecksumVerifiesToZero covers invariant 8: recomputing a
// transport checksum over a correctly-checksummed segment (by feeding the
// checksum field itself back into the pseudo-header sum, the standard
// verification trick) yields zero.
func TestTransportChecksumVerifiesToZero(tester *testing.T) {
	src := netip.MustParseAddr("192.0.2.1")
	dst := netip.MustParseAddr("192.0.2.2")
	payload := []byte("hello, nat64")
	udpLen := header.UDPMinimumSize + len(payload)

	buf := make([]byte, udpLen)
	udp := header.UDP(buf)
	udp.SetSourcePort(1234)
	udp.SetDestinationPort(5678)
	udp.SetLength(uint16(udpLen))
	copy(buf[header.UDPMinimumSize:], payload)

	xsum := transportChecksum(header.UDPProtocolNumber, src, dst, uint16(udpLen), buf)
	udp.SetChecksum(udpChecksumOrFFFF(xsum))

	verify := header.PseudoHeaderChecksum(header.UDPProtocolNumber, tcpipAddr(src), tcpipAddr(dst), uint16(udpLen))
	verify = checksum.Combine(verify, checksum.Checksum(buf, 0))
	if verify != 0xFFFF {
		tester.Errorf("checksum did not verify: got residual %#04x, want 0xffff (raw, uninverted sum)", verify)
	}
}

// TestUDPChecksumZeroBecomesFFFF covers the RFC 768/2460 wire rule.
func TestUDPChecksumZeroBecomesFFFF(tester *testing.T) {
	if got := udpChecksumOrFFFF(0); got != 0xFFFF {
		tester.Errorf("got %#04x, want 0xFFFF", got)
	}
	if got := udpChecksumOrFFFF(0x1234); got != 0x1234 {
		tester.Errorf("got %#04x, want unchanged 0x1234", got)
	}
}

// TestIPv4HeaderChecksumVerifiesToZero covers invariant 8 for the IPv4
// header itself.
func TestIPv4HeaderChecksumVerifiesToZero(tester *testing.T) {
	buf := make([]byte, header.IPv4MinimumSize)
	hdr := header.IPv4(buf)
	hdr.Encode(&header.IPv4Fields{
		TotalLength: uint16(len(buf)),
		TTL:         64,
		Protocol:    ipProtoUDP,
		SrcAddr:     tcpipAddr(netip.MustParseAddr("192.0.2.1")),
		DstAddr:     tcpipAddr(netip.MustParseAddr("192.0.2.2")),
	})
	ipv4HeaderChecksum(hdr)

	if got := checksum.Checksum(hdr[:hdr.HeaderLength()], 0); got != 0xFFFF {
		tester.Errorf("header checksum did not verify: got residual %#04x, want 0xffff", got)
	}
}
