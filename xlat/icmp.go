// Copyright (c) 2024 RethinkDNS and its authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package xlat

import "gvisor.dev/gvisor/pkg/tcpip/header"

// translateICMP6To4 rewrites an ICMPv6 echo request/reply in place into
// its ICMPv4 echo equivalent: same type semantics (request/reply), same
// code (0), identifier overwritten with newIdent (the translated-port
// stand-in), checksum recomputed without a pseudo-header. Only echo
// request/reply are in scope; every other ICMPv6 type is the caller's
// responsibility to drop per DropUnsupportedProto, matching
// intra/netstack/icmpv2.go's narrow translation scope.
func translateICMP6To4(msg []byte, newIdent uint16) bool {
	if len(msg) < header.ICMPv6MinimumSize {
		return false
	}
	h6 := header.ICMPv6(msg)
	var t4 header.ICMPv4Type
	switch h6.Type() {
	case header.ICMPv6EchoRequest:
		t4 = header.ICMPv4Echo
	case header.ICMPv6EchoReply:
		t4 = header.ICMPv4EchoReply
	default:
		return false
	}
	h4 := header.ICMPv4(msg)
	h4.SetType(t4)
	h4.SetCode(header.ICMPv4UnusedCode)
	h4.SetIdent(newIdent)
	h4.SetChecksum(0)
	h4.SetChecksum(icmpv4Checksum(msg))
	return true
}

// translateICMP4To6 is translateICMP6To4's inverse. src/dst are the
// packet's IPv6 endpoints, needed because unlike ICMPv4 the ICMPv6
// checksum covers a pseudo-header.
func translateICMP4To6(msg []byte, src, dst [16]byte, newIdent uint16) bool {
	if len(msg) < header.ICMPv4MinimumSize {
		return false
	}
	h4 := header.ICMPv4(msg)
	var t6 header.ICMPv6Type
	switch h4.Type() {
	case header.ICMPv4Echo:
		t6 = header.ICMPv6EchoRequest
	case header.ICMPv4EchoReply:
		t6 = header.ICMPv6EchoReply
	default:
		return false
	}
	h6 := header.ICMPv6(msg)
	h6.SetType(t6)
	h6.SetCode(header.ICMPv6UnusedCode)
	h6.SetIdent(newIdent)
	h6.SetChecksum(0)
	h6.SetChecksum(icmp6ChecksumRaw(src, dst, msg))
	return true
}

func icmp6ChecksumRaw(src, dst [16]byte, msg []byte) uint16 {
	a := addrFromArray16(src)
	b := addrFromArray16(dst)
	return icmp6Checksum(a, b, msg)
}
