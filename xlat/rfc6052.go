// Copyright (c) 2024 RethinkDNS and its authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package xlat

import "net/netip"

// embeddedIPv4 extracts the IPv4 address embedded in ip6 under prefix,
// per RFC 6052 §2.2's byte layout (the "u" octet at absolute byte 8 is
// skipped for every prefix length shorter than /96). Ported from
// intra/x64/nat64.go's ip6to4, generalized from net.IP to netip.Addr.
func embeddedIPv4(prefix netip.Prefix, ip6 netip.Addr) (netip.Addr, bool) {
	b6 := ip6.As16()
	startByte := prefix.Bits() / 8

	var ip4 [4]byte
	for i := 0; i < 4; i++ {
		i6 := startByte + i
		if i6 == 8 {
			startByte++
		}
		idx := startByte + i
		if idx >= len(b6) {
			return netip.Addr{}, false
		}
		ip4[i] = b6[idx]
	}
	return netip.AddrFrom4(ip4), true
}

// synthesizeIPv6 builds the RFC 6052 synthetic IPv6 address representing
// ip4 under prefix: prefix's own bits are kept, ip4's bytes are written
// at the same skip-byte-8 offsets embeddedIPv4 reads them from, and any
// remaining suffix bits are left zero (this translator never uses a
// nonzero suffix).
func synthesizeIPv6(prefix netip.Prefix, ip4 netip.Addr) netip.Addr {
	b6 := prefix.Masked().Addr().As16()
	b4 := ip4.As4()
	startByte := prefix.Bits() / 8

	for i := 0; i < 4; i++ {
		i6 := startByte + i
		if i6 == 8 {
			startByte++
		}
		b6[startByte+i] = b4[i]
	}
	return netip.AddrFrom16(b6)
}
