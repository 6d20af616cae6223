// Copyright (c) 2024 RethinkDNS and its authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package xlat

import (
	"net/netip"
	"testing"
)

func TestSynthesizeAndEmbedRoundTrip(tester *testing.T) {
	cases := []struct {
		prefix string
		ip4    string
	}{
		{"64:ff9b::/96", "203.0.113.5"},
		{"2001:db8:100::/40", "203.0.113.5"},
		{"2001:db8:122::/48", "198.51.100.7"},
		{"2001:db8:122:300::/56", "198.51.100.7"},
		{"2001:db8:122:344::/64", "192.0.2.1"},
	}
	for _, c := range cases {
		prefix := netip.MustParsePrefix(c.prefix)
		ip4 := netip.MustParseAddr(c.ip4)

		ip6 := synthesizeIPv6(prefix, ip4)
		got, ok := embeddedIPv4(prefix, ip6)
		if !ok {
			tester.Fatalf("%s: embeddedIPv4 failed on synthesized %s", c.prefix, ip6)
		}
		if got != ip4 {
			tester.Errorf("%s: round trip got %s, want %s", c.prefix, got, ip4)
		}
	}
}

func TestSynthesizeIPv6KnownVector(tester *testing.T) {
	prefix := netip.MustParsePrefix("64:ff9b::/96")
	ip4 := netip.MustParseAddr("203.0.113.5")
	got := synthesizeIPv6(prefix, ip4)
	want := netip.MustParseAddr("64:ff9b::203.0.113.5")
	if got != want {
		tester.Errorf("got %s, want %s", got, want)
	}
}
