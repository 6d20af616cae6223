// Copyright (c) 2024 RethinkDNS and its authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package xlat

import "time"

const (
	// DefaultMappingPoolSize bounds concurrent active mappings; also the
	// AddressPool's capacity cap (spec.md §3's AddressMappingPoolSize).
	DefaultMappingPoolSize = 512

	// DefaultICMPIdleTimeout and DefaultUDPTCPIdleTimeout are the Touch
	// deadlines for ICMP vs UDP/TCP flows; T_icmp <= T_udp_tcp as the
	// expiry-timer period calculation assumes.
	DefaultICMPIdleTimeout    = 60 * time.Second
	DefaultUDPTCPIdleTimeout  = 300 * time.Second
	minDynamicPort     uint16 = 49152
	maxDynamicPort     uint16 = 65535
)

// Option configures a Translator at construction, the functional-options
// idiom intra/settings/config.go's own constructors (NewDNSOptions et
// al.) use for optional fields.
type Option func(*Translator)

// WithListener installs a state/expiry notifier; the zero value is a
// noopListener.
func WithListener(l Listener) Option {
	return func(t *Translator) { t.listener = l }
}

// WithClock injects a Clock, used by tests to advance time deterministically.
func WithClock(c Clock) Option {
	return func(t *Translator) { t.clock = c }
}

// WithIdleTimeouts overrides the default ICMP / UDP-TCP idle timeouts.
func WithIdleTimeouts(icmp, udpTCP time.Duration) Option {
	return func(t *Translator) {
		t.icmpTimeout = icmp
		t.udpTCPTimeout = udpTCP
	}
}

// WithPortTranslation enables or disables translated-port rewriting
// (enabled by default); disabling it makes AllocateMapping reuse the
// original source port/ID verbatim as translatedPortOrId's zero value
// implies "no rewrite" per invariant 3's "when assigned" qualifier.
func WithPortTranslation(enabled bool) Option {
	return func(t *Translator) { t.portTranslation = enabled }
}

// WithMappingPoolSize overrides DefaultMappingPoolSize.
func WithMappingPoolSize(n int) Option {
	return func(t *Translator) { t.poolSize = n }
}
