// Copyright (c) 2024 RethinkDNS and its authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package settings holds the NAT64 core's configuration value types,
// following intra/settings/config.go's constructor-returns-(value, error)
// shape rather than panicking setters.
package settings

import (
	"errors"
	"net/netip"
	"time"

	"github.com/thcu-gp/openthread/internal/log"
)

// Nat64Options bundles the CIDR/prefix pair a host passes to
// xlat.Translator.SetIp4Cidr/SetNat64Prefix at startup, mirroring
// DNSOptions/ProxyOptions' role as a plain value object built by a
// validating constructor.
type Nat64Options struct {
	Ip4Cidr     netip.Prefix
	Nat64Prefix netip.Prefix
}

// NewNat64Options parses cidr/prefix strings into an Nat64Options,
// logging and returning an error on malformed input the way
// NewDNSOptions does for its ip:port pair.
func NewNat64Options(cidr, prefix string) (*Nat64Options, error) {
	c, err := netip.ParsePrefix(cidr)
	if err != nil {
		log.W("settings: bad ip4 cidr(%s): %v", cidr, err)
		return nil, err
	}
	p, err := netip.ParsePrefix(prefix)
	if err != nil {
		log.W("settings: bad nat64 prefix(%s): %v", prefix, err)
		return nil, err
	}
	return &Nat64Options{Ip4Cidr: c, Nat64Prefix: p}, nil
}

func (o *Nat64Options) String() string {
	return o.Ip4Cidr.String() + "," + o.Nat64Prefix.String()
}

// TimeoutOptions overrides the translator's default idle timeouts.
type TimeoutOptions struct {
	ICMP   time.Duration
	UDPTCP time.Duration
}

// NewTimeoutOptions validates that both timeouts are positive and that
// ICMP's is no longer than UDP/TCP's, the ordering §4.4's expiry-timer
// period calculation assumes.
func NewTimeoutOptions(icmp, udpTCP time.Duration) (*TimeoutOptions, error) {
	if icmp <= 0 || udpTCP <= 0 {
		return nil, errors.New("settings: timeouts must be positive")
	}
	if icmp > udpTCP {
		return nil, errors.New("settings: icmp timeout must not exceed udp/tcp timeout")
	}
	return &TimeoutOptions{ICMP: icmp, UDPTCP: udpTCP}, nil
}
