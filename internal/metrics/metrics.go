// Copyright (c) 2024 RethinkDNS and its authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package metrics projects a *xlat.Translator's counters onto
// Prometheus, the way webmeshproj/webmesh wires its own gRPC
// interceptor counters: a small Collector that reads the live source
// on every scrape rather than duplicating counter state.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/thcu-gp/openthread/xlat"
)

// Collector implements prometheus.Collector over a *xlat.Translator's
// ProtocolCounters/ErrorCounters, scraped fresh on every Collect call so
// there is exactly one source of truth for the numbers.
type Collector struct {
	t *xlat.Translator

	packets *prometheus.Desc
	bytes   *prometheus.Desc
	errors  *prometheus.Desc
	state   *prometheus.Desc
}

// New wraps t for Prometheus registration.
func New(t *xlat.Translator) *Collector {
	return &Collector{
		t: t,
		packets: prometheus.NewDesc(
			"nat64_packets_total", "Translated packets by direction and protocol.",
			[]string{"direction", "proto"}, nil),
		bytes: prometheus.NewDesc(
			"nat64_bytes_total", "Translated bytes by direction and protocol.",
			[]string{"direction", "proto"}, nil),
		errors: prometheus.NewDesc(
			"nat64_drops_total", "Dropped packets by direction and reason.",
			[]string{"direction", "reason"}, nil),
		state: prometheus.NewDesc(
			"nat64_state", "Current translator lifecycle state (1 for the active label, 0 otherwise).",
			[]string{"state"}, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.packets
	ch <- c.bytes
	ch <- c.errors
	ch <- c.state
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	pc := c.t.ProtocolCounters()
	ec := c.t.ErrorCounters()
	st := c.t.State()

	c.collectDir(ch, "6to4", pc.ToIp4)
	c.collectDir(ch, "4to6", pc.ToIp6)
	c.collectErrs(ch, "6to4", ec.ToIp4)
	c.collectErrs(ch, "4to6", ec.ToIp6)

	for _, s := range []xlat.State{xlat.Disabled, xlat.NotRunning, xlat.Active} {
		v := 0.0
		if s == st {
			v = 1.0
		}
		ch <- prometheus.MustNewConstMetric(c.state, prometheus.GaugeValue, v, s.String())
	}
}

func (c *Collector) collectDir(ch chan<- prometheus.Metric, direction string, d xlat.DirCounters) {
	for proto, pc := range map[string]xlat.ProtoCounts{
		"udp": d.UDP, "tcp": d.TCP, "icmp": d.ICMP, "total": d.Total,
	} {
		ch <- prometheus.MustNewConstMetric(c.packets, prometheus.CounterValue, float64(pc.Packets), direction, proto)
		ch <- prometheus.MustNewConstMetric(c.bytes, prometheus.CounterValue, float64(pc.Bytes), direction, proto)
	}
}

func (c *Collector) collectErrs(ch chan<- prometheus.Metric, direction string, e xlat.ErrorCounts) {
	for reason, n := range map[string]uint64{
		"illegal-packet": e.IllegalPacket, "no-mapping": e.NoMapping,
		"unsupported-proto": e.UnsupportedProto, "unknown": e.Unknown,
	} {
		ch <- prometheus.MustNewConstMetric(c.errors, prometheus.CounterValue, float64(n), direction, reason)
	}
}
