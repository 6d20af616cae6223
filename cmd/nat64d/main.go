// Copyright (c) 2024 RethinkDNS and its authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Command nat64d is a demo harness wiring a userspace TUN device to a
// *xlat.Translator: it reads raw IP packets off the device, feeds them
// through both translation directions, and writes whatever comes back
// to the same device. It exists to exercise the core interactively, not
// as a production border router (a real deployment wires two distinct
// interfaces).
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.zx2c4.com/wireguard/tun"

	"github.com/thcu-gp/openthread/internal/log"
	"github.com/thcu-gp/openthread/internal/metrics"
	"github.com/thcu-gp/openthread/internal/settings"
	"github.com/thcu-gp/openthread/xlat"
)

func main() {
	var (
		ifaceName   string
		mtu         int
		ip4Cidr     string
		nat64Prefix string
		metricsAddr string
	)

	root := &cobra.Command{
		Use:   "nat64d",
		Short: "Run a NAT64 translator loopback demo over a userspace TUN device",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(ifaceName, mtu, ip4Cidr, nat64Prefix, metricsAddr)
		},
	}

	flags := root.Flags()
	flags.StringVar(&ifaceName, "iface", "nat64-demo", "TUN interface name")
	flags.IntVar(&mtu, "mtu", 1500, "TUN device MTU")
	flags.StringVar(&ip4Cidr, "ip4-cidr", "192.0.2.0/24", "IPv4 pool CIDR")
	flags.StringVar(&nat64Prefix, "nat64-prefix", "64:ff9b::/96", "NAT64 IPv6 prefix")
	flags.StringVar(&metricsAddr, "metrics-addr", ":9464", "Prometheus metrics listen address")

	if err := root.Execute(); err != nil {
		log.E("nat64d: %v", err)
		os.Exit(1)
	}
}

func run(ifaceName string, mtu int, ip4Cidr, nat64Prefix, metricsAddr string) error {
	dev, err := tun.CreateTUN(ifaceName, mtu)
	if err != nil {
		return fmt.Errorf("create tun: %w", err)
	}
	defer dev.Close()

	t := xlat.NewTranslator()
	defer t.Close()

	opts, err := settings.NewNat64Options(ip4Cidr, nat64Prefix)
	if err != nil {
		return fmt.Errorf("nat64 options: %w", err)
	}
	if err := t.SetIp4Cidr(opts.Ip4Cidr); err != nil {
		return fmt.Errorf("set ip4 cidr: %w", err)
	}
	t.SetNat64Prefix(opts.Nat64Prefix)
	t.SetEnabled(true)

	reg := prometheus.NewRegistry()
	reg.MustRegister(metrics.New(t))
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		log.I("nat64d: metrics listening on %s", metricsAddr)
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			log.E("nat64d: metrics server: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		dev.Close()
	}()

	return pumpPackets(dev, t, mtu)
}

// pumpPackets reads packets off dev, translates each in both directions
// as applicable, and writes Forward results back to dev.
func pumpPackets(dev tun.Device, t *xlat.Translator, mtu int) error {
	batch := dev.BatchSize()
	if batch < 1 {
		batch = 1
	}
	bufs := make([][]byte, batch)
	sizes := make([]int, batch)
	for i := range bufs {
		bufs[i] = make([]byte, mtu+32)
	}

	for {
		n, err := dev.Read(bufs, sizes, 0)
		if err != nil {
			return fmt.Errorf("tun read: %w", err)
		}
		for i := 0; i < n; i++ {
			handlePacket(dev, t, bufs[i][:sizes[i]])
		}
	}
}

func handlePacket(dev tun.Device, t *xlat.Translator, pkt []byte) {
	if len(pkt) == 0 {
		return
	}
	msg := xlat.NewMessage(pkt, header6To4Headroom)

	var res xlat.Result
	switch pkt[0] >> 4 {
	case 6:
		res = t.TranslateFromIp6(msg)
	case 4:
		res = t.TranslateToIp6(msg)
	default:
		msg.Free()
		return
	}

	switch res.Kind {
	case xlat.Forward:
		out := msg.Bytes()
		if _, err := dev.Write([][]byte{out}, 0); err != nil {
			log.W("nat64d: tun write: %v", err)
		}
		msg.Free()
	case xlat.NotTranslated:
		msg.Free()
	case xlat.Drop:
		log.D("nat64d: dropped packet: %s", res.Reason)
		msg.Free()
	}
}

// header6To4Headroom covers the larger of the two header-size deltas
// (IPv6's 40 bytes vs IPv4's 20) so Prepend always finds enough room
// regardless of translation direction.
const header6To4Headroom = 40
