// Copyright (c) 2024 RethinkDNS and its authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package xlat

import "testing"

func TestDeriveState(tester *testing.T) {
	cases := []struct {
		enabled, cidrSet, prefixValid bool
		want                          State
	}{
		{false, false, false, Disabled},
		{false, true, true, Disabled},
		{true, false, false, NotRunning},
		{true, true, false, NotRunning},
		{true, false, true, NotRunning},
		{true, true, true, Active},
	}
	for _, c := range cases {
		got := deriveState(c.enabled, c.cidrSet, c.prefixValid)
		if got != c.want {
			tester.Errorf("deriveState(%v,%v,%v) = %v, want %v",
				c.enabled, c.cidrSet, c.prefixValid, got, c.want)
		}
	}
}

// TestStateTransitionsSignalOnlyOnChange covers S6: each effective
// transition notifies exactly once, no-op updates are suppressed.
func TestStateTransitionsSignalOnlyOnChange(tester *testing.T) {
	var transitions []State
	listener := &recordingListener{onState: func(_, new State) {
		transitions = append(transitions, new)
	}}

	tr := NewTranslator(WithListener(listener))
	defer tr.Close()

	tr.SetEnabled(true) // Disabled -> NotRunning
	tr.SetEnabled(true) // no-op, same state
	if err := tr.SetIp4Cidr(mustPrefix("192.0.2.0/24")); err != nil {
		tester.Fatalf("SetIp4Cidr: %v", err)
	}
	tr.SetNat64Prefix(mustPrefix("64:ff9b::/96")) // NotRunning -> Active

	want := []State{NotRunning, Active}
	if len(transitions) != len(want) {
		tester.Fatalf("got %d transitions %v, want %v", len(transitions), transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			tester.Errorf("transition[%d] = %v, want %v", i, transitions[i], want[i])
		}
	}
}

type recordingListener struct {
	onState   func(old, new State)
	onExpired func(id uint64)
}

func (l *recordingListener) OnStateChanged(old, new State) {
	if l.onState != nil {
		l.onState(old, new)
	}
}

func (l *recordingListener) OnMappingExpired(id uint64) {
	if l.onExpired != nil {
		l.onExpired(id)
	}
}
