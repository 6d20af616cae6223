// Copyright (c) 2024 RethinkDNS and its authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package xlat

// Listener receives Translator lifecycle notifications, the Go
// equivalent of the host's Signal/Update notifier described in
// spec.md §6. Modeled on intra/backend/dnsx_listener.go's DNSListener:
// a plain synchronous interface the core calls inline, not a channel or
// pub/sub bus.
type Listener interface {
	// OnStateChanged fires once per effective transition among
	// {Disabled, NotRunning, Active}; the notifier's coalescing
	// semantics (no-op updates suppressed) are enforced by the caller,
	// not by the listener.
	OnStateChanged(old, new State)
	// OnMappingExpired fires once per mapping reclaimed by the expiry
	// sweep (not for ClearIp4Cidr/SetEnabled(false) bulk releases,
	// which affect the whole active set at once).
	OnMappingExpired(id uint64)
}

type noopListener struct{}

func (noopListener) OnStateChanged(State, State) {}
func (noopListener) OnMappingExpired(uint64)      {}
