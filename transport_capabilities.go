// go-nisprog
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-nisprog.
//
// go-nisprog is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-nisprog is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-nisprog; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

package nisprog

import (
	"time"
)

// hasCapability checks if the transport has the specified capability
func hasCapability(t Transport, capability TransportCapability) bool {
	if checker, ok := t.(TransportCapabilityChecker); ok {
		return checker.HasCapability(capability)
	}
	return false
}

func disableKeepalive(t Transport) {
	if kc, ok := t.(KeepaliveController); ok {
		kc.DisableKeepalive()
		debugln("keepalive disabled")
	}
}

func setShortHeaders(t Transport, short bool) {
	if hc, ok := t.(HeaderController); ok {
		hc.SetShortHeaders(short)
		debugf("short headers: %t", short)
	}
}

func setP3(t Transport, d time.Duration) {
	if pc, ok := t.(P3Controller); ok {
		pc.SetP3(d)
	}
}

func wakeup(t Transport) error {
	if w, ok := t.(Waker); ok {
		return w.Wakeup()
	}
	return nil
}
