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

package kline

import (
	"time"

	"github.com/ZaparooProject/go-nisprog/iso14230"
)

// testerPresent asks for no response so the bus stays quiet for the caller
var testerPresent = []byte{iso14230.SIDTesterPresent, 0x02}

// startKeepalive must be called with t.mu held
func (t *Transport) startKeepalive() {
	if t.stopKA != nil {
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	t.stopKA = stop
	t.kaDone = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(t.kaPeriod / 4)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				t.keepaliveTick()
			}
		}
	}()
}

func (t *Transport) keepaliveTick() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil || time.Since(t.lastTx) < t.kaPeriod || time.Since(t.lastRx) < t.kaPeriod {
		return
	}
	if err := t.send("keepalive", testerPresent); err != nil {
		debugf("keepalive: %v", err)
	}
}

func (t *Transport) stopKeepalive() {
	t.mu.Lock()
	stop, done := t.stopKA, t.kaDone
	t.stopKA, t.kaDone = nil, nil
	t.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}
