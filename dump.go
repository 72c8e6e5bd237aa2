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
	"context"
	"fmt"
	"io"
)

// watchLen is how many bytes a watch read returns
const watchLen = 4

// Dump reads length bytes at start with the best method for the current
// session: the kernel dump in a kernel session, FastRead in a normal session
// with short headers, SlowRead otherwise. EEPROM needs a kernel session.
func (s *Session) Dump(ctx context.Context, space MemorySpace, start, length uint32, w io.Writer) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateDisconnected:
		return 0, fmt.Errorf("dump: %w", ErrNotConnected)
	case StateKernel:
		return s.kernelDump(ctx, space, start, length, w)
	}

	if space == SpaceEEPROM {
		return 0, fmt.Errorf("EEPROM dump needs a running kernel: %w", ErrMisuse)
	}
	if hasCapability(s.transport, CapabilityShortHeaders) {
		return s.fastRead(ctx, start, length, w)
	}
	debugln("transport has no short headers, using slow read")
	return s.slowRead(ctx, start, length, w)
}

// WatchRead reads the 4 bytes at addr once: through AC in a normal
// session, through ReadMemoryByAddress in a kernel session
func (s *Session) WatchRead(ctx context.Context, addr uint32) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkpoint(ctx); err != nil {
		return nil, err
	}

	var (
		data []byte
		err  error
	)
	switch s.state {
	case StateDisconnected:
		return nil, fmt.Errorf("watch: %w", ErrNotConnected)
	case StateKernel:
		data, err = s.rmba(addr, watchLen)
	default:
		data, err = s.readAC(addr, watchLen)
	}
	if err != nil {
		return nil, err
	}
	if len(data) != watchLen {
		return nil, fmt.Errorf("watch 0x%08X: got %d bytes: %w", addr, len(data), ErrUnexpectedResponse)
	}
	return data, nil
}
