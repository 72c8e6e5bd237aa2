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

//go:build unix

package main

import (
	"os"

	nisprog "github.com/ZaparooProject/go-nisprog"
	"golang.org/x/sys/unix"
)

// stdinInterrupter fires when a line was typed on stdin
type stdinInterrupter struct {
	fd  int
	eof bool
}

func newInterrupter() interrupter {
	return &stdinInterrupter{fd: int(os.Stdin.Fd())} //nolint:gosec // file descriptors fit in int
}

// Pending consumes the typed input so one Enter stops one operation
func (s *stdinInterrupter) Pending() bool {
	if s.eof {
		return false
	}
	fds := []unix.PollFd{{Fd: int32(s.fd), Events: unix.POLLIN}} //nolint:gosec // fd from os.File
	n, err := unix.Poll(fds, 0)
	if err != nil || n == 0 || fds[0].Revents&(unix.POLLIN|unix.POLLHUP) == 0 {
		return false
	}

	var buf [256]byte
	got, err := unix.Read(s.fd, buf[:])
	if err != nil || got <= 0 {
		// closed or redirected stdin, nothing can be typed any more
		s.eof = true
		return false
	}
	return true
}

// Reset drops keys typed before an operation starts
func (s *stdinInterrupter) Reset() {
	for i := 0; i < 16 && s.Pending(); i++ {
	}
}

var _ nisprog.Interrupter = (*stdinInterrupter)(nil)
