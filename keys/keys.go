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

// Package keys implements the SecurityAccess seed to key transforms and the
// block ciphers used to obfuscate uploaded kernels.
//
// Every transform is a pure function of its input and its own constant
// tables. An Algorithm is picked once, when the keyset is resolved, and then
// handed to the sequencer.
package keys

import "encoding/binary"

// Algorithm derives a 4-byte SecurityAccess key from a 4-byte seed.
type Algorithm interface {
	// Key returns the key for seed. It never fails.
	Key(seed [4]byte) [4]byte

	// Name identifies the algorithm in logs.
	Name() string
}

// Block packs a big-endian uint32 into four bytes.
func Block(v uint32) [4]byte {
	var out [4]byte
	binary.BigEndian.PutUint32(out[:], v)
	return out
}

// Word reconstructs the big-endian uint32 held in b.
func Word(b [4]byte) uint32 {
	return binary.BigEndian.Uint32(b[:])
}
