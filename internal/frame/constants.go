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

// Package frame provides ISO14230 frame encoding and decoding for K-line
// communication
package frame

// Format byte layout: A1 A0 L5..L0
const (
	AddrMask     = 0xC0 // Address mode bits
	AddrNone     = 0x00 // No address bytes (short header)
	AddrPhysical = 0x80 // Physical target/source addressing
	AddrFunction = 0xC0 // Functional target/source addressing
	LenMask      = 0x3F // Length carried in the format byte, 0 if a length byte follows
)

// Default physical addresses
const (
	DefaultTarget = 0x10 // Engine ECU
	DefaultSource = 0xF1 // Tester
)

// Frame size limits
const (
	MaxDataLength   = 255 // A length byte caps the payload at 255
	MaxInlineLength = 63  // Largest payload that fits the format byte
	MaxHeaderLength = 4   // Format + target + source + length
	MinFrameLength  = 3   // Format + one data byte + checksum
)
