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

// Package testing holds canned ECU and kernel responses and a virtual
// kernel for exercising the reprogramming engine without hardware.
package testing

import "github.com/ZaparooProject/go-nisprog/checksum"

// Request and response codes used by the builders
const (
	SIDStartComm    = 0x81
	SIDReadECUID    = 0x1A
	SIDSecurity     = 0x27
	SIDDownload     = 0x34
	SIDTransfer     = 0x36
	SIDTransferExit = 0x37
	SIDDiagSession  = 0x10
	SIDStartRoutine = 0x31
	SIDRAMJump      = 0xBF
	SIDReadAC       = 0xAC
	SIDReadData     = 0x21
	SIDSSMRead      = 0xA8
	SIDKernelConfig = 0xBE
	SIDKernelFlash  = 0xBC
	SIDKernelDump   = 0xBD
	SIDKernelRMBA   = 0x23
	SIDKernelStop   = 0x11
	Negative        = 0x7F
)

// ShortFrame wraps data in a 1-byte length header and appends the checksum,
// the way a short-header ECU or the kernel puts it on the wire
func ShortFrame(data ...byte) []byte {
	out := make([]byte, 0, len(data)+2)
	out = append(out, byte(len(data)))
	out = append(out, data...)
	return append(out, checksum.Cks1(out))
}

// BuildStartCommResponse creates a StartCommunication response with the
// given key bytes. KB1 bit 2 advertises short headers.
func BuildStartCommResponse(kb1, kb2 byte) []byte {
	return []byte{0xC1, kb1, kb2}
}

// BuildECUIDResponse creates a 1A 81 response carrying a 5 character id
func BuildECUIDResponse(id string) []byte {
	return append([]byte{0x5A, 0x81}, id...)
}

// BuildSSMIDResponse creates an A8 response carrying the 5 id bytes
func BuildSSMIDResponse(id []byte) []byte {
	return append([]byte{0xE8}, id...)
}

// BuildSeedResponse creates a 27 01 response
func BuildSeedResponse(seed [4]byte) []byte {
	return append([]byte{0x67, 0x01}, seed[:]...)
}

// BuildPositiveResponse creates the plain positive response to sid
func BuildPositiveResponse(sid byte, data ...byte) []byte {
	return append([]byte{sid + 0x40}, data...)
}

// BuildNegativeResponse creates a 7F <SID> <NRC> response
func BuildNegativeResponse(sid, nrc byte) []byte {
	return []byte{Negative, sid, nrc}
}

// BuildRMBAResponse creates a kernel ReadMemoryByAddress response
func BuildRMBAResponse(addr uint32, data []byte) []byte {
	out := append([]byte{0x63}, data...)
	return append(out, byte(addr>>16), byte(addr>>8), byte(addr))
}

// BuildACAck is the raw acknowledge of an AC address load
func BuildACAck() []byte {
	return ShortFrame(0xEC, 0x81)
}

// BuildReadDataFrame is the raw 21 81 04 01 response carrying data
func BuildReadDataFrame(data []byte) []byte {
	return ShortFrame(append([]byte{0x61, 0x81}, data...)...)
}

// BuildTransferAck is the raw SID 36 acknowledge
func BuildTransferAck() []byte {
	return ShortFrame(0x76)
}

// BuildKernelAck is the raw acknowledge of a kernel flash command
func BuildKernelAck() []byte {
	return ShortFrame(0xFC)
}

// BuildCRCMatch is the raw answer to a matching CRC compare batch
func BuildCRCMatch() []byte {
	return ShortFrame(0xFE)
}

// BuildCRCMismatch is the raw answer to a CRC compare batch that differs
func BuildCRCMismatch() []byte {
	return ShortFrame(Negative, SIDKernelConfig, 0x77)
}

// BuildDumpFrame is one raw kernel dump frame carrying 32 bytes
func BuildDumpFrame(data []byte) []byte {
	return ShortFrame(append([]byte{0xFD}, data[:32]...)...)
}
