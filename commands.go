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

// Vendor service identifiers used in a normal (stock firmware) session
const (
	sidReadDataByLocalID = 0x21 // AC + 21 81 04 01 fast/slow read
	sidSetRAMJump        = 0xBF // check / execute uploaded kernel
	sidSSMReadAddress    = 0xA8 // Subaru ECU-ID read
	sidReadAC            = 0xAC // load absolute addresses for the next 21 81 read
)

// Kernel service identifiers
const (
	sidKernelConfig  = 0xBE // speed, EEPROM address, ROM CRC compare
	sidKernelFlash   = 0xBC // unprotect, erase, write
	sidKernelDump    = 0xBD // block dump
	sidKernelRMBA    = 0x23 // read memory by address
	sidKernelID      = 0x1A // kernel identification string
	sidKernelStop    = 0x11 // ECU reset, leaves the kernel
	sidKernelRequest = 0x34 // enter flash mode (no parameters)
)

// Kernel sub-functions
const (
	subSetSpeed    = 0x01 // BE 01 <BRR>
	subSetEEPROM   = 0x02 // BE 02 <a2 a1 a0>
	subCRCCompare  = 0x03 // BE 03 <chunk> <4 x crc16>
	subErase       = 0x01 // BC 01 <block>
	subWrite       = 0x02 // BC 02 <a2 a1 a0> <128 bytes> <cks>
	subUnprotect   = 0x55 // BC 55 AA
	unprotectMagic = 0xAA
)

// Response codes not derived from a request SID
const (
	respKernelOK      = 0xFC // BC acknowledge
	respKernelConfig  = 0xFE // BE acknowledge
	respRAMJump       = 0xFF // BF acknowledge
	respReadAC        = 0xEC // AC acknowledge
	respReadData      = 0x61 // 21 acknowledge
	respSSMRead       = 0xE8 // A8 acknowledge
	respKernelDump    = 0xFD // inside 21 FD <32> cks dump frames
	respKernelDumpHdr = 0x21 // short-header length byte of a dump frame
	respCRCMismatch   = 0x77 // NRC returned by BE 03 on a CRC mismatch
)

// Fixed request bodies
var (
	reqReadAC       = []byte{sidReadAC, 0x81}
	reqRetrieveData = []byte{sidReadDataByLocalID, 0x81, 0x04, 0x01}
	reqECUID        = []byte{0x1A, 0x81}
	reqDownload3480 = []byte{0x34, 0x80}
	reqSubaruDiag   = []byte{0x10, 0x85, 0x02}
	reqSubaruStart  = []byte{0x31, 0x01, 0x01}
)

// addrMarker prefixes every absolute address in an AC request.
const addrMarker = 0x83

// Protocol sizes
const (
	flashChunkSize     = 128
	sid36BlockSize     = 32
	subaruBlockSize    = 128
	crcChunkSize       = 256
	crcChunksPerReq    = 4
	crcRoundSize       = 1024
	kernelDumpBlock    = 32
	kernelDumpMaxBlks  = 8
	rmbaMaxLen         = 251
	slowReadChunk      = 192
	fastReadMaxLines   = 12
	kernelROMLimit     = 0x800000
	kernelRAMBase      = 0xFF800000
	writeChunkFrameLen = 134
)
