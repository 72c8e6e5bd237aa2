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

// Package checksum implements the checksums used on the K-line link and by
// the reflash kernel: a reflected CRC16, the end-around-carry byte sum used to
// authenticate write chunks, and the plain additive sums of ISO14230 frames.
package checksum

import "sync"

// Poly16 is the CRC16 polynomial used by the kernel for ROM chunk hashes.
// Koopman's 0xBAAD, good Hamming distance for 2048-bit (256 byte) messages.
const Poly16 = 0xBAAD

var (
	crcTable     [256]uint16
	crcTableOnce sync.Once
)

func buildCRC16Table() {
	for i := 0; i < 256; i++ {
		var crc uint16
		c := uint16(i)
		for j := 0; j < 8; j++ {
			if (crc^c)&0x0001 != 0 {
				crc = (crc >> 1) ^ Poly16
			} else {
				crc >>= 1
			}
			c >>= 1
		}
		crcTable[i] = crc
	}
}

// CRC16 returns the reflected CRC16 (initial value 0) of data.
func CRC16(data []byte) uint16 {
	crcTableOnce.Do(buildCRC16Table)

	var crc uint16
	for _, b := range data {
		crc = (crc >> 8) ^ crcTable[(crc^uint16(b))&0xFF]
	}
	return crc
}

// CksAdd8 is an 8-bit additive checksum where a carry out of bit 7 is added
// back into the sum, like a ones' complement sum.
func CksAdd8(data []byte) byte {
	var sum uint16
	for _, b := range data {
		sum += uint16(b)
		if sum&0x100 != 0 {
			sum++
		}
		sum &= 0xFF
	}
	return byte(sum)
}

// Cks1 is the ISO14230 packet checksum: the byte sum of header and payload,
// modulo 256.
func Cks1(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return sum
}

// Sum16 is a 16-bit running byte sum, wrapping at 65536.
func Sum16(data []byte) uint16 {
	var sum uint16
	for _, b := range data {
		sum += uint16(b)
	}
	return sum
}
