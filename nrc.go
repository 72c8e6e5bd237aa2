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
	"fmt"

	"github.com/ZaparooProject/go-nisprog/iso14230"
)

// Kernel negative response codes
const (
	NRCKernelChunkCRC    = 0x77
	NRCKernelBadBlock    = 0x8C
	NRCKernelEraseVerify = 0x8D
	NRCKernelDestBounds  = 0x88
	NRCKernelDestAlign   = 0x89
	NRCKernelLenAlign    = 0x8A
	NRCKernelWriteVerify = 0x8B
	NRCKernelSilicon     = 0x8E
	NRCKernelRewrites    = 0x8F
)

// Manufacturer negative response codes seen from stock firmware
const (
	NRCBlockSequence   = 0x90
	NRCPayloadChecksum = 0x91
	NRCLowVoltage      = 0x92
)

var kernelNRC = map[byte]string{
	NRCKernelChunkCRC:    "Chunk CRC mismatch",
	NRCKernelSilicon:     "Wrong kernel for silicon (180 / 350nm)",
	NRCKernelBadBlock:    "bad block #",
	NRCKernelEraseVerify: "erase verify failed",
	NRCKernelDestBounds:  "dest out of bounds",
	NRCKernelDestAlign:   "dest not on 128B boundary",
	NRCKernelLenAlign:    "len not multiple of 128",
	NRCKernelWriteVerify: "post-write verify failed",
	NRCKernelRewrites:    "350nm: max # of rewrite attempts",
	0x80:                 "350nm: generic flashing error : FWE, etc",
	0x81:                 "180nm: initialization failed",
	0x82:                 "180nm: Setting of operating freq abnormal",
	0x84:                 "180nm: user branch setting abnormal",
	0xA0:                 "7051: err after erase",
	0xA1:                 "7051: before write",
	0xA2:                 "7051: after write",
	0xA3:                 "7051: verify",
	0xA8:                 "180nm: bad FCCS",
	0xA9:                 "180nm: bad RAMER",
	0xAA:                 "180nm: bad DL_ERASE",
	0xAB:                 "180nm: bad DL_WRITE",
	0xAC:                 "180nm: bad INIT_ERASE",
	0xAD:                 "180nm: bad INIT_WRITE",
	0xAE:                 "180nm: bad TDER",
	0xAF:                 "180nm: bad FTDAR",
	0xB1:                 "180nm: DPFR fail",
	0xB2:                 "180nm: flash key register error",
	0xB4:                 "180nm: source select error",
}

var vendorNRC = map[byte]string{
	NRCBlockSequence:   "Bad SID 36 block sequence / length",
	NRCPayloadChecksum: "Bad SID 36/37 payload checksum",
	NRCLowVoltage:      "Low battery voltage",
}

// DescribeNRC returns the meaning of nrc. Kernel codes are only considered
// when kernel is true, since stock firmware reuses some of the same values.
func DescribeNRC(nrc byte, kernel bool) string {
	if kernel {
		if text, ok := kernelNRC[nrc]; ok {
			return text
		}
	}
	if text, ok := vendorNRC[nrc]; ok {
		return text
	}
	if nrc >= 0x93 && nrc <= 0x95 {
		return fmt.Sprintf("vendor code 0x%02X, meaning uncertain", nrc)
	}
	if text, ok := iso14230.DescribeNRC(nrc); ok {
		return text
	}
	return fmt.Sprintf("unknown NRC 0x%02X", nrc)
}

// DecodeNegative turns a 7F <SID> <NRC> frame into a NegativeResponseError.
// It returns nil if data is not a negative response.
func DecodeNegative(data []byte, kernel bool) *NegativeResponseError {
	if !iso14230.IsNegative(data) {
		return nil
	}
	return &NegativeResponseError{
		SID:         data[1],
		NRC:         data[2],
		Description: DescribeNRC(data[2], kernel),
	}
}
