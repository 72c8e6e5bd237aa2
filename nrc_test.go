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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDescribeNRC(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		want   string
		nrc    byte
		kernel bool
	}{
		{name: "kernel chunk CRC", nrc: 0x77, kernel: true, want: "Chunk CRC mismatch"},
		{name: "same code from firmware", nrc: 0x77, want: "Block transfer data checksum error"},
		{name: "kernel write verify", nrc: 0x8B, kernel: true, want: "post-write verify failed"},
		{name: "kernel-only code from firmware", nrc: 0x8B, want: "unknown NRC 0x8B"},
		{name: "kernel 350nm generic", nrc: 0x80, kernel: true, want: "350nm: generic flashing error : FWE, etc"},
		{name: "standard code in kernel", nrc: 0x12, kernel: true, want: "Sub-function not supported or invalid format"},
		{name: "vendor block sequence", nrc: 0x90, want: "Bad SID 36 block sequence / length"},
		{name: "vendor low voltage", nrc: 0x92, kernel: true, want: "Low battery voltage"},
		{name: "uncertain vendor code", nrc: 0x94, want: "vendor code 0x94, meaning uncertain"},
		{name: "unknown", nrc: 0xFE, want: "unknown NRC 0xFE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, DescribeNRC(tt.nrc, tt.kernel))
		})
	}
}

func TestDecodeNegative(t *testing.T) {
	t.Parallel()

	nr := DecodeNegative([]byte{0x7F, 0xBC, 0x8C}, true)
	if assert.NotNil(t, nr) {
		assert.Equal(t, byte(0xBC), nr.SID)
		assert.Equal(t, byte(0x8C), nr.NRC)
		assert.Equal(t, "bad block #", nr.Description)
		assert.ErrorIs(t, nr, ErrNegativeResponse)
		assert.Equal(t, "SID 0xBC rejected: bad block #", nr.Error())
	}

	assert.Nil(t, DecodeNegative([]byte{0x7F, 0xBC}, true))
	assert.Nil(t, DecodeNegative([]byte{0x74}, false))
	assert.Nil(t, DecodeNegative(nil, false))
}
