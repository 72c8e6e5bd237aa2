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

package checksum

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCRC16(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		data []byte
		want uint16
	}{
		{name: "empty data", data: []byte{}, want: 0x0000},
		{name: "nil data", data: nil, want: 0x0000},
		{name: "single zero byte", data: []byte{0x00}, want: 0x0000},
		{name: "single one byte", data: []byte{0x01}, want: 0xBCE7},
		{name: "check string", data: []byte("123456789"), want: 0x4B67},
		{name: "erased chunk of zeros", data: make([]byte, 256), want: 0x0000},
		{name: "erased chunk of 0xFF", data: fill(256, 0xFF), want: 0x18F0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, CRC16(tt.data))
		})
	}
}

func TestCRC16_ConcurrentFirstUse(t *testing.T) {
	t.Parallel()

	var wg sync.WaitGroup
	results := make([]uint16, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = CRC16([]byte("123456789"))
		}(i)
	}
	wg.Wait()

	for _, got := range results {
		assert.Equal(t, uint16(0x4B67), got)
	}
}

func TestCksAdd8(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		data []byte
		want byte
	}{
		{name: "empty data", data: []byte{}, want: 0x00},
		{name: "no carry", data: []byte{0x01, 0x02, 0x03}, want: 0x06},
		{name: "carry folded back", data: []byte{0xFF, 0x01}, want: 0x01},
		{name: "exact overflow", data: []byte{0x80, 0x80}, want: 0x01},
		{name: "two 0xFF", data: []byte{0xFF, 0xFF}, want: 0xFF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, CksAdd8(tt.data))
		})
	}
}

func TestCks1(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		data []byte
		want byte
	}{
		{name: "empty data", data: []byte{}, want: 0x00},
		{name: "overflow truncates", data: []byte{0xFF, 0x01}, want: 0x00},
		{name: "short header positive response", data: []byte{0x02, 0xEC, 0x81}, want: 0x6F},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Cks1(tt.data))
		})
	}
}

func TestSum16(t *testing.T) {
	t.Parallel()

	assert.Equal(t, uint16(0), Sum16(nil))
	assert.Equal(t, uint16(0x01FE), Sum16([]byte{0xFF, 0xFF}))
	assert.Equal(t, uint16(0xFF00), Sum16(fill(256, 0xFF)))
}

func fill(n int, b byte) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}
