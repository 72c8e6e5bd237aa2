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

package keys

// xorShiftTable holds the 16 constants mixed in by the XOR-shift variant.
var xorShiftTable = [16]uint32{
	0x14FA3579, 0x27CD3964, 0x1777FE32, 0x9931AF12,
	0x75DB3A49, 0x19294CAA, 0xFF18CD76, 0x0788236D,
	0x5A6F7CBB, 0x7A992254, 0xADFD5414, 0x343CFBCB,
	0xC2F51639, 0x6A6D5813, 0x3729FF68, 0x22A2C751,
}

// xorShiftBase is added to the gathered iteration count.
const xorShiftBase = 0x1F

// XorShift is the "algo2" variant. It needs no secret beyond its table.
type XorShift struct{}

// XorShiftParams gathers the iteration count and table index from scattered
// seed bits: bits 0,9,1,11,2,5 form the count (plus 0x1F), bits 0,1,2,9 the
// index.
func XorShiftParams(seed uint32) (count, index int) {
	bit := func(n uint) uint32 { return (seed >> n) & 1 }

	c := bit(0)<<6 | bit(9)<<4 | bit(1)<<3 | bit(11)<<2 | bit(2)<<1 | bit(5)
	i := bit(0)<<3 | bit(1)<<2 | bit(2)<<1 | bit(9)
	return int(c) + xorShiftBase, int(i)
}

// Key implements Algorithm.
func (XorShift) Key(seed [4]byte) [4]byte {
	s := Word(seed)
	count, index := XorShiftParams(s)

	for range count {
		carry := s&0x80000000 != 0
		s += s
		if carry {
			s ^= xorShiftTable[index]
		}
	}
	return Block(s)
}

// Name implements Algorithm.
func (XorShift) Name() string {
	return "xorshift"
}
