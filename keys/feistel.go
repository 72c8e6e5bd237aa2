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

// subaruNibbles substitutes each 5-bit window of the broadcast round input.
var subaruNibbles = [32]uint8{
	0x5, 0x6, 0x7, 0x1, 0x9, 0xC, 0xD, 0x8,
	0xA, 0xD, 0x2, 0xB, 0xF, 0x4, 0x0, 0x3,
	0xB, 0x4, 0x6, 0x0, 0xF, 0x2, 0xD, 0x9,
	0x5, 0xC, 0x1, 0xA, 0x3, 0xD, 0xE, 0x8,
}

// subaruUnlockTable is indexed 0..15; unlock rounds consume it from the end.
var subaruUnlockTable = [16]uint16{
	0x53DA, 0x33BC, 0x72EB, 0x437D,
	0x7CA3, 0x3382, 0x834F, 0x3608,
	0xAFB8, 0x503D, 0xDBA3, 0x9D34,
	0x3563, 0x6B70, 0x6E74, 0x88F0,
}

var subaruEncryptTable = [4]uint16{0x7856, 0xCE22, 0xF513, 0x6E86}

var (
	// SubaruUnlock is the 16-round SecurityAccess variant.
	SubaruUnlock = NewFeistel("subaru-unlock", reversed(subaruUnlockTable[:])...)

	// SubaruEncrypt is the 4-round payload cipher for Subaru kernel uploads.
	SubaruEncrypt = NewFeistel("subaru-encrypt", subaruEncryptTable[:]...)
)

// Feistel is a 16-bit half Feistel network with one round per constant.
type Feistel struct {
	name   string
	rounds []uint16
}

// NewFeistel returns a network applying rounds in the given order.
func NewFeistel(name string, rounds ...uint16) *Feistel {
	return &Feistel{name: name, rounds: append([]uint16(nil), rounds...)}
}

// Transform runs every round over v then swaps the halves.
func (f *Feistel) Transform(v uint32) uint32 {
	for _, k := range f.rounds {
		lo := uint16(v)
		hi := uint16(v >> 16)

		idx := uint32(lo ^ k)
		idx += idx << 16

		var sub uint16
		for n := 0; n < 4; n++ {
			shift := uint(n * 4)
			sub += uint16(subaruNibbles[(idx>>shift)&0x1F]) << shift
		}
		sub = (sub >> 3) + (sub << 13)

		v = uint32(sub^hi) + uint32(lo)<<16
	}
	return (v >> 16) + (v << 16)
}

// Key implements Algorithm.
func (f *Feistel) Key(seed [4]byte) [4]byte {
	return Block(f.Transform(Word(seed)))
}

// Name implements Algorithm.
func (f *Feistel) Name() string {
	return f.name
}

// Rounds reports how many rounds the network runs.
func (f *Feistel) Rounds() int {
	return len(f.rounds)
}

func reversed(in []uint16) []uint16 {
	out := make([]uint16, len(in))
	for i, v := range in {
		out[len(in)-1-i] = v
	}
	return out
}
