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

import "errors"

// ErrNoCipher is returned when a Linear algorithm is built without a cipher.
var ErrNoCipher = errors.New("keys: no linear cipher configured")

// LinearCipher is the vendor's opaque 32-bit transform keyed by a scramble
// code. It is supplied by the caller; this package does not ship one.
type LinearCipher interface {
	Encrypt(data, code uint32) uint32
}

// LinearCipherFunc adapts a function to LinearCipher.
type LinearCipherFunc func(data, code uint32) uint32

// Encrypt calls f(data, code).
func (f LinearCipherFunc) Encrypt(data, code uint32) uint32 {
	return f(data, code)
}

// Linear is the "algo1" variant: key = cipher(seed, scramble).
// The same transform encrypts Nissan kernel payloads, keyed by the SID36 key.
type Linear struct {
	cipher   LinearCipher
	scramble uint32
}

// NewLinear binds cipher to a scramble code.
func NewLinear(cipher LinearCipher, scramble uint32) (*Linear, error) {
	if cipher == nil {
		return nil, ErrNoCipher
	}
	return &Linear{cipher: cipher, scramble: scramble}, nil
}

// Key implements Algorithm.
func (l *Linear) Key(seed [4]byte) [4]byte {
	return Block(l.cipher.Encrypt(Word(seed), l.scramble))
}

// Name implements Algorithm.
func (*Linear) Name() string {
	return "linear"
}

// Scramble returns the scramble code the cipher is keyed with.
func (l *Linear) Scramble() uint32 {
	return l.scramble
}
