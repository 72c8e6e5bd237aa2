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

package frame

import (
	"errors"
	"fmt"

	"github.com/ZaparooProject/go-nisprog/checksum"
)

var (
	// ErrTooLong is returned when a payload does not fit a single frame.
	ErrTooLong = errors.New("frame: payload longer than 255 bytes")

	// ErrShort is returned when a buffer ends before the frame does.
	ErrShort = errors.New("frame: incomplete frame")

	// ErrEmpty is returned for frames without any payload byte.
	ErrEmpty = errors.New("frame: empty payload")
)

// Header selects the header form used when encoding.
type Header struct {
	Target byte
	Source byte
	Short  bool
}

// DefaultHeader is a long physical header addressing the engine ECU.
func DefaultHeader() Header {
	return Header{Target: DefaultTarget, Source: DefaultSource}
}

// Frame is a decoded frame.
type Frame struct {
	Data        []byte
	Format      byte
	Target      byte
	Source      byte
	BadChecksum bool
}

// Encode builds a complete frame around data, checksum included.
func Encode(h Header, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	if len(data) > MaxDataLength {
		return nil, ErrTooLong
	}

	out := make([]byte, 0, len(data)+MaxHeaderLength+1)

	format := byte(AddrPhysical)
	if h.Short {
		format = AddrNone
	}

	inline := len(data) <= MaxInlineLength
	if inline {
		format |= byte(len(data))
	}
	out = append(out, format)
	if !h.Short {
		out = append(out, h.Target, h.Source)
	}
	if !inline {
		out = append(out, byte(len(data)))
	}
	out = append(out, data...)
	out = append(out, CalculateChecksum(out))
	return out, nil
}

// HeaderLength returns the header size implied by the first bytes of a
// frame, or 0 if more bytes are needed to tell.
func HeaderLength(prefix []byte) int {
	if len(prefix) == 0 {
		return 0
	}
	n := 1
	if prefix[0]&AddrMask != 0 {
		n += 2
	}
	if prefix[0]&LenMask == 0 {
		n++
	}
	return n
}

// Length returns the total size of the frame starting with prefix, checksum
// included, or 0 if the header is not complete yet.
func Length(prefix []byte) int {
	hdr := HeaderLength(prefix)
	if hdr == 0 || len(prefix) < hdr {
		return 0
	}
	dataLen := int(prefix[0] & LenMask)
	if dataLen == 0 {
		dataLen = int(prefix[hdr-1])
	}
	return hdr + dataLen + 1
}

// Decode parses the frame at the start of buf and returns it along with the
// number of bytes consumed. A checksum mismatch is reported through
// Frame.BadChecksum, not as an error.
func Decode(buf []byte) (*Frame, int, error) {
	total := Length(buf)
	if total == 0 || len(buf) < total {
		return nil, 0, ErrShort
	}
	hdr := HeaderLength(buf)
	if total-hdr-1 == 0 {
		return nil, total, ErrEmpty
	}

	f := &Frame{
		Format: buf[0],
		Data:   append([]byte(nil), buf[hdr:total-1]...),
	}
	if buf[0]&AddrMask != 0 {
		f.Target = buf[1]
		f.Source = buf[2]
	}
	f.BadChecksum = CalculateChecksum(buf[:total-1]) != buf[total-1]
	return f, total, nil
}

// CalculateChecksum returns the additive checksum of header and payload.
func CalculateChecksum(data []byte) byte {
	return checksum.Cks1(data)
}

// ValidateChecksum returns true if the last byte of data is NOT the checksum
// of the bytes before it.
func ValidateChecksum(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	return CalculateChecksum(data[:len(data)-1]) != data[len(data)-1]
}

// String formats a frame for debug output.
func (f *Frame) String() string {
	return fmt.Sprintf("fmt=%02X tgt=%02X src=%02X data=% X badcks=%t",
		f.Format, f.Target, f.Source, f.Data, f.BadChecksum)
}
