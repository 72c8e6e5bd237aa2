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
	"strconv"
	"strings"
)

// FlashBlock is one erasable region of flash
type FlashBlock struct {
	Start uint32
	Len   uint32
}

// End returns the first address after the block
func (b FlashBlock) End() uint32 {
	return b.Start + b.Len
}

// FlashDevice describes the flash layout of one MCU family
type FlashDevice struct {
	Name    string
	MCU     string
	Blocks  []FlashBlock
	ROMSize uint32
}

func uniformBlocks(start, size uint32, count int) []FlashBlock {
	blocks := make([]FlashBlock, 0, count)
	for i := range count {
		blocks = append(blocks, FlashBlock{Start: start + uint32(i)*size, Len: size})
	}
	return blocks
}

func concatBlocks(parts ...[]FlashBlock) []FlashBlock {
	var out []FlashBlock
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// FlashDevices is the catalog of supported flash layouts
var FlashDevices = []FlashDevice{
	{
		Name:    "7051",
		MCU:     "SH7051",
		ROMSize: 256 * 1024,
		Blocks: concatBlocks(
			uniformBlocks(0, 0x8000, 7),
			[]FlashBlock{{Start: 0x38000, Len: 0x7000}},
			uniformBlocks(0x3F000, 0x400, 4),
		),
	},
	{
		Name:    "7055",
		MCU:     "SH7055",
		ROMSize: 512 * 1024,
		Blocks: concatBlocks(
			uniformBlocks(0, 0x1000, 8),
			[]FlashBlock{{Start: 0x8000, Len: 0x8000}},
			uniformBlocks(0x10000, 0x10000, 7),
		),
	},
	{
		Name:    "7058",
		MCU:     "SH7058",
		ROMSize: 1024 * 1024,
		Blocks: concatBlocks(
			uniformBlocks(0, 0x1000, 8),
			[]FlashBlock{{Start: 0x8000, Len: 0x18000}},
			uniformBlocks(0x20000, 0x20000, 7),
		),
	},
}

// LookupFlashDevice finds a catalog entry by name ("7055", "SH7055") or by
// catalog index
func LookupFlashDevice(key string) (*FlashDevice, error) {
	key = strings.TrimSpace(key)
	for i := range FlashDevices {
		if strings.EqualFold(key, FlashDevices[i].Name) || strings.EqualFold(key, FlashDevices[i].MCU) {
			return &FlashDevices[i], nil
		}
	}
	if idx, err := strconv.Atoi(key); err == nil && idx >= 0 && idx < len(FlashDevices) {
		return &FlashDevices[idx], nil
	}
	return nil, fmt.Errorf("unknown flash device %q: %w", key, ErrInvalidParameter)
}

// Validate checks that blocks are ordered, non-overlapping and inside the ROM
func (d *FlashDevice) Validate() error {
	var prevEnd uint32
	for i, b := range d.Blocks {
		if b.Len == 0 {
			return fmt.Errorf("%s block %d: empty: %w", d.Name, i, ErrInvalidParameter)
		}
		if b.Start < prevEnd {
			return fmt.Errorf("%s block %d overlaps previous block: %w", d.Name, i, ErrInvalidParameter)
		}
		if b.End() > d.ROMSize {
			return fmt.Errorf("%s block %d ends past ROM size: %w", d.Name, i, ErrInvalidParameter)
		}
		prevEnd = b.End()
	}
	return nil
}

// BlockOf returns the index of the block holding addr, or -1
func (d *FlashDevice) BlockOf(addr uint32) int {
	for i, b := range d.Blocks {
		if addr >= b.Start && addr < b.End() {
			return i
		}
	}
	return -1
}

func (d *FlashDevice) String() string {
	return fmt.Sprintf("%s (%s, %d KiB, %d blocks)", d.Name, d.MCU, d.ROMSize/1024, len(d.Blocks))
}
