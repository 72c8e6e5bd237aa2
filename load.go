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
	"os"
)

// LoadFixedSizeFile reads a whole file that must be exactly expected bytes
// long, such as a ROM image for a given flash device
func LoadFixedSizeFile(path string, expected int) ([]byte, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if fi.Size() != int64(expected) {
		return nil, fmt.Errorf("%s is %d (0x%X) bytes, expected %d (0x%X): %w",
			path, fi.Size(), fi.Size(), expected, expected, ErrInvalidParameter)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if len(data) != expected {
		return nil, fmt.Errorf("%s changed while reading: %w", path, ErrInvalidParameter)
	}
	return data, nil
}

// LoadROM loads a ROM image sized for dev
func LoadROM(path string, dev *FlashDevice) ([]byte, error) {
	if dev == nil {
		return nil, fmt.Errorf("load ROM: %w", ErrNoFlashDevice)
	}
	return LoadFixedSizeFile(path, int(dev.ROMSize))
}
