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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFixedSizeFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "rom.bin")
	data := patternMemory(0x100)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	got, err := LoadFixedSizeFile(path, 0x100)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	_, err = LoadFixedSizeFile(path, 0x200)
	require.ErrorIs(t, err, ErrInvalidParameter)
	assert.Contains(t, err.Error(), "expected 512")

	_, err = LoadFixedSizeFile(filepath.Join(dir, "nope.bin"), 0x100)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadROM(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "rom.bin")
	require.NoError(t, os.WriteFile(path, make([]byte, testDevice.ROMSize), 0o600))

	rom, err := LoadROM(path, testDevice)
	require.NoError(t, err)
	assert.Len(t, rom, int(testDevice.ROMSize))

	_, err = LoadROM(path, nil)
	require.ErrorIs(t, err, ErrNoFlashDevice)

	dev, err := LookupFlashDevice("7055")
	require.NoError(t, err)
	_, err = LoadROM(path, dev)
	require.ErrorIs(t, err, ErrInvalidParameter)
}
