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
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-nisprog/checksum"
)

// crcCompareTimeout is the base raw receive timeout of a CRC compare reply
const crcCompareTimeout = 50 * time.Millisecond

// ChangedBlocks reports, per flash block, whether rom differs from what the
// ECU holds. With orig given the images are compared locally and no kernel
// is needed; otherwise every block is checked with remote CRCs.
func (s *Session) ChangedBlocks(ctx context.Context, rom, orig []byte) ([]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device == nil {
		return nil, fmt.Errorf("compare: %w", ErrNoFlashDevice)
	}
	if uint32(len(rom)) != s.device.ROMSize {
		return nil, fmt.Errorf("ROM image is 0x%X bytes, %s needs 0x%X: %w",
			len(rom), s.device.Name, s.device.ROMSize, ErrInvalidParameter)
	}
	if orig == nil {
		if err := s.requireState("compare", StateKernel); err != nil {
			return nil, err
		}
	}
	return s.changedBlocks(ctx, rom, orig)
}

// VerifyFlash compares rom against the ECU with remote CRCs only
func (s *Session) VerifyFlash(ctx context.Context, rom []byte) ([]bool, error) {
	return s.ChangedBlocks(ctx, rom, nil)
}

// DiffBlocks compares two complete images block by block
func DiffBlocks(dev *FlashDevice, rom, orig []byte) ([]bool, error) {
	if uint32(len(rom)) != dev.ROMSize || uint32(len(orig)) != dev.ROMSize {
		return nil, fmt.Errorf("images must both be 0x%X bytes: %w", dev.ROMSize, ErrInvalidParameter)
	}
	out := make([]bool, len(dev.Blocks))
	for i, b := range dev.Blocks {
		out[i] = !bytes.Equal(rom[b.Start:b.End()], orig[b.Start:b.End()])
	}
	return out, nil
}

// ModifiedIndexes returns the indexes of the true entries
func ModifiedIndexes(modified []bool) []int {
	var out []int
	for i, m := range modified {
		if m {
			out = append(out, i)
		}
	}
	return out
}

func (s *Session) changedBlocks(ctx context.Context, rom, orig []byte) ([]bool, error) {
	if orig != nil {
		return DiffBlocks(s.device, rom, orig)
	}

	out := make([]bool, len(s.device.Blocks))
	prog := newProgressTracker(s.progress, PhaseVerify, int(s.device.ROMSize))
	done := 0
	for i, b := range s.device.Blocks {
		if err := s.checkpoint(ctx); err != nil {
			return out, abortBlock("compare", i, b.Start, err)
		}
		modified, err := s.checkROMCRC(rom[b.Start:b.End()], b.Start)
		if err != nil {
			return out, abortBlock("compare", i, b.Start, err)
		}
		out[i] = modified
		debugf("block %d (0x%06X-0x%06X): modified=%t", i, b.Start, b.End()-1, modified)
		done += int(b.Len)
		prog.report(done, b.End())
	}
	return out, nil
}

// crcBatch builds "BE 03 CNH CNL" followed by the CRC16 of four 256-byte
// chunks. Missing bytes past the end of src read as erased flash.
func crcBatch(src []byte, chunk uint32) []byte {
	req := []byte{sidKernelConfig, subCRCCompare, byte(chunk >> 8), byte(chunk)}
	var piece [crcChunkSize]byte
	for i := range crcChunksPerReq {
		off := i * crcChunkSize
		for j := range piece {
			piece[j] = 0xFF
		}
		if off < len(src) {
			copy(piece[:], src[off:])
		}
		crc := checksum.CRC16(piece[:])
		req = append(req, byte(crc>>8), byte(crc))
	}
	return req
}

// checkROMCRC compares src, destined for start, with the ECU flash. It
// stops at the first batch the kernel reports as different.
func (s *Session) checkROMCRC(src []byte, start uint32) (bool, error) {
	if start%crcChunkSize != 0 {
		return false, fmt.Errorf("CRC compare at 0x%06X: start must be %d aligned: %w",
			start, crcChunkSize, ErrMisuse)
	}
	length := (len(src) + crcRoundSize - 1) &^ (crcRoundSize - 1)
	timeout := s.rxTimeout(crcCompareTimeout)

	for off := 0; off < length; off += crcChunkSize * crcChunksPerReq {
		var piece []byte
		if off < len(src) {
			piece = src[off:]
		}
		chunk := (start + uint32(off)) / crcChunkSize
		if err := s.transport.Send(crcBatch(piece, chunk)); err != nil {
			return false, fmt.Errorf("CRC compare: %w", err)
		}

		// 01 FE cks, or 03 7F BE 77 cks
		rx, _ := s.transport.RecvExact(3, timeout)
		if len(rx) == 3 && rx[1] == respKernelConfig {
			continue
		}
		if len(rx) == 3 {
			more, _ := s.transport.RecvExact(2, timeout)
			rx = append(rx, more...)
			if len(rx) == 5 && rx[2] == sidKernelConfig && rx[3] == respCRCMismatch {
				return true, nil
			}
		}
		s.flushQuiet()
		return false, fmt.Errorf("CRC compare @ 0x%06X: got % X: %w", start+uint32(off), rx, ErrUnexpectedResponse)
	}
	return false, nil
}
