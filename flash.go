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
	"context"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-nisprog/checksum"
	"github.com/ZaparooProject/go-nisprog/iso14230"
)

// Flash write timing
const (
	eraseTimeout    = 1800 * time.Millisecond
	writeAckTimeout = 800 * time.Millisecond
	writeNRCTimeout = 300 * time.Millisecond
)

// writeAckLen is the size of the short-header write acknowledge "01 FC cks"
const writeAckLen = 3

// ReflashBlock erases and rewrites one flash block from rom, a complete
// image of the selected flash device. In practice mode the block is not
// unprotected, so the kernel runs the whole sequence without touching flash.
func (s *Session) ReflashBlock(ctx context.Context, rom []byte, block int, practice bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkFlashArgs(rom); err != nil {
		return err
	}
	if block < 0 || block >= len(s.device.Blocks) {
		return fmt.Errorf("block %d out of range (0..%d): %w", block, len(s.device.Blocks)-1, ErrMisuse)
	}
	if err := s.initKernel(); err != nil {
		return err
	}
	if err := s.reflashBlock(ctx, rom, block, practice); err != nil {
		return err
	}
	// leaves write mode
	return s.initKernel()
}

// ReflashBlocks rewrites the listed blocks in ascending order and stops at
// the first failure
func (s *Session) ReflashBlocks(ctx context.Context, rom []byte, blocks []int, practice bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkFlashArgs(rom); err != nil {
		return err
	}
	for _, b := range blocks {
		if b < 0 || b >= len(s.device.Blocks) {
			return fmt.Errorf("block %d out of range (0..%d): %w", b, len(s.device.Blocks)-1, ErrMisuse)
		}
	}
	return s.reflashBlocks(ctx, rom, blocks, practice)
}

// FlashROM compares rom with the ECU (or with orig, when given) and
// rewrites every block that differs. With all set, every block is rewritten.
// It returns the blocks that were written.
func (s *Session) FlashROM(ctx context.Context, rom, orig []byte, all, practice bool) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkFlashArgs(rom); err != nil {
		return nil, err
	}

	var blocks []int
	if all {
		for i := range s.device.Blocks {
			blocks = append(blocks, i)
		}
	} else {
		modified, err := s.changedBlocks(ctx, rom, orig)
		if err != nil {
			return nil, err
		}
		blocks = ModifiedIndexes(modified)
	}
	if len(blocks) == 0 {
		debugln("no modified blocks")
		return nil, nil
	}
	if err := s.reflashBlocks(ctx, rom, blocks, practice); err != nil {
		return nil, err
	}
	return blocks, nil
}

func (s *Session) reflashBlocks(ctx context.Context, rom []byte, blocks []int, practice bool) error {
	if err := s.initKernel(); err != nil {
		return err
	}
	for _, b := range blocks {
		if err := s.checkpoint(ctx); err != nil {
			return abortBlock("reflash", b, s.device.Blocks[b].Start, err)
		}
		if err := s.reflashBlock(ctx, rom, b, practice); err != nil {
			return err
		}
	}
	return s.initKernel()
}

// WriteFlash writes data at start in 128-byte chunks. The target area must
// already be erased and the kernel in write mode. Start and length must be
// multiples of 128.
func (s *Session) WriteFlash(ctx context.Context, start uint32, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := checkChunkAlignment(start, len(data)); err != nil {
		return err
	}
	if err := s.requireState("write flash", StateKernel); err != nil {
		return err
	}
	return s.writeChunks(ctx, -1, start, data)
}

func (s *Session) checkFlashArgs(rom []byte) error {
	if err := s.requireState("reflash", StateKernel); err != nil {
		return err
	}
	if s.device == nil {
		return fmt.Errorf("reflash: %w", ErrNoFlashDevice)
	}
	if uint32(len(rom)) != s.device.ROMSize {
		return fmt.Errorf("ROM image is 0x%X bytes, %s needs 0x%X: %w",
			len(rom), s.device.Name, s.device.ROMSize, ErrInvalidParameter)
	}
	return nil
}

func checkChunkAlignment(start uint32, length int) error {
	if start%flashChunkSize != 0 || length%flashChunkSize != 0 {
		return fmt.Errorf("write 0x%X+0x%X: start and length must be multiples of %d: %w",
			start, length, flashChunkSize, ErrMisuse)
	}
	return nil
}

func (s *Session) reflashBlock(ctx context.Context, rom []byte, block int, practice bool) error {
	fb := s.device.Blocks[block]

	if _, err := s.request("RequestDownload", []byte{sidKernelRequest},
		iso14230.Positive(sidKernelRequest), 1); err != nil {
		return abortBlock("reflash", block, fb.Start, err)
	}

	if !practice {
		if _, err := s.request("unprotect", []byte{sidKernelFlash, subUnprotect, unprotectMagic},
			respKernelOK, 1); err != nil {
			return abortBlock("reflash", block, fb.Start, err)
		}
		debugln("entered flashing enabled (unprotected) mode")
	}

	debugf("erasing block %d (0x%06X-0x%06X)", block, fb.Start, fb.End()-1)
	prev := s.transport.SetResponseTimeout(eraseTimeout)
	_, err := s.request("erase block", []byte{sidKernelFlash, subErase, byte(block)}, respKernelOK, 1)
	s.transport.SetResponseTimeout(prev)
	if err != nil {
		return abortBlock("reflash", block, fb.Start, err)
	}

	if err := s.writeChunks(ctx, block, fb.Start, rom[fb.Start:fb.End()]); err != nil {
		warnf("reflash error: do not reset the ECU, the kernel is most likely still running and accepting commands")
		return err
	}
	return nil
}

// buildWriteChunk frames one 128-byte chunk. The checksum covers the
// address and the data.
func buildWriteChunk(addr uint32, data []byte) []byte {
	frame := make([]byte, 0, writeChunkFrameLen)
	frame = append(frame, sidKernelFlash, subWrite, byte(addr>>16), byte(addr>>8), byte(addr))
	frame = append(frame, data[:flashChunkSize]...)
	return append(frame, checksum.CksAdd8(frame[2:]))
}

func (s *Session) writeChunks(ctx context.Context, block int, start uint32, data []byte) error {
	if err := checkChunkAlignment(start, len(data)); err != nil {
		return err
	}
	prog := newProgressTracker(s.progress, PhaseWrite, len(data))

	for off := 0; off < len(data); off += flashChunkSize {
		addr := start + uint32(off)
		if err := s.checkpoint(ctx); err != nil {
			return abortBlock("write", block, addr, err)
		}
		if err := s.writeChunk(addr, data[off:off+flashChunkSize]); err != nil {
			return abortBlock("write", block, addr, err)
		}
		prog.report(off+flashChunkSize, addr+flashChunkSize)
	}
	debugf("write complete: 0x%06X-0x%06X", start, start+uint32(len(data))-1)
	return nil
}

func (s *Session) writeChunk(addr uint32, chunk []byte) error {
	if err := s.transport.Send(buildWriteChunk(addr, chunk)); err != nil {
		return fmt.Errorf("send chunk: %w", err)
	}

	rx, _ := s.transport.RecvExact(writeAckLen, writeAckTimeout)
	switch {
	case len(rx) <= 1:
		s.flushQuiet()
		return fmt.Errorf("no response @ 0x%06X: %w", addr, ErrNoResponse)
	case len(rx) < writeAckLen:
		s.flushQuiet()
		return fmt.Errorf("incomplete response % X @ 0x%06X: %w", rx, addr, ErrFrameCorrupted)
	case rx[1] == respKernelOK:
		return nil
	}

	return s.rawNegative("write chunk", rx, respKernelOK, true)
}

// rawNegative completes a short-header frame whose first bytes were read
// raw and turns it into an error. Input is flushed afterwards.
func (s *Session) rawNegative(op string, rx []byte, want byte, kernel bool) error {
	if needed := 1 + int(rx[0]) - len(rx); needed > 0 {
		more, _ := s.transport.RecvExact(needed, writeNRCTimeout)
		rx = append(rx, more...)
	}
	s.flushQuiet()
	if nr := DecodeNegative(rx[1:], kernel); nr != nil {
		return fmt.Errorf("%s: %w", op, nr)
	}
	return &ProtocolError{Op: op, Want: want, Got: rx}
}
