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
	"io"
	"math"
	"time"

	"github.com/ZaparooProject/go-nisprog/checksum"
	"github.com/ZaparooProject/go-nisprog/iso14230"
)

// Kernel serial clock: the SCI baud rate is derived from a 20 MHz peripheral
// clock divided by 32 * (BRR + 1)
const kernelSCIClock = 20_000_000

// kernelSpeedQuiet is how long the kernel needs after a speed change
const kernelSpeedQuiet = 25 * time.Millisecond

// kernelDumpTimeout is the base raw receive timeout of one dump frame
const kernelDumpTimeout = 25 * time.Millisecond

func kspeedFromBRR(brr int) int {
	return kernelSCIClock / (32 * (brr + 1))
}

// KernelBRR returns the baud rate register value for kspeed and the relative
// error of the rate it actually produces, in percent
func KernelBRR(kspeed int) (brr int, pctErr float64, err error) {
	if kspeed < kspeedFromBRR(0xFF) {
		return 0, 0, fmt.Errorf("kernel speed %d out of bounds: %w", kspeed, ErrInvalidParameter)
	}
	brr = kernelSCIClock/(32*kspeed) - 1
	if brr <= 0 || brr > 0xFF {
		return 0, 0, fmt.Errorf("illegal BRR value for kernel speed %d: %w", kspeed, ErrInvalidParameter)
	}
	pctErr = 100 * float64(kspeedFromBRR(brr)-kspeed) / float64(kspeed)
	// the PC copes with a slow kernel better than a fast one
	if pctErr >= 2 || pctErr <= -4 {
		return 0, pctErr, fmt.Errorf("BRR is %.1f%% away from requested speed %d: %w",
			pctErr, kspeed, ErrInvalidParameter)
	}
	return brr, pctErr, nil
}

// initKernel assumes a freshly booted kernel: no keepalive, kernel speed,
// short headers only
func (s *Session) initKernel() error {
	disableKeepalive(s.transport)
	if err := s.transport.SetSpeed(s.config.KernelBaud); err != nil {
		return fmt.Errorf("kernel init: could not set speed: %w", err)
	}
	if err := s.transport.FlushInput(); err != nil {
		debugf("flush input: %v", err)
	}
	setShortHeaders(s.transport, true)

	prev := s.state
	s.state = StateKernel
	if _, err := s.request("kernel StartCommunication", []byte{iso14230.SIDStartCommunication},
		iso14230.Positive(iso14230.SIDStartCommunication), 1); err != nil {
		s.state = prev
		return err
	}
	return nil
}

// KernelID returns the identification string of the running kernel
func (s *Session) KernelID(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireState("kernel id", StateKernel); err != nil {
		return "", err
	}
	if err := s.checkpoint(ctx); err != nil {
		return "", err
	}
	resp, err := s.request("kernel id", []byte{sidKernelID}, iso14230.Positive(sidKernelID), 2)
	if err != nil {
		return "", fmt.Errorf("%w (old kernel maybe?)", err)
	}
	return string(resp.Data[1:]), nil
}

// SetKernelSpeed asks the kernel to switch its line speed, then follows it
// and re-initializes the link
func (s *Session) SetKernelSpeed(ctx context.Context, kspeed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireState("set kernel speed", StateKernel); err != nil {
		return err
	}
	brr, pct, err := KernelBRR(kspeed)
	if err != nil {
		return err
	}
	if err := s.checkpoint(ctx); err != nil {
		return err
	}
	debugf("kernel speed %d: BRR %d (%.1f%%)", kspeed, brr, pct)

	if _, err := s.request("set kernel speed", []byte{sidKernelConfig, subSetSpeed, byte(brr)},
		respKernelConfig, 1); err != nil {
		return err
	}
	time.Sleep(kernelSpeedQuiet)

	s.config.KernelBaud = kspeed
	return s.initKernel()
}

// SetEEPROMReadAddr tells the kernel where the firmware's EEPROM read
// routine lives
func (s *Session) SetEEPROMReadAddr(ctx context.Context, addr uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireState("set eeprom address", StateKernel); err != nil {
		return err
	}
	if err := s.checkpoint(ctx); err != nil {
		return err
	}
	return s.setEEPROMReadAddr(addr)
}

func (s *Session) setEEPROMReadAddr(addr uint32) error {
	req := []byte{sidKernelConfig, subSetEEPROM, byte(addr >> 16), byte(addr >> 8), byte(addr)}
	if _, err := s.request("set eeprom address", req, respKernelConfig, 1); err != nil {
		return err
	}
	return nil
}

// ReadMemory reads length bytes with the kernel's ReadMemoryByAddress. Only
// the bottom (ROM) and top (RAM) 8 MiB of the address space are reachable.
func (s *Session) ReadMemory(ctx context.Context, addr, length uint32) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireState("read memory", StateKernel); err != nil {
		return nil, err
	}
	if err := s.checkpoint(ctx); err != nil {
		return nil, err
	}
	return s.rmba(addr, length)
}

func rmbaRangeOK(addr, length uint32) bool {
	end := uint64(addr) + uint64(length)
	if addr < kernelROMLimit {
		return end <= kernelROMLimit
	}
	return addr >= kernelRAMBase && end <= math.MaxUint32+1
}

func (s *Session) rmba(addr, length uint32) ([]byte, error) {
	if !rmbaRangeOK(addr, length) {
		return nil, fmt.Errorf("read memory 0x%08X+0x%X out of bounds: %w", addr, length, ErrInvalidParameter)
	}

	out := make([]byte, 0, length)
	for length > 0 {
		cur := min(length, rmbaMaxLen)
		req := []byte{sidKernelRMBA, byte(addr >> 16), byte(addr >> 8), byte(addr), byte(cur)}
		resp, err := s.request("read memory", req, iso14230.Positive(sidKernelRMBA), int(cur)+4)
		if err != nil {
			return out, err
		}
		if resp.Len() != int(cur)+4 {
			return out, &ProtocolError{Op: "read memory", Want: iso14230.Positive(sidKernelRMBA), Got: resp.Data}
		}
		out = append(out, resp.Data[1:1+cur]...)
		length -= cur
		addr += cur
	}
	return out, nil
}

// MemorySpace selects what a kernel dump reads
type MemorySpace int

const (
	// SpaceROM reads flash (or RAM, for addresses in the top 8 MiB)
	SpaceROM MemorySpace = iota
	// SpaceEEPROM reads the external EEPROM through the firmware routine
	SpaceEEPROM
)

// KernelDump reads length bytes at start through the running kernel and
// writes them to w. EEPROM dumps need the EEPROM read address configured.
func (s *Session) KernelDump(ctx context.Context, space MemorySpace, start, length uint32, w io.Writer) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireState("kernel dump", StateKernel); err != nil {
		return 0, err
	}
	return s.kernelDump(ctx, space, start, length, w)
}

func (s *Session) kernelDump(ctx context.Context, space MemorySpace, start, length uint32, w io.Writer) (int, error) {
	if err := checkRange(start, length); err != nil {
		return 0, err
	}
	ram := start > kernelRAMBase
	if ram && space == SpaceEEPROM {
		return 0, fmt.Errorf("EEPROM dump from a RAM address: %w", ErrInvalidParameter)
	}
	if space == SpaceEEPROM {
		if s.config.EEPROMReadAddr == 0 {
			return 0, fmt.Errorf("EEPROM read routine address not set: %w", ErrMisuse)
		}
		if err := s.setEEPROMReadAddr(s.config.EEPROMReadAddr); err != nil {
			return 0, err
		}
	}
	if err := s.initKernel(); err != nil {
		return 0, err
	}

	skip := start & (kernelDumpBlock - 1)
	iter := start - skip
	willget := (uint64(skip) + uint64(length) + kernelDumpBlock - 1) &^ (kernelDumpBlock - 1)
	written := 0
	prog := newProgressTracker(s.progress, PhaseDump, int(length))

	as := byte(1)
	if space == SpaceEEPROM {
		as = 0
	}

	for willget > 0 {
		if err := s.checkpoint(ctx); err != nil {
			return written, abortAt("kernel dump", iter+skip, err)
		}

		numblocks := uint32(min(willget/kernelDumpBlock, kernelDumpMaxBlks))
		var (
			buf []byte
			err error
		)
		if ram {
			buf, err = s.rmba(iter+skip, numblocks*kernelDumpBlock-skip)
		} else {
			curblock := iter / kernelDumpBlock
			req := []byte{sidKernelDump, as, byte(numblocks >> 8), byte(numblocks),
				byte(curblock >> 8), byte(curblock)}
			if err = s.transport.Send(req); err == nil {
				buf, err = s.rxRawDump(int(skip), int(numblocks))
			}
		}
		if err != nil {
			s.flushQuiet()
			return written, abortAt("kernel dump", iter+skip, err)
		}

		cplen := int(numblocks*kernelDumpBlock - skip)
		skip = 0
		if written+cplen > int(length) {
			cplen = int(length) - written
		}
		n, err := w.Write(buf[:cplen])
		written += n
		if err != nil {
			return written, abortAt("kernel dump", iter, fmt.Errorf("write output: %w", err))
		}

		iter += numblocks * kernelDumpBlock
		willget -= uint64(numblocks * kernelDumpBlock)
		prog.report(written, iter)
	}
	return written, nil
}

// rxRawDump collects numblocks dump frames "21 FD <32 bytes> cks", dropping
// the first skip data bytes
func (s *Session) rxRawDump(skip, numblocks int) ([]byte, error) {
	const frameLen = 3 + kernelDumpBlock
	out := make([]byte, 0, numblocks*kernelDumpBlock)
	timeout := s.rxTimeout(kernelDumpTimeout)

	for bi := range numblocks {
		rx, err := s.transport.RecvExact(frameLen, timeout)
		if len(rx) != frameLen {
			if err == nil {
				err = ErrNoResponse
			}
			return out, fmt.Errorf("dump frame %d: got %d bytes: %w", bi, len(rx), err)
		}
		if rx[0] != respKernelDumpHdr || rx[1] != respKernelDump || checksum.Cks1(rx[:frameLen-1]) != rx[frameLen-1] {
			return out, fmt.Errorf("dump frame %d: bad frame % X: %w", bi, rx, ErrFrameCorrupted)
		}
		pos := 2
		if bi == 0 {
			pos += skip
		}
		out = append(out, rx[pos:frameLen-1]...)
	}
	return out, nil
}

// StopKernel resets the ECU, which leaves the kernel, and disconnects.
// The line speed may need to be changed back before reconnecting.
func (s *Session) StopKernel(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateKernel {
		return nil
	}
	if err := s.checkpoint(ctx); err != nil {
		return err
	}
	if _, err := s.transport.Request([]byte{sidKernelStop}); err != nil {
		return fmt.Errorf("stop kernel: %w", err)
	}
	s.flushQuiet()
	s.clear()
	return nil
}

func (s *Session) flushQuiet() {
	if err := s.transport.FlushInput(); err != nil {
		debugf("flush input: %v", err)
	}
}
