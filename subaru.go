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

	"github.com/ZaparooProject/go-nisprog/iso14230"
	"github.com/ZaparooProject/go-nisprog/keys"
)

// subaruDownloadFormat marks the download as uncompressed and encrypted
const subaruDownloadFormat = 0x04

// encryptFeistel encrypts buf in place, 4 bytes at a time
func encryptFeistel(buf []byte, f *keys.Feistel) {
	for off := 0; off+4 <= len(buf); off += 4 {
		var blk [4]byte
		copy(blk[:], buf[off:off+4])
		out := keys.Block(f.Transform(keys.Word(blk)))
		copy(buf[off:], out[:])
	}
}

// RunSubaruKernel uploads payload to a Subaru ECU and starts it:
// SecurityAccess, programming session, speed change, explicitly addressed
// download of the encrypted payload followed by the checksum bypass pattern,
// then StartRoutine. On success the session is attached to the kernel.
//
// A failure midway leaves the ECU in an unknown state.
func (s *Session) RunSubaruKernel(ctx context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireState("run kernel", StateNormal); err != nil {
		return err
	}
	if s.dialect != DialectSubaru {
		return fmt.Errorf("run kernel: session is not a Subaru session: %w", ErrMisuse)
	}
	if len(payload) == 0 {
		return fmt.Errorf("run kernel: empty payload: %w", ErrInvalidParameter)
	}

	buf := padPayload(payload, 4)
	s.warnKernelSize(len(buf))
	load := s.config.SubaruLoadAddr
	bypassAddr := load + uint32(len(buf))

	if err := s.checkpoint(ctx); err != nil {
		return err
	}
	if err := s.unlock(keys.SubaruUnlock); err != nil {
		return fmt.Errorf("run kernel: SID27: %w", err)
	}
	if _, err := s.request("StartDiagnosticSession", reqSubaruDiag,
		iso14230.Positive(iso14230.SIDStartDiagnosticSession), 1); err != nil {
		return fmt.Errorf("run kernel: SID10: %w", err)
	}
	if err := s.transport.SetSpeed(s.config.SubaruBaud); err != nil {
		return fmt.Errorf("run kernel: set speed %d: %w", s.config.SubaruBaud, err)
	}
	debugf("line speed now %d", s.config.SubaruBaud)

	encryptFeistel(buf, keys.SubaruEncrypt)
	if err := s.subaruDownload(ctx, load, buf); err != nil {
		return fmt.Errorf("run kernel: payload: %w", err)
	}

	bypass := keys.Block(s.config.SubaruBypass)
	encryptFeistel(bypass[:], keys.SubaruEncrypt)
	if err := s.subaruDownload(ctx, bypassAddr, bypass[:]); err != nil {
		return fmt.Errorf("run kernel: checksum bypass: %w", err)
	}

	if _, err := s.request("StartRoutine", reqSubaruStart,
		iso14230.Positive(iso14230.SIDStartRoutineByLocalID), 1); err != nil {
		return fmt.Errorf("run kernel: SID31: %w", err)
	}
	debugln("ECU now running from RAM, disabling periodic keepalive")

	if err := s.initKernel(); err != nil {
		return fmt.Errorf("kernel started but did not answer, set kernel speed and reconnect: %w", err)
	}
	return nil
}

// subaruDownload runs one RequestDownload + TransferData cycle, sending buf
// in 128-byte blocks addressed explicitly
func (s *Session) subaruDownload(ctx context.Context, addr uint32, buf []byte) error {
	n := uint32(len(buf))
	req := []byte{
		iso14230.SIDRequestDownload,
		byte(addr >> 16), byte(addr >> 8), byte(addr),
		subaruDownloadFormat,
		byte(n >> 16), byte(n >> 8), byte(n),
	}
	if _, err := s.request("RequestDownload", req, iso14230.Positive(iso14230.SIDRequestDownload), 1); err != nil {
		return err
	}

	prog := newProgressTracker(s.progress, PhaseTransfer, len(buf))
	for off := 0; off < len(buf); off += subaruBlockSize {
		blockAddr := addr + uint32(off)
		if err := s.checkpoint(ctx); err != nil {
			return abortBlock("transfer", off/subaruBlockSize, blockAddr, err)
		}
		end := min(off+subaruBlockSize, len(buf))
		td := make([]byte, 0, 4+end-off)
		td = append(td, iso14230.SIDTransferData, byte(blockAddr>>16), byte(blockAddr>>8), byte(blockAddr))
		td = append(td, buf[off:end]...)
		if _, err := s.request("TransferData", td, iso14230.Positive(iso14230.SIDTransferData), 1); err != nil {
			return abortBlock("transfer", off/subaruBlockSize, blockAddr, err)
		}
		prog.report(end, addr+uint32(end))
	}
	return nil
}
