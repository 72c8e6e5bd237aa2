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
	"github.com/ZaparooProject/go-nisprog/keys"
)

// sid36AckTimeout is the raw receive timeout of one TransferData acknowledge
const sid36AckTimeout = 50 * time.Millisecond

// Unlock runs the SecurityAccess seed/key exchange with alg
func (s *Session) Unlock(ctx context.Context, alg keys.Algorithm) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireState("unlock", StateNormal); err != nil {
		return err
	}
	if alg == nil {
		return fmt.Errorf("unlock: nil algorithm: %w", ErrInvalidParameter)
	}
	if err := s.checkpoint(ctx); err != nil {
		return err
	}
	return s.unlock(alg)
}

// LinearKeyAlgorithm returns the linear algorithm keyed with the selected
// keyset's SID27 key
func (s *Session) LinearKeyAlgorithm() (keys.Algorithm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.linearAlgorithm()
}

// UnlockAlgorithm returns the SID27 algorithm of the selected keyset, linear
// or xorshift as the keyset names it
func (s *Session) UnlockAlgorithm() (keys.Algorithm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keyAlgorithm()
}

func (s *Session) keyAlgorithm() (keys.Algorithm, error) {
	if s.keyset == nil {
		return nil, ErrNoKeyset
	}
	if s.unlockErr != nil {
		return nil, s.unlockErr
	}
	return s.unlockAlg, nil
}

func (s *Session) linearAlgorithm() (*keys.Linear, error) {
	if s.keyset == nil {
		return nil, ErrNoKeyset
	}
	return keys.NewLinear(s.cipher, s.keyset.S27)
}

func (s *Session) unlock(alg keys.Algorithm) error {
	resp, err := s.request("RequestSeed", []byte{iso14230.SIDSecurityAccess, 0x01},
		iso14230.Positive(iso14230.SIDSecurityAccess), 6)
	if err != nil {
		return err
	}
	var seed [4]byte
	copy(seed[:], resp.Data[2:6])
	key := alg.Key(seed)
	debugf("SID 27: seed % X, %s key % X", seed, alg.Name(), key)

	req := append([]byte{iso14230.SIDSecurityAccess, 0x02}, key[:]...)
	if _, err := s.request("SendKey", req, iso14230.Positive(iso14230.SIDSecurityAccess), 1); err != nil {
		return err
	}
	debugln("security access granted")
	return nil
}

// encryptLinear encrypts buf in place, 4 bytes at a time, and returns the
// 16-bit sum of the plaintext
func encryptLinear(buf []byte, alg keys.Algorithm) uint16 {
	n := len(buf) &^ 3
	cks := checksum.Sum16(buf[:n])
	for off := 0; off < n; off += 4 {
		var blk [4]byte
		copy(blk[:], buf[off:off+4])
		out := alg.Key(blk)
		copy(buf[off:], out[:])
	}
	return cks
}

// padPayload copies payload into a zero-padded buffer of a multiple of align
func padPayload(payload []byte, align int) []byte {
	n := (len(payload) + align - 1) / align * align
	out := make([]byte, n)
	copy(out, payload)
	return out
}

// RunKernel uploads payload to a Nissan ECU and jumps to it:
// SecurityAccess, RequestDownload 34 80, encrypted TransferData in 32-byte
// blocks, TransferExit with the plaintext checksum and the BF RAM-jump.
// On success the session is attached to the kernel.
//
// A failure midway leaves the ECU in an unknown state.
func (s *Session) RunKernel(ctx context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireState("run kernel", StateNormal); err != nil {
		return err
	}
	if s.dialect != DialectNissan {
		return fmt.Errorf("run kernel: session is not a Nissan session: %w", ErrMisuse)
	}
	if len(payload) == 0 {
		return fmt.Errorf("run kernel: empty payload: %w", ErrInvalidParameter)
	}
	if s.keyset == nil {
		return fmt.Errorf("run kernel: %w", ErrNoKeyset)
	}
	unlockAlg, err := s.keyAlgorithm()
	if err != nil {
		return fmt.Errorf("run kernel: %w", err)
	}
	encAlg, err := keys.NewLinear(s.cipher, s.keyset.S36)
	if err != nil {
		return fmt.Errorf("run kernel: %w", err)
	}

	buf := padPayload(payload, sid36BlockSize)
	if len(buf) != len(payload) {
		debugf("using %d byte payload, padded to %d (0x%X) bytes", len(payload), len(buf), len(buf))
	}
	s.warnKernelSize(len(buf))

	if err := s.checkpoint(ctx); err != nil {
		return err
	}
	if err := s.unlock(unlockAlg); err != nil {
		return fmt.Errorf("run kernel: SID27: %w", err)
	}
	if _, err := s.request("RequestDownload", reqDownload3480,
		iso14230.Positive(iso14230.SIDRequestDownload), 1); err != nil {
		return fmt.Errorf("run kernel: SID 34 80: %w", err)
	}

	cks := encryptLinear(buf, encAlg)
	if err := s.sid36(ctx, buf); err != nil {
		return fmt.Errorf("run kernel: SID36: %w", err)
	}

	if _, err := s.request("TransferExit", []byte{iso14230.SIDRequestTransferExit, byte(cks >> 8), byte(cks)},
		iso14230.Positive(iso14230.SIDRequestTransferExit), 1); err != nil {
		return fmt.Errorf("run kernel: SID37: %w", err)
	}

	if err := s.ramJump(); err != nil {
		return fmt.Errorf("run kernel: RAM jump: %w", err)
	}
	debugln("ECU now running from RAM, disabling periodic keepalive")

	if err := s.initKernel(); err != nil {
		return fmt.Errorf("kernel started but did not answer, set kernel speed and reconnect: %w", err)
	}
	return nil
}

func (s *Session) warnKernelSize(n int) {
	if s.config.KernelSizeWarn > 0 && n > s.config.KernelSizeWarn {
		warnf("payload is %d bytes, larger than the usual kernel size of %d bytes", n, s.config.KernelSizeWarn)
	}
}

// sid36 transfers buf, already encrypted, in sequence-numbered 32-byte blocks.
// The short acknowledge frames are parsed raw.
func (s *Session) sid36(ctx context.Context, buf []byte) error {
	n := len(buf) &^ (sid36BlockSize - 1)
	if n == 0 {
		return fmt.Errorf("nothing to transfer: %w", ErrInvalidParameter)
	}
	prog := newProgressTracker(s.progress, PhaseTransfer, n)
	timeout := s.rxTimeout(sid36AckTimeout)

	for off := 0; off < n; off += sid36BlockSize {
		blockno := off / sid36BlockSize
		if err := s.checkpoint(ctx); err != nil {
			return abortBlock("transfer", blockno, uint32(off), err)
		}

		req := make([]byte, 0, 4+sid36BlockSize)
		req = append(req, iso14230.SIDTransferData, byte(blockno>>8), byte(blockno), sid36BlockSize)
		req = append(req, buf[off:off+sid36BlockSize]...)
		if err := s.transport.Send(req); err != nil {
			return abortBlock("transfer", blockno, uint32(off), err)
		}

		rx, _ := s.transport.RecvExact(3, timeout)
		switch {
		case len(rx) < 3:
			s.flushQuiet()
			return abortBlock("transfer", blockno, uint32(off),
				fmt.Errorf("no response @ block 0x%04X: %w", blockno, ErrNoResponse))
		case rx[0]&0x80 != 0:
			return abortBlock("transfer", blockno, uint32(off),
				fmt.Errorf("ECU responding with long headers: %w", ErrUnexpectedResponse))
		case rx[1] != iso14230.Positive(iso14230.SIDTransferData):
			err := s.rawNegative("TransferData", rx, iso14230.Positive(iso14230.SIDTransferData), false)
			return abortBlock("transfer", blockno, uint32(off), err)
		}
		prog.report(off+sid36BlockSize, uint32(off+sid36BlockSize))
	}
	return nil
}

// ramJump sends BF 00 (check) then BF 01 (execute)
func (s *Session) ramJump() error {
	for _, sub := range []byte{0x00, 0x01} {
		if _, err := s.request(fmt.Sprintf("RAM jump %02X", sub), []byte{sidSetRAMJump, sub},
			respRAMJump, 1); err != nil {
			return err
		}
	}
	return nil
}
