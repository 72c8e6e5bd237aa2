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
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ZaparooProject/go-nisprog/checksum"
)

// fastReadTimeout is the base timeout of each raw receive in the fast read
const fastReadTimeout = 25 * time.Millisecond

// ackScanWindow is how many leading bytes may hold the AC acknowledge
const ackScanWindow = 4

// buildACRequest loads n consecutive absolute addresses starting at addr
func buildACRequest(addr uint32, n int) []byte {
	req := make([]byte, 0, len(reqReadAC)+5*n)
	req = append(req, reqReadAC...)
	for i := range n {
		a := addr + uint32(i)
		req = append(req, addrMarker, byte(a>>24), byte(a>>16), byte(a>>8), byte(a))
	}
	return req
}

// ackExtra finds the AC acknowledge in the first bytes of a raw receive and
// returns how many trailing bytes of that frame are still pending. The
// header length is not known in advance, so the marker position tells how
// much of the frame is left to purge.
func ackExtra(rx []byte) (extra int, ok bool) {
	for i := 0; i < len(rx) && i < ackScanWindow; i++ {
		if rx[i] == respReadAC {
			return max(0, 3+i-len(rx)), true
		}
	}
	return 0, false
}

// dataExtra finds the 21 response code in rx and returns its index along
// with how many more bytes complete a frame carrying lines data bytes and
// the checksum. A negative remainder means the frame is not where the
// arithmetic expects it.
func dataExtra(rx []byte, lines int) (marker, extra int, ok bool) {
	for i, b := range rx {
		if b != respReadData {
			continue
		}
		extra = (3 + lines) - (len(rx) - i)
		if extra < 0 {
			return i, extra, false
		}
		return i, extra, true
	}
	return -1, 0, false
}

// frameLines validates the short-header frame around marker and returns its
// data bytes. The checksum covers the length byte before the marker up to
// the last data byte.
func frameLines(buf []byte, marker, lines int) ([]byte, error) {
	if marker < 1 || marker+3+lines > len(buf) {
		return nil, fmt.Errorf("read data frame truncated: %w", ErrFrameCorrupted)
	}
	want := checksum.Cks1(buf[marker-1 : marker+2+lines])
	if got := buf[marker+2+lines]; got != want {
		return nil, fmt.Errorf("read data checksum %02X, want %02X: %w", got, want, ErrChecksumMismatch)
	}
	return buf[marker+2 : marker+2+lines], nil
}

// FastRead reads length bytes starting at start and writes them to w.
//
// Up to DumpBatch addresses are loaded per AC request and the data
// collected with a raw receive that skips the transport's frame parser.
// Faults cost retry budget and restart the batch from its first address.
// The returned count is the number of bytes written to w.
func (s *Session) FastRead(ctx context.Context, start, length uint32, w io.Writer) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireState("fast read", StateNormal); err != nil {
		return 0, err
	}
	if !hasCapability(s.transport, CapabilityShortHeaders) {
		return 0, fmt.Errorf("fast read needs short headers: %w", ErrMisuse)
	}
	return s.fastRead(ctx, start, length, w)
}

func (s *Session) fastRead(ctx context.Context, start, length uint32, w io.Writer) (int, error) {
	if err := checkRange(start, length); err != nil {
		return 0, err
	}

	budget := NewRetryBudget()
	prog := newProgressTracker(s.progress, PhaseDump, int(length))
	end := uint64(start) + uint64(length)
	next := start
	written := 0

	debugf("fast read 0x%08X-0x%08X", start, end-1)
	for uint64(next) < end {
		if err := s.checkpoint(ctx); err != nil {
			return written, abortAt("fast read", next, err)
		}

		lines := int(min(uint64(s.config.DumpBatch), end-uint64(next)))
		data, penalty, err := s.fastReadBatch(next, lines)
		if err != nil {
			debugf("fast read @ 0x%08X: %v (budget %d)", next, err, budget.Value())
			if budget.Fault(penalty) {
				return written, abortAt("fast read", next,
					fmt.Errorf("%w: last fault: %w", ErrRetryBudgetExhausted, err))
			}
			s.recoverLink()
			continue
		}

		n, err := w.Write(data)
		written += n
		if err != nil {
			return written, abortAt("fast read", next, fmt.Errorf("write output: %w", err))
		}
		next += uint32(lines)
		budget.Success()
		prog.report(written, next)
	}
	return written, nil
}

// fastReadBatch runs one AC + 21 exchange. On failure it returns the retry
// budget penalty for the fault.
func (s *Session) fastReadBatch(addr uint32, lines int) ([]byte, int, error) {
	timeout := s.rxTimeout(fastReadTimeout)

	if err := s.transport.Send(buildACRequest(addr, lines)); err != nil {
		return nil, budgetFaultPenalty, fmt.Errorf("send AC: %w", err)
	}
	rx, _ := s.transport.RecvExact(ackScanWindow, timeout)
	if len(rx) != ackScanWindow {
		return nil, budgetFaultPenalty, fmt.Errorf("AC response: got %d bytes: %w", len(rx), ErrNoResponse)
	}
	extra, ok := ackExtra(rx)
	if !ok {
		return nil, budgetFaultPenalty, fmt.Errorf("bad AC response % X: %w", rx, ErrFrameCorrupted)
	}

	if err := s.transport.Send(reqRetrieveData); err != nil {
		return nil, budgetFaultPenalty, fmt.Errorf("send 21: %w", err)
	}
	buf, _ := s.transport.RecvExact(extra+4, timeout)
	if len(buf) != extra+4 {
		return nil, budgetFaultPenalty, fmt.Errorf("21 response: got %d of %d bytes: %w",
			len(buf), extra+4, ErrNoResponse)
	}
	marker, more, ok := dataExtra(buf, lines)
	if !ok {
		return nil, budgetFaultPenalty, fmt.Errorf("bad 21 response % X (marker %d, extra %d): %w",
			buf, marker, more, ErrFrameCorrupted)
	}
	if more > 0 {
		rest, _ := s.transport.RecvExact(more, timeout)
		if len(rest) != more {
			return nil, budgetFaultPenalty, fmt.Errorf("21 response: got %d of %d trailing bytes: %w",
				len(rest), more, ErrNoResponse)
		}
		buf = append(buf, rest...)
	}

	data, err := frameLines(buf, marker, lines)
	if err != nil {
		penalty := budgetFaultPenalty
		if errors.Is(err, ErrChecksumMismatch) {
			penalty = budgetChecksumPenalty
		}
		return nil, penalty, err
	}
	return data, 0, nil
}

// recoverLink waits for the ECU to go quiet and drops whatever arrived
func (s *Session) recoverLink() {
	if s.config.FaultDelay > 0 {
		time.Sleep(s.config.FaultDelay)
	}
	s.flushQuiet()
}

func checkRange(start, length uint32) error {
	if length == 0 {
		return fmt.Errorf("zero length read: %w", ErrInvalidParameter)
	}
	if uint64(start)+uint64(length) > 1<<32 {
		return fmt.Errorf("range 0x%08X+0x%X wraps: %w", start, length, ErrInvalidParameter)
	}
	return nil
}
