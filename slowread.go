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
)

// ReadAC reads length bytes at addr through regular AC / 21 request
// frames. On failure the bytes read so far are returned with the error.
func (s *Session) ReadAC(ctx context.Context, addr, length uint32) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireState("read AC", StateNormal); err != nil {
		return nil, err
	}
	if err := s.checkpoint(ctx); err != nil {
		return nil, err
	}
	if err := checkRange(addr, length); err != nil {
		return nil, err
	}
	return s.readAC(addr, int(length))
}

func (s *Session) readAC(addr uint32, length int) ([]byte, error) {
	out := make([]byte, 0, length)
	for len(out) < length {
		lines := min(fastReadMaxLines, length-len(out))
		cur := addr + uint32(len(out))

		if _, err := s.request("AC", buildACRequest(cur, lines), respReadAC, 2); err != nil {
			return out, fmt.Errorf("read @ 0x%08X: %w", cur, err)
		}
		resp, err := s.request("21", reqRetrieveData, respReadData, 2+lines)
		if err != nil {
			return out, fmt.Errorf("read @ 0x%08X: %w", cur, err)
		}
		if resp.Len() != 2+lines {
			return out, &ProtocolError{Op: "21", Want: respReadData, Got: resp.Data}
		}
		out = append(out, resp.Data[2:2+lines]...)
	}
	return out, nil
}

// SlowRead reads length bytes at start in 192-byte AC chunks and writes them
// to w. It works with long headers, at a fraction of the FastRead speed.
func (s *Session) SlowRead(ctx context.Context, start, length uint32, w io.Writer) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireState("slow read", StateNormal); err != nil {
		return 0, err
	}
	return s.slowRead(ctx, start, length, w)
}

func (s *Session) slowRead(ctx context.Context, start, length uint32, w io.Writer) (int, error) {
	if err := checkRange(start, length); err != nil {
		return 0, err
	}

	budget := NewRetryBudget()
	prog := newProgressTracker(s.progress, PhaseDump, int(length))
	next := start
	remaining := length
	written := 0

	for remaining > 0 {
		if err := s.checkpoint(ctx); err != nil {
			return written, abortAt("slow read", next, err)
		}

		size := min(remaining, slowReadChunk)
		data, err := s.readAC(next, int(size))
		if err != nil {
			debugf("slow read @ 0x%08X: partial read %d/%d: %v", next, len(data), size, err)
			if budget.Fault(budgetFaultPenalty) {
				if n, werr := w.Write(data); werr == nil {
					written += n
				}
				return written, abortAt("slow read", next+uint32(len(data)),
					fmt.Errorf("%w: last fault: %w", ErrRetryBudgetExhausted, err))
			}
			s.recoverLink()
		}

		n, err := w.Write(data)
		written += n
		if err != nil {
			return written, abortAt("slow read", next, fmt.Errorf("write output: %w", err))
		}
		if len(data) > 0 {
			budget.Success()
		}
		next += uint32(len(data))
		remaining -= uint32(len(data))
		prog.report(written, next)
	}
	return written, nil
}
