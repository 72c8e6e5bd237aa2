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
	"time"
)

// Progress phases
const (
	PhaseDump     = "dump"
	PhaseTransfer = "transfer"
	PhaseWrite    = "write"
	PhaseVerify   = "verify"
)

// maxETA caps the reported remaining time
const maxETA = 9999 * time.Second

// Progress describes how far a long operation has come. The values are
// advisory and never affect the operation itself.
type Progress struct {
	// Phase is one of PhaseDump, PhaseTransfer, PhaseWrite or PhaseVerify
	Phase string

	// Address is the next address to be processed
	Address uint32

	// Done and Total are byte counts
	Done  int
	Total int

	// Rate is the average throughput in bytes per second
	Rate float64

	// ETA is the estimated remaining time, capped at 9999 s
	ETA time.Duration

	// Elapsed is the time since the operation started
	Elapsed time.Duration
}

// Percent returns the completion percentage
func (p Progress) Percent() float64 {
	if p.Total <= 0 {
		return 0
	}
	return 100 * float64(p.Done) / float64(p.Total)
}

// ProgressCallback is called between requests of long operations.
// Implementations should return quickly.
type ProgressCallback func(Progress)

type progressTracker struct {
	start time.Time
	cb    ProgressCallback
	now   func() time.Time
	phase string
	total int
}

func newProgressTracker(cb ProgressCallback, phase string, total int) *progressTracker {
	return &progressTracker{
		cb:    cb,
		phase: phase,
		total: total,
		now:   time.Now,
		start: time.Now(),
	}
}

func (p *progressTracker) report(done int, addr uint32) {
	if p == nil || p.cb == nil {
		return
	}
	p.cb(p.snapshot(done, addr))
}

func (p *progressTracker) snapshot(done int, addr uint32) Progress {
	elapsed := p.now().Sub(p.start)
	pr := Progress{
		Phase:   p.phase,
		Address: addr,
		Done:    done,
		Total:   p.total,
		Elapsed: elapsed,
		ETA:     maxETA,
	}
	if elapsed <= 0 || done <= 0 {
		return pr
	}
	pr.Rate = float64(done) / elapsed.Seconds()
	remaining := p.total - done
	if remaining <= 0 {
		pr.ETA = 0
		return pr
	}
	eta := time.Duration(float64(remaining) / pr.Rate * float64(time.Second))
	if eta < maxETA {
		pr.ETA = eta
	}
	return pr
}
