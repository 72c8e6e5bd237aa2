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

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	nisprog "github.com/ZaparooProject/go-nisprog"
	"golang.org/x/term"
)

const defaultWidth = 80

// terminal renders progress on stdout and asks for confirmations on stdin
type terminal struct {
	out     io.Writer
	in      *os.File
	outFd   int
	lastPct int
	isTTY   bool
}

func newTerminal(in, out *os.File) *terminal {
	fd := int(out.Fd()) //nolint:gosec // file descriptors fit in int
	return &terminal{
		out:     out,
		in:      in,
		outFd:   fd,
		isTTY:   term.IsTerminal(fd),
		lastPct: -1,
	}
}

func (t *terminal) width() int {
	if !t.isTTY {
		return defaultWidth
	}
	w, _, err := term.GetSize(t.outFd)
	if err != nil || w < 40 {
		return defaultWidth
	}
	return w
}

// progress is the nisprog.ProgressCallback of the CLI. On a terminal the
// line is redrawn in place, otherwise one line per 10% is printed.
func (t *terminal) progress(p nisprog.Progress) {
	if t.isTTY {
		_, _ = fmt.Fprintf(t.out, "\r%s", formatProgress(p, t.width()))
		if p.Done >= p.Total {
			_, _ = fmt.Fprintln(t.out)
		}
		return
	}
	pct := int(p.Percent()) / 10 * 10
	if pct != t.lastPct || p.Done >= p.Total {
		t.lastPct = pct
		_, _ = fmt.Fprintln(t.out, strings.TrimSpace(formatProgress(p, defaultWidth)))
	}
	if p.Done >= p.Total {
		t.lastPct = -1
	}
}

// formatProgress draws "phase [####....] 42% 1234 B/s ETA 12s" to fit width
func formatProgress(p nisprog.Progress, width int) string {
	tail := fmt.Sprintf(" %3.0f%% %6.0f B/s ETA %4ds", p.Percent(), p.Rate, int(p.ETA/time.Second))
	head := fmt.Sprintf("%-8s ", p.Phase)

	bar := width - len(head) - len(tail) - 3
	if bar < 10 {
		return head + strings.TrimSpace(tail)
	}
	filled := 0
	if p.Total > 0 {
		filled = bar * min(p.Done, p.Total) / p.Total
	}
	return head + "[" + strings.Repeat("#", filled) + strings.Repeat(".", bar-filled) + "]" + tail
}

// confirm asks a yes/no question. A single keypress answers on a terminal,
// otherwise a whole line is read.
func (t *terminal) confirm(prompt string) (bool, error) {
	_, _ = fmt.Fprintf(t.out, "%s [y/N] ", prompt)

	fd := int(t.in.Fd()) //nolint:gosec // file descriptors fit in int
	if term.IsTerminal(fd) {
		state, err := term.MakeRaw(fd)
		if err != nil {
			return false, fmt.Errorf("failed to set raw mode: %w", err)
		}
		defer func() { _ = term.Restore(fd, state) }()

		var key [1]byte
		if _, err := t.in.Read(key[:]); err != nil {
			return false, fmt.Errorf("failed to read answer: %w", err)
		}
		_, _ = fmt.Fprint(t.out, "\r\n")
		return key[0] == 'y' || key[0] == 'Y', nil
	}

	return readYes(bufio.NewReader(t.in))
}

func readYes(r *bufio.Reader) (bool, error) {
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return false, fmt.Errorf("failed to read answer: %w", err)
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
