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

/*
Package nisprog reads and reflashes Nissan and Subaru engine control units
built around the Renesas SH7051/SH7055/SH7058 MCUs, over a K-line diagnostic
link.

A Session drives one ECU through three states. In the normal state the
stock firmware answers ISO 14230 (KWP2000) requests: the ECU-ID is read,
memory is dumped with the "fast read" AC/21 pipelining trick, and a small
RAM-resident kernel is uploaded after SecurityAccess. In the kernel state
the uploaded kernel serves bulk dumps, CRC comparisons of flash blocks and
erase/write of flash blocks.

Basic Usage:

	import (
	    "github.com/ZaparooProject/go-nisprog"
	    "github.com/ZaparooProject/go-nisprog/transport/kline"
	)

	tr, err := kline.New("/dev/ttyUSB0")
	if err != nil {
	    log.Fatal(err)
	}
	defer tr.Close()

	cat, err := nisprog.LoadKeysetCatalog("keys.yaml")
	if err != nil {
	    log.Fatal(err)
	}
	dev, _ := nisprog.LookupFlashDevice("7055")

	s, err := nisprog.NewSession(tr,
	    nisprog.WithKeysetCatalog(cat),
	    nisprog.WithFlashDevice(dev),
	)
	if err != nil {
	    log.Fatal(err)
	}
	if err := s.Connect(ctx); err != nil {
	    log.Fatal(err)
	}
	fmt.Println("ECUID:", s.ECUID())

	// stock firmware dump, no kernel needed
	_, err = s.Dump(ctx, nisprog.SpaceROM, 0, dev.ROMSize, out)

Reflashing:

Flashing always goes through the kernel. FlashROM compares the new image
against the ECU (by CRC) or against a known original image, then erases and
rewrites only the blocks that differ. With practice set, every step runs
except the destructive ones, which the kernel fakes.

	if err := s.RunSubaruKernel(ctx, payload); err != nil {
	    log.Fatal(err)
	}
	blocks, err := s.FlashROM(ctx, rom, nil, false, true)

Error Handling:

Transport failures are *TransportError values classified as transient,
permanent or timeout. Negative responses decode to *NegativeResponseError
with the kernel or standard code table. Long operations that stop part way
return an *AbortError naming the last good address or block:

	var ae *nisprog.AbortError
	if errors.As(err, &ae) {
	    fmt.Printf("stopped at 0x%X\n", ae.Address)
	}

Cancellation:

The context and the optional Interrupter are checked only between
requests, never in the middle of a frame exchange or a block erase.

Thread Safety:

Session methods serialize on an internal mutex. The transport must not be
shared with anything else while a session uses it.
*/
package nisprog
