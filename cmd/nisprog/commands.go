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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	nisprog "github.com/ZaparooProject/go-nisprog"
	"github.com/ZaparooProject/go-nisprog/detection"
	"github.com/ZaparooProject/go-nisprog/keys"
	"github.com/ZaparooProject/go-nisprog/polling"
)

type command struct {
	run     func(ctx context.Context, a *app, args []string) error
	name    string
	usage   string
	help    string
	minArgs int
	maxArgs int // -1 for no limit
}

// commands is set in init, cmdHelp reads it
var commands []command

func init() {
	commands = []command{
		{name: "ports", help: "list serial adapters", maxArgs: 0, run: cmdPorts},
		{name: "nc", help: "connect to a Nissan ECU (stock firmware)", maxArgs: 0, run: cmdConnect},
		{name: "spconn", help: "connect to a Subaru ECU (stock firmware)", maxArgs: 0, run: cmdConnectSubaru},
		{name: "kconn", help: "attach to a kernel that is already running", maxArgs: 0, run: cmdAttach},
		{name: "disc", help: "disconnect", maxArgs: 0, run: cmdDisconnect},
		{name: "ecuid", help: "show the ECU-ID and matching keysets", maxArgs: 0, run: cmdECUID},
		{name: "keys", usage: "[ecuid]", help: "list keysets, ranked for ecuid if given", maxArgs: 1, run: cmdKeys},
		{name: "setkeys", usage: "<s27> [s36]", help: "select keys manually", minArgs: 1, maxArgs: 2, run: cmdSetKeys},
		{name: "sid27", usage: "[linear|xorshift]", help: "test SecurityAccess with the keyset's or the given algorithm",
			maxArgs: 1, run: cmdSID27},
		{name: "setdev", usage: "[device]", help: "list or select the flash device", maxArgs: 1, run: cmdSetDev},
		{
			name: "dump", usage: "<rom|eeprom> <start> <len> <file>", help: "read memory to a file",
			minArgs: 4, maxArgs: 4, run: cmdDump,
		},
		{name: "watch", usage: "<addr>", help: "watch 4 bytes until Enter is pressed", minArgs: 1, maxArgs: 1, run: cmdWatch},
		{name: "runkernel", usage: "<payload>", help: "upload and start a kernel (Nissan)", minArgs: 1, maxArgs: 1,
			run: cmdRunKernel},
		{name: "sprunkernel", usage: "<payload>", help: "upload and start a kernel (Subaru)", minArgs: 1, maxArgs: 1,
			run: cmdRunSubaruKernel},
		{name: "kernelid", help: "show the kernel identification", maxArgs: 0, run: cmdKernelID},
		{name: "kspeed", usage: "<bps>", help: "change the kernel line speed", minArgs: 1, maxArgs: 1, run: cmdKSpeed},
		{name: "flverif", usage: "<rom> [orig]", help: "list blocks that differ from the ECU (or orig)", minArgs: 1,
			maxArgs: 2, run: cmdFlashVerify},
		{name: "flblock", usage: "<block> <rom> [live]", help: "reflash one block", minArgs: 2, maxArgs: 3,
			run: cmdFlashBlock},
		{name: "flrom", usage: "<rom> [orig] [all] [live]", help: "reflash modified blocks", minArgs: 1, maxArgs: 4,
			run: cmdFlashROM},
		{name: "stopkernel", help: "reset the ECU out of the kernel", maxArgs: 0, run: cmdStopKernel},
		{name: "help", help: "show this list", maxArgs: 0, run: cmdHelp},
	}
}

func lookupCommand(name string) (*command, bool) {
	for i := range commands {
		if commands[i].name == name {
			return &commands[i], true
		}
	}
	return nil, false
}

func printCommands(w io.Writer) {
	for _, c := range commands {
		_, _ = fmt.Fprintf(w, "  %-12s %-36s %s\n", c.name, c.usage, c.help)
	}
	_, _ = fmt.Fprintf(w, "  %-12s %-36s %s\n", "quit", "", "leave the shell")
}

// parseNumber accepts decimal, 0x hex and plain hex with a trailing h
func parseNumber(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	base := 0
	if strings.HasSuffix(strings.ToLower(s), "h") {
		s = s[:len(s)-1]
		base = 16
	}
	v, err := strconv.ParseUint(s, base, 32)
	if err != nil {
		return 0, fmt.Errorf("bad number %q: %w", s, nisprog.ErrInvalidParameter)
	}
	return uint32(v), nil
}

// flashFlags splits the trailing "all" / "live" words off args
func flashFlags(args []string) (rest []string, all, live bool) {
	for _, arg := range args {
		switch strings.ToLower(arg) {
		case "all":
			all = true
		case "live":
			live = true
		default:
			rest = append(rest, arg)
		}
	}
	return rest, all, live
}

// connected returns the session in a normal or kernel state, connecting
// with the configured dialect if needed
func (a *app) connected(ctx context.Context) (*nisprog.Session, error) {
	s, err := a.open(ctx)
	if err != nil {
		return nil, err
	}
	if s.State() != nisprog.StateDisconnected {
		return s, nil
	}
	if a.cfg.Subaru {
		err = s.ConnectSubaru(ctx)
	} else {
		err = s.Connect(ctx)
	}
	if err != nil {
		return nil, err
	}
	a.printf("Connected, ECUID %s\n", s.ECUID())
	return s, nil
}

// kernel returns the session attached to a running kernel
func (a *app) kernel(ctx context.Context) (*nisprog.Session, error) {
	s, err := a.open(ctx)
	if err != nil {
		return nil, err
	}
	switch s.State() {
	case nisprog.StateKernel:
		return s, nil
	case nisprog.StateDisconnected:
		if err := s.AttachKernel(ctx); err != nil {
			return nil, fmt.Errorf("no kernel answering, run runkernel first: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("connected to the stock firmware, run runkernel first: %w", nisprog.ErrMisuse)
	}
}

func cmdPorts(ctx context.Context, a *app, _ []string) error {
	devices, err := detection.DetectAll(ctx, nil)
	if err != nil {
		return err
	}
	for _, d := range devices {
		a.printf("%-28s %-24s confidence=%s", d.Path, d.Name, d.Confidence)
		names := make([]string, 0, len(d.Metadata))
		for k := range d.Metadata {
			names = append(names, k)
		}
		sort.Strings(names)
		for _, k := range names {
			a.printf(" %s=%s", k, d.Metadata[k])
		}
		a.printf("\n")
	}
	return nil
}

func cmdConnect(ctx context.Context, a *app, _ []string) error {
	a.cfg.Subaru = false
	return connectFresh(ctx, a)
}

func cmdConnectSubaru(ctx context.Context, a *app, _ []string) error {
	a.cfg.Subaru = true
	return connectFresh(ctx, a)
}

func connectFresh(ctx context.Context, a *app) error {
	s, err := a.open(ctx)
	if err != nil {
		return err
	}
	if s.State() != nisprog.StateDisconnected {
		return fmt.Errorf("already connected (%s): %w", s.State(), nisprog.ErrMisuse)
	}
	if _, err := a.connected(ctx); err != nil {
		return err
	}
	printCandidates(a, s)
	return nil
}

func cmdAttach(ctx context.Context, a *app, _ []string) error {
	s, err := a.kernel(ctx)
	if err != nil {
		return err
	}
	a.printf("Kernel session (%s)\n", s.State())
	return nil
}

func cmdDisconnect(_ context.Context, a *app, _ []string) error {
	if a.session == nil {
		return nil
	}
	return a.session.Disconnect()
}

func cmdECUID(ctx context.Context, a *app, _ []string) error {
	s, err := a.connected(ctx)
	if err != nil {
		return err
	}
	if s.State() == nisprog.StateNormal {
		if _, err := s.ReadECUID(ctx); err != nil {
			return err
		}
	}
	a.printf("ECUID: %s\n", s.ECUID())
	printCandidates(a, s)
	return nil
}

func printCandidates(a *app, s *nisprog.Session) {
	for i, c := range s.KeyCandidates() {
		a.printf("  candidate %d: %s (%s, distance %d) %s\n", i+1, c.Keyset.Name, c.ECUID, c.Distance, c.Keyset)
	}
	if ks := s.Keyset(); ks != nil {
		a.printf("Using %s\n", ks)
	}
}

func cmdKeys(_ context.Context, a *app, args []string) error {
	if a.catalog == nil {
		return fmt.Errorf("no keyset catalog, set keyset_file or -keys: %w", nisprog.ErrNoKeyset)
	}
	if len(args) == 1 {
		for i, c := range a.catalog.Candidates(args[0], nisprog.KeyCandidates) {
			a.printf("%d: %-12s %s (matched %s, distance %d)\n", i+1, c.Keyset.Name, c.Keyset, c.ECUID, c.Distance)
		}
		return nil
	}
	for _, ks := range a.catalog.Keysets {
		a.printf("%-12s %s  %s\n", ks.Name, &ks, strings.Join(ks.ECUIDs, " "))
	}
	return nil
}

func cmdSetKeys(ctx context.Context, a *app, args []string) error {
	s, err := a.open(ctx)
	if err != nil {
		return err
	}
	s27, err := parseNumber(args[0])
	if err != nil {
		return err
	}
	var s36 []uint32
	if len(args) == 2 {
		v, err := parseNumber(args[1])
		if err != nil {
			return err
		}
		s36 = append(s36, v)
	}
	ks, err := s.SetKeys(s27, s36...)
	if err != nil {
		return err
	}
	a.printf("Using %s\n", ks)
	return nil
}

func cmdSID27(ctx context.Context, a *app, args []string) error {
	s, err := a.connected(ctx)
	if err != nil {
		return err
	}
	var alg keys.Algorithm
	if len(args) == 0 {
		alg, err = s.UnlockAlgorithm()
	} else {
		alg, err = nisprog.KeyAlgorithm(strings.ToLower(args[0])).Resolve(nissanCipher, keysetS27(s))
	}
	if err != nil {
		return err
	}
	if err := s.Unlock(ctx, alg); err != nil {
		return err
	}
	a.printf("SID27 unlocked with %s\n", alg.Name())
	return nil
}

func keysetS27(s *nisprog.Session) uint32 {
	if ks := s.Keyset(); ks != nil {
		return ks.S27
	}
	return 0
}

func cmdSetDev(_ context.Context, a *app, args []string) error {
	if len(args) == 0 {
		for i := range nisprog.FlashDevices {
			a.printf("%d: %s\n", i, &nisprog.FlashDevices[i])
		}
		return nil
	}
	dev, err := nisprog.LookupFlashDevice(args[0])
	if err != nil {
		return err
	}
	a.cfg.FlashDevice = dev.Name
	if a.session != nil {
		if err := a.session.SetFlashDevice(dev); err != nil {
			return err
		}
	}
	a.printf("Flash device %s\n", dev)
	return nil
}

func cmdDump(ctx context.Context, a *app, args []string) error {
	var space nisprog.MemorySpace
	switch strings.ToLower(args[0]) {
	case "rom":
		space = nisprog.SpaceROM
	case "eeprom":
		space = nisprog.SpaceEEPROM
	default:
		return fmt.Errorf("memory space must be rom or eeprom: %w", nisprog.ErrInvalidParameter)
	}
	start, err := parseNumber(args[1])
	if err != nil {
		return err
	}
	length, err := parseNumber(args[2])
	if err != nil {
		return err
	}

	s, err := a.connected(ctx)
	if err != nil {
		return err
	}

	f, err := os.Create(args[3]) //nolint:gosec // path comes from the operator
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", args[3], err)
	}
	var buf bytes.Buffer
	n, dumpErr := s.Dump(ctx, space, start, length, io.MultiWriter(f, &buf))
	if err := f.Close(); err != nil && dumpErr == nil {
		dumpErr = err
	}
	a.printf("%d bytes written to %s, %s\n", n, args[3], imageDigest(buf.Bytes()))
	return dumpErr
}

func cmdWatch(ctx context.Context, a *app, args []string) error {
	addr, err := parseNumber(args[0])
	if err != nil {
		return err
	}
	s, err := a.connected(ctx)
	if err != nil {
		return err
	}

	a.printf("\nMonitoring 0x%X; press Enter to interrupt.\n", addr)
	cfg := &polling.Config{Interrupter: a.interrupt}
	w := polling.NewWatcher(s, addr, cfg, func(smp polling.Sample) {
		a.printf("\r0x%X: % X", smp.Address, smp.Data)
	})
	err = w.Run(ctx)
	a.printf("\n")
	return err
}

func loadPayload(path string) ([]byte, error) {
	payload, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}
	return payload, nil
}

func cmdRunKernel(ctx context.Context, a *app, args []string) error {
	payload, err := loadPayload(args[0])
	if err != nil {
		return err
	}
	a.cfg.Subaru = false
	s, err := a.connected(ctx)
	if err != nil {
		return err
	}
	if err := s.RunKernel(ctx, payload); err != nil {
		return err
	}
	return reportKernel(ctx, a, s)
}

func cmdRunSubaruKernel(ctx context.Context, a *app, args []string) error {
	payload, err := loadPayload(args[0])
	if err != nil {
		return err
	}
	a.cfg.Subaru = true
	s, err := a.connected(ctx)
	if err != nil {
		return err
	}
	if err := s.RunSubaruKernel(ctx, payload); err != nil {
		return err
	}
	return reportKernel(ctx, a, s)
}

func reportKernel(ctx context.Context, a *app, s *nisprog.Session) error {
	id, err := s.KernelID(ctx)
	if err != nil {
		return err
	}
	a.printf("Kernel running: %s\n", id)
	return nil
}

func cmdKernelID(ctx context.Context, a *app, _ []string) error {
	s, err := a.kernel(ctx)
	if err != nil {
		return err
	}
	return reportKernel(ctx, a, s)
}

func cmdKSpeed(ctx context.Context, a *app, args []string) error {
	bps, err := parseNumber(args[0])
	if err != nil {
		return err
	}
	s, err := a.kernel(ctx)
	if err != nil {
		return err
	}
	if err := s.SetKernelSpeed(ctx, int(bps)); err != nil {
		return err
	}
	a.cfg.Session.KernelBaud = int(bps)
	a.printf("Kernel speed %d\n", bps)
	return nil
}

// flashDevice returns the session's flash layout. Disconnect forgets it,
// so the configured one is selected again when needed.
func (a *app) flashDevice(s *nisprog.Session) (*nisprog.FlashDevice, error) {
	if dev := s.FlashDevice(); dev != nil {
		return dev, nil
	}
	if a.cfg.FlashDevice == "" {
		return nil, fmt.Errorf("select one with setdev or -device: %w", nisprog.ErrNoFlashDevice)
	}
	dev, err := nisprog.LookupFlashDevice(a.cfg.FlashDevice)
	if err != nil {
		return nil, err
	}
	if err := s.SetFlashDevice(dev); err != nil {
		return nil, err
	}
	return dev, nil
}

func (a *app) loadROMs(s *nisprog.Session, paths []string) (rom, orig []byte, err error) {
	dev, err := a.flashDevice(s)
	if err != nil {
		return nil, nil, err
	}
	rom, err = nisprog.LoadROM(paths[0], dev)
	if err != nil {
		return nil, nil, err
	}
	a.printf("%s: %s\n", paths[0], imageDigest(rom))
	if len(paths) > 1 {
		orig, err = nisprog.LoadROM(paths[1], dev)
		if err != nil {
			return nil, nil, err
		}
	}
	return rom, orig, nil
}

func cmdFlashVerify(ctx context.Context, a *app, args []string) error {
	s, err := a.open(ctx)
	if err != nil {
		return err
	}
	rom, orig, err := a.loadROMs(s, args)
	if err != nil {
		return err
	}
	if orig == nil {
		if s, err = a.kernel(ctx); err != nil {
			return err
		}
	}
	modified, err := s.ChangedBlocks(ctx, rom, orig)
	if err != nil {
		return err
	}
	blocks := nisprog.ModifiedIndexes(modified)
	if len(blocks) == 0 {
		a.printf("No differences\n")
		return nil
	}
	dev := s.FlashDevice()
	for _, b := range blocks {
		blk := dev.Blocks[b]
		a.printf("block %02d (0x%06X-0x%06X) differs\n", b, blk.Start, blk.End()-1)
	}
	return nil
}

func (a *app) confirmLive(what string) error {
	a.printf("*** Live mode: %s will be ERASED and rewritten. ***\n", what)
	ok, err := a.term.confirm("This is the last chance to cancel. Proceed?")
	if err != nil {
		return err
	}
	if !ok {
		return nisprog.ErrUserAbort
	}
	return nil
}

func cmdFlashBlock(ctx context.Context, a *app, args []string) error {
	rest, _, live := flashFlags(args)
	if len(rest) != 2 {
		return errors.New("usage: flblock <block> <rom> [live]")
	}
	block, err := parseNumber(rest[0])
	if err != nil {
		return err
	}
	s, err := a.kernel(ctx)
	if err != nil {
		return err
	}
	rom, _, err := a.loadROMs(s, rest[1:])
	if err != nil {
		return err
	}
	if live {
		if err := a.confirmLive(fmt.Sprintf("block %d", block)); err != nil {
			return err
		}
	}
	if err := s.ReflashBlock(ctx, rom, int(block), !live); err != nil {
		return err
	}
	a.printf("Block %d done%s\n", block, practiceNote(live))
	return nil
}

func cmdFlashROM(ctx context.Context, a *app, args []string) error {
	rest, all, live := flashFlags(args)
	if len(rest) < 1 || len(rest) > 2 {
		return errors.New("usage: flrom <rom> [orig] [all] [live]")
	}
	s, err := a.kernel(ctx)
	if err != nil {
		return err
	}
	rom, orig, err := a.loadROMs(s, rest)
	if err != nil {
		return err
	}

	if live {
		modified, err := s.ChangedBlocks(ctx, rom, orig)
		if err != nil {
			return err
		}
		what := fmt.Sprintf("blocks %v", nisprog.ModifiedIndexes(modified))
		if all {
			what = "every block"
		}
		if err := a.confirmLive(what); err != nil {
			return err
		}
	}

	written, err := s.FlashROM(ctx, rom, orig, all, !live)
	if err != nil {
		return err
	}
	if len(written) == 0 {
		a.printf("No differences, nothing to do\n")
		return nil
	}
	a.printf("Reflashed blocks %v%s\n", written, practiceNote(live))
	return nil
}

func practiceNote(live bool) string {
	if live {
		return ""
	}
	return " (practice mode, nothing was written; add \"live\" to write)"
}

func cmdStopKernel(ctx context.Context, a *app, _ []string) error {
	if a.session == nil || a.session.State() != nisprog.StateKernel {
		if _, err := a.kernel(ctx); err != nil {
			return err
		}
	}
	if err := a.session.StopKernel(ctx); err != nil {
		return err
	}
	a.printf("Kernel stopped, reconnect at the normal speed\n")
	return nil
}

func cmdHelp(_ context.Context, a *app, _ []string) error {
	printCommands(a.out)
	return nil
}
