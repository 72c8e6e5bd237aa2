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

// Command nisprog dumps and reflashes Nissan and Subaru ECUs over K-line
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	nisprog "github.com/ZaparooProject/go-nisprog"
	"github.com/ZaparooProject/go-nisprog/detection"
	// register the serial adapter detector
	_ "github.com/ZaparooProject/go-nisprog/detection/uart"
	"github.com/ZaparooProject/go-nisprog/keys"
	"github.com/ZaparooProject/go-nisprog/transport/kline"
)

// nissanCipher is the vendor key primitive used by runkernel. It is not
// part of this repository; builds that have it assign it from an init
// function in a separate file.
var nissanCipher keys.LinearCipher

type interrupter interface {
	nisprog.Interrupter
	Reset()
}

type app struct {
	cfg       *config
	out       io.Writer
	term      *terminal
	interrupt interrupter
	catalog   *nisprog.KeysetCatalog
	transport *kline.Transport
	session   *nisprog.Session
}

func newApp(cfg *config, out io.Writer, term *terminal, intr interrupter) (*app, error) {
	a := &app{cfg: cfg, out: out, term: term, interrupt: intr}
	if cfg.KeysetFile != "" {
		cat, err := nisprog.LoadKeysetCatalog(cfg.KeysetFile)
		if err != nil {
			return nil, err
		}
		a.catalog = cat
	}
	return a, nil
}

// open creates the transport and session on first use
func (a *app) open(ctx context.Context) (*nisprog.Session, error) {
	if a.session != nil {
		return a.session, nil
	}

	port := a.cfg.Port
	if port == "" {
		devices, err := detection.DetectAll(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("no port given and auto-detection failed: %w", err)
		}
		port = devices[0].Path
		a.printf("Using %s (%s)\n", port, devices[0].Name)
	}

	topts := []kline.Option{
		kline.WithBaud(a.cfg.Baud),
		kline.WithEcho(a.cfg.Echo),
		kline.WithKeepalive(a.cfg.Keepalive),
	}
	if a.cfg.GPIOInit != "" {
		topts = append(topts, kline.WithGPIOInit(a.cfg.GPIOInit))
	}
	tr, err := kline.New(port, topts...)
	if err != nil {
		return nil, err
	}

	sopts := []nisprog.Option{
		nisprog.WithConfig(&a.cfg.Session),
		nisprog.WithInterrupter(a.interrupt),
		nisprog.WithProgress(a.term.progress),
	}
	if a.catalog != nil {
		sopts = append(sopts, nisprog.WithKeysetCatalog(a.catalog))
	}
	if nissanCipher != nil {
		sopts = append(sopts, nisprog.WithLinearCipher(nissanCipher))
	}
	if a.cfg.FlashDevice != "" {
		dev, err := nisprog.LookupFlashDevice(a.cfg.FlashDevice)
		if err != nil {
			_ = tr.Close()
			return nil, err
		}
		sopts = append(sopts, nisprog.WithFlashDevice(dev))
	}

	s, err := nisprog.NewSession(tr, sopts...)
	if err != nil {
		_ = tr.Close()
		return nil, err
	}
	a.transport = tr
	a.session = s
	return s, nil
}

func (a *app) close() {
	if a.transport != nil {
		_ = a.transport.Close()
	}
	a.transport = nil
	a.session = nil
}

func (a *app) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(a.out, format, args...)
}

// exec runs one command line
func (a *app) exec(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return nil
	}
	cmd, ok := lookupCommand(args[0])
	if !ok {
		return fmt.Errorf("unknown command %q, try \"help\"", args[0])
	}
	if len(args)-1 < cmd.minArgs || (cmd.maxArgs >= 0 && len(args)-1 > cmd.maxArgs) {
		return fmt.Errorf("usage: %s %s", cmd.name, cmd.usage)
	}
	a.interrupt.Reset()
	return cmd.run(ctx, a, args[1:])
}

// shell reads commands until EOF or "quit"
func (a *app) shell(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for {
		a.printf("nisprog> ")
		if !scanner.Scan() {
			a.printf("\n")
			return scanner.Err()
		}
		args := strings.Fields(scanner.Text())
		if len(args) == 0 {
			continue
		}
		if args[0] == "quit" || args[0] == "q" {
			return nil
		}
		if err := a.exec(ctx, args); err != nil {
			a.printf("%s\n", describeError(err))
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// describeError adds the operator hints for well known failures
func describeError(err error) string {
	var ae *nisprog.AbortError
	switch {
	case errors.Is(err, keys.ErrNoCipher):
		return fmt.Sprintf("%v\nthis build has no Nissan key cipher; sprunkernel works without it", err)
	case errors.Is(err, nisprog.ErrUserAbort):
		return "interrupted"
	case errors.As(err, &ae):
		return fmt.Sprintf("%v\nlast good address 0x%X", err, ae.Address)
	default:
		return err.Error()
	}
}

func run(argv []string, stdin, stdout *os.File) error {
	fs := flag.NewFlagSet("nisprog", flag.ContinueOnError)
	fs.Usage = func() {
		_, _ = fmt.Fprintf(fs.Output(), "Usage: nisprog [flags] [command [args...]]\n\n"+
			"Without a command an interactive shell is started.\n\nFlags:\n")
		fs.PrintDefaults()
		_, _ = fmt.Fprintf(fs.Output(), "\nCommands:\n")
		printCommands(fs.Output())
	}
	flags, err := parseFlags(fs, argv)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(flags.configPath)
	if err != nil {
		return err
	}
	flags.apply(cfg)
	if err := cfg.validate(); err != nil {
		return err
	}
	if cfg.Debug {
		nisprog.SetDebugEnabled(true)
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := newApp(cfg, stdout, newTerminal(stdin, stdout), newInterrupter())
	if err != nil {
		return err
	}
	defer a.close()

	if len(flags.args) == 0 {
		return a.shell(ctx, stdin)
	}
	return a.exec(ctx, flags.args)
}

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		_, _ = fmt.Fprintf(os.Stderr, "nisprog: %s\n", describeError(err))
		os.Exit(1)
	}
}
