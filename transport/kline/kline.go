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

// Package kline provides the serial K-line transport for ISO14230 ECUs
package kline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	nisprog "github.com/ZaparooProject/go-nisprog"
	"github.com/ZaparooProject/go-nisprog/internal/frame"
	"github.com/ZaparooProject/go-nisprog/iso14230"
	"go.bug.st/serial"
	"periph.io/x/conn/v3/gpio"
)

const (
	// DefaultBaud is the ISO14230 line speed
	DefaultBaud = 10400

	defaultP2Max     = 100 * time.Millisecond
	defaultP3        = 55 * time.Millisecond
	pendingTimeout   = 5 * time.Second
	maxPending       = 20
	keepaliveDefault = 2 * time.Second

	// fast init timing
	tIdle  = 300 * time.Millisecond
	tIniL  = 25 * time.Millisecond
	tWuP   = 50 * time.Millisecond
	pollMS = 5 * time.Millisecond
)

// Port is the subset of serial.Port the transport uses
type Port interface {
	io.ReadWriteCloser
	SetMode(mode *serial.Mode) error
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
	Break(d time.Duration) error
}

// Transport implements nisprog.Transport over a K-line serial adapter
type Transport struct {
	lastRx    time.Time
	lastTx    time.Time
	port      Port
	initPin   gpio.PinIO
	stopKA    chan struct{}
	kaDone    chan struct{}
	portName  string
	header    frame.Header
	p2max     time.Duration
	p3        time.Duration
	kaPeriod  time.Duration
	idle      time.Duration
	baud      int
	mu        sync.Mutex
	echo      bool
	keepalive bool
}

// Option configures a Transport
type Option func(*Transport) error

// WithBaud sets the initial line speed
func WithBaud(bps int) Option {
	return func(t *Transport) error {
		if bps <= 0 {
			return fmt.Errorf("baud %d: %w", bps, nisprog.ErrInvalidParameter)
		}
		t.baud = bps
		return nil
	}
}

// WithEcho tells the transport whether the adapter echoes transmitted
// bytes back. Single-wire K-line adapters do.
func WithEcho(echo bool) Option {
	return func(t *Transport) error {
		t.echo = echo
		return nil
	}
}

// WithAddresses sets the physical target and source addresses
func WithAddresses(target, source byte) Option {
	return func(t *Transport) error {
		t.header.Target = target
		t.header.Source = source
		return nil
	}
}

// WithKeepalive enables TesterPresent frames after each idle period.
// A zero period disables them.
func WithKeepalive(period time.Duration) Option {
	return func(t *Transport) error {
		t.kaPeriod = period
		t.keepalive = period > 0
		return nil
	}
}

// New opens a K-line adapter on portName
func New(portName string, opts ...Option) (*Transport, error) {
	t := newTransport(portName)
	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, err
		}
	}

	port, err := serial.Open(portName, serialMode(t.baud))
	if err != nil {
		return nil, nisprog.NewTransportError("open", portName, fmt.Errorf("%w: %w", nisprog.ErrDeviceNotFound, err),
			nisprog.ErrorTypePermanent)
	}
	t.port = port
	return t, nil
}

// NewWithPort wraps an already open port
func NewWithPort(port Port, portName string, opts ...Option) (*Transport, error) {
	t := newTransport(portName)
	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, err
		}
	}
	if err := port.SetMode(serialMode(t.baud)); err != nil {
		return nil, nisprog.NewTransportError("setMode", portName, err, nisprog.ErrorTypePermanent)
	}
	t.port = port
	return t, nil
}

func newTransport(portName string) *Transport {
	return &Transport{
		portName:  portName,
		header:    frame.DefaultHeader(),
		p2max:     defaultP2Max,
		p3:        defaultP3,
		kaPeriod:  keepaliveDefault,
		idle:      tIdle,
		baud:      DefaultBaud,
		echo:      true,
		keepalive: true,
	}
}

func serialMode(bps int) *serial.Mode {
	return &serial.Mode{
		BaudRate: bps,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

// Wakeup performs the ISO14230 fast init pattern and starts the keepalive
func (t *Transport) Wakeup() error {
	return t.WakeupContext(context.Background())
}

// WakeupContext is Wakeup with cancellation of the idle wait
func (t *Transport) WakeupContext(ctx context.Context) error {
	t.stopKeepalive()

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return nisprog.NewTransportError("wakeup", t.portName, nisprog.ErrTransportClosed, nisprog.ErrorTypePermanent)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(t.idle):
	}

	if err := t.pulse(); err != nil {
		return nisprog.NewTransportError("wakeup", t.portName, err, nisprog.ErrorTypeTransient)
	}
	_ = t.port.ResetInputBuffer()
	t.lastRx = time.Time{}
	t.lastTx = time.Now()

	if t.keepalive {
		t.startKeepalive()
	}
	return nil
}

// pulse drives TiniL low then waits out the rest of TWuP
func (t *Transport) pulse() error {
	if t.initPin != nil {
		if err := t.initPin.Out(gpio.Low); err != nil {
			return err
		}
		time.Sleep(tIniL)
		if err := t.initPin.Out(gpio.High); err != nil {
			return err
		}
	} else if err := t.port.Break(tIniL); err != nil {
		return err
	}
	time.Sleep(tWuP - tIniL)
	return nil
}

// Request sends one frame and returns the decoded response. Response
// pending answers (7F xx 78) are absorbed here with an extended timeout.
func (t *Transport) Request(data []byte) (*nisprog.Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.send("Request", data); err != nil {
		return nil, err
	}

	return t.awaitResponse()
}

// awaitResponse reads frames until one is not a response pending answer.
// After a pending answer the wait grows to pendingTimeout; more than
// maxPending of them in a row count as a timeout.
func (t *Transport) awaitResponse() (*nisprog.Response, error) {
	timeout := t.p2max
	for range maxPending + 1 {
		f, err := t.readFrame(timeout)
		if err != nil {
			return nil, err
		}
		if !iso14230.IsNegative(f.Data) || f.Data[2] != iso14230.NRCResponsePending {
			return &nisprog.Response{Data: f.Data, BadChecksum: f.BadChecksum}, nil
		}
		debugf("response pending for %02X", f.Data[1])
		timeout = pendingTimeout
	}
	return nil, nisprog.NewTimeoutError("Request: response pending", t.portName)
}

// Send transmits one frame without reading an answer
func (t *Transport) Send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.send("Send", data)
}

// RecvExact reads up to n raw bytes
func (t *Transport) RecvExact(n int, timeout time.Duration) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.readExact("RecvExact", n, timeout)
}

func (t *Transport) send(op string, data []byte) error {
	if t.port == nil {
		return nisprog.NewTransportError(op, t.portName, nisprog.ErrTransportClosed, nisprog.ErrorTypePermanent)
	}
	raw, err := frame.Encode(t.header, data)
	if err != nil {
		return nisprog.NewTransportError(op, t.portName, fmt.Errorf("%w: %w", nisprog.ErrInvalidParameter, err),
			nisprog.ErrorTypePermanent)
	}

	if wait := t.p3 - time.Since(t.lastRx); !t.lastRx.IsZero() && wait > 0 {
		time.Sleep(wait)
	}

	if _, err := t.port.Write(raw); err != nil {
		return nisprog.NewTransportError(op, t.portName, fmt.Errorf("%w: %w", nisprog.ErrTransportWrite, err),
			nisprog.ErrorTypeTransient)
	}
	t.lastTx = time.Now()
	if !t.echo {
		return nil
	}

	echo, err := t.readExact(op+" echo", len(raw), t.p2max)
	if err != nil {
		return err
	}
	if !bytes.Equal(echo, raw) {
		debugf("echo mismatch: sent % X, got % X", raw, echo)
		return nisprog.NewTransportError(op, t.portName, fmt.Errorf("%w: echo mismatch", nisprog.ErrCommunicationFailed),
			nisprog.ErrorTypeTransient)
	}
	return nil
}

// readFrame reads one frame using the header to find its length
func (t *Transport) readFrame(timeout time.Duration) (*frame.Frame, error) {
	buf, err := t.readExact("readFrame", 1, timeout)
	if err != nil {
		return nil, err
	}
	hdr := frame.HeaderLength(buf)
	if hdr > 1 {
		more, err := t.readExact("readFrame", hdr-1, timeout)
		if err != nil {
			return nil, err
		}
		buf = append(buf, more...)
	}

	total := frame.Length(buf)
	if total > len(buf) {
		more, err := t.readExact("readFrame", total-len(buf), timeout)
		if err != nil {
			return nil, err
		}
		buf = append(buf, more...)
	}

	f, _, err := frame.Decode(buf)
	if err != nil {
		return nil, nisprog.NewFrameCorruptedError("readFrame", t.portName)
	}
	if f.BadChecksum {
		debugf("bad checksum: % X", buf)
	}
	return f, nil
}

// readExact reads n bytes, returning what arrived with a timeout error
// when the deadline passes first
func (t *Transport) readExact(op string, n int, timeout time.Duration) ([]byte, error) {
	if t.port == nil {
		return nil, nisprog.NewTransportError(op, t.portName, nisprog.ErrTransportClosed, nisprog.ErrorTypePermanent)
	}
	out := make([]byte, 0, n)
	chunk := make([]byte, n)

	defer func() {
		if len(out) > 0 {
			t.lastRx = time.Now()
		}
	}()

	deadline := time.Now().Add(timeout)
	for len(out) < n {
		if !time.Now().Before(deadline) {
			return out, nisprog.NewTimeoutError(op, t.portName)
		}
		if err := t.port.SetReadTimeout(pollMS); err != nil {
			return out, nisprog.NewTransportError(op, t.portName, err, nisprog.ErrorTypePermanent)
		}
		got, err := t.port.Read(chunk[:n-len(out)])
		if err != nil {
			return out, nisprog.NewTransportError(op, t.portName,
				fmt.Errorf("%w: %w", nisprog.ErrTransportRead, err), nisprog.ErrorTypeTransient)
		}
		out = append(out, chunk[:got]...)
	}
	return out, nil
}

// FlushInput discards received bytes
func (t *Transport) FlushInput() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return nisprog.NewTransportError("FlushInput", t.portName, nisprog.ErrTransportClosed, nisprog.ErrorTypePermanent)
	}
	if err := t.port.ResetInputBuffer(); err != nil {
		return nisprog.NewTransportError("FlushInput", t.portName, err, nisprog.ErrorTypeTransient)
	}
	return nil
}

// SetSpeed changes the line speed
func (t *Transport) SetSpeed(bps int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return nisprog.NewTransportError("SetSpeed", t.portName, nisprog.ErrTransportClosed, nisprog.ErrorTypePermanent)
	}
	if err := t.port.SetMode(serialMode(bps)); err != nil {
		return nisprog.NewTransportError("SetSpeed", t.portName, err, nisprog.ErrorTypePermanent)
	}
	t.baud = bps
	debugf("line speed %d", bps)
	return nil
}

// Speed returns the current line speed
func (t *Transport) Speed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.baud
}

// SetResponseTimeout sets P2max and returns the previous value
func (t *Transport) SetResponseTimeout(d time.Duration) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev := t.p2max
	t.p2max = d
	return prev
}

// SetP3 sets the minimum gap between a response and the next request
func (t *Transport) SetP3(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.p3 = d
}

// SetShortHeaders switches between headerless and physical header frames
func (t *Transport) SetShortHeaders(short bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.header.Short = short
}

// DisableKeepalive stops the TesterPresent timer for good
func (t *Transport) DisableKeepalive() {
	t.stopKeepalive()
	t.mu.Lock()
	t.keepalive = false
	t.mu.Unlock()
}

// HasCapability reports what this link supports right now
func (t *Transport) HasCapability(capability nisprog.TransportCapability) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch capability {
	case nisprog.CapabilityShortHeaders:
		return t.header.Short
	case nisprog.CapabilityKeepalive:
		return t.keepalive
	case nisprog.CapabilityHeaderControl:
		return true
	default:
		return false
	}
}

// Close stops the keepalive and closes the port
func (t *Transport) Close() error {
	t.stopKeepalive()
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	if err != nil {
		return nisprog.NewTransportError("Close", t.portName, err, nisprog.ErrorTypePermanent)
	}
	return nil
}

// IsConnected returns true while the port is open
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port != nil
}

// Type returns the transport type
func (*Transport) Type() nisprog.TransportType {
	return nisprog.TransportKLine
}

// PortName returns the serial device this transport was opened on
func (t *Transport) PortName() string {
	return t.portName
}

var _ nisprog.Transport = (*Transport)(nil)
