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
	"sync"
	"time"

	"github.com/ZaparooProject/go-nisprog/iso14230"
	"github.com/ZaparooProject/go-nisprog/keys"
)

// State is the connection state of a Session
type State int

const (
	// StateDisconnected means no diagnostic link is established
	StateDisconnected State = iota
	// StateNormal is a diagnostic session with the stock firmware
	StateNormal
	// StateKernel is a session with the uploaded kernel
	StateKernel
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateNormal:
		return "normal"
	case StateKernel:
		return "kernel"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Dialect selects the vendor variant of the normal session
type Dialect int

const (
	// DialectNissan uses SID 1A ECU-ID, SID 34 80 and the BF RAM-jump
	DialectNissan Dialect = iota
	// DialectSubaru uses SSM A8 ECU-ID and explicitly addressed downloads
	DialectSubaru
)

// keyByteShortHeader is the KB1 bit advertising 1-byte headers
const keyByteShortHeader = 0x04

// Session is one connection to an ECU.
//
// Every public method holds the session lock for its whole duration, so at
// most one request is ever in flight on the transport. A Session must not
// outlive its transport.
type Session struct {
	transport    Transport
	config       *SessionConfig
	keyset       *Keyset
	catalog      *KeysetCatalog
	device       *FlashDevice
	cipher       keys.LinearCipher
	interrupt    Interrupter
	progress     ProgressCallback
	candidates   []KeyCandidate
	ecuid        string
	state        State
	dialect      Dialect
	mu           sync.Mutex
	unlockAlg    keys.Algorithm
	unlockErr    error
	keysetPinned bool
}

// NewSession creates a session on an open transport
func NewSession(transport Transport, opts ...Option) (*Session, error) {
	if transport == nil {
		return nil, fmt.Errorf("nil transport: %w", ErrInvalidParameter)
	}
	s := &Session{
		transport: transport,
		config:    DefaultSessionConfig(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	// options may set the keyset before the cipher
	s.selectKeyset(s.keyset)
	setP3(transport, s.config.P3)
	return s, nil
}

// State returns the current connection state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ECUID returns the identifier read at connect time
func (s *Session) ECUID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ecuid
}

// Keyset returns the selected keyset, or nil
func (s *Session) Keyset() *Keyset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keyset
}

// KeyCandidates returns the ranked keysets found for the ECU-ID at connect time
func (s *Session) KeyCandidates() []KeyCandidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]KeyCandidate(nil), s.candidates...)
}

// FlashDevice returns the selected flash layout, or nil
func (s *Session) FlashDevice() *FlashDevice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device
}

// SetFlashDevice selects the flash layout
func (s *Session) SetFlashDevice(dev *FlashDevice) error {
	if dev == nil {
		return fmt.Errorf("nil flash device: %w", ErrInvalidParameter)
	}
	if err := dev.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.device = dev
	return nil
}

// SetKeys selects a keyset by SID27 key. With only s27 given, the SID36 key
// is looked up in the catalog.
func (s *Session) SetKeys(s27 uint32, s36 ...uint32) (*Keyset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch len(s36) {
	case 0:
		ks := s.catalog.BySID27(s27)
		if ks == nil {
			return nil, fmt.Errorf("SID27 key %08X does not match a known keyset, both keys are needed: %w",
				s27, ErrNoKeyset)
		}
		s.selectKeyset(ks)
	case 1:
		s.selectKeyset(&Keyset{Name: "custom", S27: s27, S36: s36[0]})
	default:
		return nil, fmt.Errorf("at most one SID36 key: %w", ErrInvalidParameter)
	}
	s.keysetPinned = true
	debugf("using %s", s.keyset)
	return s.keyset, nil
}

// Connect establishes a Nissan diagnostic session, reads the ECU-ID and
// picks the closest keyset from the catalog
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateDisconnected {
		return fmt.Errorf("connect: already connected: %w", ErrMisuse)
	}
	if err := s.checkpoint(ctx); err != nil {
		return err
	}
	s.resetLink()

	if err := s.startComms(); err != nil {
		return err
	}
	s.state = StateNormal
	s.dialect = DialectNissan

	id, err := s.readNissanECUID()
	if err != nil {
		return fmt.Errorf("couldn't get ECUID: %w", err)
	}
	s.ecuid = id
	debugf("ECUID: %s", id)
	s.autoselectKeyset()
	return nil
}

// ConnectSubaru establishes a Subaru diagnostic session and reads the
// SSM ECU-ID
func (s *Session) ConnectSubaru(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateDisconnected {
		return fmt.Errorf("connect: already connected: %w", ErrMisuse)
	}
	if err := s.checkpoint(ctx); err != nil {
		return err
	}
	s.resetLink()

	if err := s.startComms(); err != nil {
		return err
	}
	s.state = StateNormal
	s.dialect = DialectSubaru

	id, err := s.readSubaruECUID()
	if err != nil {
		return fmt.Errorf("couldn't get ECUID: %w", err)
	}
	s.ecuid = id
	debugf("ECUID: %s", id)
	return nil
}

// ReadECUID reads the ECU-ID again from a normal session
func (s *Session) ReadECUID(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireState("ecuid", StateNormal); err != nil {
		return "", err
	}
	if err := s.checkpoint(ctx); err != nil {
		return "", err
	}
	var (
		id  string
		err error
	)
	if s.dialect == DialectSubaru {
		id, err = s.readSubaruECUID()
	} else {
		id, err = s.readNissanECUID()
	}
	if err != nil {
		return "", err
	}
	s.ecuid = id
	return id, nil
}

// InitKernel attaches to a kernel that is already running: keepalive is
// disabled, the line speed switched and a short-header StartCommunication
// exchanged
func (s *Session) InitKernel(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateDisconnected {
		return fmt.Errorf("init kernel: %w", ErrNotConnected)
	}
	if err := s.checkpoint(ctx); err != nil {
		return err
	}
	return s.initKernel()
}

// AttachKernel connects to a kernel left running by an earlier session,
// without going through the stock firmware first
func (s *Session) AttachKernel(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateDisconnected {
		return fmt.Errorf("attach kernel: already connected: %w", ErrMisuse)
	}
	if err := s.checkpoint(ctx); err != nil {
		return err
	}
	s.resetLink()
	return s.initKernel()
}

// Disconnect ends the diagnostic session and forgets everything learned
// about the ECU, including the selected keyset and flash device. The
// transport stays open.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.state == StateNormal {
		if _, rerr := s.transport.Request([]byte{iso14230.SIDStopCommunication}); rerr != nil {
			err = fmt.Errorf("stop communication: %w", rerr)
		}
	}
	s.clear()
	return err
}

// resetLink forgets what the last connect attempt learned. The flash
// device and a pinned keyset chosen for this session are kept.
func (s *Session) resetLink() {
	s.state = StateDisconnected
	s.dialect = DialectNissan
	s.ecuid = ""
	s.candidates = nil
	if !s.keysetPinned {
		s.selectKeyset(nil)
	}
}

// clear tears the session down completely, including the keyset and
// flash device
func (s *Session) clear() {
	s.resetLink()
	s.keysetPinned = false
	s.selectKeyset(nil)
	s.device = nil
}

// selectKeyset makes ks current and resolves its SID27 algorithm
func (s *Session) selectKeyset(ks *Keyset) {
	s.keyset = ks
	s.unlockAlg, s.unlockErr = nil, nil
	if ks != nil {
		s.unlockAlg, s.unlockErr = ks.UnlockAlgorithm(s.cipher)
	}
}

func (s *Session) requireState(op string, want State) error {
	if s.state == want {
		return nil
	}
	if s.state == StateDisconnected {
		return fmt.Errorf("%s: %w", op, ErrNotConnected)
	}
	return fmt.Errorf("%s: needs %s session, have %s: %w", op, want, s.state, ErrMisuse)
}

func (s *Session) startComms() error {
	if err := wakeup(s.transport); err != nil {
		return fmt.Errorf("wakeup: %w", err)
	}
	resp, err := s.request("StartCommunication", []byte{iso14230.SIDStartCommunication},
		iso14230.Positive(iso14230.SIDStartCommunication), 1)
	if err != nil {
		return err
	}
	if resp.Len() >= 3 && resp.Data[1]&keyByteShortHeader != 0 {
		setShortHeaders(s.transport, true)
	} else {
		warnf("short headers not supported by ECU, fast read disabled")
	}
	return nil
}

func (s *Session) readNissanECUID() (string, error) {
	resp, err := s.request("ReadECUID", reqECUID, iso14230.Positive(iso14230.SIDReadECUID), 7)
	if err != nil {
		return "", err
	}
	// 5A 31 <5 chars>
	return string(resp.Data[2:7]), nil
}

func (s *Session) readSubaruECUID() (string, error) {
	req := []byte{sidSSMReadAddress, 0x00}
	for n := byte(1); n <= 5; n++ {
		req = append(req, 0x00, 0x00, n)
	}
	resp, err := s.request("SSMReadECUID", req, respSSMRead, 6)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%X", resp.Data[1:6]), nil
}

func (s *Session) autoselectKeyset() {
	if s.keysetPinned {
		return
	}
	s.candidates = s.catalog.Candidates(s.ecuid, KeyCandidates)
	for i, c := range s.candidates {
		debugf("key candidate %d: 0x%08X dist %d (%s)", i, c.Keyset.S27, c.Distance, c.ECUID)
	}
	if len(s.candidates) == 0 {
		warnf("no keyset catalog entry for ECUID %s", s.ecuid)
		return
	}
	s.selectKeyset(s.candidates[0].Keyset)
	debugf("using best choice, %s", s.keyset)
}

// request sends data and checks the response code and minimum length.
// Negative responses are decoded with the kernel table when a kernel runs.
func (s *Session) request(op string, data []byte, want byte, minLen int) (*Response, error) {
	resp, err := s.transport.Request(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if resp == nil || resp.Len() == 0 {
		return nil, &ProtocolError{Op: op, Want: want}
	}
	if resp.BadChecksum {
		return nil, fmt.Errorf("%s: %w", op, ErrChecksumMismatch)
	}
	if nr := DecodeNegative(resp.Data, s.state == StateKernel); nr != nil {
		debugf("%s: %s", op, nr.Description)
		return nil, fmt.Errorf("%s: %w", op, nr)
	}
	if resp.Data[0] != want || resp.Len() < minLen {
		return nil, &ProtocolError{Op: op, Want: want, Got: resp.Data}
	}
	return resp, nil
}

// rxTimeout adds the configured slack to a raw receive timeout
func (s *Session) rxTimeout(base time.Duration) time.Duration {
	return base + s.config.RxExtra
}
