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
	"sync"
	"time"
)

// MockTransport is a scripted transport for tests. Request answers come
// from per-SID response queues, falling back to a handler function; Send
// feeds the raw receive buffer through per-SID raw replies.
type MockTransport struct {
	responses    map[byte][][]byte
	errors       map[byte]error
	badChecksum  map[byte]bool
	rawReplies   map[byte]func(req []byte) []byte
	calls        map[byte]int
	caps         map[TransportCapability]bool
	handler      func(req []byte) []byte
	rawHandler   func(req []byte) []byte
	sent         [][]byte
	rx           []byte
	speeds       []int
	respTimeouts []time.Duration
	respTimeout  time.Duration
	delay        time.Duration
	p3           time.Duration
	flushes      int
	mu           sync.Mutex
	shortHeaders bool
	keepaliveOff bool
	closed       bool
}

// NewMockTransport creates a mock transport with nothing scripted
func NewMockTransport() *MockTransport {
	return &MockTransport{
		responses:   make(map[byte][][]byte),
		errors:      make(map[byte]error),
		badChecksum: make(map[byte]bool),
		rawReplies:  make(map[byte]func(req []byte) []byte),
		calls:       make(map[byte]int),
		caps:        make(map[TransportCapability]bool),
		respTimeout: time.Second,
	}
}

// SetResponse makes every Request with this SID return resp
func (m *MockTransport) SetResponse(sid byte, resp []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[sid] = [][]byte{resp}
}

// QueueResponse appends responses for a SID. They are returned in order and
// the last one is repeated.
func (m *MockTransport) QueueResponse(sid byte, resps ...[]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[sid] = append(m.responses[sid], resps...)
}

// SetError makes Request and Send with this SID fail
func (m *MockTransport) SetError(sid byte, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[sid] = err
}

// SetBadChecksum flags the responses to this SID as corrupted
func (m *MockTransport) SetBadChecksum(sid byte, bad bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.badChecksum[sid] = bad
}

// SetRequestHandler answers requests that have no scripted response
func (m *MockTransport) SetRequestHandler(fn func(req []byte) []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = fn
}

// SetRawReply makes Send with this SID append fn(req) to the receive buffer
func (m *MockTransport) SetRawReply(sid byte, fn func(req []byte) []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rawReplies[sid] = fn
}

// SetRawHandler answers sends that have no raw reply for their SID
func (m *MockTransport) SetRawHandler(fn func(req []byte) []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rawHandler = fn
}

// QueueRecv appends bytes to the raw receive buffer
func (m *MockTransport) QueueRecv(data ...byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rx = append(m.rx, data...)
}

// SetCapability overrides a capability answer
func (m *MockTransport) SetCapability(capability TransportCapability, has bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.caps[capability] = has
}

// SetDelay makes every Request take at least d
func (m *MockTransport) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// Sent returns every frame passed to Send or Request, in order
func (m *MockTransport) Sent() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.sent))
	copy(out, m.sent)
	return out
}

// SentWith returns the sent frames starting with sid
func (m *MockTransport) SentWith(sid byte) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out [][]byte
	for _, f := range m.sent {
		if len(f) > 0 && f[0] == sid {
			out = append(out, f)
		}
	}
	return out
}

// GetCallCount returns how many frames with this SID were sent
func (m *MockTransport) GetCallCount(sid byte) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[sid]
}

// FlushCount returns how many times the input was flushed
func (m *MockTransport) FlushCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushes
}

// Speeds returns every speed passed to SetSpeed
func (m *MockTransport) Speeds() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.speeds...)
}

// ResponseTimeouts returns every value passed to SetResponseTimeout
func (m *MockTransport) ResponseTimeouts() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.respTimeouts...)
}

// ShortHeaders reports whether short headers were switched on
func (m *MockTransport) ShortHeaders() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shortHeaders
}

// KeepaliveDisabled reports whether DisableKeepalive was called
func (m *MockTransport) KeepaliveDisabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keepaliveOff
}

// P3 returns the inter-request time set by the session
func (m *MockTransport) P3() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.p3
}

func (m *MockTransport) record(data []byte) (byte, error) {
	frame := append([]byte(nil), data...)
	m.sent = append(m.sent, frame)
	if len(frame) == 0 {
		return 0, ErrInvalidParameter
	}
	m.calls[frame[0]]++
	if m.closed {
		return frame[0], ErrTransportClosed
	}
	return frame[0], m.errors[frame[0]]
}

// Send implements Transport
func (m *MockTransport) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sid, err := m.record(data)
	if err != nil {
		return err
	}
	req := append([]byte(nil), data...)
	if fn, ok := m.rawReplies[sid]; ok {
		m.rx = append(m.rx, fn(req)...)
	} else if m.rawHandler != nil {
		m.rx = append(m.rx, m.rawHandler(req)...)
	}
	return nil
}

// RecvExact implements Transport. A short buffer returns what is there with
// a timeout error.
func (m *MockTransport) RecvExact(n int, _ time.Duration) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	got := min(n, len(m.rx))
	out := append([]byte(nil), m.rx[:got]...)
	m.rx = m.rx[got:]
	if got < n {
		return out, NewTimeoutError("RecvExact", "mock")
	}
	return out, nil
}

// Request implements Transport
func (m *MockTransport) Request(data []byte) (*Response, error) {
	m.mu.Lock()
	delay := m.delay
	m.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sid, err := m.record(data)
	if err != nil {
		return nil, err
	}
	var resp []byte
	if q := m.responses[sid]; len(q) > 0 {
		resp = q[0]
		if len(q) > 1 {
			m.responses[sid] = q[1:]
		}
	} else if m.handler != nil {
		resp = m.handler(append([]byte(nil), data...))
	}
	if resp == nil {
		return nil, NewTimeoutError("Request", "mock")
	}
	return &Response{
		Data:        append([]byte(nil), resp...),
		BadChecksum: m.badChecksum[sid],
	}, nil
}

// FlushInput implements Transport
func (m *MockTransport) FlushInput() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushes++
	m.rx = nil
	return nil
}

// SetSpeed implements Transport
func (m *MockTransport) SetSpeed(bps int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.speeds = append(m.speeds, bps)
	return nil
}

// SetResponseTimeout implements Transport
func (m *MockTransport) SetResponseTimeout(d time.Duration) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.respTimeout
	m.respTimeout = d
	m.respTimeouts = append(m.respTimeouts, d)
	return prev
}

// Close implements Transport
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Type implements Transport
func (*MockTransport) Type() TransportType {
	return TransportMock
}

// HasCapability implements TransportCapabilityChecker
func (m *MockTransport) HasCapability(capability TransportCapability) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if has, ok := m.caps[capability]; ok {
		return has
	}
	switch capability {
	case CapabilityShortHeaders:
		return m.shortHeaders
	case CapabilityHeaderControl:
		return true
	default:
		return false
	}
}

// DisableKeepalive implements KeepaliveController
func (m *MockTransport) DisableKeepalive() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keepaliveOff = true
}

// SetShortHeaders implements HeaderController
func (m *MockTransport) SetShortHeaders(short bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shortHeaders = short
}

// SetP3 implements P3Controller
func (m *MockTransport) SetP3(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.p3 = d
}

// BlockingMockTransport is a MockTransport whose Request blocks on demand.
// It is used to check that a session never has two requests in flight.
type BlockingMockTransport struct {
	*MockTransport
	blockChan chan struct{}
	entered   chan struct{}
	timeout   time.Duration
	bmu       sync.Mutex
	inFlight  int
	maxFlight int
	closed    bool
}

// NewBlockingMockTransport creates a new blocking mock transport
func NewBlockingMockTransport() *BlockingMockTransport {
	return &BlockingMockTransport{
		MockTransport: NewMockTransport(),
		blockChan:     make(chan struct{}),
		entered:       make(chan struct{}, 64),
		timeout:       5 * time.Second,
	}
}

// Request blocks until Unblock() is called, the timeout expires, or the
// transport is closed
func (m *BlockingMockTransport) Request(data []byte) (*Response, error) {
	m.bmu.Lock()
	blockChan := m.blockChan
	closed := m.closed
	timeout := m.timeout
	m.inFlight++
	m.maxFlight = max(m.maxFlight, m.inFlight)
	m.bmu.Unlock()

	defer func() {
		m.bmu.Lock()
		m.inFlight--
		m.bmu.Unlock()
	}()

	if closed {
		return nil, ErrTransportClosed
	}
	m.entered <- struct{}{}

	select {
	case <-blockChan:
	case <-time.After(timeout):
		return nil, NewTimeoutError("Request", "mock")
	}
	return m.MockTransport.Request(data)
}

// Entered is signalled each time a Request starts waiting
func (m *BlockingMockTransport) Entered() <-chan struct{} {
	return m.entered
}

// MaxInFlight returns the highest number of concurrent requests seen
func (m *BlockingMockTransport) MaxInFlight() int {
	m.bmu.Lock()
	defer m.bmu.Unlock()
	return m.maxFlight
}

// Unblock releases every Request waiting right now
func (m *BlockingMockTransport) Unblock() {
	m.bmu.Lock()
	defer m.bmu.Unlock()
	if !m.closed {
		close(m.blockChan)
		m.blockChan = make(chan struct{})
	}
}

// SetTimeout configures the timeout for blocking operations
func (m *BlockingMockTransport) SetTimeout(timeout time.Duration) {
	m.bmu.Lock()
	defer m.bmu.Unlock()
	m.timeout = timeout
}

// Close unblocks all operations and marks transport as closed
func (m *BlockingMockTransport) Close() error {
	m.bmu.Lock()
	if !m.closed {
		m.closed = true
		close(m.blockChan)
	}
	m.bmu.Unlock()
	return m.MockTransport.Close()
}
