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

// Transport is the half-duplex request/response link to the ECU.
// Implementations add and strip headers and checksums in Request, while
// Send and RecvExact give raw access for the protocols that parse frames
// themselves.
type Transport interface {
	// Send transmits one request frame without waiting for an answer
	Send(data []byte) error

	// RecvExact reads up to n raw bytes. On timeout it returns the bytes
	// received so far together with a timeout error.
	RecvExact(n int, timeout time.Duration) ([]byte, error)

	// Request sends one frame and returns the parsed response frame
	Request(data []byte) (*Response, error)

	// FlushInput discards any pending received bytes
	FlushInput() error

	// SetSpeed changes the line speed in bits per second
	SetSpeed(bps int) error

	// SetResponseTimeout sets the maximum response time and returns the
	// previous value
	SetResponseTimeout(d time.Duration) time.Duration

	// Close closes the transport connection
	Close() error

	// Type returns the transport type
	Type() TransportType
}

// Response is one decoded response frame. Data[0] is the response code.
type Response struct {
	Data        []byte
	BadChecksum bool
}

// Code returns the response code, or 0 for an empty frame
func (r *Response) Code() byte {
	if r == nil || len(r.Data) == 0 {
		return 0
	}
	return r.Data[0]
}

// Len returns the payload length including the response code
func (r *Response) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Data)
}

// TransportType represents the type of transport
type TransportType string

const (
	// TransportKLine represents a serial K-line adapter.
	TransportKLine TransportType = "kline"
	// TransportMock represents a mock transport for testing
	TransportMock TransportType = "mock"
)

// TransportCapability represents specific capabilities or behaviors of a transport
type TransportCapability string

const (
	// CapabilityShortHeaders indicates the ECU link is using headerless
	// frames, which the fast read relies on
	CapabilityShortHeaders TransportCapability = "short_headers"

	// CapabilityKeepalive indicates the transport sends periodic
	// TesterPresent frames on its own
	CapabilityKeepalive TransportCapability = "keepalive"

	// CapabilityHeaderControl indicates the header mode can be switched at runtime
	CapabilityHeaderControl TransportCapability = "header_control"
)

// TransportCapabilityChecker defines an interface for querying transport capabilities
type TransportCapabilityChecker interface {
	// HasCapability returns true if the transport has the specified capability
	HasCapability(capability TransportCapability) bool
}

// KeepaliveController is implemented by transports with a keepalive timer
type KeepaliveController interface {
	DisableKeepalive()
}

// HeaderController is implemented by transports that can switch header format
type HeaderController interface {
	SetShortHeaders(short bool)
}

// P3Controller is implemented by transports with configurable inter-request spacing
type P3Controller interface {
	SetP3(d time.Duration)
}

// Waker is implemented by transports that need a wake-up pattern before
// the first StartCommunication request
type Waker interface {
	Wakeup() error
}
