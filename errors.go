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
	"errors"
	"fmt"
)

// ErrorType classifies errors for retry decisions
type ErrorType int

const (
	// ErrorTypeTransient errors may clear on their own (noise, lost bytes)
	ErrorTypeTransient ErrorType = iota
	// ErrorTypePermanent errors will not clear by retrying
	ErrorTypePermanent
	// ErrorTypeTimeout errors are caused by the ECU not answering in time
	ErrorTypeTimeout
)

// String returns a short name for the error type
func (t ErrorType) String() string {
	switch t {
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypePermanent:
		return "permanent"
	case ErrorTypeTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("ErrorType(%d)", int(t))
	}
}

// Transport errors
var (
	ErrTransportTimeout    = errors.New("transport timeout")
	ErrTransportRead       = errors.New("transport read failed")
	ErrTransportWrite      = errors.New("transport write failed")
	ErrTransportClosed     = errors.New("transport closed")
	ErrCommunicationFailed = errors.New("communication failed")
	ErrNoResponse          = errors.New("no response from ECU")
	ErrFrameCorrupted      = errors.New("frame corrupted")
	ErrChecksumMismatch    = errors.New("checksum mismatch")
	ErrDeviceNotFound      = errors.New("device not found")
)

// Protocol and usage errors
var (
	ErrUnexpectedResponse   = errors.New("unexpected response")
	ErrNegativeResponse     = errors.New("negative response")
	ErrDataTooLarge         = errors.New("data too large")
	ErrInvalidParameter     = errors.New("invalid parameter")
	ErrMisuse               = errors.New("invalid operation for current state")
	ErrNotConnected         = errors.New("not connected")
	ErrUserAbort            = errors.New("aborted by user")
	ErrRetryBudgetExhausted = errors.New("retry budget exhausted")
	ErrNoKeyset             = errors.New("no keyset selected")
	ErrNoFlashDevice        = errors.New("no flash device selected")
)

// TransportError wraps a low level failure with the operation and port
type TransportError struct {
	Err       error
	Op        string
	Port      string
	Type      ErrorType
	Retryable bool
}

func (e *TransportError) Error() string {
	if e.Port != "" {
		return fmt.Sprintf("%s on %s: %v", e.Op, e.Port, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError creates a TransportError, deriving Retryable from the type
func NewTransportError(op, port string, err error, errType ErrorType) *TransportError {
	return &TransportError{
		Err:       err,
		Op:        op,
		Port:      port,
		Type:      errType,
		Retryable: errType != ErrorTypePermanent,
	}
}

// NewTimeoutError creates a retryable timeout error
func NewTimeoutError(op, port string) *TransportError {
	return &TransportError{
		Err:       ErrTransportTimeout,
		Op:        op,
		Port:      port,
		Type:      ErrorTypeTimeout,
		Retryable: true,
	}
}

// NewFrameCorruptedError creates a retryable frame corruption error
func NewFrameCorruptedError(op, port string) *TransportError {
	return &TransportError{
		Err:       ErrFrameCorrupted,
		Op:        op,
		Port:      port,
		Type:      ErrorTypeTransient,
		Retryable: true,
	}
}

// NewDataTooLargeError creates a permanent size error
func NewDataTooLargeError(op, port string) *TransportError {
	return &TransportError{
		Err:       ErrDataTooLarge,
		Op:        op,
		Port:      port,
		Type:      ErrorTypePermanent,
		Retryable: false,
	}
}

// IsRetryable reports whether err is worth another attempt
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable
	}

	switch err {
	case ErrTransportTimeout, ErrTransportRead, ErrTransportWrite,
		ErrCommunicationFailed, ErrNoResponse, ErrFrameCorrupted, ErrChecksumMismatch:
		return true
	default:
		return false
	}
}

// GetErrorType returns the classification of err
func GetErrorType(err error) ErrorType {
	if err == nil {
		return ErrorTypePermanent
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te.Type
	}

	switch err {
	case ErrTransportTimeout:
		return ErrorTypeTimeout
	case ErrTransportRead, ErrTransportWrite, ErrCommunicationFailed,
		ErrNoResponse, ErrFrameCorrupted, ErrChecksumMismatch:
		return ErrorTypeTransient
	default:
		return ErrorTypePermanent
	}
}

// ProtocolError reports a response with an unexpected code or length
type ProtocolError struct {
	Op   string
	Got  []byte
	Want byte
}

func (e *ProtocolError) Error() string {
	if len(e.Got) == 0 {
		return fmt.Sprintf("%s: empty response (want 0x%02X)", e.Op, e.Want)
	}
	return fmt.Sprintf("%s: unexpected response % X (want 0x%02X)", e.Op, e.Got, e.Want)
}

func (*ProtocolError) Unwrap() error {
	return ErrUnexpectedResponse
}

// NegativeResponseError is a decoded 7F <SID> <NRC> frame
type NegativeResponseError struct {
	Description string
	SID         byte
	NRC         byte
}

func (e *NegativeResponseError) Error() string {
	return fmt.Sprintf("SID 0x%02X rejected: %s", e.SID, e.Description)
}

func (*NegativeResponseError) Unwrap() error {
	return ErrNegativeResponse
}

// AbortError reports where a long operation stopped. Block is -1 when the
// operation is not block based.
type AbortError struct {
	Err     error
	Op      string
	Address uint32
	Block   int
}

func (e *AbortError) Error() string {
	if e.Block >= 0 {
		return fmt.Sprintf("%s aborted at block %d (0x%06X): %v", e.Op, e.Block, e.Address, e.Err)
	}
	return fmt.Sprintf("%s aborted at 0x%06X: %v", e.Op, e.Address, e.Err)
}

func (e *AbortError) Unwrap() error {
	return e.Err
}

func abortAt(op string, addr uint32, err error) *AbortError {
	return &AbortError{Op: op, Address: addr, Block: -1, Err: err}
}

func abortBlock(op string, block int, addr uint32, err error) *AbortError {
	return &AbortError{Op: op, Address: addr, Block: block, Err: err}
}
