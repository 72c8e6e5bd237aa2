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

// Package iso14230 holds the subset of ISO14230 (KWP2000) service
// identifiers and negative response codes that the reprogramming engine
// exchanges with the ECU, plus the generic NRC decoder.
package iso14230

import "fmt"

// Standard service identifiers.
const (
	SIDStartDiagnosticSession = 0x10
	SIDECUReset               = 0x11
	SIDReadECUID              = 0x1A
	SIDReadDataByLocalID      = 0x21
	SIDReadMemoryByAddress    = 0x23
	SIDSecurityAccess         = 0x27
	SIDStartRoutineByLocalID  = 0x31
	SIDRequestDownload        = 0x34
	SIDTransferData           = 0x36
	SIDRequestTransferExit    = 0x37
	SIDWriteMemoryByAddress   = 0x3D
	SIDTesterPresent          = 0x3E
	SIDStartCommunication     = 0x81
	SIDStopCommunication      = 0x82
	SIDAccessTimingParameters = 0x83
)

const (
	// NegativeResponse is the first byte of every negative response frame.
	NegativeResponse = 0x7F

	// PositiveOffset is added to a SID to form its positive response code.
	PositiveOffset = 0x40
)

// Standard negative response codes.
const (
	NRCGeneralReject                          = 0x10
	NRCServiceNotSupported                    = 0x11
	NRCSubFunctionNotSupported                = 0x12
	NRCBusyRepeatRequest                      = 0x21
	NRCConditionsNotCorrect                   = 0x22
	NRCRoutineNotComplete                     = 0x23
	NRCRequestOutOfRange                      = 0x31
	NRCSecurityAccessDenied                   = 0x33
	NRCInvalidKey                             = 0x35
	NRCExceedNumberOfAttempts                 = 0x36
	NRCRequiredTimeDelayNotExpired            = 0x37
	NRCDownloadNotAccepted                    = 0x40
	NRCImproperDownloadType                   = 0x41
	NRCCannotDownloadToAddress                = 0x42
	NRCCannotDownloadNumberOfBytes            = 0x43
	NRCUploadNotAccepted                      = 0x50
	NRCImproperUploadType                     = 0x51
	NRCCannotUploadFromAddress                = 0x52
	NRCCannotUploadNumberOfBytes              = 0x53
	NRCTransferSuspended                      = 0x71
	NRCTransferAborted                        = 0x72
	NRCIllegalAddressInBlockTransfer          = 0x74
	NRCIllegalByteCountInBlockTransfer        = 0x75
	NRCIllegalBlockTransferType               = 0x76
	NRCBlockTransferDataChecksumError         = 0x77
	NRCResponsePending                        = 0x78
	NRCIncorrectByteCountDuringBlockTransfer  = 0x79
	NRCServiceNotSupportedInActiveDiagSession = 0x80
)

var nrcText = map[byte]string{
	NRCGeneralReject:                          "General reject",
	NRCServiceNotSupported:                    "Service not supported",
	NRCSubFunctionNotSupported:                "Sub-function not supported or invalid format",
	NRCBusyRepeatRequest:                      "Busy, repeat request",
	NRCConditionsNotCorrect:                   "Conditions not correct or request sequence error",
	NRCRoutineNotComplete:                     "Routine not complete or service in progress",
	NRCRequestOutOfRange:                      "Request out of range",
	NRCSecurityAccessDenied:                   "Security access denied",
	NRCInvalidKey:                             "Invalid key",
	NRCExceedNumberOfAttempts:                 "Exceeded number of security access attempts",
	NRCRequiredTimeDelayNotExpired:            "Required time delay not expired",
	NRCDownloadNotAccepted:                    "Download not accepted",
	NRCImproperDownloadType:                   "Improper download type",
	NRCCannotDownloadToAddress:                "Cannot download to specified address",
	NRCCannotDownloadNumberOfBytes:            "Cannot download number of bytes requested",
	NRCUploadNotAccepted:                      "Upload not accepted",
	NRCImproperUploadType:                     "Improper upload type",
	NRCCannotUploadFromAddress:                "Cannot upload from specified address",
	NRCCannotUploadNumberOfBytes:              "Cannot upload number of bytes requested",
	NRCTransferSuspended:                      "Transfer suspended",
	NRCTransferAborted:                        "Transfer aborted",
	NRCIllegalAddressInBlockTransfer:          "Illegal address in block transfer",
	NRCIllegalByteCountInBlockTransfer:        "Illegal byte count in block transfer",
	NRCIllegalBlockTransferType:               "Illegal block transfer type",
	NRCBlockTransferDataChecksumError:         "Block transfer data checksum error",
	NRCResponsePending:                        "Request correctly received, response pending",
	NRCIncorrectByteCountDuringBlockTransfer:  "Incorrect byte count during block transfer",
	NRCServiceNotSupportedInActiveDiagSession: "Service not supported in active diagnostic session",
}

// Positive returns the positive response code for sid.
func Positive(sid byte) byte {
	return sid + PositiveOffset
}

// IsNegative reports whether data is a 7F <SID> <NRC> frame.
func IsNegative(data []byte) bool {
	return len(data) >= 3 && data[0] == NegativeResponse
}

// DescribeNRC returns the standard text for nrc and whether it is known.
func DescribeNRC(nrc byte) (string, bool) {
	text, ok := nrcText[nrc]
	return text, ok
}

// DecodeResponse describes a 7F <SID> <NRC> frame with its standard meaning.
// Frames that are not negative responses are described as such.
func DecodeResponse(data []byte) string {
	if !IsNegative(data) {
		if len(data) == 0 {
			return "empty response"
		}
		return fmt.Sprintf("not a negative response (0x%02X)", data[0])
	}

	sid, nrc := data[1], data[2]
	if text, ok := DescribeNRC(nrc); ok {
		return fmt.Sprintf("%s (SID 0x%02X, NRC 0x%02X)", text, sid, nrc)
	}
	return fmt.Sprintf("unknown negative response (SID 0x%02X, NRC 0x%02X)", sid, nrc)
}
