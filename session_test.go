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
	"encoding/binary"
	"testing"
	"time"

	testutil "github.com/ZaparooProject/go-nisprog/internal/testing"
	"github.com/ZaparooProject/go-nisprog/keys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testECUID = "8U92A"

const testCatalogYAML = `
keysets:
  - name: NPT_DDL2
    ecuids: ["8U92A", "8U91B"]
    s27: 0x57414C54
    s36: 0x1F4E3C4E
  - name: other
    ecuids: ["1N40C"]
    s27: 0x12345678
    s36: 0x9ABCDEF0
`

func testCatalog(t *testing.T) *KeysetCatalog {
	t.Helper()
	cat, err := ParseKeysetCatalog([]byte(testCatalogYAML))
	require.NoError(t, err)
	return cat
}

func testConfig() *SessionConfig {
	cfg := DefaultSessionConfig()
	cfg.FaultDelay = 0
	return cfg
}

// newECUMock answers StartCommunication with short headers and the ECU-ID
func newECUMock() *MockTransport {
	mock := NewMockTransport()
	mock.SetResponse(testutil.SIDStartComm, testutil.BuildStartCommResponse(0xEF, 0x8F))
	mock.SetResponse(testutil.SIDReadECUID, testutil.BuildECUIDResponse(testECUID))
	return mock
}

func newNormalSession(t *testing.T, mock *MockTransport, opts ...Option) *Session {
	t.Helper()
	s, err := NewSession(mock, append([]Option{WithConfig(testConfig())}, opts...)...)
	require.NoError(t, err)
	require.NoError(t, s.Connect(context.Background()))
	return s
}

func patternMemory(n int) []byte {
	mem := make([]byte, n)
	for i := range mem {
		mem[i] = byte(i*7 + 3)
	}
	return mem
}

// newFastReadMock serves mem through raw AC / 21 exchanges
func newFastReadMock(mem []byte) *MockTransport {
	mock := newECUMock()
	var pending []uint32
	mock.SetRawReply(testutil.SIDReadAC, func(req []byte) []byte {
		pending = pending[:0]
		for i := 2; i+5 <= len(req); i += 5 {
			pending = append(pending, binary.BigEndian.Uint32(req[i+1:i+5]))
		}
		return testutil.BuildACAck()
	})
	mock.SetRawReply(testutil.SIDReadData, func([]byte) []byte {
		data := make([]byte, len(pending))
		for i, a := range pending {
			data[i] = mem[a]
		}
		return testutil.BuildReadDataFrame(data)
	})
	return mock
}

func TestNewSession(t *testing.T) {
	t.Parallel()

	_, err := NewSession(nil)
	require.ErrorIs(t, err, ErrInvalidParameter)

	mock := NewMockTransport()
	s, err := NewSession(mock, WithP3(8*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, StateDisconnected, s.State())
	assert.Equal(t, 8*time.Millisecond, mock.P3())

	_, err = NewSession(mock, WithKernelBaud(0))
	require.ErrorIs(t, err, ErrInvalidParameter)
}

func TestSession_Connect(t *testing.T) {
	t.Parallel()

	mock := newECUMock()
	s := newNormalSession(t, mock, WithKeysetCatalog(testCatalog(t)))

	assert.Equal(t, StateNormal, s.State())
	assert.Equal(t, testECUID, s.ECUID())
	assert.True(t, mock.ShortHeaders())
	assert.Equal(t, []byte{0x1A, 0x81}, mock.SentWith(testutil.SIDReadECUID)[0])

	ks := s.Keyset()
	require.NotNil(t, ks)
	assert.Equal(t, uint32(0x57414C54), ks.S27)

	cands := s.KeyCandidates()
	require.Len(t, cands, 2)
	assert.Equal(t, 0, cands[0].Distance)

	err := s.Connect(context.Background())
	require.ErrorIs(t, err, ErrMisuse)
}

func TestSession_ConnectWithoutShortHeaders(t *testing.T) {
	t.Parallel()

	mock := newECUMock()
	mock.SetResponse(testutil.SIDStartComm, testutil.BuildStartCommResponse(0x8B, 0x8F))
	s := newNormalSession(t, mock)

	assert.False(t, mock.ShortHeaders())
	assert.Equal(t, StateNormal, s.State())

	_, err := s.FastRead(context.Background(), 0, 16, nil)
	require.ErrorIs(t, err, ErrMisuse)
}

func TestSession_ConnectErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		setup   func(*MockTransport)
		wantErr error
		name    string
	}{
		{
			name: "no StartCommunication answer",
			setup: func(m *MockTransport) {
				m.SetError(testutil.SIDStartComm, NewTimeoutError("Request", "mock"))
			},
			wantErr: ErrTransportTimeout,
		},
		{
			name: "ECU-ID rejected",
			setup: func(m *MockTransport) {
				m.SetResponse(testutil.SIDReadECUID, testutil.BuildNegativeResponse(0x1A, 0x12))
			},
			wantErr: ErrNegativeResponse,
		},
		{
			name: "ECU-ID too short",
			setup: func(m *MockTransport) {
				m.SetResponse(testutil.SIDReadECUID, []byte{0x5A, 0x81, '8'})
			},
			wantErr: ErrUnexpectedResponse,
		},
		{
			name: "ECU-ID corrupted",
			setup: func(m *MockTransport) {
				m.SetBadChecksum(testutil.SIDReadECUID, true)
			},
			wantErr: ErrChecksumMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			mock := newECUMock()
			tt.setup(mock)
			s, err := NewSession(mock)
			require.NoError(t, err)
			err = s.Connect(context.Background())
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSession_ConnectSubaru(t *testing.T) {
	t.Parallel()

	mock := newECUMock()
	mock.SetResponse(testutil.SIDSSMRead, testutil.BuildSSMIDResponse([]byte{0x3D, 0x12, 0x58, 0x40, 0x06}))

	s, err := NewSession(mock)
	require.NoError(t, err)
	require.NoError(t, s.ConnectSubaru(context.Background()))

	assert.Equal(t, "3D12584006", s.ECUID())
	req := mock.SentWith(testutil.SIDSSMRead)[0]
	assert.Equal(t, []byte{0xA8, 0x00, 0, 0, 1, 0, 0, 2, 0, 0, 3, 0, 0, 4, 0, 0, 5}, req)
	assert.Equal(t, 0, mock.GetCallCount(testutil.SIDReadECUID))
}

func TestSession_Disconnect(t *testing.T) {
	t.Parallel()

	mock := newECUMock()
	mock.SetResponse(0x82, []byte{0xC2})
	s := newNormalSession(t, mock, WithKeysetCatalog(testCatalog(t)))
	require.NotNil(t, s.Keyset())

	require.NoError(t, s.Disconnect())
	assert.Equal(t, StateDisconnected, s.State())
	assert.Empty(t, s.ECUID())
	assert.Nil(t, s.Keyset())
	assert.Empty(t, s.KeyCandidates())
	assert.Equal(t, 1, mock.GetCallCount(0x82))
}

func TestSession_DisconnectTearsDown(t *testing.T) {
	t.Parallel()

	mock := newECUMock()
	mock.SetResponse(0x82, []byte{0xC2})
	s := newNormalSession(t, mock, WithKeysetCatalog(testCatalog(t)))
	require.NoError(t, s.SetFlashDevice(testDevice))
	_, err := s.SetKeys(0x11111111, 0x22222222)
	require.NoError(t, err)

	require.NoError(t, s.Disconnect())
	assert.Nil(t, s.FlashDevice())
	assert.Nil(t, s.Keyset())
	assert.Empty(t, s.ECUID())
	_, err = s.UnlockAlgorithm()
	require.ErrorIs(t, err, ErrNoKeyset)

	// the next connect starts from the catalog again
	require.NoError(t, s.Connect(context.Background()))
	require.NotNil(t, s.Keyset())
	assert.Equal(t, "NPT_DDL2", s.Keyset().Name)
}

func TestSession_ConnectKeepsOptions(t *testing.T) {
	t.Parallel()

	pinned := &Keyset{Name: "custom", S27: 1, S36: 2}
	s := newNormalSession(t, newECUMock(),
		WithKeyset(pinned), WithKeysetCatalog(testCatalog(t)), WithFlashDevice(testDevice))

	assert.Same(t, pinned, s.Keyset())
	assert.Same(t, testDevice, s.FlashDevice())
	assert.Len(t, s.KeyCandidates(), 2)
}

func TestSession_UnlockAlgorithm(t *testing.T) {
	t.Parallel()

	cat, err := ParseKeysetCatalog([]byte(`
keysets:
  - name: xs
    keyalg: xorshift
    ecuids: ["8U92A"]
    s36: 0x1F4E3C4E
`))
	require.NoError(t, err)

	s := newNormalSession(t, newECUMock(), WithKeysetCatalog(cat))
	alg, err := s.UnlockAlgorithm()
	require.NoError(t, err)
	assert.Equal(t, "xorshift", alg.Name())

	// linear keysets need the cipher
	_, err = s.SetKeys(0x11111111, 0x22222222)
	require.NoError(t, err)
	_, err = s.UnlockAlgorithm()
	require.ErrorIs(t, err, keys.ErrNoCipher)

	ciphered, err := NewSession(NewMockTransport(),
		WithLinearCipher(xorCipher), WithKeyset(&Keyset{Name: "lin", S27: 1, S36: 2}))
	require.NoError(t, err)
	alg, err = ciphered.UnlockAlgorithm()
	require.NoError(t, err)
	assert.Equal(t, "linear", alg.Name())
}

func TestSession_SetKeys(t *testing.T) {
	t.Parallel()

	s, err := NewSession(NewMockTransport(), WithKeysetCatalog(testCatalog(t)))
	require.NoError(t, err)

	ks, err := s.SetKeys(0x12345678)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x9ABCDEF0), ks.S36)

	ks, err = s.SetKeys(0xAAAA5555, 0x11112222)
	require.NoError(t, err)
	assert.Equal(t, "custom", ks.Name)
	assert.Equal(t, uint32(0x11112222), s.Keyset().S36)

	_, err = s.SetKeys(0xDEADBEEF)
	require.ErrorIs(t, err, ErrNoKeyset)

	_, err = s.SetKeys(1, 2, 3)
	require.ErrorIs(t, err, ErrInvalidParameter)
}

func TestSession_RequireState(t *testing.T) {
	t.Parallel()

	mock := newECUMock()
	s, err := NewSession(mock)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.FastRead(ctx, 0, 16, nil)
	require.ErrorIs(t, err, ErrNotConnected)
	_, err = s.KernelID(ctx)
	require.ErrorIs(t, err, ErrNotConnected)
	err = s.RunKernel(ctx, []byte{1})
	require.ErrorIs(t, err, ErrNotConnected)
	assert.Empty(t, mock.Sent())

	require.NoError(t, s.Connect(ctx))
	sent := len(mock.Sent())

	_, err = s.KernelID(ctx)
	require.ErrorIs(t, err, ErrMisuse)
	_, err = s.ReadMemory(ctx, 0, 4)
	require.ErrorIs(t, err, ErrMisuse)
	err = s.WriteFlash(ctx, 0, make([]byte, 128))
	require.ErrorIs(t, err, ErrMisuse)
	err = s.RunSubaruKernel(ctx, []byte{1})
	require.ErrorIs(t, err, ErrMisuse)
	assert.Len(t, mock.Sent(), sent)
}

func TestSession_InitKernel(t *testing.T) {
	t.Parallel()

	mock := newECUMock()
	s := newNormalSession(t, mock, WithKernelBaud(31250))
	require.NoError(t, s.InitKernel(context.Background()))

	assert.Equal(t, StateKernel, s.State())
	assert.True(t, mock.KeepaliveDisabled())
	assert.Equal(t, []int{31250}, mock.Speeds())
	assert.GreaterOrEqual(t, mock.FlushCount(), 1)
}

func TestSession_InitKernelFailureRestoresState(t *testing.T) {
	t.Parallel()

	mock := newECUMock()
	s := newNormalSession(t, mock)
	mock.SetError(testutil.SIDStartComm, NewTimeoutError("Request", "mock"))

	err := s.InitKernel(context.Background())
	require.ErrorIs(t, err, ErrTransportTimeout)
	assert.Equal(t, StateNormal, s.State())
}

func TestSession_AttachKernel(t *testing.T) {
	t.Parallel()

	mock := newECUMock()
	s, err := NewSession(mock, WithConfig(testConfig()))
	require.NoError(t, err)

	require.NoError(t, s.AttachKernel(context.Background()))
	assert.Equal(t, StateKernel, s.State())
	assert.True(t, mock.ShortHeaders())
	assert.Equal(t, []int{DefaultSessionConfig().KernelBaud}, mock.Speeds())

	require.ErrorIs(t, s.AttachKernel(context.Background()), ErrMisuse)
}

func TestSession_AttachKernelSilent(t *testing.T) {
	t.Parallel()

	mock := newECUMock()
	mock.SetError(testutil.SIDStartComm, NewTimeoutError("Request", "mock"))
	s, err := NewSession(mock, WithConfig(testConfig()))
	require.NoError(t, err)

	require.ErrorIs(t, s.AttachKernel(context.Background()), ErrTransportTimeout)
	assert.Equal(t, StateDisconnected, s.State())
}

func TestStateString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "normal", StateNormal.String())
	assert.Equal(t, "kernel", StateKernel.String())
	assert.Equal(t, "State(7)", State(7).String())
}
