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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionConfig_Validate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		modify  func(*SessionConfig)
		name    string
		wantErr bool
	}{
		{name: "defaults", modify: func(*SessionConfig) {}},
		{name: "negative p3", modify: func(c *SessionConfig) { c.P3 = -time.Millisecond }, wantErr: true},
		{name: "negative rx extra", modify: func(c *SessionConfig) { c.RxExtra = -1 }, wantErr: true},
		{name: "negative fault delay", modify: func(c *SessionConfig) { c.FaultDelay = -1 }, wantErr: true},
		{name: "zero kernel baud", modify: func(c *SessionConfig) { c.KernelBaud = 0 }, wantErr: true},
		{name: "zero subaru baud", modify: func(c *SessionConfig) { c.SubaruBaud = 0 }, wantErr: true},
		{name: "empty batch", modify: func(c *SessionConfig) { c.DumpBatch = 0 }, wantErr: true},
		{name: "batch too large", modify: func(c *SessionConfig) { c.DumpBatch = fastReadMaxLines + 1 }, wantErr: true},
		{name: "single line batch", modify: func(c *SessionConfig) { c.DumpBatch = 1 }},
		{name: "unaligned load address", modify: func(c *SessionConfig) { c.SubaruLoadAddr = 0xFFFF3002 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultSessionConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidParameter)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestSessionOptions(t *testing.T) {
	t.Parallel()

	s, err := NewSession(NewMockTransport(),
		WithP3(7*time.Millisecond),
		WithRxExtra(30*time.Millisecond),
		WithEEPROMReadAddr(0x01E4A0),
		WithKernelBaud(31250),
		WithSubaruBypass(0x12345678),
	)
	require.NoError(t, err)
	assert.Equal(t, 7*time.Millisecond, s.config.P3)
	assert.Equal(t, 30*time.Millisecond, s.config.RxExtra)
	assert.Equal(t, uint32(0x01E4A0), s.config.EEPROMReadAddr)
	assert.Equal(t, 31250, s.config.KernelBaud)
	assert.Equal(t, uint32(0x12345678), s.config.SubaruBypass)
}

func TestSessionOptions_Invalid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		opt  Option
		name string
	}{
		{name: "nil config", opt: WithConfig(nil)},
		{name: "invalid config", opt: WithConfig(&SessionConfig{})},
		{name: "negative p3", opt: WithP3(-1)},
		{name: "negative rx extra", opt: WithRxExtra(-1)},
		{name: "zero kernel baud", opt: WithKernelBaud(0)},
		{name: "broken flash device", opt: WithFlashDevice(&FlashDevice{
			Name: "broken", ROMSize: 0x1000, Blocks: []FlashBlock{{Start: 0, Len: 0x2000}},
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewSession(NewMockTransport(), tt.opt)
			require.ErrorIs(t, err, ErrInvalidParameter)
		})
	}
}

func TestWithConfig_Copies(t *testing.T) {
	t.Parallel()

	cfg := DefaultSessionConfig()
	s, err := NewSession(NewMockTransport(), WithConfig(cfg))
	require.NoError(t, err)

	cfg.KernelBaud = 1
	assert.Equal(t, 62500, s.config.KernelBaud)
}
