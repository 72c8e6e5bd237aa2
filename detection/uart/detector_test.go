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

package uart

import (
	"context"
	"testing"

	"github.com/ZaparooProject/go-nisprog/detection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldInclude(t *testing.T) {
	t.Parallel()
	tests := []struct {
		path string
		want bool
	}{
		{path: "/dev/ttyUSB0", want: true},
		{path: "/dev/ttyACM1", want: true},
		{path: "COM4", want: true},
		{path: "/dev/cu.usbserial-A50285BI", want: true},
		{path: "/dev/tty.usbserial-A50285BI", want: false},
		{path: "/dev/cu.Bluetooth-Incoming-Port", want: false},
		{path: "/dev/cu.debug-console", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, shouldInclude(tt.path))
		})
	}
}

func TestDescribe(t *testing.T) {
	t.Parallel()
	opts := detection.DefaultOptions()
	opts.IgnorePaths = []string{"/dev/ttyUSB9"}

	tests := []struct {
		name     string
		port     serialPort
		wantName string
		wantConf detection.Confidence
		wantOK   bool
	}{
		{
			name:     "known adapter",
			port:     serialPort{Path: "/dev/ttyUSB0", VIDPID: "0403:6001", IsUSB: true, SerialNumber: "A50285BI"},
			wantOK:   true,
			wantName: "FTDI FT232R",
			wantConf: detection.High,
		},
		{
			name:     "unknown USB bridge",
			port:     serialPort{Path: "/dev/ttyACM0", VIDPID: "1209:0001", IsUSB: true},
			wantOK:   true,
			wantName: "ttyACM0",
			wantConf: detection.Medium,
		},
		{name: "blocked", port: serialPort{Path: "/dev/ttyACM1", VIDPID: "2341:0043", IsUSB: true}},
		{name: "ignored", port: serialPort{Path: "/dev/ttyUSB9", VIDPID: "0403:6001", IsUSB: true}},
		{name: "built-in UART", port: serialPort{Path: "/dev/ttyS0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dev, ok := describe(tt.port, &opts)
			require.Equal(t, tt.wantOK, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.wantName, dev.Name)
			assert.Equal(t, tt.wantConf, dev.Confidence)
			assert.Equal(t, "kline", dev.Transport)
			assert.Equal(t, tt.port.Path, dev.Path)
		})
	}

	withUART := opts
	withUART.IncludeNonUSB = true
	dev, ok := describe(serialPort{Path: "/dev/ttyS0"}, &withUART)
	require.True(t, ok)
	assert.Equal(t, detection.Low, dev.Confidence)
}

func TestDetector(t *testing.T) {
	t.Parallel()

	d := New()
	assert.Equal(t, "kline", d.Transport())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.Detect(ctx, &detection.Options{})
	// either nothing to enumerate or the cancelled context stops the scan
	assert.Error(t, err)
}
