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

// Package uart detects USB serial K-line adapters
package uart

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ZaparooProject/go-nisprog/detection"
	"go.bug.st/serial/enumerator"
)

// serialPort is one enumerated port, platform independent
type serialPort struct {
	Path         string
	VIDPID       string
	Product      string
	SerialNumber string
	IsUSB        bool
}

func enumeratePorts() ([]serialPort, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", detection.ErrUnsupportedPlatform, err)
	}
	ports := make([]serialPort, 0, len(details))
	for _, d := range details {
		p := serialPort{
			Path:         d.Name,
			Product:      d.Product,
			SerialNumber: d.SerialNumber,
			IsUSB:        d.IsUSB,
		}
		if d.IsUSB {
			p.VIDPID = detection.ParseVIDPID(d.VID + ":" + d.PID)
		}
		ports = append(ports, p)
	}
	return ports, nil
}

type detector struct{}

// New creates a serial port detector
func New() detection.Detector {
	return &detector{}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return "kline"
}

// Detect lists serial ports that could carry a K-line adapter
func (*detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	ports, err := enumeratePorts()
	if err != nil {
		return nil, err
	}

	devices := make([]detection.DeviceInfo, 0, len(ports))
	for _, p := range ports {
		select {
		case <-ctx.Done():
			return devices, detection.ErrDetectionTimeout
		default:
		}

		if dev, ok := describe(p, opts); ok {
			devices = append(devices, dev)
		}
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

func describe(p serialPort, opts *detection.Options) (detection.DeviceInfo, bool) {
	if !shouldInclude(p.Path) || detection.IsPathIgnored(p.Path, opts.IgnorePaths) {
		return detection.DeviceInfo{}, false
	}
	if !p.IsUSB && !opts.IncludeNonUSB {
		return detection.DeviceInfo{}, false
	}
	if p.VIDPID != "" && detection.IsBlocked(p.VIDPID, opts.Blocklist) {
		return detection.DeviceInfo{}, false
	}

	dev := detection.DeviceInfo{
		Transport:  "kline",
		Path:       p.Path,
		Name:       filepath.Base(p.Path),
		Confidence: detection.Low,
		Metadata:   map[string]string{},
	}
	if p.IsUSB {
		dev.Confidence = detection.Medium
		dev.Metadata["vidpid"] = p.VIDPID
	}
	if name, ok := detection.AdapterName(p.VIDPID); ok {
		dev.Confidence = detection.High
		dev.Name = name
	}
	if p.Product != "" {
		dev.Metadata["product"] = p.Product
	}
	if p.SerialNumber != "" {
		dev.Metadata["serial"] = p.SerialNumber
	}
	return dev, true
}

// shouldInclude drops Bluetooth and system ports
func shouldInclude(path string) bool {
	name := strings.ToLower(filepath.Base(path))
	for _, skip := range []string{"bluetooth", "debug-console", "wlan", "airpod"} {
		if strings.Contains(name, skip) {
			return false
		}
	}
	// macOS lists every device twice, the tty.* side blocks on open
	return !strings.HasPrefix(name, "tty.")
}
