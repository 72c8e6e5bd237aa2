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

// Package detection finds K-line adapters attached to the host
package detection

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	// ErrNoDevicesFound is returned when no adapter was found
	ErrNoDevicesFound = errors.New("no K-line adapters found")

	// ErrUnsupportedPlatform is returned when port enumeration is not
	// available on this platform
	ErrUnsupportedPlatform = errors.New("adapter detection not supported on this platform")

	// ErrDetectionTimeout is returned when ctx ends mid-scan
	ErrDetectionTimeout = errors.New("adapter detection timed out")
)

// Confidence ranks how likely a port is a K-line adapter
type Confidence int

const (
	// Low means a serial port with nothing pointing at a K-line cable
	Low Confidence = iota
	// Medium means a USB serial bridge of an unknown model
	Medium
	// High means a bridge model commonly used in K-line cables
	High
)

func (c Confidence) String() string {
	switch c {
	case High:
		return "high"
	case Medium:
		return "medium"
	default:
		return "low"
	}
}

// DeviceInfo describes one candidate adapter
type DeviceInfo struct {
	Metadata   map[string]string
	Transport  string
	Path       string
	Name       string
	Confidence Confidence
}

// Options controls a detection run
type Options struct {
	// IgnorePaths lists device paths never reported
	IgnorePaths []string
	// Blocklist lists VID:PID pairs never reported
	Blocklist []string
	// Timeout bounds the whole run
	Timeout time.Duration
	// IncludeNonUSB also reports built-in UARTs
	IncludeNonUSB bool
}

// DefaultOptions returns detection options with the default blocklist
func DefaultOptions() Options {
	return Options{
		Blocklist: DefaultBlocklist(),
		Timeout:   5 * time.Second,
	}
}

// Detector finds adapters on one kind of transport
type Detector interface {
	Transport() string
	Detect(ctx context.Context, opts *Options) ([]DeviceInfo, error)
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Detector{}
)

// RegisterDetector makes a detector available to DetectAll. Detector
// packages call it from init.
func RegisterDetector(d Detector) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[d.Transport()] = d
}

// DetectAll runs every registered detector and returns the devices found,
// best candidates first
func DetectAll(ctx context.Context, opts *Options) ([]DeviceInfo, error) {
	if opts == nil {
		def := DefaultOptions()
		opts = &def
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	registryMu.RLock()
	detectors := make([]Detector, 0, len(registry))
	for _, d := range registry {
		detectors = append(detectors, d)
	}
	registryMu.RUnlock()

	return detectWith(ctx, opts, detectors)
}

func detectWith(ctx context.Context, opts *Options, detectors []Detector) ([]DeviceInfo, error) {
	var devices []DeviceInfo
	var errs []error
	for _, d := range detectors {
		found, err := d.Detect(ctx, opts)
		if err != nil && !errors.Is(err, ErrNoDevicesFound) {
			errs = append(errs, err)
		}
		devices = append(devices, found...)
	}

	if len(devices) == 0 {
		if len(errs) > 0 {
			return nil, errors.Join(errs...)
		}
		return nil, ErrNoDevicesFound
	}

	sort.SliceStable(devices, func(i, j int) bool {
		if devices[i].Confidence != devices[j].Confidence {
			return devices[i].Confidence > devices[j].Confidence
		}
		return devices[i].Path < devices[j].Path
	})
	return devices, nil
}
