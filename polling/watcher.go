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

// Package polling drives periodic memory watches over an ECU session
package polling

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	nisprog "github.com/ZaparooProject/go-nisprog"
)

// ErrAlreadyRunning is returned by Start on a running Watcher
var ErrAlreadyRunning = errors.New("watcher already running")

// Reader reads the watched word. *nisprog.Session implements it.
type Reader interface {
	WatchRead(ctx context.Context, addr uint32) ([]byte, error)
}

// Config holds Watcher settings
type Config struct {
	// Interrupter ends the watch when the user asks, like ctx does
	Interrupter nisprog.Interrupter
	// PollInterval is the gap between reads. Zero reads back to back,
	// which is what the K-line timing limits anyway.
	PollInterval time.Duration
	// OnlyChanges suppresses samples equal to the previous one
	OnlyChanges bool
}

// DefaultConfig returns the default watch settings
func DefaultConfig() *Config {
	return &Config{PollInterval: 50 * time.Millisecond}
}

// Sample is one read of the watched address
type Sample struct {
	Time    time.Time
	Data    []byte
	Address uint32
	Changed bool
}

// Metrics tracks Watcher activity
type Metrics struct {
	PollCycles      int64         // reads attempted
	PollErrors      int64         // reads that failed
	Changes         int64         // samples that differed from the previous one
	LastPollLatency time.Duration // duration of the last read
}

// Watcher polls 4 bytes at an address until stopped
type Watcher struct {
	reader   Reader
	config   *Config
	onSample func(Sample)
	stop     chan struct{}
	done     chan struct{}
	err      error
	last     []byte
	addr     uint32
	mu       sync.Mutex

	pollCycles      int64
	pollErrors      int64
	changes         int64
	lastPollLatency int64 // nanoseconds
}

// NewWatcher creates a watcher for addr. onSample may be nil.
func NewWatcher(reader Reader, addr uint32, config *Config, onSample func(Sample)) *Watcher {
	if config == nil {
		config = DefaultConfig()
	}
	return &Watcher{
		reader:   reader,
		addr:     addr,
		config:   config,
		onSample: onSample,
	}
}

// Run polls until ctx is done, the interrupter fires or a read fails.
// Only a failed read is reported as an error.
func (w *Watcher) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if w.config.PollInterval > 0 {
		ticker := time.NewTicker(w.config.PollInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		if w.interrupted(ctx) {
			return nil
		}
		if err := w.poll(ctx); err != nil {
			return err
		}
		if tick == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-w.stopChan():
			return nil
		case <-tick:
		}
	}
}

func (w *Watcher) interrupted(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	select {
	case <-w.stopChan():
		return true
	default:
	}
	return w.config.Interrupter != nil && w.config.Interrupter.Pending()
}

func (w *Watcher) stopChan() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stop
}

func (w *Watcher) poll(ctx context.Context) error {
	start := time.Now()
	data, err := w.reader.WatchRead(ctx, w.addr)
	atomic.AddInt64(&w.pollCycles, 1)
	atomic.StoreInt64(&w.lastPollLatency, time.Since(start).Nanoseconds())

	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		atomic.AddInt64(&w.pollErrors, 1)
		return fmt.Errorf("watch 0x%X: %w", w.addr, err)
	}

	w.mu.Lock()
	changed := w.last == nil || !bytes.Equal(data, w.last)
	if changed && w.last != nil {
		atomic.AddInt64(&w.changes, 1)
	}
	w.last = data
	w.mu.Unlock()

	if w.onSample != nil && (changed || !w.config.OnlyChanges) {
		w.onSample(Sample{Time: start, Address: w.addr, Data: data, Changed: changed})
	}
	return nil
}

// Start runs the watch in a goroutine. Wait or Stop collects the result.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done != nil {
		return ErrAlreadyRunning
	}
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	done := w.done

	go func() {
		defer close(done)
		err := w.Run(ctx)
		w.mu.Lock()
		w.err = err
		w.mu.Unlock()
	}()
	return nil
}

// Stop ends a watch started with Start and returns its result
func (w *Watcher) Stop() error {
	w.mu.Lock()
	stop, done := w.stop, w.done
	if stop != nil {
		select {
		case <-stop:
		default:
			close(stop)
		}
	}
	w.mu.Unlock()
	if done == nil {
		return nil
	}
	return w.Wait()
}

// Wait blocks until a started watch ends and returns its result
func (w *Watcher) Wait() error {
	w.mu.Lock()
	done := w.done
	w.mu.Unlock()
	if done == nil {
		return nil
	}
	<-done

	w.mu.Lock()
	defer w.mu.Unlock()
	w.done = nil
	w.stop = nil
	return w.err
}

// Last returns the most recent value read, nil before the first read
func (w *Watcher) Last() []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

// GetMetrics returns current operational metrics
func (w *Watcher) GetMetrics() Metrics {
	return Metrics{
		PollCycles:      atomic.LoadInt64(&w.pollCycles),
		PollErrors:      atomic.LoadInt64(&w.pollErrors),
		Changes:         atomic.LoadInt64(&w.changes),
		LastPollLatency: time.Duration(atomic.LoadInt64(&w.lastPollLatency)),
	}
}
