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

package polling

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	nisprog "github.com/ZaparooProject/go-nisprog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedReader returns values in order, repeating the last one
type scriptedReader struct {
	err    error
	values [][]byte
	addrs  []uint32
	mu     sync.Mutex
	failAt int
	calls  int
}

func (r *scriptedReader) WatchRead(_ context.Context, addr uint32) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.addrs = append(r.addrs, addr)
	if r.failAt > 0 && r.calls == r.failAt {
		return nil, r.err
	}
	i := r.calls - 1
	if i >= len(r.values) {
		i = len(r.values) - 1
	}
	return r.values[i], nil
}

func (r *scriptedReader) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// stopAfter is an interrupter that fires once n reads happened
func stopAfter(r *scriptedReader, n int) nisprog.Interrupter {
	return nisprog.InterruptFunc(func() bool { return r.Calls() >= n })
}

func TestWatcher_Run(t *testing.T) {
	t.Parallel()

	r := &scriptedReader{values: [][]byte{
		{1, 2, 3, 4},
		{1, 2, 3, 4},
		{1, 2, 3, 5},
		{1, 2, 3, 5},
	}}
	var samples []Sample
	w := NewWatcher(r, 0xFFFF8000, &Config{Interrupter: stopAfter(r, 4)}, func(s Sample) {
		samples = append(samples, s)
	})

	require.NoError(t, w.Run(context.Background()))
	require.Len(t, samples, 4)
	assert.True(t, samples[0].Changed)
	assert.False(t, samples[1].Changed)
	assert.True(t, samples[2].Changed)
	assert.Equal(t, uint32(0xFFFF8000), samples[2].Address)
	assert.Equal(t, []byte{1, 2, 3, 5}, w.Last())

	m := w.GetMetrics()
	assert.Equal(t, int64(4), m.PollCycles)
	assert.Equal(t, int64(1), m.Changes)
	assert.Equal(t, int64(0), m.PollErrors)
	for _, a := range r.addrs {
		assert.Equal(t, uint32(0xFFFF8000), a)
	}
}

func TestWatcher_OnlyChanges(t *testing.T) {
	t.Parallel()

	r := &scriptedReader{values: [][]byte{{0}, {0}, {1}, {1}, {2}}}
	var got [][]byte
	w := NewWatcher(r, 0x10, &Config{Interrupter: stopAfter(r, 5), OnlyChanges: true}, func(s Sample) {
		got = append(got, s.Data)
	})

	require.NoError(t, w.Run(context.Background()))
	assert.Equal(t, [][]byte{{0}, {1}, {2}}, got)
}

func TestWatcher_ReadFailureEndsWatch(t *testing.T) {
	t.Parallel()

	errBus := errors.New("bus fault")
	r := &scriptedReader{values: [][]byte{{1, 2, 3, 4}}, failAt: 3, err: errBus}
	w := NewWatcher(r, 0x20, &Config{}, nil)

	err := w.Run(context.Background())
	require.ErrorIs(t, err, errBus)
	assert.Contains(t, err.Error(), "0x20")
	assert.Equal(t, 3, r.Calls())
	assert.Equal(t, int64(1), w.GetMetrics().PollErrors)
}

func TestWatcher_ContextCancel(t *testing.T) {
	t.Parallel()

	r := &scriptedReader{values: [][]byte{{9, 9, 9, 9}}}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	w := NewWatcher(r, 0, &Config{PollInterval: 5 * time.Millisecond}, nil)
	require.NoError(t, w.Run(ctx))
	assert.Positive(t, r.Calls())
}

func TestWatcher_StartStop(t *testing.T) {
	t.Parallel()

	r := &scriptedReader{values: [][]byte{{1, 1, 1, 1}}}
	w := NewWatcher(r, 0x100, nil, nil)

	require.NoError(t, w.Start(context.Background()))
	require.ErrorIs(t, w.Start(context.Background()), ErrAlreadyRunning)
	require.Eventually(t, func() bool { return r.Calls() >= 2 }, time.Second, time.Millisecond)

	require.NoError(t, w.Stop())
	n := r.Calls()
	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, n, r.Calls())

	// a stopped watcher can be started again
	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Stop())
}

func TestWatcher_StopWithoutStart(t *testing.T) {
	t.Parallel()

	w := NewWatcher(&scriptedReader{values: [][]byte{{0}}}, 0, nil, nil)
	require.NoError(t, w.Stop())
	require.NoError(t, w.Wait())
	assert.Nil(t, w.Last())
}

var _ Reader = (*nisprog.Session)(nil)
