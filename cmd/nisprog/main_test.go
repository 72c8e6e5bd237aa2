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

package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	nisprog "github.com/ZaparooProject/go-nisprog"
	testutil "github.com/ZaparooProject/go-nisprog/internal/testing"
	"github.com/ZaparooProject/go-nisprog/keys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInterrupter struct {
	resets int
}

func (*fakeInterrupter) Pending() bool { return false }

func (f *fakeInterrupter) Reset() { f.resets++ }

func newTestApp(t *testing.T, catalog string) (*app, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	a := &app{cfg: defaultConfig(), out: &out, interrupt: &fakeInterrupter{}}
	if catalog != "" {
		cat, err := nisprog.ParseKeysetCatalog([]byte(catalog))
		require.NoError(t, err)
		a.catalog = cat
	}
	return a, &out
}

const testCatalog = `
keysets:
  - name: ks-a
    ecuids: [1AB2C, 1AB3C]
    s27: 0x11111111
    s36: 0x22222222
  - name: ks-b
    ecuids: [4XK9Z]
    s27: 0x33333333
    s36: 0x44444444
`

func TestParseNumber(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    uint32
		wantErr bool
	}{
		{in: "1234", want: 1234},
		{in: "0x1E4A0", want: 0x1E4A0},
		{in: "FFFF8000h", want: 0xFFFF8000},
		{in: " 0x10 ", want: 0x10},
		{in: "0x100000000", wantErr: true},
		{in: "zz", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := parseNumber(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, nisprog.ErrInvalidParameter)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFlashFlags(t *testing.T) {
	t.Parallel()

	rest, all, live := flashFlags([]string{"new.bin", "ALL", "orig.bin", "live"})
	assert.Equal(t, []string{"new.bin", "orig.bin"}, rest)
	assert.True(t, all)
	assert.True(t, live)

	rest, all, live = flashFlags([]string{"new.bin"})
	assert.Equal(t, []string{"new.bin"}, rest)
	assert.False(t, all)
	assert.False(t, live)
}

func TestLookupCommand(t *testing.T) {
	t.Parallel()

	for _, c := range commands {
		got, ok := lookupCommand(c.name)
		require.True(t, ok, c.name)
		assert.Equal(t, c.name, got.name)
		assert.NotNil(t, got.run, c.name)
		assert.True(t, c.maxArgs < 0 || c.maxArgs >= c.minArgs, c.name)
	}

	_, ok := lookupCommand("format")
	assert.False(t, ok)
}

func TestApp_ExecUsage(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		wantErr string
		args    []string
	}{
		{name: "unknown", args: []string{"format", "c:"}, wantErr: `unknown command "format"`},
		{name: "too few", args: []string{"dump", "rom"}, wantErr: "usage: dump <rom|eeprom>"},
		{name: "too many", args: []string{"kernelid", "x"}, wantErr: "usage: kernelid"},
		{name: "flrom too many", args: []string{"flrom", "a", "b", "c", "d", "e"}, wantErr: "usage: flrom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a, _ := newTestApp(t, "")
			err := a.exec(context.Background(), tt.args)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestApp_ExecHelp(t *testing.T) {
	t.Parallel()

	a, out := newTestApp(t, "")
	require.NoError(t, a.exec(context.Background(), []string{"help"}))
	assert.Contains(t, out.String(), "flrom")
	assert.Contains(t, out.String(), "<rom> [orig] [all] [live]")
	assert.Contains(t, out.String(), "sid27")
	assert.Equal(t, 1, a.interrupt.(*fakeInterrupter).resets)
}

func TestApp_Keys(t *testing.T) {
	t.Parallel()

	a, out := newTestApp(t, testCatalog)
	require.NoError(t, a.exec(context.Background(), []string{"keys"}))
	assert.Contains(t, out.String(), "ks-a")
	assert.Contains(t, out.String(), "SID27 key=33333333")

	out.Reset()
	require.NoError(t, a.exec(context.Background(), []string{"keys", "4XK9A"}))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "ks-b")
	assert.Contains(t, lines[0], "distance 1")

	b, _ := newTestApp(t, "")
	require.ErrorIs(t, b.exec(context.Background(), []string{"keys"}), nisprog.ErrNoKeyset)
}

func TestApp_SetDev(t *testing.T) {
	t.Parallel()

	a, out := newTestApp(t, "")
	require.NoError(t, a.exec(context.Background(), []string{"setdev"}))
	assert.Contains(t, out.String(), "SH7055")

	require.NoError(t, a.exec(context.Background(), []string{"setdev", "sh7058"}))
	assert.Equal(t, "7058", a.cfg.FlashDevice)

	require.ErrorIs(t, a.exec(context.Background(), []string{"setdev", "7099"}), nisprog.ErrInvalidParameter)
}

// newSID27App wires a session whose ECU answers one SecurityAccess exchange
func newSID27App(t *testing.T, ks *nisprog.Keyset) (*app, *bytes.Buffer, *nisprog.MockTransport) {
	t.Helper()
	seed := [4]byte{0x11, 0x22, 0x33, 0x44}
	mock := nisprog.NewMockTransport()
	mock.SetResponse(testutil.SIDStartComm, testutil.BuildStartCommResponse(0xEF, 0x8F))
	mock.SetResponse(testutil.SIDReadECUID, testutil.BuildECUIDResponse("8U92A"))
	mock.QueueResponse(testutil.SIDSecurity,
		testutil.BuildSeedResponse(seed),
		testutil.BuildPositiveResponse(testutil.SIDSecurity, 0x02))

	s, err := nisprog.NewSession(mock, nisprog.WithKeyset(ks))
	require.NoError(t, err)
	a, out := newTestApp(t, "")
	a.session = s
	return a, out, mock
}

func TestApp_SID27(t *testing.T) {
	t.Parallel()

	a, out, mock := newSID27App(t, &nisprog.Keyset{Name: "xs", Alg: nisprog.KeyAlgXorShift, S36: 1})
	require.NoError(t, a.exec(context.Background(), []string{"sid27"}))
	assert.Contains(t, out.String(), "Connected, ECUID 8U92A")
	assert.Contains(t, out.String(), "SID27 unlocked with xorshift")

	reqs := mock.SentWith(testutil.SIDSecurity)
	require.Len(t, reqs, 2)
	key := keys.XorShift{}.Key([4]byte{0x11, 0x22, 0x33, 0x44})
	assert.Equal(t, append([]byte{0x27, 0x02}, key[:]...), reqs[1])
}

func TestApp_SID27Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		wantErr error
		name    string
		args    []string
	}{
		{name: "unknown algorithm", args: []string{"sid27", "feistel"}, wantErr: nisprog.ErrInvalidParameter},
		{name: "linear without cipher", args: []string{"sid27", "LINEAR"}, wantErr: keys.ErrNoCipher},
		{name: "linear keyset without cipher", args: []string{"sid27"}, wantErr: keys.ErrNoCipher},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a, _, mock := newSID27App(t, &nisprog.Keyset{Name: "lin", S27: 0x11111111, S36: 2})
			require.ErrorIs(t, a.exec(context.Background(), tt.args), tt.wantErr)
			assert.Equal(t, 0, mock.GetCallCount(testutil.SIDSecurity))
		})
	}
}

func TestApp_FlashDeviceAfterDisconnect(t *testing.T) {
	t.Parallel()

	s, err := nisprog.NewSession(nisprog.NewMockTransport())
	require.NoError(t, err)
	a, _ := newTestApp(t, "")
	a.session = s

	_, err = a.flashDevice(s)
	require.ErrorIs(t, err, nisprog.ErrNoFlashDevice)

	require.NoError(t, a.exec(context.Background(), []string{"setdev", "7055"}))
	require.NotNil(t, s.FlashDevice())
	require.NoError(t, a.exec(context.Background(), []string{"disc"}))
	assert.Nil(t, s.FlashDevice())

	dev, err := a.flashDevice(s)
	require.NoError(t, err)
	assert.Equal(t, "7055", dev.Name)
	assert.Same(t, dev, s.FlashDevice())
}

func TestApp_DumpBadSpace(t *testing.T) {
	t.Parallel()

	a, _ := newTestApp(t, "")
	err := a.exec(context.Background(), []string{"dump", "ram", "0", "16", "out.bin"})
	require.ErrorIs(t, err, nisprog.ErrInvalidParameter)
	assert.Nil(t, a.session)
}

func TestApp_Shell(t *testing.T) {
	t.Parallel()

	a, out := newTestApp(t, "")
	err := a.shell(context.Background(), strings.NewReader("\nbogus\nhelp\nquit\nhelp\n"))
	require.NoError(t, err)
	assert.Contains(t, out.String(), `unknown command "bogus"`)
	assert.Equal(t, 1, strings.Count(out.String(), "leave the shell"))
}

func TestDescribeError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err  error
		name string
		want string
	}{
		{name: "no cipher", err: fmt.Errorf("runkernel: %w", keys.ErrNoCipher), want: "sprunkernel works without it"},
		{name: "user abort", err: nisprog.ErrUserAbort, want: "interrupted"},
		{
			name: "abort error",
			err:  &nisprog.AbortError{Op: "dump", Address: 0x1234, Err: nisprog.ErrRetryBudgetExhausted},
			want: "last good address 0x1234",
		},
		{name: "plain", err: errors.New("boom"), want: "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Contains(t, describeError(tt.err), tt.want)
		})
	}
}

func TestFormatProgress(t *testing.T) {
	t.Parallel()

	p := nisprog.Progress{Phase: "dump", Done: 512, Total: 1024, Rate: 800, ETA: 12 * time.Second}
	got := formatProgress(p, 60)
	// one column is left free for the cursor
	assert.Len(t, got, 59)
	assert.True(t, strings.HasPrefix(got, "dump     ["))
	assert.Contains(t, got, " 50%")
	assert.Contains(t, got, "ETA   12s")
	assert.Equal(t, 11, strings.Count(got, "#"))
	assert.Equal(t, 12, strings.Count(got, "."))

	narrow := formatProgress(p, 20)
	assert.NotContains(t, narrow, "[")
	assert.Contains(t, narrow, "50%")
}

func TestReadYes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    bool
		wantErr bool
	}{
		{in: "y\n", want: true},
		{in: "YES\n", want: true},
		{in: " yes ", want: true},
		{in: "n\n"},
		{in: "\n"},
		{in: "yess\n"},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := readYes(bufio.NewReader(strings.NewReader(tt.in)))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestImageDigest(t *testing.T) {
	t.Parallel()

	assert.Equal(t,
		"blake2b-256:0e5751c026e543b2e8ab2eb06099daa1d1e5df47778f7787faab45cdf12fe3a8",
		imageDigest(nil))
	assert.NotEqual(t, imageDigest([]byte{0}), imageDigest([]byte{1}))
}
