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
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/ZaparooProject/go-nisprog/keys"
	"gopkg.in/yaml.v3"
)

// KeyCandidates is how many ranked keysets are reported for an ECU-ID
const KeyCandidates = 3

// KeyAlgorithm names the SID27 key derivation of a keyset. The empty
// value means KeyAlgLinear.
type KeyAlgorithm string

const (
	// KeyAlgLinear is the vendor cipher keyed with the SID27 key ("algo1")
	KeyAlgLinear KeyAlgorithm = "linear"
	// KeyAlgXorShift is the table driven shift/xor variant ("algo2")
	KeyAlgXorShift KeyAlgorithm = "xorshift"
)

// Resolve builds the algorithm. scramble is the SID27 key and is only used
// by the linear variant.
func (a KeyAlgorithm) Resolve(cipher keys.LinearCipher, scramble uint32) (keys.Algorithm, error) {
	switch a {
	case "", KeyAlgLinear:
		lin, err := keys.NewLinear(cipher, scramble)
		if err != nil {
			return nil, err
		}
		return lin, nil
	case KeyAlgXorShift:
		return keys.XorShift{}, nil
	default:
		return nil, fmt.Errorf("unknown key algorithm %q: %w", string(a), ErrInvalidParameter)
	}
}

// Keyset holds the two secret codes needed to upload a kernel
type Keyset struct {
	Name   string       `yaml:"name"`
	Alg    KeyAlgorithm `yaml:"keyalg"`
	ECUIDs []string     `yaml:"ecuids"`
	S27    uint32       `yaml:"s27"`
	S36    uint32       `yaml:"s36"`
}

// UnlockAlgorithm returns the SID27 algorithm of the keyset
func (k *Keyset) UnlockAlgorithm(cipher keys.LinearCipher) (keys.Algorithm, error) {
	return k.Alg.Resolve(cipher, k.S27)
}

func (k *Keyset) String() string {
	return fmt.Sprintf("SID27 key=%08X, SID36 key1=%08X", k.S27, k.S36)
}

// KeysetCatalog is the list of known keysets with the ECU-IDs that use them
type KeysetCatalog struct {
	Keysets []Keyset `yaml:"keysets"`
}

// KeyCandidate is one ranked catalog match for an ECU-ID
type KeyCandidate struct {
	Keyset   *Keyset
	ECUID    string
	Distance int
}

// LoadKeysetCatalog reads a YAML keyset catalog from path
func LoadKeysetCatalog(path string) (*KeysetCatalog, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("failed to read keyset catalog: %w", err)
	}
	return ParseKeysetCatalog(data)
}

// ParseKeysetCatalog decodes a YAML keyset catalog
func ParseKeysetCatalog(data []byte) (*KeysetCatalog, error) {
	var cat KeysetCatalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("failed to parse keyset catalog: %w", err)
	}
	for i, ks := range cat.Keysets {
		switch ks.Alg {
		case "", KeyAlgLinear:
			if ks.S27 == 0 {
				return nil, fmt.Errorf("keyset %d (%s): missing s27 key: %w", i, ks.Name, ErrInvalidParameter)
			}
		case KeyAlgXorShift:
		default:
			return nil, fmt.Errorf("keyset %d (%s): unknown keyalg %q: %w", i, ks.Name, string(ks.Alg),
				ErrInvalidParameter)
		}
	}
	return &cat, nil
}

// BySID27 returns the catalog keyset using s27, or nil
func (c *KeysetCatalog) BySID27(s27 uint32) *Keyset {
	if c == nil {
		return nil
	}
	for i := range c.Keysets {
		if c.Keysets[i].S27 == s27 {
			return &c.Keysets[i]
		}
	}
	return nil
}

// Candidates ranks catalog keysets by how closely one of their ECU-IDs
// matches ecuid. At most n distinct keysets are returned, best first.
func (c *KeysetCatalog) Candidates(ecuid string, n int) []KeyCandidate {
	if c == nil || n <= 0 {
		return nil
	}

	var all []KeyCandidate
	for i := range c.Keysets {
		ks := &c.Keysets[i]
		best := KeyCandidate{Keyset: ks, Distance: -1}
		for _, id := range ks.ECUIDs {
			d := ECUIDDistance(ecuid, id)
			if best.Distance < 0 || d < best.Distance {
				best.Distance = d
				best.ECUID = id
			}
		}
		if best.Distance >= 0 {
			all = append(all, best)
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Distance < all[j].Distance
	})
	if len(all) > n {
		all = all[:n]
	}
	return all
}

// ECUIDDistance scores how different two ECU-IDs are. A mismatch near the
// start of the ID (platform and series letters) costs more than one near
// the end. Identical IDs score 0.
func ECUIDDistance(a, b string) int {
	a = strings.ToUpper(strings.TrimSpace(a))
	b = strings.ToUpper(strings.TrimSpace(b))
	n := max(len(a), len(b))

	dist := 0
	for i := range n {
		if i < len(a) && i < len(b) && a[i] == b[i] {
			continue
		}
		dist += n - i
	}
	return dist
}
