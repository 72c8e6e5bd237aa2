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
	"time"

	"github.com/ZaparooProject/go-nisprog/keys"
)

// SessionConfig contains the timing and layout parameters of a Session
type SessionConfig struct {
	// P3 is the minimum quiet time between a response and the next request
	P3 time.Duration `yaml:"p3"`
	// RxExtra is added to the short raw receive timeouts of the fast read
	// and kernel dump protocols
	RxExtra time.Duration `yaml:"rx_extra"`
	// KernelBaud is the line speed the kernel listens on after activation
	KernelBaud int `yaml:"kernel_baud"`
	// SubaruBaud is the line speed used for the Subaru payload upload
	SubaruBaud int `yaml:"subaru_baud"`
	// KernelSizeWarn is the padded payload size above which a warning is logged
	KernelSizeWarn int `yaml:"kernel_size_warn"`
	// DumpBatch is how many addresses are packed in one fast read request
	DumpBatch int `yaml:"dump_batch"`
	// EEPROMReadAddr is the EEPROM read routine address passed to the kernel
	EEPROMReadAddr uint32 `yaml:"eeprom_read_addr"`
	// SubaruLoadAddr is the RAM address the Subaru payload is uploaded to
	SubaruLoadAddr uint32 `yaml:"subaru_load_addr"`
	// SubaruBypass is the 4-byte pattern written right after the payload
	SubaruBypass uint32 `yaml:"subaru_bypass"`
	// FaultDelay is the pause before flushing input after a read fault
	FaultDelay time.Duration `yaml:"fault_delay"`
}

// DefaultSessionConfig returns default session configuration
func DefaultSessionConfig() *SessionConfig {
	return &SessionConfig{
		P3:             5 * time.Millisecond,
		RxExtra:        20 * time.Millisecond,
		KernelBaud:     62500,
		SubaruBaud:     15625,
		KernelSizeWarn: 16 * 1024,
		DumpBatch:      fastReadMaxLines,
		EEPROMReadAddr: 0,
		SubaruLoadAddr: 0xFFFF3000,
		SubaruBypass:   0,
		FaultDelay:     300 * time.Millisecond,
	}
}

// Validate checks the configuration for values the protocols cannot use
func (c *SessionConfig) Validate() error {
	switch {
	case c.P3 < 0:
		return fmt.Errorf("p3 must not be negative: %w", ErrInvalidParameter)
	case c.RxExtra < 0 || c.FaultDelay < 0:
		return fmt.Errorf("rx_extra and fault_delay must not be negative: %w", ErrInvalidParameter)
	case c.KernelBaud <= 0 || c.SubaruBaud <= 0:
		return fmt.Errorf("baud rates must be positive: %w", ErrInvalidParameter)
	case c.DumpBatch < 1 || c.DumpBatch > fastReadMaxLines:
		return fmt.Errorf("dump_batch must be 1..%d: %w", fastReadMaxLines, ErrInvalidParameter)
	case c.SubaruLoadAddr%4 != 0:
		return fmt.Errorf("subaru_load_addr must be 4-byte aligned: %w", ErrInvalidParameter)
	}
	return nil
}

// Option is a functional option for configuring a Session
type Option func(*Session) error

// WithConfig replaces the whole session configuration
func WithConfig(config *SessionConfig) Option {
	return func(s *Session) error {
		if config == nil {
			return fmt.Errorf("nil config: %w", ErrInvalidParameter)
		}
		if err := config.Validate(); err != nil {
			return err
		}
		cfg := *config
		s.config = &cfg
		return nil
	}
}

// WithKeyset preselects the keyset used for SecurityAccess and payload encryption
func WithKeyset(ks *Keyset) Option {
	return func(s *Session) error {
		s.keyset = ks
		s.keysetPinned = ks != nil
		return nil
	}
}

// WithKeysetCatalog sets the catalog used for keyset auto-selection
func WithKeysetCatalog(cat *KeysetCatalog) Option {
	return func(s *Session) error {
		s.catalog = cat
		return nil
	}
}

// WithFlashDevice selects the flash layout
func WithFlashDevice(dev *FlashDevice) Option {
	return func(s *Session) error {
		if dev != nil {
			if err := dev.Validate(); err != nil {
				return err
			}
		}
		s.device = dev
		return nil
	}
}

// WithLinearCipher supplies the vendor primitive behind the linear key variant
func WithLinearCipher(cipher keys.LinearCipher) Option {
	return func(s *Session) error {
		s.cipher = cipher
		return nil
	}
}

// WithInterrupter sets the user interrupt check polled between requests
func WithInterrupter(in Interrupter) Option {
	return func(s *Session) error {
		s.interrupt = in
		return nil
	}
}

// WithProgress sets the progress callback for long operations
func WithProgress(cb ProgressCallback) Option {
	return func(s *Session) error {
		s.progress = cb
		return nil
	}
}

// WithP3 sets the inter-request quiet time
func WithP3(p3 time.Duration) Option {
	return func(s *Session) error {
		if p3 < 0 {
			return fmt.Errorf("p3 must not be negative: %w", ErrInvalidParameter)
		}
		s.config.P3 = p3
		return nil
	}
}

// WithRxExtra sets the extra time added to raw receive timeouts
func WithRxExtra(extra time.Duration) Option {
	return func(s *Session) error {
		if extra < 0 {
			return fmt.Errorf("rx extra must not be negative: %w", ErrInvalidParameter)
		}
		s.config.RxExtra = extra
		return nil
	}
}

// WithEEPROMReadAddr sets the EEPROM read routine address for kernel dumps
func WithEEPROMReadAddr(addr uint32) Option {
	return func(s *Session) error {
		s.config.EEPROMReadAddr = addr
		return nil
	}
}

// WithKernelBaud sets the line speed used once the kernel runs
func WithKernelBaud(bps int) Option {
	return func(s *Session) error {
		if bps <= 0 {
			return fmt.Errorf("kernel baud must be positive: %w", ErrInvalidParameter)
		}
		s.config.KernelBaud = bps
		return nil
	}
}

// WithSubaruBypass sets the 4-byte pattern uploaded after a Subaru payload
func WithSubaruBypass(pattern uint32) Option {
	return func(s *Session) error {
		s.config.SubaruBypass = pattern
		return nil
	}
}
