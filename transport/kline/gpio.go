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

package kline

import (
	"fmt"

	nisprog "github.com/ZaparooProject/go-nisprog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// WithGPIOInit drives the fast init pulse on a GPIO pin instead of a
// UART break. This is for bare UART plus transceiver setups (L9637 and
// friends) where the pin gates the transceiver TX input.
func WithGPIOInit(pinName string) Option {
	return func(t *Transport) error {
		if _, err := host.Init(); err != nil {
			return fmt.Errorf("failed to initialize periph host: %w", err)
		}
		pin := gpioreg.ByName(pinName)
		if pin == nil {
			return fmt.Errorf("gpio %s: %w", pinName, nisprog.ErrDeviceNotFound)
		}
		return withInitPin(pin)(t)
	}
}

func withInitPin(pin gpio.PinIO) Option {
	return func(t *Transport) error {
		// idle high, the transceiver passes UART TX through
		if err := pin.Out(gpio.High); err != nil {
			return fmt.Errorf("gpio %s: %w", pin.Name(), err)
		}
		t.initPin = pin
		return nil
	}
}
