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
	"context"
	"fmt"
)

// Interrupter reports whether the user asked to stop a long operation.
// Pending must not block.
type Interrupter interface {
	Pending() bool
}

// InterruptFunc adapts a plain function to the Interrupter interface
type InterruptFunc func() bool

// Pending implements Interrupter
func (f InterruptFunc) Pending() bool {
	return f()
}

// checkpoint is the cooperative cancellation point between requests.
// An in-flight request is never abandoned, so cancellation only takes
// effect here.
func (s *Session) checkpoint(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}
	if s.interrupt != nil && s.interrupt.Pending() {
		return ErrUserAbort
	}
	return nil
}
