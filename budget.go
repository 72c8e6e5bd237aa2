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

// Retry budget tuning
const (
	budgetMax             = 100
	budgetFaultPenalty    = 25
	budgetChecksumPenalty = 20
	budgetSuccessBonus    = 5
)

// RetryBudget limits how many faults a single read operation tolerates.
// Faults cost points, successes earn a few back, and the operation gives up
// once the budget reaches zero.
type RetryBudget struct {
	value int
}

// NewRetryBudget returns a full budget
func NewRetryBudget() *RetryBudget {
	return &RetryBudget{value: budgetMax}
}

// Value returns the remaining budget in [0, 100]
func (b *RetryBudget) Value() int {
	return b.value
}

// Fault charges penalty and reports whether the budget is exhausted
func (b *RetryBudget) Fault(penalty int) bool {
	b.value -= penalty
	if b.value <= 0 {
		b.value = 0
		return true
	}
	return false
}

// Success credits a completed step
func (b *RetryBudget) Success() {
	b.value = min(b.value+budgetSuccessBonus, budgetMax)
}

// Exhausted reports whether no retries are left
func (b *RetryBudget) Exhausted() bool {
	return b.value <= 0
}
