// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bissc

import "math/bits"

// ShiftChain models chained receive shifters. The pin shifter takes each
// new bit at its most significant end and shifts right; its least
// significant bit feeds the most significant end of the next shifter along
// the chain. Registers are read bit-swapped, as a peripheral's
// bit-reversed buffer alias would return them.
type ShiftChain struct {
	regs  []uint32
	order ShifterOrder
}

// NewShiftChain creates a chain of n receive shifters. With
// OrderDescending the pin shifter is the highest index, with
// OrderAscending it is index 0.
func NewShiftChain(n int, order ShifterOrder) *ShiftChain {
	if n < 1 {
		n = 1
	}
	return &ShiftChain{regs: make([]uint32, n), order: order}
}

// Len returns the number of shifters in the chain.
func (c *ShiftChain) Len() int {
	return len(c.regs)
}

// Reset clears every shifter.
func (c *ShiftChain) Reset() {
	for i := range c.regs {
		c.regs[i] = 0
	}
}

// Shift clocks one bit into the pin shifter.
func (c *ShiftChain) Shift(bit uint8) {
	in := uint32(bit & 1)
	n := len(c.regs)

	if c.order == OrderAscending {
		for k := n - 1; k >= 0; k-- {
			carry := in
			if k > 0 {
				carry = c.regs[k-1] & 1
			}
			c.regs[k] = c.regs[k]>>1 | carry<<31
		}
		return
	}

	for k := 0; k < n; k++ {
		carry := in
		if k < n-1 {
			carry = c.regs[k+1] & 1
		}
		c.regs[k] = c.regs[k]>>1 | carry<<31
	}
}

// Register returns the bit-swapped contents of shifter k, counted from the
// first receive shifter.
func (c *ShiftChain) Register(k int) uint32 {
	if k < 0 || k >= len(c.regs) {
		return 0
	}
	return bits.Reverse32(c.regs[k])
}
