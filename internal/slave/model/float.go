// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package model

import "math"

// ReadFloat32 reads an IEEE-754 value stored across two cells, low word at
// address and high word at address+1.
func (r *Registers) ReadFloat32(address uint16) (float32, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := r.checkRange(address, 2); err != nil {
		return 0, err
	}
	bits := uint32(r.cells[address+1])<<16 | uint32(r.cells[address])
	return math.Float32frombits(bits), nil
}

// WriteFloat32 stores v across two cells in the same word order as ReadFloat32.
func (r *Registers) WriteFloat32(address uint16, v float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkRange(address, 2); err != nil {
		return err
	}
	r.cells[address], r.cells[address+1] = SplitFloat32(v)
	r.notify(address, 2)
	return nil
}

// SplitFloat32 returns the low and high words of v.
func SplitFloat32(v float32) (lo, hi uint16) {
	bits := math.Float32bits(v)
	return uint16(bits), uint16(bits >> 16)
}
