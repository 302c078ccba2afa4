// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package model

import (
	"errors"
	"fmt"
	"sync"
)

const (
	MinRegisters = 256
	MaxRegisters = 65536

	// MaxReadCount is the largest quantity a single read may request.
	MaxReadCount = 125
)

// ErrOutOfRange is matched by every *RangeError.
var ErrOutOfRange = errors.New("register range out of bounds")

// RangeError describes a rejected register access.
type RangeError struct {
	Address  int
	Quantity int
	Size     int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("register range [%d, +%d) invalid for table of %d", e.Address, e.Quantity, e.Size)
}

func (e *RangeError) Is(target error) bool {
	return target == ErrOutOfRange
}

// WriteHook observes every successful write. It runs while the table's write
// lock is held and must not call back into the Registers.
type WriteHook func(address uint16, quantity int)

// Registers is the holding register table. All access is serialized by a
// single RWMutex, so a multi-cell read never observes a half-applied write.
type Registers struct {
	mu    sync.RWMutex
	cells []uint16
	hook  WriteHook
}

// NewRegisters creates a zeroed table of size cells.
func NewRegisters(size int) (*Registers, error) {
	if size < MinRegisters || size > MaxRegisters {
		return nil, fmt.Errorf("register table size %d outside [%d, %d]", size, MinRegisters, MaxRegisters)
	}
	return &Registers{cells: make([]uint16, size)}, nil
}

// NewRegistersFrom wraps cells without copying. Persistence backends use it
// to hand over a file or mmap backed slice.
func NewRegistersFrom(cells []uint16) (*Registers, error) {
	if len(cells) < MinRegisters || len(cells) > MaxRegisters {
		return nil, fmt.Errorf("register table size %d outside [%d, %d]", len(cells), MinRegisters, MaxRegisters)
	}
	return &Registers{cells: cells}, nil
}

// Size returns the number of cells.
func (r *Registers) Size() int {
	return len(r.cells)
}

// OnWrite installs hook, replacing any previous one. A nil hook disables it.
func (r *Registers) OnWrite(hook WriteHook) {
	r.mu.Lock()
	r.hook = hook
	r.mu.Unlock()
}

// Read returns a copy of count cells starting at address.
func (r *Registers) Read(address uint16, count int) ([]uint16, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if count < 1 || count > MaxReadCount {
		return nil, r.rangeError(address, count)
	}
	if err := r.checkRange(address, count); err != nil {
		return nil, err
	}
	out := make([]uint16, count)
	copy(out, r.cells[address:])
	return out, nil
}

// WriteOne sets a single cell.
func (r *Registers) WriteOne(address, value uint16) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkRange(address, 1); err != nil {
		return err
	}
	r.cells[address] = value
	r.notify(address, 1)
	return nil
}

// WriteMany sets len(values) consecutive cells starting at address. Either
// all cells are written or none.
func (r *Registers) WriteMany(address uint16, values []uint16) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(values) == 0 {
		return r.rangeError(address, 0)
	}
	if err := r.checkRange(address, len(values)); err != nil {
		return err
	}
	copy(r.cells[address:], values)
	r.notify(address, len(values))
	return nil
}

func (r *Registers) checkRange(address uint16, count int) error {
	if int(address)+count > len(r.cells) {
		return r.rangeError(address, count)
	}
	return nil
}

func (r *Registers) rangeError(address uint16, count int) error {
	return &RangeError{Address: int(address), Quantity: count, Size: len(r.cells)}
}

func (r *Registers) notify(address uint16, quantity int) {
	if r.hook != nil {
		r.hook(address, quantity)
	}
}
