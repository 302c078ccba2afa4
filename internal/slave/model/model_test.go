// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package model

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTable(t *testing.T, size int) *Registers {
	t.Helper()
	r, err := NewRegisters(size)
	require.NoError(t, err)
	return r
}

func TestNewRegisters_Size(t *testing.T) {
	_, err := NewRegisters(MinRegisters - 1)
	assert.Error(t, err)
	_, err = NewRegisters(MaxRegisters + 1)
	assert.Error(t, err)

	r := newTable(t, MaxRegisters)
	assert.Equal(t, MaxRegisters, r.Size())

	_, err = NewRegistersFrom(make([]uint16, 10))
	assert.Error(t, err)
}

func TestRegisters_WriteThenRead(t *testing.T) {
	r := newTable(t, 256)

	require.NoError(t, r.WriteOne(5, 100))
	got, err := r.Read(5, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint16{100}, got)

	require.NoError(t, r.WriteMany(1, []uint16{0x000A, 0x0102}))
	got, err = r.Read(0, 3)
	require.NoError(t, err)
	assert.Equal(t, []uint16{0, 0x000A, 0x0102}, got)
}

func TestRegisters_ReadReturnsCopy(t *testing.T) {
	r := newTable(t, 256)
	got, err := r.Read(0, 2)
	require.NoError(t, err)
	got[0] = 0xFFFF

	again, err := r.Read(0, 2)
	require.NoError(t, err)
	assert.Zero(t, again[0])
}

func TestRegisters_RangeErrors(t *testing.T) {
	r := newTable(t, 256)

	tests := []struct {
		name string
		op   func() error
	}{
		{"ReadZero", func() error { _, err := r.Read(0, 0); return err }},
		{"ReadTooMany", func() error { _, err := r.Read(0, MaxReadCount+1); return err }},
		{"ReadPastEnd", func() error { _, err := r.Read(255, 2); return err }},
		{"WriteOnePastEnd", func() error { return r.WriteOne(256, 1) }},
		{"WriteManyEmpty", func() error { return r.WriteMany(0, nil) }},
		{"WriteManyPastEnd", func() error { return r.WriteMany(254, []uint16{1, 2, 3}) }},
		{"FloatPastEnd", func() error { _, err := r.ReadFloat32(255); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.op()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrOutOfRange)
			var re *RangeError
			assert.True(t, errors.As(err, &re))
		})
	}

	// A failed multi write leaves every cell untouched.
	got, err := r.Read(254, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint16{0, 0}, got)
}

func TestRegisters_LastCell(t *testing.T) {
	r := newTable(t, MaxRegisters)
	require.NoError(t, r.WriteOne(0xFFFF, 7))
	got, err := r.Read(0xFFFF, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint16{7}, got)

	_, err = r.Read(0xFFFF, 2)
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = r.ReadFloat32(0xFFFF)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestRegisters_Float32WordOrder(t *testing.T) {
	r := newTable(t, 256)
	require.NoError(t, r.WriteFloat32(10, 1.5))

	// 1.5 = 0x3FC00000
	got, err := r.Read(10, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint16{0x0000, 0x3FC0}, got)

	f, err := r.ReadFloat32(10)
	require.NoError(t, err)
	assert.Equal(t, float32(1.5), f)

	lo, hi := SplitFloat32(1.5)
	assert.Equal(t, uint16(0x0000), lo)
	assert.Equal(t, uint16(0x3FC0), hi)
}

func TestRegisters_OnWrite(t *testing.T) {
	r := newTable(t, 256)
	type call struct {
		address  uint16
		quantity int
	}
	var calls []call
	r.OnWrite(func(address uint16, quantity int) {
		calls = append(calls, call{address, quantity})
	})

	require.NoError(t, r.WriteOne(3, 1))
	require.NoError(t, r.WriteMany(4, []uint16{1, 2, 3}))
	require.NoError(t, r.WriteFloat32(8, 2))
	assert.Error(t, r.WriteOne(300, 1))

	assert.Equal(t, []call{{3, 1}, {4, 3}, {8, 2}}, calls)
}

func TestRegisters_OnWriteFullTable(t *testing.T) {
	r := newTable(t, MaxRegisters)
	var quantity int
	r.OnWrite(func(address uint16, q int) { quantity = q })

	require.NoError(t, r.WriteMany(0, make([]uint16, MaxRegisters)))
	assert.Equal(t, MaxRegisters, quantity)
}

func TestRegisters_NoTornReads(t *testing.T) {
	r := newTable(t, 256)
	const n = 8

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		values := make([]uint16, n)
		for v := uint16(1); ; v++ {
			select {
			case <-stop:
				return
			default:
			}
			for i := range values {
				values[i] = v
			}
			_ = r.WriteMany(0, values)
		}
	}()

	for i := 0; i < 2000; i++ {
		got, err := r.Read(0, n)
		require.NoError(t, err)
		for _, v := range got[1:] {
			if v != got[0] {
				close(stop)
				wg.Wait()
				t.Fatalf("torn read: %v", got)
			}
		}
	}
	close(stop)
	wg.Wait()
}

func TestRegisters_ConcurrentWritersAndReaders(t *testing.T) {
	r := newTable(t, 256)
	const writers, readers, rounds = 4, 4, 500

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			cell := uint16(w)
			float := uint16(100 + 2*w)
			for i := 1; i <= rounds; i++ {
				assert.NoError(t, r.WriteOne(cell, uint16(i)))
				assert.NoError(t, r.WriteFloat32(float, float32(i)))
			}
		}(w)
	}

	for g := 0; g < readers; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				got, err := r.Read(0, writers)
				assert.NoError(t, err)
				assert.Len(t, got, writers)
				for w := 0; w < writers; w++ {
					f, err := r.ReadFloat32(uint16(100 + 2*w))
					assert.NoError(t, err)
					// Every stored value is a whole number in [0, rounds].
					assert.Equal(t, f, float32(int(f)), "torn float at writer %d", w)
					assert.True(t, f >= 0 && f <= rounds)
				}
			}
		}()
	}
	wg.Wait()

	for w := 0; w < writers; w++ {
		got, err := r.Read(uint16(w), 1)
		require.NoError(t, err)
		assert.Equal(t, []uint16{rounds}, got)
		f, err := r.ReadFloat32(uint16(100 + 2*w))
		require.NoError(t, err)
		assert.Equal(t, float32(rounds), f)
	}
}
