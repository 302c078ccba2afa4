// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"path/filepath"
	"testing"

	"github.com/ffutop/modbus-rtu-slave/internal/slave/model"
)

const benchSize = model.MaxRegisters

// BenchmarkMemoryStorage_OnWrite benchmarks the OnWrite hook for MemoryStorage.
func BenchmarkMemoryStorage_OnWrite(b *testing.B) {
	ms := NewMemoryStorage()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ms.OnWrite(10, 1)
	}
}

func BenchmarkFileStorage_OnWrite(b *testing.B) {
	path := filepath.Join(b.TempDir(), "bench_file.bin")
	fs := NewFileStorage(path)
	cells, err := fs.Load(benchSize)
	if err != nil {
		b.Fatalf("Failed to load file storage: %v", err)
	}
	defer fs.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cells[10] = uint16(i)
		fs.OnWrite(10, 1)
	}
}

// BenchmarkMmapStorage_OnWrite benchmarks the OnWrite hook for MmapStorage (msync).
func BenchmarkMmapStorage_OnWrite(b *testing.B) {
	path := filepath.Join(b.TempDir(), "bench_mmap.bin")
	ms := NewMmapStorage(path)
	cells, err := ms.Load(benchSize)
	if err != nil {
		b.Fatalf("Failed to load mmap storage: %v", err)
	}
	defer ms.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		// Dirty the same page every iteration.
		cells[10] = uint16(i)
		ms.OnWrite(10, 1)
	}
}

// BenchmarkMmapStorage_Load includes open, fstat and mmap system calls.
func BenchmarkMmapStorage_Load(b *testing.B) {
	path := filepath.Join(b.TempDir(), "bench_mmap_load.bin")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ms := NewMmapStorage(path)
		if _, err := ms.Load(benchSize); err != nil {
			b.Fatalf("Load failed: %v", err)
		}
		ms.Close()
	}
}

// BenchmarkRegisters_WriteOne is the baseline through the locked table with
// the mmap hook attached.
func BenchmarkRegisters_WriteOne(b *testing.B) {
	path := filepath.Join(b.TempDir(), "bench_regs.bin")
	ms := NewMmapStorage(path)
	cells, err := ms.Load(benchSize)
	if err != nil {
		b.Fatalf("Load failed: %v", err)
	}
	defer ms.Close()
	regs, err := model.NewRegistersFrom(cells)
	if err != nil {
		b.Fatal(err)
	}
	regs.OnWrite(ms.OnWrite)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = regs.WriteOne(10, uint16(i))
	}
}
