// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ffutop/modbus-rtu-slave/internal/slave/model"
)

func TestOpen(t *testing.T) {
	s, err := Open("", "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryStorage{}, s)

	s, err = Open("mmap", "/tmp/x.bin")
	require.NoError(t, err)
	assert.IsType(t, &MmapStorage{}, s)

	_, err = Open("file", "")
	assert.Error(t, err)

	_, err = Open("sql", "dsn")
	assert.Error(t, err)
}

func TestMemoryStorage_Load(t *testing.T) {
	cells, err := NewMemoryStorage().Load(300)
	require.NoError(t, err)
	assert.Len(t, cells, 300)
}

func TestStorage_RoundTrip(t *testing.T) {
	backends := map[string]func(path string) Storage{
		"file": func(path string) Storage { return NewFileStorage(path) },
		"mmap": func(path string) Storage { return NewMmapStorage(path) },
	}
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name+".bin")

			s := open(path)
			cells, err := s.Load(model.MinRegisters)
			require.NoError(t, err)
			require.Len(t, cells, model.MinRegisters)

			regs, err := model.NewRegistersFrom(cells)
			require.NoError(t, err)
			regs.OnWrite(s.OnWrite)
			require.NoError(t, regs.WriteOne(5, 100))
			require.NoError(t, regs.WriteMany(200, []uint16{1, 2, 3}))
			require.NoError(t, s.Close())

			fi, err := os.Stat(path)
			require.NoError(t, err)
			assert.Equal(t, fileSize(model.MinRegisters), fi.Size())

			s = open(path)
			cells, err = s.Load(model.MinRegisters)
			require.NoError(t, err)
			defer s.Close()
			assert.Equal(t, uint16(100), cells[5])
			assert.Equal(t, []uint16{1, 2, 3}, cells[200:203])
		})
	}
}

func TestFileStorage_FullTableWriteSyncedBeforeClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "full.bin")
	fs := NewFileStorage(path)
	cells, err := fs.Load(model.MaxRegisters)
	require.NoError(t, err)
	defer fs.Close()

	regs, err := model.NewRegistersFrom(cells)
	require.NoError(t, err)
	regs.OnWrite(fs.OnWrite)

	values := make([]uint16, model.MaxRegisters)
	for i := range values {
		values[i] = 0x0101
	}
	require.NoError(t, regs.WriteMany(0, values))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, raw, int(fileSize(model.MaxRegisters)))
	for i, b := range raw {
		if b != 0x01 {
			t.Fatalf("byte %d not written back: %#x", i, b)
		}
	}
}

func TestFileStorage_Resize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grow.bin")
	require.NoError(t, os.WriteFile(path, []byte{0x01, 0x02}, 0644))

	fs := NewFileStorage(path)
	cells, err := fs.Load(512)
	require.NoError(t, err)
	defer fs.Close()
	assert.Len(t, cells, 512)
	assert.NotZero(t, cells[0])
	assert.Zero(t, cells[1])
}
