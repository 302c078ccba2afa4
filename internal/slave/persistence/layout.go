// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import "unsafe"

const cellSize = 2

// fileSize is the on-disk size of a table of size cells.
func fileSize(size int) int64 {
	return int64(size) * cellSize
}

// bytesToCells views data as uint16 cells without copying.
// Warning: the cells are stored in host byte order, so a file written on a
// little-endian host cannot be read back on a big-endian one.
func bytesToCells(data []byte) []uint16 {
	if len(data) == 0 {
		return nil
	}
	return unsafe.Slice((*uint16)(unsafe.Pointer(&data[0])), len(data)/cellSize)
}
