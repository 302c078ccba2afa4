// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import "fmt"

// Storage backs the holding register table.
type Storage interface {
	// Load returns a slice of size cells. File backed implementations return
	// a slice aliasing their buffer, so writes through it reach the backend.
	Load(size int) ([]uint16, error)

	// OnWrite is a hook called whenever a register range is modified.
	// It allows the storage to perform real-time persistence.
	OnWrite(address uint16, quantity int)

	Close() error
}

// Open returns the backend named by kind: "memory", "file" or "mmap".
func Open(kind, path string) (Storage, error) {
	switch kind {
	case "", "memory":
		return NewMemoryStorage(), nil
	case "file":
		if path == "" {
			return nil, fmt.Errorf("persistence %q requires a path", kind)
		}
		return NewFileStorage(path), nil
	case "mmap":
		if path == "" {
			return nil, fmt.Errorf("persistence %q requires a path", kind)
		}
		return NewMmapStorage(path), nil
	default:
		return nil, fmt.Errorf("unknown persistence type %q", kind)
	}
}
