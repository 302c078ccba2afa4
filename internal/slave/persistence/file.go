// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// FileStorage keeps the table in memory and writes modified ranges back
// with WriteAt followed by fsync. The file holds size*2 bytes, one cell
// per register in host byte order.
type FileStorage struct {
	path string
	file *os.File
	data []byte
}

// NewFileStorage creates a new FileStorage.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{
		path: path,
	}
}

// Load reads the table from the file, creating or resizing it as needed.
func (fs *FileStorage) Load(size int) ([]uint16, error) {
	f, err := os.OpenFile(fs.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.Size() != fileSize(size) {
		if err := f.Truncate(fileSize(size)); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to resize file: %w", err)
		}
	}

	data, err := io.ReadAll(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	fs.file = f
	fs.data = data
	return bytesToCells(data), nil
}

// OnWrite writes the modified range back and syncs.
func (fs *FileStorage) OnWrite(address uint16, quantity int) {
	if err := fs.sync(int64(address)*cellSize, int64(quantity)*cellSize); err != nil {
		slog.Error("Failed to sync register file", "path", fs.path, "address", address, "quantity", quantity, "err", err)
	}
}

func (fs *FileStorage) sync(offset, length int64) error {
	if fs.data == nil || fs.file == nil {
		return nil
	}
	end := offset + length
	if end > int64(len(fs.data)) {
		end = int64(len(fs.data))
	}
	if offset >= end {
		return nil
	}
	if _, err := fs.file.WriteAt(fs.data[offset:end], offset); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := fs.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync file to disk: %w", err)
	}
	return nil
}

// Close flushes the whole table and closes the file.
func (fs *FileStorage) Close() error {
	if fs.file == nil {
		return nil
	}
	err := fs.sync(0, int64(len(fs.data)))
	if e := fs.file.Close(); e != nil && err == nil {
		err = e
	}
	fs.file = nil
	return err
}
