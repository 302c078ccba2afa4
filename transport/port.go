// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package transport

import "io"

const readBufferSize = 256

// StreamPort adapts a stream endpoint to Port. Reads are buffered, so one
// system call can serve a whole frame.
type StreamPort struct {
	rwc       io.ReadWriteCloser
	isTimeout func(error) bool

	buf  []byte
	r, w int
}

// NewStreamPort wraps rwc. isTimeout classifies read errors that only mean
// the read timeout expired; those, and empty reads, become ErrTimeout.
func NewStreamPort(rwc io.ReadWriteCloser, isTimeout func(error) bool) *StreamPort {
	return &StreamPort{
		rwc:       rwc,
		isTimeout: isTimeout,
		buf:       make([]byte, readBufferSize),
	}
}

func (p *StreamPort) ReadByte() (byte, error) {
	if p.r == p.w {
		n, err := p.rwc.Read(p.buf)
		if n > 0 {
			p.r, p.w = 0, n
		} else {
			if err == nil || (p.isTimeout != nil && p.isTimeout(err)) {
				return 0, ErrTimeout
			}
			return 0, err
		}
	}
	b := p.buf[p.r]
	p.r++
	return b, nil
}

func (p *StreamPort) Write(b []byte) (int, error) {
	return p.rwc.Write(b)
}

func (p *StreamPort) Close() error {
	return p.rwc.Close()
}
