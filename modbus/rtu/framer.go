// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"errors"
	"fmt"

	"github.com/ffutop/modbus-rtu-slave/modbus"
	"github.com/ffutop/modbus-rtu-slave/modbus/crc"
)

var (
	// ErrShortHeader means more bytes are needed before the frame length is known.
	ErrShortHeader = errors.New("modbus: header too short to determine frame length")

	ErrForeignAddress      = errors.New("modbus: frame not addressed to this slave")
	ErrUnsupportedFunction = errors.New("modbus: unsupported function code")
	ErrFrameTooLong        = errors.New("modbus: frame exceeds maximum size")
	ErrChecksumMismatch    = errors.New("modbus: frame crc mismatch")
	ErrIncompleteFrame     = errors.New("modbus: partial frame abandoned")
)

// FramingError reports bytes dropped by the Assembler. Reason is one of the
// package sentinels, so callers can use errors.Is.
type FramingError struct {
	Reason  error
	Dropped int
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("%v (%d bytes dropped)", e.Reason, e.Dropped)
}

func (e *FramingError) Unwrap() error {
	return e.Reason
}

// ReasonLabel returns a short metric label for a framing error reason.
func ReasonLabel(err error) string {
	switch {
	case errors.Is(err, ErrForeignAddress):
		return "foreign_address"
	case errors.Is(err, ErrUnsupportedFunction):
		return "unsupported_function"
	case errors.Is(err, ErrFrameTooLong):
		return "too_long"
	case errors.Is(err, ErrChecksumMismatch):
		return "crc_mismatch"
	case errors.Is(err, ErrIncompleteFrame):
		return "incomplete"
	default:
		return "other"
	}
}

// CalculateRequestLength returns the expected total length of the Request RTU ADU based on the header.
func CalculateRequestLength(funcCode byte, header []byte) (int, error) {
	switch funcCode {
	case FuncCodeReadCoils,
		FuncCodeReadDiscreteInputs,
		FuncCodeReadHoldingRegister,
		FuncCodeReadInputRegister,
		FuncCodeWriteSingleCoil,
		FuncCodeWriteSingleRegister:
		return fixedRequestSize, nil
	case FuncCodeWriteMultipleCoils,
		FuncCodeWriteMultipleRegister:
		// Req: [SlaveID, Func, Addr(2), Quant(2), ByteCount(1), Data(N), CRC(2)]
		if len(header) < multipleHeaderSize {
			return 0, fmt.Errorf("%w: need %d bytes for 0x%02X, got %d", ErrShortHeader, multipleHeaderSize, funcCode, len(header))
		}
		byteCount := int(header[offsetByteCount])
		return multipleHeaderSize + byteCount + 2, nil
	default:
		return 0, fmt.Errorf("%w: 0x%02X", ErrUnsupportedFunction, funcCode)
	}
}

// State is the position of the Assembler within a frame.
type State int

const (
	StateAwaitAddress State = iota
	StateAwaitFunctionCode
	StateAccumulating
)

func (s State) String() string {
	switch s {
	case StateAwaitAddress:
		return "await_address"
	case StateAwaitFunctionCode:
		return "await_function_code"
	case StateAccumulating:
		return "accumulating"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// AssemblerOption configures an Assembler.
type AssemblerOption func(*Assembler)

// WithAcceptFunc restricts the function codes the Assembler lets through.
// The default accepts the holding register codes 0x03, 0x06 and 0x10.
func WithAcceptFunc(accept func(code byte) bool) AssemblerOption {
	return func(a *Assembler) {
		if accept != nil {
			a.accept = accept
		}
	}
}

// WithBroadcast makes the Assembler also accept frames for address 0.
func WithBroadcast(enabled bool) AssemblerOption {
	return func(a *Assembler) {
		a.broadcast = enabled
	}
}

// Assembler turns a byte stream into checksum-validated request frames,
// one byte at a time. It is not safe for concurrent use; the owning read
// loop is its only caller.
type Assembler struct {
	slaveID   byte
	broadcast bool
	accept    func(code byte) bool

	state State
	buf   []byte
}

// NewAssembler creates an Assembler for the given slave address.
func NewAssembler(slaveID byte, opts ...AssemblerOption) *Assembler {
	a := &Assembler{
		slaveID: slaveID,
		accept:  holdingRegisterFunction,
		buf:     make([]byte, 0, MaxSize),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func holdingRegisterFunction(code byte) bool {
	switch code {
	case modbus.FuncCodeReadHoldingRegisters,
		modbus.FuncCodeWriteSingleRegister,
		modbus.FuncCodeWriteMultipleRegisters:
		return true
	}
	return false
}

// Feed consumes one byte. It returns a copy of the frame once a complete
// frame with a valid CRC has been assembled, a *FramingError when bytes had
// to be dropped, and (nil, nil) while more bytes are needed.
func (a *Assembler) Feed(b byte) ([]byte, error) {
	switch a.state {
	case StateAwaitAddress:
		if !a.matchAddress(b) {
			return nil, &FramingError{Reason: ErrForeignAddress, Dropped: 1}
		}
		a.buf = append(a.buf[:0], b)
		a.state = StateAwaitFunctionCode
		return nil, nil

	case StateAwaitFunctionCode:
		if !a.accept(b) {
			dropped := len(a.buf) + 1
			a.Reset()
			// The rejected byte may itself start the next frame.
			if a.matchAddress(b) {
				a.buf = append(a.buf, b)
				a.state = StateAwaitFunctionCode
				dropped--
			}
			return nil, &FramingError{Reason: ErrUnsupportedFunction, Dropped: dropped}
		}
		a.buf = append(a.buf, b)
		a.state = StateAccumulating
		return nil, nil
	}

	a.buf = append(a.buf, b)

	// The 0x10 byte count only arrives with the 7th byte, so the expected
	// length is recomputed on every byte.
	expected, err := CalculateRequestLength(a.buf[1], a.buf)
	if err != nil {
		if errors.Is(err, ErrShortHeader) {
			return nil, nil
		}
		return nil, a.discard(ErrUnsupportedFunction)
	}
	if expected > MaxSize {
		return nil, a.discard(ErrFrameTooLong)
	}
	if len(a.buf) < expected {
		return nil, nil
	}

	if !crc.Verify(a.buf) {
		return nil, a.discard(ErrChecksumMismatch)
	}
	frame := make([]byte, len(a.buf))
	copy(frame, a.buf)
	a.Reset()
	return frame, nil
}

// Reset drops any buffered bytes and waits for the next address byte.
func (a *Assembler) Reset() {
	a.buf = a.buf[:0]
	a.state = StateAwaitAddress
}

// Abort drops a partially assembled frame, typically after the line went
// idle mid-frame. It returns nil when nothing was buffered.
func (a *Assembler) Abort() error {
	if len(a.buf) == 0 {
		return nil
	}
	return a.discard(ErrIncompleteFrame)
}

// Pending returns the number of buffered bytes of the current partial frame.
func (a *Assembler) Pending() int {
	return len(a.buf)
}

// State returns the current assembler state.
func (a *Assembler) State() State {
	return a.state
}

func (a *Assembler) matchAddress(b byte) bool {
	return b == a.slaveID || (a.broadcast && b == BroadcastAddress)
}

func (a *Assembler) discard(reason error) error {
	err := &FramingError{Reason: reason, Dropped: len(a.buf)}
	a.Reset()
	return err
}
