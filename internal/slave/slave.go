// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package slave executes holding register requests against a register table
// and tells observers about them.
package slave

import (
	"context"
	"encoding/binary"
	"errors"
	"time"

	"github.com/ffutop/modbus-rtu-slave/internal/slave/model"
	"github.com/ffutop/modbus-rtu-slave/modbus"
)

type handlerFunc func(s *Slave, req modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error)

var handlers = map[byte]handlerFunc{
	modbus.FuncCodeReadHoldingRegisters:   (*Slave).handleReadHoldingRegisters,
	modbus.FuncCodeWriteSingleRegister:    (*Slave).handleWriteSingleRegister,
	modbus.FuncCodeWriteMultipleRegisters: (*Slave).handleWriteMultipleRegisters,
}

// Option configures a Slave.
type Option func(*Slave)

// WithReadEnableDelay keeps function 0x03 out of the accepted set until d
// has passed since New.
func WithReadEnableDelay(d time.Duration) Option {
	return func(s *Slave) {
		s.readEnableAt = s.now().Add(d)
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Slave) {
		s.now = now
	}
}

// Slave implements the holding register function codes on top of Registers.
type Slave struct {
	regs         *model.Registers
	now          func() time.Time
	readEnableAt time.Time
}

// New creates a Slave serving regs.
func New(regs *model.Registers, opts ...Option) *Slave {
	s := &Slave{regs: regs, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registers returns the table the slave serves.
func (s *Slave) Registers() *model.Registers {
	return s.regs
}

// Accepts reports whether frames with this function code should be
// assembled at all. Unknown codes are dropped on the wire rather than
// answered with IllegalFunction.
func (s *Slave) Accepts(code byte) bool {
	if _, ok := handlers[code]; !ok {
		return false
	}
	if code == modbus.FuncCodeReadHoldingRegisters && s.now().Before(s.readEnableAt) {
		return false
	}
	return true
}

// Handle implements transport.RequestHandler. The slave id is not checked
// here; address filtering happens in the framer. A frame that reached the
// handler is always executed, even if ctx is already done.
func (s *Slave) Handle(_ context.Context, slaveID byte, req modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	return s.Process(req)
}

// Process executes the request against the register table. Protocol
// violations come back as exception PDUs with a nil error.
func (s *Slave) Process(req modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	h, ok := handlers[req.FunctionCode]
	if !ok {
		return modbus.NewException(req.FunctionCode, modbus.ExceptionCodeIllegalFunction), nil
	}
	return h(s, req)
}

func (s *Slave) handleReadHoldingRegisters(req modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	if len(req.Data) != 4 {
		return modbus.NewException(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])

	if quantity < 1 || quantity > modbus.MaxReadRegisters {
		return modbus.NewException(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}

	values, err := s.regs.Read(address, int(quantity))
	if err != nil {
		return s.storeException(req.FunctionCode, err)
	}

	respData := make([]byte, 1+len(values)*2)
	respData[0] = byte(len(values) * 2)
	for i, v := range values {
		binary.BigEndian.PutUint16(respData[1+i*2:], v)
	}
	return modbus.ProtocolDataUnit{
		FunctionCode: req.FunctionCode,
		Data:         respData,
	}, nil
}

func (s *Slave) handleWriteSingleRegister(req modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	if len(req.Data) != 4 {
		return modbus.NewException(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	value := binary.BigEndian.Uint16(req.Data[2:4])

	if err := s.regs.WriteOne(address, value); err != nil {
		return s.storeException(req.FunctionCode, err)
	}

	return modbus.ProtocolDataUnit{
		FunctionCode: req.FunctionCode,
		Data:         append([]byte(nil), req.Data...),
	}, nil // Echo request
}

func (s *Slave) handleWriteMultipleRegisters(req modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	if len(req.Data) < 5 {
		return modbus.NewException(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])
	byteCount := int(req.Data[4])

	if quantity < 1 || quantity > modbus.MaxWriteRegisters {
		return modbus.NewException(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}
	if byteCount != int(quantity)*2 || len(req.Data)-5 != byteCount {
		return modbus.NewException(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}

	values := make([]uint16, quantity)
	for i := range values {
		values[i] = binary.BigEndian.Uint16(req.Data[5+i*2:])
	}
	if err := s.regs.WriteMany(address, values); err != nil {
		return s.storeException(req.FunctionCode, err)
	}

	respData := make([]byte, 4)
	binary.BigEndian.PutUint16(respData[0:2], address)
	binary.BigEndian.PutUint16(respData[2:4], quantity)

	return modbus.ProtocolDataUnit{
		FunctionCode: req.FunctionCode,
		Data:         respData,
	}, nil
}

// storeException maps a register store failure to a protocol exception.
// Anything other than a range error is a handler failure.
func (s *Slave) storeException(funcCode byte, err error) (modbus.ProtocolDataUnit, error) {
	if errors.Is(err, model.ErrOutOfRange) {
		return modbus.NewException(funcCode, modbus.ExceptionCodeIllegalDataAddress), nil
	}
	return modbus.ProtocolDataUnit{}, err
}
