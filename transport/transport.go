// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package transport

import (
	"context"
	"errors"
	"io"

	"github.com/ffutop/modbus-rtu-slave/modbus"
)

// ErrTimeout is returned by Port.ReadByte when no byte arrived within the
// port's read timeout. It is not fatal; the caller simply reads again.
var ErrTimeout = errors.New("transport: read timeout")

// Port is an opened byte stream endpoint: a serial line or a TCP connection
// carrying RTU frames. The worker that reads from a Port is also its only
// writer.
type Port interface {
	io.ByteReader
	io.WriteCloser
}

// RequestHandler executes one request PDU addressed to slaveID and returns
// the response PDU. Protocol exceptions are returned as exception PDUs with
// a nil error; a non-nil error means the handler itself failed.
type RequestHandler func(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error)

// Exchange is one completed request/response cycle.
type Exchange struct {
	SlaveID   byte
	Request   modbus.ProtocolDataUnit
	Response  modbus.ProtocolDataUnit
	Broadcast bool
}

// ExchangeObserver is told about every completed exchange, after the
// response has been written.
type ExchangeObserver func(Exchange)

// Upstream represents a source of requests (a Modbus master connected to us).
// It acts as a Server.
type Upstream interface {
	// Start opens the endpoint and serves it until ctx is done or the
	// endpoint fails. It blocks.
	Start(ctx context.Context, handler RequestHandler) error
	Close() error
}
