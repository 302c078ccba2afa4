// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package slave

import (
	"encoding/binary"
	"fmt"

	"github.com/ffutop/modbus-rtu-slave/modbus"
	"github.com/ffutop/modbus-rtu-slave/transport"
)

// Request is the decoded view of an exchange handed to observers.
type Request struct {
	SlaveID      byte
	FunctionCode byte
	Address      uint16
	Quantity     uint16
	// Values holds the written cells for 0x06 and 0x10.
	Values []uint16
	// Exception is the exception code the request was answered with, or 0.
	Exception byte
	Broadcast bool
}

// IsWrite reports whether the request modified the table.
func (r Request) IsWrite() bool {
	return r.Exception == 0 && len(r.Values) > 0
}

// ParseRequest decodes the request PDU of ex. It fails for payloads too
// short to carry an address and quantity, which can only have been answered
// with an exception.
func ParseRequest(ex transport.Exchange) (Request, error) {
	req := Request{
		SlaveID:      ex.SlaveID,
		FunctionCode: ex.Request.FunctionCode,
		Exception:    ex.Response.ExceptionCode(),
		Broadcast:    ex.Broadcast,
	}
	data := ex.Request.Data
	if len(data) < 4 {
		return Request{}, fmt.Errorf("request %s: payload of %d bytes too short",
			modbus.FunctionName(req.FunctionCode), len(data))
	}
	req.Address = binary.BigEndian.Uint16(data[0:2])

	switch req.FunctionCode {
	case modbus.FuncCodeReadHoldingRegisters:
		req.Quantity = binary.BigEndian.Uint16(data[2:4])
	case modbus.FuncCodeWriteSingleRegister:
		req.Quantity = 1
		if req.Exception == 0 {
			req.Values = []uint16{binary.BigEndian.Uint16(data[2:4])}
		}
	case modbus.FuncCodeWriteMultipleRegisters:
		req.Quantity = binary.BigEndian.Uint16(data[2:4])
		if req.Exception == 0 && len(data) >= 5 {
			payload := data[5:]
			req.Values = make([]uint16, len(payload)/2)
			for i := range req.Values {
				req.Values[i] = binary.BigEndian.Uint16(payload[i*2:])
			}
		}
	default:
		return Request{}, fmt.Errorf("request %s: unsupported function", modbus.FunctionName(req.FunctionCode))
	}
	return req, nil
}
