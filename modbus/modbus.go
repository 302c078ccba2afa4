// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

/*
Package modbus holds the protocol vocabulary shared by the RTU framer,
the slave dispatcher and the transports.
*/
package modbus

import "fmt"

const (
	// FuncCodeReadHoldingRegisters 16-bit wise access
	FuncCodeReadHoldingRegisters = 0x03
	// FuncCodeWriteSingleRegister 16-bit wise access
	FuncCodeWriteSingleRegister = 0x06
	// FuncCodeWriteMultipleRegisters 16-bit wise access
	FuncCodeWriteMultipleRegisters = 0x10

	// ExceptionFlag is OR'ed into the function code of an exception response.
	ExceptionFlag = 0x80
)

const (
	// ExceptionCodeIllegalFunction error code
	ExceptionCodeIllegalFunction = 0x01
	// ExceptionCodeIllegalDataAddress error code
	ExceptionCodeIllegalDataAddress = 0x02
	// ExceptionCodeIllegalDataValue error code
	ExceptionCodeIllegalDataValue = 0x03
	// ExceptionCodeServerDeviceFailure error code
	ExceptionCodeServerDeviceFailure = 0x04
)

// Protocol limits for holding registers.
const (
	MaxReadRegisters  = 125
	MaxWriteRegisters = 123
)

// ProtocolDataUnit (PDU) is independent of underlying communication layers.
type ProtocolDataUnit struct {
	FunctionCode byte
	Data         []byte
}

// IsException reports whether the PDU carries an exception response.
func (pdu ProtocolDataUnit) IsException() bool {
	return pdu.FunctionCode&ExceptionFlag != 0
}

// ExceptionCode returns the reason byte of an exception PDU, or 0.
func (pdu ProtocolDataUnit) ExceptionCode() byte {
	if !pdu.IsException() || len(pdu.Data) == 0 {
		return 0
	}
	return pdu.Data[0]
}

// NewException builds the exception PDU answering functionCode.
func NewException(functionCode, exceptionCode byte) ProtocolDataUnit {
	return ProtocolDataUnit{
		FunctionCode: functionCode | ExceptionFlag,
		Data:         []byte{exceptionCode},
	}
}

// FunctionName returns a short label for a function code, used in logs and metrics.
func FunctionName(code byte) string {
	switch code &^ ExceptionFlag {
	case FuncCodeReadHoldingRegisters:
		return "read_holding_registers"
	case FuncCodeWriteSingleRegister:
		return "write_single_register"
	case FuncCodeWriteMultipleRegisters:
		return "write_multiple_registers"
	default:
		return fmt.Sprintf("0x%02X", code&^ExceptionFlag)
	}
}

// ExceptionName returns a short label for an exception code.
func ExceptionName(code byte) string {
	switch code {
	case ExceptionCodeIllegalFunction:
		return "illegal_function"
	case ExceptionCodeIllegalDataAddress:
		return "illegal_data_address"
	case ExceptionCodeIllegalDataValue:
		return "illegal_data_value"
	case ExceptionCodeServerDeviceFailure:
		return "server_device_failure"
	default:
		return fmt.Sprintf("0x%02X", code)
	}
}
