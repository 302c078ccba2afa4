// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

const (
	MinSize = 4
	MaxSize = 256

	// BroadcastAddress frames are executed but never answered.
	BroadcastAddress = 0x00
)

// Function Codes
const (
	FuncCodeReadCoils           = 0x01
	FuncCodeReadDiscreteInputs  = 0x02
	FuncCodeReadHoldingRegister = 0x03
	FuncCodeReadInputRegister   = 0x04

	FuncCodeWriteSingleCoil       = 0x05
	FuncCodeWriteSingleRegister   = 0x06
	FuncCodeWriteMultipleCoils    = 0x0F
	FuncCodeWriteMultipleRegister = 0x10
)

// Request layout offsets within an ADU.
const (
	// offsetByteCount is where 0x0F/0x10 requests carry their payload byte count.
	offsetByteCount = 6
	// fixedRequestSize covers [SlaveID, Func, Addr(2), Val(2), CRC(2)].
	fixedRequestSize = 8
	// multipleHeaderSize covers [SlaveID, Func, Addr(2), Quant(2), ByteCount(1)].
	multipleHeaderSize = 7
)
