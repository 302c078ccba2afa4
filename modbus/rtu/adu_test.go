// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"bytes"
	"testing"

	"github.com/ffutop/modbus-rtu-slave/modbus"
)

func TestEncode_WriteSingleRegisterEcho(t *testing.T) {
	adu := &ApplicationDataUnit{
		SlaveID: 0x01,
		Pdu:     modbus.ProtocolDataUnit{FunctionCode: 0x06, Data: []byte{0x00, 0x05, 0x00, 0x64}},
	}
	raw, err := adu.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	want := []byte{0x01, 0x06, 0x00, 0x05, 0x00, 0x64, 0x98, 0x20}
	if !bytes.Equal(raw, want) {
		t.Errorf("Encode mismatch.\nWant: %X\nGot:  %X", want, raw)
	}
}

func TestEncode_Exception(t *testing.T) {
	adu := &ApplicationDataUnit{SlaveID: 0x01, Pdu: modbus.NewException(0x03, modbus.ExceptionCodeIllegalDataValue)}
	raw, err := adu.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	want := []byte{0x01, 0x83, 0x03, 0x01, 0x31}
	if !bytes.Equal(raw, want) {
		t.Errorf("Encode mismatch.\nWant: %X\nGot:  %X", want, raw)
	}
}

func TestEncode_TooLong(t *testing.T) {
	adu := &ApplicationDataUnit{SlaveID: 1, Pdu: modbus.ProtocolDataUnit{FunctionCode: 0x03, Data: make([]byte, 253)}}
	if _, err := adu.Encode(); err == nil {
		t.Error("expected error for oversize PDU")
	}
}

func TestDecode(t *testing.T) {
	raw := []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01, 0x84, 0x0A}
	adu, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if adu.SlaveID != 0x01 || adu.Pdu.FunctionCode != 0x03 {
		t.Errorf("unexpected header: slave %d func %d", adu.SlaveID, adu.Pdu.FunctionCode)
	}
	if !bytes.Equal(adu.Pdu.Data, []byte{0x00, 0x00, 0x00, 0x01}) {
		t.Errorf("unexpected data: %X", adu.Pdu.Data)
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{"TooShort", []byte{0x01, 0x03, 0x84}},
		{"BadCRC", []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01, 0xFF, 0xFF}},
		{"TooLong", make([]byte, MaxSize+1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.raw); err == nil {
				t.Error("expected error")
			}
		})
	}
}
