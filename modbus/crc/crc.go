// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package crc implements the CRC-16/MODBUS checksum used by RTU frames:
// reflected polynomial 0x8005 (0xA001), initial value 0xFFFF, transmitted
// low byte first.
package crc

const polynomial = 0xA001

var table [256]uint16

func init() {
	for i := range table {
		v := uint16(i)
		for j := 0; j < 8; j++ {
			if v&1 != 0 {
				v = v>>1 ^ polynomial
			} else {
				v >>= 1
			}
		}
		table[i] = v
	}
}

// CRC is a running CRC-16/MODBUS accumulator. Call Reset before use.
type CRC struct {
	value uint16
}

func (crc *CRC) Reset() *CRC {
	crc.value = 0xFFFF
	return crc
}

func (crc *CRC) PushByte(b byte) *CRC {
	crc.value = crc.value>>8 ^ table[byte(crc.value)^b]
	return crc
}

func (crc *CRC) PushBytes(bs []byte) *CRC {
	for _, b := range bs {
		crc.PushByte(b)
	}
	return crc
}

// Value returns the checksum; its low byte goes on the wire first.
func (crc *CRC) Value() uint16 {
	return crc.value
}

// Checksum computes the CRC of b.
func Checksum(b []byte) uint16 {
	var crc CRC
	return crc.Reset().PushBytes(b).Value()
}

// Append appends the CRC of b to b in wire order.
func Append(b []byte) []byte {
	sum := Checksum(b)
	return append(b, byte(sum), byte(sum>>8))
}

// Verify reports whether the trailing two bytes of frame are the CRC of
// everything before them.
func Verify(frame []byte) bool {
	n := len(frame)
	if n < 2 {
		return false
	}
	received := uint16(frame[n-1])<<8 | uint16(frame[n-2])
	return received == Checksum(frame[:n-2])
}
