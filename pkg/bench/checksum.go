// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bench

import "github.com/sigurn/crc16"

// CRC-16/Modbus: polynomial 0xA001 (reflected 0x8005), initial 0xFFFF
var modbusTable = crc16.MakeTable(crc16.CRC16_MODBUS)

// CRC16Modbus computes the CRC-16/Modbus checksum for the given data
func CRC16Modbus(data []byte) uint16 {
	return crc16.Checksum(data, modbusTable)
}

// Sum8 returns the low byte of the unsigned sum of data
func Sum8(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return sum
}
