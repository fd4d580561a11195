// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import "github.com/sigurn/crc16"

var crcTable = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

// CalculateCRC computes the CRC-16-CCITT (0x1021, initial 0xFFFF) of data.
func CalculateCRC(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}
