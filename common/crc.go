// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package common contains functions used across multiple packages. For
// example, the CRC8 appended to Trinamic UART datagrams.
package common

// CRC8 calculates the 8-bit CRC of the byte slice parameter and returns the
// calculated value.
//
// This is the CRC used by the single wire UART of Trinamic drivers such as the
// TMC2208/TMC2209/TMC2226: polynomial x^8+x^2+x+1, initial value 0, each data
// byte shifted in least significant bit first.
func CRC8(bytes []byte) byte {
	var crc byte
	for _, val := range bytes {
		for i := 0; i < 8; i++ {
			if (crc>>7)^(val&0x01) != 0 {
				crc = (crc << 1) ^ 0x07
			} else {
				crc <<= 1
			}
			val >>= 1
		}
	}
	return crc
}
