// Copyright 2026 The SplitLink Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package frame

// CRC16Update runs CRC-16/XMODEM (poly 0x1021, init 0, no reflection)
// over data, continuing from crc. Both the framing protocol and the
// slave bus messages use this polynomial.
func CRC16Update(crc uint16, data []byte) uint16 {
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// CRC16 computes CRC-16/XMODEM over data in one shot
func CRC16(data []byte) uint16 {
	return CRC16Update(0, data)
}

// FrameCRC computes the CRC of a Command/Data frame: all header bytes in
// transmission order except the CRC field itself, followed by the payload
// clamped to length.
func FrameCRC(packetType byte, length uint16, payload []byte) uint16 {
	header := [4]byte{StartByte, packetType, byte(length), byte(length >> 8)}
	crc := CRC16Update(0, header[:])
	if int(length) < len(payload) {
		payload = payload[:length]
	}
	return CRC16Update(crc, payload)
}
