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

import "encoding/binary"

// EncodeDataFrame builds a complete Command/Data frame for transmission:
// start byte, packet type, length (LE), crc16 (LE), payload.
func EncodeDataFrame(packetType byte, payload []byte) []byte {
	length := uint16(len(payload))
	buf := make([]byte, DataHeaderSize+len(payload))
	buf[0] = StartByte
	buf[1] = packetType
	binary.LittleEndian.PutUint16(buf[2:4], length)
	binary.LittleEndian.PutUint16(buf[4:6], FrameCRC(packetType, length, payload))
	copy(buf[DataHeaderSize:], payload)
	return buf
}

// EncodeSyncFrame builds a header-only frame (Ack, Nak, AckAbort, Ping)
func EncodeSyncFrame(packetType byte) []byte {
	return []byte{StartByte, packetType}
}

// Validate recomputes the CRC of a received frame and compares it with the
// transmitted one. A frame is valid iff they match.
func Validate(packetType byte, length, crc16 uint16, payload []byte) bool {
	return FrameCRC(packetType, length, payload) == crc16
}
