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

// Package frame implements the wire codec for the serial bootloader
// framing protocol: frame constants, CRC-16/XMODEM and the fixed ping
// response record.
package frame

// StartByte is the fixed sentinel marking the beginning of every frame.
// The receiver scans byte-by-byte until it is found.
const StartByte = 0x5A

// Packet types
const (
	TypeAck          = 0xA1
	TypeNak          = 0xA2
	TypeAckAbort     = 0xA3
	TypeCommand      = 0xA4
	TypeData         = 0xA5
	TypePing         = 0xA6
	TypePingResponse = 0xA7
)

// Frame sizes
const (
	// MaxPayloadSize is the largest payload carried by a Command or Data
	// frame. Both peers allocate this much; longer lengths are clamped.
	MaxPayloadSize = 32

	// SyncFrameSize is the size of a header-only frame (start byte + type)
	SyncFrameSize = 2

	// DataHeaderSize is start byte + type + length (LE16) + crc16 (LE16)
	DataHeaderSize = 6
)

// Serial protocol version reported in the ping response
const (
	VersionBugfix = 0x00
	VersionMinor  = 0x02
	VersionMajor  = 0x01
	VersionName   = 'P'
)

// PingResponse is the fixed record sent in reply to a Ping frame:
// start byte, type, version (bugfix, minor, major, name), options,
// and a CRC-16/XMODEM over the preceding eight bytes. The CRC is
// precomputed; recalculate it if the version or options change.
var PingResponse = []byte{
	StartByte, TypePingResponse,
	VersionBugfix, VersionMinor, VersionMajor, VersionName, // version 1.2.0 'P'
	0x00, 0x00, // options
	0xAA, 0xEA, // crc16, little-endian
}

// TypeName returns a printable name for a packet type byte
func TypeName(packetType byte) string {
	switch packetType {
	case TypeAck:
		return "Ack"
	case TypeNak:
		return "Nak"
	case TypeAckAbort:
		return "AckAbort"
	case TypeCommand:
		return "Command"
	case TypeData:
		return "Data"
	case TypePing:
		return "Ping"
	case TypePingResponse:
		return "PingResponse"
	default:
		return "Unknown"
	}
}
