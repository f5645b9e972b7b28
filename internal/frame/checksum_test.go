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

import (
	"encoding/binary"
	"testing"
)

func TestCRC16(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		data []byte
		want uint16
	}{
		{
			name: "empty data",
			data: []byte{},
			want: 0,
		},
		{
			name: "check value",
			data: []byte("123456789"),
			want: 0x31C3, // CRC-16/XMODEM reference check value
		},
		{
			name: "single zero byte",
			data: []byte{0x00},
			want: 0x0000,
		},
		{
			name: "start byte alone",
			data: []byte{StartByte},
			want: 0xFBBF,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := CRC16(tt.data); got != tt.want {
				t.Errorf("CRC16() = 0x%04X, want 0x%04X", got, tt.want)
			}
		})
	}
}

func TestCRC16UpdateStreaming(t *testing.T) {
	t.Parallel()
	data := []byte{0x5A, 0xA4, 0x04, 0x00, 0x01, 0x02, 0x03, 0x04}
	whole := CRC16(data)
	partial := CRC16Update(CRC16Update(0, data[:3]), data[3:])
	if whole != partial {
		t.Errorf("streaming CRC 0x%04X differs from one-shot 0x%04X", partial, whole)
	}
}

func TestPingResponseCRC(t *testing.T) {
	t.Parallel()
	// The CRC trailer is precomputed; make sure it matches the record it covers.
	body := PingResponse[:len(PingResponse)-2]
	want := binary.LittleEndian.Uint16(PingResponse[len(PingResponse)-2:])
	if got := CRC16(body); got != want {
		t.Errorf("ping response CRC = 0x%04X, want precomputed 0x%04X", got, want)
	}
}

func TestFrameCRCClampsPayload(t *testing.T) {
	t.Parallel()
	payload := []byte{0x10, 0x20, 0x30, 0x40}
	full := FrameCRC(TypeCommand, 4, payload)
	clamped := FrameCRC(TypeCommand, 2, payload)
	short := FrameCRC(TypeCommand, 2, payload[:2])
	if clamped != short {
		t.Errorf("length-clamped CRC 0x%04X != CRC of truncated payload 0x%04X", clamped, short)
	}
	if clamped == full {
		t.Error("clamped CRC unexpectedly equals full-payload CRC")
	}
}
