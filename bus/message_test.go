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

package bus

import "testing"

func TestMessageValid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*Message)
		want   bool
	}{
		{
			name:   "pristine message",
			mutate: func(*Message) {},
			want:   true,
		},
		{
			name:   "payload corruption",
			mutate: func(m *Message) { m.Data[1] ^= 0x40 },
			want:   false,
		},
		{
			name:   "crc corruption",
			mutate: func(m *Message) { m.CRC ^= 0x0001 },
			want:   false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			msg := NewMessage([]byte{0x01, 0x02, 0x03})
			tt.mutate(msg)
			if got := msg.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNilMessageInvalid(t *testing.T) {
	t.Parallel()
	var m *Message
	if m.Valid() {
		t.Error("nil message reported valid")
	}
}

func TestMockTransactorReadOrder(t *testing.T) {
	t.Parallel()
	mock := NewMockTransactor()

	if _, err := mock.AsyncRead(0x10); err != ErrNoTransfer {
		t.Fatalf("AsyncRead on empty queue = %v, want ErrNoTransfer", err)
	}

	mock.QueueResponse(0x10, NewMessage([]byte{0x01}))
	mock.QueueResponse(0x10, NewMessage([]byte{0x02}))

	first, err := mock.AsyncRead(0x10)
	if err != nil || first.Data[0] != 0x01 {
		t.Fatalf("first AsyncRead = %v, %v", first, err)
	}
	second, err := mock.AsyncRead(0x10)
	if err != nil || second.Data[0] != 0x02 {
		t.Fatalf("second AsyncRead = %v, %v", second, err)
	}
}
