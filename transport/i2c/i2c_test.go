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

package i2c

import (
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"

	"github.com/SplitLinkProject/go-splitlink/bus"
	"github.com/SplitLinkProject/go-splitlink/slave"
)

func TestParsePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want string
	}{
		{"/dev/i2c-1", "/dev/i2c-1"},
		{"/dev/i2c-1:0x10", "/dev/i2c-1"},
		{"1", "1"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parsePath(tt.path))
	}
}

// fakeBus emulates a slave chain: message writes prepare the addressed
// slave's reply, reads return it in wire format
type fakeBus struct {
	mu       sync.Mutex
	prepared map[uint16][]byte
	writes   map[uint16][][]byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		prepared: make(map[uint16][]byte),
		writes:   make(map[uint16][][]byte),
	}
}

// encodeWire builds the on-wire form of a reply: length byte, payload,
// CRC-16 trailer
func encodeWire(data []byte) []byte {
	msg := bus.NewMessage(data)
	out := make([]byte, 0, len(data)+3)
	out = append(out, byte(len(data)))
	out = append(out, data...)
	return binary.LittleEndian.AppendUint16(out, msg.CRC)
}

func (f *fakeBus) Tx(addr uint16, w, r []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(w) > 0 {
		buf := make([]byte, len(w))
		copy(buf, w)
		f.writes[addr] = append(f.writes[addr], buf)

		// Message writes carry a length-prefixed command; request
		// commands prepare the reply the next read returns.
		if n := int(w[0]); n >= 1 && 1+n <= len(w) {
			switch w[1] {
			case slave.CommandRequestProperty:
				f.prepared[addr] = encodeWire([]byte{2, 1, 35, 1})
			case slave.CommandRequestKeyStates:
				f.prepared[addr] = encodeWire([]byte{0x0F, 0, 0, 0, 0x04})
			}
		}
	}
	if len(r) > 0 {
		reply := f.prepared[addr]
		if reply == nil {
			reply = encodeWire(nil)
		}
		copy(r, reply)
	}
	return nil
}

func (*fakeBus) String() string { return "fake" }

func (*fakeBus) SetSpeed(physic.Frequency) error { return nil }

func (*fakeBus) Close() error { return nil }

// TestModulePollOverTransactor runs the module driver against the real
// transactor end to end: the feature handshake must complete and key
// states must land in the table, even though every read completes
// asynchronously on the worker.
func TestModulePollOverTransactor(t *testing.T) {
	t.Parallel()

	tr := newTransactor(newFakeBus(), "fake")
	defer func() { _ = tr.Close() }()

	keyStates := &slave.KeyStateTable{}
	d := slave.NewModuleDriver(slave.SlaveLeftKeyboardHalf,
		slave.AddrLeftKeyboardHalfFirmware, slave.AddrLeftKeyboardHalfBootloader, keyStates)

	slot := int(slave.SlaveLeftKeyboardHalf) + 1
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		d.Update(tr)
		if d.Features().KeyCount == 35 && keyStates.Get(slot, 34) {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}

	require.Equal(t,
		slave.Features{ModuleID: 2, ProtocolVersion: 1, KeyCount: 35, PointerCount: 1},
		d.Features())
	for _, key := range []int{0, 1, 2, 3, 34} {
		assert.True(t, keyStates.Get(slot, key), "key %d", key)
	}
	for _, key := range []int{4, 5, 33} {
		assert.False(t, keyStates.Get(slot, key), "key %d", key)
	}
}

// TestAsyncWriteMessageCompletesRead checks the write-then-read pairing
// directly: after a message write, AsyncRead eventually returns the
// slave's reply without a separate read ever being requested.
func TestAsyncWriteMessageCompletesRead(t *testing.T) {
	t.Parallel()

	fb := newFakeBus()
	tr := newTransactor(fb, "fake")
	defer func() { _ = tr.Close() }()

	const addr = slave.AddrLeftKeyboardHalfFirmware
	require.NoError(t, tr.AsyncWriteMessage(addr,
		bus.NewMessage([]byte{slave.CommandRequestProperty, slave.PropertyFeatures})))

	var msg *bus.Message
	require.Eventually(t, func() bool {
		got, err := tr.AsyncRead(addr)
		if err != nil {
			return false
		}
		msg = got
		return true
	}, time.Second, time.Millisecond)

	require.True(t, msg.Valid())
	assert.Equal(t, []byte{2, 1, 35, 1}, msg.Data)

	// Exactly one bus transaction pair: the command write followed by
	// the chained reply read, no read queued by AsyncRead itself.
	fb.mu.Lock()
	defer fb.mu.Unlock()
	assert.Len(t, fb.writes[addr], 1)
}
