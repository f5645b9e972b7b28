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

import "sync"

// MockTransactor provides a scripted Transactor for testing the scheduler
// without hardware. Writes are recorded per address; read responses are
// queued per address and consumed in order.
type MockTransactor struct {
	mu        sync.Mutex
	writes    map[byte][][]byte
	messages  map[byte][]*Message
	responses map[byte][]*Message
	writeErr  error
}

// NewMockTransactor creates a new mock transactor
func NewMockTransactor() *MockTransactor {
	return &MockTransactor{
		writes:    make(map[byte][][]byte),
		messages:  make(map[byte][]*Message),
		responses: make(map[byte][]*Message),
	}
}

// AsyncWrite implements Transactor
func (m *MockTransactor) AsyncWrite(addr byte, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	m.writes[addr] = append(m.writes[addr], buf)
	return nil
}

// AsyncWriteMessage implements Transactor
func (m *MockTransactor) AsyncWriteMessage(addr byte, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.messages[addr] = append(m.messages[addr], msg)
	return nil
}

// AsyncRead implements Transactor
func (m *MockTransactor) AsyncRead(addr byte) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	queue := m.responses[addr]
	if len(queue) == 0 {
		return nil, ErrNoTransfer
	}
	msg := queue[0]
	m.responses[addr] = queue[1:]
	return msg, nil
}

// Test helper methods

// QueueResponse queues a message to be returned by AsyncRead for addr
func (m *MockTransactor) QueueResponse(addr byte, msg *Message) {
	m.mu.Lock()
	m.responses[addr] = append(m.responses[addr], msg)
	m.mu.Unlock()
}

// Writes returns the recorded writes for addr
func (m *MockTransactor) Writes(addr byte) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.writes[addr]))
	copy(out, m.writes[addr])
	return out
}

// Messages returns the recorded message-level writes for addr
func (m *MockTransactor) Messages(addr byte) []*Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Message, len(m.messages[addr]))
	copy(out, m.messages[addr])
	return out
}

// ClearWrites discards recorded writes for all addresses
func (m *MockTransactor) ClearWrites() {
	m.mu.Lock()
	m.writes = make(map[byte][][]byte)
	m.messages = make(map[byte][]*Message)
	m.mu.Unlock()
}

// SetWriteError injects an error returned by AsyncWrite
func (m *MockTransactor) SetWriteError(err error) {
	m.mu.Lock()
	m.writeErr = err
	m.mu.Unlock()
}
