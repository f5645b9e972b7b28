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

package splitlink

import (
	"sync"
	"time"
)

// ByteTransport defines the raw byte stream consumed by the framing link.
// This can be implemented by UART or USB-CDC backends.
type ByteTransport interface {
	// Write transmits the buffer, blocking until accepted by the driver
	Write(data []byte) (int, error)

	// Read fills up to len(buf) bytes, returning 0 without error when the
	// read timeout elapses with no data. A zero timeout makes Read a poll.
	Read(buf []byte) (int, error)

	// SetReadTimeout sets the timeout applied to subsequent Read calls
	SetReadTimeout(timeout time.Duration) error

	// Close closes the transport connection
	Close() error

	// IsConnected returns true if the transport is connected
	IsConnected() bool

	// Port returns the port or device identifier, for error context
	Port() string
}

// MockTransport provides a scripted ByteTransport for testing. Bytes queued
// with QueueRead are returned by Read in order; everything written is
// recorded and can be inspected with Written.
type MockTransport struct {
	mu        sync.Mutex
	readQueue []byte
	written   []byte
	readErr   error
	writeErr  error
	timeout   time.Duration
	connected bool
}

// NewMockTransport creates a new mock transport
func NewMockTransport() *MockTransport {
	return &MockTransport{connected: true}
}

// Write implements ByteTransport
func (m *MockTransport) Write(data []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	m.written = append(m.written, data...)
	return len(data), nil
}

// Read implements ByteTransport. It drains as many queued bytes as fit
// in buf, and reports (0, nil) on an empty queue like a timed-out port.
func (m *MockTransport) Read(buf []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return 0, m.readErr
	}
	if len(m.readQueue) == 0 || len(buf) == 0 {
		return 0, nil
	}
	n := copy(buf, m.readQueue)
	m.readQueue = m.readQueue[n:]
	return n, nil
}

// SetReadTimeout implements ByteTransport
func (m *MockTransport) SetReadTimeout(timeout time.Duration) error {
	m.mu.Lock()
	m.timeout = timeout
	m.mu.Unlock()
	return nil
}

// Close implements ByteTransport
func (m *MockTransport) Close() error {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
	return nil
}

// IsConnected implements ByteTransport
func (m *MockTransport) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Port implements ByteTransport
func (*MockTransport) Port() string {
	return "mock"
}

// Test helper methods

// QueueRead appends bytes to be returned by subsequent Read calls
func (m *MockTransport) QueueRead(data ...byte) {
	m.mu.Lock()
	m.readQueue = append(m.readQueue, data...)
	m.mu.Unlock()
}

// Written returns a copy of all bytes written so far
func (m *MockTransport) Written() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]byte, len(m.written))
	copy(out, m.written)
	return out
}

// ClearWritten discards the recorded written bytes
func (m *MockTransport) ClearWritten() {
	m.mu.Lock()
	m.written = nil
	m.mu.Unlock()
}

// SetReadError injects an error returned by Read
func (m *MockTransport) SetReadError(err error) {
	m.mu.Lock()
	m.readErr = err
	m.mu.Unlock()
}

// SetWriteError injects an error returned by Write
func (m *MockTransport) SetWriteError(err error) {
	m.mu.Lock()
	m.writeErr = err
	m.mu.Unlock()
}

// Pending returns the number of unread queued bytes
func (m *MockTransport) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.readQueue)
}
