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

// Package uart provides the serial port byte transport for the framing
// link. The keyboard's bootloader enumerates as a USB-CDC device, so the
// same transport serves both real UARTs and CDC ACM ports.
package uart

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	splitlink "github.com/SplitLinkProject/go-splitlink"
	"go.bug.st/serial"
)

const baudRate = 115200

// defaultReadTimeout is the initial per-Read budget; the link layer
// overrides it per operation. Windows CDC drivers need the longer value.
func defaultReadTimeout() time.Duration {
	if runtime.GOOS == "windows" {
		return 100 * time.Millisecond
	}
	return 50 * time.Millisecond
}

// Transport implements splitlink.ByteTransport over a serial port
type Transport struct {
	port     serial.Port
	portName string
}

// New opens the serial port at the fixed bootloader baud rate
func New(portName string) (*Transport, error) {
	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}

	if err := port.SetReadTimeout(defaultReadTimeout()); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to set serial read timeout: %w", err)
	}

	return &Transport{
		port:     port,
		portName: portName,
	}, nil
}

// Write implements splitlink.ByteTransport. The written bytes are drained
// to the device before returning so the link's inter-write delay measures
// from actual transmission.
func (t *Transport) Write(data []byte) (int, error) {
	n, err := t.port.Write(data)
	if err != nil {
		return n, fmt.Errorf("serial write failed: %w", err)
	}
	if n != len(data) {
		return n, splitlink.NewTransportWriteError("write", t.portName)
	}
	if err := t.drainWithRetry("write"); err != nil {
		return n, err
	}
	return n, nil
}

// Read implements splitlink.ByteTransport. A timeout with no data is
// reported as (0, nil), matching go.bug.st/serial's behavior.
func (t *Transport) Read(buf []byte) (int, error) {
	n, err := t.port.Read(buf)
	if err != nil {
		if isInterruptedSystemCall(err) {
			return 0, nil
		}
		return n, fmt.Errorf("serial read failed: %w", err)
	}
	return n, nil
}

// SetReadTimeout implements splitlink.ByteTransport
func (t *Transport) SetReadTimeout(timeout time.Duration) error {
	if err := t.port.SetReadTimeout(timeout); err != nil {
		return fmt.Errorf("serial set read timeout failed: %w", err)
	}
	return nil
}

// Close implements splitlink.ByteTransport
func (t *Transport) Close() error {
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	if err != nil {
		return fmt.Errorf("serial close failed: %w", err)
	}
	return nil
}

// IsConnected implements splitlink.ByteTransport
func (t *Transport) IsConnected() bool {
	return t.port != nil
}

// Port implements splitlink.ByteTransport
func (t *Transport) Port() string {
	return t.portName
}

// isInterruptedSystemCall checks for EINTR, which go.bug.st/serial can
// surface on Linux when a signal lands during a blocking read
func isInterruptedSystemCall(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "interrupted system call") ||
		strings.Contains(errStr, "eintr")
}

// drainWithRetry flushes the output buffer, retrying on EINTR
func (t *Transport) drainWithRetry(operation string) error {
	const maxRetries = 3
	baseDelay := 2 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := t.port.Drain()
		if err == nil {
			return nil
		}
		if isInterruptedSystemCall(err) && attempt < maxRetries-1 {
			time.Sleep(baseDelay * time.Duration(1<<attempt))
			continue
		}
		return fmt.Errorf("serial %s drain failed: %w", operation, err)
	}
	return fmt.Errorf("serial %s drain failed after %d retries", operation, maxRetries)
}

// Ensure Transport implements splitlink.ByteTransport
var _ splitlink.ByteTransport = (*Transport)(nil)
