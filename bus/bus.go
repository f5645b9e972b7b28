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

// Package bus defines the asynchronous addressed-transaction primitive the
// slave scheduler drives peripherals through: fire-and-forget writes and
// poll-for-completion reads.
package bus

import (
	"errors"

	"github.com/SplitLinkProject/go-splitlink/internal/frame"
)

// ErrNoTransfer indicates no completed transfer is available yet for the
// address; the scheduler observes completion on a later tick.
var ErrNoTransfer = errors.New("no completed transfer")

// ErrBusFault indicates the underlying bus rejected the transaction
var ErrBusFault = errors.New("bus transaction failed")

// MaxMessageSize bounds the payload of a single bus message
const MaxMessageSize = 32

// Message is one addressed bus exchange unit: a payload plus a CRC-16
// trailer computed by the sender. Receivers gate consumption on Valid.
type Message struct {
	Data []byte
	CRC  uint16
}

// NewMessage builds a message with its CRC trailer computed over the payload
func NewMessage(data []byte) *Message {
	return &Message{Data: data, CRC: frame.CRC16(data)}
}

// Valid reports whether the CRC trailer matches the payload
func (m *Message) Valid() bool {
	if m == nil {
		return false
	}
	return frame.CRC16(m.Data) == m.CRC
}

// Transactor is the asynchronous bus primitive. All operations return
// immediately: writes queue the transfer and forget it, AsyncRead returns
// the latest completed inbound message or ErrNoTransfer.
//
// AsyncWrite sends raw register-level bytes (dumb devices such as LED
// controllers); AsyncWriteMessage sends a CRC-trailed message to slaves
// that speak the message protocol.
type Transactor interface {
	AsyncWrite(addr byte, data []byte) error
	AsyncWriteMessage(addr byte, msg *Message) error
	AsyncRead(addr byte) (*Message, error)
}
