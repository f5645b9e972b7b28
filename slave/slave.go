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

// Package slave implements the cooperative polling scheduler for bus
// peripherals. Each attached device is driven through its own phase state
// machine: one tick advances exactly one phase of one device, issuing at
// most one asynchronous bus transaction and never blocking on the bus.
//
// This layer is deliberately best-effort: a response that fails its
// checksum is discarded without retry, because the poll cycle repeats
// forever and the next cycle retries naturally.
package slave

import "github.com/SplitLinkProject/go-splitlink/bus"

// SlaveID identifies one attached peripheral slot
type SlaveID int

const (
	SlaveLeftKeyboardHalf SlaveID = iota
	SlaveLeftAddon
	SlaveRightAddon
	SlaveRightLedDriver
	SlaveLeftLedDriver
	SlaveCount
)

// Bus addresses. Each module answers on a distinct address depending on
// whether it is running its firmware or its bootloader.
const (
	AddrLeftKeyboardHalfFirmware   = 0x10
	AddrLeftKeyboardHalfBootloader = 0x11
	AddrLeftAddonFirmware          = 0x20
	AddrLeftAddonBootloader        = 0x21
	AddrRightAddonFirmware         = 0x28
	AddrRightAddonBootloader       = 0x29
	AddrRightLedDriver             = 0x74
	AddrLeftLedDriver              = 0x77
)

// Slave protocol commands sent to peripheral modules
const (
	CommandRequestProperty  = 0x00
	CommandRequestKeyStates = 0x01
	CommandSetTestLed       = 0x02
	CommandSetLedBrightness = 0x03
)

// Slave properties requested via CommandRequestProperty
const (
	PropertyFeatures = 0x00
)

// UpdateStatus reports what one phase step did on the bus
type UpdateStatus int

const (
	// StatusTransfer means a bus transaction was issued this tick
	StatusTransfer UpdateStatus = iota
	// StatusNoTransfer means the phase advanced without bus traffic
	StatusNoTransfer
	// StatusIdle means nothing was done: a dependency stall or no delta
	StatusIdle
	// StatusFault means the bus rejected the transaction; the scheduler
	// treats the slave as disconnected
	StatusFault
)

// Driver is one peripheral's phase state machine. Update advances exactly
// one phase, issuing at most one transaction on the transactor, and must
// never block. Init resets the machine to its first phase.
type Driver interface {
	Init()
	Update(t bus.Transactor) UpdateStatus
}

// ActionKind describes the bus side effect a phase step requests
type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionWrite
	ActionWriteMessage
	ActionRead
)

// Action is the side-effect description returned by the pure phase
// transition functions; the driver executes it against the transactor.
type Action struct {
	Kind ActionKind
	Data []byte
}
