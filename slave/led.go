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

package slave

import (
	"github.com/SplitLinkProject/go-splitlink/bus"
	"github.com/SplitLinkProject/go-splitlink/internal/syncutil"
)

// IS31FL3731 register map, frame 1 layout
const (
	ledRegisterFrameSelect     = 0xFD
	ledRegisterShutdown        = 0x0A
	ledRegisterLedControlFirst = 0x00
	ledRegisterPWMFirst        = 0x24

	ledFrameFunction = 0x0B
	ledFrame1        = 0x00

	ledShutdownModeNormal = 0x01
)

// LedCount is the number of PWM channels per driver chip
const LedCount = 144

// ledValueChunk is how many PWM values one bus write carries
const ledValueChunk = 16

// LedControlRegistersRightHalf enables exactly the channels wired to key
// backlights on the right half. Each row pairs a key column byte with a
// display column byte; the right half has no display.
var LedControlRegistersRightHalf = []byte{
	ledRegisterLedControlFirst,
	0b01111111, 0b00000000, // row 1
	0b01111111, 0b00000000, // row 2
	0b01111111, 0b00000000, // row 3
	0b01111111, 0b00000000, // row 4
	0b01111010, 0b00000000, // row 5
	0b00000000, 0b00000000, // row 6
	0b00000000, 0b00000000, // row 7
	0b00000000, 0b00000000, // row 8
	0b00000000, 0b00000000, // row 9
}

// LedControlRegistersLeftHalf enables the left half's key channels plus the
// display segment columns. Row 4 includes the ISO key's LED.
var LedControlRegistersLeftHalf = []byte{
	ledRegisterLedControlFirst,
	0b01111111, 0b00111111, // row 1
	0b01011111, 0b00111111, // row 2
	0b01011111, 0b00111111, // row 3
	0b01111111, 0b00011111, // row 4
	0b00101111, 0b00011111, // row 5
	0b00000000, 0b00011111, // row 6
	0b00000000, 0b00011111, // row 7
	0b00000000, 0b00011111, // row 8
	0b00000000, 0b00011111, // row 9
}

// LedPhase is an LED driver chip's position in its init and transfer cycle
type LedPhase int

const (
	LedPhaseSetFunctionFrame LedPhase = iota
	LedPhaseSetShutdownModeNormal
	LedPhaseSetFrame1
	LedPhaseInitLedControlRegisters
	LedPhaseInitLedValues
	LedPhaseInitialized
)

// DependencyFunc reports whether the device this driver depends on is
// connected. The left half's driver is powered through the bridge cable,
// so its init sequence must wait for the left half itself.
type DependencyFunc func() bool

// LedDriver initializes one IS31FL3731 chip register by register, one
// write per tick, then settles into a circular scan that retransmits only
// PWM ranges that changed since the last transfer.
type LedDriver struct {
	addr            byte
	dependencyUp    DependencyFunc
	controlRegister []byte

	mu     syncutil.RWMutex
	source [LedCount]byte

	phase      LedPhase
	target     [LedCount]byte
	initOffset int
	ledIndex   int
}

// NewLedDriver creates a driver for the chip at addr. dependencyUp may be
// nil for a chip that is always powered.
func NewLedDriver(addr byte, controlRegister []byte, dependencyUp DependencyFunc) *LedDriver {
	d := &LedDriver{
		addr:            addr,
		dependencyUp:    dependencyUp,
		controlRegister: controlRegister,
	}
	d.Init()
	return d
}

// Init resets the chip state machine. Source starts at full brightness
// while target is zeroed, so the init upload pushes every channel.
func (d *LedDriver) Init() {
	d.mu.Lock()
	for i := range d.source {
		d.source[i] = MaxLedBrightness
	}
	d.mu.Unlock()

	d.target = [LedCount]byte{}
	d.phase = LedPhaseSetFunctionFrame
	d.initOffset = 0
	d.ledIndex = 0
}

// Phase returns the current phase, for tests and diagnostics
func (d *LedDriver) Phase() LedPhase {
	return d.phase
}

// SetAll sets every channel to the given PWM value
func (d *LedDriver) SetAll(value byte) {
	d.mu.Lock()
	for i := range d.source {
		d.source[i] = value
	}
	d.mu.Unlock()
}

// SetLed sets one channel's PWM value
func (d *LedDriver) SetLed(index int, value byte) {
	if index < 0 || index >= LedCount {
		return
	}
	d.mu.Lock()
	d.source[index] = value
	d.mu.Unlock()
}

// Update advances one phase. During init every tick performs exactly one
// register write; once initialized a tick transmits at most one changed
// PWM range, or reports idle when the chip already mirrors the source.
func (d *LedDriver) Update(t bus.Transactor) UpdateStatus {
	switch d.phase {
	case LedPhaseSetFunctionFrame:
		if d.dependencyUp != nil && !d.dependencyUp() {
			return StatusIdle
		}
		if err := t.AsyncWrite(d.addr, []byte{ledRegisterFrameSelect, ledFrameFunction}); err != nil {
			return StatusFault
		}
		d.phase = LedPhaseSetShutdownModeNormal
		return StatusTransfer

	case LedPhaseSetShutdownModeNormal:
		if err := t.AsyncWrite(d.addr, []byte{ledRegisterShutdown, ledShutdownModeNormal}); err != nil {
			return StatusFault
		}
		d.phase = LedPhaseSetFrame1
		return StatusTransfer

	case LedPhaseSetFrame1:
		if err := t.AsyncWrite(d.addr, []byte{ledRegisterFrameSelect, ledFrame1}); err != nil {
			return StatusFault
		}
		d.phase = LedPhaseInitLedControlRegisters
		return StatusTransfer

	case LedPhaseInitLedControlRegisters:
		if err := t.AsyncWrite(d.addr, d.controlRegister); err != nil {
			return StatusFault
		}
		d.phase = LedPhaseInitLedValues
		return StatusTransfer

	case LedPhaseInitLedValues:
		d.mu.RLock()
		source := d.source
		d.mu.RUnlock()

		offset := d.initOffset
		chunk := make([]byte, 0, ledValueChunk+1)
		chunk = append(chunk, byte(ledRegisterPWMFirst+offset))
		chunk = append(chunk, source[offset:offset+ledValueChunk]...)
		if err := t.AsyncWrite(d.addr, chunk); err != nil {
			return StatusFault
		}
		copy(d.target[offset:], source[offset:offset+ledValueChunk])
		d.initOffset += ledValueChunk
		if d.initOffset >= LedCount {
			d.phase = LedPhaseInitialized
		}
		return StatusTransfer

	case LedPhaseInitialized:
		return d.transferDelta(t)

	default:
		return StatusIdle
	}
}

// transferDelta scans circularly from the last scan position for the first
// channel whose desired value differs from the chip, then sends one
// bounded contiguous range covering the change.
func (d *LedDriver) transferDelta(t bus.Transactor) UpdateStatus {
	d.mu.RLock()
	source := d.source
	d.mu.RUnlock()

	start := d.ledIndex
	if start > LedCount-ledValueChunk {
		start = LedCount - ledValueChunk
	}

	found := false
	for count := 0; count < LedCount; count++ {
		if source[start] != d.target[start] {
			found = true
			break
		}
		start++
		if start >= LedCount {
			start = 0
		}
	}
	if !found {
		d.ledIndex = 0
		return StatusIdle
	}

	// Cap the range so it never runs off the end of the PWM register file.
	maxChunk := LedCount - start
	if maxChunk > ledValueChunk {
		maxChunk = ledValueChunk
	}
	end := start
	for i := start; i < start+maxChunk; i++ {
		if source[i] != d.target[i] {
			end = i
		}
	}
	length := end - start + 1

	data := make([]byte, 0, length+1)
	data = append(data, byte(ledRegisterPWMFirst+start))
	data = append(data, source[start:start+length]...)
	if err := t.AsyncWrite(d.addr, data); err != nil {
		return StatusFault
	}
	copy(d.target[start:], source[start:start+length])
	d.ledIndex += length
	if d.ledIndex >= LedCount {
		d.ledIndex = 0
	}
	return StatusTransfer
}
