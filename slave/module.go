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

// MaxLedBrightness is the full-on PWM duty for module LEDs
const MaxLedBrightness = 0xFF

// ModulePhase is a peripheral module's position in its poll cycle
type ModulePhase int

const (
	ModulePhaseRequestFeatures ModulePhase = iota
	ModulePhaseReceiveFeatures
	ModulePhaseProcessFeatures
	ModulePhaseRequestKeyStates
	ModulePhaseReceiveKeyStates
	ModulePhaseProcessKeyStates
	ModulePhaseSetTestLed
	ModulePhaseSetLedBrightness
)

// Features is the capability record read once from a module
type Features struct {
	ModuleID        byte
	ProtocolVersion byte
	KeyCount        byte
	PointerCount    byte
}

// featuresSize is the serialized size of Features on the bus
const featuresSize = 4

// ModuleVars are the module settings other firmware subsystems may change
// at any time. The driver transmits only the delta between the desired
// (source) and last-transmitted (target) values.
type ModuleVars struct {
	TestLedOn     bool
	LedBrightness byte
}

// ModuleDriver polls one keyboard-half or addon module: a one-time
// feature handshake followed by an endless key-state poll cycle with
// delta-only LED updates.
type ModuleDriver struct {
	firmwareAddr   byte
	bootloaderAddr byte
	slot           int
	keyStates      *KeyStateTable

	mu         syncutil.RWMutex
	sourceVars ModuleVars

	phase      ModulePhase
	targetVars ModuleVars
	features   Features
	rx         *bus.Message
}

// NewModuleDriver creates a driver for the module at the given firmware
// and bootloader addresses, decoding key states into the given table slot
func NewModuleDriver(id SlaveID, firmwareAddr, bootloaderAddr byte, keyStates *KeyStateTable) *ModuleDriver {
	d := &ModuleDriver{
		firmwareAddr:   firmwareAddr,
		bootloaderAddr: bootloaderAddr,
		slot:           int(id) + 1,
		keyStates:      keyStates,
	}
	d.Init()
	return d
}

// Init resets the phase machine and the delta state. Source and target
// start deliberately unequal so the first poll cycle pushes both LED
// settings to the module.
func (d *ModuleDriver) Init() {
	d.mu.Lock()
	d.sourceVars = ModuleVars{TestLedOn: true, LedBrightness: MaxLedBrightness}
	d.mu.Unlock()

	d.targetVars = ModuleVars{TestLedOn: false, LedBrightness: 0}
	d.phase = ModulePhaseRequestFeatures
	d.features = Features{}
	d.rx = nil
}

// Phase returns the current phase, for tests and diagnostics
func (d *ModuleDriver) Phase() ModulePhase {
	return d.phase
}

// Features returns the decoded capability record
func (d *ModuleDriver) Features() Features {
	return d.features
}

// SetTestLed sets the desired test LED state; transmitted on the next
// SetTestLed phase if it differs from the module's last applied state
func (d *ModuleDriver) SetTestLed(on bool) {
	d.mu.Lock()
	d.sourceVars.TestLedOn = on
	d.mu.Unlock()
}

// SetLedBrightness sets the desired module LED PWM brightness
func (d *ModuleDriver) SetLedBrightness(brightness byte) {
	d.mu.Lock()
	d.sourceVars.LedBrightness = brightness
	d.mu.Unlock()
}

// step is the pure transition function: given the current phase and a
// snapshot of the delta state, it returns the next phase and the bus
// action to execute. It performs no I/O and no mutation.
func moduleStep(phase ModulePhase, source, target ModuleVars) (ModulePhase, Action) {
	switch phase {
	case ModulePhaseRequestFeatures:
		return ModulePhaseReceiveFeatures, Action{
			Kind: ActionWriteMessage,
			Data: []byte{CommandRequestProperty, PropertyFeatures},
		}
	case ModulePhaseReceiveFeatures:
		return ModulePhaseProcessFeatures, Action{Kind: ActionRead}
	case ModulePhaseProcessFeatures:
		return ModulePhaseRequestKeyStates, Action{Kind: ActionNone}
	case ModulePhaseRequestKeyStates:
		return ModulePhaseReceiveKeyStates, Action{
			Kind: ActionWriteMessage,
			Data: []byte{CommandRequestKeyStates},
		}
	case ModulePhaseReceiveKeyStates:
		return ModulePhaseProcessKeyStates, Action{Kind: ActionRead}
	case ModulePhaseProcessKeyStates:
		return ModulePhaseSetTestLed, Action{Kind: ActionNone}
	case ModulePhaseSetTestLed:
		if source.TestLedOn == target.TestLedOn {
			return ModulePhaseSetLedBrightness, Action{Kind: ActionNone}
		}
		value := byte(0)
		if source.TestLedOn {
			value = 1
		}
		return ModulePhaseSetLedBrightness, Action{
			Kind: ActionWriteMessage,
			Data: []byte{CommandSetTestLed, value},
		}
	case ModulePhaseSetLedBrightness:
		if source.LedBrightness == target.LedBrightness {
			return ModulePhaseRequestKeyStates, Action{Kind: ActionNone}
		}
		return ModulePhaseRequestKeyStates, Action{
			Kind: ActionWriteMessage,
			Data: []byte{CommandSetLedBrightness, source.LedBrightness},
		}
	default:
		return ModulePhaseRequestFeatures, Action{Kind: ActionNone}
	}
}

// Update advances exactly one phase. Process phases consume the response
// captured by the preceding receive phase; a key-state response failing
// its checksum is silently discarded and the next poll cycle retries. A
// missing or corrupt feature record restarts the handshake, since the
// rest of the cycle depends on it.
func (d *ModuleDriver) Update(t bus.Transactor) UpdateStatus {
	d.mu.RLock()
	source := d.sourceVars
	d.mu.RUnlock()

	phase := d.phase
	next, action := moduleStep(phase, source, d.targetVars)

	switch action.Kind {
	case ActionWriteMessage:
		if err := t.AsyncWriteMessage(d.firmwareAddr, bus.NewMessage(action.Data)); err != nil {
			return StatusFault
		}
	case ActionRead:
		msg, err := t.AsyncRead(d.firmwareAddr)
		if err == bus.ErrNoTransfer {
			msg = nil
		} else if err != nil {
			return StatusFault
		}
		d.rx = msg
	}

	switch phase {
	case ModulePhaseProcessFeatures:
		if d.rx.Valid() && len(d.rx.Data) >= featuresSize {
			d.features = Features{
				ModuleID:        d.rx.Data[0],
				ProtocolVersion: d.rx.Data[1],
				KeyCount:        d.rx.Data[2],
				PointerCount:    d.rx.Data[3],
			}
		} else {
			// Without the key count the poll cycle would decode nothing,
			// so the handshake repeats until a valid record arrives.
			next = ModulePhaseRequestFeatures
		}
	case ModulePhaseProcessKeyStates:
		if d.rx.Valid() {
			d.keyStates.SetPacked(d.slot, d.rx.Data, int(d.features.KeyCount))
		}
	case ModulePhaseSetTestLed:
		if action.Kind == ActionWriteMessage {
			d.targetVars.TestLedOn = source.TestLedOn
		}
	case ModulePhaseSetLedBrightness:
		if action.Kind == ActionWriteMessage {
			d.targetVars.LedBrightness = source.LedBrightness
		}
	}

	d.phase = next

	if action.Kind == ActionNone {
		return StatusNoTransfer
	}
	return StatusTransfer
}
