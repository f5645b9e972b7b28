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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SplitLinkProject/go-splitlink/bus"
)

func newTestModule(keyStates *KeyStateTable) *ModuleDriver {
	if keyStates == nil {
		keyStates = &KeyStateTable{}
	}
	return NewModuleDriver(SlaveLeftKeyboardHalf,
		AddrLeftKeyboardHalfFirmware, AddrLeftKeyboardHalfBootloader, keyStates)
}

func TestModulePhaseSequence(t *testing.T) {
	t.Parallel()

	d := newTestModule(nil)
	mock := bus.NewMockTransactor()
	mock.QueueResponse(AddrLeftKeyboardHalfFirmware, bus.NewMessage([]byte{1, 1, 35, 0}))

	want := []ModulePhase{
		ModulePhaseReceiveFeatures,
		ModulePhaseProcessFeatures,
		ModulePhaseRequestKeyStates,
		ModulePhaseReceiveKeyStates,
		ModulePhaseProcessKeyStates,
		ModulePhaseSetTestLed,
		ModulePhaseSetLedBrightness,
		ModulePhaseRequestKeyStates,
	}
	for i, phase := range want {
		d.Update(mock)
		assert.Equal(t, phase, d.Phase(), "after tick %d", i)
	}

	// The handshake never repeats: the tail cycles back to the key-state
	// poll, not to the feature request.
	for i := 0; i < 32; i++ {
		d.Update(mock)
		assert.NotEqual(t, ModulePhaseRequestFeatures, d.Phase())
	}
}

func TestModuleFeatureHandshake(t *testing.T) {
	t.Parallel()

	d := newTestModule(nil)
	mock := bus.NewMockTransactor()
	mock.QueueResponse(AddrLeftKeyboardHalfFirmware, bus.NewMessage([]byte{2, 1, 35, 1}))

	d.Update(mock) // request
	d.Update(mock) // receive
	d.Update(mock) // process

	require.Len(t, mock.Messages(AddrLeftKeyboardHalfFirmware), 1)
	assert.Equal(t, []byte{CommandRequestProperty, PropertyFeatures},
		mock.Messages(AddrLeftKeyboardHalfFirmware)[0].Data)
	assert.Equal(t, Features{ModuleID: 2, ProtocolVersion: 1, KeyCount: 35, PointerCount: 1}, d.Features())
}

func TestModuleFeaturesChecksumGate(t *testing.T) {
	t.Parallel()

	d := newTestModule(nil)
	mock := bus.NewMockTransactor()
	mock.QueueResponse(AddrLeftKeyboardHalfFirmware, &bus.Message{Data: []byte{2, 1, 35, 1}, CRC: 0xBEEF})

	d.Update(mock)
	d.Update(mock)
	status := d.Update(mock)

	// A corrupt record is dropped without touching the decoded features,
	// and the handshake starts over.
	assert.Equal(t, StatusNoTransfer, status)
	assert.Equal(t, Features{}, d.Features())
	assert.Equal(t, ModulePhaseRequestFeatures, d.Phase())
}

func TestModuleFeatureHandshakeRetriesUntilAnswered(t *testing.T) {
	t.Parallel()

	d := newTestModule(nil)
	mock := bus.NewMockTransactor()

	// A slave that is slow to come up answers nothing at first; the
	// driver must keep requesting features rather than move on with an
	// unknown key count.
	for cycle := 0; cycle < 3; cycle++ {
		d.Update(mock) // request
		d.Update(mock) // receive, nothing there
		d.Update(mock) // process, no record
		assert.Equal(t, ModulePhaseRequestFeatures, d.Phase())
	}
	require.Len(t, mock.Messages(AddrLeftKeyboardHalfFirmware), 3)

	mock.QueueResponse(AddrLeftKeyboardHalfFirmware, bus.NewMessage([]byte{1, 1, 35, 0}))
	d.Update(mock)
	d.Update(mock)
	d.Update(mock)
	assert.Equal(t, Features{ModuleID: 1, ProtocolVersion: 1, KeyCount: 35}, d.Features())
	assert.Equal(t, ModulePhaseRequestKeyStates, d.Phase())
}

func TestModuleKeyStateDecode(t *testing.T) {
	t.Parallel()

	keyStates := &KeyStateTable{}
	d := newTestModule(keyStates)
	mock := bus.NewMockTransactor()
	mock.QueueResponse(AddrLeftKeyboardHalfFirmware, bus.NewMessage([]byte{1, 1, 10, 0}))
	mock.QueueResponse(AddrLeftKeyboardHalfFirmware, bus.NewMessage([]byte{0b00000101, 0b00000010}))

	for i := 0; i < 6; i++ {
		d.Update(mock)
	}

	slot := int(SlaveLeftKeyboardHalf) + 1
	assert.True(t, keyStates.Get(slot, 0))
	assert.False(t, keyStates.Get(slot, 1))
	assert.True(t, keyStates.Get(slot, 2))
	assert.True(t, keyStates.Get(slot, 9))
	assert.False(t, keyStates.Get(slot, 10))
}

func TestModuleKeyStateChecksumGate(t *testing.T) {
	t.Parallel()

	keyStates := &KeyStateTable{}
	d := newTestModule(keyStates)
	mock := bus.NewMockTransactor()
	mock.QueueResponse(AddrLeftKeyboardHalfFirmware, bus.NewMessage([]byte{1, 1, 10, 0}))
	mock.QueueResponse(AddrLeftKeyboardHalfFirmware, &bus.Message{Data: []byte{0xFF, 0xFF}, CRC: 0})

	for i := 0; i < 6; i++ {
		d.Update(mock)
	}

	slot := int(SlaveLeftKeyboardHalf) + 1
	for key := 0; key < 10; key++ {
		assert.False(t, keyStates.Get(slot, key), "key %d", key)
	}
}

func TestModuleLedSettingsDeltaOnly(t *testing.T) {
	t.Parallel()

	d := newTestModule(nil)
	mock := bus.NewMockTransactor()
	mock.QueueResponse(AddrLeftKeyboardHalfFirmware, bus.NewMessage([]byte{1, 1, 35, 0}))

	// First full cycle transmits both initial settings.
	for i := 0; i < 8; i++ {
		d.Update(mock)
	}
	msgs := mock.Messages(AddrLeftKeyboardHalfFirmware)
	require.Len(t, msgs, 4)
	assert.Equal(t, []byte{CommandSetTestLed, 1}, msgs[2].Data)
	assert.Equal(t, []byte{CommandSetLedBrightness, MaxLedBrightness}, msgs[3].Data)

	// With no changes the set phases fall through silently.
	mock.ClearWrites()
	for i := 0; i < 5; i++ {
		d.Update(mock)
	}
	for _, msg := range mock.Messages(AddrLeftKeyboardHalfFirmware) {
		assert.NotEqual(t, byte(CommandSetTestLed), msg.Data[0])
		assert.NotEqual(t, byte(CommandSetLedBrightness), msg.Data[0])
	}

	// Changing a setting transmits it exactly once.
	d.SetTestLed(false)
	mock.ClearWrites()
	for i := 0; i < 10; i++ {
		d.Update(mock)
	}
	count := 0
	for _, msg := range mock.Messages(AddrLeftKeyboardHalfFirmware) {
		if msg.Data[0] == CommandSetTestLed {
			count++
			assert.Equal(t, []byte{CommandSetTestLed, 0}, msg.Data)
		}
	}
	assert.Equal(t, 1, count)
}

func TestModuleFaultHoldsPhase(t *testing.T) {
	t.Parallel()

	d := newTestModule(nil)
	mock := bus.NewMockTransactor()
	mock.SetWriteError(errors.New("arbitration lost"))

	status := d.Update(mock)
	assert.Equal(t, StatusFault, status)
	assert.Equal(t, ModulePhaseRequestFeatures, d.Phase())
}
