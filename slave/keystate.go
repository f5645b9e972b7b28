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

import "github.com/SplitLinkProject/go-splitlink/internal/syncutil"

const (
	// KeySlotCount is the number of key-state slots: the right half scans
	// locally into slot 0, polled modules fill slots 1 and up
	KeySlotCount = int(SlaveCount) + 1

	// MaxKeysPerSlot bounds the per-module key count
	MaxKeysPerSlot = 64
)

// KeyStateTable is the shared live key-state store. The scheduler writes
// it during its tick; the rest of the firmware reads it at any time, so
// access is mutex-guarded.
type KeyStateTable struct {
	mu     syncutil.RWMutex
	states [KeySlotCount][MaxKeysPerSlot]bool
}

// SetPacked decodes a packed key-state bitfield (LSB first within each
// byte) into the given slot. keyCount limits how many keys are decoded.
func (t *KeyStateTable) SetPacked(slot int, packed []byte, keyCount int) {
	if slot < 0 || slot >= KeySlotCount {
		return
	}
	if keyCount > MaxKeysPerSlot {
		keyCount = MaxKeysPerSlot
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for key := 0; key < keyCount; key++ {
		byteIndex := key / 8
		if byteIndex >= len(packed) {
			break
		}
		t.states[slot][key] = packed[byteIndex]&(1<<(key%8)) != 0
	}
}

// Set records one key's state, for locally scanned keys
func (t *KeyStateTable) Set(slot, key int, pressed bool) {
	if slot < 0 || slot >= KeySlotCount || key < 0 || key >= MaxKeysPerSlot {
		return
	}
	t.mu.Lock()
	t.states[slot][key] = pressed
	t.mu.Unlock()
}

// Get returns one key's state
func (t *KeyStateTable) Get(slot, key int) bool {
	if slot < 0 || slot >= KeySlotCount || key < 0 || key >= MaxKeysPerSlot {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.states[slot][key]
}

// Snapshot returns a copy of one slot's key states
func (t *KeyStateTable) Snapshot(slot int) [MaxKeysPerSlot]bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if slot < 0 || slot >= KeySlotCount {
		return [MaxKeysPerSlot]bool{}
	}
	return t.states[slot]
}
