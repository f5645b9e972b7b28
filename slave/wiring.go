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

// RegisterDefaults registers the standard device set of a split keyboard:
// the left half, both addon slots, and the two LED driver chips. The left
// half's LED driver is powered through the bridge cable, so it depends on
// the left half being connected.
func (s *Scheduler) RegisterDefaults(keyStates *KeyStateTable) {
	s.Register(SlaveLeftKeyboardHalf, NewModuleDriver(
		SlaveLeftKeyboardHalf, AddrLeftKeyboardHalfFirmware, AddrLeftKeyboardHalfBootloader, keyStates))
	s.Register(SlaveLeftAddon, NewModuleDriver(
		SlaveLeftAddon, AddrLeftAddonFirmware, AddrLeftAddonBootloader, keyStates))
	s.Register(SlaveRightAddon, NewModuleDriver(
		SlaveRightAddon, AddrRightAddonFirmware, AddrRightAddonBootloader, keyStates))
	s.Register(SlaveRightLedDriver, NewLedDriver(
		AddrRightLedDriver, LedControlRegistersRightHalf, nil))
	s.Register(SlaveLeftLedDriver, NewLedDriver(
		AddrLeftLedDriver, LedControlRegistersLeftHalf, s.DependencyUp(SlaveLeftKeyboardHalf)),
		SlaveLeftKeyboardHalf)
}
