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
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SplitLinkProject/go-splitlink/bus"
)

// fakeDriver returns scripted statuses and records lifecycle calls
type fakeDriver struct {
	statuses []UpdateStatus
	updates  int
	inits    int
}

func (f *fakeDriver) Init() { f.inits++ }

func (f *fakeDriver) Update(bus.Transactor) UpdateStatus {
	f.updates++
	if len(f.statuses) == 0 {
		return StatusTransfer
	}
	status := f.statuses[0]
	f.statuses = f.statuses[1:]
	return status
}

func TestSchedulerRoundRobin(t *testing.T) {
	t.Parallel()

	s := NewScheduler(bus.NewMockTransactor(), nil)
	a := &fakeDriver{}
	b := &fakeDriver{}
	s.Register(SlaveLeftKeyboardHalf, a)
	s.Register(SlaveRightLedDriver, b)

	for i := 0; i < 6; i++ {
		s.Tick()
	}
	// One device per tick, alternating.
	assert.Equal(t, 3, a.updates)
	assert.Equal(t, 3, b.updates)
}

func TestSchedulerConnectionTracking(t *testing.T) {
	t.Parallel()

	s := NewScheduler(bus.NewMockTransactor(), nil)
	d := &fakeDriver{statuses: []UpdateStatus{StatusTransfer, StatusFault, StatusTransfer}}
	s.Register(SlaveLeftKeyboardHalf, d)

	assert.False(t, s.IsConnected(SlaveLeftKeyboardHalf))

	s.Tick()
	assert.True(t, s.IsConnected(SlaveLeftKeyboardHalf))

	// A fault disconnects the slave and restarts its state machine.
	s.Tick()
	assert.False(t, s.IsConnected(SlaveLeftKeyboardHalf))
	assert.Equal(t, 1, d.inits)

	s.Tick()
	assert.True(t, s.IsConnected(SlaveLeftKeyboardHalf))
}

func TestSchedulerDisconnectCascade(t *testing.T) {
	t.Parallel()

	s := NewScheduler(bus.NewMockTransactor(), nil)
	half := &fakeDriver{statuses: []UpdateStatus{StatusTransfer, StatusFault}}
	led := &fakeDriver{}
	s.Register(SlaveLeftKeyboardHalf, half)
	s.Register(SlaveLeftLedDriver, led, SlaveLeftKeyboardHalf)

	s.Tick() // half connects
	s.Tick() // led connects
	require.True(t, s.IsConnected(SlaveLeftKeyboardHalf))
	require.True(t, s.IsConnected(SlaveLeftLedDriver))

	s.Tick() // half faults
	assert.False(t, s.IsConnected(SlaveLeftKeyboardHalf))
	assert.False(t, s.IsConnected(SlaveLeftLedDriver))
	assert.Equal(t, 1, half.inits)
	assert.Equal(t, 1, led.inits)
}

func TestSchedulerDependencyGate(t *testing.T) {
	t.Parallel()

	mock := bus.NewMockTransactor()
	s := NewScheduler(mock, nil)
	half := &fakeDriver{statuses: []UpdateStatus{StatusFault}}
	led := NewLedDriver(AddrLeftLedDriver, LedControlRegistersLeftHalf,
		s.DependencyUp(SlaveLeftKeyboardHalf))
	s.Register(SlaveLeftKeyboardHalf, half)
	s.Register(SlaveLeftLedDriver, led, SlaveLeftKeyboardHalf)

	s.Tick() // half faults, stays disconnected
	s.Tick() // led stalls on its dependency
	assert.Equal(t, LedPhaseSetFunctionFrame, led.Phase())
	assert.Empty(t, mock.Writes(AddrLeftLedDriver))

	s.Tick() // half recovers
	s.Tick() // led starts initializing
	assert.Equal(t, LedPhaseSetShutdownModeNormal, led.Phase())
}

func TestSchedulerDefaultSet(t *testing.T) {
	t.Parallel()

	s := NewScheduler(bus.NewMockTransactor(), nil)
	s.RegisterDefaults(&KeyStateTable{})
	require.Len(t, s.slots, int(SlaveCount))
	for i, sl := range s.slots {
		assert.Equal(t, SlaveID(i), sl.id)
	}
}

func TestSchedulerStartStop(t *testing.T) {
	t.Parallel()

	s := NewScheduler(bus.NewMockTransactor(), &SchedulerConfig{TickPeriod: 100 * time.Microsecond})
	d := &fakeDriver{}
	s.Register(SlaveLeftKeyboardHalf, d)

	s.Start(context.Background())
	assert.Eventually(t, func() bool {
		ticks, _, _ := s.Stats()
		return ticks >= 5
	}, time.Second, time.Millisecond)
	s.Stop()

	ticks, transfers, _ := s.Stats()
	assert.GreaterOrEqual(t, transfers, uint64(5))
	after := ticks
	time.Sleep(5 * time.Millisecond)
	ticks, _, _ = s.Stats()
	assert.Equal(t, after, ticks)
}
