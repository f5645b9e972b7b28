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
	"sync/atomic"
	"time"

	splitlink "github.com/SplitLinkProject/go-splitlink"
	"github.com/SplitLinkProject/go-splitlink/bus"
)

// SchedulerConfig holds scheduler timing options
type SchedulerConfig struct {
	// TickPeriod is the interval between phase steps when the scheduler
	// runs its own loop via Start
	TickPeriod time.Duration
}

// DefaultSchedulerConfig returns the standard scheduler configuration
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		TickPeriod: time.Millisecond,
	}
}

// slot is one registered peripheral with its live connection flag.
// connected is atomic so dependency closures can read it from another
// driver's step without taking the scheduler's state.
type slot struct {
	id        SlaveID
	driver    Driver
	dependsOn []SlaveID
	connected atomic.Bool
}

// Scheduler advances registered peripheral drivers cooperatively: each
// Tick runs exactly one phase of exactly one device, in registration
// order, so no device can starve or stall the others.
type Scheduler struct {
	cfg   *SchedulerConfig
	t     bus.Transactor
	slots []*slot
	byID  map[SlaveID]*slot
	next  int

	cancel context.CancelFunc
	done   chan struct{}

	ticks     atomic.Uint64
	transfers atomic.Uint64
	faults    atomic.Uint64
}

// NewScheduler creates a scheduler driving peripherals over the given
// transactor
func NewScheduler(t bus.Transactor, cfg *SchedulerConfig) *Scheduler {
	if cfg == nil {
		cfg = DefaultSchedulerConfig()
	}
	return &Scheduler{
		cfg:  cfg,
		t:    t,
		byID: make(map[SlaveID]*slot),
	}
}

// Register adds a driver for the given slot. dependsOn lists devices that
// must be connected before this one is serviced; when any of them
// disconnects, this driver is reset too.
func (s *Scheduler) Register(id SlaveID, driver Driver, dependsOn ...SlaveID) {
	sl := &slot{id: id, driver: driver, dependsOn: dependsOn}
	s.slots = append(s.slots, sl)
	s.byID[id] = sl
}

// DependencyUp returns a closure reporting whether the given slot is
// currently connected, for wiring into drivers that gate on another
// device's presence
func (s *Scheduler) DependencyUp(id SlaveID) DependencyFunc {
	return func() bool {
		sl, ok := s.byID[id]
		return ok && sl.connected.Load()
	}
}

// IsConnected reports whether the given slot currently answers on the bus
func (s *Scheduler) IsConnected(id SlaveID) bool {
	sl, ok := s.byID[id]
	return ok && sl.connected.Load()
}

// Tick services the next device in round-robin order, advancing its state
// machine by exactly one phase
func (s *Scheduler) Tick() {
	if len(s.slots) == 0 {
		return
	}
	sl := s.slots[s.next]
	s.next = (s.next + 1) % len(s.slots)
	s.ticks.Add(1)

	status := sl.driver.Update(s.t)
	switch status {
	case StatusTransfer:
		s.transfers.Add(1)
		if !sl.connected.Load() {
			sl.connected.Store(true)
			splitlink.Debugf("slave %d connected", sl.id)
		}
	case StatusFault:
		s.faults.Add(1)
		s.disconnect(sl)
	}
}

// disconnect marks the slot down, resets its driver to its first phase,
// and cascades to every registered device that depends on it
func (s *Scheduler) disconnect(sl *slot) {
	if sl.connected.Load() {
		splitlink.Debugf("slave %d disconnected", sl.id)
	}
	sl.connected.Store(false)
	sl.driver.Init()

	for _, other := range s.slots {
		if other == sl {
			continue
		}
		for _, dep := range other.dependsOn {
			if dep == sl.id {
				s.disconnect(other)
				break
			}
		}
	}
}

// Start runs the tick loop in a goroutine until the context is canceled
// or Stop is called
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.cfg.TickPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Tick()
			}
		}
	}()
}

// Stop halts the tick loop and waits for it to exit
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
}

// Stats reports cumulative tick, transfer, and fault counts
func (s *Scheduler) Stats() (ticks, transfers, faults uint64) {
	return s.ticks.Load(), s.transfers.Load(), s.faults.Load()
}
