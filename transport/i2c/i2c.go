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

// Package i2c adapts a periph.io I2C bus to the asynchronous transactor
// the slave scheduler drives. Blocking bus transactions run on a worker
// goroutine; the scheduler's calls only enqueue work and collect results,
// so a tick never waits on the wire.
package i2c

import (
	"encoding/binary"
	"fmt"
	"strings"
	"sync"

	"github.com/SplitLinkProject/go-splitlink/bus"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// Max clock frequency (400 kHz)
const maxClockFreq = 400 * physic.KiloHertz

// queueDepth bounds outstanding transactions. The scheduler issues at
// most one per tick, so the queue only fills when the bus is wedged.
const queueDepth = 16

// messageOverhead is the length byte plus the CRC-16 trailer
const messageOverhead = 3

type request struct {
	addr byte
	data []byte
	read bool

	// followRead chains an immediate read after the write, so a slave's
	// reply to a message is already completed when the scheduler's next
	// receive tick polls for it
	followRead bool
}

// Transactor implements bus.Transactor over a periph.io I2C bus
type Transactor struct {
	busName string
	bus     i2c.BusCloser

	requests chan request
	done     chan struct{}
	wg       sync.WaitGroup

	mu          sync.Mutex
	completed   map[byte]*bus.Message
	faults      map[byte]error
	pendingRead map[byte]bool
}

// parsePath strips an address suffix such as "/dev/i2c-1:0x10" down to
// the bare bus path
func parsePath(path string) string {
	name, _, _ := strings.Cut(path, ":")
	return name
}

// New opens the I2C bus and starts the transaction worker
func New(busName string) (*Transactor, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	b, err := i2creg.Open(parsePath(busName))
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus %s: %w", busName, err)
	}
	_ = b.SetSpeed(maxClockFreq) // Keep the default speed if the driver refuses

	return newTransactor(b, busName), nil
}

// newTransactor wires a transactor over an already-open bus
func newTransactor(b i2c.BusCloser, busName string) *Transactor {
	t := &Transactor{
		busName:     busName,
		bus:         b,
		requests:    make(chan request, queueDepth),
		done:        make(chan struct{}),
		completed:   make(map[byte]*bus.Message),
		faults:      make(map[byte]error),
		pendingRead: make(map[byte]bool),
	}
	t.wg.Add(1)
	go t.worker()
	return t
}

// AsyncWrite implements bus.Transactor. The transfer is queued and the
// call returns immediately; a transfer failure is reported by the next
// call for the same address.
func (t *Transactor) AsyncWrite(addr byte, data []byte) error {
	if err := t.takeFault(addr); err != nil {
		return err
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return t.enqueue(request{addr: addr, data: buf})
}

// AsyncWriteMessage implements bus.Transactor, framing the message as a
// length byte, the payload, and a little-endian CRC-16 trailer. The
// slave's reply is read back in the same queued transaction pair, so a
// later AsyncRead returns it without queuing a read of its own.
func (t *Transactor) AsyncWriteMessage(addr byte, msg *bus.Message) error {
	if err := t.takeFault(addr); err != nil {
		return err
	}
	buf := make([]byte, 0, len(msg.Data)+messageOverhead)
	buf = append(buf, byte(len(msg.Data)))
	buf = append(buf, msg.Data...)
	buf = binary.LittleEndian.AppendUint16(buf, msg.CRC)

	t.mu.Lock()
	t.pendingRead[addr] = true
	t.mu.Unlock()

	if err := t.enqueue(request{addr: addr, data: buf, followRead: true}); err != nil {
		t.mu.Lock()
		t.pendingRead[addr] = false
		t.mu.Unlock()
		return err
	}
	return nil
}

// AsyncRead implements bus.Transactor. The first call for an address
// queues the read and returns ErrNoTransfer; a later call returns the
// completed message.
func (t *Transactor) AsyncRead(addr byte) (*bus.Message, error) {
	if err := t.takeFault(addr); err != nil {
		return nil, err
	}

	t.mu.Lock()
	if msg, ok := t.completed[addr]; ok {
		delete(t.completed, addr)
		t.mu.Unlock()
		return msg, nil
	}
	pending := t.pendingRead[addr]
	t.pendingRead[addr] = true
	t.mu.Unlock()

	if !pending {
		if err := t.enqueue(request{addr: addr, read: true}); err != nil {
			t.mu.Lock()
			t.pendingRead[addr] = false
			t.mu.Unlock()
			return nil, err
		}
	}
	return nil, bus.ErrNoTransfer
}

// Close stops the worker and releases the bus file descriptor
func (t *Transactor) Close() error {
	close(t.done)
	t.wg.Wait()
	if err := t.bus.Close(); err != nil {
		return fmt.Errorf("failed to close I2C bus: %w", err)
	}
	return nil
}

// takeFault returns and clears a fault recorded for addr
func (t *Transactor) takeFault(addr byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.faults[addr]; err != nil {
		delete(t.faults, addr)
		return err
	}
	return nil
}

func (t *Transactor) enqueue(req request) error {
	select {
	case t.requests <- req:
		return nil
	default:
		return fmt.Errorf("%w: transaction queue full on %s", bus.ErrBusFault, t.busName)
	}
}

// worker executes queued transactions one at a time
func (t *Transactor) worker() {
	defer t.wg.Done()
	for {
		select {
		case <-t.done:
			return
		case req := <-t.requests:
			switch {
			case req.read:
				t.executeRead(req.addr)
			case t.executeWrite(req.addr, req.data) && req.followRead:
				t.executeRead(req.addr)
			}
		}
	}
}

func (t *Transactor) executeWrite(addr byte, data []byte) bool {
	if err := t.bus.Tx(uint16(addr), data, nil); err != nil {
		t.recordFault(addr, err)
		return false
	}
	return true
}

func (t *Transactor) executeRead(addr byte) {
	buf := make([]byte, bus.MaxMessageSize+messageOverhead)
	if err := t.bus.Tx(uint16(addr), nil, buf); err != nil {
		t.recordFault(addr, err)
		return
	}

	length := int(buf[0])
	if length > bus.MaxMessageSize {
		length = bus.MaxMessageSize
	}
	msg := &bus.Message{
		Data: buf[1 : 1+length],
		CRC:  binary.LittleEndian.Uint16(buf[1+length:]),
	}

	t.mu.Lock()
	t.completed[addr] = msg
	t.pendingRead[addr] = false
	t.mu.Unlock()
}

func (t *Transactor) recordFault(addr byte, err error) {
	t.mu.Lock()
	t.faults[addr] = fmt.Errorf("%w: %s addr 0x%02X: %v", bus.ErrBusFault, t.busName, addr, err)
	t.pendingRead[addr] = false
	t.mu.Unlock()
}

// Ensure Transactor implements bus.Transactor
var _ bus.Transactor = (*Transactor)(nil)
