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

// Package link implements the serial bootloader framing protocol: framed
// Command/Data packets with CRC-16 detection and a stop-and-wait
// Ack/Nak/retry handshake over an unreliable byte stream.
//
// Acknowledgment of a received packet is deferred: it is sent at the start
// of the next protocol operation rather than immediately, so that Abort can
// substitute an AckAbort for the pending Ack.
package link

import (
	"encoding/binary"
	"time"

	splitlink "github.com/SplitLinkProject/go-splitlink"
	"github.com/SplitLinkProject/go-splitlink/internal/frame"
	"github.com/SplitLinkProject/go-splitlink/internal/syncutil"
)

// PacketType selects the logical frame kind for Read and Write
type PacketType byte

const (
	// PacketTypeCommand frames carry command and response packets
	PacketTypeCommand PacketType = frame.TypeCommand
	// PacketTypeData frames carry data-phase payloads
	PacketTypeData PacketType = frame.TypeData
)

// syncState is the deferred acknowledgment state, consumed exactly once at
// the top of every protocol operation.
type syncState int

const (
	syncNone syncState = iota
	syncAckPending
	syncAbortPending
)

// Config holds the link timing parameters
type Config struct {
	// ByteReadTimeout is the per-byte read budget for header, length, CRC
	// and payload fields
	ByteReadTimeout time.Duration

	// StartByteScanLimit is the number of scan attempts before Read fails
	// with ErrTimeout. Combined with ScanRetryDelay it must tolerate
	// extended silence: a long-running peer command may delay its response
	// by seconds.
	StartByteScanLimit int

	// ScanRetryDelay is the pause between start-byte scan attempts
	ScanRetryDelay time.Duration

	// BackToBackWriteDelay is inserted between consecutive writes so the
	// peer has time to re-enter its read routine
	BackToBackWriteDelay time.Duration
}

// DefaultConfig returns the default link timing configuration
func DefaultConfig() *Config {
	return &Config{
		ByteReadTimeout:      10 * time.Millisecond,
		StartByteScanLimit:   1000, // ~10s of silence at the default delay
		ScanRetryDelay:       10 * time.Millisecond,
		BackToBackWriteDelay: 100 * time.Millisecond,
	}
}

// Version is the peer protocol version reported in a ping response
type Version struct {
	Major  byte
	Minor  byte
	Bugfix byte
	Name   byte
}

// Link drives the framing protocol over a ByteTransport. A single Link
// owns its transport; all entry points serialize on an internal mutex.
type Link struct {
	transport splitlink.ByteTransport
	cfg       *Config
	mu        syncutil.Mutex

	pending         syncState
	backToBackWrite bool

	// Last transmitted data frame, kept for Nak-triggered retransmission
	lastFrame []byte

	// Receive buffer, zero-filled before each receive so omitted trailing
	// fields default to zero
	payload [frame.MaxPayloadSize]byte
}

// New creates a Link over the given byte transport
func New(transport splitlink.ByteTransport, cfg *Config) *Link {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Link{
		transport: transport,
		cfg:       cfg,
	}
}

// MaxPacketSize returns the largest payload accepted by Write and
// delivered by Read
func (*Link) MaxPacketSize() int {
	return frame.MaxPayloadSize
}

// Finalize flushes a deferred Ack or AckAbort without starting another
// protocol operation
func (l *Link) Finalize() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flushDeferredSync()
}

// Abort arms an AckAbort in place of the pending Ack, cancelling an
// in-progress receive. An ack must be pending.
func (l *Link) Abort() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pending != syncAckPending {
		return splitlink.NewInvalidArgumentError("Abort", l.transport.Port())
	}
	l.pending = syncAbortPending
	return nil
}

// Read receives one Command or Data packet, handling Nak/re-receive on CRC
// failure. The returned slice is backed by a zero-filled MaxPacketSize
// buffer, so re-slicing up to MaxPacketSize yields zero defaults for
// omitted trailing fields.
//
// Read returns ErrPing if it served an unsolicited ping instead of
// receiving a packet, and ErrTimeout if no start byte appeared within the
// bounded scan.
func (l *Link) Read(packetType PacketType) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.backToBackWrite = false

	if err := l.flushDeferredSync(); err != nil {
		return nil, err
	}

	var length uint16
	for {
		// Clear the packet data area so unsent parameters default to zero
		clear(l.payload[:])

		var crc16 uint16
		var err error
		length, crc16, err = l.readDataPacket(packetType)
		if err != nil {
			return nil, err
		}

		if frame.Validate(byte(packetType), length, crc16, l.payload[:length]) {
			break
		}

		splitlink.Debugf("link: invalid crc 0x%04X on %s frame [%s], sending Nak",
			crc16, frame.TypeName(byte(packetType)), splitlink.HexBytes(l.payload[:length]))
		if err := l.sendSync(frame.TypeNak); err != nil {
			return nil, err
		}
	}

	// The Ack for this packet is deferred to the next protocol operation
	l.pending = syncAckPending

	out := make([]byte, frame.MaxPayloadSize)
	copy(out, l.payload[:])
	return out[:length], nil
}

// Write transmits one Command or Data packet and waits for the peer's
// acknowledgment, retransmitting on Nak. It returns ErrAbortDataPhase if
// the peer cancels the exchange with an AckAbort.
func (l *Link) Write(payload []byte, packetType PacketType) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if payload == nil || len(payload) > frame.MaxPayloadSize {
		return splitlink.NewInvalidArgumentError("Write", l.transport.Port())
	}

	if err := l.flushDeferredSync(); err != nil {
		return err
	}

	// Back-to-back writes require a delay for the peer to re-enter its
	// read routine
	if l.backToBackWrite {
		l.backToBackWrite = false
		time.Sleep(l.cfg.BackToBackWriteDelay)
	}

	l.lastFrame = frame.EncodeDataFrame(byte(packetType), payload)
	if err := l.writeAll("Write", l.lastFrame); err != nil {
		return err
	}

	return l.waitForAck()
}

// SendSync transmits a header-only frame (Ack, Nak, AckAbort, Ping)
func (l *Link) SendSync(packetType byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sendSync(packetType)
}

// Ping sends a Ping frame and reads back the peer's ping response record
func (l *Link) Ping() (Version, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.flushDeferredSync(); err != nil {
		return Version{}, err
	}
	if err := l.sendSync(frame.TypePing); err != nil {
		return Version{}, err
	}

	packetType, err := l.readHeader("Ping")
	if err != nil {
		return Version{}, err
	}
	if packetType != frame.TypePingResponse {
		return Version{}, splitlink.NewUnexpectedFrameError("Ping", l.transport.Port())
	}

	// version(4) + options(2) + crc16(2)
	var rest [8]byte
	if err := l.readFull("Ping", rest[:]); err != nil {
		return Version{}, err
	}

	covered := append([]byte{frame.StartByte, frame.TypePingResponse}, rest[:6]...)
	if frame.CRC16(covered) != binary.LittleEndian.Uint16(rest[6:8]) {
		return Version{}, splitlink.NewLinkError("Ping", l.transport.Port(),
			splitlink.ErrCRCMismatch, splitlink.ErrorTypeTransient)
	}

	return Version{
		Bugfix: rest[0],
		Minor:  rest[1],
		Major:  rest[2],
		Name:   rest[3],
	}, nil
}

// waitForAck reads sync frames until an Ack arrives, retransmitting the
// last data frame on each Nak. AckAbort short-circuits with
// ErrAbortDataPhase; any other frame type is a protocol violation.
func (l *Link) waitForAck() error {
	for {
		packetType, err := l.readHeader("waitForAck")
		if err != nil {
			return err
		}

		switch packetType {
		case frame.TypeAck:
			return nil
		case frame.TypeAckAbort:
			return splitlink.ErrAbortDataPhase
		case frame.TypeNak:
			splitlink.Debugf("link: Nak received, retransmitting %d byte frame", len(l.lastFrame))
			if err := l.writeAll("waitForAck", l.lastFrame); err != nil {
				return err
			}
		default:
			splitlink.Debugf("link: unexpected sync byte 0x%02X, expected Ack, AckAbort or Nak", packetType)
			return splitlink.NewInvalidArgumentError("waitForAck", l.transport.Port())
		}
	}
}

// sendSync transmits a header-only frame and marks the session as having
// just performed a write, for back-to-back delay logic on the next Write
func (l *Link) sendSync(packetType byte) error {
	l.backToBackWrite = true
	return l.writeAll("sendSync", frame.EncodeSyncFrame(packetType))
}

// sendPingResponse replies to an unsolicited Ping with the fixed version
// record, but only while no sync is pending: an in-flight exchange must
// not be corrupted by the reply.
func (l *Link) sendPingResponse() error {
	if l.pending != syncNone {
		return nil
	}
	return l.writeAll("sendPingResponse", frame.PingResponse)
}

// flushDeferredSync sends the Ack or AckAbort owed for the previously
// received packet, if any
func (l *Link) flushDeferredSync() error {
	switch l.pending {
	case syncAckPending:
		l.pending = syncNone
		return l.sendSync(frame.TypeAck)
	case syncAbortPending:
		l.pending = syncNone
		return l.sendSync(frame.TypeAckAbort)
	default:
		return nil
	}
}

// readDataPacket reads one framed data packet into l.payload, returning
// the transmitted length and CRC for validation by the caller
func (l *Link) readDataPacket(packetType PacketType) (length, crc16 uint16, err error) {
	const op = "Read"

	gotType, err := l.readHeader(op)
	if err != nil {
		return 0, 0, err
	}

	if gotType == frame.TypePing {
		if err := l.sendPingResponse(); err != nil {
			return 0, 0, err
		}
		return 0, 0, splitlink.ErrPing
	}

	if gotType != byte(packetType) {
		splitlink.Debugf("link: unexpected packet type 0x%02X (%s), expected %s",
			gotType, frame.TypeName(gotType), frame.TypeName(byte(packetType)))
		return 0, 0, splitlink.NewUnexpectedFrameError(op, l.transport.Port())
	}

	var field [2]byte
	if err := l.readFull(op, field[:]); err != nil {
		return 0, 0, err
	}
	length = binary.LittleEndian.Uint16(field[:])

	// Never exceed the allocated packet buffer
	if length > frame.MaxPayloadSize {
		length = frame.MaxPayloadSize
	}

	if err := l.readFull(op, field[:]); err != nil {
		return 0, 0, err
	}
	crc16 = binary.LittleEndian.Uint16(field[:])

	if length > 0 {
		if err := l.readFull(op, l.payload[:length]); err != nil {
			return 0, 0, err
		}
	}

	return length, crc16, nil
}

// readHeader scans for the start byte, then reads the packet type
func (l *Link) readHeader(op string) (packetType byte, err error) {
	if err := l.readStartByte(op); err != nil {
		return 0, err
	}

	var b [1]byte
	if err := l.readFull(op, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// readStartByte polls the transport byte-by-byte until the start byte is
// found. Attempts are bounded; silence between attempts is tolerated with
// a delay because a long-running peer command (such as a flash erase) may
// hold off its response for seconds.
func (l *Link) readStartByte(op string) error {
	var b [1]byte
	for attempts := 0; ; attempts++ {
		if attempts > l.cfg.StartByteScanLimit {
			return splitlink.NewTimeoutError(op, l.transport.Port())
		}

		n, err := l.transport.Read(b[:])
		if err != nil {
			return splitlink.NewTransportReadError(op, l.transport.Port())
		}
		if n == 1 && b[0] == frame.StartByte {
			return nil
		}

		// Skip the delay when the byte read was just not the start byte
		// yet; delay only through actual silence.
		if n == 0 {
			time.Sleep(l.cfg.ScanRetryDelay)
		}
	}
}

// readFull reads exactly len(buf) bytes, with a deadline proportional to
// the expected field size
func (l *Link) readFull(op string, buf []byte) error {
	deadline := time.Now().Add(l.cfg.ByteReadTimeout * time.Duration(len(buf)))
	got := 0
	for got < len(buf) {
		n, err := l.transport.Read(buf[got:])
		if err != nil {
			return splitlink.NewTransportReadError(op, l.transport.Port())
		}
		got += n
		if n == 0 {
			if time.Now().After(deadline) {
				return splitlink.NewLinkError(op, l.transport.Port(),
					splitlink.ErrTransportTimeout, splitlink.ErrorTypeTimeout)
			}
			time.Sleep(time.Millisecond)
		}
	}
	return nil
}

// writeAll writes the whole buffer to the transport
func (l *Link) writeAll(op string, data []byte) error {
	n, err := l.transport.Write(data)
	if err != nil {
		return splitlink.NewTransportWriteError(op, l.transport.Port())
	}
	if n != len(data) {
		return splitlink.NewTransportWriteError(op, l.transport.Port())
	}
	return nil
}
