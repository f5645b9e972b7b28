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

// Package bootcmd implements the host side of the bootloader command set
// on top of the framed link: property queries, flash erase, and memory
// writes with their data phase.
package bootcmd

import (
	"encoding/binary"
	"fmt"

	splitlink "github.com/SplitLinkProject/go-splitlink"
	"github.com/SplitLinkProject/go-splitlink/link"
)

// Command tags
const (
	CommandFlashEraseRegion = 0x02
	CommandWriteMemory      = 0x04
	CommandGetProperty      = 0x07
	CommandReset            = 0x0B
)

// Response tags
const (
	responseGeneric  = 0xA0
	responseProperty = 0xA7
)

// Command flags
const flagHasDataPhase = 0x01

// Property tags accepted by CommandGetProperty
const (
	PropertyCurrentVersion       = 0x01
	PropertyAvailablePeripherals = 0x02
	PropertyFlashStartAddress    = 0x03
	PropertyFlashSizeInBytes     = 0x04
	PropertyMaxPacketSize        = 0x0B
)

// Status codes returned in generic responses
const (
	StatusSuccess           = 0
	StatusFail              = 1
	StatusReadOnly          = 2
	StatusOutOfRange        = 3
	StatusInvalidArgument   = 4
	StatusFlashAlignment    = 101
	StatusFlashAddressError = 102
	StatusFlashAccessError  = 103
	StatusFlashCommandFail  = 105
	StatusUnknownCommand    = 10000
	StatusSecurityViolation = 10001
)

// commandHeaderSize is tag, flags, reserved, and parameter count
const commandHeaderSize = 4

// StatusError reports a command the peer accepted but answered with a
// non-success status
type StatusError struct {
	Command byte
	Code    uint32
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("command 0x%02X failed with status %d", e.Command, e.Code)
}

// Unwrap makes StatusError match splitlink.ErrCommandFailed via errors.Is
func (e *StatusError) Unwrap() error {
	return splitlink.ErrCommandFailed
}

// PacketLink is the framed packet transport the client drives. *link.Link
// satisfies it.
type PacketLink interface {
	Read(packetType link.PacketType) ([]byte, error)
	Write(payload []byte, packetType link.PacketType) error
	MaxPacketSize() int
	Ping() (link.Version, error)
	Finalize() error
}

// Client issues bootloader commands over a packet link
type Client struct {
	link PacketLink
}

// NewClient creates a bootloader command client
func NewClient(l PacketLink) *Client {
	return &Client{link: l}
}

// Ping checks the peer is alive and returns its protocol version
func (c *Client) Ping() (link.Version, error) {
	return c.link.Ping()
}

// GetProperty queries one property and returns its value words
func (c *Client) GetProperty(tag uint32) ([]uint32, error) {
	if err := c.sendCommand(CommandGetProperty, 0, tag); err != nil {
		return nil, err
	}
	payload, err := c.link.Read(link.PacketTypeCommand)
	if err != nil {
		return nil, err
	}
	if err := c.link.Finalize(); err != nil {
		return nil, err
	}
	status, params, err := parseResponse(payload, responseProperty)
	if err != nil {
		return nil, err
	}
	if status != StatusSuccess {
		return nil, &StatusError{Command: CommandGetProperty, Code: status}
	}
	return params, nil
}

// FlashEraseRegion erases length bytes of flash starting at address
func (c *Client) FlashEraseRegion(address, length uint32) error {
	if err := c.sendCommand(CommandFlashEraseRegion, 0, address, length); err != nil {
		return err
	}
	return c.readGenericResponse(CommandFlashEraseRegion)
}

// WriteMemory writes data to the peer's memory at address: a command
// packet announcing the transfer, then the payload in data-phase packets,
// then the peer's final status.
func (c *Client) WriteMemory(address uint32, data []byte) error {
	if err := c.sendCommand(CommandWriteMemory, flagHasDataPhase, address, uint32(len(data))); err != nil {
		return err
	}
	if err := c.readGenericResponse(CommandWriteMemory); err != nil {
		return err
	}

	chunkSize := c.link.MaxPacketSize()
	for offset := 0; offset < len(data); offset += chunkSize {
		end := offset + chunkSize
		if end > len(data) {
			end = len(data)
		}
		if err := c.link.Write(data[offset:end], link.PacketTypeData); err != nil {
			// The peer cancels a data phase it cannot complete; the final
			// response carries the status explaining why.
			if splitlink.IsProtocolSignal(err) {
				break
			}
			return err
		}
	}
	return c.readGenericResponse(CommandWriteMemory)
}

// Reset asks the peer to reboot into its application firmware
func (c *Client) Reset() error {
	if err := c.sendCommand(CommandReset, 0); err != nil {
		return err
	}
	return c.readGenericResponse(CommandReset)
}

// sendCommand frames a command packet: tag, flags, reserved byte, and the
// parameter count followed by little-endian parameter words
func (c *Client) sendCommand(tag, flags byte, params ...uint32) error {
	payload := make([]byte, commandHeaderSize, commandHeaderSize+4*len(params))
	payload[0] = tag
	payload[1] = flags
	payload[3] = byte(len(params))
	for _, p := range params {
		payload = binary.LittleEndian.AppendUint32(payload, p)
	}
	return c.link.Write(payload, link.PacketTypeCommand)
}

// readGenericResponse reads one generic response and converts its status
// into an error
func (c *Client) readGenericResponse(command byte) error {
	payload, err := c.link.Read(link.PacketTypeCommand)
	if err != nil {
		return err
	}
	if err := c.link.Finalize(); err != nil {
		return err
	}
	status, params, err := parseResponse(payload, responseGeneric)
	if err != nil {
		return err
	}
	if len(params) >= 1 && byte(params[0]) != command {
		return fmt.Errorf("%w: generic response names command 0x%02X, want 0x%02X",
			splitlink.ErrInvalidResponse, byte(params[0]), command)
	}
	if status != StatusSuccess {
		return &StatusError{Command: command, Code: status}
	}
	return nil
}

// parseResponse validates a response packet's tag and extracts the status
// word and remaining parameter words
func parseResponse(payload []byte, wantTag byte) (status uint32, params []uint32, err error) {
	if len(payload) < commandHeaderSize+4 {
		return 0, nil, fmt.Errorf("%w: response truncated to %d bytes",
			splitlink.ErrInvalidResponse, len(payload))
	}
	if payload[0] != wantTag {
		return 0, nil, fmt.Errorf("%w: unexpected response tag 0x%02X, want 0x%02X",
			splitlink.ErrInvalidResponse, payload[0], wantTag)
	}
	count := int(payload[3])
	if count < 1 {
		return 0, nil, fmt.Errorf("%w: response carries no status word",
			splitlink.ErrInvalidResponse)
	}
	words := payload[commandHeaderSize:]
	if len(words) < 4*count {
		count = len(words) / 4
	}
	status = binary.LittleEndian.Uint32(words)
	params = make([]uint32, 0, count-1)
	for i := 1; i < count; i++ {
		params = append(params, binary.LittleEndian.Uint32(words[4*i:]))
	}
	return status, params, nil
}
