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

package splitlink

import (
	"errors"
	"fmt"
	"io"
	"syscall"
)

// Error categories for better error handling and retry logic
var (
	// Transport errors - potentially retryable
	ErrTransportTimeout = errors.New("transport timeout")
	ErrTransportWrite   = errors.New("transport write failed")
	ErrTransportRead    = errors.New("transport read failed")
	ErrTransportClosed  = errors.New("transport is closed")

	// Link-layer errors
	ErrTimeout         = errors.New("start byte not found within scan limit")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnexpectedFrame = errors.New("unexpected frame type")
	ErrCRCMismatch     = errors.New("frame crc mismatch")

	// Protocol signals - not failures, but surfaced as errors so the
	// caller can distinguish them from a normal packet delivery
	ErrAbortDataPhase = errors.New("peer aborted data phase")
	ErrPing           = errors.New("ping received")

	// Command-layer errors
	ErrCommandFailed   = errors.New("bootloader command failed")
	ErrInvalidResponse = errors.New("invalid response format")
)

// ErrorType represents the category of error for retry logic
type ErrorType int

const (
	// ErrorTypeTransient indicates a potentially retryable error
	ErrorTypeTransient ErrorType = iota
	// ErrorTypePermanent indicates a non-retryable error
	ErrorTypePermanent
	// ErrorTypeTimeout indicates a timeout error (special handling)
	ErrorTypeTimeout
)

// LinkError wraps link- and transport-level errors with additional context
type LinkError struct {
	Err       error     // Underlying error
	Op        string    // Operation that failed
	Port      string    // Port or device identifier
	Type      ErrorType // Error category
	Retryable bool      // Whether the error is retryable
}

func (e *LinkError) Error() string {
	if e.Port != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Port, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *LinkError) Unwrap() error {
	return e.Err
}

// NewLinkError creates a standard link error with consistent formatting
func NewLinkError(op, port string, err error, errType ErrorType) *LinkError {
	return &LinkError{
		Op:        op,
		Port:      port,
		Err:       err,
		Type:      errType,
		Retryable: errType == ErrorTypeTransient || errType == ErrorTypeTimeout,
	}
}

// NewTimeoutError creates a timeout error for link operations
func NewTimeoutError(op, port string) *LinkError {
	return NewLinkError(op, port, ErrTimeout, ErrorTypeTimeout)
}

// NewTransportWriteError creates a write error (transient)
func NewTransportWriteError(op, port string) *LinkError {
	return NewLinkError(op, port, ErrTransportWrite, ErrorTypeTransient)
}

// NewTransportReadError creates a read error (transient)
func NewTransportReadError(op, port string) *LinkError {
	return NewLinkError(op, port, ErrTransportRead, ErrorTypeTransient)
}

// NewInvalidArgumentError creates an invalid argument error (permanent)
func NewInvalidArgumentError(op, port string) *LinkError {
	return NewLinkError(op, port, ErrInvalidArgument, ErrorTypePermanent)
}

// NewUnexpectedFrameError creates an unexpected frame type error (permanent)
func NewUnexpectedFrameError(op, port string) *LinkError {
	return NewLinkError(op, port, ErrUnexpectedFrame, ErrorTypePermanent)
}

// IsRetryable returns true if the error is potentially retryable
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var le *LinkError
	if errors.As(err, &le) {
		return le.Retryable
	}

	switch {
	case errors.Is(err, ErrTransportTimeout),
		errors.Is(err, ErrTransportRead),
		errors.Is(err, ErrTransportWrite),
		errors.Is(err, ErrTimeout),
		errors.Is(err, ErrCRCMismatch):
		return true
	default:
		return false
	}
}

// IsFatal returns true if the error indicates the device/connection is gone
// and the exchange should stop entirely. This is distinct from IsRetryable
// which indicates whether a single operation can be retried.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var le *LinkError
	if errors.As(err, &le) {
		return le.Type == ErrorTypePermanent
	}

	if isDeviceGoneError(err) {
		return true
	}

	switch {
	case errors.Is(err, ErrTransportClosed),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrClosedPipe):
		return true
	default:
		return false
	}
}

// IsProtocolSignal returns true for conditions that terminate an exchange
// without indicating a failure: a peer-requested abort or an unsolicited ping.
func IsProtocolSignal(err error) bool {
	return errors.Is(err, ErrAbortDataPhase) || errors.Is(err, ErrPing)
}

// isDeviceGoneError checks for OS-level errors indicating device disconnection.
// These errors occur when a USB device is unplugged during I/O operations.
func isDeviceGoneError(err error) bool {
	if err == nil {
		return false
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		//nolint:exhaustive // Only checking specific device-gone errors, not all errno values
		switch errno {
		case syscall.EIO, syscall.ENXIO, syscall.ENODEV:
			return true
		}
	}

	return false
}
